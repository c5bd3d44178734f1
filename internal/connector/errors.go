package connector

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrOrganizationRequired is the cause of a ConfigurationError raised when a
// SonarCloud operation runs without an organization.
var ErrOrganizationRequired = errors.New("organization required")

// UnsupportedPlatformError is returned by New for an unknown platform kind.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("platform not supported: %q", e.Platform)
}

// ConfigurationError reports a setting the selected platform needs but that
// was not provided. It is raised before any network call.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// RemoteOperationError wraps a failure of the Sonar web api.
type RemoteOperationError struct {
	Operation string
	Err       error
}

func (e *RemoteOperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *RemoteOperationError) Unwrap() error { return e.Err }

// IsRemote reports whether err was raised by the remote service.
func IsRemote(err error) bool {
	var e *RemoteOperationError
	return errors.As(err, &e)
}

// IsConfiguration reports whether err is a missing or invalid setting.
func IsConfiguration(err error) bool {
	var e *ConfigurationError
	return errors.As(err, &e)
}
