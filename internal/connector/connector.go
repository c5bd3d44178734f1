// Package connector holds the connection to a SonarQube or SonarCloud
// instance and exposes the operations the compliance rules need.
package connector

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"k8s.io/client-go/util/flowcontrol"

	"github.com/chicoribas/sonar-compliance/internal/clients/sonar"
	"github.com/chicoribas/sonar-compliance/internal/response"
)

// TokenEnv is the environment variable holding the Sonar token.
const TokenEnv = "SONAR_TOKEN"

// DefaultURL is used for SonarQube when no host and port are given.
const DefaultURL = "http://localhost:9000"

// Platform is the kind of Sonar service to talk to.
type Platform string

const (
	SonarQube  Platform = "sonarqube"
	SonarCloud Platform = "sonarcloud"
)

// Platforms lists the supported platforms.
func Platforms() []string {
	return []string{string(SonarQube), string(SonarCloud)}
}

// ParsePlatform resolves a platform name. The empty string is SonarQube.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.ToLower(s)); p {
	case "":
		return SonarQube, nil
	case SonarQube, SonarCloud:
		return p, nil
	}
	return "", &UnsupportedPlatformError{Platform: s}
}

// Options configure a Connector.
type Options struct {
	Platform     string
	Host         string
	Port         int
	Organization string
	// Token used to authenticate. Read from TokenEnv when empty.
	Token string
}

// URL is the SonarQube endpoint built from host and port.
func (o Options) URL() string {
	if o.Host == "" || o.Port == 0 {
		return DefaultURL
	}
	return fmt.Sprintf("http://%s:%d", o.Host, o.Port)
}

// String never includes the token.
func (o Options) String() string {
	return fmt.Sprintf("platform=%s url=%s organization=%s", o.Platform, o.URL(), o.Organization)
}

// RequireOrganization fails when the platform needs an organization and none
// is set.
func (o Options) RequireOrganization() error {
	p, err := ParsePlatform(o.Platform)
	if err != nil {
		return err
	}
	if p == SonarCloud && o.Organization == "" {
		return &ConfigurationError{Field: "organization", Err: ErrOrganizationRequired}
	}
	return nil
}

// An Option modifies how New builds a Connector.
type Option func(*Connector)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Connector) { c.log = l }
}

// WithRemoteFactory replaces the Sonar web api client.
func WithRemoteFactory(f RemoteFactory) Option {
	return func(c *Connector) { c.newRemote = f }
}

// WithRateLimiter throttles every call to the web api.
func WithRateLimiter(rl flowcontrol.RateLimiter) Option {
	return func(c *Connector) { c.rateLimiter = rl }
}

// A Connector talks to one Sonar instance on behalf of one organization.
// Nothing changes after New, so operations may run from several goroutines.
type Connector struct {
	platform     Platform
	url          string
	organization string

	remote      Remote
	newRemote   RemoteFactory
	rateLimiter flowcontrol.RateLimiter
	validation  *response.Validation
	log         *zap.Logger
}

// New resolves the platform, builds the client and checks the credentials. A
// rejected token does not fail New, see Authenticated.
func New(ctx context.Context, o Options, opts ...Option) (*Connector, error) {
	platform, err := ParsePlatform(o.Platform)
	if err != nil {
		return nil, err
	}

	c := &Connector{
		platform:     platform,
		organization: o.Organization,
		newRemote:    NewSonarRemote,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}

	switch platform {
	case SonarQube:
		c.url = o.URL()
	case SonarCloud:
		c.url = sonar.SonarCloudUrl
	}

	token := o.Token
	if token == "" {
		token = os.Getenv(TokenEnv)
	}

	c.log = c.log.With(zap.String("platform", string(platform)), zap.String("url", c.url))
	c.remote = c.newRemote(sonar.SonarApiOptions{
		Key:         token,
		BaseUrl:     c.url,
		RateLimiter: c.rateLimiter,
	})

	c.validation = c.validate(ctx)
	if !c.Authenticated() {
		c.log.Warn("The client is not authenticated")
	}

	return c, nil
}

func (c *Connector) validate(ctx context.Context) *response.Validation {
	out, err := c.Call(ctx, OpCheckCredentials, nil)
	if err != nil {
		c.log.Warn("Cannot check credentials", zap.Error(err))
		return response.NewValidation(map[string]interface{}{"valid": false})
	}
	raw, _ := out.(map[string]interface{})
	if v, ok := response.Normalize(raw).(*response.Validation); ok {
		return v
	}
	c.log.Warn("Unexpected credentials answer", zap.Any("answer", raw))
	return response.NewValidation(map[string]interface{}{"valid": false})
}

// Authenticated reports whether the remote accepted the token at construction.
func (c *Connector) Authenticated() bool { return c.validation.Valid() }

func (c *Connector) Platform() Platform   { return c.platform }
func (c *Connector) URL() string          { return c.url }
func (c *Connector) Organization() string { return c.organization }

// Call invokes a named operation of the web api, for instance
// "auth.checkCredentials". An unknown name is logged and yields nil, nil.
func (c *Connector) Call(ctx context.Context, op string, args Args) (interface{}, error) {
	fn, ok := operations[op]
	if !ok {
		c.log.Warn("Method not found", zap.String("operation", op))
		return nil, nil
	}

	names := make([]string, 0, len(args))
	for k := range args {
		names = append(names, k)
	}
	sort.Strings(names)
	c.log.Info("Calling remote", zap.String("operation", op), zap.Strings("args", names))

	out, err := fn(ctx, c.remote, args)
	if err != nil {
		return nil, &RemoteOperationError{Operation: op, Err: err}
	}
	return out, nil
}

// ListProjects retrieves all projects within the organization, in the order
// the remote returns them. Records that are not components are logged and
// skipped.
func (c *Connector) ListProjects(ctx context.Context) ([]*response.Component, error) {
	args := Args{}
	if c.platform == SonarCloud {
		if c.organization == "" {
			err := &ConfigurationError{Field: "organization", Err: ErrOrganizationRequired}
			c.log.Error("Organization cannot be empty in SonarCloud")
			return nil, err
		}
		args["organization"] = c.organization
	}

	out, err := c.Call(ctx, OpSearchProjects, args)
	if err != nil {
		return nil, err
	}
	raws, _ := out.([]map[string]interface{})
	projects := make([]*response.Component, 0, len(raws))
	for i, r := range response.NormalizeAll(raws) {
		p, ok := r.(*response.Component)
		if !ok {
			c.log.Warn("Skipping unexpected project record", zap.Int("index", i), zap.Any("key", raws[i]["key"]), zap.String("kind", fmt.Sprintf("%T", r)))
			continue
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// SearchProject returns the project with the given key, or nil when it does
// not exist.
func (c *Connector) SearchProject(ctx context.Context, key string) (*response.Component, error) {
	out, err := c.Call(ctx, OpGetProject, c.withOrganization(Args{"project": key}))
	if err != nil {
		return nil, err
	}
	raw, _ := out.(map[string]interface{})
	if len(raw) == 0 {
		return nil, nil
	}
	return toComponent(raw)
}

// CreateProject creates a project. Visibility may be empty to use the
// organization default.
func (c *Connector) CreateProject(ctx context.Context, key, name, visibility string) (*response.Component, error) {
	if c.platform == SonarCloud && c.organization == "" {
		return nil, &ConfigurationError{Field: "organization", Err: ErrOrganizationRequired}
	}
	if name == "" {
		name = key
	}

	out, err := c.Call(ctx, OpCreateProject, c.withOrganization(Args{"project": key, "name": name, "visibility": visibility}))
	if err != nil {
		return nil, err
	}
	raw, _ := out.(map[string]interface{})
	return toComponent(raw)
}

// UpdateProjectVisibility sets the visibility of a project.
func (c *Connector) UpdateProjectVisibility(ctx context.Context, key, visibility string) error {
	_, err := c.Call(ctx, OpUpdateVisibility, Args{"project": key, "visibility": visibility})
	return err
}

// ListProjectBranches lists the branches of a project.
func (c *Connector) ListProjectBranches(ctx context.Context, projectKey string) ([]*response.Branch, error) {
	out, err := c.Call(ctx, OpSearchProjectBranches, Args{"project": projectKey})
	if err != nil {
		return nil, err
	}
	raw, _ := out.(map[string]interface{})
	items, err := response.Objects(raw["branches"])
	if err != nil {
		return nil, err
	}
	return response.Branches(items)
}

// RenameMainBranch renames the main branch of a project.
func (c *Connector) RenameMainBranch(ctx context.Context, projectKey, name string) error {
	_, err := c.Call(ctx, OpRenameProjectBranch, Args{"project": projectKey, "name": name})
	return err
}

// DeleteBranch deletes a branch of a project. The remote refuses to delete
// the main branch.
func (c *Connector) DeleteBranch(ctx context.Context, projectKey, branch string) error {
	_, err := c.Call(ctx, OpDeleteProjectBranch, Args{"project": projectKey, "branch": branch})
	return err
}

// Logout terminates the remote session.
func (c *Connector) Logout(ctx context.Context) error {
	_, err := c.Call(ctx, OpLogoutUser, nil)
	return err
}

// Close logs out. A failure is logged and otherwise ignored so it never hides
// the error a deferred Close runs after.
func (c *Connector) Close(ctx context.Context) {
	if err := c.Logout(ctx); err != nil {
		c.log.Warn("Cannot logout", zap.Error(err))
	}
}

func (c *Connector) withOrganization(a Args) Args {
	if c.platform == SonarCloud && c.organization != "" {
		a["organization"] = c.organization
	}
	return a
}

func toComponent(raw map[string]interface{}) (*response.Component, error) {
	cs, err := response.Components([]map[string]interface{}{raw})
	if err != nil {
		return nil, err
	}
	return cs[0], nil
}
