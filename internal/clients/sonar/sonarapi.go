package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/client-go/util/flowcontrol"
)

// SonarCloudUrl is the fixed endpoint of the hosted platform.
const SonarCloudUrl = "https://sonarcloud.io"

type SonarApiOptions struct {
	Key     string
	BaseUrl string
	// Client used for every exchange. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Optional client side throttling. Nil means unlimited.
	RateLimiter flowcontrol.RateLimiter
}

type SonarApi struct {
	Options SonarApiOptions
}

type SonarPaging struct {
	PageIndex int `json:"pageIndex"`
	PageSize  int `json:"pageSize"`
	Total     int `json:"total"`
}

// Error is returned for any non 2xx answer of the Sonar web api.
type Error struct {
	StatusCode int
	Status     string
	Messages   []string
}

func (e *Error) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("error calling sonar api: %s", e.Status)
	}
	return fmt.Sprintf("error calling sonar api: %s: %s", e.Status, strings.Join(e.Messages, "; "))
}

// IsNotFound reports whether err is a 404 answer of the Sonar web api.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

type errorEnvelope struct {
	Errors []struct {
		Msg string `json:"msg"`
	} `json:"errors"`
}

func NewSonarApi(options SonarApiOptions) SonarApi {
	if options.BaseUrl == "" {
		options.BaseUrl = SonarCloudUrl
	}
	if options.HTTPClient == nil {
		options.HTTPClient = http.DefaultClient
	}

	return SonarApi{
		Options: options,
	}
}

func (sonarApi SonarApi) GetUrl(uri string) (*url.URL, error) {
	u, err := url.Parse(sonarApi.Options.BaseUrl)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse sonar url %q", sonarApi.Options.BaseUrl)
	}

	return u.JoinPath(uri), nil
}

func (sonarApi SonarApi) NewRequest(ctx context.Context, method string, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build sonar request")
	}
	req.SetBasicAuth(sonarApi.Options.Key, "")
	req.Header.Set("Accept", "application/json")

	return req, nil
}

// Do sends a request to uri with params encoded in the query string. When out
// is not nil the response body is decoded into it.
func (sonarApi SonarApi) Do(ctx context.Context, method string, uri string, params url.Values, out interface{}) error {
	u, err := sonarApi.GetUrl(uri)
	if err != nil {
		return err
	}
	u.RawQuery = params.Encode()

	if rl := sonarApi.Options.RateLimiter; rl != nil {
		if err := rl.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate limiter")
		}
	}

	req, err := sonarApi.NewRequest(ctx, method, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := sonarApi.Options.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, uri)
	}
	defer resp.Body.Close() //nolint:errcheck

	responseData, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "cannot read sonar response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode, Status: resp.Status}
		var envelope errorEnvelope
		if json.Unmarshal(responseData, &envelope) == nil {
			for _, e := range envelope.Errors {
				apiErr.Messages = append(apiErr.Messages, e.Msg)
			}
		}
		return apiErr
	}

	if out == nil || len(responseData) == 0 {
		return nil
	}

	return errors.Wrapf(json.Unmarshal(responseData, out), "cannot decode %s response", uri)
}
