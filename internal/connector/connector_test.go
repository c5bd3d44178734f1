package connector

import (
	"context"
	"testing"

	"github.com/crossplane/crossplane-runtime/pkg/test"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/chicoribas/sonar-compliance/internal/clients/sonar"
)

var errBoom = errors.New("boom")

// MockRemote records every call and answers from its Mock functions.
type MockRemote struct {
	Calls []string

	MockCheckCredentials      func() (map[string]interface{}, error)
	MockLogoutUser            func() error
	MockSearchProjects        func(organization string) ([]map[string]interface{}, error)
	MockGetProject            func(organization, project string) (map[string]interface{}, error)
	MockCreateProject         func(organization, name, project, visibility string) (map[string]interface{}, error)
	MockUpdateVisibility      func(project, visibility string) error
	MockSearchProjectBranches func(project string) (map[string]interface{}, error)
	MockRenameProjectBranch   func(project, name string) error
	MockDeleteProjectBranch   func(project, branch string) error
}

func (m *MockRemote) CheckCredentials(_ context.Context) (map[string]interface{}, error) {
	m.Calls = append(m.Calls, OpCheckCredentials)
	if m.MockCheckCredentials == nil {
		return map[string]interface{}{"valid": true}, nil
	}
	return m.MockCheckCredentials()
}

func (m *MockRemote) LogoutUser(_ context.Context) error {
	m.Calls = append(m.Calls, OpLogoutUser)
	if m.MockLogoutUser == nil {
		return nil
	}
	return m.MockLogoutUser()
}

func (m *MockRemote) SearchProjects(_ context.Context, organization string) ([]map[string]interface{}, error) {
	m.Calls = append(m.Calls, OpSearchProjects)
	return m.MockSearchProjects(organization)
}

func (m *MockRemote) GetProject(_ context.Context, organization, project string) (map[string]interface{}, error) {
	m.Calls = append(m.Calls, OpGetProject)
	return m.MockGetProject(organization, project)
}

func (m *MockRemote) CreateProject(_ context.Context, organization, name, project, visibility string) (map[string]interface{}, error) {
	m.Calls = append(m.Calls, OpCreateProject)
	return m.MockCreateProject(organization, name, project, visibility)
}

func (m *MockRemote) UpdateProjectVisibility(_ context.Context, project, visibility string) error {
	m.Calls = append(m.Calls, OpUpdateVisibility)
	return m.MockUpdateVisibility(project, visibility)
}

func (m *MockRemote) SearchProjectBranches(_ context.Context, project string) (map[string]interface{}, error) {
	m.Calls = append(m.Calls, OpSearchProjectBranches)
	return m.MockSearchProjectBranches(project)
}

func (m *MockRemote) RenameProjectBranch(_ context.Context, project, name string) error {
	m.Calls = append(m.Calls, OpRenameProjectBranch)
	return m.MockRenameProjectBranch(project, name)
}

func (m *MockRemote) DeleteProjectBranch(_ context.Context, project, branch string) error {
	m.Calls = append(m.Calls, OpDeleteProjectBranch)
	return m.MockDeleteProjectBranch(project, branch)
}

func factory(m *MockRemote, got *sonar.SonarApiOptions) RemoteFactory {
	return func(o sonar.SonarApiOptions) Remote {
		if got != nil {
			*got = o
		}
		return m
	}
}

func component(key string) map[string]interface{} {
	return map[string]interface{}{"key": key, "name": key, "qualifier": "TRK", "organization": "my-org"}
}

func TestNew(t *testing.T) {
	type want struct {
		err           error
		platform      Platform
		url           string
		authenticated bool
		factoryCalled bool
	}

	cases := map[string]struct {
		reason string
		opts   Options
		remote *MockRemote
		want   want
	}{
		"DefaultPlatform": {
			reason: "An empty platform should resolve to SonarQube on localhost",
			opts:   Options{Token: "t"},
			remote: &MockRemote{},
			want:   want{platform: SonarQube, url: DefaultURL, authenticated: true, factoryCalled: true},
		},
		"SonarQubeHostPort": {
			reason: "SonarQube should target the configured host and port",
			opts:   Options{Platform: "sonarqube", Host: "awesome", Port: 1234, Token: "t"},
			remote: &MockRemote{},
			want:   want{platform: SonarQube, url: "http://awesome:1234", authenticated: true, factoryCalled: true},
		},
		"SonarCloud": {
			reason: "SonarCloud should target the fixed cloud endpoint whatever the host",
			opts:   Options{Platform: "sonarcloud", Host: "awesome", Port: 1234, Token: "t"},
			remote: &MockRemote{},
			want:   want{platform: SonarCloud, url: sonar.SonarCloudUrl, authenticated: true, factoryCalled: true},
		},
		"UnsupportedPlatform": {
			reason: "An unknown platform should fail before any client is built",
			opts:   Options{Platform: "invalid"},
			remote: &MockRemote{},
			want:   want{err: &UnsupportedPlatformError{Platform: "invalid"}},
		},
		"NotAuthenticated": {
			reason: "A rejected token should not fail construction",
			opts:   Options{Token: "t"},
			remote: &MockRemote{MockCheckCredentials: func() (map[string]interface{}, error) {
				return map[string]interface{}{"valid": false}, nil
			}},
			want: want{platform: SonarQube, url: DefaultURL, factoryCalled: true},
		},
		"ValidationFails": {
			reason: "A failing credential check should leave the connector unauthenticated",
			opts:   Options{Token: "t"},
			remote: &MockRemote{MockCheckCredentials: func() (map[string]interface{}, error) {
				return nil, errBoom
			}},
			want: want{platform: SonarQube, url: DefaultURL, factoryCalled: true},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			called := false
			f := func(o sonar.SonarApiOptions) Remote {
				called = true
				return tc.remote
			}

			c, err := New(context.Background(), tc.opts, WithRemoteFactory(f))
			if diff := cmp.Diff(tc.want.err, err, test.EquateErrors()); diff != "" {
				t.Fatalf("\n%s\nNew(...): -want error, +got error:\n%s", tc.reason, diff)
			}
			if diff := cmp.Diff(tc.want.factoryCalled, called); diff != "" {
				t.Errorf("\n%s\nNew(...): -want factory call, +got factory call:\n%s", tc.reason, diff)
			}
			if err != nil {
				if c != nil {
					t.Errorf("\n%s\nNew(...): want no connector on error", tc.reason)
				}
				return
			}
			if diff := cmp.Diff(tc.want.platform, c.Platform()); diff != "" {
				t.Errorf("\n%s\nPlatform(): -want, +got:\n%s", tc.reason, diff)
			}
			if diff := cmp.Diff(tc.want.url, c.URL()); diff != "" {
				t.Errorf("\n%s\nURL(): -want, +got:\n%s", tc.reason, diff)
			}
			if diff := cmp.Diff(tc.want.authenticated, c.Authenticated()); diff != "" {
				t.Errorf("\n%s\nAuthenticated(): -want, +got:\n%s", tc.reason, diff)
			}
		})
	}
}

func TestNewReadsTokenFromEnvironment(t *testing.T) {
	t.Setenv(TokenEnv, "from-env")

	var got sonar.SonarApiOptions
	if _, err := New(context.Background(), Options{}, WithRemoteFactory(factory(&MockRemote{}, &got))); err != nil {
		t.Fatalf("New(...): unexpected error: %v", err)
	}
	if got.Key != "from-env" {
		t.Errorf("New(...): want token from %s, got %q", TokenEnv, got.Key)
	}
}

func TestNewDoesNotLogToken(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := &MockRemote{MockCheckCredentials: func() (map[string]interface{}, error) {
		return map[string]interface{}{"valid": false}, nil
	}}

	opts := Options{Token: "super-secret"}
	if _, err := New(context.Background(), opts, WithRemoteFactory(factory(m, nil)), WithLogger(zap.New(core))); err != nil {
		t.Fatalf("New(...): unexpected error: %v", err)
	}

	if logs.FilterMessage("The client is not authenticated").Len() != 1 {
		t.Errorf("New(...): want a warning about missing authentication")
	}
	for _, e := range logs.All() {
		for _, v := range e.ContextMap() {
			if s, ok := v.(string); ok && s == "super-secret" {
				t.Errorf("New(...): token leaked into log line %q", e.Message)
			}
		}
	}
	if cmp.Diff("platform= url=http://localhost:9000 organization=", opts.String()) != "" {
		t.Errorf("Options.String(): got %q", opts.String())
	}
}

func TestListProjects(t *testing.T) {
	type want struct {
		keys          []string
		err           error
		configuration bool
		remote        bool
		calls         []string
	}

	cases := map[string]struct {
		reason string
		opts   Options
		remote *MockRemote
		want   want
	}{
		"CloudWithoutOrganization": {
			reason: "SonarCloud without organization should fail before searching",
			opts:   Options{Platform: "sonarcloud"},
			remote: &MockRemote{},
			want: want{
				err:           &ConfigurationError{Field: "organization", Err: ErrOrganizationRequired},
				configuration: true,
				calls:         []string{OpCheckCredentials},
			},
		},
		"Cloud": {
			reason: "SonarCloud should search within the organization and keep remote order",
			opts:   Options{Platform: "sonarcloud", Organization: "my-org"},
			remote: &MockRemote{MockSearchProjects: func(organization string) ([]map[string]interface{}, error) {
				if organization != "my-org" {
					return nil, errors.Errorf("unexpected organization %q", organization)
				}
				return []map[string]interface{}{component("b"), component("a")}, nil
			}},
			want: want{keys: []string{"b", "a"}, calls: []string{OpCheckCredentials, OpSearchProjects}},
		},
		"SonarQube": {
			reason: "SonarQube should not send an organization",
			opts:   Options{Organization: "ignored"},
			remote: &MockRemote{MockSearchProjects: func(organization string) ([]map[string]interface{}, error) {
				if organization != "" {
					return nil, errors.Errorf("unexpected organization %q", organization)
				}
				return []map[string]interface{}{component("a")}, nil
			}},
			want: want{keys: []string{"a"}, calls: []string{OpCheckCredentials, OpSearchProjects}},
		},
		"RemoteError": {
			reason: "A remote failure should be a RemoteOperationError",
			opts:   Options{},
			remote: &MockRemote{MockSearchProjects: func(string) ([]map[string]interface{}, error) {
				return nil, errBoom
			}},
			want: want{
				err:    &RemoteOperationError{Operation: OpSearchProjects, Err: errBoom},
				remote: true,
				calls:  []string{OpCheckCredentials, OpSearchProjects},
			},
		},
		"UnexpectedRecord": {
			reason: "A record that is not a component should be skipped without dropping the others",
			opts:   Options{},
			remote: &MockRemote{MockSearchProjects: func(string) ([]map[string]interface{}, error) {
				return []map[string]interface{}{component("a"), {"key": "b", "name": "b"}, component("c")}, nil
			}},
			want: want{keys: []string{"a", "c"}, calls: []string{OpCheckCredentials, OpSearchProjects}},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c, err := New(context.Background(), tc.opts, WithRemoteFactory(factory(tc.remote, nil)))
			if err != nil {
				t.Fatalf("New(...): unexpected error: %v", err)
			}

			got, err := c.ListProjects(context.Background())
			if diff := cmp.Diff(tc.want.err, err, test.EquateErrors()); diff != "" {
				t.Errorf("\n%s\nListProjects(...): -want error, +got error:\n%s", tc.reason, diff)
			}
			if got := IsConfiguration(err); got != tc.want.configuration {
				t.Errorf("\n%s\nIsConfiguration(...): want %t, got %t", tc.reason, tc.want.configuration, got)
			}
			if got := IsRemote(err); got != tc.want.remote {
				t.Errorf("\n%s\nIsRemote(...): want %t, got %t", tc.reason, tc.want.remote, got)
			}
			var keys []string
			for _, p := range got {
				keys = append(keys, p.Key())
			}
			if diff := cmp.Diff(tc.want.keys, keys); diff != "" {
				t.Errorf("\n%s\nListProjects(...): -want, +got:\n%s", tc.reason, diff)
			}
			if diff := cmp.Diff(tc.want.calls, tc.remote.Calls); diff != "" {
				t.Errorf("\n%s\nListProjects(...): -want calls, +got calls:\n%s", tc.reason, diff)
			}
		})
	}
}

func TestListProjectsLogsUnexpectedRecord(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := &MockRemote{MockSearchProjects: func(string) ([]map[string]interface{}, error) {
		return []map[string]interface{}{component("a"), {"key": "b", "name": "b"}}, nil
	}}

	c, err := New(context.Background(), Options{}, WithRemoteFactory(factory(m, nil)), WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("New(...): unexpected error: %v", err)
	}
	if _, err := c.ListProjects(context.Background()); err != nil {
		t.Fatalf("ListProjects(...): unexpected error: %v", err)
	}

	skipped := logs.FilterMessage("Skipping unexpected project record").FilterField(zap.Int("index", 1))
	if skipped.Len() != 1 {
		t.Errorf("ListProjects(...): want the skipped record to be logged, got %v", logs.All())
	}
}

func TestListProjectBranches(t *testing.T) {
	m := &MockRemote{MockSearchProjectBranches: func(project string) (map[string]interface{}, error) {
		return map[string]interface{}{"branches": []interface{}{
			map[string]interface{}{"name": "master", "isMain": true, "type": "LONG"},
			map[string]interface{}{"name": "main", "isMain": false, "type": "LONG"},
		}}, nil
	}}
	c, err := New(context.Background(), Options{}, WithRemoteFactory(factory(m, nil)))
	if err != nil {
		t.Fatalf("New(...): unexpected error: %v", err)
	}

	got, err := c.ListProjectBranches(context.Background(), "p")
	if err != nil {
		t.Fatalf("ListProjectBranches(...): unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Name() != "master" || !got[0].IsMain() || got[1].IsMain() {
		t.Errorf("ListProjectBranches(...): got %v", got)
	}

	m.MockSearchProjectBranches = func(string) (map[string]interface{}, error) {
		return map[string]interface{}{"branches": []interface{}{}}, nil
	}
	got, err = c.ListProjectBranches(context.Background(), "p")
	if err != nil || len(got) != 0 {
		t.Errorf("ListProjectBranches(...): want an empty list, got %v, %v", got, err)
	}
}

func TestBranchMutations(t *testing.T) {
	var got []string
	m := &MockRemote{
		MockRenameProjectBranch: func(project, name string) error {
			got = append(got, "rename "+project+" "+name)
			return nil
		},
		MockDeleteProjectBranch: func(project, branch string) error {
			got = append(got, "delete "+project+" "+branch)
			return errBoom
		},
	}
	c, _ := New(context.Background(), Options{}, WithRemoteFactory(factory(m, nil)))

	if err := c.RenameMainBranch(context.Background(), "p", "main"); err != nil {
		t.Errorf("RenameMainBranch(...): unexpected error: %v", err)
	}
	err := c.DeleteBranch(context.Background(), "p", "main")
	if diff := cmp.Diff(&RemoteOperationError{Operation: OpDeleteProjectBranch, Err: errBoom}, err, test.EquateErrors()); diff != "" {
		t.Errorf("DeleteBranch(...): -want error, +got error:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"rename p main", "delete p main"}, got); diff != "" {
		t.Errorf("-want, +got:\n%s", diff)
	}
}

func TestSearchAndCreateProject(t *testing.T) {
	m := &MockRemote{
		MockGetProject: func(organization, project string) (map[string]interface{}, error) {
			if project == "exists" {
				return component(project), nil
			}
			return nil, nil
		},
		MockCreateProject: func(organization, name, project, visibility string) (map[string]interface{}, error) {
			c := component(project)
			c["name"] = name
			c["visibility"] = visibility
			c["organization"] = organization
			return c, nil
		},
	}
	c, _ := New(context.Background(), Options{Platform: "sonarcloud", Organization: "my-org"}, WithRemoteFactory(factory(m, nil)))
	if c.Organization() != "my-org" {
		t.Errorf("Organization(): want my-org, got %q", c.Organization())
	}

	p, err := c.SearchProject(context.Background(), "exists")
	if err != nil || p == nil || p.Key() != "exists" {
		t.Errorf("SearchProject(exists): got %v, %v", p, err)
	}
	p, err = c.SearchProject(context.Background(), "missing")
	if err != nil || p != nil {
		t.Errorf("SearchProject(missing): want nil, nil, got %v, %v", p, err)
	}

	p, err = c.CreateProject(context.Background(), "new", "", "private")
	if err != nil {
		t.Fatalf("CreateProject(...): unexpected error: %v", err)
	}
	if p.Name() != "new" || p.Visibility() != "private" || p.Organization() != "my-org" {
		t.Errorf("CreateProject(...): got %v", p)
	}

	var updated []string
	m.MockUpdateVisibility = func(project, visibility string) error {
		updated = append(updated, project+" "+visibility)
		return nil
	}
	if err := c.UpdateProjectVisibility(context.Background(), "exists", "public"); err != nil {
		t.Errorf("UpdateProjectVisibility(...): unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"exists public"}, updated); diff != "" {
		t.Errorf("UpdateProjectVisibility(...): -want, +got:\n%s", diff)
	}
}

func TestCall(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := &MockRemote{}
	c, _ := New(context.Background(), Options{}, WithRemoteFactory(factory(m, nil)), WithLogger(zap.New(core)))

	got, err := c.Call(context.Background(), "unknown", nil)
	if err != nil || got != nil {
		t.Errorf("Call(unknown): want nil, nil, got %v, %v", got, err)
	}
	got, err = c.Call(context.Background(), "auth.unknownMethod", Args{"x": "y"})
	if err != nil || got != nil {
		t.Errorf("Call(auth.unknownMethod): want nil, nil, got %v, %v", got, err)
	}

	warnings := logs.FilterMessage("Method not found").FilterField(zap.String("operation", "unknown"))
	if warnings.Len() != 1 || warnings.All()[0].Level != zapcore.WarnLevel {
		t.Errorf("Call(unknown): want one warning, got %v", warnings.All())
	}
	if diff := cmp.Diff([]string{OpCheckCredentials}, m.Calls); diff != "" {
		t.Errorf("Call(unknown): -want calls, +got calls:\n%s", diff)
	}

	got, err = c.Call(context.Background(), OpCheckCredentials, nil)
	if err != nil {
		t.Fatalf("Call(%s): unexpected error: %v", OpCheckCredentials, err)
	}
	if diff := cmp.Diff(map[string]interface{}{"valid": true}, got); diff != "" {
		t.Errorf("Call(%s): -want, +got:\n%s", OpCheckCredentials, diff)
	}
}

func TestOperations(t *testing.T) {
	want := []string{
		OpCheckCredentials, OpLogoutUser,
		OpDeleteProjectBranch, OpRenameProjectBranch, OpSearchProjectBranches,
		OpCreateProject, OpGetProject, OpSearchProjects, OpUpdateVisibility,
	}
	if diff := cmp.Diff(want, Operations()); diff != "" {
		t.Errorf("Operations(): -want, +got:\n%s", diff)
	}
}

func TestClose(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := &MockRemote{MockLogoutUser: func() error { return errBoom }}
	c, _ := New(context.Background(), Options{}, WithRemoteFactory(factory(m, nil)), WithLogger(zap.New(core)))

	c.Close(context.Background())

	if diff := cmp.Diff([]string{OpCheckCredentials, OpLogoutUser}, m.Calls); diff != "" {
		t.Errorf("Close(): -want calls, +got calls:\n%s", diff)
	}
	if logs.FilterMessage("Cannot logout").Len() != 1 {
		t.Errorf("Close(): want the logout failure to be logged")
	}
}

func TestRequireOrganization(t *testing.T) {
	cases := map[string]struct {
		opts Options
		want error
	}{
		"CloudMissing": {opts: Options{Platform: "sonarcloud"}, want: &ConfigurationError{Field: "organization", Err: ErrOrganizationRequired}},
		"CloudSet":     {opts: Options{Platform: "sonarcloud", Organization: "o"}},
		"SonarQube":    {opts: Options{Platform: "sonarqube"}},
		"Invalid":      {opts: Options{Platform: "invalid"}, want: &UnsupportedPlatformError{Platform: "invalid"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, tc.opts.RequireOrganization(), test.EquateErrors()); diff != "" {
				t.Errorf("RequireOrganization(): -want, +got:\n%s", diff)
			}
		})
	}
}
