package connector

import (
	"context"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/chicoribas/sonar-compliance/internal/clients/sonar"
)

// Remote is the set of web api operations the connector relies on. Payloads
// are returned as decoded JSON.
type Remote interface {
	CheckCredentials(ctx context.Context) (map[string]interface{}, error)
	LogoutUser(ctx context.Context) error
	SearchProjects(ctx context.Context, organization string) ([]map[string]interface{}, error)
	GetProject(ctx context.Context, organization, project string) (map[string]interface{}, error)
	CreateProject(ctx context.Context, organization, name, project, visibility string) (map[string]interface{}, error)
	UpdateProjectVisibility(ctx context.Context, project, visibility string) error
	SearchProjectBranches(ctx context.Context, project string) (map[string]interface{}, error)
	RenameProjectBranch(ctx context.Context, project, name string) error
	DeleteProjectBranch(ctx context.Context, project, branch string) error
}

// A RemoteFactory builds the Remote for the resolved client options.
type RemoteFactory func(o sonar.SonarApiOptions) Remote

// NewSonarRemote is the default RemoteFactory.
func NewSonarRemote(o sonar.SonarApiOptions) Remote {
	return &sonarRemote{client: sonar.NewClient(o)}
}

type sonarRemote struct {
	client *sonar.Client
}

func (r *sonarRemote) CheckCredentials(ctx context.Context) (map[string]interface{}, error) {
	return r.client.Auth.CheckCredentials(ctx)
}

func (r *sonarRemote) LogoutUser(ctx context.Context) error {
	return r.client.Auth.LogoutUser(ctx)
}

func (r *sonarRemote) SearchProjects(ctx context.Context, organization string) ([]map[string]interface{}, error) {
	return r.client.Projects.SearchProjects(ctx, organization)
}

func (r *sonarRemote) GetProject(ctx context.Context, organization, project string) (map[string]interface{}, error) {
	p, err := r.client.Projects.GetByProjectKey(ctx, organization, project)
	if errors.Is(err, sonar.ErrProjectNotFound) {
		return nil, nil
	}
	return p, err
}

func (r *sonarRemote) CreateProject(ctx context.Context, organization, name, project, visibility string) (map[string]interface{}, error) {
	return r.client.Projects.Create(ctx, organization, name, project, visibility)
}

func (r *sonarRemote) UpdateProjectVisibility(ctx context.Context, project, visibility string) error {
	return r.client.Projects.UpdateVisibility(ctx, project, visibility)
}

func (r *sonarRemote) SearchProjectBranches(ctx context.Context, project string) (map[string]interface{}, error) {
	return r.client.ProjectBranches.SearchProjectBranches(ctx, project)
}

func (r *sonarRemote) RenameProjectBranch(ctx context.Context, project, name string) error {
	return r.client.ProjectBranches.RenameProjectBranch(ctx, project, name)
}

func (r *sonarRemote) DeleteProjectBranch(ctx context.Context, project, branch string) error {
	return r.client.ProjectBranches.DeleteProjectBranch(ctx, project, branch)
}

// Operation names understood by Connector.Call.
const (
	OpCheckCredentials      = "auth.checkCredentials"
	OpLogoutUser            = "auth.logoutUser"
	OpSearchProjects        = "projects.searchProjects"
	OpGetProject            = "projects.getProject"
	OpCreateProject         = "projects.createProject"
	OpUpdateVisibility      = "projects.updateVisibility"
	OpSearchProjectBranches = "projectBranches.searchProjectBranches"
	OpRenameProjectBranch   = "projectBranches.renameProjectBranch"
	OpDeleteProjectBranch   = "projectBranches.deleteProjectBranch"
)

// Args are the named arguments of a Call.
type Args map[string]string

type operation func(ctx context.Context, r Remote, a Args) (interface{}, error)

var operations = map[string]operation{
	OpCheckCredentials: func(ctx context.Context, r Remote, _ Args) (interface{}, error) {
		return r.CheckCredentials(ctx)
	},
	OpLogoutUser: func(ctx context.Context, r Remote, _ Args) (interface{}, error) {
		return nil, r.LogoutUser(ctx)
	},
	OpSearchProjects: func(ctx context.Context, r Remote, a Args) (interface{}, error) {
		return r.SearchProjects(ctx, a["organization"])
	},
	OpGetProject: func(ctx context.Context, r Remote, a Args) (interface{}, error) {
		return r.GetProject(ctx, a["organization"], a["project"])
	},
	OpCreateProject: func(ctx context.Context, r Remote, a Args) (interface{}, error) {
		return r.CreateProject(ctx, a["organization"], a["name"], a["project"], a["visibility"])
	},
	OpUpdateVisibility: func(ctx context.Context, r Remote, a Args) (interface{}, error) {
		return nil, r.UpdateProjectVisibility(ctx, a["project"], a["visibility"])
	},
	OpSearchProjectBranches: func(ctx context.Context, r Remote, a Args) (interface{}, error) {
		return r.SearchProjectBranches(ctx, a["project"])
	},
	OpRenameProjectBranch: func(ctx context.Context, r Remote, a Args) (interface{}, error) {
		return nil, r.RenameProjectBranch(ctx, a["project"], a["name"])
	},
	OpDeleteProjectBranch: func(ctx context.Context, r Remote, a Args) (interface{}, error) {
		return nil, r.DeleteProjectBranch(ctx, a["project"], a["branch"])
	},
}

// Operations lists the names Call can resolve, sorted.
func Operations() []string {
	return sets.StringKeySet(operations).List()
}
