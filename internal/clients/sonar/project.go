package sonar

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var ErrProjectNotFound = errors.New("Project not found")

// Largest page size accepted by /api/projects/search.
const MaxPageSize = 500

type ProjectPage struct {
	Paging   SonarPaging              `json:"paging"`
	Projects []map[string]interface{} `json:"components"`
}

type ProjectClient struct {
	sonarApi SonarApi
}

// Creates a new Project Client
func NewProjectClient(options SonarApiOptions) ProjectClient {
	return ProjectClient{
		sonarApi: NewSonarApi(options),
	}
}

type SearchOptions struct {
	// List of project keys
	Projects []string
	// 1-based page number
	Page int
	// Page size. Must be greater than 0 and less or equal than 500
	PageSize int
}

// Create new project. Organization is only required by SonarCloud and
// visibility falls back to the organization default when empty.
// https://sonarcloud.io/web_api/api/projects/create
func (projectClient ProjectClient) Create(ctx context.Context, organization string, name string, project string, visibility string) (map[string]interface{}, error) {
	params := url.Values{}
	if organization != "" {
		params.Add("organization", organization)
	}
	params.Add("name", name)
	params.Add("project", project)
	if visibility != "" {
		params.Add("visibility", visibility)
	}

	var response map[string]map[string]interface{}
	if err := projectClient.sonarApi.Do(ctx, http.MethodPost, "/api/projects/create", params, &response); err != nil {
		return nil, err
	}

	return response["project"], nil
}

// Search calls the "/api/projects/search" endpoint
// https://sonarcloud.io/web_api/api/projects/search
func (projectClient ProjectClient) Search(ctx context.Context, organization string, options SearchOptions) (ProjectPage, error) {
	params := url.Values{}
	if organization != "" {
		params.Add("organization", organization)
	}
	if len(options.Projects) > 0 {
		params.Add("projects", strings.Join(options.Projects, ","))
	}
	if options.Page > 0 {
		params.Add("p", strconv.Itoa(options.Page))
	}
	if options.PageSize > 0 {
		params.Add("ps", strconv.Itoa(options.PageSize))
	}

	var page ProjectPage
	if err := projectClient.sonarApi.Do(ctx, http.MethodGet, "/api/projects/search", params, &page); err != nil {
		return ProjectPage{}, err
	}

	return page, nil
}

// SearchProjects walks every page of the search endpoint and returns the
// components in the order the server produced them.
func (projectClient ProjectClient) SearchProjects(ctx context.Context, organization string) ([]map[string]interface{}, error) {
	var projects []map[string]interface{}

	for p := 1; ; p++ {
		page, err := projectClient.Search(ctx, organization, SearchOptions{Page: p, PageSize: MaxPageSize})
		if err != nil {
			return nil, err
		}
		projects = append(projects, page.Projects...)

		if len(page.Projects) == 0 || len(projects) >= page.Paging.Total {
			return projects, nil
		}
	}
}

// Get a single sonar project by project key
func (projectClient ProjectClient) GetByProjectKey(ctx context.Context, organization string, project string) (map[string]interface{}, error) {
	projectPage, err := projectClient.Search(ctx, organization, SearchOptions{Projects: []string{project}})
	if err != nil {
		return nil, err
	}

	if len(projectPage.Projects) == 0 {
		return nil, ErrProjectNotFound
	}

	return projectPage.Projects[0], nil
}

// Update project visibility
// https://sonarcloud.io/web_api/api/projects/update_visibility
func (projectClient ProjectClient) UpdateVisibility(ctx context.Context, project string, visibility string) error {
	params := url.Values{}
	params.Add("project", project)
	params.Add("visibility", visibility)

	return projectClient.sonarApi.Do(ctx, http.MethodPost, "/api/projects/update_visibility", params, nil)
}
