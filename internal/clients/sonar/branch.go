package sonar

import (
	"context"
	"net/http"
	"net/url"
)

type BranchClient struct {
	sonarApi SonarApi
}

func NewBranchClient(options SonarApiOptions) BranchClient {
	return BranchClient{
		sonarApi: NewSonarApi(options),
	}
}

// List the branches of a project. The answer holds a "branches" array.
// https://sonarcloud.io/web_api/api/project_branches/list
func (branchClient BranchClient) SearchProjectBranches(ctx context.Context, project string) (map[string]interface{}, error) {
	params := url.Values{}
	params.Add("project", project)

	var response map[string]interface{}
	if err := branchClient.sonarApi.Do(ctx, http.MethodGet, "/api/project_branches/list", params, &response); err != nil {
		return nil, err
	}

	return response, nil
}

// Rename the main branch of a project
// https://sonarcloud.io/web_api/api/project_branches/rename
func (branchClient BranchClient) RenameProjectBranch(ctx context.Context, project string, name string) error {
	params := url.Values{}
	params.Add("project", project)
	params.Add("name", name)

	return branchClient.sonarApi.Do(ctx, http.MethodPost, "/api/project_branches/rename", params, nil)
}

// Delete a non-main branch of a project
// https://sonarcloud.io/web_api/api/project_branches/delete
func (branchClient BranchClient) DeleteProjectBranch(ctx context.Context, project string, branch string) error {
	params := url.Values{}
	params.Add("project", project)
	params.Add("branch", branch)

	return branchClient.sonarApi.Do(ctx, http.MethodPost, "/api/project_branches/delete", params, nil)
}
