package sonar

// Client groups the web api areas used by this tool. SonarQube and SonarCloud
// only differ in the base url and in the organization parameter.
type Client struct {
	Auth            AuthClient
	Projects        ProjectClient
	ProjectBranches BranchClient
}

func NewClient(options SonarApiOptions) *Client {
	return &Client{
		Auth:            NewAuthClient(options),
		Projects:        NewProjectClient(options),
		ProjectBranches: NewBranchClient(options),
	}
}
