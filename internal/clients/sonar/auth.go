package sonar

import (
	"context"
	"net/http"
)

type AuthClient struct {
	sonarApi SonarApi
}

func NewAuthClient(options SonarApiOptions) AuthClient {
	return AuthClient{
		sonarApi: NewSonarApi(options),
	}
}

// Check credentials
// https://sonarcloud.io/web_api/api/authentication/validate
func (authClient AuthClient) CheckCredentials(ctx context.Context) (map[string]interface{}, error) {
	var response map[string]interface{}
	if err := authClient.sonarApi.Do(ctx, http.MethodGet, "/api/authentication/validate", nil, &response); err != nil {
		return nil, err
	}

	return response, nil
}

// Logout a user
// https://sonarcloud.io/web_api/api/authentication/logout
func (authClient AuthClient) LogoutUser(ctx context.Context) error {
	return authClient.sonarApi.Do(ctx, http.MethodPost, "/api/authentication/logout", nil, nil)
}
