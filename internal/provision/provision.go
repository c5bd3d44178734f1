// Package provision makes sure a Sonar project exists.
package provision

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chicoribas/sonar-compliance/internal/response"
)

// VisibilityPublic exposes the project analysis to anyone.
const VisibilityPublic = "public"

// ProjectService is the part of the connector provisioning uses.
type ProjectService interface {
	SearchProject(ctx context.Context, key string) (*response.Component, error)
	CreateProject(ctx context.Context, key, name, visibility string) (*response.Component, error)
	UpdateProjectVisibility(ctx context.Context, key, visibility string) error
}

// Request describes the wanted project.
type Request struct {
	Key        string
	Name       string
	Visibility string
}

// EnsureProject returns the project with the requested key, creating it when
// it does not exist. An existing project whose visibility differs from a
// requested one is updated. created reports whether a project was created.
func EnsureProject(ctx context.Context, s ProjectService, req Request, log *zap.Logger) (project *response.Component, created bool, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	if req.Key == "" {
		return nil, false, errors.New("project key cannot be empty")
	}
	log = log.With(zap.String("project", req.Key))

	project, err = s.SearchProject(ctx, req.Key)
	if err != nil {
		return nil, false, errors.Wrapf(err, "cannot search project %s", req.Key)
	}
	if project != nil {
		log.Info("Project already exists")
		if req.Visibility == "" || req.Visibility == project.Visibility() {
			return project, false, nil
		}
		log.Info("Updating project visibility", zap.String("from", project.Visibility()), zap.String("to", req.Visibility))
		if req.Visibility == VisibilityPublic {
			log.Warn("Project will be made public")
		}
		if err := s.UpdateProjectVisibility(ctx, req.Key, req.Visibility); err != nil {
			return nil, false, errors.Wrapf(err, "cannot update visibility of %s", req.Key)
		}
		return project, false, nil
	}

	log.Info("Project not found, creating")
	if req.Visibility == VisibilityPublic {
		log.Warn("Project will be created with public visibility")
	}

	project, err = s.CreateProject(ctx, req.Key, req.Name, req.Visibility)
	if err != nil {
		return nil, false, errors.Wrapf(err, "cannot create project %s", req.Key)
	}
	log.Info("Project has been created", zap.String("visibility", project.Visibility()))
	return project, true, nil
}
