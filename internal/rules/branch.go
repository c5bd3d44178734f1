// Package rules holds the business rules applied to Sonar projects.
package rules

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/chicoribas/sonar-compliance/internal/clients/sonar"
	"github.com/chicoribas/sonar-compliance/internal/response"
)

// DefaultBranch is the name every project's main branch must carry.
const DefaultBranch = "main"

// BranchService is the part of the connector the branch rule uses.
type BranchService interface {
	ListProjectBranches(ctx context.Context, projectKey string) ([]*response.Branch, error)
	DeleteBranch(ctx context.Context, projectKey, branch string) error
	RenameMainBranch(ctx context.Context, projectKey, name string) error
}

// BranchCompliance checks that a project's main branch is named
// DefaultBranch. The branches are read once, when the rule is built.
type BranchCompliance struct {
	project  *response.Component
	service  BranchService
	branches []*response.Branch
	log      *zap.Logger
}

// NewBranchCompliance fetches the branches of project.
func NewBranchCompliance(ctx context.Context, project *response.Component, service BranchService, log *zap.Logger) (*BranchCompliance, error) {
	if log == nil {
		log = zap.NewNop()
	}
	branches, err := service.ListProjectBranches(ctx, project.Key())
	if err != nil {
		return nil, errors.Wrapf(err, "cannot list branches of %s", project.Key())
	}

	return &BranchCompliance{
		project:  project,
		service:  service,
		branches: branches,
		log:      log.With(zap.String("project", project.Key())),
	}, nil
}

// Branches is the snapshot taken by NewBranchCompliance.
func (r *BranchCompliance) Branches() []*response.Branch { return r.branches }

// Main returns the branch the remote designates as main, if any.
func (r *BranchCompliance) Main() *response.Branch {
	for _, b := range r.branches {
		if b.IsMain() {
			return b
		}
	}
	return nil
}

// Compliant is true when a branch named DefaultBranch is the main branch.
func (r *BranchCompliance) Compliant() bool {
	for _, b := range r.branches {
		if b.Name() == DefaultBranch && b.IsMain() {
			return true
		}
	}
	return false
}

// Conflicting is true when a branch named DefaultBranch exists but is not the
// main branch, so the main branch cannot be renamed over it.
func (r *BranchCompliance) Conflicting() bool {
	for _, b := range r.branches {
		if b.Name() == DefaultBranch && !b.IsMain() {
			return true
		}
	}
	return false
}

// Remediate makes the project compliant. A conflicting branch is deleted
// before the main branch is renamed. A conflicting branch the remote no
// longer knows counts as deleted.
func (r *BranchCompliance) Remediate(ctx context.Context) error {
	key := r.project.Key()

	if r.Conflicting() {
		r.log.Info("Deleting already existing main branch", zap.String("branch", DefaultBranch))
		err := r.service.DeleteBranch(ctx, key, DefaultBranch)
		switch {
		case sonar.IsNotFound(err):
			r.log.Info("Branch is already deleted", zap.String("branch", DefaultBranch))
		case err != nil:
			return errors.Wrapf(err, "cannot delete branch %s of %s", DefaultBranch, key)
		}
	}

	from := ""
	if m := r.Main(); m != nil {
		from = m.Name()
	}
	r.log.Info("Renaming main branch", zap.String("from", from), zap.String("to", DefaultBranch))
	return errors.Wrapf(r.service.RenameMainBranch(ctx, key, DefaultBranch), "cannot rename main branch of %s", key)
}
