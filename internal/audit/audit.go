// Package audit applies the branch rule to every project of an organization.
package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/chicoribas/sonar-compliance/internal/response"
	"github.com/chicoribas/sonar-compliance/internal/rules"
)

// Service is the part of the connector an audit uses.
type Service interface {
	ListProjects(ctx context.Context) ([]*response.Component, error)
	rules.BranchService
}

// Outcome of auditing one project.
type Outcome string

const (
	Compliant  Outcome = "Compliant"
	Remediated Outcome = "Remediated"
	// Pending projects are not compliant and were left untouched by a dry run.
	Pending Outcome = "Pending"
	Failed  Outcome = "Failed"
)

// Report summarises an audit. Project keys are sorted.
type Report struct {
	Compliant  []string
	Remediated []string
	Pending    []string
	Failed     map[string]error

	mu sync.Mutex
}

func (r *Report) record(key string, o Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch o {
	case Compliant:
		r.Compliant = append(r.Compliant, key)
	case Remediated:
		r.Remediated = append(r.Remediated, key)
	case Pending:
		r.Pending = append(r.Pending, key)
	case Failed:
		r.Failed[key] = err
	}
}

// Total is the number of audited projects.
func (r *Report) Total() int {
	return len(r.Compliant) + len(r.Remediated) + len(r.Pending) + len(r.Failed)
}

// Err aggregates the per project failures, or returns nil.
func (r *Report) Err() error {
	keys := make([]string, 0, len(r.Failed))
	for k := range r.Failed {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	errs := make([]error, 0, len(keys))
	for _, k := range keys {
		errs = append(errs, errors.Wrap(r.Failed[k], k))
	}
	return utilerrors.NewAggregate(errs)
}

// An Option configures an Auditor.
type Option func(*Auditor)

func WithLogger(l *zap.Logger) Option {
	return func(a *Auditor) { a.log = l }
}

// WithConcurrency audits up to n projects at once. Calls for one project are
// always sequential.
func WithConcurrency(n int) Option {
	return func(a *Auditor) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithDryRun reports non compliant projects without remediating them.
func WithDryRun(dryRun bool) Option {
	return func(a *Auditor) { a.dryRun = dryRun }
}

// An Auditor runs the branch rule over all projects.
type Auditor struct {
	service     Service
	log         *zap.Logger
	concurrency int
	dryRun      bool
}

func New(s Service, opts ...Option) *Auditor {
	a := &Auditor{
		service:     s,
		log:         zap.NewNop(),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run audits every project. Only a failure to list the projects is returned;
// per project failures are logged and collected in the report.
func (a *Auditor) Run(ctx context.Context) (*Report, error) {
	projects, err := a.service.ListProjects(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot list projects")
	}
	a.log.Info("Auditing projects", zap.Int("projects", len(projects)), zap.Bool("dryRun", a.dryRun))

	report := &Report{Failed: map[string]error{}}

	var g errgroup.Group
	g.SetLimit(a.concurrency)
	for _, p := range projects {
		p := p
		g.Go(func() error {
			o, err := a.audit(ctx, p)
			report.record(p.Key(), o, err)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Compliant)
	sort.Strings(report.Remediated)
	sort.Strings(report.Pending)

	a.log.Info("Audit finished",
		zap.Int("compliant", len(report.Compliant)),
		zap.Int("remediated", len(report.Remediated)),
		zap.Int("pending", len(report.Pending)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (a *Auditor) audit(ctx context.Context, p *response.Component) (Outcome, error) {
	log := a.log.With(zap.String("project", p.Key()))

	rule, err := rules.NewBranchCompliance(ctx, p, a.service, a.log)
	if err != nil {
		log.Error("Cannot evaluate project", zap.Error(err))
		return Failed, err
	}
	log.Debug("Branches listed", zap.Int("branches", len(rule.Branches())))

	if rule.Compliant() {
		log.Info("Project is branch compliant")
		return Compliant, nil
	}

	if a.dryRun {
		log.Info("Project is not branch compliant, skipping remediation")
		return Pending, nil
	}

	log.Info("Project is not branch compliant, remediating")
	if err := rule.Remediate(ctx); err != nil {
		log.Error("Cannot remediate project", zap.Error(err))
		return Failed, err
	}
	return Remediated, nil
}
