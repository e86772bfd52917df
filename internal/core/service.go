// Package core exposes the transactional service facade over the collection
// domain: scope resolution, schema registry, entry lifecycle, completion
// aggregation, and the approval pipeline.
package core

import (
	"collectcore/pkg/domain"
	"context"

	"go.uber.org/zap"
)

// Service exposes higher-level transactional operations over a persistent
// store. All operations take the acting principal explicitly and resolve its
// scope before touching state.
type Service struct {
	store   PersistentStore
	log     *zap.Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	retry   RetryPolicy
}

// Option customizes service construction.
type Option func(*Service)

// WithLogger installs a structured logger; defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithAuditRecorder installs an audit sink for every operation outcome.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// WithMetricsRecorder installs a metrics sink for operation timings.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *Service) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer installs a tracer wrapping every operation in a span.
func WithTracer(tracer Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithRetryPolicy overrides the transient storage retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *Service) { s.retry = policy }
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		log:     zap.NewNop(),
		audit:   noopAudit{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
		retry:   DefaultRetryPolicy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine. Used in tests and ephemeral deployments.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *Service {
	return NewService(newMemoryStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// runInTransaction executes fn transactionally with the retry policy applied
// to transient storage failures.
func (s *Service) runInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	var res Result
	err := s.retry.Do(ctx, func() error {
		var err error
		res, err = s.store.RunInTransaction(ctx, fn)
		return err
	})
	return res, err
}

// view executes fn against a read-only snapshot with retries on transient
// storage failures.
func (s *Service) view(ctx context.Context, fn func(view TransactionView) error) error {
	return s.retry.Do(ctx, func() error {
		return s.store.View(ctx, fn)
	})
}

// resolveScope resolves the principal's scope within a snapshot.
func (s *Service) resolveScope(view TransactionView, principal Principal) (Scope, error) {
	return ResolveScope(view, principal)
}

// SeedOrgNodes loads org tree nodes into the store. The tree is owned by an
// external collaborator; the core only ingests it.
func (s *Service) SeedOrgNodes(ctx context.Context, nodes []OrgNode) (Result, error) {
	var res Result
	err := s.instrument(ctx, "seed_org_nodes", "", func(ctx context.Context) (string, error) {
		var err error
		res, err = s.runInTransaction(ctx, func(tx Transaction) error {
			for _, node := range nodes {
				if _, err := tx.SeedOrgNode(node); err != nil {
					return err
				}
			}
			return nil
		})
		return "", err
	})
	return res, err
}

// ListOrgNodes returns the full org tree.
func (s *Service) ListOrgNodes(ctx context.Context) ([]OrgNode, error) {
	var nodes []OrgNode
	err := s.view(ctx, func(view TransactionView) error {
		nodes = view.ListOrgNodes()
		return nil
	})
	return nodes, err
}

func notFound(entity domain.EntityType, id string) error {
	return &domain.NotFoundError{Entity: entity, ID: id}
}
