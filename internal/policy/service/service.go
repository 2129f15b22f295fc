package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"policydesk/internal/audit"
	"policydesk/internal/intake"
	policymetrics "policydesk/internal/policy/metrics"
	"policydesk/internal/policy/models"
	policystore "policydesk/internal/policy/store/policy"
	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
	"policydesk/pkg/platform/sentinel"
	"policydesk/pkg/requestcontext"
)

// PolicyStore persists policy aggregates. Execute must hold the record
// exclusively (mutex, row lock or version check) across validate and mutate.
type PolicyStore interface {
	Create(ctx context.Context, p *models.Policy) error
	FindByID(ctx context.Context, policyID id.PolicyID) (*models.Policy, error)
	SerialExists(ctx context.Context, serial string) (bool, error)
	List(ctx context.Context, filter policystore.ListFilter) ([]*models.Policy, error)
	Execute(ctx context.Context, policyID id.PolicyID, validate func(*models.Policy) error, mutate func(*models.Policy)) (*models.Policy, error)
}

// SerialAllocator issues candidate serial numbers.
type SerialAllocator interface {
	Next(ctx context.Context) (string, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates intake validation, the onboarding lifecycle and the
// premium ledger.
type Service struct {
	policies       PolicyStore
	serials        SerialAllocator
	validator      *intake.Validator
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *policymetrics.Metrics
	tracer         trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *policymetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithValidator(v *intake.Validator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service.
func New(policies PolicyStore, serials SerialAllocator, opts ...Option) *Service {
	s := &Service{policies: policies, serials: serials}
	for _, opt := range opts {
		opt(s)
	}
	if s.validator == nil {
		s.validator = intake.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("policydesk/policy")
	}
	return s
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// actorFrom returns the authenticated staff member or an unauthorized error.
func actorFrom(ctx context.Context) (models.Actor, error) {
	a := requestcontext.Actor(ctx)
	if a.UserID == "" || !a.Department.IsValid() {
		return models.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "staff identity with a department is required")
	}
	return models.Actor{UserID: a.UserID, Name: a.Name, Department: a.Department}, nil
}

func requirePolicyID(policyID id.PolicyID) error {
	if policyID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "policy id is required")
	}
	return nil
}

// wrapPolicyErr translates store sentinels into domain codes. Errors that
// already carry a code pass through unchanged.
func wrapPolicyErr(err error) error {
	var de *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "policy not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "policy was modified concurrently; reload and retry")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "policy number is already assigned to another policy")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "policy store failure")
	}
}

// logAudit writes an audit log line and forwards the event to the publisher.
// Publishing failures are logged, never returned: the policy's own activity
// log is the record of truth.
func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.Device = requestcontext.Device(ctx)
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	s.logger.InfoContext(ctx, event.Action,
		"log_type", "audit",
		"request_id", event.RequestID,
		"policy_id", event.PolicyID,
		"user_id", event.UserID,
		"department", event.Department,
		"event", event.Event,
		"to_status", event.ToStatus,
	)
	if s.auditPublisher == nil {
		return
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit publish failed",
			"request_id", event.RequestID,
			"action", event.Action,
			"error", err,
		)
	}
}

func auditEventFor(action string, p *models.Policy, actor models.Actor) audit.Event {
	return audit.Event{
		Action:       action,
		PolicyID:     int64(p.ID),
		SerialNumber: p.SerialNumber,
		ToStatus:     string(p.OnboardingStatus),
		UserID:       actor.UserID,
		Department:   string(actor.Department),
	}
}

// GetPolicy returns a single policy.
func (s *Service) GetPolicy(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	if err := requirePolicyID(policyID); err != nil {
		return nil, err
	}
	p, err := s.policies.FindByID(ctx, policyID)
	if err != nil {
		return nil, wrapPolicyErr(err)
	}
	return p, nil
}

// ListPolicies returns policies, optionally filtered by onboarding status.
func (s *Service) ListPolicies(ctx context.Context, filter policystore.ListFilter) ([]*models.Policy, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown onboarding status")
	}
	policies, err := s.policies.List(ctx, filter)
	if err != nil {
		return nil, wrapPolicyErr(err)
	}
	return policies, nil
}
