package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"policydesk/internal/audit"
	"policydesk/internal/intake"
	"policydesk/internal/policy/models"
	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
	"policydesk/pkg/platform/sentinel"
	"policydesk/pkg/requestcontext"
)

// maxSerialAttempts bounds the search for an unused serial number.
const maxSerialAttempts = 10

// CreateOptions controls how a new application enters the lifecycle.
type CreateOptions struct {
	// Submit requires full validation and starts the policy in Pending
	// Vetting. Otherwise the application is saved as an Incomplete Policy
	// draft after partial validation.
	Submit bool
}

// CreateResult is a newly created policy and any non-blocking findings.
type CreateResult struct {
	Policy   *models.Policy   `json:"policy"`
	Warnings []intake.Warning `json:"warnings,omitempty"`
}

// ValidateApplication checks payload without persisting anything.
func (s *Service) ValidateApplication(ctx context.Context, payload intake.Payload, partial bool) (*intake.Result, error) {
	ctx, span := s.startSpan(ctx, "policy.validate", attribute.Bool("intake.partial", partial))
	start := time.Now()
	res, err := s.validatePayload(ctx, payload, partial)
	if s.metrics != nil {
		s.metrics.ObserveValidate(start)
	}
	endSpan(span, err)
	return res, err
}

func (s *Service) validatePayload(ctx context.Context, payload intake.Payload, partial bool) (*intake.Result, error) {
	var (
		res *intake.Result
		err error
	)
	if partial {
		res, err = s.validator.ValidatePartial(ctx, payload)
	} else {
		res, err = s.validator.Validate(ctx, payload)
	}
	if err != nil && s.metrics != nil && dErrors.HasCode(err, dErrors.CodeValidation) {
		s.metrics.IncrementValidationFailure()
	}
	return res, err
}

// CreatePolicy validates payload and stores it under a freshly allocated
// serial number. Only Business Development may capture applications.
func (s *Service) CreatePolicy(ctx context.Context, payload intake.Payload, opts CreateOptions) (*CreateResult, error) {
	ctx, span := s.startSpan(ctx, "policy.create", attribute.Bool("policy.submit", opts.Submit))
	res, err := s.createPolicy(ctx, payload, opts)
	endSpan(span, err)
	return res, err
}

func (s *Service) createPolicy(ctx context.Context, payload intake.Payload, opts CreateOptions) (*CreateResult, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Department != id.DepartmentBusinessDevelopment {
		return nil, dErrors.New(dErrors.CodeForbidden, "only Business Development may capture applications")
	}
	validated, err := s.validatePayload(ctx, payload, !opts.Submit)
	if err != nil {
		return nil, err
	}
	status := models.StatusIncompletePolicy
	if opts.Submit {
		status = models.StatusPendingVetting
	}
	p, err := s.persistNew(ctx, validated, status, actor)
	if err != nil {
		return nil, err
	}
	return &CreateResult{Policy: p, Warnings: validated.Warnings}, nil
}

// UpdateApplication replaces the application of a draft or of a policy
// returned for rework. The payload is checked partially; full validation runs
// again on submission.
func (s *Service) UpdateApplication(ctx context.Context, policyID id.PolicyID, payload intake.Payload) (*CreateResult, error) {
	ctx, span := s.startSpan(ctx, "policy.update_application", attribute.Int64("policy.id", int64(policyID)))
	res, err := s.updateApplication(ctx, policyID, payload)
	endSpan(span, err)
	return res, err
}

func (s *Service) updateApplication(ctx context.Context, policyID id.PolicyID, payload intake.Payload) (*CreateResult, error) {
	if err := requirePolicyID(policyID); err != nil {
		return nil, err
	}
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Department != id.DepartmentBusinessDevelopment {
		return nil, dErrors.New(dErrors.CodeForbidden, "only Business Development may amend applications")
	}
	validated, err := s.validatePayload(ctx, payload, true)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)

	p, err := s.policies.Execute(ctx, policyID,
		func(p *models.Policy) error {
			return p.CanAmendApplication(actor)
		},
		func(p *models.Policy) {
			p.AmendApplication(*validated.Application, validated.Derived, actor, now)
		},
	)
	if err != nil {
		return nil, wrapPolicyErr(err)
	}
	s.logAudit(ctx, auditEventFor(audit.ActionApplicationUpdated, p, actor))
	return &CreateResult{Policy: p, Warnings: validated.Warnings}, nil
}

// persistNew allocates a serial and stores the policy. Serials already taken
// (e.g. by imported records) are skipped.
func (s *Service) persistNew(ctx context.Context, validated *intake.Result, status models.OnboardingStatus, actor models.Actor) (*models.Policy, error) {
	now := requestcontext.Now(ctx)
	for attempt := 0; attempt < maxSerialAttempts; attempt++ {
		serial, err := s.serials.Next(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate serial number")
		}
		taken, err := s.policies.SerialExists(ctx, serial)
		if err != nil {
			return nil, wrapPolicyErr(err)
		}
		if taken {
			continue
		}
		p, err := models.NewPolicy(serial, *validated.Application, validated.Derived, status, actor, now)
		if err != nil {
			return nil, err
		}
		err = s.policies.Create(ctx, p)
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			continue
		}
		if err != nil {
			return nil, wrapPolicyErr(err)
		}
		if s.metrics != nil {
			s.metrics.IncrementPolicyCreated(string(status))
		}
		ev := auditEventFor(audit.ActionPolicyCreated, p, actor)
		ev.Details = p.Activity[0].Action
		s.logAudit(ctx, ev)
		return p, nil
	}
	return nil, dErrors.New(dErrors.CodeConflict, "could not allocate an unused serial number")
}
