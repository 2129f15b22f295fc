package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"policydesk/internal/audit"
	"policydesk/internal/intake"
	"policydesk/internal/policy/models"
	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
	"policydesk/pkg/requestcontext"
)

// TransitionRequest is a staff action on a policy's onboarding status.
type TransitionRequest struct {
	Event   string
	Remarks string
	Terms   *models.AcceptanceTerms
}

// revalidatedEvents re-check the stored application in full mode before the
// policy re-enters the vetting queue.
var revalidatedEvents = []models.Event{models.EventSubmit, models.EventRequestFirstPremium}

// Transition applies a lifecycle event. Validation of a stored draft runs
// inside the store's critical section so the checked application is the one
// being submitted.
func (s *Service) Transition(ctx context.Context, policyID id.PolicyID, req TransitionRequest) (*models.Policy, error) {
	ctx, span := s.startSpan(ctx, "policy.transition",
		attribute.Int64("policy.id", int64(policyID)),
		attribute.String("policy.event", req.Event),
	)
	start := time.Now()
	p, err := s.transition(ctx, policyID, req)
	if s.metrics != nil {
		s.metrics.ObserveTransition(start)
		if err != nil {
			s.metrics.IncrementTransitionRejected(string(dErrors.CodeOf(err)))
		}
	}
	endSpan(span, err)
	return p, err
}

func (s *Service) transition(ctx context.Context, policyID id.PolicyID, req TransitionRequest) (*models.Policy, error) {
	if err := requirePolicyID(policyID); err != nil {
		return nil, err
	}
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	event, err := models.ParseEvent(req.Event)
	if err != nil {
		return nil, err
	}
	tc := models.TransitionContext{Actor: actor, Remarks: req.Remarks, Terms: req.Terms}
	now := requestcontext.Now(ctx)
	var from models.OnboardingStatus

	p, err := s.policies.Execute(ctx, policyID,
		func(p *models.Policy) error {
			from = p.OnboardingStatus
			validated, err := s.revalidate(ctx, p, event, actor)
			if err != nil {
				return err
			}
			tc.Validated = validated
			return p.CanApply(event, tc)
		},
		func(p *models.Policy) {
			p.Apply(event, tc, now)
		},
	)
	if err != nil {
		return nil, wrapPolicyErr(err)
	}

	if s.metrics != nil {
		s.metrics.IncrementTransition(string(event))
	}
	ev := auditEventFor(audit.ActionPolicyTransitioned, p, actor)
	ev.Event = string(event)
	ev.FromStatus = string(from)
	if last, ok := p.LastActivity(); ok {
		ev.Details = last.Details
	}
	s.logAudit(ctx, ev)
	return p, nil
}

// revalidate runs full validation for submission events the actor is
// otherwise allowed to perform. Table and department failures are left to
// CanApply so they take precedence over field issues.
func (s *Service) revalidate(ctx context.Context, p *models.Policy, event models.Event, actor models.Actor) (*intake.Result, error) {
	if !slices.Contains(revalidatedEvents, event) {
		return nil, nil
	}
	if !slices.Contains(models.AvailableEvents(p.OnboardingStatus, actor.Department), event) {
		return nil, nil
	}
	app := p.Application
	res, err := s.validator.ValidateApplication(ctx, &app)
	if err != nil {
		var ve *intake.ValidationError
		if errors.As(err, &ve) && s.metrics != nil {
			s.metrics.IncrementValidationFailure()
		}
		return nil, err
	}
	return res, nil
}

// AvailableTransitions lists the events the caller's department may apply
// to the policy right now.
func (s *Service) AvailableTransitions(ctx context.Context, policyID id.PolicyID) ([]models.Event, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	events := models.AvailableEvents(p.OnboardingStatus, actor.Department)
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}
