package models

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"policydesk/internal/intake"
	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
)

// Event is a lifecycle action a staff member can take on a policy.
type Event string

const (
	EventSubmit              Event = "submit"
	EventRequestFirstPremium Event = "request_first_premium"
	EventVettingPassed       Event = "vetting_passed"
	EventVettingFailed       Event = "vetting_failed"
	EventRequestMandate      Event = "request_mandate"
	EventMandateVerified     Event = "mandate_verified"
	EventMandateFailed       Event = "mandate_failed"
	EventConfirmFirstPremium Event = "confirm_first_premium"
	EventStartMedicals       Event = "start_medicals"
	EventCompleteMedicals    Event = "complete_medicals"
	EventReferForDecision    Event = "refer_for_decision"
	EventAccept              Event = "accept"
	EventDefer               Event = "defer"
	EventDecline             Event = "decline"
	EventRevert              Event = "revert"
)

// eventAliases maps alternative wire names onto table events.
var eventAliases = map[string]Event{
	"not_taken_up": EventDefer,
}

// ParseEvent validates a wire event name.
func ParseEvent(s string) (Event, error) {
	name := strings.TrimSpace(s)
	if e, ok := eventAliases[name]; ok {
		return e, nil
	}
	e := Event(name)
	for _, r := range transitions {
		if r.event == e {
			return e, nil
		}
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown lifecycle event %q", s))
}

// AcceptanceTerms are the final terms recorded when underwriting accepts.
type AcceptanceTerms struct {
	PolicyNumber string          `json:"policyNumber"`
	Premium      decimal.Decimal `json:"premium"`
	SumAssured   decimal.Decimal `json:"sumAssured"`
}

// TransitionContext carries everything a transition guard or effect may need.
type TransitionContext struct {
	Actor   Actor
	Remarks string
	// Terms is required for EventAccept.
	Terms *AcceptanceTerms
	// Validated is the result of a full intake validation of the stored
	// application. Required for submission events.
	Validated *intake.Result
}

type transitionRule struct {
	event        Event
	from         []OnboardingStatus
	to           OnboardingStatus
	departments  []id.Department
	action       string
	needsRemarks bool
	guard        func(p *Policy, tc TransitionContext) error
	effect       func(p *Policy, tc TransitionContext, now time.Time)
}

func (r transitionRule) allows(d id.Department) bool {
	for _, allowed := range r.departments {
		if allowed == d {
			return true
		}
	}
	return false
}

func (r transitionRule) appliesFrom(s OnboardingStatus) bool {
	for _, from := range r.from {
		if from == s {
			return true
		}
	}
	return false
}

var (
	bd = id.DepartmentBusinessDevelopment
	pa = id.DepartmentPremiumAdministration
	uw = id.DepartmentUnderwriting
)

// mandateEligible lists every status a mandate check can be recorded from.
var mandateEligible = []OnboardingStatus{
	StatusIncompletePolicy,
	StatusPendingFirstPremium,
	StatusPendingVetting,
	StatusVettingCompleted,
	StatusReworkRequired,
	StatusPendingMandate,
	StatusMandateReworkRequired,
}

// transitions is the complete onboarding table. Any (status, event) pair not
// listed here is rejected.
var transitions = []transitionRule{
	{
		event: EventSubmit, from: []OnboardingStatus{StatusIncompletePolicy, StatusReworkRequired},
		to: StatusPendingVetting, departments: []id.Department{bd}, action: "Submitted for vetting",
		guard: requireValidated, effect: applyValidated,
	},
	{
		// A mandate verified ahead of vetting still has to go through it.
		event: EventSubmit, from: []OnboardingStatus{StatusMandateVerified},
		to: StatusPendingVetting, departments: []id.Department{bd}, action: "Submitted for vetting",
		guard: requireUnvetted, effect: applyValidated,
	},
	{
		event: EventRequestFirstPremium, from: []OnboardingStatus{StatusIncompletePolicy},
		to: StatusPendingFirstPremium, departments: []id.Department{bd}, action: "First premium requested",
		guard: requireValidated, effect: applyValidated,
	},
	{
		event: EventVettingPassed, from: []OnboardingStatus{StatusPendingVetting},
		to: StatusVettingCompleted, departments: []id.Department{uw}, action: "Vetting completed",
		effect: func(p *Policy, _ TransitionContext, _ time.Time) {
			p.Vetted = true
			p.ReworkNotes = ""
		},
	},
	{
		event: EventVettingFailed, from: []OnboardingStatus{StatusPendingVetting},
		to: StatusReworkRequired, departments: []id.Department{uw}, action: "Returned for rework",
		needsRemarks: true, effect: func(p *Policy, tc TransitionContext, _ time.Time) {
			p.Vetted = false
			p.ReworkNotes = tc.Remarks
		},
	},
	{
		event: EventRequestMandate, from: []OnboardingStatus{StatusVettingCompleted, StatusMandateReworkRequired},
		to: StatusPendingMandate, departments: []id.Department{pa, bd}, action: "Mandate requested",
	},
	{
		event: EventMandateVerified, from: mandateEligible,
		to: StatusMandateVerified, departments: []id.Department{pa, uw}, action: "Mandate verified",
		effect: func(p *Policy, _ TransitionContext, _ time.Time) {
			p.MandateVerified = true
			p.MandateReworkNotes = ""
		},
	},
	{
		event: EventMandateFailed, from: mandateEligible,
		to: StatusMandateReworkRequired, departments: []id.Department{pa, uw}, action: "Mandate returned for rework",
		needsRemarks: true, effect: func(p *Policy, tc TransitionContext, _ time.Time) {
			p.MandateVerified = false
			p.MandateReworkNotes = tc.Remarks
		},
	},
	{
		event: EventConfirmFirstPremium, from: []OnboardingStatus{StatusVettingCompleted, StatusMandateVerified},
		to: StatusFirstPremiumConfirmed, departments: []id.Department{pa}, action: "First premium confirmed",
		guard: requireVettedPayment, effect: confirmFirstPremium,
	},
	{
		event: EventConfirmFirstPremium, from: []OnboardingStatus{StatusPendingFirstPremium},
		to: StatusPendingVetting, departments: []id.Department{pa}, action: "First premium confirmed",
		guard: requirePayment, effect: confirmFirstPremium,
	},
	{
		event: EventStartMedicals, from: []OnboardingStatus{StatusFirstPremiumConfirmed},
		to: StatusPendingMedicals, departments: []id.Department{uw}, action: "Medicals started",
		effect: startMedicals,
	},
	{
		event: EventCompleteMedicals, from: []OnboardingStatus{StatusPendingMedicals},
		to: StatusMedicalsCompleted, departments: []id.Department{uw}, action: "Medicals completed",
		effect: func(p *Policy, _ TransitionContext, _ time.Time) { p.MedicalUnderwriting.Completed = true },
	},
	{
		event: EventReferForDecision, from: []OnboardingStatus{StatusMedicalsCompleted},
		to: StatusPendingDecision, departments: []id.Department{uw}, action: "Referred for decision",
	},
	{
		event: EventAccept, from: []OnboardingStatus{StatusMedicalsCompleted, StatusPendingDecision},
		to: StatusAccepted, departments: []id.Department{uw}, action: "Policy accepted",
		guard: requireTerms, effect: acceptPolicy,
	},
	{
		event: EventDefer, from: []OnboardingStatus{StatusMedicalsCompleted, StatusPendingDecision},
		to: StatusNTU, departments: []id.Department{uw}, action: "Deferred (not taken up)",
	},
	{
		event: EventDecline, from: []OnboardingStatus{StatusMedicalsCompleted, StatusPendingDecision},
		to: StatusDeclined, departments: []id.Department{uw}, action: "Policy declined",
	},
	{
		event: EventRevert, from: []OnboardingStatus{StatusNTU},
		to: StatusPendingMedicals, departments: []id.Department{uw}, action: "Reverted to medicals",
		effect: startMedicals,
	},
}

func requireValidated(_ *Policy, tc TransitionContext) error {
	if tc.Validated == nil {
		return dErrors.New(dErrors.CodeInvalidTransition, "application must pass full validation before submission")
	}
	return nil
}

func requireUnvetted(p *Policy, tc TransitionContext) error {
	if p.Vetted {
		return dErrors.New(dErrors.CodeInvalidTransition, "application has already passed vetting")
	}
	return requireValidated(p, tc)
}

func applyValidated(p *Policy, tc TransitionContext, _ time.Time) {
	p.Derived = tc.Validated.Derived
	p.BillingStatus = BillingOutstanding
}

func requirePayment(p *Policy, _ TransitionContext) error {
	if len(p.Payments) == 0 {
		return dErrors.New(dErrors.CodeInvalidTransition, "first premium cannot be confirmed before a payment is recorded")
	}
	return nil
}

func requireVettedPayment(p *Policy, tc TransitionContext) error {
	if !p.Vetted {
		return dErrors.New(dErrors.CodeInvalidTransition, "first premium cannot be confirmed before vetting is completed")
	}
	return requirePayment(p, tc)
}

func confirmFirstPremium(p *Policy, _ TransitionContext, _ time.Time) {
	p.FirstPremiumPaid = true
	p.BillingStatus = BillingFirstPremiumPaid
}

func startMedicals(p *Policy, _ TransitionContext, now time.Time) {
	started := now
	p.MedicalUnderwriting = MedicalUnderwriting{Started: true, StartDate: &started}
}

func requireTerms(_ *Policy, tc TransitionContext) error {
	t := tc.Terms
	switch {
	case t == nil:
		return dErrors.New(dErrors.CodeInvalidTransition, "acceptance requires policy number, premium and sum assured")
	case strings.TrimSpace(t.PolicyNumber) == "":
		return dErrors.New(dErrors.CodeInvalidTransition, "acceptance requires a policy number")
	case !t.Premium.IsPositive():
		return dErrors.New(dErrors.CodeInvalidTransition, "acceptance requires a positive premium")
	case !t.SumAssured.IsPositive():
		return dErrors.New(dErrors.CodeInvalidTransition, "acceptance requires a positive sum assured")
	}
	return nil
}

func acceptPolicy(p *Policy, tc TransitionContext, now time.Time) {
	p.PolicyNumber = strings.TrimSpace(tc.Terms.PolicyNumber)
	p.FinalPremium = tc.Terms.Premium
	p.FinalSumAssured = tc.Terms.SumAssured
	p.PolicyStatus = PolicyActive
	commencement := civil.DateOf(now)
	p.CommencementDate = &commencement
}

// TransitionError reports a lifecycle event that cannot be applied.
type TransitionError struct {
	From   OnboardingStatus
	Event  Event
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot apply %s to a policy in %q: %s", e.Event, e.From, e.Reason)
}

func transitionError(code dErrors.Code, from OnboardingStatus, event Event, reason string) error {
	return dErrors.Wrap(&TransitionError{From: from, Event: event, Reason: reason}, code, reason)
}

// Events lists every lifecycle event in table order.
func Events() []Event {
	var out []Event
	seen := map[Event]bool{}
	for _, r := range transitions {
		if !seen[r.event] {
			seen[r.event] = true
			out = append(out, r.event)
		}
	}
	return out
}

// LookupTransition returns the target status for event applied in from.
func LookupTransition(from OnboardingStatus, event Event) (OnboardingStatus, bool) {
	r, ok := lookup(from, event)
	return r.to, ok
}

// CanTransition reports whether the table has a row for (from, event).
func CanTransition(from OnboardingStatus, event Event) bool {
	_, ok := lookup(from, event)
	return ok
}

func lookup(from OnboardingStatus, event Event) (transitionRule, bool) {
	for _, r := range transitions {
		if r.event == event && r.appliesFrom(from) {
			return r, true
		}
	}
	return transitionRule{}, false
}

// AvailableEvents lists the events dept may apply to a policy in from, in
// table order. An empty department returns every event the table allows.
func AvailableEvents(from OnboardingStatus, dept id.Department) []Event {
	var out []Event
	seen := map[Event]bool{}
	for _, r := range transitions {
		if !r.appliesFrom(from) || seen[r.event] {
			continue
		}
		if dept != "" && !r.allows(dept) {
			continue
		}
		seen[r.event] = true
		out = append(out, r.event)
	}
	return out
}

// CanApply checks the table row, the actor's department, required remarks and
// the event's guard without changing the policy.
func (p *Policy) CanApply(event Event, tc TransitionContext) error {
	r, ok := lookup(p.OnboardingStatus, event)
	if !ok {
		return transitionError(dErrors.CodeInvalidTransition, p.OnboardingStatus, event,
			fmt.Sprintf("%s is not allowed from %s", event, p.OnboardingStatus))
	}
	if !r.allows(tc.Actor.Department) {
		return transitionError(dErrors.CodeForbidden, p.OnboardingStatus, event,
			fmt.Sprintf("department %s may not perform %s", tc.Actor.Department.Label(), event))
	}
	if r.needsRemarks && strings.TrimSpace(tc.Remarks) == "" {
		return transitionError(dErrors.CodeInvalidTransition, p.OnboardingStatus, event, "remarks are required")
	}
	if r.guard != nil {
		if err := r.guard(p, tc); err != nil {
			return transitionError(dErrors.CodeOf(err), p.OnboardingStatus, event, err.Error())
		}
	}
	return nil
}

// Apply moves the policy to the event's target status, runs its side effects
// and appends an activity entry. Callers must check CanApply first.
func (p *Policy) Apply(event Event, tc TransitionContext, now time.Time) {
	r, ok := lookup(p.OnboardingStatus, event)
	if !ok {
		return
	}
	p.OnboardingStatus = r.to
	if r.effect != nil {
		r.effect(p, tc, now)
	}
	p.appendActivity(tc.Actor, r.action, activityDetails(event, tc), now)
	p.UpdatedAt = now
}

// Transition validates and applies event in one step.
func (p *Policy) Transition(event Event, tc TransitionContext, now time.Time) error {
	if err := p.CanApply(event, tc); err != nil {
		return err
	}
	p.Apply(event, tc, now)
	return nil
}

func activityDetails(event Event, tc TransitionContext) string {
	if event == EventAccept && tc.Terms != nil {
		return fmt.Sprintf("Policy number %s, premium %s, sum assured %s",
			tc.Terms.PolicyNumber, tc.Terms.Premium.StringFixed(2), tc.Terms.SumAssured.String())
	}
	return strings.TrimSpace(tc.Remarks)
}
