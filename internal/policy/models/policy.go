package models

import (
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"policydesk/internal/intake"
	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
)

// Policy is the aggregate root for an application moving through onboarding.
//
// Invariants:
//   - OnboardingStatus is exactly one of OnboardingStatuses
//   - PolicyStatus is Active only once OnboardingStatus is Accepted
//   - Activity is append-only; every lifecycle transition adds one entry
//   - A Bill goes Unpaid -> Paid only when matched to a Payment on this policy
//     of equal or greater amount
//   - Balance() = sum(bills) - sum(payments); positive is outstanding
//   - Version increases by one on every successful store update
//   - FirstPremiumConfirmed is only reached once Vetted is set
type Policy struct {
	ID           id.PolicyID `json:"id"`
	SerialNumber string      `json:"serialNumber"`
	PolicyNumber string      `json:"policyNumber,omitempty"`

	Application intake.Application `json:"application"`
	Derived     intake.Derived     `json:"derived"`

	OnboardingStatus    OnboardingStatus    `json:"onboardingStatus"`
	BillingStatus       BillingStatus       `json:"billingStatus"`
	PolicyStatus        PolicyStatus        `json:"policyStatus"`
	MedicalUnderwriting MedicalUnderwriting `json:"medicalUnderwritingState"`
	MandateVerified     bool                `json:"mandateVerified"`
	FirstPremiumPaid    bool                `json:"firstPremiumPaid"`
	Vetted              bool                `json:"vetted"`

	ReworkNotes        string `json:"reworkNotes,omitempty"`
	MandateReworkNotes string `json:"mandateReworkNotes,omitempty"`

	FinalPremium     decimal.Decimal `json:"finalPremium"`
	FinalSumAssured  decimal.Decimal `json:"finalSumAssured"`
	CommencementDate *civil.Date     `json:"commencementDate,omitempty"`

	Bills    []Bill          `json:"bills"`
	Payments []Payment       `json:"payments"`
	Activity []ActivityEntry `json:"activityLog"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MedicalUnderwriting tracks the medical examination sub-state.
type MedicalUnderwriting struct {
	Started   bool       `json:"started"`
	StartDate *time.Time `json:"startDate,omitempty"`
	Completed bool       `json:"completed"`
}

// Actor is the staff member performing an operation.
type Actor struct {
	UserID     string        `json:"userId"`
	Name       string        `json:"name,omitempty"`
	Department id.Department `json:"department"`
}

func (a Actor) displayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.UserID
}

// ActivityEntry is one line of a policy's audit trail.
type ActivityEntry struct {
	ID         string        `json:"id"`
	Date       time.Time     `json:"date"`
	User       string        `json:"user"`
	Department id.Department `json:"department"`
	Action     string        `json:"action"`
	Details    string        `json:"details,omitempty"`
}

func (p *Policy) IsActive() bool {
	return p.PolicyStatus == PolicyActive
}

// LastActivity returns the most recent activity entry, if any.
func (p *Policy) LastActivity() (ActivityEntry, bool) {
	if len(p.Activity) == 0 {
		return ActivityEntry{}, false
	}
	return p.Activity[len(p.Activity)-1], true
}

func (p *Policy) appendActivity(actor Actor, action, details string, now time.Time) {
	p.Activity = append(p.Activity, ActivityEntry{
		ID:         uuid.NewString(),
		Date:       now,
		User:       actor.displayName(),
		Department: actor.Department,
		Action:     action,
		Details:    details,
	})
}

// NewPolicy creates a record for a validated (or draft) application. Only
// Pending Vetting (submitted) and Incomplete Policy (draft) are valid
// starting statuses.
func NewPolicy(serial string, app intake.Application, derived intake.Derived, status OnboardingStatus, actor Actor, now time.Time) (*Policy, error) {
	if serial == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "serial number cannot be empty")
	}
	if status != StatusPendingVetting && status != StatusIncompletePolicy {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "new policies start as Pending Vetting or Incomplete Policy")
	}
	app.SerialNumber = serial
	p := &Policy{
		SerialNumber:     serial,
		Application:      app,
		Derived:          derived,
		OnboardingStatus: status,
		BillingStatus:    BillingOutstanding,
		PolicyStatus:     PolicyInactive,
		Bills:            []Bill{},
		Payments:         []Payment{},
		Activity:         []ActivityEntry{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	action := "Application submitted"
	if status == StatusIncompletePolicy {
		action = "Draft application created"
	}
	p.appendActivity(actor, action, "Serial number "+serial, now)
	return p, nil
}

// amendableStatuses are the statuses in which the captured application can
// still be replaced.
var amendableStatuses = []OnboardingStatus{StatusIncompletePolicy, StatusReworkRequired}

// CanAmendApplication checks that actor may replace the application now.
func (p *Policy) CanAmendApplication(actor Actor) error {
	if !slices.Contains(amendableStatuses, p.OnboardingStatus) {
		return dErrors.New(dErrors.CodeInvalidTransition,
			fmt.Sprintf("application cannot be amended in %s", p.OnboardingStatus))
	}
	if actor.Department != id.DepartmentBusinessDevelopment {
		return dErrors.New(dErrors.CodeForbidden, "only Business Development may amend applications")
	}
	return nil
}

// AmendApplication replaces the captured application. The serial number and
// onboarding status are kept.
func (p *Policy) AmendApplication(app intake.Application, derived intake.Derived, actor Actor, now time.Time) {
	app.SerialNumber = p.SerialNumber
	p.Application = app
	p.Derived = derived
	p.UpdatedAt = now
	p.appendActivity(actor, "Application amended", "", now)
}

// Clone returns a deep copy so stores never share slices with callers.
func (p *Policy) Clone() *Policy {
	c := *p
	c.Application = p.Application.Clone()
	c.Bills = append([]Bill{}, p.Bills...)
	c.Payments = append([]Payment{}, p.Payments...)
	c.Activity = append([]ActivityEntry{}, p.Activity...)
	if p.CommencementDate != nil {
		d := *p.CommencementDate
		c.CommencementDate = &d
	}
	if p.MedicalUnderwriting.StartDate != nil {
		t := *p.MedicalUnderwriting.StartDate
		c.MedicalUnderwriting.StartDate = &t
	}
	return &c
}
