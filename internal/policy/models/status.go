package models

// OnboardingStatus is where a policy record sits in the onboarding lifecycle.
type OnboardingStatus string

const (
	StatusIncompletePolicy      OnboardingStatus = "Incomplete Policy"
	StatusPendingFirstPremium   OnboardingStatus = "Pending First Premium"
	StatusFirstPremiumConfirmed OnboardingStatus = "First Premium Confirmed"
	StatusPendingVetting        OnboardingStatus = "Pending Vetting"
	StatusVettingCompleted      OnboardingStatus = "Vetting Completed"
	StatusReworkRequired        OnboardingStatus = "Rework Required"
	StatusPendingMandate        OnboardingStatus = "Pending Mandate"
	StatusMandateVerified       OnboardingStatus = "Mandate Verified"
	StatusMandateReworkRequired OnboardingStatus = "Mandate Rework Required"
	StatusPendingMedicals       OnboardingStatus = "Pending Medicals"
	StatusMedicalsCompleted     OnboardingStatus = "Medicals Completed"
	StatusPendingDecision       OnboardingStatus = "Pending Decision"
	StatusAccepted              OnboardingStatus = "Accepted"
	StatusNTU                   OnboardingStatus = "NTU"
	StatusDeclined              OnboardingStatus = "Declined"
)

// OnboardingStatuses lists every status in lifecycle order.
var OnboardingStatuses = []OnboardingStatus{
	StatusIncompletePolicy,
	StatusPendingFirstPremium,
	StatusFirstPremiumConfirmed,
	StatusPendingVetting,
	StatusVettingCompleted,
	StatusReworkRequired,
	StatusPendingMandate,
	StatusMandateVerified,
	StatusMandateReworkRequired,
	StatusPendingMedicals,
	StatusMedicalsCompleted,
	StatusPendingDecision,
	StatusAccepted,
	StatusNTU,
	StatusDeclined,
}

func (s OnboardingStatus) IsValid() bool {
	for _, known := range OnboardingStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s OnboardingStatus) String() string {
	return string(s)
}

type BillingStatus string

const (
	BillingOutstanding      BillingStatus = "Outstanding"
	BillingUpToDate         BillingStatus = "Up to Date"
	BillingFirstPremiumPaid BillingStatus = "First Premium Paid"
)

type PolicyStatus string

const (
	PolicyInactive PolicyStatus = "Inactive"
	PolicyActive   PolicyStatus = "Active"
)
