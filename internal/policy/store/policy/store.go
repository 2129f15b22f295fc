package policy

import (
	"policydesk/internal/policy/models"
)

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status models.OnboardingStatus
	Limit  int
}

func (f ListFilter) matches(p *models.Policy) bool {
	return f.Status == "" || p.OnboardingStatus == f.Status
}
