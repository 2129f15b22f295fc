package domain

import dErrors "policydesk/pkg/domain-errors"

// Department is the back-office team a staff member acts for. Lifecycle
// transitions are gated on it.
// Invariant: the value must be one of the supported departments.
//
// Usage: construct via ParseDepartment at trust boundaries (token claims,
// request bodies); direct casting bypasses validation.
type Department string

const (
	DepartmentBusinessDevelopment   Department = "business_development"
	DepartmentPremiumAdministration Department = "premium_administration"
	DepartmentUnderwriting          Department = "underwriting"
)

var validDepartments = map[Department]bool{
	DepartmentBusinessDevelopment:   true,
	DepartmentPremiumAdministration: true,
	DepartmentUnderwriting:          true,
}

// ParseDepartment constructs a Department from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseDepartment(s string) (Department, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "department cannot be empty")
	}
	d := Department(s)
	if !d.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid department")
	}
	return d, nil
}

func (d Department) IsValid() bool {
	return validDepartments[d]
}

func (d Department) String() string {
	return string(d)
}

// Label is the human-readable department name used in activity entries.
func (d Department) Label() string {
	switch d {
	case DepartmentBusinessDevelopment:
		return "Business Development"
	case DepartmentPremiumAdministration:
		return "Premium Administration"
	case DepartmentUnderwriting:
		return "Underwriting"
	default:
		return string(d)
	}
}
