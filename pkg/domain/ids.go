package domain

import (
	"strconv"
	"strings"

	dErrors "policydesk/pkg/domain-errors"
)

// PolicyID identifies a policy record. IDs are positive and assigned by the
// store on creation.
//
// Usage: construct via ParsePolicyID at trust boundaries; a zero PolicyID
// means "not yet persisted".
type PolicyID int64

// ParsePolicyID parses a decimal policy ID from external input.
//
// Errors: returns CodeInvalidInput when the value is empty, not a base-10
// integer, or not positive.
func ParsePolicyID(s string) (PolicyID, error) {
	if strings.TrimSpace(s) == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "policy id cannot be empty")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid policy id")
	}
	if n <= 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "policy id must be positive")
	}
	return PolicyID(n), nil
}

func (id PolicyID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// IsNil reports whether the ID is unassigned.
func (id PolicyID) IsNil() bool {
	return id <= 0
}
