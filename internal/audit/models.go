package audit

import "time"

// Event records a policy action for downstream consumers. It mirrors a
// policy activity entry plus the request metadata that produced it.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	PolicyID     int64     `json:"policy_id,omitempty"`
	SerialNumber string    `json:"serial_number,omitempty"`
	Event        string    `json:"event,omitempty"`
	FromStatus   string    `json:"from_status,omitempty"`
	ToStatus     string    `json:"to_status,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	Department   string    `json:"department,omitempty"`
	Details      string    `json:"details,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	Device       string    `json:"device,omitempty"`
}

const (
	ActionPolicyCreated      = "policy_created"
	ActionPolicyTransitioned = "policy_transitioned"
	ActionApplicationUpdated = "application_updated"
	ActionBillIssued         = "bill_issued"
	ActionPaymentRecorded    = "payment_recorded"
	ActionBatchImported      = "batch_imported"
)
