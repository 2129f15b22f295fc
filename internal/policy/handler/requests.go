package handler

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"policydesk/internal/intake"
	"policydesk/internal/policy/models"
	"policydesk/internal/policy/service"
	dErrors "policydesk/pkg/domain-errors"
)

// TransitionRequest is the body of POST /policies/{id}/transitions.
type TransitionRequest struct {
	Event      string             `json:"event"`
	Remarks    string             `json:"remarks"`
	Acceptance *AcceptanceRequest `json:"acceptance,omitempty"`
}

type AcceptanceRequest struct {
	PolicyNumber string          `json:"policyNumber"`
	Premium      decimal.Decimal `json:"premium"`
	SumAssured   decimal.Decimal `json:"sumAssured"`
}

func (r *TransitionRequest) Validate() error {
	r.Event = strings.TrimSpace(r.Event)
	if r.Event == "" {
		return dErrors.New(dErrors.CodeBadRequest, "event is required")
	}
	if len(r.Remarks) > 2000 {
		return dErrors.New(dErrors.CodeBadRequest, "remarks must be at most 2000 characters")
	}
	return nil
}

func (r *TransitionRequest) toService() service.TransitionRequest {
	req := service.TransitionRequest{Event: r.Event, Remarks: r.Remarks}
	if r.Acceptance != nil {
		req.Terms = &models.AcceptanceTerms{
			PolicyNumber: r.Acceptance.PolicyNumber,
			Premium:      r.Acceptance.Premium,
			SumAssured:   r.Acceptance.SumAssured,
		}
	}
	return req
}

// BillRequest is the body of POST /policies/{id}/bills.
type BillRequest struct {
	DueDate civil.Date      `json:"dueDate"`
	Amount  decimal.Decimal `json:"amount"`
	Count   int             `json:"count,omitempty"`
}

func (r *BillRequest) Validate() error {
	if !r.DueDate.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "dueDate is required")
	}
	if r.Count < 0 || r.Count > 120 {
		return dErrors.New(dErrors.CodeBadRequest, "count must be between 1 and 120")
	}
	return nil
}

// PaymentRequest is the body of POST /policies/{id}/payments. PaymentDate
// defaults to today.
type PaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   *civil.Date     `json:"paymentDate,omitempty"`
	Method        string          `json:"method"`
	TransactionID string          `json:"transactionId,omitempty"`
}

func (r *PaymentRequest) Validate() error {
	if r.PaymentDate != nil && !r.PaymentDate.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "paymentDate is not a valid date")
	}
	r.Method = strings.TrimSpace(r.Method)
	return nil
}

func (r *PaymentRequest) toService() service.PaymentRequest {
	req := service.PaymentRequest{Amount: r.Amount, Method: r.Method, TransactionID: r.TransactionID}
	if r.PaymentDate != nil {
		req.PaymentDate = *r.PaymentDate
	}
	return req
}

// ImportRequest is the body of POST /policies/import.
type ImportRequest struct {
	Rows []intake.Payload `json:"rows"`
}

func (r *ImportRequest) Validate() error {
	if len(r.Rows) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "rows must contain at least one application")
	}
	return nil
}

// ValidateResponse is returned by POST /applications/validate.
type ValidateResponse struct {
	Valid    bool             `json:"valid"`
	Derived  intake.Derived   `json:"derived"`
	Warnings []intake.Warning `json:"warnings"`
}

type TransitionsResponse struct {
	Status models.OnboardingStatus `json:"status"`
	Events []models.Event          `json:"events"`
}

type PolicyListResponse struct {
	Policies []*models.Policy `json:"policies"`
	Count    int              `json:"count"`
}
