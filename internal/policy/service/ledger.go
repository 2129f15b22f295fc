package service

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"policydesk/internal/audit"
	"policydesk/internal/policy/models"
	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
	"policydesk/pkg/requestcontext"
)

// BillRequest issues one bill, or Count bills spaced by the application's
// payment frequency starting at DueDate.
type BillRequest struct {
	DueDate civil.Date
	Amount  decimal.Decimal
	Count   int
}

type PaymentRequest struct {
	Amount        decimal.Decimal
	PaymentDate   civil.Date
	Method        string
	TransactionID string
}

// PaymentResult is the updated policy and the bill the payment settled.
type PaymentResult struct {
	Policy *models.Policy `json:"policy"`
	Bill   models.Bill    `json:"bill"`
}

// Statement is a policy's ledger with running balance.
type Statement struct {
	PolicyID      id.PolicyID            `json:"policyId"`
	SerialNumber  string                 `json:"serialNumber"`
	Lines         []models.StatementLine `json:"lines"`
	Balance       decimal.Decimal        `json:"balance"`
	BillingStatus models.BillingStatus   `json:"billingStatus"`
	AsOf          civil.Date             `json:"asOf"`
}

func requireLedgerAccess(ctx context.Context) (models.Actor, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return models.Actor{}, err
	}
	if actor.Department != id.DepartmentPremiumAdministration {
		return models.Actor{}, dErrors.New(dErrors.CodeForbidden, "only Premium Administration may post to the ledger")
	}
	return actor, nil
}

// IssueBill adds one or more unpaid bills to the policy's ledger.
func (s *Service) IssueBill(ctx context.Context, policyID id.PolicyID, req BillRequest) (*models.Policy, error) {
	ctx, span := s.startSpan(ctx, "policy.issue_bill", attribute.Int64("policy.id", int64(policyID)))
	p, err := s.issueBill(ctx, policyID, req)
	endSpan(span, err)
	return p, err
}

func (s *Service) issueBill(ctx context.Context, policyID id.PolicyID, req BillRequest) (*models.Policy, error) {
	if err := requirePolicyID(policyID); err != nil {
		return nil, err
	}
	actor, err := requireLedgerAccess(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	var bills []models.Bill

	p, err := s.policies.Execute(ctx, policyID,
		func(p *models.Policy) error {
			if req.Count > 1 {
				scheduled, err := models.ScheduleBills(req.DueDate, p.Application.Coverage.PaymentFrequency, req.Amount, req.Count, uuid.NewString)
				if err != nil {
					return err
				}
				bills = scheduled
			} else {
				bills = []models.Bill{{ID: uuid.NewString(), DueDate: req.DueDate, Amount: req.Amount}}
			}
			for _, b := range bills {
				if err := p.CanIssueBill(b); err != nil {
					return err
				}
			}
			return nil
		},
		func(p *models.Policy) {
			for _, b := range bills {
				_ = p.IssueBill(b, now)
			}
			p.RefreshBillingStatus(civil.DateOf(now))
		},
	)
	if err != nil {
		return nil, wrapPolicyErr(err)
	}

	for _, b := range bills {
		ev := auditEventFor(audit.ActionBillIssued, p, actor)
		ev.Details = b.ID + " due " + b.DueDate.String() + " amount " + b.Amount.StringFixed(2)
		s.logAudit(ctx, ev)
	}
	return p, nil
}

// RecordPayment settles the oldest unpaid bill the amount covers and
// recomputes the billing status.
func (s *Service) RecordPayment(ctx context.Context, policyID id.PolicyID, req PaymentRequest) (*PaymentResult, error) {
	ctx, span := s.startSpan(ctx, "policy.record_payment", attribute.Int64("policy.id", int64(policyID)))
	res, err := s.recordPayment(ctx, policyID, req)
	endSpan(span, err)
	return res, err
}

func (s *Service) recordPayment(ctx context.Context, policyID id.PolicyID, req PaymentRequest) (*PaymentResult, error) {
	if err := requirePolicyID(policyID); err != nil {
		return nil, err
	}
	actor, err := requireLedgerAccess(ctx)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	payment := models.Payment{
		ID:            uuid.NewString(),
		Amount:        req.Amount,
		PaymentDate:   req.PaymentDate,
		Method:        req.Method,
		TransactionID: req.TransactionID,
	}
	var settled models.Bill

	p, err := s.policies.Execute(ctx, policyID,
		func(p *models.Policy) error {
			// Trial run on a copy so an unmatched payment leaves no trace.
			_, err := p.Clone().RecordPayment(payment, now)
			return err
		},
		func(p *models.Policy) {
			settled, _ = p.RecordPayment(payment, now)
			p.RefreshBillingStatus(civil.DateOf(now))
		},
	)
	if err != nil {
		if s.metrics != nil && dErrors.HasCode(err, dErrors.CodeLedger) {
			s.metrics.IncrementPaymentUnmatched()
		}
		return nil, wrapPolicyErr(err)
	}

	if s.metrics != nil {
		s.metrics.IncrementPaymentRecorded()
	}
	ev := auditEventFor(audit.ActionPaymentRecorded, p, actor)
	ev.Details = payment.ID + " settled " + settled.ID + " amount " + payment.Amount.StringFixed(2)
	s.logAudit(ctx, ev)
	return &PaymentResult{Policy: p, Bill: settled}, nil
}

// GetStatement returns the ledger lines and the billing status as of today.
func (s *Service) GetStatement(ctx context.Context, policyID id.PolicyID) (*Statement, error) {
	p, err := s.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	asOf := civil.DateOf(requestcontext.Now(ctx))
	view := p.Clone()
	view.RefreshBillingStatus(asOf)
	lines := view.Statement()
	if lines == nil {
		lines = []models.StatementLine{}
	}
	return &Statement{
		PolicyID:      p.ID,
		SerialNumber:  p.SerialNumber,
		Lines:         lines,
		Balance:       view.Balance(),
		BillingStatus: view.BillingStatus,
		AsOf:          asOf,
	}, nil
}
