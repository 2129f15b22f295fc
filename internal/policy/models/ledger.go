package models

import (
	"errors"
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"policydesk/internal/intake"
	dErrors "policydesk/pkg/domain-errors"
)

// ErrNoUnpaidBill is returned when a payment has no unpaid bill of equal or
// smaller amount to settle.
var ErrNoUnpaidBill = errors.New("no unpaid bill available to match payment")

type BillStatus string

const (
	BillUnpaid BillStatus = "Unpaid"
	BillPaid   BillStatus = "Paid"
)

// Bill is a premium amount falling due on a date.
type Bill struct {
	ID        string          `json:"id"`
	DueDate   civil.Date      `json:"dueDate"`
	Amount    decimal.Decimal `json:"amount"`
	Status    BillStatus      `json:"status"`
	PaymentID string          `json:"paymentId,omitempty"`
}

// Payment is money received against a policy.
type Payment struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentDate   civil.Date      `json:"paymentDate"`
	Method        string          `json:"method,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	BillID        string          `json:"billId"`
}

type EntryKind string

const (
	EntryBill    EntryKind = "bill"
	EntryPayment EntryKind = "payment"
)

// StatementLine is one row of a policy statement. Balance is the running
// total after this line: bills add, payments subtract.
type StatementLine struct {
	Date      civil.Date      `json:"date"`
	Kind      EntryKind       `json:"kind"`
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Balance   decimal.Decimal `json:"balance"`
}

// CanIssueBill checks a bill before it is added to the ledger.
func (p *Policy) CanIssueBill(b Bill) error {
	if p.OnboardingStatus == StatusDeclined {
		return dErrors.New(dErrors.CodeLedger, "cannot bill a declined policy")
	}
	if b.ID == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "bill id cannot be empty")
	}
	if !b.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeInvalidInput, "bill amount must be positive")
	}
	if !b.DueDate.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "bill due date is required")
	}
	return nil
}

// IssueBill adds an unpaid bill.
func (p *Policy) IssueBill(b Bill, now time.Time) error {
	if err := p.CanIssueBill(b); err != nil {
		return err
	}
	b.Status = BillUnpaid
	b.PaymentID = ""
	p.Bills = append(p.Bills, b)
	p.UpdatedAt = now
	return nil
}

// MatchBill finds the index of the oldest unpaid bill whose amount does not
// exceed amount. Ties on due date go to the earlier-issued bill.
func (p *Policy) MatchBill(amount decimal.Decimal) (int, error) {
	match := -1
	for i, b := range p.Bills {
		if b.Status != BillUnpaid || b.Amount.GreaterThan(amount) {
			continue
		}
		if match < 0 || b.DueDate.Before(p.Bills[match].DueDate) {
			match = i
		}
	}
	if match < 0 {
		return -1, dErrors.Wrap(ErrNoUnpaidBill, dErrors.CodeLedger, ErrNoUnpaidBill.Error())
	}
	return match, nil
}

// RecordPayment settles the oldest matching unpaid bill and records the
// payment. Fails with ErrNoUnpaidBill, leaving the ledger unchanged, when no
// bill matches.
func (p *Policy) RecordPayment(pay Payment, now time.Time) (Bill, error) {
	if pay.ID == "" {
		return Bill{}, dErrors.New(dErrors.CodeInvariantViolation, "payment id cannot be empty")
	}
	if !pay.Amount.IsPositive() {
		return Bill{}, dErrors.New(dErrors.CodeInvalidInput, "payment amount must be positive")
	}
	if pay.PaymentDate == (civil.Date{}) {
		pay.PaymentDate = civil.DateOf(now)
	}
	idx, err := p.MatchBill(pay.Amount)
	if err != nil {
		return Bill{}, err
	}
	p.Bills[idx].Status = BillPaid
	p.Bills[idx].PaymentID = pay.ID
	pay.BillID = p.Bills[idx].ID
	p.Payments = append(p.Payments, pay)
	p.UpdatedAt = now
	return p.Bills[idx], nil
}

// Balance is total billed minus total paid. Negative means credit.
func (p *Policy) Balance() decimal.Decimal {
	total := decimal.Zero
	for _, b := range p.Bills {
		total = total.Add(b.Amount)
	}
	for _, pay := range p.Payments {
		total = total.Sub(pay.Amount)
	}
	return total
}

// Statement merges bills and payments chronologically with a running balance.
// On the same date bills come before payments; otherwise entries keep the
// order they were recorded in.
func (p *Policy) Statement() []StatementLine {
	lines := make([]StatementLine, 0, len(p.Bills)+len(p.Payments))
	for _, b := range p.Bills {
		lines = append(lines, StatementLine{Date: b.DueDate, Kind: EntryBill, Reference: b.ID, Amount: b.Amount})
	}
	for _, pay := range p.Payments {
		lines = append(lines, StatementLine{Date: pay.PaymentDate, Kind: EntryPayment, Reference: pay.ID, Amount: pay.Amount})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].Date != lines[j].Date {
			return lines[i].Date.Before(lines[j].Date)
		}
		return lines[i].Kind == EntryBill && lines[j].Kind == EntryPayment
	})
	balance := decimal.Zero
	for i := range lines {
		if lines[i].Kind == EntryBill {
			balance = balance.Add(lines[i].Amount)
		} else {
			balance = balance.Sub(lines[i].Amount)
		}
		lines[i].Balance = balance
	}
	return lines
}

// DeriveBillingStatus is Outstanding when any bill due on or before asOf is
// unpaid, Up to Date otherwise.
func (p *Policy) DeriveBillingStatus(asOf civil.Date) BillingStatus {
	for _, b := range p.Bills {
		if b.Status == BillUnpaid && !b.DueDate.After(asOf) {
			return BillingOutstanding
		}
	}
	return BillingUpToDate
}

// RefreshBillingStatus recomputes BillingStatus as of asOf. First Premium Paid
// is kept until a later bill falls overdue.
func (p *Policy) RefreshBillingStatus(asOf civil.Date) {
	derived := p.DeriveBillingStatus(asOf)
	if derived == BillingUpToDate && p.BillingStatus == BillingFirstPremiumPaid {
		return
	}
	p.BillingStatus = derived
}

// ScheduleBills lays out count premium bills starting at start, spaced by
// the payment frequency. newID supplies each bill's identifier.
func ScheduleBills(start civil.Date, freq intake.PaymentFrequency, amount decimal.Decimal, count int, newID func() string) ([]Bill, error) {
	months := freq.Months()
	if months == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unknown payment frequency")
	}
	if count <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "bill count must be positive")
	}
	if !amount.IsPositive() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "bill amount must be positive")
	}
	bills := make([]Bill, 0, count)
	for i := 0; i < count; i++ {
		bills = append(bills, Bill{
			ID:      newID(),
			DueDate: addMonths(start, i*months),
			Amount:  amount,
			Status:  BillUnpaid,
		})
	}
	return bills, nil
}

// addMonths moves d forward n months. A day past the end of the target month
// becomes its last day, so Jan 31 is followed by Feb 28.
func addMonths(d civil.Date, n int) civil.Date {
	first := time.Date(d.Year, d.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	return civil.Date{Year: first.Year(), Month: first.Month(), Day: min(d.Day, last)}
}
