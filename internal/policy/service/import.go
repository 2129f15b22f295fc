package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"policydesk/internal/audit"
	"policydesk/internal/intake"
	"policydesk/internal/policy/models"
	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
)

// MaxImportRows caps a single batch.
const MaxImportRows = 1000

// ImportRowResult is the outcome of one row. Index is zero-based.
type ImportRowResult struct {
	Index        int            `json:"index"`
	OK           bool           `json:"ok"`
	SerialNumber string         `json:"serialNumber,omitempty"`
	PolicyID     id.PolicyID    `json:"policyId,omitempty"`
	Status       string         `json:"status,omitempty"`
	Issues       []intake.Issue `json:"issues,omitempty"`
	// Error is set when a valid row could not be stored.
	Error string `json:"error,omitempty"`
}

type ImportReport struct {
	SuccessCount int               `json:"successCount"`
	FailureCount int               `json:"failureCount"`
	Rows         []ImportRowResult `json:"rows"`
}

// ImportBatch validates every row partially and stores the ones that pass.
// A row that also passes full validation enters Pending Vetting; the rest
// are saved as Incomplete Policy drafts. Rows are independent: a rejected
// row never blocks the others, and neither does a row the store fails to
// save: it is reported as failed with Error set while earlier and later rows
// keep their policies. Serials are distinct across the batch because the
// store rejects a reused serial.
func (s *Service) ImportBatch(ctx context.Context, rows []intake.Payload) (*ImportReport, error) {
	ctx, span := s.startSpan(ctx, "policy.import", attribute.Int("import.rows", len(rows)))
	start := time.Now()
	report, err := s.importBatch(ctx, rows)
	if s.metrics != nil {
		s.metrics.ObserveImport(start)
		if report != nil {
			s.metrics.ObserveImportRows(report.SuccessCount, report.FailureCount)
		}
	}
	endSpan(span, err)
	return report, err
}

func (s *Service) importBatch(ctx context.Context, rows []intake.Payload) (*ImportReport, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if actor.Department != id.DepartmentBusinessDevelopment {
		return nil, dErrors.New(dErrors.CodeForbidden, "only Business Development may import applications")
	}
	if len(rows) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "import batch has no rows")
	}
	if len(rows) > MaxImportRows {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("import batch exceeds %d rows", MaxImportRows))
	}

	report := &ImportReport{Rows: make([]ImportRowResult, 0, len(rows))}
	for i, row := range rows {
		result := ImportRowResult{Index: i}
		if err := ctx.Err(); err != nil {
			result.Error = "not attempted: " + err.Error()
			report.FailureCount++
			report.Rows = append(report.Rows, result)
			continue
		}
		p, issues, err := s.importRow(ctx, row, actor)
		switch {
		case err != nil:
			s.logger.ErrorContext(ctx, "import row not stored", "row", i, "error", err)
			result.Error = "could not be saved: " + string(dErrors.CodeOf(err))
			report.FailureCount++
		case p != nil:
			result.OK = true
			result.SerialNumber = p.SerialNumber
			result.PolicyID = p.ID
			result.Status = string(p.OnboardingStatus)
			report.SuccessCount++
		default:
			result.Issues = issues
			report.FailureCount++
		}
		report.Rows = append(report.Rows, result)
	}

	s.logAudit(ctx, audit.Event{
		Action:     audit.ActionBatchImported,
		UserID:     actor.UserID,
		Department: string(actor.Department),
		Details:    fmt.Sprintf("%d imported, %d rejected", report.SuccessCount, report.FailureCount),
	})
	return report, nil
}

// importRow returns the stored policy, or the row's validation issues.
func (s *Service) importRow(ctx context.Context, row intake.Payload, actor models.Actor) (*models.Policy, []intake.Issue, error) {
	validated, err := s.validatePayload(ctx, row, true)
	if issues, ok := validationIssues(err); ok {
		return nil, issues, nil
	}
	if err != nil {
		return nil, nil, err
	}
	status := models.StatusIncompletePolicy
	if full, err := s.validator.Validate(ctx, row); err == nil {
		validated, status = full, models.StatusPendingVetting
	}
	p, err := s.persistNew(ctx, validated, status, actor)
	if err != nil {
		return nil, nil, err
	}
	return p, nil, nil
}

func validationIssues(err error) ([]intake.Issue, bool) {
	if err == nil {
		return nil, false
	}
	var ve *intake.ValidationError
	if errors.As(err, &ve) {
		return ve.Issues, true
	}
	if dErrors.HasCode(err, dErrors.CodeBadRequest) {
		return []intake.Issue{{Message: err.Error()}}, true
	}
	return nil, false
}
