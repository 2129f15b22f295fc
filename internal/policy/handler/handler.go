package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"policydesk/internal/intake"
	"policydesk/internal/policy/models"
	"policydesk/internal/policy/service"
	policystore "policydesk/internal/policy/store/policy"
	id "policydesk/pkg/domain"
	dErrors "policydesk/pkg/domain-errors"
	"policydesk/pkg/platform/httputil"
	"policydesk/pkg/platform/middleware/auth"
	"policydesk/pkg/requestcontext"
)

// Service defines the policy operations exposed over HTTP.
type Service interface {
	ValidateApplication(ctx context.Context, payload intake.Payload, partial bool) (*intake.Result, error)
	CreatePolicy(ctx context.Context, payload intake.Payload, opts service.CreateOptions) (*service.CreateResult, error)
	UpdateApplication(ctx context.Context, policyID id.PolicyID, payload intake.Payload) (*service.CreateResult, error)
	GetPolicy(ctx context.Context, policyID id.PolicyID) (*models.Policy, error)
	ListPolicies(ctx context.Context, filter policystore.ListFilter) ([]*models.Policy, error)
	Transition(ctx context.Context, policyID id.PolicyID, req service.TransitionRequest) (*models.Policy, error)
	AvailableTransitions(ctx context.Context, policyID id.PolicyID) ([]models.Event, error)
	IssueBill(ctx context.Context, policyID id.PolicyID, req service.BillRequest) (*models.Policy, error)
	RecordPayment(ctx context.Context, policyID id.PolicyID, req service.PaymentRequest) (*service.PaymentResult, error)
	GetStatement(ctx context.Context, policyID id.PolicyID) (*service.Statement, error)
	ImportBatch(ctx context.Context, rows []intake.Payload) (*service.ImportReport, error)
}

// Handler wires policy endpoints to the policy service.
type Handler struct {
	service   Service
	logger    *slog.Logger
	validator auth.TokenValidator
	timeout   time.Duration
}

// New constructs a policy handler. Every route requires a staff token
// accepted by validator.
func New(service Service, validator auth.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		logger:    logger,
		validator: validator,
		timeout:   30 * time.Second,
	}
}

// Register mounts the policy endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireStaff(h.validator, h.logger))
		r.Use(chimw.Timeout(h.timeout))

		r.Post("/applications/validate", h.HandleValidate)

		r.Post("/policies", h.HandleCreate)
		r.Get("/policies", h.HandleList)
		r.Post("/policies/import", h.HandleImport)
		r.Get("/policies/{id}", h.HandleGet)
		r.Put("/policies/{id}/application", h.HandleUpdateApplication)
		r.Post("/policies/{id}/transitions", h.HandleTransition)
		r.Get("/policies/{id}/transitions", h.HandleAvailableTransitions)
		r.Post("/policies/{id}/bills", h.HandleIssueBill)
		r.Post("/policies/{id}/payments", h.HandleRecordPayment)
		r.Get("/policies/{id}/statement", h.HandleStatement)
	})
}

func (h *Handler) policyID(w http.ResponseWriter, r *http.Request) (id.PolicyID, bool) {
	policyID, err := id.ParsePolicyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid policy id"))
		return 0, false
	}
	return policyID, true
}

// fail logs at a level matching the error class and writes the response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

// HandleValidate handles POST /applications/validate[?mode=partial].
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload intake.Payload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, err)
		return
	}
	partial := r.URL.Query().Get("mode") == "partial"

	res, err := h.service.ValidateApplication(ctx, payload, partial)
	if err != nil {
		h.fail(ctx, w, "application validation failed", err, "partial", partial)
		return
	}
	warnings := res.Warnings
	if warnings == nil {
		warnings = []intake.Warning{}
	}
	httputil.WriteJSON(w, http.StatusOK, ValidateResponse{Valid: true, Derived: res.Derived, Warnings: warnings})
}

// HandleCreate handles POST /policies[?draft=true].
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload intake.Payload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, err)
		return
	}
	draft, _ := strconv.ParseBool(r.URL.Query().Get("draft"))

	res, err := h.service.CreatePolicy(ctx, payload, service.CreateOptions{Submit: !draft})
	if err != nil {
		h.fail(ctx, w, "create policy failed", err, "draft", draft)
		return
	}
	w.Header().Set("Location", "/policies/"+res.Policy.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleList handles GET /policies[?status=...&limit=...].
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := policystore.ListFilter{Status: models.OnboardingStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	policies, err := h.service.ListPolicies(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "list policies failed", err)
		return
	}
	if policies == nil {
		policies = []*models.Policy{}
	}
	httputil.WriteJSON(w, http.StatusOK, PolicyListResponse{Policies: policies, Count: len(policies)})
}

// HandleGet handles GET /policies/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, ok := h.policyID(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetPolicy(ctx, policyID)
	if err != nil {
		h.fail(ctx, w, "get policy failed", err, "policy_id", policyID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// HandleUpdateApplication handles PUT /policies/{id}/application.
func (h *Handler) HandleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, ok := h.policyID(w, r)
	if !ok {
		return
	}
	var payload intake.Payload
	if err := httputil.DecodeJSON(r, &payload); err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.UpdateApplication(ctx, policyID, payload)
	if err != nil {
		h.fail(ctx, w, "update application failed", err, "policy_id", policyID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// HandleTransition handles POST /policies/{id}/transitions.
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	policyID, ok := h.policyID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[TransitionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	p, err := h.service.Transition(ctx, policyID, req.toService())
	if err != nil {
		h.fail(ctx, w, "transition rejected", err, "policy_id", policyID, "event", req.Event)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

// HandleAvailableTransitions handles GET /policies/{id}/transitions.
func (h *Handler) HandleAvailableTransitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, ok := h.policyID(w, r)
	if !ok {
		return
	}
	p, err := h.service.GetPolicy(ctx, policyID)
	if err != nil {
		h.fail(ctx, w, "get policy failed", err, "policy_id", policyID)
		return
	}
	events, err := h.service.AvailableTransitions(ctx, policyID)
	if err != nil {
		h.fail(ctx, w, "list transitions failed", err, "policy_id", policyID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TransitionsResponse{Status: p.OnboardingStatus, Events: events})
}

// HandleIssueBill handles POST /policies/{id}/bills.
func (h *Handler) HandleIssueBill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, ok := h.policyID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[BillRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	p, err := h.service.IssueBill(ctx, policyID, service.BillRequest{DueDate: req.DueDate, Amount: req.Amount, Count: req.Count})
	if err != nil {
		h.fail(ctx, w, "issue bill failed", err, "policy_id", policyID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, p)
}

// HandleRecordPayment handles POST /policies/{id}/payments.
func (h *Handler) HandleRecordPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, ok := h.policyID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[PaymentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.service.RecordPayment(ctx, policyID, req.toService())
	if err != nil {
		h.fail(ctx, w, "record payment failed", err, "policy_id", policyID)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

// HandleStatement handles GET /policies/{id}/statement.
func (h *Handler) HandleStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, ok := h.policyID(w, r)
	if !ok {
		return
	}
	stmt, err := h.service.GetStatement(ctx, policyID)
	if err != nil {
		h.fail(ctx, w, "statement failed", err, "policy_id", policyID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stmt)
}

// HandleImport handles POST /policies/import.
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()
	req, ok := httputil.DecodeAndPrepare[ImportRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	report, err := h.service.ImportBatch(ctx, req.Rows)
	if err != nil {
		h.fail(ctx, w, "import failed", err, "rows", len(req.Rows))
		return
	}
	h.logger.InfoContext(ctx, "import completed",
		"request_id", requestID,
		"succeeded", report.SuccessCount,
		"failed", report.FailureCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, report)
}
