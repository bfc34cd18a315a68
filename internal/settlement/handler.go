package settlement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-settle/internal/platform/httpx"
)

// Handler manages settlement endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/customers/{customerID}/obligations", h.listObligations)
	r.Post("/settlements/preview", h.previewOldestFirst)
	r.Post("/settlements/preview-selection", h.previewBySelection)
	r.Post("/settlements", h.confirmSettlement)
	r.Get("/settlements", h.listProposals)
	r.Get("/settlements/{id}", h.getProposal)
}

func (h *Handler) listObligations(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
	if err != nil || customerID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Customer", "customer ID must be a positive integer")
		return
	}
	fresh := r.URL.Query().Get("fresh") == "true"

	obligations, err := h.service.ListObligations(r.Context(), customerID, fresh)
	if err != nil {
		h.logger.Error("list obligations", slog.Int64("customer_id", customerID), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Ledger Unavailable", "could not load obligations from the credit ledger")
		return
	}
	httpx.JSON(w, http.StatusOK, toObligationResponses(obligations))
}

func (h *Handler) previewOldestFirst(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, _, err := h.service.PreviewOldestFirst(r.Context(), req.CustomerID, req.TotalAmount)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResultResponse(result))
}

func (h *Handler) previewBySelection(w http.ResponseWriter, r *http.Request) {
	var req previewSelectionRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.PreviewBySelection(r.Context(), req.CustomerID, toTargets(req.Targets))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResultResponse(result))
}

func (h *Handler) confirmSettlement(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !h.decode(w, r, &req) {
		return
	}

	proposal, err := h.service.ConfirmSettlement(r.Context(), ConfirmInput{
		CustomerID:  req.CustomerID,
		Number:      req.Number,
		Method:      req.Method,
		Note:        req.Note,
		TotalAmount: req.TotalAmount,
		Targets:     toTargets(req.Targets),
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toProposalResponse(proposal))
}

func (h *Handler) getProposal(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Proposal ID", "proposal ID must be a UUID")
		return
	}
	proposal, err := h.service.GetProposal(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toProposalResponse(proposal))
}

func (h *Handler) listProposals(w http.ResponseWriter, r *http.Request) {
	var customerID int64
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		customerID, _ = strconv.ParseInt(raw, 10, 64)
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	proposals, err := h.service.ListProposals(r.Context(), ListProposalsRequest{
		CustomerID: customerID,
		Status:     ProposalStatus(r.URL.Query().Get("status")),
		Limit:      limit,
	})
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	out := make([]proposalResponse, 0, len(proposals))
	for _, p := range proposals {
		out = append(out, toProposalResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request Body", "request body must be valid JSON")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		detail := "request validation failed"
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			detail = fieldErrs[0].Error()
		}
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", detail)
		return false
	}
	return true
}

// ruleProblem extends the RFC7807 shape with the violated rule so the
// caller can render obligation-level feedback.
type ruleProblem struct {
	httpx.ProblemDetail
	Rule         Rule  `json:"rule"`
	ObligationID int64 `json:"obligationId,omitempty"`
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var violation *RuleViolation
	switch {
	case errors.As(err, &violation):
		httpx.JSON(w, http.StatusUnprocessableEntity, ruleProblem{
			ProblemDetail: httpx.ProblemDetail{
				Title:  "Allocation Rejected",
				Status: http.StatusUnprocessableEntity,
				Detail: violation.Detail,
			},
			Rule:         violation.Rule,
			ObligationID: violation.ObligationID,
		})
	case errors.Is(err, ErrProposalNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateNumber):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		h.logger.Error("settlement request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
