// Package handler exposes categorization, rule and category management over HTTP.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/categorization"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
	"github.com/FACorreiaa/fin-analyzer/pkg/httpx"
)

// Handler serves the categorization endpoints
type Handler struct {
	svc    *categorization.Service
	logger *slog.Logger
}

// NewHandler creates a new categorization handler
func NewHandler(svc *categorization.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the handler under /categorization.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/categorization", func(r chi.Router) {
		r.Post("/categorize", h.Categorize)
		r.Post("/categorize-all", h.CategorizeAll)
		r.Post("/transactions/{id}/categorize", h.CategorizeTransaction)
		r.Post("/seed", h.Seed)

		r.Get("/rules", h.ListRules)
		r.Post("/rules", h.CreateRule)
		r.Patch("/rules/{id}", h.UpdateRule)
		r.Delete("/rules/{id}", h.DeleteRule)

		r.Get("/categories", h.ListCategories)
		r.Post("/categories", h.CreateCategory)
		r.Delete("/categories/{id}", h.DeleteCategory)
	})
}

// ============================================================================
// Wire types
// ============================================================================

type outcomeResponse struct {
	CategoryID    *int64   `json:"category_id"`
	Method        string   `json:"method"`
	Confidence    *float64 `json:"confidence,omitempty"`
	RuleID        *int64   `json:"rule_id,omitempty"`
	Reasoning     string   `json:"reasoning,omitempty"`
	FallbackError string   `json:"fallback_error,omitempty"`
}

func toOutcomeResponse(out categorization.Outcome) outcomeResponse {
	resp := outcomeResponse{
		CategoryID: out.CategoryID,
		Method:     string(out.Method),
		Confidence: out.Confidence,
		RuleID:     out.RuleID,
		Reasoning:  out.Reasoning,
	}
	if out.FallbackErr != nil {
		resp.FallbackError = out.FallbackErr.Error()
	}
	return resp
}

type ruleResponse struct {
	ID         int64  `json:"id"`
	CategoryID int64  `json:"category_id"`
	Kind       string `json:"kind"`
	Pattern    string `json:"pattern"`
	Priority   int    `json:"priority"`
	Active     bool   `json:"active"`
}

func toRuleResponse(r ledger.Rule) ruleResponse {
	return ruleResponse{
		ID:         r.ID,
		CategoryID: r.CategoryID,
		Kind:       string(r.Kind()),
		Pattern:    r.PatternText(),
		Priority:   r.Priority,
		Active:     r.Active,
	}
}

type categoryResponse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
	Type     string `json:"type"`
	IsSystem bool   `json:"is_system"`
	Icon     string `json:"icon,omitempty"`
	Color    string `json:"color,omitempty"`
}

func toCategoryResponse(c ledger.Category) categoryResponse {
	return categoryResponse{
		ID:       c.ID,
		Name:     c.Name,
		ParentID: c.ParentID,
		Type:     string(c.Type),
		IsSystem: c.IsSystem,
		Icon:     c.Icon,
		Color:    c.Color,
	}
}

// ============================================================================
// Categorizing
// ============================================================================

type categorizeRequest struct {
	Description string `json:"description"`
	Merchant    string `json:"merchant"`
	Amount      string `json:"amount"`
	Date        string `json:"date"`
	UseLLM      bool   `json:"use_llm"`
}

// Categorize previews the category of an unsaved transaction.
func (h *Handler) Categorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	tx, err := req.transaction()
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	out, err := h.svc.Categorize(r.Context(), tx, req.UseLLM)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOutcomeResponse(out))
}

func (req categorizeRequest) transaction() (*ledger.Transaction, error) {
	tx := &ledger.Transaction{Description: strings.TrimSpace(req.Description)}
	if tx.Description == "" {
		return nil, httpx.BadRequest("description is required")
	}
	if m := strings.TrimSpace(req.Merchant); m != "" {
		tx.Merchant = &m
	}
	if req.Amount != "" {
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			return nil, httpx.BadRequest("amount must be a decimal number")
		}
		tx.Amount = amount
	}
	tx.Date = ledger.Day(time.Now())
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return nil, httpx.BadRequest("date must be YYYY-MM-DD")
		}
		tx.Date = d
	}
	return tx, nil
}

// CategorizeTransaction categorizes and saves one stored transaction.
func (h *Handler) CategorizeTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	useLLM, err := httpx.ParseBool("use_llm", r.URL.Query().Get("use_llm"), false)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	out, err := h.svc.CategorizeTransaction(r.Context(), id, useLLM)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOutcomeResponse(out))
}

// CategorizeAll runs over every uncategorized transaction.
func (h *Handler) CategorizeAll(w http.ResponseWriter, r *http.Request) {
	useLLM, err := httpx.ParseBool("use_llm", r.URL.Query().Get("use_llm"), false)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	stats, err := h.svc.CategorizeAll(r.Context(), useLLM)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

// Seed installs the default categories and rules.
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SeedDefaults(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

// ============================================================================
// Rules
// ============================================================================

type createRuleRequest struct {
	CategoryID int64  `json:"category_id"`
	Kind       string `json:"kind"`
	Pattern    string `json:"pattern"`
	Priority   int    `json:"priority"`
	Active     *bool  `json:"active"`
}

type updateRuleRequest struct {
	CategoryID *int64  `json:"category_id"`
	Kind       *string `json:"kind"`
	Pattern    *string `json:"pattern"`
	Priority   *int    `json:"priority"`
	Active     *bool   `json:"active"`
}

// ListRules returns the rules in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		resp = append(resp, toRuleResponse(rule))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"rules": resp})
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	kind := ledger.KindKeyword
	if req.Kind != "" {
		kind = ledger.RuleKind(req.Kind)
	}

	rule, err := h.svc.CreateRule(r.Context(), categorization.RuleInput{
		CategoryID: req.CategoryID,
		Kind:       kind,
		Pattern:    req.Pattern,
		Priority:   req.Priority,
		Active:     req.Active,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toRuleResponse(*rule))
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var req updateRuleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	upd := categorization.RuleUpdate{
		CategoryID: req.CategoryID,
		Pattern:    req.Pattern,
		Priority:   req.Priority,
		Active:     req.Active,
	}
	if req.Kind != nil {
		kind := ledger.RuleKind(*req.Kind)
		upd.Kind = &kind
	}

	rule, err := h.svc.UpdateRule(r.Context(), id, upd)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRuleResponse(*rule))
}

func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.svc.DeleteRule(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Categories
// ============================================================================

type createCategoryRequest struct {
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id"`
	Type     string `json:"type"`
	Icon     string `json:"icon"`
	Color    string `json:"color"`
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.ListCategories(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		resp = append(resp, toCategoryResponse(c))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"categories": resp})
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	c, err := h.svc.CreateCategory(r.Context(), categorization.CategoryInput{
		Name:     strings.TrimSpace(req.Name),
		ParentID: req.ParentID,
		Type:     ledger.CategoryType(req.Type),
		Icon:     req.Icon,
		Color:    req.Color,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toCategoryResponse(*c))
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID("id", chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.svc.DeleteCategory(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps categorization and ledger errors onto HTTP statuses.
func statusFor(err error) int {
	var compileErr *ledger.RuleCompileError
	switch {
	case errors.Is(err, httpx.ErrBadRequest),
		errors.As(err, &compileErr),
		errors.Is(err, ledger.ErrInvalidCategory),
		errors.Is(err, ledger.ErrInvalidCategoryType):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrSystemCategory),
		errors.Is(err, ledger.ErrCategoryHasChildren),
		errors.Is(err, ledger.ErrCategoryNesting),
		errors.Is(err, ledger.ErrDuplicateCategory):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	httpx.RespondError(w, r, h.logger, statusFor(err), err)
}
