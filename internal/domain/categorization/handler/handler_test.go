package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/categorization"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

type fixture struct {
	router *chi.Mux
	store  *ledger.MemoryStore
}

func newFixture(t *testing.T, seed bool) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := ledger.NewMemoryStore()
	svc := categorization.NewService(store, categorization.NewRuleCache(store, nil, logger), logger)
	if seed {
		_, err := svc.SeedDefaults(context.Background())
		require.NoError(t, err)
	}

	r := chi.NewRouter()
	r.Route("/api", NewHandler(svc, logger).Routes)
	return &fixture{router: r, store: store}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) categoryID(t *testing.T, name string) int64 {
	t.Helper()
	categories, err := f.store.ListCategories(context.Background())
	require.NoError(t, err)
	for _, c := range categories {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("category %q not found", name)
	return 0
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSeed(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/api/categorization/seed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[categorization.SeedResult](t, rec)
	assert.Positive(t, res.Categories)
	assert.Positive(t, res.Rules)

	rec = f.do(t, http.MethodPost, "/api/categorization/seed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[categorization.SeedResult](t, rec).Categories)
}

func TestCategorize(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/categorization/categorize", map[string]any{
		"description": "פז - תחנת דלק",
		"amount":      "-150.00",
		"date":        "2026-02-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[outcomeResponse](t, rec)
	require.NotNil(t, out.CategoryID)
	assert.Equal(t, f.categoryID(t, "Gas"), *out.CategoryID)
	assert.Equal(t, "rule", out.Method)
	assert.NotNil(t, out.RuleID)
	assert.Nil(t, out.Confidence)

	rec = f.do(t, http.MethodPost, "/api/categorization/categorize", map[string]any{"description": "משהו אחר לגמרי"})
	require.Equal(t, http.StatusOK, rec.Code)
	out = decode[outcomeResponse](t, rec)
	assert.Nil(t, out.CategoryID)
	assert.Equal(t, "none", out.Method)

	for _, body := range []map[string]any{
		{"description": ""},
		{"description": "x", "amount": "abc"},
		{"description": "x", "date": "01/02/2026"},
		{"description": "x", "unknown": true},
	} {
		rec := f.do(t, http.MethodPost, "/api/categorization/categorize", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestCategorizeStored(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	insert := func(desc string) int64 {
		id, err := f.store.Insert(ctx, &ledger.Transaction{
			AccountID:      1,
			Date:           time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
			Amount:         decimal.RequireFromString("-20"),
			Description:    desc,
			Categorization: ledger.Uncategorized(),
		})
		require.NoError(t, err)
		return id
	}
	gas := insert("סונול רעננה")
	insert("שופרסל דיל")
	insert("לא ידוע")

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/api/categorization/transactions/%d/categorize", gas), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rule", decode[outcomeResponse](t, rec).Method)

	rec = f.do(t, http.MethodPost, "/api/categorization/transactions/9999/categorize", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/categorization/categorize-all?use_llm=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[categorization.RunStats](t, rec)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.ByRule)
	assert.Equal(t, 1, stats.Failed)

	rec = f.do(t, http.MethodPost, "/api/categorization/categorize-all?use_llm=perhaps", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRules(t *testing.T) {
	f := newFixture(t, true)
	other := f.categoryID(t, "Other Expenses")

	rec := f.do(t, http.MethodPost, "/api/categorization/rules", map[string]any{
		"category_id": other, "pattern": "וטרינר", "priority": 500,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[ruleResponse](t, rec)
	assert.Equal(t, "keyword", created.Kind)
	assert.True(t, created.Active)

	rec = f.do(t, http.MethodGet, "/api/categorization/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Rules []ruleResponse `json:"rules"`
	}](t, rec)
	require.NotEmpty(t, list.Rules)
	assert.Equal(t, created.ID, list.Rules[0].ID)

	rec = f.do(t, http.MethodPost, "/api/categorization/categorize", map[string]any{"description": "מרפאה וטרינרית"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, other, *decode[outcomeResponse](t, rec).CategoryID)

	path := fmt.Sprintf("/api/categorization/rules/%d", created.ID)
	rec = f.do(t, http.MethodPatch, path, map[string]any{"kind": "regex", "pattern": "^מרפאה"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "regex", decode[ruleResponse](t, rec).Kind)

	rec = f.do(t, http.MethodPatch, path, map[string]any{"pattern": "(["})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/categorization/rules", map[string]any{"category_id": 9999, "pattern": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/categorization/rules", map[string]any{"category_id": other, "kind": "glob", "pattern": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCategories(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodGet, "/api/categorization/categories", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Categories []categoryResponse `json:"categories"`
	}](t, rec)
	assert.NotEmpty(t, list.Categories)

	rec = f.do(t, http.MethodPost, "/api/categorization/categories", map[string]any{"name": "Pets", "type": "expense"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	pets := decode[categoryResponse](t, rec)
	assert.False(t, pets.IsSystem)

	rec = f.do(t, http.MethodPost, "/api/categorization/categories", map[string]any{"name": "Vet", "type": "expense", "parent_id": pets.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	vet := decode[categoryResponse](t, rec)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"nesting", http.MethodPost, "/api/categorization/categories", map[string]any{"name": "Vet Clinic", "type": "expense", "parent_id": vet.ID}, http.StatusConflict},
		{"bad type", http.MethodPost, "/api/categorization/categories", map[string]any{"name": "X", "type": "transfer"}, http.StatusBadRequest},
		{"no name", http.MethodPost, "/api/categorization/categories", map[string]any{"name": " ", "type": "expense"}, http.StatusBadRequest},
		{"duplicate", http.MethodPost, "/api/categorization/categories", map[string]any{"name": "Pets", "type": "expense"}, http.StatusConflict},
		{"missing parent", http.MethodPost, "/api/categorization/categories", map[string]any{"name": "Y", "type": "expense", "parent_id": 9999}, http.StatusNotFound},
		{"parent with children", http.MethodDelete, fmt.Sprintf("/api/categorization/categories/%d", pets.ID), nil, http.StatusConflict},
		{"system category", http.MethodDelete, fmt.Sprintf("/api/categorization/categories/%d", f.categoryID(t, "Groceries")), nil, http.StatusConflict},
		{"missing category", http.MethodDelete, "/api/categorization/categories/9999", nil, http.StatusNotFound},
		{"bad id", http.MethodDelete, "/api/categorization/categories/abc", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/categorization/categories/%d", vet.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/categorization/categories/%d", pets.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
