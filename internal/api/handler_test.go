package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/cultist-circle/internal/item"
	"github.com/eugenenazirov/cultist-circle/internal/packing"
	"github.com/eugenenazirov/cultist-circle/internal/planner"
	"github.com/eugenenazirov/cultist-circle/internal/selector"
	"github.com/eugenenazirov/cultist-circle/internal/storage"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *controllableClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testPlanner(t *testing.T) *planner.Planner {
	t.Helper()
	return planner.New(zaptest.NewLogger(t), planner.Settings{
		Threshold:  400000,
		MaxItems:   5,
		Selector:   selector.DefaultOptions(),
		GridWidth:  9,
		GridHeight: 6,
		Timeout:    5 * time.Second,
	})
}

func testCatalog() []item.Item {
	return []item.Item{
		{ID: "gpu", Name: "Graphics card", Value: 124000, Cost: 310000, Width: 2, Height: 1},
		{ID: "ledx", Name: "LEDX", Value: 600000, Cost: 900000},
		{ID: "a", Name: "Item A", Value: 200000, Cost: 5, Width: 2, Height: 2},
		{ID: "b", Name: "Item B", Value: 200000, Cost: 5, Width: 1, Height: 3},
	}
}

func setupTestRouter(t *testing.T) (http.Handler, *controllableClock) {
	t.Helper()

	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))
	store := storage.NewMemoryStorageWithClock(clock.Now)
	if err := store.SetItems(testCatalog()); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}

	handler := NewHandler(testPlanner(t), store, WithClock(clock.Now))
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false), WithRateLimit(0, 0))

	return router, clock
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	resp := httptest.NewRecorder()
	writeInternalError(resp, assertError("boom"))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 status, got %d", resp.Code)
	}
}

type assertError string

func (a assertError) Error() string { return string(a) }

func TestHealthEndpoint(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}
	decodeBody(t, rec, &body)

	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %s", body.Status)
	}
	if !body.Timestamp.Equal(clock.Now()) {
		t.Fatalf("expected timestamp %s, got %s", clock.Now(), body.Timestamp)
	}
}

func TestGetItemsReturnsCatalog(t *testing.T) {
	router, clock := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/api/items", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Items      []item.Item `json:"items"`
		Count      int         `json:"count"`
		TotalValue int64       `json:"totalValue"`
		UpdatedAt  time.Time   `json:"updatedAt"`
	}
	decodeBody(t, rec, &body)

	if body.Count != 4 || len(body.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", body.Count)
	}
	if body.TotalValue != 1124000 {
		t.Fatalf("unexpected total value %d", body.TotalValue)
	}
	if body.Items[1].Width != 1 {
		t.Fatalf("expected normalised width, got %d", body.Items[1].Width)
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}
}

func TestPutItemsUpdatesStorage(t *testing.T) {
	router, clock := setupTestRouter(t)
	clock.Advance(time.Hour)

	rec := doJSON(t, router, http.MethodPut, "/api/items", map[string]any{
		"items": []map[string]any{
			{"id": "bolts", "name": "Bolts", "value": 12000, "cost": 3000, "count": 3},
			{"id": "tp", "value": 5000, "cost": 1500},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Items     []item.Item `json:"items"`
		Message   string      `json:"message"`
		UpdatedAt time.Time   `json:"updatedAt"`
	}
	decodeBody(t, rec, &body)

	if body.Message == "" {
		t.Fatalf("expected success message, got empty string")
	}
	wantIDs := []string{"bolts", "bolts#2", "bolts#3", "tp"}
	if len(body.Items) != len(wantIDs) {
		t.Fatalf("expected %d items, got %d", len(wantIDs), len(body.Items))
	}
	for i, id := range wantIDs {
		if body.Items[i].ID != id {
			t.Fatalf("expected id %s at position %d, got %s", id, i, body.Items[i].ID)
		}
	}
	if !body.UpdatedAt.Equal(clock.Now()) {
		t.Fatalf("expected updatedAt %s, got %s", clock.Now(), body.UpdatedAt)
	}
}

func TestPutItemsValidatesInput(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		name    string
		payload any
	}{
		{"empty", map[string]any{"items": []any{}}},
		{"negative value", map[string]any{"items": []map[string]any{{"id": "x", "value": -1}}}},
		{"duplicate id", map[string]any{"items": []map[string]any{{"id": "x", "value": 1}, {"id": "x", "value": 2}}}},
		{"count above limit", map[string]any{"items": []map[string]any{{"id": "x", "value": 1, "count": 5_000_000}}}},
		{"counts summing above limit", map[string]any{"items": []map[string]any{
			{"id": "x", "value": 1, "count": storage.MaxItems},
			{"id": "y", "value": 1},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPut, "/api/items", tt.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
		})
	}
}

func TestPutItemsExpandsStacksWithoutIDs(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPut, "/api/items", map[string]any{
		"items": []map[string]any{
			{"name": "bolt", "value": 1000, "cost": 5, "count": 2},
			{"name": "nut", "value": 2000, "cost": 7, "count": 2},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Items []item.Item `json:"items"`
	}
	decodeBody(t, rec, &body)

	if len(body.Items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(body.Items))
	}
	seen := make(map[string]bool)
	for _, it := range body.Items {
		if it.ID == "" || seen[it.ID] {
			t.Fatalf("expected unique non-empty ids, got %q", it.ID)
		}
		seen[it.ID] = true
	}
}

func TestSearchEndpointsRejectOversizedInlineItems(t *testing.T) {
	router, _ := setupTestRouter(t)

	payload := map[string]any{
		"items": []map[string]any{{"id": "x", "value": 1, "count": storage.MaxItems + 1}},
	}
	for _, path := range []string{"/api/select", "/api/plan", "/api/fit", "/api/fit/pdf"} {
		t.Run(path, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, path, payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), "too many items") {
				t.Fatalf("expected item limit in body, got %s", rec.Body.String())
			}
		})
	}
}

func TestPutItemsRejectsMalformedJSON(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/api/items", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

type selectBody struct {
	Found     bool   `json:"found"`
	Strategy  string `json:"strategy"`
	Threshold int64  `json:"threshold"`
	Selection *struct {
		Indices    []int `json:"indices"`
		TotalValue int64 `json:"totalValue"`
		TotalCost  int64 `json:"totalCost"`
	} `json:"selection"`
	Fallback *struct {
		TotalValue int64 `json:"totalValue"`
	} `json:"fallback"`
	Partial bool `json:"partial"`
}

func TestSelectUsesCatalog(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/select", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body selectBody
	decodeBody(t, rec, &body)

	if !body.Found || body.Selection == nil {
		t.Fatalf("expected a selection, got %+v", body)
	}
	if body.Threshold != 400000 {
		t.Fatalf("expected default threshold, got %d", body.Threshold)
	}
	if body.Selection.TotalCost != 10 {
		t.Fatalf("expected cost 10, got %d", body.Selection.TotalCost)
	}
	if got := body.Selection.Indices; len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("unexpected indices %v", got)
	}
}

func TestSelectWithRequestItems(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/select", map[string]any{
		"threshold": 30,
		"maxItems":  2,
		"strategy":  "bnb",
		"items": []map[string]any{
			{"id": "x", "value": 10, "cost": 1, "count": 3},
			{"id": "y", "value": 30, "cost": 5},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body selectBody
	decodeBody(t, rec, &body)

	if body.Strategy != "bnb" {
		t.Fatalf("expected bnb strategy, got %s", body.Strategy)
	}
	if !body.Found || body.Selection.TotalCost != 5 {
		t.Fatalf("expected cost 5 selection, got %+v", body.Selection)
	}
}

func TestSelectNotFoundIsOK(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/select", map[string]any{
		"threshold": 5000000,
		"strategy":  "bnb",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body selectBody
	decodeBody(t, rec, &body)
	if body.Found || body.Selection != nil {
		t.Fatalf("expected no selection, got %+v", body.Selection)
	}
	if body.Fallback == nil || body.Fallback.TotalValue != 1124000 {
		t.Fatalf("expected fallback with every item, got %+v", body.Fallback)
	}
}

func TestSelectValidation(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		name    string
		payload map[string]any
		status  int
	}{
		{"negative threshold", map[string]any{"threshold": -1}, http.StatusBadRequest},
		{"negative max items", map[string]any{"maxItems": -2}, http.StatusBadRequest},
		{"unknown strategy", map[string]any{"strategy": "genetic"}, http.StatusBadRequest},
		{"negative slack", map[string]any{"slack": -5}, http.StatusBadRequest},
		{"invalid item", map[string]any{"items": []map[string]any{{"value": 1, "cost": -3}}}, http.StatusBadRequest},
		{"table too large", map[string]any{"strategy": "dp", "threshold": int64(1) << 40}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/select", tt.payload)
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSelectSeedIsReproducible(t *testing.T) {
	router, _ := setupTestRouter(t)

	items := make([]map[string]any, 6)
	for i := range items {
		items[i] = map[string]any{"value": 100, "cost": 1}
	}
	payload := map[string]any{"threshold": 100, "maxItems": 1, "seed": 7, "items": items}

	var first []int
	for i := 0; i < 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/api/select", payload)
		var body selectBody
		decodeBody(t, rec, &body)
		if !body.Found {
			t.Fatalf("expected a selection")
		}
		if first == nil {
			first = body.Selection.Indices
			continue
		}
		if body.Selection.Indices[0] != first[0] {
			t.Fatalf("same seed produced %v then %v", first, body.Selection.Indices)
		}
	}
}

type fitBody struct {
	Fit        bool     `json:"fit"`
	Reason     string   `json:"reason"`
	Detail     string   `json:"detail"`
	GridWidth  int      `json:"gridWidth"`
	Grid       []string `json:"grid"`
	Placements []struct {
		X, Y, Width, Height, Index int
	} `json:"placements"`
}

func TestFitEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/fit", map[string]any{
		"items": []map[string]any{
			{"id": "a", "width": 2, "height": 2},
			{"id": "b", "width": 1, "height": 1, "count": 2},
		},
		"gridWidth":  4,
		"gridHeight": 2,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body fitBody
	decodeBody(t, rec, &body)

	if !body.Fit || len(body.Placements) != 3 {
		t.Fatalf("expected 3 placements, got %+v", body)
	}
	want := []string{"AABC", "AA.."}
	if len(body.Grid) != len(want) {
		t.Fatalf("unexpected grid %v", body.Grid)
	}
	for i := range want {
		if body.Grid[i] != want[i] {
			t.Fatalf("grid row %d: want %s, got %s", i, want[i], body.Grid[i])
		}
	}
	if body.Reason != "none" {
		t.Fatalf("expected reason none, got %s", body.Reason)
	}
}

func TestFitEndpointReportsReason(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/fit", map[string]any{
		"items": []map[string]any{{"id": "rail", "width": 10, "height": 1}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body fitBody
	decodeBody(t, rec, &body)
	if body.Fit || body.Reason != "item_too_large" || body.Detail == "" {
		t.Fatalf("unexpected result %+v", body)
	}
	if body.GridWidth != 9 {
		t.Fatalf("expected default grid width, got %d", body.GridWidth)
	}
}

func TestFitEndpointRejectsInvalidGrid(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/fit", map[string]any{"gridWidth": -3})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestFitEndpointsRejectOversizedGrid(t *testing.T) {
	router, _ := setupTestRouter(t)

	tests := []struct {
		path    string
		payload map[string]any
	}{
		{"/api/fit", map[string]any{"gridWidth": 100_000, "gridHeight": 100_000}},
		{"/api/fit/pdf", map[string]any{"gridWidth": packing.MaxSide + 1}},
		{"/api/plan", map[string]any{"gridHeight": packing.MaxSide + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, tt.path, tt.payload)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestFitPDFEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/fit/pdf", map[string]any{
		"items": []map[string]any{{"id": "a", "name": "Alpha", "width": 2, "height": 2}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("body is not a PDF document")
	}

	rec = doJSON(t, router, http.MethodPost, "/api/fit/pdf", map[string]any{
		"items": []map[string]any{{"id": "big", "width": 5, "height": 5, "count": 3}},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rec.Code)
	}
}

func TestPlanEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/plan", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Selection selectBody `json:"selection"`
		Fit       *fitBody   `json:"fit"`
	}
	decodeBody(t, rec, &body)

	if !body.Selection.Found {
		t.Fatalf("expected a selection")
	}
	if body.Fit == nil || !body.Fit.Fit {
		t.Fatalf("expected the selection to fit, got %+v", body.Fit)
	}
	if len(body.Fit.Grid) != 6 {
		t.Fatalf("expected 6 grid rows, got %d", len(body.Fit.Grid))
	}
}

func TestPlanEndpointWithoutFit(t *testing.T) {
	router, _ := setupTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/plan", map[string]any{"checkFit": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body struct {
		Fit *fitBody `json:"fit"`
	}
	decodeBody(t, rec, &body)
	if body.Fit != nil {
		t.Fatalf("expected fit to be omitted")
	}
}

func TestCorsPreflight(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/select", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected Access-Control-Allow-Origin header to be set")
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "test-request-id")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "test-request-id" {
		t.Fatalf("expected X-Request-ID header to be echoed, got %s", got)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if got := rec.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Fatalf("expected generated UUID request id, got %q", got)
	}
}
