package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/eugenenazirov/cultist-circle/internal/export"
	"github.com/eugenenazirov/cultist-circle/internal/item"
	"github.com/eugenenazirov/cultist-circle/internal/packing"
	"github.com/eugenenazirov/cultist-circle/internal/planner"
	"github.com/eugenenazirov/cultist-circle/internal/selector"
	"github.com/eugenenazirov/cultist-circle/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const maxBodyBytes = 4 << 20

var errTooManyItems = errors.New("too many items")

// Handler wires the planner and the item catalog into HTTP handlers.
type Handler struct {
	planner planner.Service
	storage storage.Storage

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(p planner.Service, store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		planner: p,
		storage: store,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetItems(w http.ResponseWriter, r *http.Request) {
	_ = r
	items, err := h.storage.GetItems()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.catalogResponse(items, ""))
}

func (h *Handler) handlePutItems(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid items", "items must contain at least one entry")
		return
	}

	items, err := expandPayload(req.Items)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid items", err.Error())
		return
	}

	if err := h.storage.SetItems(items); err != nil {
		if errors.Is(err, storage.ErrInvalidItems) || errors.Is(err, storage.ErrDuplicateID) {
			writeError(w, http.StatusBadRequest, "Invalid items", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	items, err = h.storage.GetItems()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.catalogResponse(items, "Catalog updated successfully"))
}

func (h *Handler) catalogResponse(items []item.Item, message string) catalogResponse {
	value, cost := item.Totals(items)
	return catalogResponse{
		Items:      items,
		Count:      len(items),
		TotalValue: value,
		TotalCost:  cost,
		UpdatedAt:  h.storage.UpdatedAt(),
		Message:    message,
	}
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pool, planReq, ok := h.resolveSelect(w, req)
	if !ok {
		return
	}

	start := time.Now()
	res, err := h.planner.Select(r.Context(), pool, planReq)
	if err != nil {
		writeSelectError(w, err)
		return
	}

	resp := newSelectResponse(res, planReq)
	resp.CalculationTimeMs = time.Since(start).Milliseconds()
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleFit(w http.ResponseWriter, r *http.Request) {
	var req fitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items, err := expandPayload(req.Items)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	width, height, err := h.gridSize(req.GridWidth, req.GridHeight)
	if err != nil {
		writeFitError(w, err)
		return
	}

	start := time.Now()
	res, err := h.planner.Fit(r.Context(), items, width, height)
	if err != nil {
		writeFitError(w, err)
		return
	}

	resp := newFitResponse(res, width, height)
	resp.CalculationTimeMs = time.Since(start).Milliseconds()
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleFitPDF(w http.ResponseWriter, r *http.Request) {
	var req fitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items, err := expandPayload(req.Items)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	width, height, err := h.gridSize(req.GridWidth, req.GridHeight)
	if err != nil {
		writeFitError(w, err)
		return
	}

	res, err := h.planner.Fit(r.Context(), items, width, height)
	if err != nil {
		writeFitError(w, err)
		return
	}
	if !res.Fit {
		writeError(w, http.StatusUnprocessableEntity, "Items do not fit", res.Detail, "Remove an item or use a larger grid")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="layout.pdf"`)
	if err := export.WriteGridPDF(w, items, res.Placements, width, height); err != nil {
		writeInternalError(w, err)
	}
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pool, planReq, ok := h.resolveSelect(w, req.selectRequest)
	if !ok {
		return
	}
	width, height, err := h.gridSize(req.GridWidth, req.GridHeight)
	if err != nil {
		writeFitError(w, err)
		return
	}
	planReq.GridWidth, planReq.GridHeight = width, height
	if req.CheckFit != nil {
		planReq.CheckFit = *req.CheckFit
	}

	plan, err := h.planner.Plan(r.Context(), pool, planReq)
	if err != nil {
		if isFitError(err) {
			writeFitError(w, err)
			return
		}
		writeSelectError(w, err)
		return
	}

	resp := planResponse{
		Selection:         newSelectResponse(plan.Selection, planReq),
		CalculationTimeMs: plan.Elapsed.Milliseconds(),
	}
	if plan.Fit != nil {
		fit := newFitResponse(*plan.Fit, planReq.GridWidth, planReq.GridHeight)
		resp.Fit = &fit
	}
	writeJSON(w, http.StatusOK, resp)
}

// resolveSelect merges request overrides into the planner defaults and picks
// the pool: request items when present, the catalog otherwise.
func (h *Handler) resolveSelect(w http.ResponseWriter, req selectRequest) ([]item.Item, planner.Request, bool) {
	planReq := h.planner.DefaultRequest()

	if req.Threshold != nil {
		planReq.Threshold = *req.Threshold
	}
	if req.MaxItems != nil {
		planReq.MaxItems = *req.MaxItems
	}
	if req.Strategy != "" {
		strategy, err := selector.ParseStrategy(req.Strategy)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
			return nil, planner.Request{}, false
		}
		planReq.Options.Strategy = strategy
	}
	if req.Slack != nil {
		planReq.Options.Slack = *req.Slack
	}
	if req.Seed != nil {
		planReq.Options.Rand = rand.New(rand.NewSource(*req.Seed))
	}

	if req.Items != nil {
		pool, err := expandPayload(req.Items)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
			return nil, planner.Request{}, false
		}
		return pool, planReq, true
	}

	pool, err := h.storage.GetItems()
	if err != nil {
		writeInternalError(w, err)
		return nil, planner.Request{}, false
	}
	return pool, planReq, true
}

// gridSize fills zero dimensions from the planner defaults and rejects grids
// the packing solver would refuse, before any search runs.
func (h *Handler) gridSize(width, height int) (int, int, error) {
	def := h.planner.DefaultRequest()
	if width == 0 {
		width = def.GridWidth
	}
	if height == 0 {
		height = def.GridHeight
	}
	switch {
	case width < 0 || height < 0:
		return 0, 0, fmt.Errorf("%w: %dx%d", packing.ErrInvalidGrid, width, height)
	case width > packing.MaxSide || height > packing.MaxSide:
		return 0, 0, fmt.Errorf("%w: %dx%d, limit %d", packing.ErrGridTooLarge, width, height, packing.MaxSide)
	}
	return width, height, nil
}

func writeSelectError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, selector.ErrInvalidThreshold),
		errors.Is(err, selector.ErrInvalidMaxItems),
		errors.Is(err, selector.ErrInvalidSlack),
		errors.Is(err, selector.ErrInvalidItem),
		errors.Is(err, selector.ErrUnknownStrategy):
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
	case errors.Is(err, selector.ErrTableTooLarge):
		writeError(w, http.StatusUnprocessableEntity, "Search too large", err.Error(),
			"Use strategy \"auto\" or \"bnb\", or lower the threshold")
	default:
		writeInternalError(w, err)
	}
}

func isFitError(err error) bool {
	return errors.Is(err, packing.ErrInvalidGrid) ||
		errors.Is(err, packing.ErrGridTooLarge) ||
		errors.Is(err, packing.ErrInvalidItem)
}

func writeFitError(w http.ResponseWriter, err error) {
	if isFitError(err) {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	writeInternalError(w, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "Invalid request", fmt.Sprintf("payload exceeds %d bytes", maxErr.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return false
	}
	return true
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// itemPayload is an item with an optional copy count; a missing count means one.
type itemPayload struct {
	item.Item
	Count *int `json:"count,omitempty"`
}

// expandPayload expands counted entries, refusing pools that would exceed
// storage.MaxItems before anything is allocated for the copies.
func expandPayload(payload []itemPayload) ([]item.Item, error) {
	stacks := make([]item.Stack, 0, len(payload))
	for _, p := range payload {
		count := 1
		if p.Count != nil {
			count = *p.Count
		}
		stacks = append(stacks, item.Stack{Item: p.Item, Count: count})
	}
	if n := item.ExpandedLen(stacks); n > storage.MaxItems {
		return nil, fmt.Errorf("%w: %d entries after expanding counts, limit %d", errTooManyItems, n, storage.MaxItems)
	}
	return item.Expand(stacks), nil
}

type itemsRequest struct {
	Items []itemPayload `json:"items"`
}

type selectRequest struct {
	Threshold *int64        `json:"threshold"`
	MaxItems  *int          `json:"maxItems"`
	Strategy  string        `json:"strategy"`
	Slack     *int64        `json:"slack"`
	Seed      *int64        `json:"seed"`
	Items     []itemPayload `json:"items"`
}

type fitRequest struct {
	Items      []itemPayload `json:"items"`
	GridWidth  int           `json:"gridWidth"`
	GridHeight int           `json:"gridHeight"`
}

type planRequest struct {
	selectRequest
	GridWidth  int   `json:"gridWidth"`
	GridHeight int   `json:"gridHeight"`
	CheckFit   *bool `json:"checkFit"`
}

type selectResponse struct {
	Found             bool                `json:"found"`
	Threshold         int64               `json:"threshold"`
	MaxItems          int                 `json:"maxItems"`
	Strategy          string              `json:"strategy"`
	Selection         *selector.Selection `json:"selection,omitempty"`
	Fallback          *selector.Selection `json:"fallback,omitempty"`
	Partial           bool                `json:"partial"`
	Nodes             int                 `json:"nodes"`
	Candidates        int                 `json:"candidates,omitempty"`
	CalculationTimeMs int64               `json:"calculationTimeMs"`
}

func newSelectResponse(res selector.Result, req planner.Request) selectResponse {
	return selectResponse{
		Found:      res.Found(),
		Threshold:  req.Threshold,
		MaxItems:   req.MaxItems,
		Strategy:   string(res.Strategy),
		Selection:  res.Best,
		Fallback:   res.Fallback,
		Partial:    res.Partial,
		Nodes:      res.Nodes,
		Candidates: res.Candidates,
	}
}

type fitResponse struct {
	Fit               bool                `json:"fit"`
	Reason            packing.Reason      `json:"reason"`
	Detail            string              `json:"detail,omitempty"`
	GridWidth         int                 `json:"gridWidth"`
	GridHeight        int                 `json:"gridHeight"`
	Placements        []packing.Placement `json:"placements"`
	Grid              []string            `json:"grid,omitempty"`
	Partial           bool                `json:"partial"`
	Nodes             int                 `json:"nodes"`
	CalculationTimeMs int64               `json:"calculationTimeMs"`
}

func newFitResponse(res packing.Result, width, height int) fitResponse {
	resp := fitResponse{
		Fit:        res.Fit,
		Reason:     res.Reason,
		Detail:     res.Detail,
		GridWidth:  width,
		GridHeight: height,
		Placements: res.Placements,
		Partial:    res.Partial,
		Nodes:      res.Nodes,
	}
	if resp.Placements == nil {
		resp.Placements = []packing.Placement{}
	}
	if res.Fit {
		resp.Grid = strings.Split(strings.TrimRight(packing.Render(res.Placements, width, height).String(), "\n"), "\n")
	}
	return resp
}

type planResponse struct {
	Selection         selectResponse `json:"selection"`
	Fit               *fitResponse   `json:"fit,omitempty"`
	CalculationTimeMs int64          `json:"calculationTimeMs"`
}

type catalogResponse struct {
	Items      []item.Item `json:"items"`
	Count      int         `json:"count"`
	TotalValue int64       `json:"totalValue"`
	TotalCost  int64       `json:"totalCost"`
	UpdatedAt  time.Time   `json:"updatedAt"`
	Message    string      `json:"message,omitempty"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
