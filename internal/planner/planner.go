// Package planner composes the selector and the packing solver: it picks the
// cheapest qualifying subset and then checks that the subset fits the
// container grid. Each stage runs under the configured search timeout.
package planner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/cultist-circle/internal/item"
	"github.com/eugenenazirov/cultist-circle/internal/packing"
	"github.com/eugenenazirov/cultist-circle/internal/selector"
)

// Settings are the defaults a Planner applies to every request.
type Settings struct {
	Threshold  int64
	MaxItems   int
	Selector   selector.Options
	GridWidth  int
	GridHeight int
	Packing    packing.Options
	// Timeout bounds each stage; zero leaves only the caller's context.
	Timeout time.Duration
}

// Request describes a single selection or plan.
type Request struct {
	Threshold  int64
	MaxItems   int
	Options    selector.Options
	CheckFit   bool
	GridWidth  int
	GridHeight int
}

// Plan is the outcome of a select-then-fit run. Fit is nil when no subset was
// found or the fit check was not requested.
type Plan struct {
	Selection selector.Result
	Fit       *packing.Result
	Elapsed   time.Duration
}

// Service describes the operations exposed to the transport layers.
type Service interface {
	DefaultRequest() Request
	Select(ctx context.Context, pool []item.Item, req Request) (selector.Result, error)
	Fit(ctx context.Context, items []item.Item, width, height int) (packing.Result, error)
	Plan(ctx context.Context, pool []item.Item, req Request) (Plan, error)
}

// Planner implements Service.
type Planner struct {
	logger   *zap.Logger
	settings Settings
	now      func() time.Time
}

// New constructs a Planner. A nil logger discards log output.
func New(logger *zap.Logger, settings Settings) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.GridWidth <= 0 {
		settings.GridWidth = packing.DefaultWidth
	}
	if settings.GridHeight <= 0 {
		settings.GridHeight = packing.DefaultHeight
	}
	return &Planner{logger: logger, settings: settings, now: time.Now}
}

// DefaultRequest returns a request carrying the configured defaults, with the
// fit check enabled.
func (p *Planner) DefaultRequest() Request {
	return Request{
		Threshold:  p.settings.Threshold,
		MaxItems:   p.settings.MaxItems,
		Options:    p.settings.Selector,
		CheckFit:   true,
		GridWidth:  p.settings.GridWidth,
		GridHeight: p.settings.GridHeight,
	}
}

func (p *Planner) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.settings.Timeout > 0 {
		return context.WithTimeout(ctx, p.settings.Timeout)
	}
	return context.WithCancel(ctx)
}

// Select runs the selector for req over pool.
func (p *Planner) Select(ctx context.Context, pool []item.Item, req Request) (selector.Result, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	start := p.now()
	res, err := selector.Select(ctx, pool, req.Threshold, req.MaxItems, req.Options)
	if err != nil {
		p.logger.Warn("selection rejected",
			zap.Int("pool", len(pool)),
			zap.Int64("threshold", req.Threshold),
			zap.Int("max_items", req.MaxItems),
			zap.Error(err),
		)
		return selector.Result{}, err
	}

	fields := []zap.Field{
		zap.String("strategy", string(res.Strategy)),
		zap.Int("pool", len(pool)),
		zap.Int64("threshold", req.Threshold),
		zap.Int("max_items", req.MaxItems),
		zap.Bool("found", res.Found()),
		zap.Bool("partial", res.Partial),
		zap.Int("nodes", res.Nodes),
		zap.Duration("duration", p.now().Sub(start)),
	}
	if res.Found() {
		fields = append(fields, zap.Int64("cost", res.Best.TotalCost), zap.Int64("value", res.Best.TotalValue))
	}
	if res.Partial {
		p.logger.Warn("selection stopped early", fields...)
	} else {
		p.logger.Info("selection completed", fields...)
	}
	return res, nil
}

// Fit checks whether items fit a width x height grid. Zero dimensions fall
// back to the configured grid.
func (p *Planner) Fit(ctx context.Context, items []item.Item, width, height int) (packing.Result, error) {
	if width == 0 {
		width = p.settings.GridWidth
	}
	if height == 0 {
		height = p.settings.GridHeight
	}

	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	start := p.now()
	res, err := packing.Fit(ctx, items, width, height, p.settings.Packing)
	if err != nil {
		p.logger.Warn("fit rejected", zap.Int("items", len(items)), zap.Error(err))
		return packing.Result{}, err
	}

	p.logger.Info("fit completed",
		zap.Int("items", len(items)),
		zap.Int("grid_width", width),
		zap.Int("grid_height", height),
		zap.Bool("fit", res.Fit),
		zap.Stringer("reason", res.Reason),
		zap.Int("nodes", res.Nodes),
		zap.Bool("partial", res.Partial),
		zap.Duration("duration", p.now().Sub(start)),
	)
	return res, nil
}

// Plan selects a subset and, when req.CheckFit is set, checks it against the grid.
func (p *Planner) Plan(ctx context.Context, pool []item.Item, req Request) (Plan, error) {
	start := p.now()

	sel, err := p.Select(ctx, pool, req)
	if err != nil {
		return Plan{}, err
	}

	plan := Plan{Selection: sel}
	if sel.Found() && req.CheckFit {
		fit, err := p.Fit(ctx, sel.Best.Items, req.GridWidth, req.GridHeight)
		if err != nil {
			return Plan{}, err
		}
		plan.Fit = &fit
	}

	plan.Elapsed = p.now().Sub(start)
	return plan, nil
}
