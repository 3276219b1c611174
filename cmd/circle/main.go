package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/eugenenazirov/cultist-circle/internal/application"
	"github.com/eugenenazirov/cultist-circle/internal/config"
	"github.com/eugenenazirov/cultist-circle/internal/export"
	"github.com/eugenenazirov/cultist-circle/internal/item"
	"github.com/eugenenazirov/cultist-circle/internal/logging"
	"github.com/eugenenazirov/cultist-circle/internal/packing"
	"github.com/eugenenazirov/cultist-circle/internal/planner"
	"github.com/eugenenazirov/cultist-circle/internal/selector"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// searchFlags holds the selection flags of one command. The *Set fields
// record whether a flag was given, so any explicit value, negatives included,
// replaces the configured default and reaches parameter validation.
type searchFlags struct {
	threshold    *int64
	thresholdSet bool
	maxItems     *int
	maxItemsSet  bool
	strategy     *string
	slack        *int64
	slackSet     bool
	seed         *int64
	seedSet      bool
	noFit        *bool
}

func addSearchFlags(cmd *kingpin.CmdClause) *searchFlags {
	f := &searchFlags{}
	f.threshold = cmd.Flag("threshold", "Value the selection must reach").IsSetByUser(&f.thresholdSet).Int64()
	f.maxItems = cmd.Flag("max-items", "Maximum number of items in the selection").IsSetByUser(&f.maxItemsSet).Int()
	f.strategy = cmd.Flag("strategy", "Selection strategy (auto, dp, bnb)").String()
	f.slack = cmd.Flag("slack", "Overshoot allowance kept in the DP table").IsSetByUser(&f.slackSet).Int64()
	f.seed = cmd.Flag("seed", "Pick randomly among equally cheap selections using this seed").IsSetByUser(&f.seedSet).Int64()
	return f
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := kingpin.New("circle", "Cultist Circle calculator - offline selection and fit checks")
	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)
	app.Terminate(nil)

	configFile := app.Flag("config", "Path to YAML configuration file").String()
	envFile := app.Flag("env-file", "Path to a dotenv file loaded before environment variables").String()
	itemsFile := app.Flag("items", "CSV, XLSX or JSON item list").Short('i').String()
	logLevel := app.Flag("log-level", "Log level (debug, info, warn, error)").Default("warn").String()
	asJSON := app.Flag("json", "Print results as JSON").Bool()
	timeout := app.Flag("timeout", "Time limit for each search stage").Duration()

	selectCmd := app.Command("select", "Find the cheapest item set reaching the threshold")
	selectFlags := addSearchFlags(selectCmd)

	fitCmd := app.Command("fit", "Check whether every listed item fits the grid")
	fitWidth := fitCmd.Flag("width", "Grid width in cells").Int()
	fitHeight := fitCmd.Flag("height", "Grid height in cells").Int()
	fitPDF := fitCmd.Flag("pdf", "Write the arrangement to a PDF file").String()

	planCmd := app.Command("plan", "Select the cheapest set and check it fits the grid")
	planFlags := addSearchFlags(planCmd)
	planFlags.noFit = planCmd.Flag("no-fit", "Skip the fit check").Bool()
	planPDF := planCmd.Flag("pdf", "Write the arrangement to a PDF file").String()

	command, err := app.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "circle: %v\n", err)
		return 2
	}

	overrides := &config.CLIOverrides{
		ConfigFile:    *configFile,
		EnvFile:       *envFile,
		ItemsFile:     itemsFile,
		LogLevel:      logLevel,
		SearchTimeout: timeout,
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		fmt.Fprintf(stderr, "circle: load configuration: %v\n", err)
		return 1
	}

	logger, err := logging.NewConsole(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "circle: %v\n", err)
		return 1
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.ItemsFile == "" {
		fmt.Fprintln(stderr, "circle: no item list given, use --items or ITEMS_FILE")
		return 1
	}
	items, err := application.LoadItems(cfg.ItemsFile, logger)
	if err != nil {
		fmt.Fprintf(stderr, "circle: %v\n", err)
		return 1
	}

	p := planner.New(logger, application.PlannerSettings(cfg))
	out := &printer{w: stdout, json: *asJSON}

	switch command {
	case selectCmd.FullCommand():
		req, err := buildRequest(p, selectFlags)
		if err != nil {
			return fail(stderr, err)
		}
		res, err := p.Select(ctx, items, req)
		if err != nil {
			return fail(stderr, err)
		}
		out.selection(res, req)

	case fitCmd.FullCommand():
		res, err := p.Fit(ctx, items, *fitWidth, *fitHeight)
		if err != nil {
			return fail(stderr, err)
		}
		width, height := gridSize(p, *fitWidth, *fitHeight)
		out.fit(items, res, width, height)
		if !res.Fit {
			return 3
		}
		if err := writePDF(*fitPDF, items, res, width, height); err != nil {
			return fail(stderr, err)
		}

	case planCmd.FullCommand():
		req, err := buildRequest(p, planFlags)
		if err != nil {
			return fail(stderr, err)
		}
		plan, err := p.Plan(ctx, items, req)
		if err != nil {
			return fail(stderr, err)
		}
		out.plan(plan, req)
		if !plan.Selection.Found() || (plan.Fit != nil && !plan.Fit.Fit) {
			return 3
		}
		if plan.Fit != nil {
			if err := writePDF(*planPDF, plan.Selection.Best.Items, *plan.Fit, req.GridWidth, req.GridHeight); err != nil {
				return fail(stderr, err)
			}
		}
	}

	return 0
}

func fail(w io.Writer, err error) int {
	fmt.Fprintf(w, "circle: %v\n", err)
	return 1
}

func buildRequest(p *planner.Planner, f *searchFlags) (planner.Request, error) {
	req := p.DefaultRequest()
	if f.thresholdSet {
		req.Threshold = *f.threshold
	}
	if f.maxItemsSet {
		req.MaxItems = *f.maxItems
	}
	if f.slackSet {
		req.Options.Slack = *f.slack
	}
	if *f.strategy != "" {
		strategy, err := selector.ParseStrategy(*f.strategy)
		if err != nil {
			return planner.Request{}, err
		}
		req.Options.Strategy = strategy
	}
	if f.seedSet {
		req.Options.Rand = rand.New(rand.NewSource(*f.seed))
	}
	if f.noFit != nil && *f.noFit {
		req.CheckFit = false
	}
	return req, nil
}

func gridSize(p *planner.Planner, width, height int) (int, int) {
	def := p.DefaultRequest()
	if width == 0 {
		width = def.GridWidth
	}
	if height == 0 {
		height = def.GridHeight
	}
	return width, height
}

func writePDF(path string, items []item.Item, res packing.Result, width, height int) error {
	if path == "" {
		return nil
	}
	if !res.Fit {
		return errors.New("no arrangement to export")
	}
	return export.ExportGridPDF(path, items, res.Placements, width, height)
}

type printer struct {
	w    io.Writer
	json bool
}

func (p *printer) encode(v any) {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

type selectionOutput struct {
	Found      bool                `json:"found"`
	Strategy   string              `json:"strategy"`
	Threshold  int64               `json:"threshold"`
	MaxItems   int                 `json:"maxItems"`
	Partial    bool                `json:"partial"`
	Nodes      int                 `json:"nodes"`
	Selection  *selector.Selection `json:"selection,omitempty"`
	Fallback   *selector.Selection `json:"fallback,omitempty"`
	ElapsedMs  int64               `json:"elapsedMs,omitempty"`
	Placements []packing.Placement `json:"placements,omitempty"`
	Fit        *bool               `json:"fit,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

func newSelectionOutput(res selector.Result, req planner.Request) selectionOutput {
	return selectionOutput{
		Found:     res.Found(),
		Strategy:  string(res.Strategy),
		Threshold: req.Threshold,
		MaxItems:  req.MaxItems,
		Partial:   res.Partial,
		Nodes:     res.Nodes,
		Selection: res.Best,
		Fallback:  res.Fallback,
	}
}

func (p *printer) selection(res selector.Result, req planner.Request) {
	if p.json {
		p.encode(newSelectionOutput(res, req))
		return
	}

	fmt.Fprintf(p.w, "strategy %s, %d nodes", res.Strategy, res.Nodes)
	if res.Partial {
		fmt.Fprint(p.w, ", stopped early")
	}
	fmt.Fprintln(p.w)

	if !res.Found() {
		fmt.Fprintf(p.w, "no set of at most %d items reaches %d\n", req.MaxItems, req.Threshold)
		if res.Fallback != nil {
			fmt.Fprintf(p.w, "closest: value %d, cost %d\n", res.Fallback.TotalValue, res.Fallback.TotalCost)
			p.items(res.Fallback.Items)
		}
		return
	}

	fmt.Fprintf(p.w, "%d items, value %d (threshold %d), cost %d\n",
		len(res.Best.Items), res.Best.TotalValue, req.Threshold, res.Best.TotalCost)
	p.items(res.Best.Items)
}

func (p *printer) items(items []item.Item) {
	for _, it := range items {
		n := it.Normalize()
		fmt.Fprintf(p.w, "  %-32s %dx%d  value %9d  cost %9d\n", n.Label(), n.Width, n.Height, n.Value, n.Cost)
	}
}

func (p *printer) fit(items []item.Item, res packing.Result, width, height int) {
	if p.json {
		p.encode(struct {
			Fit        bool                `json:"fit"`
			Reason     packing.Reason      `json:"reason"`
			Detail     string              `json:"detail,omitempty"`
			Placements []packing.Placement `json:"placements"`
			Nodes      int                 `json:"nodes"`
		}{res.Fit, res.Reason, res.Detail, res.Placements, res.Nodes})
		return
	}

	if !res.Fit {
		fmt.Fprintf(p.w, "%d items do not fit %dx%d: %s (%s)\n", len(items), width, height, res.Reason, res.Detail)
		return
	}
	fmt.Fprintf(p.w, "%d items fit %dx%d\n", len(items), width, height)
	fmt.Fprint(p.w, indent(packing.Render(res.Placements, width, height).String()))
}

func (p *printer) plan(plan planner.Plan, req planner.Request) {
	if p.json {
		out := newSelectionOutput(plan.Selection, req)
		out.ElapsedMs = plan.Elapsed.Round(time.Millisecond).Milliseconds()
		if plan.Fit != nil {
			fit := plan.Fit.Fit
			out.Fit = &fit
			out.Placements = plan.Fit.Placements
			out.Reason = plan.Fit.Reason.String()
		}
		p.encode(out)
		return
	}

	p.selection(plan.Selection, req)
	if plan.Fit != nil {
		p.fit(plan.Selection.Best.Items, *plan.Fit, req.GridWidth, req.GridHeight)
	}
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n") + "\n"
}
