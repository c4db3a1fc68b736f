package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/TobiSchelling/fidestats/internal/aggregate"
	"github.com/TobiSchelling/fidestats/internal/config"
	"github.com/TobiSchelling/fidestats/internal/country"
	"github.com/TobiSchelling/fidestats/internal/enrich"
	"github.com/TobiSchelling/fidestats/internal/export"
	"github.com/TobiSchelling/fidestats/internal/filter"
	"github.com/TobiSchelling/fidestats/internal/metrics"
	"github.com/TobiSchelling/fidestats/internal/model"
	"github.com/TobiSchelling/fidestats/internal/report"
	"github.com/TobiSchelling/fidestats/internal/table"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID   string
	Steps   []StepResult
	Dataset model.Dataset
	Groups  []model.AggregateGroup
	Report  string
	// Outputs lists the files written, in write order.
	Outputs []string
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Pipeline runs load, resolve, enrich, filter, aggregate and export over
// one set of source tables.
type Pipeline struct {
	cfg    *config.Config
	now    func() time.Time
	dryRun bool

	step  int
	total int
}

// New creates a new pipeline.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{cfg: cfg, now: time.Now}
}

// WithClock replaces the clock used for timestamps and durations.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// WithDryRun makes Run compute everything in memory without writing output
// or pushing metrics.
func (p *Pipeline) WithDryRun(dry bool) *Pipeline {
	p.dryRun = dry
	return p
}

type tables struct {
	players, ratings, countries, iso3 *table.Table
}

// Run executes the pipeline. A failing load, resolve or enrich step stops the
// run; later steps are not attempted.
func (p *Pipeline) Run(ctx context.Context) *Result {
	start := p.now()
	r := &Result{RunID: uuid.NewString()}
	run := metrics.NewRun()

	p.step = 0
	p.total = 6
	if p.cfg.Metrics.PushgatewayURL != "" && !p.dryRun {
		p.total = 7
	}

	t, step := p.runLoad()
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	countries, step := p.runResolve(t)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}

	enriched, step := p.runEnrich(t, countries)
	r.Steps = append(r.Steps, step)
	if step.Err != nil {
		return r
	}
	for _, reason := range enriched.Skips.Reasons() {
		run.ObserveSkipped(string(reason), enriched.Skips.Count(reason))
	}

	d, reports, step := p.runFilter(enriched.Dataset)
	r.Steps = append(r.Steps, step)
	for _, rep := range reports {
		run.ObserveRemoved(rep.Stage, rep.Removed())
	}
	r.Dataset = d

	r.Groups, step = p.runAggregate(d)
	r.Steps = append(r.Steps, step)

	r.Report = report.Build(report.Input{
		Dataset:   d,
		Groups:    len(r.Groups),
		Filters:   reports,
		Skips:     enriched.Skips,
		Unmatched: enriched.Unmatched,
	})

	step = p.runExport(r)
	r.Steps = append(r.Steps, step)
	if step.Err != nil || p.total < 7 {
		return r
	}

	run.ObserveOutput(len(d.Records), d.UniquePlayers(), len(r.Groups))
	run.ObserveDone(p.now().Sub(start), p.now())
	r.Steps = append(r.Steps, p.runPublish(ctx, run))
	return r
}

func (p *Pipeline) progress(msg string) {
	p.step++
	log.Printf("Step %d/%d: %s...", p.step, p.total, msg)
}

func (p *Pipeline) runLoad() (*tables, StepResult) {
	p.progress("Loading source tables")
	in := p.cfg.Input
	t := &tables{}
	for _, src := range []struct {
		dst  **table.Table
		name string
	}{
		{&t.players, in.Players},
		{&t.ratings, in.Ratings},
		{&t.countries, in.Countries},
		{&t.iso3, in.ISO3},
	} {
		loaded, err := table.Load(p.cfg.InputPath(src.name))
		if err != nil {
			return nil, StepResult{Name: "Load", Err: err}
		}
		*src.dst = loaded
	}
	return t, StepResult{
		Name: "Load",
		Summary: fmt.Sprintf("Loaded %s players, %s ratings, %d countries, %d iso3 rows",
			humanize.Comma(int64(t.players.Len())), humanize.Comma(int64(t.ratings.Len())),
			t.countries.Len(), t.iso3.Len()),
	}
}

func (p *Pipeline) runResolve(t *tables) (*country.Map, StepResult) {
	p.progress("Resolving countries")
	m, err := country.Build(t.countries, t.iso3)
	if err != nil {
		return nil, StepResult{Name: "Resolve", Err: err}
	}
	summary := fmt.Sprintf("Resolved %d federation codes", m.Len())
	if m.Conflicts > 0 {
		summary += fmt.Sprintf(" (%d alpha3 conflicts, last row wins)", m.Conflicts)
	}
	return m, StepResult{Name: "Resolve", Summary: summary}
}

func (p *Pipeline) runEnrich(t *tables, countries *country.Map) (*enrich.Result, StepResult) {
	p.progress("Joining players to ratings")
	res, err := enrich.Enrich(t.players, t.ratings, countries)
	if err != nil {
		return nil, StepResult{Name: "Enrich", Err: err}
	}
	return res, StepResult{
		Name: "Enrich",
		Summary: fmt.Sprintf("Built %s records from %s joined rows (%s skipped)",
			humanize.Comma(int64(len(res.Dataset.Records))),
			humanize.Comma(int64(res.Candidates)),
			humanize.Comma(int64(res.Skips.Total()))),
	}
}

func (p *Pipeline) runFilter(d model.Dataset) (model.Dataset, []filter.Report, StepResult) {
	p.progress("Filtering records")
	pc := p.cfg.Pipeline
	before := len(d.Records)
	out, reports := filter.Apply(d, filter.Options{
		StartYear:     pc.StartYear,
		EndYear:       pc.EndYear,
		TopCountries:  pc.TopCountries,
		MinPeakRating: pc.MinPeakRating,
	})
	return out, reports, StepResult{
		Name: "Filter",
		Summary: fmt.Sprintf("Kept %s of %s records across %d countries",
			humanize.Comma(int64(len(out.Records))), humanize.Comma(int64(before)), len(out.Countries)),
	}
}

func (p *Pipeline) runAggregate(d model.Dataset) ([]model.AggregateGroup, StepResult) {
	p.progress("Aggregating by year, country and gender")
	groups := aggregate.Aggregate(d.Records)
	return groups, StepResult{
		Name:    "Aggregate",
		Summary: fmt.Sprintf("Created %s groups", humanize.Comma(int64(len(groups)))),
	}
}

func (p *Pipeline) runExport(r *Result) StepResult {
	p.progress("Exporting JSON")
	out := p.cfg.Output
	recordsPath := p.cfg.OutputPath(out.RecordsFile)
	groupsPath := p.cfg.OutputPath(out.AggregatedFile)

	if p.dryRun {
		return StepResult{
			Name:    "Export",
			Summary: fmt.Sprintf("[dry-run] Would write %s and %s", recordsPath, groupsPath),
		}
	}

	exp := export.New(r.RunID).WithClock(p.now)
	recordsSize, err := export.WriteFile(recordsPath, exp.Records(r.Dataset))
	if err != nil {
		return StepResult{Name: "Export", Err: err}
	}
	r.Outputs = append(r.Outputs, recordsPath)
	groupsSize, err := export.WriteFile(groupsPath, exp.Groups(r.Dataset, r.Groups))
	if err != nil {
		return StepResult{Name: "Export", Err: err}
	}
	r.Outputs = append(r.Outputs, groupsPath)

	if out.ReportFile != "" {
		reportPath := p.cfg.OutputPath(out.ReportFile)
		if err := os.WriteFile(reportPath, []byte(r.Report), 0o644); err != nil {
			return StepResult{Name: "Export", Err: fmt.Errorf("writing report: %w", err)}
		}
		r.Outputs = append(r.Outputs, reportPath)
	}

	return StepResult{
		Name: "Export",
		Summary: fmt.Sprintf("Wrote %s (%s) and %s (%s)",
			filepath.Base(recordsPath), humanize.Bytes(uint64(recordsSize)),
			filepath.Base(groupsPath), humanize.Bytes(uint64(groupsSize))),
	}
}

// runPublish runs after the outputs are on disk, so a push failure leaves
// them in place.
func (p *Pipeline) runPublish(ctx context.Context, run *metrics.Run) StepResult {
	p.progress("Pushing run metrics")
	m := p.cfg.Metrics
	if err := run.Push(ctx, m.PushgatewayURL, m.Job); err != nil {
		return StepResult{Name: "Publish", Err: err}
	}
	return StepResult{Name: "Publish", Summary: fmt.Sprintf("Pushed metrics to %s (job %s)", m.PushgatewayURL, m.Job)}
}
