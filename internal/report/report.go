// Package report renders the validation summary of a run as markdown.
package report

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/TobiSchelling/fidestats/internal/aggregate"
	"github.com/TobiSchelling/fidestats/internal/enrich"
	"github.com/TobiSchelling/fidestats/internal/filter"
	"github.com/TobiSchelling/fidestats/internal/model"
)

const topCountriesShown = 10

// Input is everything the report reads from a finished run.
type Input struct {
	Dataset   model.Dataset
	Groups    int
	Filters   []filter.Report
	Skips     *enrich.SkipStats
	Unmatched int
}

// Build returns the markdown report.
func Build(in Input) string {
	d := in.Dataset
	var sections []string

	sections = append(sections, "# Data validation & statistics\n\n"+overview(d, in.Groups))
	sections = append(sections, "## Gender distribution\n\n"+genderTable(d.Records))
	sections = append(sections, "## Rating statistics\n\n"+ratingStats(d.Records))
	sections = append(sections, fmt.Sprintf("## Top %d countries by record count\n\n", topCountriesShown)+topCountries(d.Records))
	if s := pipelineNotes(in); s != "" {
		sections = append(sections, "## Pipeline\n\n"+s)
	}
	return strings.Join(sections, "\n\n") + "\n"
}

func overview(d model.Dataset, groups int) string {
	lines := []string{
		"- Total records: " + humanize.Comma(int64(len(d.Records))),
		"- Unique players: " + humanize.Comma(int64(d.UniquePlayers())),
	}
	if lo, hi, ok := d.YearRange(); ok {
		lines = append(lines, fmt.Sprintf("- Years range: %d - %d", lo, hi))
	} else {
		lines = append(lines, "- No years found")
	}
	lines = append(lines, fmt.Sprintf("- Countries: %d", len(d.Countries)))
	if groups > 0 {
		lines = append(lines, "- Aggregated groups: "+humanize.Comma(int64(groups)))
	}
	return strings.Join(lines, "\n")
}

func genderTable(records []model.EnrichedRecord) string {
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Gender]++
	}
	rows := []string{"| Gender | Records | Share |", "|---|---:|---:|"}
	for _, g := range model.GenderValues {
		pct := 0.0
		if len(records) > 0 {
			pct = float64(counts[g]) / float64(len(records)) * 100
		}
		rows = append(rows, fmt.Sprintf("| %s | %s | %.1f%% |", g, humanize.Comma(int64(counts[g])), pct))
	}
	return strings.Join(rows, "\n")
}

func ratingStats(records []model.EnrichedRecord) string {
	if len(records) == 0 {
		return "No ratings."
	}
	ratings := make([]int, len(records))
	for i, r := range records {
		ratings[i] = r.Rating
	}
	s := aggregate.Summarize(ratings)
	return fmt.Sprintf("- Min: %d\n- Max: %d\n- Mean: %.0f\n- Median: %d", s.Min, s.Max, s.Mean, s.Median)
}

func topCountries(records []model.EnrichedRecord) string {
	ranked := filter.RankCountries(records)
	if len(ranked) == 0 {
		return "No countries."
	}
	if len(ranked) > topCountriesShown {
		ranked = ranked[:topCountriesShown]
	}
	lines := make([]string, len(ranked))
	for i, c := range ranked {
		lines[i] = fmt.Sprintf("%d. %s: %s", i+1, c.Name, humanize.Comma(int64(c.Count)))
	}
	return strings.Join(lines, "\n")
}

func pipelineNotes(in Input) string {
	var lines []string
	if in.Skips != nil {
		for _, r := range in.Skips.Reasons() {
			lines = append(lines, fmt.Sprintf("- Skipped (%s): %s", r, humanize.Comma(int64(in.Skips.Count(r)))))
		}
	}
	if in.Unmatched > 0 {
		lines = append(lines, "- Ratings without player: "+humanize.Comma(int64(in.Unmatched)))
	}
	for _, f := range in.Filters {
		lines = append(lines, fmt.Sprintf("- %s: removed %s", f.Detail, humanize.Comma(int64(f.Removed()))))
	}
	return strings.Join(lines, "\n")
}
