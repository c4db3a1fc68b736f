// Package export writes the record and group datasets as JSON documents of
// the form {"metadata": {...}, "data": [...]}.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/TobiSchelling/fidestats/internal/model"
)

// timestampLayout matches an ISO-8601 local timestamp with microseconds.
const timestampLayout = "2006-01-02T15:04:05.000000"

// YearRange is null-valued when the dataset has no years.
type YearRange struct {
	Min *int `json:"min"`
	Max *int `json:"max"`
}

// Metadata is the envelope shared by both exports. AggregatedGroups is only
// set on the grouped export.
type Metadata struct {
	Generated        string    `json:"generated"`
	RunID            string    `json:"run_id,omitempty"`
	TotalRecords     int       `json:"total_records"`
	UniquePlayers    int       `json:"unique_players"`
	AggregatedGroups *int      `json:"aggregated_groups,omitempty"`
	YearRange        YearRange `json:"year_range"`
	Countries        []string  `json:"countries"`
	GenderValues     []string  `json:"gender_values"`
}

// Document is one exported JSON file.
type Document[T any] struct {
	Metadata Metadata `json:"metadata"`
	Data     []T      `json:"data"`
}

// Exporter builds documents stamped with a run id and a clock.
type Exporter struct {
	runID string
	now   func() time.Time
}

// New creates an exporter using the wall clock.
func New(runID string) *Exporter {
	return &Exporter{runID: runID, now: time.Now}
}

// WithClock replaces the clock, for reproducible output.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

// Records builds the flat per-record document.
func (e *Exporter) Records(d model.Dataset) Document[model.EnrichedRecord] {
	data := d.Records
	if data == nil {
		data = []model.EnrichedRecord{}
	}
	return Document[model.EnrichedRecord]{Metadata: e.metadata(d), Data: data}
}

// Groups builds the aggregated document. total_records still counts the
// underlying records; aggregated_groups counts the data entries.
func (e *Exporter) Groups(d model.Dataset, groups []model.AggregateGroup) Document[model.AggregateGroup] {
	if groups == nil {
		groups = []model.AggregateGroup{}
	}
	md := e.metadata(d)
	n := len(groups)
	md.AggregatedGroups = &n
	return Document[model.AggregateGroup]{Metadata: md, Data: groups}
}

func (e *Exporter) metadata(d model.Dataset) Metadata {
	md := Metadata{
		Generated:     e.now().Format(timestampLayout),
		RunID:         e.runID,
		TotalRecords:  len(d.Records),
		UniquePlayers: d.UniquePlayers(),
		Countries:     d.Countries,
		GenderValues:  model.GenderValues,
	}
	if md.Countries == nil {
		md.Countries = []string{}
	}
	if lo, hi, ok := d.YearRange(); ok {
		md.YearRange = YearRange{Min: &lo, Max: &hi}
	}
	return md
}

// Write encodes doc as indented JSON without HTML escaping.
func Write(w io.Writer, doc any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(doc)
}

// WriteFile writes doc to path, creating the parent directory, and returns
// the resulting file size.
func WriteFile(path string, doc any) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Write(f, doc); err != nil {
		f.Close()
		return 0, fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
