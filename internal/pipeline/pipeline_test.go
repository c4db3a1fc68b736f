package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TobiSchelling/fidestats/internal/config"
	"github.com/TobiSchelling/fidestats/internal/metrics"
	"github.com/TobiSchelling/fidestats/internal/table"
)

const (
	playersTSV = "#id\tname\tfed\tsex\tbirthyear\tmax_rating\tmonth\n" +
		"1\tCarlsen, Magnus\tNOR\tM\t1990\t2882\t2024-01\n" +
		"2\tHou, Yifan\tCHN\tF\t1994\t2686\t2024-01\n" +
		"3\tNobody\tXXX\tM\t\t1300\t2024-01\n"
	ratingsTSV = "#id\tmonth\trating\tgames\n" +
		"1\t2011-01\t2814\t9\n" +
		"1\t2012-01\t2835\t11\n" +
		"2\t2012-01\t2605\t4\n" +
		"2\tbad\t2600\t1\n" +
		"3\t2012-01\t350\t2\n" +
		"9\t2012-01\t2000\t3\n"
	countriesTSV = "country\tioc\talpha3\n" +
		"Norway\tNOR\tNOR\n" +
		"China\tCHN\tCHN\n"
	iso3TSV = "alpha3\tregion\tsubregion\n" +
		"NOR\tEurope\tNorthern Europe\n" +
		"CHN\tAsia\tEastern Asia\n"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	in := t.TempDir()
	for name, content := range map[string]string{
		"players.tsv":   playersTSV,
		"ratings.tsv":   ratingsTSV,
		"countries.tsv": countriesTSV,
		"iso3.tsv":      iso3TSV,
	} {
		if err := os.WriteFile(filepath.Join(in, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	cfg.Input.Dir = in
	cfg.Output.Dir = filepath.Join(t.TempDir(), "viz")
	cfg.Metrics.PushgatewayURL = ""
	return cfg
}

func fixedClock() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestRunWritesOutputs(t *testing.T) {
	cfg := testConfig(t)
	r := New(cfg).WithClock(fixedClock).Run(context.Background())

	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Steps) != 6 {
		t.Fatalf("expected 6 steps, got %d", len(r.Steps))
	}
	if r.RunID == "" {
		t.Error("expected a run id")
	}
	if len(r.Dataset.Records) != 3 {
		t.Errorf("expected 3 records, got %d", len(r.Dataset.Records))
	}
	if len(r.Groups) != 3 {
		t.Errorf("expected 3 groups, got %d", len(r.Groups))
	}
	if len(r.Outputs) != 3 {
		t.Fatalf("expected 3 outputs, got %v", r.Outputs)
	}

	data, err := os.ReadFile(cfg.OutputPath(cfg.Output.AggregatedFile))
	if err != nil {
		t.Fatalf("failed to read aggregated output: %v", err)
	}
	var doc struct {
		Metadata struct {
			RunID            string `json:"run_id"`
			TotalRecords     int    `json:"total_records"`
			AggregatedGroups int    `json:"aggregated_groups"`
		} `json:"metadata"`
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if doc.Metadata.AggregatedGroups != len(doc.Data) {
		t.Errorf("expected aggregated_groups %d, got %d", len(doc.Data), doc.Metadata.AggregatedGroups)
	}
	if doc.Metadata.TotalRecords != 3 {
		t.Errorf("expected total_records 3, got %d", doc.Metadata.TotalRecords)
	}
	if doc.Metadata.RunID != r.RunID {
		t.Errorf("expected run id %q, got %q", r.RunID, doc.Metadata.RunID)
	}

	md, err := os.ReadFile(cfg.OutputPath(cfg.Output.ReportFile))
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	if !strings.Contains(string(md), "# Data validation & statistics") {
		t.Error("expected report heading")
	}
}

func TestRunWithoutReportFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.ReportFile = ""
	r := New(cfg).WithClock(fixedClock).Run(context.Background())

	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		cfg.OutputPath(cfg.Output.RecordsFile),
		cfg.OutputPath(cfg.Output.AggregatedFile),
	}
	if strings.Join(r.Outputs, "|") != strings.Join(want, "|") {
		t.Fatalf("expected outputs %v, got %v", want, r.Outputs)
	}

	entries, err := os.ReadDir(cfg.Output.Dir)
	if err != nil {
		t.Fatalf("failed to list output dir: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected exactly 2 files written, got %d", len(entries))
	}
	if _, err := os.Stat(filepath.Join(cfg.Output.Dir, "report.md")); !os.IsNotExist(err) {
		t.Errorf("expected no report.md, got %v", err)
	}
	if r.Report == "" {
		t.Error("expected the report to still be built")
	}
}

func TestRunAppliesFilters(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.StartYear = 2012
	cfg.Pipeline.MinPeakRating = 2700

	r := New(cfg).WithDryRun(true).Run(context.Background())
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Dataset.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(r.Dataset.Records))
	}
	if r.Dataset.Records[0].PlayerID != "1" {
		t.Errorf("expected player 1, got %s", r.Dataset.Records[0].PlayerID)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	r := New(cfg).WithDryRun(true).Run(context.Background())

	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Outputs) != 0 {
		t.Errorf("expected no outputs, got %v", r.Outputs)
	}
	if _, err := os.Stat(cfg.Output.Dir); !os.IsNotExist(err) {
		t.Errorf("expected output dir to be absent, got %v", err)
	}
	last := r.Steps[len(r.Steps)-1]
	if !strings.HasPrefix(last.Summary, "[dry-run]") {
		t.Errorf("expected dry-run summary, got %q", last.Summary)
	}
}

func TestRunStopsOnLoadError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.Ratings = "missing.tsv"

	r := New(cfg).Run(context.Background())
	if len(r.Steps) != 1 {
		t.Fatalf("expected run to stop after load, got %d steps", len(r.Steps))
	}
	var loadErr *table.LoadError
	if !errors.As(r.Err(), &loadErr) {
		t.Fatalf("expected LoadError, got %v", r.Err())
	}
	if !strings.HasSuffix(loadErr.File, "missing.tsv") {
		t.Errorf("expected missing file in error, got %q", loadErr.File)
	}
}

func TestRunStopsOnMissingColumn(t *testing.T) {
	cfg := testConfig(t)
	path := cfg.InputPath(cfg.Input.Ratings)
	if err := os.WriteFile(path, []byte("#id\tmonth\tgames\n1\t2012-01\t3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := New(cfg).Run(context.Background())
	if !errors.Is(r.Err(), table.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", r.Err())
	}
	if got := r.Steps[len(r.Steps)-1].Name; got != "Enrich" {
		t.Errorf("expected run to stop at Enrich, got %s", got)
	}
}

func TestRunPushesMetrics(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		path = req.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Metrics.PushgatewayURL = srv.URL

	r := New(cfg).Run(context.Background())
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r.Steps) != 7 {
		t.Fatalf("expected 7 steps, got %d", len(r.Steps))
	}
	if path != "/metrics/job/fidestats" {
		t.Errorf("expected push to job path, got %q", path)
	}
}

func TestRunReportsPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Metrics.PushgatewayURL = srv.URL

	r := New(cfg).Run(context.Background())
	if !errors.Is(r.Err(), metrics.ErrPushFailed) {
		t.Fatalf("expected ErrPushFailed, got %v", r.Err())
	}
	if len(r.Outputs) != 3 {
		t.Errorf("expected outputs written before the push, got %v", r.Outputs)
	}
}
