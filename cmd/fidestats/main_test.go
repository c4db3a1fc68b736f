package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TobiSchelling/fidestats/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFixtures(t *testing.T) (configFile, dataDir, outDir string) {
	t.Helper()
	root := t.TempDir()
	dataDir = filepath.Join(root, "data")
	outDir = filepath.Join(root, "viz")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatal(err)
	}

	files := map[string]string{
		"players.tsv": "#id\tname\tfed\tsex\tbirthyear\tmax_rating\tmonth\n" +
			"1\tCarlsen, Magnus\tNOR\tM\t1990\t2882\t2024-01\n" +
			"2\tHou, Yifan\tCHN\tF\t1994\t2686\t2024-01\n",
		"ratings.tsv": "#id\tmonth\trating\tgames\n" +
			"1\t2015-01\t2862\t9\n" +
			"2\t2015-01\t2673\t4\n",
		"countries.tsv": "country\tioc\talpha3\nNorway\tNOR\tNOR\nChina\tCHN\tCHN\n",
		"iso3.tsv":      "alpha3\tregion\tsubregion\nNOR\tEurope\tNorthern Europe\nCHN\tAsia\tEastern Asia\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	configFile = filepath.Join(root, "config.yaml")
	yaml := "input:\n  dir: " + dataDir + "\noutput:\n  dir: " + outDir + "\n"
	if err := os.WriteFile(configFile, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	return configFile, dataDir, outDir
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "fidestats") {
		t.Errorf("expected version output, got %q", out)
	}
}

func TestRunCommand(t *testing.T) {
	configFile, _, outDir := writeFixtures(t)

	out, err := execute(t, "run", "--config", configFile, "--start-year", "2015")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Step 6: Export") {
		t.Errorf("expected export step in output, got %q", out)
	}
	if !strings.Contains(out, "# Data validation & statistics") {
		t.Error("expected report printed to stdout")
	}
	for _, name := range []string{"chess_data.json", "chess_data_aggregated.json", "report.md"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("expected %s to be written: %v", name, err)
		}
	}
}

func TestRunCommandRejectsInvalidRange(t *testing.T) {
	configFile, _, _ := writeFixtures(t)

	_, err := execute(t, "run", "--config", configFile, "--start-year", "2020", "--end-year", "2010")
	if err == nil {
		t.Fatal("expected error for start year after end year")
	}
	// Reset so later tests do not inherit the override.
	endYear = 0
	runCmd.Flags().Lookup("end-year").Changed = false
}

func TestSubsetCommand(t *testing.T) {
	configFile, dataDir, _ := writeFixtures(t)

	out, err := execute(t, "subset", "--config", configFile, "-c", "NOR", "-e", "2800+", "nor")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "1 players") {
		t.Errorf("expected one player kept, got %q", out)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "ratings-nor.tsv")); err != nil {
		t.Errorf("expected ratings subset written: %v", err)
	}
}

func TestServeCommandValidatesConfig(t *testing.T) {
	configFile, _, _ := writeFixtures(t)
	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatal(err)
	}
	data = append(data, []byte("server:\n  port_span: 0\n")...)
	if err := os.WriteFile(configFile, data, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = execute(t, "serve", "--config", configFile)
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if !strings.Contains(err.Error(), "port_span") {
		t.Errorf("expected port_span in error, got %q", err.Error())
	}
}
