package subset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	playersTSV = PlayersHeader + "\n" +
		"1\tCarlsen, Magnus\tNOR\tM\t1990\t2882\t2024-01\n" +
		"2\tHou, Yifan\tCHN\tF\t1994\t2686\t2024-01\n" +
		"3\tTari, Aryan\tNOR\tM\t1999\t2660\t2024-01\n" +
		"4\tJunior\tNOR\tM\t2015\t900\t2024-01\n" +
		"5\tBroken\tNOR\tM\t\t2500\t2024-01\n" +
		"6\ttoo\tfew\n"
	ratingsTSV = RatingsHeader + "\n" +
		"1\t2024-01\t2830\t9\n" +
		"2\t2024-01\t2630\t4\n" +
		"3\t2024-01\t2650\t7\r\n" +
		"9\t2024-01\t2000\t3\n"
)

func writeInputs(t *testing.T, players, ratings string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "players.tsv"), []byte(players), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ratings.tsv"), []byte(ratings), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestParseRange(t *testing.T) {
	def := Range{Min: 1000, Max: 3000}
	cases := map[string]Range{
		"1500-2000": {1500, 2000},
		"2000-":     {2000, 3000},
		"-1800":     {1000, 1800},
		"2500+":     {2500, 3000},
		"-":         {1000, 3000},
	}
	for in, want := range cases {
		got, err := ParseRange(in, def)
		if err != nil {
			t.Errorf("%q: unexpected error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}

	for _, in := range []string{"2000", "1-2-3", "a-b", ""} {
		if _, err := ParseRange(in, def); !errors.Is(err, ErrInvalidOption) {
			t.Errorf("%q: expected ErrInvalidOption, got %v", in, err)
		}
	}
}

func TestValidate(t *testing.T) {
	opts := DefaultOptions()
	opts.Suffix = "nor"
	if err := opts.Validate(); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}

	bad := []func(*Options){
		func(o *Options) { o.Gender = "X" },
		func(o *Options) { o.Suffix = "" },
		func(o *Options) { o.Suffix = "../x" },
		func(o *Options) { o.Elo = Range{Min: 2000, Max: 1000} },
	}
	for i, mutate := range bad {
		o := opts
		mutate(&o)
		if err := o.Validate(); !errors.Is(err, ErrInvalidOption) {
			t.Errorf("case %d: expected ErrInvalidOption, got %v", i, err)
		}
	}
}

func TestRunByCountry(t *testing.T) {
	dir := writeInputs(t, playersTSV, ratingsTSV)
	opts := DefaultOptions()
	opts.Country = "NOR"
	opts.Suffix = "nor"

	res, err := Run(dir, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Players != 2 {
		t.Errorf("expected 2 players, got %d", res.Players)
	}
	if res.Ratings != 2 {
		t.Errorf("expected 2 ratings, got %d", res.Ratings)
	}
	if res.Malformed != 2 {
		t.Errorf("expected 2 malformed lines, got %d", res.Malformed)
	}
	if filepath.Base(res.PlayersPath) != "players-nor.tsv" {
		t.Errorf("unexpected players path %q", res.PlayersPath)
	}

	players := readLines(t, res.PlayersPath)
	if players[0] != PlayersHeader {
		t.Errorf("expected header preserved, got %q", players[0])
	}
	if len(players) != 3 || !strings.HasPrefix(players[1], "1\tCarlsen, Magnus\tNOR") {
		t.Errorf("unexpected players output %q", players)
	}

	ratings := readLines(t, res.RatingsPath)
	want := []string{RatingsHeader, "1\t2024-01\t2830\t9", "3\t2024-01\t2650\t7"}
	if strings.Join(ratings, "|") != strings.Join(want, "|") {
		t.Errorf("expected %q, got %q", want, ratings)
	}
}

func TestRunByGenderAndElo(t *testing.T) {
	dir := writeInputs(t, playersTSV, ratingsTSV)
	opts := DefaultOptions()
	opts.Gender = "F"
	opts.Elo = Range{Min: 2600, Max: 2700}
	opts.Suffix = "women"

	res, err := Run(dir, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Players != 1 || res.Ratings != 1 {
		t.Errorf("expected 1 player and 1 rating, got %d and %d", res.Players, res.Ratings)
	}
}

func TestRunByBirthYear(t *testing.T) {
	dir := writeInputs(t, playersTSV, ratingsTSV)
	opts := DefaultOptions()
	opts.Elo = Range{Min: 0, Max: 3000}
	opts.Year = Range{Min: 2010, Max: 2025}
	opts.Suffix = "juniors"

	res, err := Run(dir, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Players != 1 {
		t.Errorf("expected 1 junior, got %d", res.Players)
	}
	if res.Ratings != 0 {
		t.Errorf("expected no ratings, got %d", res.Ratings)
	}
	if got := readLines(t, res.RatingsPath); len(got) != 1 {
		t.Errorf("expected header-only ratings output, got %q", got)
	}
}

func TestRunHeaderMismatch(t *testing.T) {
	dir := writeInputs(t, "id\tname\n1\tx\n", ratingsTSV)
	opts := DefaultOptions()
	opts.Suffix = "x"

	_, err := Run(dir, opts)
	if !errors.Is(err, ErrHeaderMismatch) {
		t.Fatalf("expected ErrHeaderMismatch, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "players-x.tsv")); !os.IsNotExist(err) {
		t.Errorf("expected no output for a bad header, got %v", err)
	}
}

func TestRunMissingInput(t *testing.T) {
	opts := DefaultOptions()
	opts.Suffix = "x"
	if _, err := Run(t.TempDir(), opts); err == nil {
		t.Fatal("expected error for missing players.tsv")
	}
}
