// Package subset cuts a smaller players/ratings pair out of the full source
// tables, for collaborators who only need one federation or rating band.
package subset

import (
	"bufio"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	PlayersHeader = "#id\tname\tfed\tsex\tbirthyear\tmax_rating\tmonth"
	RatingsHeader = "#id\tmonth\trating\tgames"

	playersFields = 7
	ratingsFields = 4
)

var (
	// ErrInvalidOption is returned for a bad gender, range or suffix.
	ErrInvalidOption = errors.New("invalid option")
	// ErrHeaderMismatch is returned when an input header is not the expected
	// one.
	ErrHeaderMismatch = errors.New("unexpected header")
)

// Range is an inclusive integer interval.
type Range struct {
	Min, Max int
}

func (r Range) Contains(v int) bool { return r.Min <= v && v <= r.Max }

func (r Range) String() string { return fmt.Sprintf("%d-%d", r.Min, r.Max) }

// ParseRange reads "min-max", "min-", "-max" or "min+". A missing bound
// keeps the corresponding bound of def.
func ParseRange(s string, def Range) (Range, error) {
	lo, hi, ok := strings.Cut(strings.ReplaceAll(s, "+", "-"), "-")
	if !ok || strings.Contains(hi, "-") {
		return Range{}, fmt.Errorf("%w: range %q, want min-max", ErrInvalidOption, s)
	}
	r := def
	var err error
	if lo = strings.TrimSpace(lo); lo != "" {
		if r.Min, err = strconv.Atoi(lo); err != nil {
			return Range{}, fmt.Errorf("%w: range %q: %v", ErrInvalidOption, s, err)
		}
	}
	if hi = strings.TrimSpace(hi); hi != "" {
		if r.Max, err = strconv.Atoi(hi); err != nil {
			return Range{}, fmt.Errorf("%w: range %q: %v", ErrInvalidOption, s, err)
		}
	}
	return r, nil
}

// Options selects the players to keep. Empty Country or Gender match all.
type Options struct {
	Country string
	Elo     Range
	Gender  string
	Year    Range
	Suffix  string
}

// DefaultOptions keeps every player rated 1000-3000 born 1900-2025.
func DefaultOptions() Options {
	return Options{
		Elo:  Range{Min: 1000, Max: 3000},
		Year: Range{Min: 1900, Max: 2025},
	}
}

func (o Options) Validate() error {
	switch {
	case o.Gender != "" && o.Gender != "M" && o.Gender != "F":
		return fmt.Errorf("%w: gender %q, want M or F", ErrInvalidOption, o.Gender)
	case o.Suffix == "":
		return fmt.Errorf("%w: suffix is required", ErrInvalidOption)
	case strings.ContainsAny(o.Suffix, `/\`):
		return fmt.Errorf("%w: suffix %q must not contain a path separator", ErrInvalidOption, o.Suffix)
	case o.Elo.Min > o.Elo.Max:
		return fmt.Errorf("%w: elo range %s is empty", ErrInvalidOption, o.Elo)
	case o.Year.Min > o.Year.Max:
		return fmt.Errorf("%w: year range %s is empty", ErrInvalidOption, o.Year)
	}
	return nil
}

// Result reports what Run kept and where it wrote it.
type Result struct {
	PlayersPath string
	RatingsPath string
	Players     int
	Ratings     int
	// Malformed counts data lines with the wrong field count or a
	// non-numeric rating or birth year.
	Malformed int
}

// Run reads players.tsv and ratings.tsv from dir and writes the matching
// rows to players-<suffix>.tsv and ratings-<suffix>.tsv next to them.
func Run(dir string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		PlayersPath: filepath.Join(dir, "players-"+opts.Suffix+".tsv"),
		RatingsPath: filepath.Join(dir, "ratings-"+opts.Suffix+".tsv"),
	}

	kept := make(map[string]struct{})
	err := rewrite(filepath.Join(dir, "players.tsv"), res.PlayersPath, PlayersHeader, playersFields,
		func(f []string) bool {
			ok, valid := opts.match(f)
			if !valid {
				res.Malformed++
			}
			if ok {
				kept[f[0]] = struct{}{}
				res.Players++
			}
			return ok
		}, &res.Malformed)
	if err != nil {
		return nil, err
	}

	err = rewrite(filepath.Join(dir, "ratings.tsv"), res.RatingsPath, RatingsHeader, ratingsFields,
		func(f []string) bool {
			_, ok := kept[f[0]]
			if ok {
				res.Ratings++
			}
			return ok
		}, &res.Malformed)
	if err != nil {
		return nil, err
	}

	log.Printf("Kept %d players and %d ratings (%d malformed lines)", res.Players, res.Ratings, res.Malformed)
	return res, nil
}

// match reports whether a players row is selected and whether its numeric
// fields parsed.
func (o Options) match(f []string) (ok, valid bool) {
	fed, sex := f[2], f[3]
	maxRating, err := strconv.Atoi(f[5])
	if err != nil {
		return false, false
	}
	birthYear, err := strconv.Atoi(f[4])
	if err != nil {
		return false, false
	}
	switch {
	case o.Country != "" && fed != o.Country:
		return false, true
	case !o.Elo.Contains(maxRating):
		return false, true
	case o.Gender != "" && sex != o.Gender:
		return false, true
	case !o.Year.Contains(birthYear):
		return false, true
	}
	return true, true
}

// rewrite copies the header of src to dst, then every data line with the
// expected field count for which keep returns true. Carriage returns are
// dropped so the output always uses bare newlines.
func rewrite(src, dst, header string, fields int, keep func([]string) bool, malformed *int) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return fmt.Errorf("reading %s: %w", src, err)
		}
		return fmt.Errorf("%w: %s is empty", ErrHeaderMismatch, filepath.Base(src))
	}
	if got := sc.Text(); got != header {
		return fmt.Errorf("%w in %s: got %q, want %q", ErrHeaderMismatch, filepath.Base(src), got, header)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	w := bufio.NewWriter(out)
	fmt.Fprintln(w, header)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) != fields {
			*malformed++
			continue
		}
		if keep(f) {
			fmt.Fprintln(w, line)
		}
	}
	if err := sc.Err(); err != nil {
		out.Close()
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return out.Close()
}
