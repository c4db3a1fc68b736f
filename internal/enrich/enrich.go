// Package enrich joins players to their monthly ratings and attaches the
// resolved federation metadata.
package enrich

import (
	"errors"
	"log"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/TobiSchelling/fidestats/internal/country"
	"github.com/TobiSchelling/fidestats/internal/model"
	"github.com/TobiSchelling/fidestats/internal/table"
)

const (
	monthLayout   = "2006-01"
	maxNameLength = 50

	// maxNumber bounds every numeric cell so the int conversion cannot wrap.
	maxNumber = math.MaxInt32
)

// Result holds the enriched dataset and the join bookkeeping.
type Result struct {
	Dataset model.Dataset
	// Candidates is the number of (player, rating) pairs produced by the join.
	Candidates int
	// Unmatched counts rating rows whose id has no player.
	Unmatched int
	Skips     *SkipStats
}

// Enrich inner-joins players to ratings on id and emits one record per
// surviving pair, in player order and then rating order. Rows that fail to
// parse are counted in Result.Skips and dropped. The only error is a source
// table lacking a required column.
func Enrich(players, ratings *table.Table, countries *country.Map) (*Result, error) {
	if err := players.Require("id"); err != nil {
		return nil, err
	}
	if err := ratings.Require("id", "month", "rating"); err != nil {
		return nil, err
	}

	byID := make(map[string][]int, players.Len())
	for i, row := range ratings.Rows {
		id := ratings.Get(row, "id")
		if id == "" {
			continue
		}
		byID[id] = append(byID[id], i)
	}

	res := &Result{Skips: NewSkipStats()}
	years := make(map[int]struct{})
	seenCountry := make(map[string]struct{})
	var countryNames []string
	matched := make(map[string]struct{}, players.Len())

	for _, prow := range players.Rows {
		idx, ok := byID[players.Get(prow, "id")]
		if !ok {
			continue
		}
		p := parsePlayer(players, prow)
		matched[p.ID] = struct{}{}
		info := countries.Resolve(p.Federation)

		for _, i := range idx {
			res.Candidates++
			r, err := parseRating(ratings, ratings.Rows[i])
			if err == nil {
				var rec model.EnrichedRecord
				rec, err = enrichOne(p, r, info)
				if err == nil {
					res.Dataset.Records = append(res.Dataset.Records, rec)
					years[rec.Year] = struct{}{}
					if _, seen := seenCountry[rec.Country]; !seen {
						seenCountry[rec.Country] = struct{}{}
						countryNames = append(countryNames, rec.Country)
					}
					continue
				}
			}
			var se *SkipError
			if errors.As(err, &se) {
				res.Skips.Add(se.Reason)
			}
		}
	}

	for id, idx := range byID {
		if _, ok := matched[id]; !ok {
			res.Unmatched += len(idx)
		}
	}

	slices.Sort(countryNames)
	res.Dataset.Years = model.SortedYears(years)
	res.Dataset.Countries = countryNames

	log.Printf("Merged records: %d (%d rating rows without player)", res.Candidates, res.Unmatched)
	log.Printf("Processed records: %d, skipped %d", len(res.Dataset.Records), res.Skips.Total())
	return res, nil
}

// enrichOne builds the record for one joined pair. The country has already
// been resolved for the player.
func enrichOne(p model.RawPlayer, r model.RawRating, info model.CountryInfo) (model.EnrichedRecord, error) {
	month := r.Month
	if month == "" {
		month = p.LastMonth
	}
	if month == "" {
		return model.EnrichedRecord{}, skip(SkipMonth, month)
	}
	t, err := time.Parse(monthLayout, month)
	if err != nil {
		return model.EnrichedRecord{}, skip(SkipMonth, month)
	}
	year := t.Year()

	rec := model.EnrichedRecord{
		PlayerID:    p.ID,
		Year:        year,
		Month:       month,
		Rating:      r.Rating,
		Games:       r.Games,
		Country:     info.Name,
		CountryCode: info.Code,
		Region:      info.Region,
		Subregion:   info.Subregion,
		Gender:      normalizeGender(p.Sex),
		BirthYear:   p.BirthYear,
		Name:        truncate(p.Name, maxNameLength),
	}
	if p.BirthYear != nil {
		age := year - *p.BirthYear
		rec.Age = &age
	}
	return rec, nil
}

// parsePlayer never fails: unparseable optional fields become empty.
func parsePlayer(t *table.Table, row []string) model.RawPlayer {
	p := model.RawPlayer{
		ID:         t.Get(row, "id"),
		Name:       strings.TrimSpace(t.Get(row, "name")),
		Federation: t.Get(row, "fed"),
		Sex:        t.Get(row, "sex"),
		BirthYear:  parseBirthYear(t.Get(row, "birthyear")),
		LastMonth:  strings.TrimSpace(t.Get(row, "month")),
	}
	if n, ok := parseInt(t.Get(row, "max_rating")); ok {
		p.MaxRating = n
	}
	if p.Name == "" {
		p.Name = "Player_" + p.ID
	}
	return p
}

// parseRating fails when the rating is not a number in
// [model.MinRating, maxNumber]. Fractional ratings are truncated after the
// check.
func parseRating(t *table.Table, row []string) (model.RawRating, error) {
	raw := strings.TrimSpace(t.Get(row, "rating"))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f > maxNumber {
		return model.RawRating{}, skip(SkipRating, raw)
	}
	if f < model.MinRating {
		return model.RawRating{}, skip(SkipLowRating, raw)
	}
	r := model.RawRating{
		ID:     t.Get(row, "id"),
		Month:  strings.TrimSpace(t.Get(row, "month")),
		Rating: int(f),
	}
	if g, ok := parseInt(t.Get(row, "games")); ok {
		r.Games = g
	}
	return r, nil
}

func parseBirthYear(s string) *int {
	n, ok := parseInt(s)
	if !ok || n <= 0 {
		return nil
	}
	return &n
}

// parseInt accepts "1987" as well as the float form "1987.0". Values
// outside [-maxNumber, maxNumber] are rejected.
func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, n >= -maxNumber && n <= maxNumber
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < -maxNumber || f > maxNumber {
		return 0, false
	}
	return int(f), true
}

func normalizeGender(s string) string {
	switch g := strings.ToUpper(strings.TrimSpace(s)); g {
	case "M", "F":
		return g
	default:
		return "U"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
