// Package filter narrows an enriched dataset. Every filter returns a new
// dataset, keeps the relative order of surviving records and gives the same
// result when applied again with the same parameters.
package filter

import (
	"fmt"
	"log"
	"slices"
	"sort"

	"github.com/TobiSchelling/fidestats/internal/model"
)

// defaultEndYear is used when no end year is given and the dataset is empty.
const defaultEndYear = 2024

// Stage names, also used as metric labels.
const (
	StageYearRange     = "year_range"
	StageTopCountries  = "top_countries"
	StageMinPeakRating = "min_peak_rating"
)

// Report describes what a filter removed.
type Report struct {
	Stage  string
	Detail string
	Before int
	After  int
}

// Removed is the number of records dropped by the stage.
func (r Report) Removed() int { return r.Before - r.After }

func (r Report) String() string {
	return fmt.Sprintf("%s: %d records (removed %d)", r.Detail, r.After, r.Removed())
}

// Options configures Apply. Zero values disable TopCountries and make
// EndYear default to the latest year present.
type Options struct {
	StartYear     int
	EndYear       int
	TopCountries  int
	MinPeakRating int
}

// Apply runs year range, top countries and minimum peak rating in that
// order.
func Apply(d model.Dataset, opts Options) (model.Dataset, []Report) {
	var reports []Report
	var r Report

	d, r = YearRange(d, opts.StartYear, opts.EndYear)
	reports = append(reports, r)
	d, r = TopCountries(d, opts.TopCountries)
	reports = append(reports, r)
	d, r = MinPeakRating(d, opts.MinPeakRating)
	reports = append(reports, r)

	return d, reports
}

// YearRange keeps records with start <= year <= end. An end of 0 means the
// latest year in the dataset. The year set is narrowed to the same range.
func YearRange(d model.Dataset, start, end int) (model.Dataset, Report) {
	if end == 0 {
		end = defaultEndYear
		if _, hi, ok := d.YearRange(); ok {
			end = hi
		}
	}

	out := model.Dataset{Countries: slices.Clone(d.Countries)}
	for _, rec := range d.Records {
		if rec.Year >= start && rec.Year <= end {
			out.Records = append(out.Records, rec)
		}
	}
	for _, y := range d.Years {
		if y >= start && y <= end {
			out.Years = append(out.Years, y)
		}
	}

	r := Report{
		Stage:  StageYearRange,
		Detail: fmt.Sprintf("Filtered to years %d-%d", start, end),
		Before: len(d.Records),
		After:  len(out.Records),
	}
	log.Print(r)
	return out, r
}

// TopCountries keeps the records of the n countries with the most records.
// Equal counts rank by first appearance. The country list becomes the kept
// names, sorted. n <= 0 keeps everything.
func TopCountries(d model.Dataset, n int) (model.Dataset, Report) {
	r := Report{
		Stage:  StageTopCountries,
		Detail: fmt.Sprintf("Filtered to top %d countries", n),
		Before: len(d.Records),
	}
	if n <= 0 {
		r.Detail = "Country filter disabled"
		r.After = r.Before
		return cloneDataset(d), r
	}

	top := RankCountries(d.Records)
	if len(top) > n {
		top = top[:n]
	}
	keep := make(map[string]struct{}, len(top))
	names := make([]string, 0, len(top))
	for _, c := range top {
		keep[c.Name] = struct{}{}
		names = append(names, c.Name)
	}
	slices.Sort(names)

	out := model.Dataset{Years: slices.Clone(d.Years), Countries: names}
	for _, rec := range d.Records {
		if _, ok := keep[rec.Country]; ok {
			out.Records = append(out.Records, rec)
		}
	}

	r.After = len(out.Records)
	log.Print(r)
	return out, r
}

// CountryCount is a country and its record count.
type CountryCount struct {
	Name  string
	Count int
}

// RankCountries counts records per country and orders the counts
// descending. Ties keep first-appearance order.
func RankCountries(records []model.EnrichedRecord) []CountryCount {
	pos := make(map[string]int)
	var counts []CountryCount
	for _, rec := range records {
		i, ok := pos[rec.Country]
		if !ok {
			i = len(counts)
			pos[rec.Country] = i
			counts = append(counts, CountryCount{Name: rec.Country})
		}
		counts[i].Count++
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	return counts
}

// MinPeakRating keeps every record of each player whose highest rating in
// the dataset is at least threshold, including that player's lower ratings.
func MinPeakRating(d model.Dataset, threshold int) (model.Dataset, Report) {
	peak := make(map[string]int)
	for _, rec := range d.Records {
		if cur, ok := peak[rec.PlayerID]; !ok || rec.Rating > cur {
			peak[rec.PlayerID] = rec.Rating
		}
	}

	out := model.Dataset{Years: slices.Clone(d.Years), Countries: slices.Clone(d.Countries)}
	for _, rec := range d.Records {
		if peak[rec.PlayerID] >= threshold {
			out.Records = append(out.Records, rec)
		}
	}

	r := Report{
		Stage:  StageMinPeakRating,
		Detail: fmt.Sprintf("Filtered to players with max rating >= %d", threshold),
		Before: len(d.Records),
		After:  len(out.Records),
	}
	log.Print(r)
	return out, r
}

func cloneDataset(d model.Dataset) model.Dataset {
	return model.Dataset{
		Records:   slices.Clone(d.Records),
		Years:     slices.Clone(d.Years),
		Countries: slices.Clone(d.Countries),
	}
}
