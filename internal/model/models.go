package model

import "slices"

// MinRating is the lowest rating kept by enrichment. Lower values are
// placeholders for missing ratings in the federation exports.
const MinRating = 400

// GenderValues is the fixed set of normalized gender codes.
var GenderValues = []string{"M", "F", "U"}

// RawPlayer is one row of players.tsv.
type RawPlayer struct {
	ID         string
	Name       string
	Federation string
	Sex        string
	BirthYear  *int
	MaxRating  int
	LastMonth  string
}

// RawRating is one row of ratings.tsv.
type RawRating struct {
	ID     string
	Month  string // "YYYY-MM", may be empty
	Rating int
	Games  int
}

// CountryInfo describes a federation resolved against the reference tables.
type CountryInfo struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Alpha3    string `json:"alpha3"`
	Region    string `json:"region"`
	Subregion string `json:"subregion"`
}

// EnrichedRecord is a single player-month observation joined with its
// country metadata.
type EnrichedRecord struct {
	PlayerID    string `json:"player_id"`
	Year        int    `json:"year"`
	Month       string `json:"month"`
	Rating      int    `json:"rating"`
	Games       int    `json:"games"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Region      string `json:"region"`
	Subregion   string `json:"subregion"`
	Gender      string `json:"gender"`
	BirthYear   *int   `json:"birth_year"`
	Age         *int   `json:"age"`
	Name        string `json:"name"`
}

// AggregateGroup is the rating rollup of one (year, country, gender) key.
type AggregateGroup struct {
	Year         int     `json:"year"`
	Country      string  `json:"country"`
	Gender       string  `json:"gender"`
	Count        int     `json:"count"`
	MeanRating   float64 `json:"mean_rating"`
	MedianRating int     `json:"median_rating"`
	MinRating    int     `json:"min_rating"`
	MaxRating    int     `json:"max_rating"`
}

// Dataset is the record set threaded through the pipeline stages together
// with the year set and country list reported in the export metadata.
// Stages never mutate a Dataset they receive; they return a new one.
type Dataset struct {
	Records   []EnrichedRecord
	Years     []int    // ascending, distinct
	Countries []string // ascending, distinct
}

// YearRange returns the lowest and highest year of the dataset.
// ok is false when no year is known.
func (d Dataset) YearRange() (lo, hi int, ok bool) {
	if len(d.Years) == 0 {
		return 0, 0, false
	}
	return d.Years[0], d.Years[len(d.Years)-1], true
}

// UniquePlayers counts the distinct player ids among the records.
func (d Dataset) UniquePlayers() int {
	seen := make(map[string]struct{}, len(d.Records)/8+1)
	for _, r := range d.Records {
		seen[r.PlayerID] = struct{}{}
	}
	return len(seen)
}

// SortedYears returns the distinct values of years in ascending order.
func SortedYears(years map[int]struct{}) []int {
	out := make([]int, 0, len(years))
	for y := range years {
		out = append(out, y)
	}
	slices.Sort(out)
	return out
}
