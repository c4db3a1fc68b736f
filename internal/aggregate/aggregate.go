// Package aggregate rolls enriched records up per (year, country, gender).
package aggregate

import (
	"slices"

	"github.com/TobiSchelling/fidestats/internal/model"
)

// Key identifies a group.
type Key struct {
	Year    int
	Country string
	Gender  string
}

// Aggregate groups records by (year, country, gender) and computes count,
// mean, median, min and max rating per group. Groups are emitted in the order
// their key first appears.
func Aggregate(records []model.EnrichedRecord) []model.AggregateGroup {
	pos := make(map[Key]int)
	var keys []Key
	var ratings [][]int
	for _, rec := range records {
		k := Key{Year: rec.Year, Country: rec.Country, Gender: rec.Gender}
		i, ok := pos[k]
		if !ok {
			i = len(keys)
			pos[k] = i
			keys = append(keys, k)
			ratings = append(ratings, nil)
		}
		ratings[i] = append(ratings[i], rec.Rating)
	}

	groups := make([]model.AggregateGroup, len(keys))
	for i, k := range keys {
		s := Summarize(ratings[i])
		groups[i] = model.AggregateGroup{
			Year:         k.Year,
			Country:      k.Country,
			Gender:       k.Gender,
			Count:        s.Count,
			MeanRating:   s.Mean,
			MedianRating: s.Median,
			MinRating:    s.Min,
			MaxRating:    s.Max,
		}
	}
	return groups
}

// Summary holds the statistics of a rating list.
type Summary struct {
	Count  int
	Mean   float64
	Median int
	Min    int
	Max    int
}

// Summarize computes the statistics of ratings. See Median for the
// even-length rule.
func Summarize(ratings []int) Summary {
	if len(ratings) == 0 {
		return Summary{}
	}
	sorted := slices.Clone(ratings)
	slices.Sort(sorted)

	sum := 0
	for _, r := range sorted {
		sum += r
	}
	return Summary{
		Count:  len(sorted),
		Mean:   float64(sum) / float64(len(sorted)),
		Median: Median(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

// Median returns the middle element of an ascending slice. Even lengths
// yield the lower of the two middle elements, never their average:
// [1000 1200 1400 1600] gives 1200.
func Median(sorted []int) int {
	return sorted[(len(sorted)-1)/2]
}
