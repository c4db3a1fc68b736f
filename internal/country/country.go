// Package country resolves federation codes to country and region names.
package country

import (
	"strings"

	"github.com/TobiSchelling/fidestats/internal/model"
	"github.com/TobiSchelling/fidestats/internal/table"
)

// Unknown fills names and regions that the reference tables do not provide.
const Unknown = "Unknown"

// Map resolves federation codes. It is read-only once built.
type Map struct {
	byCode map[string]model.CountryInfo

	// Conflicts counts iso3 rows that overwrote an alpha3 already resolved
	// to a different region or subregion. The last row in file order wins.
	Conflicts int
}

// Build combines the countries table (country, ioc, alpha3) with the iso3
// table (alpha3, region, subregion).
//
// Rows with an empty ioc code are ignored. Duplicate ioc codes keep the last
// row. Each iso3 row overwrites the region of every federation sharing its
// alpha3 code, so duplicate alpha3 rows resolve last-write-wins.
func Build(countries, iso3 *table.Table) (*Map, error) {
	if err := countries.Require("country", "ioc", "alpha3"); err != nil {
		return nil, err
	}
	if err := iso3.Require("alpha3", "region", "subregion"); err != nil {
		return nil, err
	}

	m := &Map{byCode: make(map[string]model.CountryInfo, countries.Len())}
	for _, row := range countries.Rows {
		code := strings.ToUpper(strings.TrimSpace(countries.Get(row, "ioc")))
		if code == "" {
			continue
		}
		name := strings.TrimSpace(countries.Get(row, "country"))
		if name == "" {
			name = Unknown
		}
		m.byCode[code] = model.CountryInfo{
			Code:      code,
			Name:      name,
			Alpha3:    strings.TrimSpace(countries.Get(row, "alpha3")),
			Region:    Unknown,
			Subregion: Unknown,
		}
	}

	byAlpha3 := make(map[string][]string, len(m.byCode))
	for code, info := range m.byCode {
		if info.Alpha3 != "" {
			byAlpha3[info.Alpha3] = append(byAlpha3[info.Alpha3], code)
		}
	}

	type region struct{ region, subregion string }
	applied := make(map[string]region)
	for _, row := range iso3.Rows {
		alpha3 := strings.TrimSpace(iso3.Get(row, "alpha3"))
		codes, ok := byAlpha3[alpha3]
		if !ok {
			continue
		}
		r := region{
			region:    orUnknown(iso3.Get(row, "region")),
			subregion: orUnknown(iso3.Get(row, "subregion")),
		}
		if prev, seen := applied[alpha3]; seen && prev != r {
			m.Conflicts++
		}
		applied[alpha3] = r
		for _, code := range codes {
			info := m.byCode[code]
			info.Region = r.region
			info.Subregion = r.subregion
			m.byCode[code] = info
		}
	}
	return m, nil
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown
	}
	return s
}

// Lookup returns the entry for an exact federation code.
func (m *Map) Lookup(code string) (model.CountryInfo, bool) {
	info, ok := m.byCode[code]
	return info, ok
}

// Resolve normalizes code and looks it up. Unknown codes resolve to a
// synthetic entry named after the code itself, with Unknown regions.
func (m *Map) Resolve(code string) model.CountryInfo {
	code = strings.ToUpper(strings.TrimSpace(code))
	if info, ok := m.byCode[code]; ok {
		return info
	}
	name := code
	if name == "" {
		name = Unknown
	}
	return model.CountryInfo{Code: code, Name: name, Region: Unknown, Subregion: Unknown}
}

// Len is the number of known federation codes.
func (m *Map) Len() int { return len(m.byCode) }
