package stations

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spkg/bom"
)

// Station is one row of the reference CSV mapping the three station code
// systems to each other.
type Station struct {
	Name    string `csv:"NAME"`
	Tiploc  string `csv:"TIPLOC"`
	Tiploc2 string `csv:"TIPLOC2"`
	CRS     string `csv:"CRS"`
}

// Lookup resolves stations by TIPLOC2 or CRS code.
type Lookup struct {
	byTiploc2 map[string]Station
	byCRS     map[string]Station
}

// Load reads the reference CSV from path.
func Load(path string) (*Lookup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stations csv: %w", err)
	}
	defer f.Close()

	l, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return l, nil
}

// Parse reads NAME,TIPLOC,TIPLOC2,CRS rows. Codes are uppercased, names
// trimmed, and the first row per code wins.
func Parse(r io.Reader) (*Lookup, error) {
	var rows []*Station
	if err := gocsv.Unmarshal(bom.NewReader(r), &rows); err != nil {
		return nil, fmt.Errorf("failed to parse stations csv: %w", err)
	}

	l := &Lookup{
		byTiploc2: make(map[string]Station, len(rows)),
		byCRS:     make(map[string]Station, len(rows)),
	}
	for _, row := range rows {
		s := Station{
			Name:    strings.TrimSpace(row.Name),
			Tiploc:  strings.ToUpper(strings.TrimSpace(row.Tiploc)),
			Tiploc2: strings.ToUpper(strings.TrimSpace(row.Tiploc2)),
			CRS:     strings.ToUpper(strings.TrimSpace(row.CRS)),
		}
		if s.Tiploc2 != "" {
			if _, ok := l.byTiploc2[s.Tiploc2]; !ok {
				l.byTiploc2[s.Tiploc2] = s
			}
		}
		if s.CRS != "" {
			if _, ok := l.byCRS[s.CRS]; !ok {
				l.byCRS[s.CRS] = s
			}
		}
	}
	return l, nil
}

// ByTiploc2 returns the station for a TIPLOC2 code.
func (l *Lookup) ByTiploc2(tiploc2 string) (Station, bool) {
	s, ok := l.byTiploc2[strings.ToUpper(strings.TrimSpace(tiploc2))]
	return s, ok
}

// ByCRS returns the station for a CRS code.
func (l *Lookup) ByCRS(crs string) (Station, bool) {
	s, ok := l.byCRS[strings.ToUpper(strings.TrimSpace(crs))]
	return s, ok
}

// CRSForTiploc2 returns the CRS code of a TIPLOC2, if the reference table
// knows it.
func (l *Lookup) CRSForTiploc2(tiploc2 string) (string, bool) {
	s, ok := l.ByTiploc2(tiploc2)
	if !ok || s.CRS == "" {
		return "", false
	}
	return s.CRS, true
}

// Len returns the number of distinct TIPLOC2 entries.
func (l *Lookup) Len() int {
	return len(l.byTiploc2)
}
