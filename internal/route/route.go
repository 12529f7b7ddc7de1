// Package route holds the ordered list of tracked station pairs and the
// lookups derived from it. The pair list describes a single journey
// direction; reverse pairs are intentionally not included, which is what
// makes direction filtering possible downstream.
package route

import (
	"github.com/masphdtrain25/MasPhD/internal/stations"
)

// Pair is an ordered (first, second) segment of adjacent stations,
// identified by TIPLOC2 codes.
type Pair struct {
	First  string
	Second string
}

// StationPairs is the tracked route in journey order. Do not reverse.
var StationPairs = []Pair{
	{"WEYMTH", "UPWEY"},
	{"UPWEY", "DRCHS"},
	{"DRCHS", "WOOL"},
	{"WOOL", "WARHAM"},
	{"WARHAM", "HMWTHY"},
	{"HMWTHY", "POOLE"},
	{"POOLE", "PSTONE"},
	{"PSTONE", "BRANKSM"},
	{"BRANKSM", "BOMO"},
	{"BOMO", "POKSDWN"},
	{"POKSDWN", "CHRISTC"},
	{"CHRISTC", "NMILTON"},
	{"NMILTON", "BKNHRST"},
	{"BKNHRST", "SOTON"},
	{"SOTON", "SOTPKWY"},
	{"SOTPKWY", "WNCHSTR"},
	{"WNCHSTR", "BSNGSTK"},
	{"BSNGSTK", "CLPHMJM"},
	{"CLPHMJM", "WATRLMN"},
}

// Route bundles the pair list with the lookups derived from it and from the
// station reference table. Build it once at startup and inject it; nothing
// here does I/O.
type Route struct {
	Pairs       []Pair
	Stations    []string // unique stations in journey order
	Origin      string
	Destination string

	pairSet map[Pair]struct{}

	// Tiploc2ToCRS maps each route station to its CRS code where the
	// reference table knows one.
	Tiploc2ToCRS map[string]string

	// CRSToTiploc2 is the route-canonical reverse map. If a CRS appears
	// more than once on the route, the first occurrence in journey order
	// wins.
	CRSToTiploc2 map[string]string
}

// New derives the route lookups from StationPairs and the station reference
// table.
func New(lookup *stations.Lookup) *Route {
	r := &Route{
		Pairs:        StationPairs,
		pairSet:      make(map[Pair]struct{}, len(StationPairs)),
		Tiploc2ToCRS: make(map[string]string),
		CRSToTiploc2: make(map[string]string),
	}

	r.Stations = append(r.Stations, StationPairs[0].First)
	for _, p := range StationPairs {
		r.Stations = append(r.Stations, p.Second)
		r.pairSet[p] = struct{}{}
	}
	r.Origin = r.Stations[0]
	r.Destination = r.Stations[len(r.Stations)-1]

	for _, t2 := range r.Stations {
		crs, ok := lookup.CRSForTiploc2(t2)
		if !ok {
			continue
		}
		r.Tiploc2ToCRS[t2] = crs
		if _, seen := r.CRSToTiploc2[crs]; !seen {
			r.CRSToTiploc2[crs] = t2
		}
	}
	return r
}

// IsTrackedPair reports whether (first, second) is one of the tracked
// ordered pairs.
func (r *Route) IsTrackedPair(first, second string) bool {
	_, ok := r.pairSet[Pair{First: first, Second: second}]
	return ok
}

// CRSSet returns the CRS codes of the route stations known to the reference
// table.
func (r *Route) CRSSet() map[string]struct{} {
	out := make(map[string]struct{}, len(r.Tiploc2ToCRS))
	for _, crs := range r.Tiploc2ToCRS {
		out[crs] = struct{}{}
	}
	return out
}
