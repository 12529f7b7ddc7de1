package hsp

import (
	"sort"
	"strings"

	"github.com/masphdtrain25/MasPhD/internal/route"
)

// Location is one HSP location flattened into Darwin-like keys. TPL holds
// the CRS code (HSP does not speak TIPLOC); Tiploc2 is filled when the CRS
// maps to a tracked route station. Times remain raw "HHMM" strings.
type Location struct {
	RID     string
	SSD     string
	TOCCode string

	// Service-level fields repeated on every row.
	IsMainJourney int
	HSPTpls       string // sorted unique comma-joined CRS list

	TPL            string // CRS
	Tiploc2        string // "" when not on the tracked route
	PTA            *string
	PTD            *string
	ATA            *string
	ATD            *string
	LateCancReason *string
}

func clean(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ExtractServiceLocations flattens an HSP response into per-location rows.
// is_main_journey is 1 iff every CRS on the tracked route appears among the
// service's locations.
func ExtractServiceLocations(details *ServiceDetails, rt *route.Route) []Location {
	if details == nil {
		return nil
	}
	sad := &details.ServiceAttributesDetails

	rid := strings.TrimSpace(sad.RID)
	if rid == "" {
		return nil
	}

	seen := make(map[string]struct{})
	for _, loc := range sad.Locations {
		if crs := strings.TrimSpace(loc.Location); crs != "" {
			seen[crs] = struct{}{}
		}
	}

	isMain := 1
	routeCRS := rt.CRSSet()
	if len(routeCRS) == 0 {
		isMain = 0
	}
	for crs := range routeCRS {
		if _, ok := seen[crs]; !ok {
			isMain = 0
			break
		}
	}

	allCRS := make([]string, 0, len(seen))
	for crs := range seen {
		allCRS = append(allCRS, crs)
	}
	sort.Strings(allCRS)
	hspTpls := strings.Join(allCRS, ",")

	var out []Location
	for _, loc := range sad.Locations {
		crs := strings.TrimSpace(loc.Location)
		if crs == "" {
			continue
		}
		out = append(out, Location{
			RID:            rid,
			SSD:            strings.TrimSpace(sad.DateOfService),
			TOCCode:        strings.TrimSpace(sad.TOCCode),
			IsMainJourney:  isMain,
			HSPTpls:        hspTpls,
			TPL:            crs,
			Tiploc2:        rt.CRSToTiploc2[crs],
			PTA:            clean(loc.GBTTPta),
			PTD:            clean(loc.GBTTPtd),
			ATA:            clean(loc.ActualTa),
			ATD:            clean(loc.ActualTd),
			LateCancReason: clean(loc.LateCancReason),
		})
	}
	return out
}

// IndexByTiploc2 maps flattened rows to their route TIPLOC2 codes, so they
// can be matched against stored predictions. Rows whose CRS is not on the
// route are dropped; on duplicates the last row wins.
func IndexByTiploc2(rows []Location) map[string]Location {
	out := make(map[string]Location)
	for _, r := range rows {
		if r.Tiploc2 != "" {
			out[r.Tiploc2] = r
		}
	}
	return out
}
