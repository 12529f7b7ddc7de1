package darwin

import (
	"time"

	"github.com/masphdtrain25/MasPhD/internal/route"
	"github.com/masphdtrain25/MasPhD/internal/timeutil"
)

// Departure/arrival time pickers. Order encodes the source precedence.

func pickPlannedDep(loc *Forecast) string  { return loc.firstNonEmpty("ptd", "wtd") }
func pickPlannedArr(loc *Forecast) string  { return loc.firstNonEmpty("pta", "wta") }
func pickActualDep(loc *Forecast) string   { return loc.firstNonEmpty("atd", "dep_at") }
func pickEstimateDep(loc *Forecast) string { return loc.firstNonEmpty("etd", "dep_et") }
func pickActualArr(loc *Forecast) string   { return loc.firstNonEmpty("ata", "arr_at") }
func pickEstimateArr(loc *Forecast) string { return loc.firstNonEmpty("arr_et", "arr_wet") }

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// buildTPLIndex maps tpl -> location; on duplicates the last occurrence
// wins (usually the latest update).
func buildTPLIndex(forecasts []Forecast) map[string]*Forecast {
	byTPL := make(map[string]*Forecast, len(forecasts))
	for i := range forecasts {
		if tpl := forecasts[i].TPL; tpl != "" {
			byTPL[tpl] = &forecasts[i]
		}
	}
	return byTPL
}

// scheduleEndpoints returns the origin (OR) and destination (DT) TIPLOCs
// from the schedule rows, "" when absent.
func scheduleEndpoints(schedules []ScheduleEndpoint) (origin, dest string) {
	for _, s := range schedules {
		if s.TPL == "" {
			continue
		}
		switch s.Type {
		case "OR":
			origin = s.TPL
		case "DT":
			dest = s.TPL
		}
	}
	return origin, dest
}

// matchesRouteDirection checks the schedule endpoints against the route.
// Returns (match, known); known is false when either endpoint is missing
// and the caller must fall back to the reverse vote.
func matchesRouteDirection(rt *route.Route, schedules []ScheduleEndpoint) (match, known bool) {
	origin, dest := scheduleEndpoints(schedules)
	if origin == "" || dest == "" {
		return false, false
	}
	return origin == rt.Origin && dest == rt.Destination, true
}

// isReverseByVote is the direction fallback when schedule endpoints are
// missing. For each tracked pair with both locations present it compares
// the time of day at first and second: a negative delta (after folding
// midnight crossings) is a reverse vote, and any single delta of -10
// minutes or worse rejects immediately. With at least two votes cast, the
// journey is reverse iff reverse votes strictly outnumber forward votes.
func isReverseByVote(rt *route.Route, byTPL map[string]*Forecast) bool {
	forward, reverse := 0, 0

	for _, p := range rt.Pairs {
		a, okA := byTPL[p.First]
		b, okB := byTPL[p.Second]
		if !okA || !okB {
			continue
		}

		dep := timeutil.ParseClock(a.firstNonEmpty("ptd", "wtd", "dep_et", "dep_at"))
		arr := timeutil.ParseClock(b.firstNonEmpty("pta", "wta", "arr_et", "arr_wet", "arr_at"))
		if dep == nil || arr == nil {
			continue
		}

		delta := arr.MinutesOfDay() - dep.MinutesOfDay()
		if delta < -720 {
			delta += 1440
		}

		if delta < 0 {
			reverse++
			if delta <= -10 {
				return true
			}
		} else {
			forward++
		}
	}

	if forward+reverse >= 2 {
		return reverse > forward
	}
	return false
}

// ExtractSegments produces one Segment per tracked pair whose two locations
// both appear in the forecasts. With dropWrongDirection set, journeys whose
// schedule endpoints do not match the route (or, lacking endpoints, that
// lose the reverse vote) yield nothing.
func ExtractSegments(rt *route.Route, forecasts []Forecast, schedules []ScheduleEndpoint, loc *time.Location, dropWrongDirection bool) []Segment {
	if len(forecasts) == 0 {
		return nil
	}

	rid := forecasts[0].RID
	ssd := forecasts[0].SSD
	byTPL := buildTPLIndex(forecasts)

	if dropWrongDirection {
		match, known := matchesRouteDirection(rt, schedules)
		if known && !match {
			return nil
		}
		if !known && isReverseByVote(rt, byTPL) {
			return nil
		}
	}

	var out []Segment
	for _, p := range rt.Pairs {
		locA, okA := byTPL[p.First]
		locB, okB := byTPL[p.Second]
		if !okA || !okB {
			continue
		}

		seg := Segment{
			RID:       rid,
			SSD:       ssd,
			First:     p.First,
			Second:    p.Second,
			LocFirst:  locA,
			LocSecond: locB,
		}

		seg.PlannedDep = strPtr(pickPlannedDep(locA))
		seg.PlannedArr = strPtr(pickPlannedArr(locA))
		seg.ActualDepConfirmed = strPtr(pickActualDep(locA))
		seg.HasActualDep = seg.ActualDepConfirmed != nil

		// Best operational departure: confirmed actual, else estimate,
		// else working, else planned.
		switch {
		case seg.HasActualDep:
			seg.DepTimeForPrediction = seg.ActualDepConfirmed
			seg.DepTimeKind = KindActual
		case pickEstimateDep(locA) != "":
			seg.DepTimeForPrediction = strPtr(pickEstimateDep(locA))
			seg.DepTimeKind = KindEstimate
		case locA.WTD != "":
			seg.DepTimeForPrediction = strPtr(locA.WTD)
			seg.DepTimeKind = KindEstimate
		case locA.PTD != "":
			seg.DepTimeForPrediction = strPtr(locA.PTD)
			seg.DepTimeKind = KindEstimate
		default:
			seg.DepTimeKind = KindMissing
		}

		var plannedDepDT *time.Time
		if ssd != "" && seg.PlannedDep != nil {
			plannedDepDT = timeutil.Combine(ssd, *seg.PlannedDep, nil, loc)
		}
		if plannedDepDT != nil && seg.DepTimeForPrediction != nil {
			depPredDT := timeutil.Combine(ssd, *seg.DepTimeForPrediction, plannedDepDT, loc)
			seg.DepartureDelayMin = timeutil.DiffMinutesWrap(plannedDepDT, depPredDT)
		}

		// Arrival delay at First feeds the dwell computation only.
		arrForDwell := pickActualArr(locA)
		if arrForDwell == "" {
			arrForDwell = pickEstimateArr(locA)
		}
		if plannedDepDT != nil && seg.PlannedArr != nil && arrForDwell != "" {
			plannedArrDT := timeutil.Combine(ssd, *seg.PlannedArr, plannedDepDT, loc)
			arrDwellDT := timeutil.Combine(ssd, arrForDwell, plannedDepDT, loc)
			seg.ArrivalDelayMin = timeutil.DiffMinutesWrap(plannedArrDT, arrDwellDT)
		}

		switch {
		case p.First == rt.Origin:
			seg.DwellDelayMin = seg.DepartureDelayMin
		case seg.DepartureDelayMin != nil && seg.ArrivalDelayMin != nil:
			dwell := *seg.DepartureDelayMin - *seg.ArrivalDelayMin
			seg.DwellDelayMin = &dwell
		}

		out = append(out, seg)
	}
	return out
}
