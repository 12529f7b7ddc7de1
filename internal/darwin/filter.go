package darwin

import (
	"time"

	"github.com/masphdtrain25/MasPhD/internal/timeutil"
)

// In-progress grace windows: a segment counts as started up to five
// minutes before its planned departure and as unfinished until two minutes
// after its planned arrival.
const (
	DepGraceAfterNow  = 5 * time.Minute
	ArrGraceBeforeNow = 2 * time.Minute
)

// Near-departure window used by the debug filter.
const (
	NearDepartureBefore = 30 * time.Minute
	NearDepartureAfter  = 180 * time.Minute
)

func plannedDepDT(seg *Segment, loc *time.Location) *time.Time {
	if seg.SSD == "" || seg.PlannedDep == nil {
		return nil
	}
	return timeutil.Combine(seg.SSD, *seg.PlannedDep, nil, loc)
}

// plannedArrSecondDT is the planned arrival at the segment's destination,
// taken from the stashed PlannedArrSecond and rolled over past midnight
// relative to the planned departure.
func plannedArrSecondDT(seg *Segment, base *time.Time, loc *time.Location) *time.Time {
	if seg.SSD == "" || seg.PlannedArrSecond == nil {
		return nil
	}
	return timeutil.Combine(seg.SSD, *seg.PlannedArrSecond, base, loc)
}

// FilterInProgress keeps segments the service is currently running:
// planned departure at or before now plus grace, planned arrival at the
// destination at or after now minus grace. Planned times only; segments
// missing either time are dropped.
func FilterInProgress(segments []Segment, now time.Time, loc *time.Location) []Segment {
	depLimit := now.Add(DepGraceAfterNow)
	arrLimit := now.Add(-ArrGraceBeforeNow)

	var out []Segment
	for i := range segments {
		seg := &segments[i]
		dep := plannedDepDT(seg, loc)
		if dep == nil {
			continue
		}
		arr := plannedArrSecondDT(seg, dep, loc)
		if arr == nil {
			continue
		}
		if !dep.After(depLimit) && !arr.Before(arrLimit) {
			out = append(out, *seg)
		}
	}
	return out
}

// FilterNearDeparture keeps segments whose planned departure falls inside
// [now-before, now+after]. Debugging aid for watching upcoming segments.
func FilterNearDeparture(segments []Segment, now time.Time, loc *time.Location, before, after time.Duration) []Segment {
	winStart := now.Add(-before)
	winEnd := now.Add(after)

	var out []Segment
	for i := range segments {
		dep := plannedDepDT(&segments[i], loc)
		if dep == nil {
			continue
		}
		if !dep.Before(winStart) && !dep.After(winEnd) {
			out = append(out, segments[i])
		}
	}
	return out
}
