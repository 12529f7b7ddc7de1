// Package darwin decodes Darwin PushPort frames and turns per-location
// forecast snapshots into per-segment records for the tracked route.
package darwin

// Forecast is one TS/Location element flattened into a record. Time fields
// hold the raw Darwin clock strings ("09:43", "09:47:30"); empty string
// means the feed did not carry that field. Everything downstream of the
// extractor works with pointers instead.
type Forecast struct {
	// TS-level attributes shared by every location in the element.
	RID          string
	UID          string
	SSD          string
	UpdateOrigin string

	TPL string

	// Planned (public / working timetable).
	PTA string
	PTD string
	WTA string
	WTD string

	// Estimates and confirmed actuals carried as location attributes.
	ETA string
	ETD string
	ATA string
	ATD string

	// Estimates and actuals carried on empty <arr>/<dep> sub-elements.
	ArrAt  string
	ArrEt  string
	ArrWet string
	DepAt  string
	DepEt  string

	// State records the tag of the last empty sub-element that was not an
	// arr/dep time carrier (e.g. "cancelled"); its attributes land in
	// Extra as "<tag>_<attr>".
	State string

	// Extra collects attributes and sub-elements with no dedicated field.
	Extra map[string]string
}

// set assigns a flattened key to its Forecast field, falling back to Extra
// for keys without one.
func (f *Forecast) set(key, value string) {
	switch key {
	case "tpl":
		f.TPL = value
	case "pta":
		f.PTA = value
	case "ptd":
		f.PTD = value
	case "wta":
		f.WTA = value
	case "wtd":
		f.WTD = value
	case "eta":
		f.ETA = value
	case "etd":
		f.ETD = value
	case "ata":
		f.ATA = value
	case "atd":
		f.ATD = value
	case "arr_at":
		f.ArrAt = value
	case "arr_et":
		f.ArrEt = value
	case "arr_wet":
		f.ArrWet = value
	case "dep_at":
		f.DepAt = value
	case "dep_et":
		f.DepEt = value
	default:
		if f.Extra == nil {
			f.Extra = make(map[string]string)
		}
		f.Extra[key] = value
	}
}

// get reads a flattened key back, mirroring set.
func (f *Forecast) get(key string) string {
	switch key {
	case "tpl":
		return f.TPL
	case "pta":
		return f.PTA
	case "ptd":
		return f.PTD
	case "wta":
		return f.WTA
	case "wtd":
		return f.WTD
	case "eta":
		return f.ETA
	case "etd":
		return f.ETD
	case "ata":
		return f.ATA
	case "atd":
		return f.ATD
	case "arr_at":
		return f.ArrAt
	case "arr_et":
		return f.ArrEt
	case "arr_wet":
		return f.ArrWet
	case "dep_at":
		return f.DepAt
	case "dep_et":
		return f.DepEt
	default:
		return f.Extra[key]
	}
}

// firstNonEmpty returns the first key with a value, or "".
func (f *Forecast) firstNonEmpty(keys ...string) string {
	for _, k := range keys {
		if v := f.get(k); v != "" {
			return v
		}
	}
	return ""
}

// ScheduleEndpoint is one schedule OR (origin) or DT (destination) entry.
type ScheduleEndpoint struct {
	RID  string
	UID  string
	SSD  string
	TPL  string
	Type string // "OR" or "DT"
}

// Departure time source classification for a segment.
const (
	KindActual   = "actual"
	KindEstimate = "estimate"
	KindMissing  = "missing"
)

// Segment is one record per tracked ordered pair (First, Second), built
// from the forecast locations at both stations.
type Segment struct {
	RID    string
	SSD    string
	First  string
	Second string

	// Planned times at First.
	PlannedDep *string
	PlannedArr *string

	// Best available operational departure at First.
	DepTimeForPrediction *string
	DepTimeKind          string // KindActual | KindEstimate | KindMissing
	HasActualDep         bool
	ActualDepConfirmed   *string

	DepartureDelayMin *float64
	ArrivalDelayMin   *float64 // at First, used for dwell only
	DwellDelayMin     *float64

	// PlannedArrSecond is the planned arrival at Second (pta else wta),
	// stashed by the orchestrator for in-progress filtering.
	PlannedArrSecond *string

	// Raw locations for debugging and for recovering PlannedArrSecond.
	LocFirst  *Forecast
	LocSecond *Forecast
}
