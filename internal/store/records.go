package store

// Table names accepted by the writer.
const (
	TablePredictionsAll    = "predictions_all"
	TablePredictionsActual = "predictions_actual"
)

// PredictionRecord is one snapshot row for predictions_all or
// predictions_actual. Pointer fields persist as NULL when nil.
type PredictionRecord struct {
	RID    string
	SSD    string
	First  string
	Second string

	PlannedDep         *string
	DepTime            *string
	DepTimeKind        string
	HasActualDep       bool
	ActualDepConfirmed *string

	DepartureDelay float64
	DwellDelay     float64

	Peak       int
	DayOfWeek  string
	DayOfMonth int
	HourOfDay  int
	Weekend    int
	Season     string
	Month      int
	Holiday    int

	PredictedDelay float64
}

const insertPredictionSQL = ` (
    rid, ssd, first, second,
    planned_dep, dep_time, dep_time_kind, has_actual_dep, actual_dep_confirmed,
    departure_delay, dwell_delay,
    peak, day_of_week, day_of_month, hour_of_day, weekend, season, month, holiday,
    predicted_delay
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *PredictionRecord) args() []any {
	hasActual := 0
	if r.HasActualDep {
		hasActual = 1
	}
	return []any{
		r.RID, r.SSD, r.First, r.Second,
		r.PlannedDep, r.DepTime, r.DepTimeKind, hasActual, r.ActualDepConfirmed,
		r.DepartureDelay, r.DwellDelay,
		r.Peak, r.DayOfWeek, r.DayOfMonth, r.HourOfDay, r.Weekend, r.Season, r.Month, r.Holiday,
		r.PredictedDelay,
	}
}
