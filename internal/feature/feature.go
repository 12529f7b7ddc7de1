// Package feature maps extracted segments to the flat feature vectors the
// ensemble models were trained on.
package feature

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/gb"

	"github.com/masphdtrain25/MasPhD/internal/darwin"
	"github.com/masphdtrain25/MasPhD/internal/timeutil"
)

// Order is the canonical feature order expected by the trained models.
var Order = []string{
	"departure_delay",
	"dwell_delay",
	"peak",
	"day_of_week",
	"day_of_month",
	"hour_of_day",
	"weekend",
	"season",
	"month",
	"holiday",
}

// Vector is one feature row. Categorical features stay as strings; the
// model adapter encodes them.
type Vector struct {
	DepartureDelay float64
	DwellDelay     float64
	Peak           int
	DayOfWeek      string
	DayOfMonth     int
	HourOfDay      int
	Weekend        int
	Season         string
	Month          int
	Holiday        int
}

// Map returns the vector keyed by feature name, for model adapters and
// persistence.
func (v Vector) Map() map[string]any {
	return map[string]any{
		"departure_delay": v.DepartureDelay,
		"dwell_delay":     v.DwellDelay,
		"peak":            v.Peak,
		"day_of_week":     v.DayOfWeek,
		"day_of_month":    v.DayOfMonth,
		"hour_of_day":     v.HourOfDay,
		"weekend":         v.Weekend,
		"season":          v.Season,
		"month":           v.Month,
		"holiday":         v.Holiday,
	}
}

// Builder derives calendar features in a fixed timezone with a GB/England
// bank holiday calendar.
type Builder struct {
	loc      *time.Location
	holidays *cal.BusinessCalendar
}

// NewBuilder returns a Builder anchored to loc.
func NewBuilder(loc *time.Location) *Builder {
	c := cal.NewBusinessCalendar()
	c.AddHoliday(gb.Holidays...)
	return &Builder{loc: loc, holidays: c}
}

// Build maps one segment to a feature vector. The anchor timestamp is
// (ssd, planned_dep) because it is stable and always known for useful
// segments. Returns nil when ssd, planned departure, or the departure
// delay is missing; a missing dwell delay defaults to 0 (common in early
// updates).
func (b *Builder) Build(seg *darwin.Segment) *Vector {
	if seg.SSD == "" || seg.PlannedDep == nil || seg.DepartureDelayMin == nil {
		return nil
	}
	anchor := timeutil.Combine(seg.SSD, *seg.PlannedDep, nil, b.loc)
	if anchor == nil {
		return nil
	}

	dwell := 0.0
	if seg.DwellDelayMin != nil {
		dwell = *seg.DwellDelayMin
	}

	dayOfWeek := anchor.Weekday().String()
	weekend := 0
	if anchor.Weekday() == time.Saturday || anchor.Weekday() == time.Sunday {
		weekend = 1
	}
	hour := anchor.Hour()

	return &Vector{
		DepartureDelay: *seg.DepartureDelayMin,
		DwellDelay:     dwell,
		Peak:           peakFlag(hour, weekend),
		DayOfWeek:      dayOfWeek,
		DayOfMonth:     anchor.Day(),
		HourOfDay:      hour,
		Weekend:        weekend,
		Season:         season(*anchor),
		Month:          int(anchor.Month()),
		Holiday:        b.holidayFlag(*anchor),
	}
}

// peakFlag marks weekday morning (07:00-09:59) and evening (16:00-19:59)
// peaks.
func peakFlag(hour, weekend int) int {
	if weekend == 1 {
		return 0
	}
	if (6 < hour && hour < 10) || (16 <= hour && hour <= 19) {
		return 1
	}
	return 0
}

// season maps a date to the astronomical season by month and day.
// Boundaries: Winter until Mar 20 and from Dec 21, Spring until Jun 20,
// Summer until Sep 22, Autumn until Dec 20.
func season(t time.Time) string {
	m, d := int(t.Month()), t.Day()
	md := m*100 + d
	switch {
	case md <= 320:
		return "Winter"
	case md <= 620:
		return "Spring"
	case md <= 922:
		return "Summer"
	case md <= 1220:
		return "Autumn"
	default:
		return "Winter"
	}
}

func (b *Builder) holidayFlag(t time.Time) int {
	actual, observed, _ := b.holidays.IsHoliday(t)
	if actual || observed {
		return 1
	}
	return 0
}
