package timeutil

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// rolloverThreshold decides when a combined time that lands before its base
// is treated as having crossed midnight.
const rolloverThreshold = 2 * time.Hour

// Clock is a wall-clock time of day without a date.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// MinutesOfDay returns the clock position as fractional minutes since midnight.
func (c Clock) MinutesOfDay() float64 {
	return float64(c.Hour)*60 + float64(c.Minute) + float64(c.Second)/60
}

// ParseClock parses Darwin-style time strings ("09:43", "09:47:30") and the
// bare "0943" form used by HSP. Anything else returns nil; this never fails.
func ParseClock(s string) *Clock {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &Clock{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
		}
	}
	if len(s) == 4 {
		if t, err := time.Parse("1504", s); err == nil {
			return &Clock{Hour: t.Hour(), Minute: t.Minute()}
		}
	}
	return nil
}

// Combine merges a YYYY-MM-DD service start date and a clock string into a
// timestamp in loc. When base is set and the naive combination lands more
// than two hours before it, the clock is assumed to have rolled past
// midnight and the result advances one day. Unparseable input returns nil.
func Combine(ssd, clock string, base *time.Time, loc *time.Location) *time.Time {
	c := ParseClock(clock)
	if c == nil {
		return nil
	}
	day, err := time.ParseInLocation("2006-01-02", ssd, loc)
	if err != nil {
		return nil
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, c.Second, 0, loc)
	if base != nil && base.Sub(t) > rolloverThreshold {
		t = t.AddDate(0, 0, 1)
	}
	return &t
}

// DiffMinutesWrap returns actual minus planned in minutes, folding away the
// day-sized artifacts left by times that cross midnight: deltas beyond
// +1200 lose a day, deltas below -1200 gain one. Nil if either input is nil.
func DiffMinutesWrap(planned, actual *time.Time) *float64 {
	if planned == nil || actual == nil {
		return nil
	}
	m := actual.Sub(*planned).Minutes()
	if m > 1200 {
		m -= 1440
	}
	if m < -1200 {
		m += 1440
	}
	return &m
}

// NormalizeHHMM rewrites HSP's bare "0657" form as "06:57". Values already
// containing a colon pass through unchanged; anything else returns "".
func NormalizeHHMM(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, ":") {
		return s
	}
	if len(s) == 4 && isDigits(s) {
		return s[:2] + ":" + s[2:]
	}
	return ""
}

// FormatMMSS renders float minutes as a signed MM:SS string, "NA" when nil.
func FormatMMSS(minutes *float64) string {
	if minutes == nil {
		return "NA"
	}
	total := int(math.Round(*minutes * 60))
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	return fmt.Sprintf("%s%02d:%02d", sign, total/60, total%60)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
