// Package week implements ISO-8601 week bucketing for parcel scopes: every
// parcel belongs to the "YYYY-Wnn" bucket of its intake instant, and driver
// sequence counters are scoped per bucket.
package week

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var pattern = regexp.MustCompile(`^(\d{4})-W(\d{2})$`)

// CurrentID returns the ISO-8601 week identifier ("2026-W07") for the given
// instant, evaluated in UTC. Weeks start Monday; week 1 contains the year's
// first Thursday.
func CurrentID(now time.Time) string {
	year, weekNum := now.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, weekNum)
}

// IsValid reports whether the string is a well-formed week identifier.
// Malformed identifiers are displayed as-is by callers, never parsed.
func IsValid(id string) bool {
	return pattern.MatchString(id)
}

// DateRange maps a week identifier back to its (Monday, Sunday) span. ISO
// guarantees January 4 falls in week 1, which anchors the computation. An
// unparseable identifier yields an error; callers display the raw string.
func DateRange(id string) (monday, sunday time.Time, err error) {
	m := pattern.FindStringSubmatch(id)
	if m == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("unparseable week id %q", id)
	}
	year, _ := strconv.Atoi(m[1])
	weekNum, _ := strconv.Atoi(m[2])

	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	dayOfWeek := int(jan4.Weekday())
	if dayOfWeek == 0 {
		dayOfWeek = 7
	}
	monday = jan4.AddDate(0, 0, -dayOfWeek+1+(weekNum-1)*7)
	sunday = monday.AddDate(0, 0, 6)
	return monday, sunday, nil
}

// RangeLabel renders a week identifier as "09.02.2026 – 15.02.2026". The raw
// identifier is returned unchanged when it cannot be parsed.
func RangeLabel(id string) string {
	monday, sunday, err := DateRange(id)
	if err != nil {
		return id
	}
	format := func(t time.Time) string {
		return t.Format("02.01.2006")
	}
	return fmt.Sprintf("%s – %s", format(monday), format(sunday))
}
