// Package period derives reporting-period labels from completion dates and an
// institution's calendar policy. Institutions on a fiscal calendar roll their
// reporting year in August; institutions on a calendar year report within a
// single year.
package period

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// fiscalRolloverMonth is the first month of a new fiscal reporting year.
const fiscalRolloverMonth = time.August

// ForDate returns the reporting-period label for a completion date.
//
// Fiscal policy: dates in August or later fall in "Y/Y+1", earlier dates in
// "Y-1/Y". Calendar policy: always "Y/Y".
func ForDate(date time.Time, usesCalendarYear bool) string {
	year := date.Year()
	if usesCalendarYear {
		return fmt.Sprintf("%d/%d", year, year)
	}
	if date.Month() >= fiscalRolloverMonth {
		return fmt.Sprintf("%d/%d", year, year+1)
	}
	return fmt.Sprintf("%d/%d", year-1, year)
}

// NormalizeForBenchmark maps a calendar-policy period "Y/Y" onto the fiscal
// window "Y/Y+1" so institutions on different policies align on one
// comparison window. Fiscal periods pass through unchanged, as does anything
// that does not parse as a period label. Only the benchmark aggregation path
// uses this; institution-local periods are persisted as computed.
func NormalizeForBenchmark(period string) string {
	first, second, ok := parse(period)
	if !ok {
		return period
	}
	if first == second {
		return fmt.Sprintf("%d/%d", first, first+1)
	}
	return period
}

// Valid reports whether s looks like a period label produced by ForDate.
func Valid(s string) bool {
	first, second, ok := parse(s)
	if !ok {
		return false
	}
	return second == first || second == first+1
}

func parse(s string) (int, int, bool) {
	left, right, found := strings.Cut(s, "/")
	if !found {
		return 0, 0, false
	}
	first, err := strconv.Atoi(left)
	if err != nil {
		return 0, 0, false
	}
	second, err := strconv.Atoi(right)
	if err != nil {
		return 0, 0, false
	}
	return first, second, true
}
