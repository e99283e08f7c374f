package email

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var daysAgoPattern = regexp.MustCompile(`(?i)^(\d+)\s+days?\s+ago$`)

// ParseSince accepts YYYY-MM-DD, "today", "yesterday" or "N days ago" and
// returns midnight UTC of that day
func ParseSince(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	now = now.UTC()

	var date time.Time
	switch lower := strings.ToLower(value); {
	case lower == "today":
		date = now
	case lower == "yesterday":
		date = now.AddDate(0, 0, -1)
	case strings.HasSuffix(lower, "ago"):
		match := daysAgoPattern.FindStringSubmatch(lower)
		if match == nil {
			return time.Time{}, fmt.Errorf("invalid date %q: use \"N days ago\" (e.g. \"7 days ago\")", value)
		}
		days, err := strconv.Atoi(match[1])
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
		}
		date = now.AddDate(0, 0, -days)
	default:
		parsed, err := time.Parse("2006-01-02", value)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: accepted formats are YYYY-MM-DD, yesterday, or \"N days ago\"", value)
		}
		date = parsed
	}

	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC), nil
}
