package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// isoDateTime is the strict target form. Values already in this shape pass
// through without re-parsing.
var isoDateTime = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)

var (
	amPmRe    = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\.?\b`)
	clockRe   = regexp.MustCompile(`\b(\d{1,2}):(\d{2})(?::(\d{2}))?\b`)
	ordinalRe = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)\b`)
	isoDateRe = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	dmyRe     = regexp.MustCompile(`\b(\d{1,2})[/.](\d{1,2})[/.](\d{4})\b`)
	ymdRe     = regexp.MustCompile(`\b(\d{4})[/.](\d{1,2})[/.](\d{1,2})\b`)
)

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// NormalizeDate fuzzy-parses a natural-language date phrase ("15th August
// 2025 around 10am") into the strict YYYY-MM-DDTHH:MM:SS form. Time defaults
// to midnight when absent. Returns an error when no date can be recognized;
// callers keep the raw value and flag it for review.
func NormalizeDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("empty date string")
	}
	if isoDateTime.MatchString(s) {
		return s, nil
	}

	lower := strings.ToLower(s)

	hour, minute, second, remainder := extractTime(lower)

	year, month, day, err := extractDate(remainder)
	if err != nil {
		return "", err
	}

	// Round-trip through time.Date to reject impossible dates (Feb 30).
	t := time.Date(year, month, day, hour, minute, second, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return "", fmt.Errorf("impossible date: %q", raw)
	}

	return t.Format("2006-01-02T15:04:05"), nil
}

// extractTime pulls a time of day out of the phrase and returns the phrase
// with the time (and its filler words) removed.
func extractTime(s string) (hour, minute, second int, remainder string) {
	remainder = s

	if m := amPmRe.FindStringSubmatchIndex(s); m != nil {
		groups := amPmRe.FindStringSubmatch(s)
		hour, _ = strconv.Atoi(groups[1])
		if groups[2] != "" {
			minute, _ = strconv.Atoi(groups[2])
		}
		if groups[3] == "p" && hour < 12 {
			hour += 12
		}
		if groups[3] == "a" && hour == 12 {
			hour = 0
		}
		remainder = s[:m[0]] + " " + s[m[1]:]
		return hour, minute, 0, remainder
	}

	if m := clockRe.FindStringSubmatchIndex(s); m != nil {
		groups := clockRe.FindStringSubmatch(s)
		h, _ := strconv.Atoi(groups[1])
		mi, _ := strconv.Atoi(groups[2])
		if groups[3] != "" {
			second, _ = strconv.Atoi(groups[3])
		}
		if h < 24 && mi < 60 {
			remainder = s[:m[0]] + " " + s[m[1]:]
			return h, mi, second, remainder
		}
	}

	return 0, 0, 0, remainder
}

// extractDate recognizes ISO, slashed numeric, and month-name date forms.
func extractDate(s string) (int, time.Month, int, error) {
	s = ordinalRe.ReplaceAllString(s, "$1")

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return atoiDate(m[1], m[2], m[3])
	}
	if m := ymdRe.FindStringSubmatch(s); m != nil {
		return atoiDate(m[1], m[2], m[3])
	}
	if m := dmyRe.FindStringSubmatch(s); m != nil {
		a, _ := strconv.Atoi(m[1])
		b, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		// Disambiguate by the >12 rule; when both could be a month, read it
		// as month/day (the form most source files in the wild use).
		switch {
		case a > 12 && b <= 12:
			return year, time.Month(b), a, nil
		case b > 12 && a <= 12:
			return year, time.Month(a), b, nil
		case a <= 12 && b <= 12:
			return year, time.Month(a), b, nil
		default:
			return 0, 0, 0, fmt.Errorf("unparseable numeric date: %q", s)
		}
	}

	return extractMonthNameDate(s)
}

// extractMonthNameDate handles "15 august 2025", "august 15, 2025" and
// similar token orders.
func extractMonthNameDate(s string) (int, time.Month, int, error) {
	s = strings.ReplaceAll(s, ",", " ")
	tokens := strings.Fields(s)

	var (
		month    time.Month
		day      int
		year     int
		hasMonth bool
	)

	for _, tok := range tokens {
		if m, ok := months[tok]; ok && !hasMonth {
			month = m
			hasMonth = true
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		switch {
		case n >= 1000 && n <= 9999 && year == 0:
			year = n
		case n >= 1 && n <= 31 && day == 0:
			day = n
		}
	}

	if !hasMonth || day == 0 || year == 0 {
		return 0, 0, 0, fmt.Errorf("unrecognized date phrase: %q", strings.TrimSpace(s))
	}
	return year, month, day, nil
}

func atoiDate(y, m, d string) (int, time.Month, int, error) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, fmt.Errorf("out-of-range date %s-%s-%s", y, m, d)
	}
	return year, time.Month(month), day, nil
}
