package normalize

import (
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// dateLayouts are tried in order. ISO goes first because it is cheap and unambiguous;
// day-first layouts come before month-first ones since Indian statements are day-first.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02.01.2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02 January 2006",
	"2 January 2006",
	"02 Jan, 2006",
	"02/01/06",
	"2/1/06",
	"02-01-06",
	"02.01.06",
	"02 Jan 06",
	"02-Jan-06",
	"2-Jan-06",
	"Jan 02 2006",
	"Jan 2 2006",
	"Jan 02, 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"20060102",
}

// twoDigitYear reports whether a layout carries a two-digit year.
func twoDigitYear(layout string) bool {
	return !strings.Contains(layout, "2006") && strings.Contains(layout, "06")
}

var timeSuffixRe = regexp.MustCompile(`(?i)[\sT]+(\d{1,2}):(\d{2})(?::(\d{2}))?\s*(AM|PM)?$`)

// ParseDate parses a statement date. A trailing time of day, when present, is returned as
// an instant in loc. ok is false when no layout matched.
func ParseDate(text string, now time.Time, loc *time.Location) (date civil.Date, ts *time.Time, ok bool) {
	s := strings.Join(strings.Fields(strings.TrimSpace(text)), " ")
	if s == "" {
		return civil.Date{}, nil, false
	}
	if loc == nil {
		loc = time.UTC
	}

	timePart := ""
	if m := timeSuffixRe.FindStringIndex(s); m != nil && m[0] > 0 {
		timePart = strings.TrimSpace(s[m[0]:])
		s = strings.TrimSpace(s[:m[0]])
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if twoDigitYear(layout) {
			century := now.Year() / 100 * 100
			t = time.Date(century+t.Year()%100, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		date = civil.DateOf(t)
		if timePart != "" {
			ts = parseClock(date, timePart, loc)
		}
		return date, ts, true
	}
	return civil.Date{}, nil, false
}

var clockLayouts = []string{"15:04:05", "15:04", "3:04:05 PM", "3:04 PM", "3:04:05PM", "3:04PM"}

func parseClock(date civil.Date, clock string, loc *time.Location) *time.Time {
	clock = strings.ToUpper(clock)
	for _, layout := range clockLayouts {
		c, err := time.Parse(layout, clock)
		if err != nil {
			continue
		}
		t := time.Date(date.Year, date.Month, date.Day, c.Hour(), c.Minute(), c.Second(), 0, loc)
		return &t
	}
	return nil
}
