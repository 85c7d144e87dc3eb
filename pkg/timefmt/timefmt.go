// Package timefmt converts appointment times to and from the text stored in
// the spreadsheet and accepted over HTTP.
package timefmt

import (
	"strings"
	"time"
)

// ShortDateTime is the en-US short date and time pattern ("g"), the layout
// every AppointmentTime cell is written in.
const ShortDateTime = "1/2/2006 3:04 PM"

// layouts accepted by Parse, most specific first
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	ShortDateTime,
	"1/2/2006 3:04:05 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/06 15:04",
	"1/2/06 3:04 PM",
	"1/2/2006",
	"2006-01-02",
}

// Format renders t with the short layout in loc. The zero time renders as an
// empty string so it reads back as the zero time.
func Format(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(ShortDateTime)
}

// Parse reads s with any accepted layout. Values without an offset are
// interpreted in loc.
func Parse(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseOrMin is Parse with the zero time as the fallback for unreadable text
func ParseOrMin(s string, loc *time.Location) time.Time {
	t, _ := Parse(s, loc)
	return t
}
