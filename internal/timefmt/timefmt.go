// Package timefmt renders event timestamps for chat messages.
package timefmt

import (
	"time"
	_ "time/tzdata" // Lambda images do not ship zoneinfo.
)

// DisplayZone is the timezone all rendered timestamps are shown in.
const DisplayZone = "Europe/Zurich"

const shortLayout = "20060102 15:04:05"

// CloudWatch emits offsets without a colon, e.g. 2022-04-01T07:18:59.951+0000.
var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
}

var location = mustLoad(DisplayZone)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Parse reads an ISO 8601 timestamp in any of the forms AWS events use.
func Parse(value string) (time.Time, error) {
	var err error
	for _, layout := range layouts {
		var t time.Time
		if t, err = time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// Short formats t as YYYYMMDD HH:MM:SS in the display zone.
func Short(t time.Time) string {
	return t.In(location).Format(shortLayout)
}

// ShortFormat parses an ISO timestamp and formats it with Short. Input that
// cannot be parsed is returned unchanged.
func ShortFormat(value string) string {
	t, err := Parse(value)
	if err != nil {
		return value
	}
	return Short(t)
}
