package query

import "time"

// TimestampLayout is the layout used for timestamps in trace output.
const TimestampLayout = "2006-01-02 15:04:05 MST"

// FormatTimestamp renders t in loc. A nil loc renders in UTC.
func FormatTimestamp(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(TimestampLayout)
}
