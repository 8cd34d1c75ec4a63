package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, unix seconds and unix milliseconds.
// Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return FromUnixAuto(ts), true
	}
	return time.Time{}, false
}

// FromUnixAuto interprets ts as milliseconds when it is too large to be seconds.
func FromUnixAuto(ts int64) time.Time {
	if ts > 1e11 {
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}

// FloorToBucket rounds t down to the nearest multiple of d counted from the
// unix epoch: floor(t / d) * d. A non-positive d returns t unchanged.
func FloorToBucket(t time.Time, d time.Duration) time.Time {
	if d <= 0 {
		return t
	}
	ns := t.UnixNano()
	b := ns - ns%int64(d)
	if ns < 0 && ns%int64(d) != 0 {
		b -= int64(d)
	}
	return time.Unix(0, b).In(t.Location())
}
