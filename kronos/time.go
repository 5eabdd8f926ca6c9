package kronos

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Time is a Kronos timestamp: 100ns ticks since the Unix epoch.
type Time int64

// TicksPerMillisecond converts wall-clock milliseconds to Kronos ticks.
const TicksPerMillisecond = 10000

const ticksPerSecond = 1000 * TicksPerMillisecond

// FromTime converts t at millisecond precision.
func FromTime(t time.Time) Time {
	return Time(t.UnixMilli() * TicksPerMillisecond)
}

// Now returns the current time in ticks.
func Now() Time {
	return FromTime(time.Now())
}

// Time converts back to a time.Time in UTC.
func (t Time) Time() time.Time {
	ticks := int64(t)
	sec, rem := ticks/ticksPerSecond, ticks%ticksPerSecond
	return time.Unix(sec, rem*100).UTC()
}

func (t Time) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// ParseTime accepts raw ticks, RFC 3339 timestamps or dates (YYYY-MM-DD).
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}
	if ticks, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Time(ticks), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t), nil
		}
	}
	return 0, fmt.Errorf("parse time %q: expected ticks, RFC 3339 or YYYY-MM-DD", s)
}
