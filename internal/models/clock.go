package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ClockTime is a wall-clock time of day in seconds since midnight.
type ClockTime int

const (
	secondsPerDay = 24 * 60 * 60
	Noon          = ClockTime(12 * 60 * 60)
)

// ParseClock parses a strict HH:MM:SS value.
func ParseClock(s string) (ClockTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: time %q is not HH:MM:SS", ErrConfig, s)
	}
	limits := [3]int{23, 59, 59}
	var vals [3]int
	for i, p := range parts {
		if len(p) != 2 {
			return 0, fmt.Errorf("%w: time %q is not HH:MM:SS", ErrConfig, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("%w: time %q is out of range", ErrConfig, s)
		}
		vals[i] = n
	}
	return ClockTime(vals[0]*3600 + vals[1]*60 + vals[2]), nil
}

// ClockFromDayFraction converts a fraction of a day, as spreadsheets store
// times, to the nearest second. Values that round up to midnight clamp to
// 23:59:59.
func ClockFromDayFraction(frac float64) ClockTime {
	s := int(math.Round(frac * secondsPerDay))
	return ClockTime(max(0, min(s, secondsPerDay-1)))
}

func MustParseClock(s string) ClockTime {
	t, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t ClockTime) String() string {
	s := int(t) % secondsPerDay
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}
