package models

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want ClockTime
	}{
		{"00:00:00", 0},
		{"12:00:00", Noon},
		{"23:59:59", 86399},
		{" 06:30:15 ", 6*3600 + 30*60 + 15},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseClock_Invalid(t *testing.T) {
	for _, in := range []string{"", "invalid_time", "24:00:00", "12:60:00", "12:00:60", "12:00", "1:00:00", "12:00:00:00", "-1:00:00"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseClock(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrConfig))
		})
	}
}

func TestClockString(t *testing.T) {
	assert.Equal(t, "12:00:00", Noon.String())
	assert.Equal(t, "22:05:09", MustParseClock("22:05:09").String())
}

func TestClockFromDayFraction(t *testing.T) {
	tests := []struct {
		frac float64
		want string
	}{
		{0, "00:00:00"},
		{10.0 / 24, "10:00:00"},
		{22.5 / 24, "22:30:00"},
		{0.4166666666666667, "10:00:00"},
		{0.9999999, "23:59:59"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClockFromDayFraction(tt.frac).String(), "frac %v", tt.frac)
	}
}

func TestCompareIDs(t *testing.T) {
	ids := []string{"b", "10", "9", "a", "100", "-3"}
	slices.SortFunc(ids, CompareIDs)
	assert.Equal(t, []string{"-3", "9", "10", "100", "a", "b"}, ids)
	assert.Equal(t, 0, CompareIDs("7", "7"))
}

func TestRowError(t *testing.T) {
	err := &RowError{Source: "users.csv", Row: 3, Err: Configf("invalid number %q", "x")}
	assert.Equal(t, `users.csv row 3: config error: invalid number "x"`, err.Error())
	assert.True(t, errors.Is(err, ErrConfig))
}
