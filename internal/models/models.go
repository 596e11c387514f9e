package models

import (
	"cmp"
	"strconv"
	"strings"
)

type Coordinate struct {
	Lat float64
	Lon float64
}

// Restaurant is immutable once loaded. RadiusKm is the delivery radius.
type Restaurant struct {
	ID       string
	Loc      Coordinate
	RadiusKm float64
	Open     ClockTime
	Close    ClockTime
}

type User struct {
	Loc Coordinate
	Row int // position in the input file after bad rows are skipped
}

// MatchResult is one output row. RestaurantIDs are in ascending id order.
type MatchResult struct {
	UserLat       float64
	UserLon       float64
	Count         int
	RestaurantIDs []string
}

// CompareIDs orders restaurant ids: integers numerically, before any
// non-integer id, which compare lexicographically.
func CompareIDs(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(ai, bi)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}
