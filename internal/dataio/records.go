// Package dataio reads restaurant and user tables from CSV or XLSX files and
// writes result tables. Bad rows are skipped and counted; a missing required
// column fails the whole file.
package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"delivery-match/internal/calculator"
	"delivery-match/internal/models"
)

var (
	RestaurantHeader = []string{"id", "latitude", "longitude", "availability_radius", "open_hour", "close_hour"}
	UserHeader       = []string{"USER_LATITUDE", "USER_LONGITUDE"}
	ResultHeader     = []string{"User_latitude", "User_Longitude", "Available_restaurant_count", "Restaurant_Id's"}
)

const maxSampleErrors = 5

// Stats describes one read. Samples holds the first few row errors.
type Stats struct {
	Rows    int
	Skipped int
	Samples []error
}

// Skip counts a rejected row.
func (s *Stats) Skip(err error) {
	s.Skipped++
	if len(s.Samples) < maxSampleErrors {
		s.Samples = append(s.Samples, err)
	}
}

type rowReader interface {
	Read() ([]string, error)
}

// locate maps each wanted column to its position in header, ignoring case,
// surrounding space and a UTF-8 BOM.
func locate(source string, header []string, want []string) ([]int, error) {
	pos := make([]int, len(want))
	for i, name := range want {
		pos[i] = -1
		for j, h := range header {
			h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
			if strings.EqualFold(h, name) {
				pos[i] = j
				break
			}
		}
		if pos[i] < 0 {
			return nil, fmt.Errorf("%s: %w", source, models.Configf("missing column %q", name))
		}
	}
	return pos, nil
}

func field(row []string, pos int) string {
	if pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}

func parseNumber(val string) (float64, error) {
	// Accept decimal commas.
	val = strings.ReplaceAll(val, ",", ".")
	if val == "" {
		return 0, models.Configf("empty number")
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, models.Configf("invalid number %q", val)
	}
	return f, nil
}

func parseCoordinate(latStr, lonStr string) (models.Coordinate, error) {
	lat, err := parseNumber(latStr)
	if err != nil {
		return models.Coordinate{}, err
	}
	lon, err := parseNumber(lonStr)
	if err != nil {
		return models.Coordinate{}, err
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return models.Coordinate{}, models.Configf("coordinate (%v, %v) out of range", lat, lon)
	}
	return models.Coordinate{Lat: lat, Lon: lon}, nil
}

// parseClock accepts HH:MM:SS or a spreadsheet time value, a day fraction in
// [0, 1).
func parseClock(val string) (models.ClockTime, error) {
	t, err := models.ParseClock(val)
	if err == nil {
		return t, nil
	}
	frac, ferr := strconv.ParseFloat(val, 64)
	if ferr != nil || math.IsNaN(frac) || frac < 0 || frac >= 1 {
		return 0, err
	}
	return models.ClockFromDayFraction(frac), nil
}

// ParseRestaurant builds a restaurant from its raw field values in
// RestaurantHeader order.
func ParseRestaurant(fields []string) (models.Restaurant, error) {
	if len(fields) != len(RestaurantHeader) {
		return models.Restaurant{}, models.Configf("want %d fields, got %d", len(RestaurantHeader), len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	id := fields[0]
	if id == "" {
		return models.Restaurant{}, models.Configf("empty id")
	}
	loc, err := parseCoordinate(fields[1], fields[2])
	if err != nil {
		return models.Restaurant{}, err
	}
	radius, err := parseNumber(fields[3])
	if err != nil {
		return models.Restaurant{}, err
	}
	if radius < 0 {
		return models.Restaurant{}, models.Configf("negative radius %v", radius)
	}
	open, err := parseClock(fields[4])
	if err != nil {
		return models.Restaurant{}, err
	}
	closing, err := parseClock(fields[5])
	if err != nil {
		return models.Restaurant{}, err
	}
	return models.Restaurant{ID: id, Loc: loc, RadiusKm: radius, Open: open, Close: closing}, nil
}

func readRestaurants(source string, rr rowReader) ([]models.Restaurant, Stats, error) {
	var stats Stats
	header, err := rr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("%s: %w", source, models.Configf("empty file"))
		}
		return nil, stats, fmt.Errorf("%s: %w", source, err)
	}
	pos, err := locate(source, header, RestaurantHeader)
	if err != nil {
		return nil, stats, err
	}

	var restaurants []models.Restaurant
	seen := make(map[string]struct{})
	fields := make([]string, len(pos))
	for line := 2; ; line++ {
		row, err := rr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if bad := malformed(err); bad != nil {
			stats.Rows++
			stats.Skip(&models.RowError{Source: source, Row: line, Err: models.Configf("%v", bad)})
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("%s: %w", source, err)
		}
		stats.Rows++
		for i, p := range pos {
			fields[i] = field(row, p)
		}
		r, err := ParseRestaurant(fields)
		if err != nil {
			stats.Skip(&models.RowError{Source: source, Row: line, Err: err})
			continue
		}
		if _, dup := seen[r.ID]; dup {
			stats.Skip(&models.RowError{Source: source, Row: line, Err: models.Configf("duplicate id %q", r.ID)})
			continue
		}
		seen[r.ID] = struct{}{}
		restaurants = append(restaurants, r)
	}
	return restaurants, stats, nil
}

func readUsers(source string, rr rowReader) ([]models.User, Stats, error) {
	var stats Stats
	header, err := rr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, stats, fmt.Errorf("%s: %w", source, models.Configf("empty file"))
		}
		return nil, stats, fmt.Errorf("%s: %w", source, err)
	}
	pos, err := locate(source, header, UserHeader)
	if err != nil {
		return nil, stats, err
	}

	var users []models.User
	for line := 2; ; line++ {
		row, err := rr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if bad := malformed(err); bad != nil {
			stats.Rows++
			stats.Skip(&models.RowError{Source: source, Row: line, Err: models.Configf("%v", bad)})
			continue
		}
		if err != nil {
			return nil, stats, fmt.Errorf("%s: %w", source, err)
		}
		stats.Rows++
		loc, err := parseCoordinate(field(row, pos[0]), field(row, pos[1]))
		if err != nil {
			stats.Skip(&models.RowError{Source: source, Row: line, Err: err})
			continue
		}
		users = append(users, models.User{Loc: loc, Row: len(users)})
	}
	return users, stats, nil
}

// malformed returns the CSV parse error of a single unreadable line. The
// reader can continue past it.
func malformed(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ResultRecord renders one result in ResultHeader order.
func ResultRecord(r models.MatchResult) []string {
	return []string{
		formatFloat(r.UserLat),
		formatFloat(r.UserLon),
		strconv.Itoa(r.Count),
		calculator.JoinIDs(r.RestaurantIDs),
	}
}
