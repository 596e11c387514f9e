package calculator_test

import (
	"math"
	"testing"

	"github.com/umahmood/haversine"

	"delivery-match/internal/calculator"
	"delivery-match/internal/models"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		p, q      models.Coordinate
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			p:         models.Coordinate{Lat: 28.61, Lon: 77.20},
			q:         models.Coordinate{Lat: 28.61, Lon: 77.20},
			wantKm:    0,
			tolerance: 0,
		},
		{
			name:      "one degree of latitude",
			p:         models.Coordinate{Lat: 0, Lon: 0},
			q:         models.Coordinate{Lat: 1, Lon: 0},
			wantKm:    calculator.EarthRadiusKm * math.Pi / 180,
			tolerance: 1e-9,
		},
		{
			name:      "New York to Los Angeles (~3936km)",
			p:         models.Coordinate{Lat: 40.7128, Lon: -74.0060},
			q:         models.Coordinate{Lat: 34.0522, Lon: -118.2437},
			wantKm:    3936,
			tolerance: 10,
		},
		{
			name:      "antipodes",
			p:         models.Coordinate{Lat: 0, Lon: 0},
			q:         models.Coordinate{Lat: 0, Lon: 180},
			wantKm:    calculator.EarthRadiusKm * math.Pi,
			tolerance: 1e-6,
		},
		{
			name:      "across the antimeridian",
			p:         models.Coordinate{Lat: 0, Lon: 179.99},
			q:         models.Coordinate{Lat: 0, Lon: -179.99},
			wantKm:    calculator.EarthRadiusKm * 0.02 * math.Pi / 180,
			tolerance: 1e-6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculator.HaversineKm(tt.p, tt.q)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("HaversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	a := models.Coordinate{Lat: 25.0, Lon: 121.0}
	b := models.Coordinate{Lat: -33.9, Lon: 151.2}
	if d1, d2 := calculator.HaversineKm(a, b), calculator.HaversineKm(b, a); d1 != d2 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestHaversineKm_SamePointIsZero(t *testing.T) {
	for _, p := range []models.Coordinate{{}, {Lat: 90, Lon: 0}, {Lat: -34.6, Lon: -58.4}, {Lat: 12.345678, Lon: -179.999}} {
		if d := calculator.HaversineKm(p, p); d != 0 {
			t.Errorf("HaversineKm(%v, %v) = %g, want 0", p, p, d)
		}
	}
}

// The library uses the same 6371 km sphere, so results agree to rounding.
func TestHaversineKm_MatchesReferenceLibrary(t *testing.T) {
	pairs := [][2]models.Coordinate{
		{{Lat: 28.61, Lon: 77.20}, {Lat: 28.66, Lon: 77.25}},
		{{Lat: -34.60, Lon: -58.40}, {Lat: -35.00, Lon: -58.90}},
		{{Lat: 10, Lon: 10}, {Lat: 80, Lon: 80}},
		{{Lat: 51.5, Lon: -0.12}, {Lat: 48.85, Lon: 2.35}},
	}
	for _, p := range pairs {
		_, wantKm := haversine.Distance(
			haversine.Coord{Lat: p[0].Lat, Lon: p[0].Lon},
			haversine.Coord{Lat: p[1].Lat, Lon: p[1].Lon},
		)
		got := calculator.HaversineKm(p[0], p[1])
		if math.Abs(got-wantKm) > 1e-6 {
			t.Errorf("HaversineKm(%v, %v) = %f, reference %f", p[0], p[1], got, wantKm)
		}
	}
}
