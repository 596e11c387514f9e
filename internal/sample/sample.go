// Package sample generates synthetic restaurant and user tables for load
// tests and demos.
package sample

import (
	"math"
	"path/filepath"
	"strconv"

	"github.com/brianvoe/gofakeit/v7"

	"delivery-match/internal/dataio"
	"delivery-match/internal/models"
)

type Options struct {
	Restaurants  int
	Center       models.Coordinate
	SpreadDeg    float64 // restaurants fall within ±SpreadDeg of Center
	MaxRadiusKm  float64
	UserNoiseDeg float64 // users fall within ±UserNoiseDeg of a restaurant
}

func DefaultOptions() Options {
	return Options{
		Restaurants:  1000,
		Center:       models.Coordinate{Lat: 28.61, Lon: 77.20},
		SpreadDeg:    0.5,
		MaxRadiusKm:  10,
		UserNoiseDeg: 0.05,
	}
}

type Generator struct {
	faker *gofakeit.Faker
	opts  Options
}

// New returns a generator. The same non-zero seed yields the same data.
func New(seed uint64, opts Options) *Generator {
	return &Generator{faker: gofakeit.New(seed), opts: opts}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clampLat(lat float64) float64 { return math.Max(-90, math.Min(90, lat)) }

// wrapLon maps any longitude into [-180, 180).
func wrapLon(lon float64) float64 {
	return math.Mod(math.Mod(lon+180, 360)+360, 360) - 180
}

// Restaurants returns restaurants with ids 1..n, roughly a fifth of them open
// overnight.
func (g *Generator) Restaurants() []models.Restaurant {
	f := g.faker
	out := make([]models.Restaurant, g.opts.Restaurants)
	for i := range out {
		open := f.Number(6, 22)
		closing := open + f.Number(2, 12)
		if f.Number(1, 5) == 1 {
			open, closing = f.Number(18, 23), f.Number(0, 6)
		}
		out[i] = models.Restaurant{
			ID: strconv.Itoa(i + 1),
			Loc: models.Coordinate{
				Lat: round(clampLat(g.opts.Center.Lat+f.Float64Range(-g.opts.SpreadDeg, g.opts.SpreadDeg)), 6),
				Lon: round(wrapLon(g.opts.Center.Lon+f.Float64Range(-g.opts.SpreadDeg, g.opts.SpreadDeg)), 6),
			},
			RadiusKm: round(f.Float64Range(0.5, g.opts.MaxRadiusKm), 1),
			Open:     models.ClockTime(open * 3600),
			Close:    models.ClockTime(closing % 24 * 3600),
		}
	}
	return out
}

// UsersNear scatters n users around randomly chosen restaurants.
func (g *Generator) UsersNear(restaurants []models.Restaurant, n int) []models.User {
	f := g.faker
	users := make([]models.User, n)
	for i := range users {
		c := g.opts.Center
		if len(restaurants) > 0 {
			c = restaurants[f.Number(0, len(restaurants)-1)].Loc
		}
		users[i] = models.User{
			Loc: models.Coordinate{
				Lat: round(clampLat(c.Lat+f.Float64Range(-g.opts.UserNoiseDeg, g.opts.UserNoiseDeg)), 6),
				Lon: round(wrapLon(c.Lon+f.Float64Range(-g.opts.UserNoiseDeg, g.opts.UserNoiseDeg)), 6),
			},
			Row: i,
		}
	}
	return users
}

func WriteRestaurants(path string, restaurants []models.Restaurant) error {
	rows := make([][]string, len(restaurants))
	for i, r := range restaurants {
		rows[i] = []string{
			r.ID,
			strconv.FormatFloat(r.Loc.Lat, 'f', -1, 64),
			strconv.FormatFloat(r.Loc.Lon, 'f', -1, 64),
			strconv.FormatFloat(r.RadiusKm, 'f', -1, 64),
			r.Open.String(),
			r.Close.String(),
		}
	}
	return dataio.WriteCSV(path, dataio.RestaurantHeader, rows)
}

func WriteUsers(path string, users []models.User) error {
	rows := make([][]string, len(users))
	for i, u := range users {
		rows[i] = []string{
			strconv.FormatFloat(u.Loc.Lat, 'f', -1, 64),
			strconv.FormatFloat(u.Loc.Lon, 'f', -1, 64),
		}
	}
	return dataio.WriteCSV(path, dataio.UserHeader, rows)
}

// Stage is a user file size, named after the rows it covers.
type Stage struct {
	From, To int
}

func (s Stage) Count() int { return s.To - s.From + 1 }

func (s Stage) FileName() string {
	return "users_" + strconv.Itoa(s.From) + "_" + strconv.Itoa(s.To) + ".csv"
}

var DefaultStages = []Stage{
	{1, 10},
	{11, 100},
	{101, 1000},
	{1001, 100000},
	{100001, 1000000},
}

// WriteDataset writes restaurants.csv and one user file per stage into dir,
// returning the user file paths in stage order.
func (g *Generator) WriteDataset(dir string, stages []Stage) (string, []string, error) {
	restaurants := g.Restaurants()
	restaurantPath := filepath.Join(dir, "restaurants.csv")
	if err := WriteRestaurants(restaurantPath, restaurants); err != nil {
		return "", nil, err
	}

	var userPaths []string
	for _, st := range stages {
		path := filepath.Join(dir, st.FileName())
		if err := WriteUsers(path, g.UsersNear(restaurants, st.Count())); err != nil {
			return "", nil, err
		}
		userPaths = append(userPaths, path)
	}
	return restaurantPath, userPaths, nil
}
