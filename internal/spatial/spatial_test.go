package spatial

import (
	"context"
	"math"
	"math/rand"
	"os"
	"slices"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"delivery-match/internal/models"
)

func haversine(p, q models.Coordinate) float64 {
	toRad := math.Pi / 180
	dLat := (q.Lat - p.Lat) * toRad
	dLon := (q.Lon - p.Lon) * toRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(p.Lat*toRad)*math.Cos(q.Lat*toRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

func randomPoints(rng *rand.Rand, n int, center models.Coordinate, spread float64) []models.Coordinate {
	pts := make([]models.Coordinate, n)
	for i := range pts {
		lat := math.Max(-90, math.Min(90, center.Lat+(rng.Float64()*2-1)*spread))
		lon := center.Lon + (rng.Float64()*2-1)*spread
		lon = math.Mod(math.Mod(lon+180, 360)+360, 360) - 180
		pts[i] = models.Coordinate{Lat: lat, Lon: lon}
	}
	return pts
}

// assertSuperset checks that idx returns every point within radiusKm.
func assertSuperset(t *testing.T, idx interface {
	Within(context.Context, models.Coordinate, float64) ([]int, error)
}, pts []models.Coordinate, center models.Coordinate, radiusKm float64) {
	t.Helper()
	got, err := idx.Within(context.Background(), center, radiusKm)
	require.NoError(t, err)
	for i, p := range pts {
		if haversine(center, p) <= radiusKm {
			assert.True(t, slices.Contains(got, i), "point %d %v at %.4f km missing for radius %.4f around %v",
				i, p, haversine(center, p), radiusKm, center)
		}
	}
}

func TestRTree_ReturnsAllPointsInRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	centers := []models.Coordinate{
		{Lat: 28.61, Lon: 77.20},
		{Lat: 0, Lon: 179.95}, // antimeridian
		{Lat: 89.9, Lon: 10},  // near the pole
		{Lat: -33.9, Lon: -180},
	}
	for _, c := range centers {
		pts := randomPoints(rng, 2000, c, 0.5)
		idx := NewRTree(pts)
		require.Equal(t, len(pts), idx.Len())
		for _, r := range []float64{0.5, 5, 25, 80} {
			q := randomPoints(rng, 1, c, 0.3)[0]
			assertSuperset(t, idx, pts, q, r)
		}
	}
}

func TestRTree_CandidatesAreNearby(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	pts := randomPoints(rng, 5000, models.Coordinate{Lat: 40, Lon: -74}, 2)
	idx := NewRTree(pts)

	center := models.Coordinate{Lat: 40, Lon: -74}
	got, err := idx.Within(context.Background(), center, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.Less(t, len(got), len(pts)/10, "cube query should prune most points")
	for _, i := range got {
		// The enclosing cube reaches at most sqrt(3) times the chord.
		assert.LessOrEqual(t, haversine(center, pts[i]), 10*math.Sqrt(3)+0.01)
	}
}

func TestRTree_ZeroRadiusFindsCoincidentPoint(t *testing.T) {
	pts := []models.Coordinate{{Lat: 28.61, Lon: 77.20}, {Lat: 28.62, Lon: 77.20}}
	idx := NewRTree(pts)
	got, err := idx.Within(context.Background(), pts[0], 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, got)
}

func TestRTree_Empty(t *testing.T) {
	idx := NewRTree(nil)
	got, err := idx.Within(context.Background(), models.Coordinate{}, 100)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, idx.Close())
}

func TestRTree_WholeEarthRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	pts := randomPoints(rng, 300, models.Coordinate{}, 180)
	idx := NewRTree(pts)
	got, err := idx.Within(context.Background(), models.Coordinate{Lat: 10, Lon: 10}, 30000)
	require.NoError(t, err)
	assert.Len(t, got, len(pts))
}

func TestChordLength(t *testing.T) {
	assert.Equal(t, 0.0, ChordLength(0))
	assert.InDelta(t, 2.0, ChordLength(math.Pi*EarthRadiusKm), 1e-12)
	assert.Equal(t, 2.0, ChordLength(1e9))
	assert.InDelta(t, 1.0/EarthRadiusKm, ChordLength(1), 1e-12)
}

func TestRedisGeo(t *testing.T) {
	addr := os.Getenv("DELIVERY_MATCH_TEST_REDIS")
	if addr == "" {
		t.Skip("DELIVERY_MATCH_TEST_REDIS not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	rng := rand.New(rand.NewSource(4))
	pts := randomPoints(rng, 1000, models.Coordinate{Lat: 28.61, Lon: 77.20}, 0.5)
	pts = append(pts, models.Coordinate{Lat: 89, Lon: 0}) // outside the Redis GEO range

	idx, err := NewRedisGeo(ctx, client, pts)
	require.NoError(t, err)
	assert.Equal(t, len(pts), idx.Len())

	for _, r := range []float64{0, 1, 5, 20} {
		assertSuperset(t, idx, pts, pts[rng.Intn(1000)], r)
	}
	got, err := idx.Within(ctx, models.Coordinate{Lat: 28.61, Lon: 77.20}, 1)
	require.NoError(t, err)
	assert.Contains(t, got, len(pts)-1, "out-of-range points are always candidates")

	require.NoError(t, idx.Close())
	n, err := client.Exists(ctx, idx.Key()).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}
