package spatial

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"delivery-match/internal/models"
)

const (
	// Redis GEO computes distances with this radius and stores 52-bit geohashes.
	redisEarthRadiusKm = 6372.797560856
	geohashSlackKm     = 0.001
	redisMaxLat        = 85.05112878

	geoAddBatch = 10000
	keyPrefix   = "delivery-match:open:"
)

// RedisGeo keeps the open set in a run-scoped Redis GEO key. Points outside the
// latitude range Redis accepts are kept aside and returned by every query.
type RedisGeo struct {
	client   *redis.Client
	key      string
	n        int
	outliers []int
}

func NewRedisGeo(ctx context.Context, client *redis.Client, points []models.Coordinate) (*RedisGeo, error) {
	g := &RedisGeo{client: client, key: keyPrefix + uuid.NewString(), n: len(points)}

	batch := make([]*redis.GeoLocation, 0, geoAddBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := client.GeoAdd(ctx, g.key, batch...).Err(); err != nil {
			return fmt.Errorf("geoadd %s: %w", g.key, err)
		}
		batch = batch[:0]
		return nil
	}

	for i, p := range points {
		if math.Abs(p.Lat) > redisMaxLat || math.Abs(p.Lon) > 180 {
			g.outliers = append(g.outliers, i)
			continue
		}
		batch = append(batch, &redis.GeoLocation{
			Name:      strconv.Itoa(i),
			Longitude: p.Lon,
			Latitude:  p.Lat,
		})
		if len(batch) == geoAddBatch {
			if err := flush(); err != nil {
				_ = g.Close()
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		_ = g.Close()
		return nil, err
	}
	return g, nil
}

func (g *RedisGeo) Len() int { return g.n }

func (g *RedisGeo) Key() string { return g.key }

func (g *RedisGeo) Within(ctx context.Context, center models.Coordinate, radiusKm float64) ([]int, error) {
	if g.n == 0 || radiusKm < 0 {
		return nil, nil
	}
	if math.Abs(center.Lat) > redisMaxLat {
		// GEOSEARCH rejects the center; hand back everything.
		all := make([]int, g.n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	names, err := g.client.GeoSearch(ctx, g.key, &redis.GeoSearchQuery{
		Longitude:  center.Lon,
		Latitude:   center.Lat,
		Radius:     radiusKm*redisEarthRadiusKm/EarthRadiusKm + geohashSlackKm,
		RadiusUnit: "km",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch %s: %w", g.key, err)
	}

	out := make([]int, 0, len(names)+len(g.outliers))
	for _, name := range names {
		pos, err := strconv.Atoi(name)
		if err != nil {
			return nil, fmt.Errorf("geosearch %s: unexpected member %q", g.key, name)
		}
		out = append(out, pos)
	}
	return append(out, g.outliers...), nil
}

// Close deletes the run key.
func (g *RedisGeo) Close() error {
	return g.client.Del(context.Background(), g.key).Err()
}
