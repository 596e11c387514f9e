package calculator

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"delivery-match/internal/models"
)

type ProgressCallback func(current, total int, msg string)
type LoggerCallback func(msg string)

const (
	DefaultChunkSize = 5000
	progressEvery    = 500
)

// Index is the range query the matcher needs. Returned positions refer to the
// slice the index was built from and may include points outside the radius.
// Within must be safe for concurrent use; the matcher only reads the returned
// slice, so an index may hand out shared or cached slices.
type Index interface {
	Within(ctx context.Context, center models.Coordinate, radiusKm float64) ([]int, error)
	Len() int
}

type radPoint struct {
	lat, lon, cosLat float64
}

// Matcher finds, for a user, every open restaurant whose own radius covers
// the user. It is read-only after construction and safe for concurrent use.
type Matcher struct {
	restaurants []models.Restaurant
	rad         []radPoint
	index       Index
	maxRadiusKm float64
}

// NewMatcher expects open to be sorted by id and index to be built over open
// in the same order.
func NewMatcher(open []models.Restaurant, index Index) (*Matcher, error) {
	if index == nil {
		return nil, fmt.Errorf("nil index")
	}
	if index.Len() != len(open) {
		return nil, fmt.Errorf("index holds %d points, want %d", index.Len(), len(open))
	}

	m := &Matcher{
		restaurants: open,
		rad:         make([]radPoint, len(open)),
		index:       index,
	}
	for i, r := range open {
		lat := toRadians(r.Loc.Lat)
		m.rad[i] = radPoint{lat: lat, lon: toRadians(r.Loc.Lon), cosLat: math.Cos(lat)}
		m.maxRadiusKm = math.Max(m.maxRadiusKm, r.RadiusKm)
	}
	return m, nil
}

// Coordinates returns the points an Index for open must be built from.
func Coordinates(open []models.Restaurant) []models.Coordinate {
	pts := make([]models.Coordinate, len(open))
	for i, r := range open {
		pts[i] = r.Loc
	}
	return pts
}

func (m *Matcher) OpenCount() int { return len(m.restaurants) }

func (m *Matcher) MaxRadiusKm() float64 { return m.maxRadiusKm }

// Match queries the index with the largest radius in the open set, then keeps
// candidates whose exact distance is within their own radius.
func (m *Matcher) Match(ctx context.Context, user models.Coordinate) ([]string, error) {
	if len(m.restaurants) == 0 {
		return nil, nil
	}
	candidates, err := m.index.Within(ctx, user, m.maxRadiusKm)
	if err != nil {
		return nil, err
	}

	lat := toRadians(user.Lat)
	lon := toRadians(user.Lon)
	cosLat := math.Cos(lat)

	var hits []int
	for _, pos := range candidates {
		p := m.rad[pos]
		if haversineRad(lat, lon, cosLat, p.lat, p.lon, p.cosLat) <= m.restaurants[pos].RadiusKm {
			hits = append(hits, pos)
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// Positions follow id order, so sorting them sorts the ids.
	slices.Sort(hits)
	hits = slices.Compact(hits)
	ids := make([]string, len(hits))
	for i, pos := range hits {
		ids[i] = m.restaurants[pos].ID
	}
	return ids, nil
}

type Options struct {
	Workers    int
	ChunkSize  int
	OnProgress ProgressCallback
	Logger     LoggerCallback
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = runtime.NumCPU()
	}
	if o.ChunkSize < 1 {
		o.ChunkSize = DefaultChunkSize
	}
	return o
}

type Chunk struct {
	Start, End int
}

// Partition splits [0, total) into consecutive chunks of at most size rows.
func Partition(total, size int) []Chunk {
	if total <= 0 || size < 1 {
		return nil
	}
	chunks := make([]Chunk, 0, (total+size-1)/size)
	for start := 0; start < total; start += size {
		chunks = append(chunks, Chunk{Start: start, End: min(start+size, total)})
	}
	return chunks
}

// MatchAll matches every user and returns one result per user in input order.
// Chunks run in parallel; each writes only its own window of the result slice.
// Any chunk error or panic fails the whole call with ErrWorkerFailure.
func (m *Matcher) MatchAll(ctx context.Context, users []models.User, opts Options) ([]models.MatchResult, error) {
	opts = opts.withDefaults()
	total := len(users)
	results := make([]models.MatchResult, total)
	chunks := Partition(total, opts.ChunkSize)

	if opts.Logger != nil {
		opts.Logger(fmt.Sprintf("Matching %d users against %d open restaurants in %d chunks with %d workers",
			total, len(m.restaurants), len(chunks), opts.Workers))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	var processed int64

	for _, c := range chunks {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: rows %d-%d: panic: %v", models.ErrWorkerFailure, c.Start, c.End, r)
				}
			}()

			for idx := c.Start; idx < c.End; idx++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				u := users[idx]
				ids, err := m.Match(gctx, u.Loc)
				if err != nil {
					return fmt.Errorf("%w: rows %d-%d: %v", models.ErrWorkerFailure, c.Start, c.End, err)
				}
				results[idx] = Aggregate(u.Loc, ids)

				count := atomic.AddInt64(&processed, 1)
				if opts.OnProgress != nil && count%progressEvery == 0 {
					opts.OnProgress(int(count), total, "")
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if opts.OnProgress != nil {
		opts.OnProgress(total, total, "")
	}
	return results, nil
}
