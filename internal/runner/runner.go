// Package runner drives a batch: it loads, filters and indexes the restaurant
// catalog once, then matches each user file in turn and writes one result
// file per input file.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"delivery-match/internal/calculator"
	"delivery-match/internal/config"
	"delivery-match/internal/dataio"
	"delivery-match/internal/infra"
	"delivery-match/internal/models"
	"delivery-match/internal/spatial"
	"delivery-match/internal/store"
)

// Index is a calculator index that holds resources until closed.
type Index interface {
	calculator.Index
	Close() error
}

// IndexFactory builds an index whose position i is points[i].
type IndexFactory func(ctx context.Context, points []models.Coordinate) (Index, error)

type BatchRunner struct {
	cfg   config.RunConfig
	log   *zap.Logger
	db    *pgxpool.Pool
	redis *redis.Client

	newIndex   IndexFactory
	onProgress calculator.ProgressCallback
	onLog      calculator.LoggerCallback
}

type Option func(*BatchRunner)

// WithDB reuses an existing pool for a Postgres restaurant source.
func WithDB(db *pgxpool.Pool) Option {
	return func(b *BatchRunner) { b.db = db }
}

// WithRedis reuses an existing client for the redis index backend.
func WithRedis(client *redis.Client) Option {
	return func(b *BatchRunner) { b.redis = client }
}

func WithIndexFactory(f IndexFactory) Option {
	return func(b *BatchRunner) { b.newIndex = f }
}

func WithProgress(cb calculator.ProgressCallback) Option {
	return func(b *BatchRunner) { b.onProgress = cb }
}

func WithLogCallback(cb calculator.LoggerCallback) Option {
	return func(b *BatchRunner) { b.onLog = cb }
}

func NewBatchRunner(cfg config.RunConfig, log *zap.Logger, opts ...Option) *BatchRunner {
	if log == nil {
		log = zap.NewNop()
	}
	b := &BatchRunner{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *BatchRunner) emit(msg string) {
	if b.onLog != nil {
		b.onLog(msg)
	}
}

// Run processes userFiles in order. A failing user file is recorded in the
// report and does not stop the files after it. The returned error is non-nil
// only when the run as a whole could not proceed.
func (b *BatchRunner) Run(ctx context.Context, userFiles []string) (Report, error) {
	start := time.Now()
	var report Report

	if err := b.cfg.Validate(); err != nil {
		return report, err
	}
	refTime, _ := b.cfg.ReferenceTime()
	report.ReferenceTime = refTime

	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return report, fmt.Errorf("create output dir: %w", err)
	}

	matcher, closeIndex, err := b.prepare(ctx, refTime, &report)
	if err != nil {
		return report, err
	}
	defer closeIndex()

	// output path -> user file that produced it
	written := make(map[string]string, len(userFiles))
	for i, path := range userFiles {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
		b.emit(fmt.Sprintf("Processing file %d/%d: %s", i+1, len(userFiles), filepath.Base(path)))
		fr := b.processFile(ctx, matcher, path, written)
		report.Files = append(report.Files, fr)
	}

	report.Duration = time.Since(start)
	b.log.Info("run finished",
		zap.Int("files", len(report.Files)),
		zap.Int("failed", len(report.Failed())),
		zap.Duration("elapsed", report.Duration))

	if b.cfg.BenchmarkLog != "" {
		logPath := filepath.Join(b.cfg.OutputDir, b.cfg.BenchmarkLog)
		if err := writeBenchmark(logPath, report.Files); err != nil {
			b.log.Warn("write benchmark log", zap.String("path", logPath), zap.Error(err))
		} else {
			b.emit("Benchmark log saved to: " + logPath)
		}
	}
	return report, nil
}

// prepare loads, filters and indexes the restaurant catalog.
func (b *BatchRunner) prepare(ctx context.Context, refTime models.ClockTime, report *Report) (*calculator.Matcher, func(), error) {
	noop := func() {}

	restaurants, stats, err := b.loadRestaurants(ctx)
	if err != nil {
		return nil, noop, fmt.Errorf("load restaurants: %w", err)
	}
	report.Restaurants = len(restaurants)
	report.SkippedRestaurants = stats.Skipped
	for _, sample := range stats.Samples {
		b.log.Warn("skipped restaurant row", zap.Error(sample))
	}

	open := calculator.FilterOpen(restaurants, refTime)
	report.OpenRestaurants = len(open)
	b.log.Info("restaurants loaded",
		zap.String("source", redactSource(b.cfg.RestaurantFile)),
		zap.Int("loaded", len(restaurants)),
		zap.Int("skipped", stats.Skipped),
		zap.Int("open", len(open)),
		zap.Stringer("at", refTime))
	b.emit(fmt.Sprintf("%d restaurants loaded, %d open at %s", len(restaurants), len(open), refTime))
	if len(open) == 0 {
		b.log.Warn("no open restaurants at reference time; every user will have zero matches",
			zap.Stringer("at", refTime))
	}

	newIndex := b.newIndex
	if newIndex == nil {
		newIndex = b.defaultIndex
	}
	idx, err := newIndex(ctx, calculator.Coordinates(open))
	if err != nil {
		return nil, noop, fmt.Errorf("build index: %w", err)
	}
	closeIndex := func() {
		if err := idx.Close(); err != nil {
			b.log.Warn("close index", zap.Error(err))
		}
	}

	matcher, err := calculator.NewMatcher(open, idx)
	if err != nil {
		closeIndex()
		return nil, noop, err
	}
	b.log.Debug("index built",
		zap.String("backend", b.cfg.IndexBackend),
		zap.Int("points", matcher.OpenCount()),
		zap.Float64("query_radius_km", matcher.MaxRadiusKm()))
	return matcher, closeIndex, nil
}

func (b *BatchRunner) loadRestaurants(ctx context.Context) ([]models.Restaurant, dataio.Stats, error) {
	source := b.cfg.RestaurantFile
	if !infra.IsPostgresDSN(source) {
		return dataio.ReadRestaurants(source)
	}

	db := b.db
	if db == nil {
		pool, err := infra.NewDB(ctx, source)
		if err != nil {
			return nil, dataio.Stats{}, fmt.Errorf("%w: %s: %v", models.ErrSourceNotFound, redactSource(source), err)
		}
		defer pool.Close()
		db = pool
	}
	return store.NewStore(db, b.cfg.RestaurantTable).Restaurants(ctx)
}

func (b *BatchRunner) defaultIndex(ctx context.Context, points []models.Coordinate) (Index, error) {
	if b.cfg.IndexBackend != config.IndexRedis {
		return spatial.NewRTree(points), nil
	}

	if b.redis != nil {
		g, err := spatial.NewRedisGeo(ctx, b.redis, points)
		if err != nil {
			return nil, err
		}
		return g, nil
	}
	client, err := infra.NewRedis(ctx, b.cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", b.cfg.RedisAddr, err)
	}
	g, err := spatial.NewRedisGeo(ctx, client, points)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &ownedRedisIndex{RedisGeo: g, client: client}, nil
}

// ownedRedisIndex closes the client it was built with.
type ownedRedisIndex struct {
	*spatial.RedisGeo
	client *redis.Client
}

func (o *ownedRedisIndex) Close() error {
	return errors.Join(o.RedisGeo.Close(), o.client.Close())
}

// processFile refuses to write over a result that an earlier file of the same
// run produced, since result names keep only the input base name.
func (b *BatchRunner) processFile(ctx context.Context, matcher *calculator.Matcher, path string, written map[string]string) FileReport {
	start := time.Now()
	fr := FileReport{UserFile: filepath.Base(path)}
	log := b.log.With(zap.String("user_file", path))

	fail := func(err error) FileReport {
		fr.Err = err
		fr.Duration = time.Since(start)
		log.Error("user file failed", zap.Error(err))
		b.emit(fmt.Sprintf("[ERROR] %s: %v", fr.UserFile, err))
		return fr
	}

	out := dataio.ResultPath(b.cfg.OutputDir, path, b.cfg.OutputFormat)
	if prev, ok := written[out]; ok {
		return fail(models.Configf("%s would overwrite %s, already written for %s", filepath.Base(path), filepath.Base(out), prev))
	}

	users, stats, err := dataio.ReadUsers(path)
	fr.Users = len(users)
	fr.Skipped = stats.Skipped
	if err != nil {
		return fail(err)
	}
	for _, sample := range stats.Samples {
		log.Warn("skipped user row", zap.Error(sample))
	}

	results, err := matcher.MatchAll(ctx, users, calculator.Options{
		Workers:    b.cfg.Workers,
		ChunkSize:  b.cfg.ChunkSize,
		OnProgress: b.onProgress,
		Logger:     b.onLog,
	})
	if err != nil {
		return fail(err)
	}

	if err := dataio.WriteResults(out, results); err != nil {
		return fail(fmt.Errorf("write %s: %w", out, err))
	}
	written[out] = path

	fr.MatchedRows, fr.TotalMatches = calculator.Summarize(results)
	fr.OutputFile = filepath.Base(out)
	fr.Duration = time.Since(start)
	log.Info("user file done",
		zap.Int("users", fr.Users),
		zap.Int("skipped", fr.Skipped),
		zap.Int("matched_rows", fr.MatchedRows),
		zap.Int("total_matches", fr.TotalMatches),
		zap.String("output", out),
		zap.Duration("elapsed", fr.Duration))
	return fr
}
