package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"delivery-match/internal/config"
	"delivery-match/internal/infra"
	"delivery-match/internal/logger"
	"delivery-match/internal/runner"
	"delivery-match/internal/sample"
	"delivery-match/internal/server"
)

const usage = `usage:
  delivery-match run   [-config file] [-restaurants src] [-out dir] [-time HH:MM:SS]
                       [-workers n] [-chunk n] [-index rtree|redis] [-format csv|xlsx] users...
  delivery-match serve [-config file] [-addr :9595]
  delivery-match gen   [-out dir] [-restaurants n] [-seed n] [-max-users n]
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, os.Args[2:])
	case "serve":
		err = serveCmd(ctx, os.Args[2:])
	case "gen":
		err = genCmd(os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, nil, err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return cfg, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

func runCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := fs.String("config", "", "config file (yaml, json, toml or .env)")
	restaurants := fs.String("restaurants", "", "restaurant CSV/XLSX file or postgres:// DSN")
	outDir := fs.String("out", "", "output directory")
	staticTime := fs.String("time", "", "reference time HH:MM:SS")
	workers := fs.Int("workers", -1, "parallel workers (0 = NumCPU)")
	chunk := fs.Int("chunk", -1, "users per chunk")
	index := fs.String("index", "", "index backend: rtree or redis")
	format := fs.String("format", "", "output format: csv or xlsx")
	_ = fs.Parse(args)

	cfg, log, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	run := cfg.RunConfig
	if *restaurants != "" {
		run.RestaurantFile = *restaurants
	}
	if *outDir != "" {
		run.OutputDir = *outDir
	}
	if *staticTime != "" {
		run.StaticTime = *staticTime
	}
	if *workers >= 0 {
		run.Workers = *workers
	}
	if *chunk >= 0 {
		run.ChunkSize = *chunk
	}
	if *index != "" {
		run.IndexBackend = *index
	}
	if *format != "" {
		run.OutputFormat = *format
	}
	if fs.NArg() > 0 {
		run.UserFiles = fs.Args()
	}
	if len(run.UserFiles) == 0 {
		return errors.New("no user files given")
	}

	progress := func(msg string) { fmt.Println(msg) }
	report, err := runner.NewBatchRunner(run, log, runner.WithLogCallback(progress)).Run(ctx, run.UserFiles)
	if err != nil {
		return err
	}

	fmt.Printf("\n%d/%d restaurants open at %s\n", report.OpenRestaurants, report.Restaurants, report.ReferenceTime)
	for _, f := range report.Files {
		if f.Err != nil {
			fmt.Printf("  %-30s FAILED: %v\n", f.UserFile, f.Err)
			continue
		}
		fmt.Printf("  %-30s users=%d skipped=%d matched=%d matches=%d -> %s (%s)\n",
			f.UserFile, f.Users, f.Skipped, f.MatchedRows, f.TotalMatches, f.OutputFile, f.Duration.Round(time.Millisecond))
	}
	fmt.Printf("Total time: %s\n", report.Duration.Round(10*time.Millisecond))
	return report.Err()
}

func serveCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFile := fs.String("config", "", "config file")
	addr := fs.String("addr", "", "listen address")
	_ = fs.Parse(args)

	cfg, log, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	defer log.Sync()
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if port := os.Getenv("PORT"); port != "" && *addr == "" {
		cfg.Server.Addr = ":" + port
	}

	// Jobs share one pool and one client instead of dialing per run.
	var runnerOpts []runner.Option
	if infra.IsPostgresDSN(cfg.RestaurantFile) {
		db, err := infra.NewDB(ctx, cfg.RestaurantFile)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer db.Close()
		runnerOpts = append(runnerOpts, runner.WithDB(db))
	}
	if cfg.IndexBackend == config.IndexRedis {
		rdb, err := infra.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		defer rdb.Close()
		runnerOpts = append(runnerOpts, runner.WithRedis(rdb))
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(ctx, cfg, log, runnerOpts...).Routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	log.Info("starting server", zap.String("addr", cfg.Server.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("server exiting")
	return nil
}

func genCmd(args []string) error {
	fs := flag.NewFlagSet("gen", flag.ExitOnError)
	outDir := fs.String("out", "data/input", "output directory")
	restaurants := fs.Int("restaurants", 1000, "restaurant count")
	seed := fs.Uint64("seed", 42, "random seed (non-zero for repeatable data)")
	maxUsers := fs.Int("max-users", 1000000, "skip stages larger than this")
	_ = fs.Parse(args)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	var stages []sample.Stage
	for _, st := range sample.DefaultStages {
		if st.To <= *maxUsers {
			stages = append(stages, st)
		}
	}

	opts := sample.DefaultOptions()
	opts.Restaurants = *restaurants
	restaurantPath, userPaths, err := sample.New(*seed, opts).WriteDataset(*outDir, stages)
	if err != nil {
		return err
	}
	fmt.Println("wrote", restaurantPath)
	fmt.Println("wrote", strings.Join(userPaths, "\n      "))
	return nil
}
