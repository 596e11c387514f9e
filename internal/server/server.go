// Package server exposes batch runs as background jobs over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"delivery-match/internal/config"
	"delivery-match/internal/jobs"
	"delivery-match/internal/models"
	"delivery-match/internal/runner"
)

type Server struct {
	cfg        config.Config
	log        *zap.Logger
	jobs       *jobs.Store
	runnerOpts []runner.Option
	baseCtx    context.Context
}

// New builds a server. runnerOpts are passed to every batch run, for example
// shared database or redis clients.
func New(ctx context.Context, cfg config.Config, log *zap.Logger, runnerOpts ...runner.Option) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		cfg:        cfg,
		log:        log,
		jobs:       jobs.NewStore(),
		runnerOpts: runnerOpts,
		baseCtx:    ctx,
	}
}

func (s *Server) authEnabled() bool {
	return s.cfg.Server.LoginUser != "" && s.cfg.Server.LoginPass != ""
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(recovery(s.log), requestLogger(s.log))

	secret := s.cfg.Server.SessionSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
	}
	store := cookie.NewStore([]byte(secret))
	r.Use(sessions.Sessions("deliverysession", store))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	r.POST("/login", s.login)
	r.GET("/logout", s.logout)

	authorized := r.Group("/")
	if s.authEnabled() {
		authorized.Use(authRequired)
	}
	{
		authorized.POST("/run", s.run)
		authorized.GET("/logs", s.logs)
		authorized.GET("/status", s.status)
		authorized.POST("/cancel", s.cancel)
		authorized.GET("/download-result/:filename", s.download)
	}
	return r
}

func (s *Server) login(c *gin.Context) {
	if !s.authEnabled() {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	username := c.PostForm("username")
	password := c.PostForm("password")

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.Server.LoginUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Server.LoginPass)) == 1
	if !userOK || !passOK {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid username or password"})
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserKey, username)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "session not saved"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	_ = session.Save()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// run accepts one or more users_file uploads and starts a batch over them.
func (s *Server) run(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["users_file"]) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "users_file is required"})
		return
	}

	runCfg := s.cfg.RunConfig
	if t := strings.TrimSpace(c.PostForm("static_time")); t != "" {
		if _, err := models.ParseClock(t); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
			return
		}
		runCfg.StaticTime = t
	}

	if err := os.MkdirAll(s.cfg.Server.UploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "upload dir unavailable"})
		return
	}

	var paths []string
	for _, file := range form.File["users_file"] {
		name := fmt.Sprintf("%s_%s", uuid.New().String(), filepath.Base(file.Filename))
		path := filepath.Join(s.cfg.Server.UploadDir, name)
		if err := c.SaveUploadedFile(file, path); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "upload failed"})
			return
		}
		paths = append(paths, path)
	}

	if ttl := s.cfg.Server.JobTTL; ttl > 0 {
		if n := s.jobs.Prune(ttl); n > 0 {
			s.log.Info("pruned finished jobs", zap.Int("count", n))
		}
	}

	job := s.jobs.Start(s.baseCtx, func(ctx context.Context, job *jobs.Job) (*jobs.Result, error) {
		return s.execute(ctx, job, runCfg, paths)
	})
	s.log.Info("job started", zap.String("job_id", job.ID), zap.Int("files", len(paths)))
	c.JSON(http.StatusAccepted, gin.H{"ok": true, "job_id": job.ID})
}

// execute runs one batch for a job. Uploads are removed afterwards and the
// benchmark log is named after the job so concurrent jobs do not share it.
func (s *Server) execute(ctx context.Context, job *jobs.Job, cfg config.RunConfig, paths []string) (*jobs.Result, error) {
	defer func() {
		for _, p := range paths {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				s.log.Warn("remove upload", zap.String("path", p), zap.Error(err))
			}
		}
	}()
	if cfg.BenchmarkLog != "" {
		cfg.BenchmarkLog = jobBenchmarkLog(cfg.BenchmarkLog, job.ID)
	}
	job.Log(fmt.Sprintf("Processing %d file(s) at %s", len(paths), cfg.StaticTime))

	opts := append([]runner.Option{
		runner.WithProgress(job.SetProgress),
		runner.WithLogCallback(job.Log),
	}, s.runnerOpts...)
	report, err := runner.NewBatchRunner(cfg, s.log.With(zap.String("job_id", job.ID)), opts...).Run(ctx, paths)
	if err != nil {
		return nil, err
	}

	result := &jobs.Result{
		OpenCount:    report.OpenRestaurants,
		StaticTime:   report.ReferenceTime.String(),
		ElapsedSecs:  report.Duration.Seconds(),
		BenchmarkLog: cfg.BenchmarkLog,
	}
	for _, f := range report.Files {
		fr := jobs.FileResult{
			UserFile:     f.UserFile,
			Users:        f.Users,
			Skipped:      f.Skipped,
			MatchedRows:  f.MatchedRows,
			TotalMatches: f.TotalMatches,
			Filename:     f.OutputFile,
		}
		if f.Err != nil {
			fr.Error = f.Err.Error()
		}
		result.Files = append(result.Files, fr)
	}
	return result, nil
}

// jobBenchmarkLog turns benchmark_results.csv into benchmark_results_<id>.csv.
func jobBenchmarkLog(name, jobID string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "_" + jobID + ext
}

func (s *Server) job(c *gin.Context) *jobs.Job {
	job := s.jobs.Get(c.Query("job_id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "job not found"})
	}
	return job
}

func (s *Server) logs(c *gin.Context) {
	job := s.job(c)
	if job == nil {
		return
	}
	snap := job.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"logs":     snap.Logs,
		"status":   snap.Status,
		"progress": snap.Progress,
	})
}

func (s *Server) status(c *gin.Context) {
	job := s.job(c)
	if job == nil {
		return
	}
	snap := job.Snapshot()
	res := gin.H{
		"ok":     true,
		"status": snap.Status,
		"error":  snap.Error,
	}
	if snap.Result != nil {
		res["result"] = snap.Result
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) cancel(c *gin.Context) {
	job := s.job(c)
	if job == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "cancelled": job.Cancel()})
}

func (s *Server) download(c *gin.Context) {
	name := filepath.Base(c.Param("filename"))
	if name == "." || name == string(filepath.Separator) || strings.HasPrefix(name, ".") {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid filename"})
		return
	}
	target := filepath.Join(s.cfg.OutputDir, name)
	if _, err := os.Stat(target); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "result not found"})
		return
	}
	c.FileAttachment(target, name)
}
