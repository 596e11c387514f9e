// Package jobs keeps the state of background batch runs started over HTTP.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

type Result struct {
	Files       []FileResult `json:"files"`
	OpenCount   int          `json:"open_restaurants"`
	StaticTime  string       `json:"static_time"`
	ElapsedSecs float64      `json:"elapsed_seconds"`
	// BenchmarkLog is a file name under the output dir, empty when disabled.
	BenchmarkLog string `json:"benchmark_log,omitempty"`
}

type FileResult struct {
	UserFile     string `json:"user_file"`
	Users        int    `json:"users"`
	Skipped      int    `json:"skipped_rows"`
	MatchedRows  int    `json:"matched_rows"`
	TotalMatches int    `json:"total_matches"`
	Filename     string `json:"filename,omitempty"` // for download
	Error        string `json:"error,omitempty"`
}

type Job struct {
	ID        string
	Status    Status
	Logs      []string
	Progress  int // 0-100
	Result    *Result
	Error     string
	CreatedAt time.Time
	EndedAt   time.Time // zero while running

	cancel context.CancelFunc
	mu     sync.RWMutex
}

// Snapshot is a copy of a job safe to hand to other goroutines.
type Snapshot struct {
	ID       string    `json:"id"`
	Status   Status    `json:"status"`
	Logs     []string  `json:"logs"`
	Progress int       `json:"progress"`
	Result   *Result   `json:"result,omitempty"`
	Error    string    `json:"error,omitempty"`
	Created  time.Time `json:"created_at"`
}

const logStamp = "15:04:05"

// appendLog must be called with mu held.
func (j *Job) appendLog(msg string) {
	j.Logs = append(j.Logs, "["+time.Now().Format(logStamp)+"] "+msg)
}

func (j *Job) Log(msg string) {
	j.mu.Lock()
	j.appendLog(msg)
	j.mu.Unlock()
}

// SetProgress records current/total as a percentage in [0, 100]. A non-empty
// msg is logged as well.
func (j *Job) SetProgress(current, total int, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if total > 0 {
		j.Progress = max(0, min(100, current*100/total))
	}
	if msg != "" {
		j.appendLog(msg)
	}
}

func (j *Job) Finish(result *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusCancelled {
		return
	}
	j.Status = StatusDone
	j.Result = result
	j.Progress = 100
	j.EndedAt = time.Now()
	j.Logs = append(j.Logs, "Completed.")
}

func (j *Job) Fail(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status == StatusCancelled {
		return
	}
	j.Status = StatusError
	j.Error = msg
	j.EndedAt = time.Now()
	j.Logs = append(j.Logs, "[ERROR] "+msg)
}

// Cancel stops a running job. It reports false when the job already ended.
func (j *Job) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusRunning {
		return false
	}
	j.Status = StatusCancelled
	j.EndedAt = time.Now()
	j.Logs = append(j.Logs, "Cancellation requested.")
	if j.cancel != nil {
		j.cancel()
	}
	return true
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	logs := make([]string, len(j.Logs))
	copy(logs, j.Logs)
	return Snapshot{
		ID:       j.ID,
		Status:   j.Status,
		Logs:     logs,
		Progress: j.Progress,
		Result:   j.Result,
		Error:    j.Error,
		Created:  j.CreatedAt,
	}
}

type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Start registers a job and runs fn in its own goroutine. A panic in fn
// fails the job.
func (s *Store) Start(parent context.Context, fn func(ctx context.Context, job *Job) (*Result, error)) *Job {
	ctx, cancel := context.WithCancel(parent)
	job := &Job{
		ID:        uuid.New().String(),
		Status:    StatusRunning,
		Logs:      []string{},
		CreatedAt: time.Now(),
		cancel:    cancel,
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				job.Fail(fmt.Sprintf("panic: %v", r))
			}
		}()

		result, err := fn(ctx, job)
		if err != nil {
			job.Fail(err.Error())
			return
		}
		job.Finish(result)
	}()
	return job
}

// Prune drops jobs that ended more than maxAge ago and returns how many it
// removed. Running jobs are never dropped.
func (s *Store) Prune(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		job.mu.RLock()
		expired := !job.EndedAt.IsZero() && job.EndedAt.Before(cutoff)
		job.mu.RUnlock()
		if expired {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

func (s *Store) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}
