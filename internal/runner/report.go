package runner

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"delivery-match/internal/dataio"
	"delivery-match/internal/infra"
	"delivery-match/internal/models"
)

type FileReport struct {
	UserFile     string
	Users        int
	Skipped      int
	Duration     time.Duration
	MatchedRows  int
	TotalMatches int
	OutputFile   string
	Err          error
}

type Report struct {
	ReferenceTime      models.ClockTime
	Restaurants        int
	SkippedRestaurants int
	OpenRestaurants    int
	Files              []FileReport
	Duration           time.Duration
}

func (r Report) Failed() []FileReport {
	var failed []FileReport
	for _, f := range r.Files {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Err joins the per-file failures, or returns nil when every file succeeded.
func (r Report) Err() error {
	var errs []error
	for _, f := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s: %w", f.UserFile, f.Err))
	}
	return errors.Join(errs...)
}

var benchmarkHeader = []string{
	"User_File", "User_Count", "Skipped_Rows", "Time_Taken_Seconds",
	"Matched_Rows", "Total_Matches", "Output_File", "Error",
}

func writeBenchmark(path string, files []FileReport) error {
	rows := make([][]string, len(files))
	for i, f := range files {
		output, errText := f.OutputFile, ""
		if output == "" {
			output = "None"
		}
		if f.Err != nil {
			errText = f.Err.Error()
		}
		rows[i] = []string{
			f.UserFile,
			strconv.Itoa(f.Users),
			strconv.Itoa(f.Skipped),
			strconv.FormatFloat(f.Duration.Seconds(), 'f', 3, 64),
			strconv.Itoa(f.MatchedRows),
			strconv.Itoa(f.TotalMatches),
			output,
			errText,
		}
	}
	return dataio.WriteCSV(path, benchmarkHeader, rows)
}

// redactSource hides the password of a DSN source.
func redactSource(source string) string {
	if !infra.IsPostgresDSN(source) {
		return source
	}
	u, err := url.Parse(source)
	if err != nil {
		return "postgres://<invalid>"
	}
	return u.Redacted()
}
