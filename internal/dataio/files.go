package dataio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"delivery-match/internal/excel"
	"delivery-match/internal/models"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

type rowSource interface {
	rowReader
	Close() error
}

type csvSource struct {
	f *os.File
	r *csv.Reader
}

func (s *csvSource) Read() ([]string, error) { return s.r.Read() }
func (s *csvSource) Close() error            { return s.f.Close() }

func IsSpreadsheet(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

func open(path string) (rowSource, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrSourceNotFound, path)
		}
		return nil, err
	}
	if IsSpreadsheet(path) {
		return excel.OpenRows(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	return &csvSource{f: f, r: r}, nil
}

// ReadRestaurants loads a restaurant table from a CSV or XLSX file.
func ReadRestaurants(path string) ([]models.Restaurant, Stats, error) {
	src, err := open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer src.Close()
	return readRestaurants(filepath.Base(path), src)
}

// ReadUsers loads a user table from a CSV or XLSX file. User.Row numbers the
// kept rows from zero.
func ReadUsers(path string) ([]models.User, Stats, error) {
	src, err := open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer src.Close()
	return readUsers(filepath.Base(path), src)
}

// ResultPath names the output file for a user file:
// <dir>/<basename without extension>_results.<format>.
func ResultPath(dir, userFile, format string) string {
	base := filepath.Base(userFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base+"_results."+format)
}

// WriteResults writes results to path, in the format given by its extension.
// The file is written next to path first and renamed into place, so a failed
// write never leaves a truncated result.
func WriteResults(path string, results []models.MatchResult) error {
	if IsSpreadsheet(path) {
		header := make([]interface{}, len(ResultHeader))
		for i, h := range ResultHeader {
			header[i] = h
		}
		rows := make([][]interface{}, len(results))
		for i, r := range results {
			rows[i] = []interface{}{r.UserLat, r.UserLon, r.Count, ResultRecord(r)[3]}
		}
		return replace(path, func(tmp string) error {
			return excel.WriteRows(tmp, excel.ResultSheet, header, rows)
		})
	}

	return replace(path, func(tmp string) error {
		return writeCSVFile(tmp, ResultHeader, func(w *csv.Writer) error {
			for _, r := range results {
				if err := w.Write(ResultRecord(r)); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

// WriteCSV writes a plain table through the same temp-and-rename path.
func WriteCSV(path string, header []string, rows [][]string) error {
	return replace(path, func(tmp string) error {
		return writeCSVFile(tmp, header, func(w *csv.Writer) error {
			return w.WriteAll(rows)
		})
	})
}

func writeCSVFile(path string, header []string, body func(w *csv.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return err
	}
	if err := body(w); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func replace(path string, write func(tmp string) error) error {
	dir, base := filepath.Split(path)
	ext := filepath.Ext(base)
	tmp := filepath.Join(dir, "."+strings.TrimSuffix(base, ext)+"."+uuid.NewString()+".tmp"+ext)
	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
