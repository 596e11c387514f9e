// Package store loads the restaurant catalog from Postgres.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-match/internal/dataio"
	"delivery-match/internal/models"
)

const DefaultTable = "restaurants"

type Store struct {
	db    *pgxpool.Pool
	table string
}

func NewStore(db *pgxpool.Pool, table string) *Store {
	if table == "" {
		table = DefaultTable
	}
	return &Store{db: db, table: table}
}

// Restaurants reads every row of the table. Rows that fail validation are
// skipped and counted the same way as file rows.
func (s *Store) Restaurants(ctx context.Context) ([]models.Restaurant, dataio.Stats, error) {
	var stats dataio.Stats
	table := pgx.Identifier{s.table}.Sanitize()
	query := fmt.Sprintf(`
		SELECT id::text, latitude::text, longitude::text, availability_radius::text,
		       open_hour::text, close_hour::text
		FROM %s
		ORDER BY id`, table)

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, stats, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var restaurants []models.Restaurant
	seen := make(map[string]struct{})
	for rows.Next() {
		stats.Rows++
		var cols [6]*string
		if err := rows.Scan(&cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5]); err != nil {
			return nil, stats, fmt.Errorf("scan %s: %w", table, err)
		}
		fields := make([]string, len(cols))
		for i, c := range cols {
			if c != nil {
				fields[i] = *c
			}
		}
		r, err := dataio.ParseRestaurant(fields)
		if err == nil {
			if _, dup := seen[r.ID]; dup {
				err = models.Configf("duplicate id %q", r.ID)
			}
		}
		if err != nil {
			stats.Skip(&models.RowError{Source: s.table, Row: stats.Rows, Err: err})
			continue
		}
		seen[r.ID] = struct{}{}
		restaurants = append(restaurants, r)
	}
	if err := rows.Err(); err != nil {
		return nil, stats, fmt.Errorf("read %s: %w", table, err)
	}
	return restaurants, stats, nil
}
