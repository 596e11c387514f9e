package calculator

import (
	"slices"

	"delivery-match/internal/models"
)

// IsOpen reports whether r is open at t. A window whose close time is
// earlier than its open time spans midnight.
func IsOpen(r models.Restaurant, t models.ClockTime) bool {
	if r.Open <= r.Close {
		return r.Open <= t && t <= r.Close
	}
	return t >= r.Open || t <= r.Close
}

// FilterOpen returns the restaurants open at t, sorted by id. The input is not modified.
func FilterOpen(restaurants []models.Restaurant, t models.ClockTime) []models.Restaurant {
	open := make([]models.Restaurant, 0, len(restaurants))
	for _, r := range restaurants {
		if IsOpen(r, t) {
			open = append(open, r)
		}
	}
	slices.SortStableFunc(open, func(a, b models.Restaurant) int {
		return models.CompareIDs(a.ID, b.ID)
	})
	return open
}
