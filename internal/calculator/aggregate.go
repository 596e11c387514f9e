package calculator

import (
	"strings"

	"delivery-match/internal/models"
)

const IDSeparator = ";"

// Aggregate builds the output row for one user. Users without matches still
// get a row, with a zero count.
func Aggregate(user models.Coordinate, ids []string) models.MatchResult {
	return models.MatchResult{
		UserLat:       user.Lat,
		UserLon:       user.Lon,
		Count:         len(ids),
		RestaurantIDs: ids,
	}
}

func JoinIDs(ids []string) string {
	return strings.Join(ids, IDSeparator)
}

// Summarize returns the number of users with at least one match and the total
// number of matches.
func Summarize(results []models.MatchResult) (matchedRows, totalMatches int) {
	for _, r := range results {
		if r.Count > 0 {
			matchedRows++
		}
		totalMatches += r.Count
	}
	return matchedRows, totalMatches
}
