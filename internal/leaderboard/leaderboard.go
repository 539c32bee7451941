// Package leaderboard ranks league accounts. Pure projection, no state.
package leaderboard

import (
	"sort"

	"github.com/stockleague/league-engine/internal/model"
)

// Rank sorts entries by score descending and assigns dense ranks starting
// at 1: tied scores share a rank and the next distinct score gets rank+1.
// The sort is stable, so ties keep their input order.
func Rank(entries []model.LeaderboardEntry) []model.LeaderboardEntry {
	ranked := make([]model.LeaderboardEntry, len(entries))
	copy(ranked, entries)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.GreaterThan(ranked[j].Score)
	})

	rank := 0
	for i := range ranked {
		if i == 0 || !ranked[i].Score.Equal(ranked[i-1].Score) {
			rank++
		}
		ranked[i].Rank = rank
	}
	return ranked
}
