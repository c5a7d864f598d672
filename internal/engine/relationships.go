// Relationship dynamics: conversations nudge how agents regard each other.
package engine

import (
	"strings"

	"github.com/talgya/npc-city/internal/city"
)

// judge scans a conversation reply for sentiment markers. A negative marker
// makes the other agent an enemy and takes precedence over a positive one,
// which makes them a friend. No marker leaves the relationship alone.
func (r Rules) judge(reply string) (city.Relationship, bool) {
	lower := strings.ToLower(reply)
	for _, m := range r.NegativeMarkers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return city.Enemy, true
		}
	}
	for _, m := range r.PositiveMarkers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return city.Friend, true
		}
	}
	return "", false
}

// seedRelations draws a label toward every other roster member.
func seedRelations(self string, roster []city.Profile, d city.Dice) map[string]city.Relationship {
	rel := make(map[string]city.Relationship, len(roster))
	for _, p := range roster {
		if p.Name == self {
			continue
		}
		rel[p.Name] = city.Pick(d, city.AllRelationships)
	}
	return rel
}
