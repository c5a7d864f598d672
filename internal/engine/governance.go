// Mayoral elections.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/talgya/npc-city/internal/city"
)

// ElectionResult is the outcome of one election round.
type ElectionResult struct {
	Round  int
	Winner string
	Votes  map[string]int
}

// HoldElection has every agent vote for a uniformly drawn agent (possibly
// itself) and announces the winner. It returns nil when the city is empty.
func (s *Simulation) HoldElection(ctx context.Context, d city.Dice) (*ElectionResult, error) {
	all, err := s.store.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	if len(all) == 0 {
		return nil, nil
	}

	order := make([]string, len(all))
	for i, a := range all {
		order[i] = a.Name
	}
	votes := make(map[string]int, len(all))
	for range all {
		votes[city.Pick(d, order)]++
	}
	winner := electWinner(order, votes)

	s.mu.Lock()
	s.rounds++
	round := s.rounds
	s.mu.Unlock()

	e := s.event("Mayor election", fmt.Sprintf("New mayor: %s with %d votes.", winner, votes[winner]))
	stored, err := s.store.Apply(ctx, city.Change{Events: []city.Event{e}})
	if err != nil {
		return nil, fmt.Errorf("record election: %w", err)
	}
	s.publishNews(stored)

	slog.Info(humanize.Ordinal(round)+" election held", "winner", winner, "votes", votes[winner], "voters", len(all))
	return &ElectionResult{Round: round, Winner: winner, Votes: votes}, nil
}

// electWinner returns the candidate with the most votes. Ties go to whoever
// comes first in order.
func electWinner(order []string, votes map[string]int) string {
	best, bestVotes := "", -1
	for _, name := range order {
		if v := votes[name]; v > bestVotes {
			best, bestVotes = name, v
		}
	}
	return best
}
