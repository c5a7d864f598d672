// Initial population and map seeding.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talgya/npc-city/internal/city"
)

// Map bounds for initial placement.
const (
	MapWidth  = 800
	MapHeight = 400
)

// Seed makes sure the map, the weather and the roster exist. It is safe to
// call on every start: nothing already stored is duplicated or overwritten.
func (s *Simulation) Seed(ctx context.Context, d city.Dice) error {
	if err := s.store.EnsureLocations(ctx, s.locs); err != nil {
		return fmt.Errorf("seed locations: %w", err)
	}
	if err := s.store.EnsureWeather(ctx, city.Sunny); err != nil {
		return fmt.Errorf("seed weather: %w", err)
	}

	count, err := s.store.CountAgents(ctx)
	if err != nil {
		return fmt.Errorf("count agents: %w", err)
	}
	if count >= len(s.roster) {
		slog.Info("population already seeded", "agents", count)
		return nil
	}

	existing, err := s.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	present := make(map[string]bool, len(existing))
	for _, a := range existing {
		present[a.Name] = true
	}

	var fresh []city.Agent
	for _, p := range s.roster {
		if present[p.Name] {
			continue
		}
		st := city.NewAgentState()
		st.Relations = seedRelations(p.Name, s.roster, d)
		fresh = append(fresh, city.Agent{
			Name:        p.Name,
			Profession:  p.Profession,
			Personality: p.Personality,
			X:           d.Float64() * MapWidth,
			Y:           d.Float64() * MapHeight,
			State:       st,
		})
	}
	if err := s.store.InsertAgents(ctx, fresh); err != nil {
		return fmt.Errorf("insert agents: %w", err)
	}
	slog.Info("population seeded", "added", len(fresh), "existing", len(existing))
	return nil
}
