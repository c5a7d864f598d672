package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/talgya/npc-city/internal/city"
)

// ChangeWeather draws a new city-wide weather and records it with a news event.
func (s *Simulation) ChangeWeather(ctx context.Context, d city.Dice) (city.Weather, error) {
	w := city.Pick(d, city.AllWeather)
	stored, err := s.store.SetWeather(ctx, w, s.event("Weather changed", fmt.Sprintf("It is now %s.", w)))
	if err != nil {
		return "", fmt.Errorf("set weather: %w", err)
	}
	s.publishNews(stored)
	slog.Info("weather changed", "weather", w)
	return w, nil
}
