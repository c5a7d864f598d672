package engine

import (
	"time"

	"github.com/talgya/npc-city/internal/city"
)

// Range is an inclusive integer range for random draws.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Draw returns a uniform value in the range.
func (r Range) Draw(d city.Dice) int {
	return city.Between(d, r.Min, r.Max)
}

// Rules holds the tunable constants of the action policy and world cycles.
type Rules struct {
	AgentMinSleep    time.Duration `yaml:"agent_min_sleep"`
	AgentMaxSleep    time.Duration `yaml:"agent_max_sleep"`
	WeatherInterval  time.Duration `yaml:"weather_interval"`
	ElectionInterval time.Duration `yaml:"election_interval"`

	RainyMoveChance float64 `yaml:"rainy_move_chance"` // Chance rain restricts the tick to a move
	FavouredOnSun   string  `yaml:"favoured_on_sun"`   // Location agents drift toward when sunny

	WorkLocation string `yaml:"work_location"`
	ShopLocation string `yaml:"shop_location"`

	WorkPay        Range `yaml:"work_pay"`
	ShopSpend      Range `yaml:"shop_spend"`
	BusinessIncome Range `yaml:"business_income"`
	DisasterLoss   Range `yaml:"disaster_loss"`

	DisasterChance float64  `yaml:"disaster_chance"`
	DisasterKinds  []string `yaml:"disaster_kinds"`

	// Approximate sentiment heuristic: substrings that flip a relationship
	// after a conversation. Negative markers are checked first.
	NegativeMarkers []string `yaml:"negative_markers"`
	PositiveMarkers []string `yaml:"positive_markers"`

	HistoryTurns int `yaml:"history_turns"` // Conversation turns fed back to the AI
	NewsLimit    int `yaml:"news_limit"`
}

// DefaultRules returns the city's standard tuning.
func DefaultRules() Rules {
	return Rules{
		AgentMinSleep:    10 * time.Second,
		AgentMaxSleep:    30 * time.Second,
		WeatherInterval:  5 * time.Minute,
		ElectionInterval: 5 * time.Minute,

		RainyMoveChance: 0.5,
		FavouredOnSun:   city.LocationPark,

		WorkLocation: city.LocationWork,
		ShopLocation: city.LocationShop,

		WorkPay:        Range{Min: 10, Max: 20},
		ShopSpend:      Range{Min: 5, Max: 15},
		BusinessIncome: Range{Min: 5, Max: 10},
		DisasterLoss:   Range{Min: 20, Max: 50},

		DisasterChance: 0.1,
		DisasterKinds:  []string{"fire", "theft"},

		NegativeMarkers: []string{"anger", "angry", "злость"},
		PositiveMarkers: []string{"friendship", "дружба"},

		HistoryTurns: 10,
		NewsLimit:    50,
	}
}

// sleepFor draws the pause before an agent's next tick.
func (r Rules) sleepFor(d city.Dice) time.Duration {
	if r.AgentMaxSleep <= r.AgentMinSleep {
		return r.AgentMinSleep
	}
	span := r.AgentMaxSleep - r.AgentMinSleep
	return r.AgentMinSleep + time.Duration(d.Float64()*float64(span))
}
