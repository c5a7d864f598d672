// Package config loads the city's settings: an optional YAML file over
// built-in defaults, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/npc-city/internal/city"
	"github.com/talgya/npc-city/internal/engine"
)

// AI configures the chat-completion service and the reply cache.
type AI struct {
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	MaxPerMin int           `yaml:"max_per_min"` // 0 = unlimited
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// Config is the full runtime configuration.
type Config struct {
	DBPath      string   `yaml:"db_path"`
	Port        int      `yaml:"port"`
	AdminKey    string   `yaml:"admin_key"`
	JournalDir  string   `yaml:"journal_dir"` // Empty disables the event journal
	CORSOrigins []string `yaml:"cors_origins"`
	LogLevel    string   `yaml:"log_level"`
	Seed        int64    `yaml:"seed"` // 0 = time-based

	// Per-IP requests per minute on the player endpoints.
	PlayerRateLimit int `yaml:"player_rate_limit"`

	AI        AI              `yaml:"ai"`
	Rules     engine.Rules    `yaml:"rules"`
	Roster    []city.Profile  `yaml:"roster"`
	Locations []city.Location `yaml:"locations"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		DBPath:          "data/city.db",
		Port:            8000,
		CORSOrigins:     []string{"*"},
		LogLevel:        "info",
		PlayerRateLimit: 30,
		AI: AI{
			Model:     "gpt-4o-mini",
			BaseURL:   "https://api.openai.com/v1",
			Timeout:   30 * time.Second,
			MaxPerMin: 60,
			CacheSize: 100,
			CacheTTL:  5 * time.Minute,
		},
		Rules:     engine.DefaultRules(),
		Roster:    city.DefaultRoster(),
		Locations: city.DefaultLocations(),
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("%s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DBPath = envOrDefault("CITYSIM_DB", c.DBPath)
	c.Port = envIntOrDefault("CITYSIM_PORT", c.Port)
	c.AdminKey = envOrDefault("CITYSIM_ADMIN_KEY", c.AdminKey)
	c.JournalDir = envOrDefault("CITYSIM_JOURNAL_DIR", c.JournalDir)
	c.LogLevel = envOrDefault("CITYSIM_LOG_LEVEL", c.LogLevel)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	c.AI.APIKey = envOrDefault("OPENAI_API_KEY", c.AI.APIKey)
	c.AI.Model = envOrDefault("OPENAI_MODEL", c.AI.Model)
	c.AI.BaseURL = envOrDefault("OPENAI_BASE_URL", c.AI.BaseURL)
}

// Validate rejects settings the simulation cannot run with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if len(c.Locations) == 0 {
		return errors.New("at least one location is required")
	}
	if c.Rules.AgentMinSleep <= 0 || c.Rules.AgentMaxSleep < c.Rules.AgentMinSleep {
		return fmt.Errorf("agent sleep range %s..%s is invalid", c.Rules.AgentMinSleep, c.Rules.AgentMaxSleep)
	}
	if c.Rules.WeatherInterval <= 0 || c.Rules.ElectionInterval <= 0 {
		return errors.New("cycle intervals must be positive")
	}
	seen := make(map[string]bool, len(c.Roster))
	for _, p := range c.Roster {
		if p.Name == "" {
			return errors.New("roster entry without a name")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate roster name %q", p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
