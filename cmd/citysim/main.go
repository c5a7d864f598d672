package main

import (
	"context"
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/talgya/npc-city/internal/api"
	"github.com/talgya/npc-city/internal/config"
	"github.com/talgya/npc-city/internal/dialogue"
	"github.com/talgya/npc-city/internal/engine"
	"github.com/talgya/npc-city/internal/hub"
	"github.com/talgya/npc-city/internal/llm"
	"github.com/talgya/npc-city/internal/persistence"
	"github.com/talgya/npc-city/internal/persistence/journal"
)

func main() {
	configPath := flag.String("config", envOrDefault("CITYSIM_CONFIG", "citysim.yaml"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("NPC city starting", "agents", len(cfg.Roster), "locations", len(cfg.Locations))

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	// ── Database ──────────────────────────────────────────────────────
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create data directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Realtime fan-out and journal ─────────────────────────────────
	events := hub.New(64)
	if cfg.JournalDir != "" {
		jw := journal.NewWriter(cfg.JournalDir, "events")
		defer jw.Close()
		events.SetJournal(jw)
		slog.Info("event journal enabled", "dir", cfg.JournalDir)
	}

	// ── AI dialogue ──────────────────────────────────────────────────
	var completer dialogue.Completer
	if client := llm.NewClient(llm.Config{
		APIKey:    cfg.AI.APIKey,
		Model:     cfg.AI.Model,
		BaseURL:   cfg.AI.BaseURL,
		Timeout:   cfg.AI.Timeout,
		MaxPerMin: cfg.AI.MaxPerMin,
	}); client.Enabled() {
		completer = client
		slog.Info("AI dialogue enabled", "model", cfg.AI.Model)
	} else {
		slog.Warn("OPENAI_API_KEY not set, agents will use the fallback line")
	}
	speaker := dialogue.NewGenerator(completer, dialogue.Options{
		HistoryLimit: cfg.Rules.HistoryTurns,
		CacheSize:    cfg.AI.CacheSize,
		CacheTTL:     cfg.AI.CacheTTL,
	})

	// ── Simulation ───────────────────────────────────────────────────
	sim := engine.NewSimulation(db, speaker, events,
		engine.WithRules(cfg.Rules),
		engine.WithRoster(cfg.Roster),
		engine.WithLocations(cfg.Locations),
		engine.WithSeed(seed),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sim.Seed(ctx, rand.New(rand.NewSource(seed))); err != nil {
		slog.Error("failed to seed city", "error", err)
		os.Exit(1)
	}
	if err := db.SaveMeta(ctx, "last_start", time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Warn("failed to save start time", "error", err)
	}
	if err := sim.Start(ctx); err != nil {
		slog.Error("failed to start simulation", "error", err)
		os.Exit(1)
	}

	// ── HTTP API ─────────────────────────────────────────────────────
	limiter := api.NewRateLimiter(cfg.PlayerRateLimit, time.Minute)
	defer limiter.Close()
	srv := (&api.Server{
		City:        sim,
		Hub:         events,
		AdminKey:    cfg.AdminKey,
		CORSOrigins: cfg.CORSOrigins,
		Limiter:     limiter,
		NewsLimit:   cfg.Rules.NewsLimit,
	}).Start(cfg.Addr())

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}
	if err := sim.Stop(); err != nil {
		slog.Error("simulation stop", "error", err)
	}
	slog.Info("goodbye", "dropped_messages", events.Dropped())
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
