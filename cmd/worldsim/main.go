// Command worldsim runs the POI world simulation.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/persistence"
	"github.com/talgya/worldsim/internal/sim"
)

func main() {
	cfg, err := sim.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		os.MkdirAll(dir, 0755)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Load or Generate ─────────────────────────────────────────────
	world, err := db.LoadWorld()
	if err != nil {
		slog.Error("failed to load world", "error", err)
		os.Exit(1)
	}

	bus := event.NewBus()

	if world.Len() == 0 {
		slog.Info("no saved state found, generating new world...", "seed", cfg.Seed)
		world = sim.Generate(sim.DefaultGenConfig(cfg.Seed))
	} else {
		slog.Info("world state restored", "pois", world.Len(), "day", world.Day)
	}
	world.Watch(bus)

	ticker := sim.NewTicker(world, bus, cfg.Seed)
	if world.Day == 0 {
		ticker.Bootstrap()
		if err := db.SaveWorld(world); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	// Every event that fires during a day lands in the journal.
	bus.Subscribe(func(ev event.Event) {
		db.AppendEvent(world.Day, ev)
	})

	// ── Simulation ───────────────────────────────────────────────────
	eng := sim.NewEngine()
	eng.Day = world.Day
	eng.Speed = cfg.Speed
	eng.Interval = cfg.TickInterval
	eng.OnDay = func(day int) {
		ticker.ProcessDay(day)
		if day%cfg.SaveEvery == 0 {
			if err := db.SaveWorld(world); err != nil {
				slog.Error("periodic save failed", "error", err)
			}
		}
	}
	eng.OnWeek = ticker.ProcessWeek

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	stats := world.ComputeStats()
	fmt.Printf("\nWorld is alive: %d souls across %d points of interest.\n",
		stats.TotalPopulation, stats.POIs)
	if world.Day > 0 {
		fmt.Printf("Resuming from day %d\n", world.Day)
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	eng.Run()

	slog.Info("final save...")
	if err := db.SaveWorld(world); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Simulation stopped. World state saved.")
}

func logLevel(s string) slog.Level {
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
