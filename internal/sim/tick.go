package sim

import (
	"log/slog"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/influence"
	"github.com/talgya/worldsim/internal/migration"
	"github.com/talgya/worldsim/internal/poi"
	"github.com/talgya/worldsim/internal/resource"
	"github.com/talgya/worldsim/internal/state"
)

// Ticker runs the daily pass over the world. Within a day each POI sees
// production, then consumption and spoilage, then lifecycle evaluation,
// then migration, so a POI never feeds migrants from food it has not
// grown yet.
type Ticker struct {
	World     *World
	States    *state.Service
	Influence *influence.Service
	Migration *migration.Service
	Resources *resource.Service
	Drift     *Drift
}

// NewTicker wires a ticker over a world with a shared bus.
func NewTicker(w *World, bus *event.Bus, seed int64) *Ticker {
	states := state.NewService(bus)
	return &Ticker{
		World:     w,
		States:    states,
		Influence: influence.NewService(bus, influence.DefaultConfig()),
		Migration: migration.NewService(bus, states, migration.DefaultConfig()),
		Resources: resource.NewService(bus),
		Drift:     NewDrift(seed),
	}
}

// ProcessDay runs one full simulated day.
func (t *Ticker) ProcessDay(day int) {
	t.World.Day = day

	// Phase 1+2: every POI produces, consumes, and spoils.
	for _, p := range t.World.All() {
		t.Resources.UpdateResources(p, 1)
	}

	// Phase 3: lifecycle evaluation against the post-economy populations.
	for _, p := range t.World.All() {
		if target, ok := t.States.Evaluate(p, 0); ok {
			if err := t.States.Transition(p, target, "daily evaluation"); err != nil {
				slog.Warn("daily state evaluation skipped",
					"poi", p.ID, "target", target, "error", err)
			}
		}
	}

	// Phase 4: politics and movement, region by region.
	for _, regionID := range t.World.Regions() {
		pois := t.World.Region(regionID)
		t.Influence.ProcessDaily(pois)
		if _, err := t.Migration.ProcessRegion(pois); err != nil {
			slog.Error("regional migration failed", "region", regionID, "error", err)
		}
	}

	// In-transit groups and pending trades settle after local movement.
	if _, err := t.Migration.AdvanceGroups(day, t.World.POI); err != nil {
		slog.Error("migration group settlement failed", "error", err)
	}
	t.Resources.ExpireOffers(day, t.World.POI)

	// Movement over the border, in or out depending on the world mood.
	growth := t.Drift.GrowthFactor(day)
	seasonal := t.Drift.SeasonalFactor(day)
	events := t.Drift.EventFactor(day)
	for _, p := range t.World.All() {
		if _, err := t.Migration.SimulateExternal(p, growth, seasonal, events); err != nil {
			slog.Warn("external migration skipped", "poi", p.ID, "error", err)
		}
	}

	t.report(day)
}

// report logs the daily world summary.
func (t *Ticker) report(day int) {
	st := t.World.ComputeStats()
	slog.Info("day complete",
		"day", day,
		"pois", st.POIs,
		"population", st.TotalPopulation,
		"abandoned", st.Abandoned,
		"ruins", st.Ruins,
		"controlled", st.Controlled,
	)
}

// ProcessWeek runs the weekly layer: a regional influence summary per
// region, logged for the chronicle.
func (t *Ticker) ProcessWeek(day int) {
	for _, regionID := range t.World.Regions() {
		sum := t.Influence.RegionalSummary(t.World.Region(regionID))
		if sum.Dominant != "" {
			slog.Info("weekly influence summary", "region", regionID,
				"dominant", sum.Dominant, "contested", sum.Contested)
		}
	}
}

// Bootstrap seeds starting stocks for every POI that has none. Run once
// when a fresh world is generated.
func (t *Ticker) Bootstrap() {
	for _, p := range t.World.All() {
		if len(p.Resources) == 0 {
			t.Resources.Initialize(p)
		}
	}
}

// totalPopulation sums across the world; used by drivers and tests.
func totalPopulation(pois []*poi.PointOfInterest) int {
	n := 0
	for _, p := range pois {
		n += p.Population
	}
	return n
}
