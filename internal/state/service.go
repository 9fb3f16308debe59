// Package state keeps each POI's lifecycle state consistent with its
// population and accumulated war damage, and derives the interaction type
// from the state.
package state

import (
	"fmt"
	"log/slog"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/poi"
)

// Transitions is the lifecycle adjacency table. A transition absent from
// this table is rejected with an InvalidTransitionError; war damage is the
// single forced path that bypasses it (a razed city does not pass through
// decline on its way to rubble).
var Transitions = map[poi.State][]poi.State{
	poi.StateNormal:       {poi.StateDeclining, poi.StateAbandoned, poi.StateSpecial},
	poi.StateDeclining:    {poi.StateNormal, poi.StateAbandoned, poi.StateSpecial},
	poi.StateAbandoned:    {poi.StateDeclining, poi.StateRepopulating, poi.StateRuins, poi.StateDungeon, poi.StateSpecial},
	poi.StateRuins:        {poi.StateRepopulating, poi.StateSpecial},
	poi.StateDungeon:      {poi.StateRepopulating, poi.StateSpecial},
	poi.StateRepopulating: {poi.StateNormal, poi.StateAbandoned, poi.StateSpecial},
	poi.StateSpecial:      {poi.StateDeclining, poi.StateRepopulating, poi.StateRuins, poi.StateDungeon},
}

// interactionFor maps lifecycle state to interaction type. SPECIAL has no
// mapping: it keeps whatever was set.
var interactionFor = map[poi.State]poi.InteractionType{
	poi.StateNormal:       poi.InteractionSocial,
	poi.StateDeclining:    poi.InteractionSocial,
	poi.StateRepopulating: poi.InteractionSocial,
	poi.StateAbandoned:    poi.InteractionNeutral,
	poi.StateRuins:        poi.InteractionNeutral,
	poi.StateDungeon:      poi.InteractionCombat,
}

// Thresholds are population ratios (population/max_population) below which
// a POI declines or empties out.
type Thresholds struct {
	Declining float64
	Abandoned float64
}

// populationThresholds by POI type. Types without an entry use the default.
var populationThresholds = map[poi.Type]Thresholds{
	poi.TypeCity:    {Declining: 0.5, Abandoned: 0.1},
	poi.TypeTown:    {Declining: 0.4, Abandoned: 0.1},
	poi.TypeVillage: {Declining: 0.3, Abandoned: 0.05},
	poi.TypeOutpost: {Declining: 0.3, Abandoned: 0.05},
}

// defaultThresholds applies to POI types without a dedicated entry.
var defaultThresholds = Thresholds{Declining: 0.4, Abandoned: 0.1}

// War damage severities at or above which a state is forced.
const (
	damageRuins     = 0.8
	damageAbandoned = 0.5
	damageDeclining = 0.3
)

// InvalidTransitionError reports a state change not present in the table.
// It indicates a caller logic error, not a transient condition.
type InvalidTransitionError struct {
	From poi.State
	To   poi.State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// Service executes lifecycle transitions and evaluations.
type Service struct {
	bus *event.Bus
}

// NewService creates a state service publishing to the given bus.
func NewService(bus *event.Bus) *Service {
	return &Service{bus: bus}
}

// ThresholdsFor returns the population thresholds for a POI type.
func ThresholdsFor(t poi.Type) Thresholds {
	if th, ok := populationThresholds[t]; ok {
		return th
	}
	return defaultThresholds
}

// Transition moves a POI to a new state, enforcing the table. On success
// the interaction type is re-derived, the modification timestamp updated,
// and a state-change event published (plus an interaction-change event when
// the interaction type flipped). Invalid transitions mutate nothing.
func (s *Service) Transition(p *poi.PointOfInterest, target poi.State, reason string) error {
	if !allowed(p.CurrentState, target) {
		return &InvalidTransitionError{From: p.CurrentState, To: target}
	}
	s.execute(p, target, reason)
	return nil
}

// allowed reports whether from -> to is in the transition table.
func allowed(from, to poi.State) bool {
	for _, t := range Transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// execute performs the transition unconditionally. Callers have already
// validated (Transition) or deliberately forced (war damage).
func (s *Service) execute(p *poi.PointOfInterest, target poi.State, reason string) {
	from := p.CurrentState
	p.CurrentState = target
	p.Touch()

	s.bus.Publish(event.TypeStateChanged, map[string]any{
		"poi_id":     p.ID,
		"from_state": string(from),
		"to_state":   string(target),
		"reason":     reason,
	})

	// SPECIAL keeps its interaction type until explicitly changed.
	if next, ok := interactionFor[target]; ok && next != p.InteractionType {
		prev := p.InteractionType
		p.InteractionType = next
		s.bus.Publish(event.TypeInteractionChanged, map[string]any{
			"poi_id": p.ID,
			"from":   string(prev),
			"to":     string(next),
			"reason": reason,
		})
	}

	slog.Debug("poi state transition",
		"poi", p.ID, "from", from, "to", target, "reason", reason)
}

// SetInteraction updates the interaction type, deriving it from the current
// state when target is empty. Emits an interaction-change event when the
// value actually changes.
func (s *Service) SetInteraction(p *poi.PointOfInterest, target poi.InteractionType, reason string) {
	if target == "" {
		derived, ok := interactionFor[p.CurrentState]
		if !ok {
			return // SPECIAL: unchanged unless explicitly set
		}
		target = derived
	}
	if target == p.InteractionType {
		return
	}
	prev := p.InteractionType
	p.InteractionType = target
	p.Touch()
	s.bus.Publish(event.TypeInteractionChanged, map[string]any{
		"poi_id": p.ID,
		"from":   string(prev),
		"to":     string(target),
		"reason": reason,
	})
}

// UpdatePopulation sets the population (clamped to zero), publishes a
// population-changed event, and applies any threshold-driven transition.
func (s *Service) UpdatePopulation(p *poi.PointOfInterest, newPopulation int) error {
	if newPopulation < 0 {
		newPopulation = 0
	}
	old := p.Population
	p.Population = newPopulation
	p.Touch()

	if old != newPopulation {
		pct := 0.0
		if old > 0 {
			pct = float64(newPopulation-old) / float64(old) * 100
		}
		s.bus.Publish(event.TypePopulationChanged, map[string]any{
			"poi_id":         p.ID,
			"old_population": old,
			"new_population": newPopulation,
			"percent_change": pct,
		})
	}

	return s.evaluatePopulation(p, old)
}

// evaluatePopulation applies at most one threshold-driven transition after
// a population change.
func (s *Service) evaluatePopulation(p *poi.PointOfInterest, oldPopulation int) error {
	cur := p.CurrentState

	// Rising from zero revives empty sites.
	if p.Population > 0 && oldPopulation == 0 &&
		(cur == poi.StateAbandoned || cur == poi.StateRuins || cur == poi.StateDungeon) {
		return s.Transition(p, poi.StateRepopulating, "population increasing from zero")
	}

	// Zero population empties any inhabited state.
	if p.Population == 0 {
		switch cur {
		case poi.StateNormal, poi.StateDeclining, poi.StateRepopulating:
			return s.Transition(p, poi.StateAbandoned, "population reduced to zero")
		}
		return nil
	}

	if p.MaxPopulation <= 0 {
		return nil // no reference, nothing thresholds can say
	}

	ratio := p.PopulationRatio()
	th := ThresholdsFor(p.Type)

	switch cur {
	case poi.StateNormal:
		if ratio < th.Abandoned {
			return s.Transition(p, poi.StateAbandoned, "population below abandoned threshold")
		}
		if ratio < th.Declining {
			return s.Transition(p, poi.StateDeclining, "population below declining threshold")
		}
	case poi.StateDeclining:
		if ratio < th.Abandoned {
			return s.Transition(p, poi.StateAbandoned, "population below abandoned threshold")
		}
		if ratio >= th.Declining {
			return s.Transition(p, poi.StateNormal, "population above declining threshold")
		}
	case poi.StateRepopulating:
		if ratio >= th.Declining {
			return s.Transition(p, poi.StateNormal, "repopulation successful")
		}
	}
	return nil
}

// Evaluate suggests the state a POI should be in given a damage level,
// without mutating anything. Returns ("", false) when no change is called
// for. War damage outranks population thresholds.
func (s *Service) Evaluate(p *poi.PointOfInterest, damageLevel float64) (poi.State, bool) {
	switch {
	case damageLevel >= damageRuins:
		return suggest(p, poi.StateRuins)
	case damageLevel >= damageAbandoned:
		return suggest(p, poi.StateAbandoned)
	case damageLevel >= damageDeclining:
		return suggest(p, poi.StateDeclining)
	}

	if p.MaxPopulation <= 0 {
		return "", false
	}
	ratio := p.PopulationRatio()
	th := ThresholdsFor(p.Type)
	switch {
	case p.Population == 0:
		return suggest(p, poi.StateAbandoned)
	case ratio < th.Declining && p.CurrentState == poi.StateNormal:
		return suggest(p, poi.StateDeclining)
	case ratio < th.Abandoned && p.CurrentState == poi.StateDeclining:
		return suggest(p, poi.StateAbandoned)
	}
	return "", false
}

func suggest(p *poi.PointOfInterest, target poi.State) (poi.State, bool) {
	if p.CurrentState == target {
		return "", false
	}
	return target, true
}

// ApplyWarDamage reduces population proportionally to severity, records the
// damage in metadata, and forces the resulting state. population_before is
// always captured prior to the loss. Severity outside (0,1] is clamped;
// zero or negative severity is a no-op.
func (s *Service) ApplyWarDamage(p *poi.PointOfInterest, severity float64) {
	if severity <= 0 {
		return
	}
	if severity > 1 {
		severity = 1
	}

	populationBefore := p.Population
	lost := 0
	if severity > 0.3 && p.Population > 0 {
		lost = int(float64(p.Population) * severity)
		if lost > p.Population {
			lost = p.Population
		}
		p.Population -= lost
	}

	if p.Metadata == nil {
		p.Metadata = make(poi.Metadata)
	}
	p.Metadata.AppendHistory(poi.MetaWarDamage, map[string]any{
		"severity":          severity,
		"population_before": populationBefore,
		"population_lost":   lost,
	})
	p.Touch()

	if lost > 0 {
		s.bus.Publish(event.TypePopulationChanged, map[string]any{
			"poi_id":         p.ID,
			"old_population": populationBefore,
			"new_population": p.Population,
			"percent_change": -severity * 100,
		})
	}

	if target, ok := s.Evaluate(p, severity); ok {
		// Forced: war damage may skip intermediate lifecycle states.
		s.execute(p, target, fmt.Sprintf("war damage (severity: %.1f)", severity))
	}

	slog.Info("war damage applied",
		"poi", p.ID, "severity", severity,
		"population_before", populationBefore, "population_lost", lost,
		"state", p.CurrentState)
}

// Info is a read-only snapshot of a POI's lifecycle status.
type Info struct {
	State           poi.State           `json:"state"`
	InteractionType poi.InteractionType `json:"interaction_type"`
	Population      int                 `json:"population"`
	MaxPopulation   int                 `json:"max_population"`
	PopulationRatio float64             `json:"population_ratio"`
	Thresholds      Thresholds          `json:"thresholds"`
	IsPopulated     bool                `json:"is_populated"`
	IsMetropolis    bool                `json:"is_metropolis"`
}

// metropolisPopulation is the population above which a multi-cell POI
// counts as a metropolis.
const metropolisPopulation = 150

// StateInfo summarizes a POI's lifecycle status.
func (s *Service) StateInfo(p *poi.PointOfInterest) Info {
	return Info{
		State:           p.CurrentState,
		InteractionType: p.InteractionType,
		Population:      p.Population,
		MaxPopulation:   p.MaxPopulation,
		PopulationRatio: p.PopulationRatio(),
		Thresholds:      ThresholdsFor(p.Type),
		IsPopulated:     p.Population > 0,
		IsMetropolis:    p.Population > metropolisPopulation && len(p.ClaimedIDs) > 1,
	}
}
