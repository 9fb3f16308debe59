// Package influence tracks faction influence over POIs: applying deltas,
// daily decay, contested claims, natural spread from controlled sites, and
// the control determination that follows from all of them.
package influence

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/poi"
)

const (
	// ControlThreshold is the minimum strength for a faction to control a POI.
	ControlThreshold = 0.5
	// SignificantInfluence is the strength above which a faction counts as a
	// meaningful presence in regional summaries.
	SignificantInfluence = 0.25

	// epsilon: deltas smaller than this are ignored, strengths below it are
	// pruned. Keeps decay from leaving dust entries behind.
	epsilon = 1e-6
)

// ErrEmptyFaction marks a contest claim naming no faction. Apply treats an
// empty faction as a no-op; batch results report it so the campaign record
// stays complete.
var ErrEmptyFaction = errors.New("faction id is empty")

// InvalidDeltaError reports an influence delta that is not a finite number.
type InvalidDeltaError struct {
	Faction poi.FactionID
	Delta   float64
}

func (e *InvalidDeltaError) Error() string {
	return fmt.Sprintf("invalid influence delta %v for faction %s", e.Delta, e.Faction)
}

// Config tunes the influence model. Zero values fall back to defaults.
type Config struct {
	DecayRate    float64 // per-day fractional decay
	SpreadRate   float64 // fraction of source strength projected per day
	SpreadRadius float64 // max distance natural spread reaches
}

// DefaultConfig returns the standard influence tuning.
func DefaultConfig() Config {
	return Config{
		DecayRate:    0.01,
		SpreadRate:   0.05,
		SpreadRadius: 50,
	}
}

// Service applies and evaluates faction influence.
type Service struct {
	bus *event.Bus
	cfg Config
}

// NewService creates an influence service with the given tuning.
func NewService(bus *event.Bus, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.DecayRate <= 0 {
		cfg.DecayRate = def.DecayRate
	}
	if cfg.SpreadRate <= 0 {
		cfg.SpreadRate = def.SpreadRate
	}
	if cfg.SpreadRadius <= 0 {
		cfg.SpreadRadius = def.SpreadRadius
	}
	return &Service{bus: bus, cfg: cfg}
}

// Apply adjusts one faction's influence over a POI by delta, clamping the
// result to [0,1]. An empty faction id is a no-op, not an error. Negligible
// deltas are dropped without touching the POI. Establishing, changing, and
// any resulting control flip each publish an event. Returns the new
// strength.
func (s *Service) Apply(p *poi.PointOfInterest, faction poi.FactionID, delta float64, kind poi.InfluenceKind, reason string) (float64, error) {
	if faction == "" {
		return 0, nil
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return 0, &InvalidDeltaError{Faction: faction, Delta: delta}
	}
	if math.Abs(delta) < epsilon {
		if fi := p.Influence(faction); fi != nil {
			return fi.Strength, nil
		}
		return 0, nil
	}

	existing := p.Influence(faction)
	established := existing == nil
	fi := p.EnsureInfluence(faction)
	if kind != "" {
		fi.Kind = kind
	}

	old := fi.Strength
	fi.Strength = clamp01(old + delta)
	if reason != "" {
		fi.RecordAction(reason)
	}
	p.Touch()

	payload := map[string]any{
		"poi_id":       p.ID,
		"faction_id":   string(faction),
		"old_strength": old,
		"new_strength": fi.Strength,
		"reason":       reason,
	}
	if established {
		s.bus.Publish(event.TypeInfluenceEstablished, payload)
	} else {
		s.bus.Publish(event.TypeInfluenceChanged, payload)
	}

	s.recomputeControl(p)
	return fi.Strength, nil
}

// Decay subtracts the configured daily rate from every influence over a
// POI for the given number of days, flooring at zero and pruning entries
// that reach it. Control is recomputed once at the end.
func (s *Service) Decay(p *poi.PointOfInterest, days int) {
	if days <= 0 || len(p.Influences) == 0 {
		return
	}
	loss := s.cfg.DecayRate * float64(days)
	changed := false
	for faction, fi := range p.Influences {
		old := fi.Strength
		fi.Strength = old - loss
		if fi.Strength <= epsilon {
			delete(p.Influences, faction)
			changed = true
			continue
		}
		if fi.Strength != old {
			changed = true
		}
	}
	if changed {
		p.Touch()
		s.recomputeControl(p)
	}
}

// Claim is one faction's bid in a contest over a POI.
type Claim struct {
	Faction poi.FactionID
	Delta   float64
	Kind    poi.InfluenceKind
	Reason  string
}

// ClaimResult reports the outcome of one claim. Err is set for claims that
// were rejected; the rest of the batch still proceeds.
type ClaimResult struct {
	Faction  poi.FactionID
	Strength float64
	Err      error
}

// Contest applies a batch of competing claims to one POI. Each claim
// succeeds or fails independently; control is settled once after the whole
// batch, so intermediate orderings cannot produce a spurious control flip.
func (s *Service) Contest(p *poi.PointOfInterest, claims []Claim) []ClaimResult {
	results := make([]ClaimResult, 0, len(claims))
	touched := false
	for _, c := range claims {
		r := ClaimResult{Faction: c.Faction}
		switch {
		case c.Faction == "":
			r.Err = ErrEmptyFaction
		case math.IsNaN(c.Delta) || math.IsInf(c.Delta, 0):
			r.Err = &InvalidDeltaError{Faction: c.Faction, Delta: c.Delta}
		default:
			existing := p.Influence(c.Faction)
			established := existing == nil
			fi := p.EnsureInfluence(c.Faction)
			if c.Kind != "" {
				fi.Kind = c.Kind
			}
			old := fi.Strength
			fi.Strength = clamp01(old + c.Delta)
			if c.Reason != "" {
				fi.RecordAction(c.Reason)
			}
			r.Strength = fi.Strength
			touched = true

			payload := map[string]any{
				"poi_id":       p.ID,
				"faction_id":   string(c.Faction),
				"old_strength": old,
				"new_strength": fi.Strength,
				"reason":       c.Reason,
			}
			if established {
				s.bus.Publish(event.TypeInfluenceEstablished, payload)
			} else {
				s.bus.Publish(event.TypeInfluenceChanged, payload)
			}
		}
		results = append(results, r)
	}
	if touched {
		p.Touch()
		s.recomputeControl(p)
	}
	return results
}

// POIContest is one POI's outcome from a regional campaign.
type POIContest struct {
	POIID   string        `json:"poi_id"`
	Results []ClaimResult `json:"results"`
}

// ContestRegion applies the same batch of claims across many POIs in one
// campaign pass. Every POI settles independently; a rejected claim on one
// POI does not stop the rest.
func (s *Service) ContestRegion(pois []*poi.PointOfInterest, claims []Claim) []POIContest {
	out := make([]POIContest, 0, len(pois))
	for _, p := range pois {
		out = append(out, POIContest{POIID: p.ID, Results: s.Contest(p, claims)})
	}
	return out
}

// NaturalSpread projects a controlling faction's influence from source onto
// nearby POIs, scaled by inverse distance. POIs without coordinates, beyond
// the radius, or in other regions are skipped. Returns how many POIs were
// affected.
func (s *Service) NaturalSpread(source *poi.PointOfInterest, neighbors []*poi.PointOfInterest) int {
	faction := source.ControllingFaction
	if faction == "" || source.Coords == nil {
		return 0
	}
	src := source.Influence(faction)
	if src == nil || src.Strength < ControlThreshold {
		return 0
	}

	affected := 0
	for _, n := range neighbors {
		if n.ID == source.ID || n.Coords == nil || n.RegionID != source.RegionID {
			continue
		}
		d := distance(*source.Coords, *n.Coords)
		if d <= 0 || d > s.cfg.SpreadRadius {
			continue
		}
		gain := src.Strength * s.cfg.SpreadRate / d
		if gain < epsilon {
			continue
		}
		if _, err := s.Apply(n, faction, gain, src.Kind, "natural spread from "+source.Name); err == nil {
			affected++
		}
	}
	return affected
}

// FactionStanding is one faction's aggregate position across a region.
type FactionStanding struct {
	Faction       poi.FactionID `json:"faction_id"`
	TotalStrength float64       `json:"total_strength"`
	AvgStrength   float64       `json:"avg_strength"`
	Controlled    int           `json:"controlled_pois"`
	SignificantIn int           `json:"significant_pois"`
	PresentIn     int           `json:"present_pois"`
}

// Summary aggregates faction standing over a set of POIs. Standings are
// ordered by total strength, strongest first; ties order by faction id so
// the output is stable.
type Summary struct {
	POICount  int               `json:"poi_count"`
	Contested int               `json:"contested_pois"`
	Standings []FactionStanding `json:"standings"`
	Dominant  poi.FactionID     `json:"dominant_faction,omitempty"`
}

// RegionalSummary computes faction standings across the given POIs.
func (s *Service) RegionalSummary(pois []*poi.PointOfInterest) Summary {
	byFaction := make(map[poi.FactionID]*FactionStanding)
	sum := Summary{POICount: len(pois)}

	for _, p := range pois {
		significant := 0
		for faction, fi := range p.Influences {
			st, ok := byFaction[faction]
			if !ok {
				st = &FactionStanding{Faction: faction}
				byFaction[faction] = st
			}
			st.TotalStrength += fi.Strength
			st.PresentIn++
			if fi.Strength >= SignificantInfluence {
				st.SignificantIn++
				significant++
			}
		}
		if significant > 1 {
			sum.Contested++
		}
		if p.ControllingFaction != "" {
			st, ok := byFaction[p.ControllingFaction]
			if !ok {
				st = &FactionStanding{Faction: p.ControllingFaction}
				byFaction[p.ControllingFaction] = st
			}
			st.Controlled++
		}
	}

	sum.Standings = make([]FactionStanding, 0, len(byFaction))
	for _, st := range byFaction {
		if st.PresentIn > 0 {
			st.AvgStrength = st.TotalStrength / float64(st.PresentIn)
		}
		sum.Standings = append(sum.Standings, *st)
	}
	sort.Slice(sum.Standings, func(i, j int) bool {
		a, b := sum.Standings[i], sum.Standings[j]
		if a.TotalStrength != b.TotalStrength {
			return a.TotalStrength > b.TotalStrength
		}
		return a.Faction < b.Faction
	})
	if len(sum.Standings) > 0 {
		sum.Dominant = sum.Standings[0].Faction
	}
	return sum
}

// ProcessDaily runs one day of influence dynamics over a region: decay on
// every POI, then natural spread from each controlled POI to the rest.
func (s *Service) ProcessDaily(pois []*poi.PointOfInterest) {
	for _, p := range pois {
		s.Decay(p, 1)
	}
	spread := 0
	for _, p := range pois {
		spread += s.NaturalSpread(p, pois)
	}
	if spread > 0 {
		slog.Debug("influence spread", "pois_affected", spread)
	}
}

// recomputeControl settles which faction, if any, controls the POI. The
// strongest faction at or above the control threshold wins; an exact tie
// keeps the incumbent when it is among the tied, otherwise control lapses
// until the tie breaks.
func (s *Service) recomputeControl(p *poi.PointOfInterest) {
	var best float64
	for _, fi := range p.Influences {
		if fi.Strength > best {
			best = fi.Strength
		}
	}

	next := poi.FactionID("")
	if best >= ControlThreshold {
		var tied []poi.FactionID
		for faction, fi := range p.Influences {
			if fi.Strength == best {
				tied = append(tied, faction)
			}
		}
		switch {
		case len(tied) == 1:
			next = tied[0]
		default:
			for _, faction := range tied {
				if faction == p.ControllingFaction {
					next = faction
					break
				}
			}
		}
	}

	if next == p.ControllingFaction {
		return
	}
	prev := p.ControllingFaction
	p.ControllingFaction = next
	p.Touch()
	s.bus.Publish(event.TypeControlChanged, map[string]any{
		"poi_id":      p.ID,
		"old_faction": string(prev),
		"new_faction": string(next),
	})
	slog.Debug("poi control changed", "poi", p.ID, "from", prev, "to", next)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func distance(a, b poi.Position) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Hypot(dx, dy)
}
