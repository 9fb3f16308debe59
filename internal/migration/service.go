// Package migration models population movement between POIs: the weighted
// attractiveness score, pairwise flow computation, atomic transfers with
// history on both sides, regional batches, migration groups in transit, and
// arrivals from outside the simulated region.
package migration

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/poi"
	"github.com/talgya/worldsim/internal/state"
)

// neutralScore is used for every factor a POI has no data for. Unknown is
// neither a draw nor a deterrent.
const neutralScore = 0.5

// Weights distribute attractiveness across the seven factors. They must
// sum to 1.
type Weights struct {
	Prosperity    float64
	Safety        float64
	Stability     float64
	Opportunity   float64
	QualityOfLife float64
	Housing       float64
	Culture       float64
}

// DefaultWeights returns the standard factor weighting.
func DefaultWeights() Weights {
	return Weights{
		Prosperity:    0.20,
		Safety:        0.15,
		Stability:     0.15,
		Opportunity:   0.15,
		QualityOfLife: 0.10,
		Housing:       0.15,
		Culture:       0.10,
	}
}

// Factors are the per-POI scores, each in [0,1].
type Factors struct {
	Prosperity    float64 `json:"prosperity"`
	Safety        float64 `json:"safety"`
	Stability     float64 `json:"stability"`
	Opportunity   float64 `json:"opportunity"`
	QualityOfLife float64 `json:"quality_of_life"`
	Housing       float64 `json:"housing"`
	Culture       float64 `json:"culture"`
}

// Weighted collapses the factors into a single attractiveness score.
func (f Factors) Weighted(w Weights) float64 {
	return f.Prosperity*w.Prosperity +
		f.Safety*w.Safety +
		f.Stability*w.Stability +
		f.Opportunity*w.Opportunity +
		f.QualityOfLife*w.QualityOfLife +
		f.Housing*w.Housing +
		f.Culture*w.Culture
}

// Config tunes the migration model. Zero values fall back to defaults.
type Config struct {
	BaseRate           float64 // per-tick fraction of population willing to move
	MaxRate            float64 // hard cap on the per-pair rate
	DistanceFactor     float64 // steepness of the distance penalty curve
	CrossRegionPenalty float64 // extra multiplier for leaving the region
	UnknownDistance    float64 // penalty used when either POI has no coords
	TravelSpeed        float64 // distance covered per day by a group
}

// DefaultConfig returns the standard migration tuning.
func DefaultConfig() Config {
	return Config{
		BaseRate:           0.02,
		MaxRate:            0.10,
		DistanceFactor:     0.01,
		CrossRegionPenalty: 0.5,
		UnknownDistance:    0.3,
		TravelSpeed:        20,
	}
}

// Service computes and executes migration.
type Service struct {
	bus     *event.Bus
	states  *state.Service
	cfg     Config
	weights Weights
	groups  map[string]*Group
}

// NewService creates a migration service. Population changes run through
// states so lifecycle transitions stay consistent with movement.
func NewService(bus *event.Bus, states *state.Service, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.BaseRate <= 0 {
		cfg.BaseRate = def.BaseRate
	}
	if cfg.MaxRate <= 0 {
		cfg.MaxRate = def.MaxRate
	}
	if cfg.DistanceFactor <= 0 {
		cfg.DistanceFactor = def.DistanceFactor
	}
	if cfg.CrossRegionPenalty <= 0 {
		cfg.CrossRegionPenalty = def.CrossRegionPenalty
	}
	if cfg.UnknownDistance <= 0 {
		cfg.UnknownDistance = def.UnknownDistance
	}
	if cfg.TravelSpeed <= 0 {
		cfg.TravelSpeed = def.TravelSpeed
	}
	return &Service{
		bus:     bus,
		states:  states,
		cfg:     cfg,
		weights: DefaultWeights(),
		groups:  make(map[string]*Group),
	}
}

// Factors scores a POI on every migration factor. Missing data scores
// neutral rather than dragging the POI down.
func (s *Service) Factors(p *poi.PointOfInterest) Factors {
	return Factors{
		Prosperity:    prosperityScore(p),
		Safety:        safetyScore(p),
		Stability:     stabilityScore(p),
		Opportunity:   opportunityScore(p),
		QualityOfLife: qualityOfLifeScore(p),
		Housing:       housingScore(p),
		Culture:       cultureScore(p),
	}
}

// Attractiveness returns the weighted score in [0,1].
func (s *Service) Attractiveness(p *poi.PointOfInterest) float64 {
	return s.Factors(p).Weighted(s.weights)
}

func prosperityScore(p *poi.PointOfInterest) float64 {
	m := p.EconomicMetrics
	if m == nil {
		return neutralScore
	}
	score := neutralScore
	score += clamp(m.TradeIncome/1000, 0, 0.25)
	score += clamp(m.GrowthRate, -0.15, 0.15)
	score -= clamp(m.TaxRate, 0, 0.15)
	return clamp(score, 0, 1)
}

func safetyScore(p *poi.PointOfInterest) float64 {
	score := neutralScore
	if p.DefenseRating > 0 {
		score = 0.3 + clamp(p.DefenseRating/100, 0, 1)*0.5
	}
	switch p.CurrentState {
	case poi.StateDungeon:
		return 0
	case poi.StateRuins, poi.StateAbandoned:
		score *= 0.4
	}
	// Recent war damage makes a place feel unsafe regardless of walls.
	if recent := p.Metadata.History(poi.MetaWarDamage); len(recent) > 0 {
		score *= 0.7
	}
	return clamp(score, 0, 1)
}

func stabilityScore(p *poi.PointOfInterest) float64 {
	var score float64
	switch p.CurrentState {
	case poi.StateNormal:
		score = 0.8
	case poi.StateRepopulating:
		score = 0.5
	case poi.StateDeclining:
		score = 0.3
	case poi.StateSpecial:
		score = neutralScore
	default: // abandoned, ruins, dungeon
		score = 0.1
	}

	switch p.Metadata.StringValue(poi.MetaGovernment, "type") {
	case "council", "monarchy":
		score += 0.1
	case "occupation", "anarchy":
		score -= 0.2
	}
	if gov, ok := p.Metadata[poi.MetaGovernment].(map[string]any); ok {
		// Long-tenured leadership steadies a place, up to a point.
		if tenure, ok := gov["leadership_tenure_years"].(float64); ok {
			score += clamp(tenure/50, 0, 0.1)
		}
	}
	return clamp(score, 0, 1)
}

func opportunityScore(p *poi.PointOfInterest) float64 {
	m := p.EconomicMetrics
	if m == nil {
		return neutralScore
	}
	score := clamp(1-m.Unemployment, 0, 1) * 0.7
	score += clamp(float64(m.Industries)/10, 0, 0.3)
	return clamp(score, 0, 1)
}

func qualityOfLifeScore(p *poi.PointOfInterest) float64 {
	if len(p.Amenities) == 0 {
		return neutralScore
	}
	total := 0
	for _, n := range p.Amenities {
		total += n
	}
	return clamp(0.3+float64(total)/20, 0, 1)
}

func housingScore(p *poi.PointOfInterest) float64 {
	h := p.Housing
	if h == nil || h.Total <= 0 {
		return neutralScore
	}
	return clamp(float64(h.Available)/float64(h.Total), 0, 1)
}

func cultureScore(p *poi.PointOfInterest) float64 {
	groups, ok := p.Metadata[poi.MetaCulturalGroups].([]any)
	if !ok || len(groups) == 0 {
		return neutralScore
	}
	// Diversity draws migrants, with diminishing returns.
	return clamp(0.4+float64(len(groups))*0.1, 0, 1)
}

// DistancePenalty returns the multiplier applied to a flow between two
// POIs. It decays continuously with distance; there is no free radius.
// Unknown coordinates get a conservative fixed penalty, and crossing a
// region boundary costs extra.
func (s *Service) DistancePenalty(from, to *poi.PointOfInterest) float64 {
	penalty := s.cfg.UnknownDistance
	if from.Coords != nil && to.Coords != nil {
		d := math.Hypot(from.Coords.X-to.Coords.X, from.Coords.Y-to.Coords.Y)
		penalty = 1 / (1 + d*s.cfg.DistanceFactor)
	}
	if from.RegionID != to.RegionID {
		penalty *= s.cfg.CrossRegionPenalty
	}
	return penalty
}

// Rate returns the fraction of from's population willing to migrate to a
// strictly more attractive destination this tick: the base rate scaled by
// how hard the origin pushes people out. Zero when the destination is no
// better or cannot receive anyone. Capped at the configured maximum. The
// attractiveness gap itself scales the flow, not the rate.
func (s *Service) Rate(from, to *poi.PointOfInterest) float64 {
	if !habitable(to) {
		return 0
	}
	if s.Attractiveness(to)-s.Attractiveness(from) <= 0 {
		return 0
	}
	rate := s.cfg.BaseRate * pushMultiplier(from.CurrentState)
	if rate > s.cfg.MaxRate {
		rate = s.cfg.MaxRate
	}
	return rate
}

// pushMultiplier scales outflow by how hard the origin pushes people away.
func pushMultiplier(st poi.State) float64 {
	switch st {
	case poi.StateDeclining:
		return 1.5
	case poi.StateAbandoned, poi.StateRuins:
		return 2.0
	case poi.StateRepopulating:
		return 0.5
	default:
		return 1.0
	}
}

// habitable reports whether a POI can receive migrants at all.
func habitable(p *poi.PointOfInterest) bool {
	switch p.CurrentState {
	case poi.StateRuins, poi.StateDungeon:
		return false
	}
	return true
}

// Flow is one computed pairwise movement.
type Flow struct {
	FromID          string  `json:"from_poi_id"`
	ToID            string  `json:"to_poi_id"`
	Migrants        int     `json:"migrants"`
	Rate            float64 `json:"rate"`
	Gap             float64 `json:"attractiveness_gap"`
	DistancePenalty float64 `json:"distance_penalty"`
}

// ComputeFlow sizes the migration from one POI to another without applying
// it: rate x population x attractiveness gap x distance penalty. A barely
// better destination pulls almost no one. Returns a zero-migrant flow when
// nothing would move.
func (s *Service) ComputeFlow(from, to *poi.PointOfInterest) Flow {
	f := Flow{FromID: from.ID, ToID: to.ID}
	if from.ID == to.ID || from.Population <= 0 {
		return f
	}
	f.Rate = s.Rate(from, to)
	if f.Rate == 0 {
		return f
	}
	f.Gap = s.Attractiveness(to) - s.Attractiveness(from)
	f.DistancePenalty = s.DistancePenalty(from, to)
	f.Migrants = int(math.Round(float64(from.Population) * f.Rate * f.Gap * f.DistancePenalty))
	return f
}

// occupantsPerDwelling converts housing headroom into people.
const occupantsPerDwelling = 4

// receptionCapacity is how many newcomers a POI can take in: housing
// headroom when the POI tracks dwellings, otherwise max-population
// headroom. Negative means unbounded.
func receptionCapacity(p *poi.PointOfInterest) int {
	room := -1
	if h := p.Housing; h != nil && h.Total > 0 {
		room = h.Available * occupantsPerDwelling
	} else if p.MaxPopulation > 0 {
		room = p.MaxPopulation - p.Population
	}
	if room == -1 {
		return -1
	}
	if p.MaxPopulation > 0 {
		if alt := p.MaxPopulation - p.Population; alt < room {
			room = alt
		}
	}
	if room < 0 {
		room = 0
	}
	return room
}

// TransferOptions configures one executed movement.
type TransferOptions struct {
	Reason        string
	SuppressEvent bool // record history without publishing the event
}

// Execute moves count people from one POI to another, publishing the
// movement event. See ExecuteWith.
func (s *Service) Execute(from, to *poi.PointOfInterest, count int, reason string) (int, error) {
	return s.ExecuteWith(from, to, count, TransferOptions{Reason: reason})
}

// ExecuteWith moves count people from one POI to another. The transfer is
// all-at-once: the count is clamped to the origin's population and the
// destination's reception capacity, both populations update through the
// state service, and both POIs record the movement in their migration
// history. Returns how many actually moved.
func (s *Service) ExecuteWith(from, to *poi.PointOfInterest, count int, opts TransferOptions) (int, error) {
	reason := opts.Reason
	if count <= 0 || from.ID == to.ID {
		return 0, nil
	}
	if count > from.Population {
		count = from.Population
	}
	if room := receptionCapacity(to); room >= 0 && count > room {
		count = room
	}
	if count == 0 {
		return 0, nil
	}

	if err := s.states.UpdatePopulation(from, from.Population-count); err != nil {
		return 0, fmt.Errorf("migration origin %s: %w", from.ID, err)
	}
	if err := s.states.UpdatePopulation(to, to.Population+count); err != nil {
		return 0, fmt.Errorf("migration destination %s: %w", to.ID, err)
	}

	from.Metadata.AppendHistory(poi.MetaMigration, map[string]any{
		"direction": "out",
		"other_poi": to.ID,
		"count":     count,
		"reason":    reason,
	})
	to.Metadata.AppendHistory(poi.MetaMigration, map[string]any{
		"direction": "in",
		"other_poi": from.ID,
		"count":     count,
		"reason":    reason,
	})

	if !opts.SuppressEvent {
		s.bus.Publish(event.TypeMigrationOccurred, map[string]any{
			"from_poi_id": from.ID,
			"to_poi_id":   to.ID,
			"count":       count,
			"reason":      reason,
		})
	}
	return count, nil
}

// RegionalResult is the outcome of one regional migration pass.
type RegionalResult struct {
	POICount      int    `json:"poi_count"`
	TotalMigrants int    `json:"total_migrants"`
	Flows         []Flow `json:"flows,omitempty"`
}

// ProcessRegion runs one migration pass over a set of POIs. Flows for every
// ordered pair are computed against the pre-pass populations, then applied,
// so pair ordering cannot bias the result. Fewer than two POIs yields an
// empty result, not an error.
func (s *Service) ProcessRegion(pois []*poi.PointOfInterest) (RegionalResult, error) {
	res := RegionalResult{POICount: len(pois)}
	if len(pois) < 2 {
		return res, nil
	}

	flows := make([]Flow, 0)
	for _, from := range pois {
		for _, to := range pois {
			if from.ID == to.ID {
				continue
			}
			if f := s.ComputeFlow(from, to); f.Migrants > 0 {
				flows = append(flows, f)
			}
		}
	}

	byID := make(map[string]*poi.PointOfInterest, len(pois))
	for _, p := range pois {
		byID[p.ID] = p
	}
	for _, f := range flows {
		moved, err := s.Execute(byID[f.FromID], byID[f.ToID], f.Migrants, "regional migration")
		if err != nil {
			return res, err
		}
		f.Migrants = moved
		if moved > 0 {
			res.Flows = append(res.Flows, f)
			res.TotalMigrants += moved
		}
	}

	if res.TotalMigrants > 0 {
		slog.Debug("regional migration pass",
			"pois", res.POICount, "flows", len(res.Flows), "migrants", res.TotalMigrants)
	}
	return res, nil
}

// SimulateExternal adjusts a POI's population for movement not modeled as
// flows between known POIs. Each factor is an independent signed fraction
// of the current population; their contributions sum, so a harsh season can
// outweigh growth and drain people offscreen. The population never drops
// below zero. Returns the net change, negative for an exodus.
func (s *Service) SimulateExternal(p *poi.PointOfInterest, growthFactor, seasonalFactor, eventFactor float64) (int, error) {
	if !habitable(p) {
		return 0, nil
	}
	base := float64(p.Population)
	if base < 10 {
		base = 10 // empty land still draws the occasional settler
	}
	net := int(math.Round(base * (growthFactor + seasonalFactor + eventFactor)))
	if net < -p.Population {
		net = -p.Population
	}
	if net == 0 {
		return 0, nil
	}
	if err := s.states.UpdatePopulation(p, p.Population+net); err != nil {
		return 0, err
	}
	direction := "in"
	count := net
	if net < 0 {
		direction = "out"
		count = -net
	}
	p.Metadata.AppendHistory(poi.MetaMigration, map[string]any{
		"direction": direction,
		"other_poi": "external",
		"count":     count,
		"reason":    "external migration",
	})
	return net, nil
}

// History returns a POI's recorded migration movements, oldest first.
func (s *Service) History(p *poi.PointOfInterest) []map[string]any {
	return p.Metadata.History(poi.MetaMigration)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
