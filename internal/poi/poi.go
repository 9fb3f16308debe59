// Package poi defines the point-of-interest entity model: the settlement
// record itself plus the sub-records it owns (resource stocks, faction
// influence, lifecycle metadata). No simulation logic lives here.
package poi

import (
	"time"
)

// State is the lifecycle state of a POI.
type State string

const (
	StateNormal       State = "normal"
	StateDeclining    State = "declining"
	StateAbandoned    State = "abandoned"
	StateRuins        State = "ruins"
	StateDungeon      State = "dungeon"
	StateRepopulating State = "repopulating"
	StateSpecial      State = "special"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StateNormal, StateDeclining, StateAbandoned, StateRuins,
		StateDungeon, StateRepopulating, StateSpecial:
		return true
	}
	return false
}

// InteractionType describes how visitors interact with a POI.
// Derived from state; only SPECIAL keeps a manually-set value.
type InteractionType string

const (
	InteractionSocial  InteractionType = "social"
	InteractionCombat  InteractionType = "combat"
	InteractionNeutral InteractionType = "neutral"
)

// Type categorizes a POI.
type Type string

const (
	TypeCity    Type = "city"
	TypeTown    Type = "town"
	TypeVillage Type = "village"
	TypeOutpost Type = "outpost"
	TypeFarm    Type = "farm"
	TypeMine    Type = "mine"
	TypeCamp    Type = "camp"
	TypeDungeon Type = "dungeon"
	TypeRuins   Type = "ruins"
)

// FactionID identifies a faction. Empty means "no faction".
type FactionID string

// Position is a 2D world coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointOfInterest is the central simulated entity. Population, resources,
// and politics are mutated in place by the simulation services; each POI
// must be owned by exactly one in-flight mutator at a time.
type PointOfInterest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type Type   `json:"type"`

	// Lifecycle
	CurrentState    State           `json:"current_state"`
	InteractionType InteractionType `json:"interaction_type"`
	Population      int             `json:"population"`
	MaxPopulation   int             `json:"max_population,omitempty"` // 0 = unknown

	// Spatial
	RegionID   string    `json:"region_id"`
	Coords     *Position `json:"coords,omitempty"` // nil = unknown location
	ClaimedIDs []string  `json:"claimed_cell_ids,omitempty"`

	// Economy
	Resources     map[ResourceType]*Stock    `json:"resources,omitempty"`
	ProdModifiers map[ResourceType]float64   `json:"production_modifiers,omitempty"`
	ConsModifiers map[ResourceType]float64   `json:"consumption_modifiers,omitempty"`
	Tags          []string                   `json:"tags,omitempty"`

	// Politics
	Influences          map[FactionID]*FactionInfluence `json:"faction_influences,omitempty"`
	ControllingFaction  FactionID                       `json:"controlling_faction_id,omitempty"`

	// Attributes feeding migration attractiveness. All optional; a POI
	// with none of them is scored neutrally.
	EconomicMetrics *EconomicMetrics `json:"economic_metrics,omitempty"`
	DefenseRating   float64          `json:"defense_rating,omitempty"` // 0-100
	Amenities       map[string]int   `json:"amenities,omitempty"`
	LandArea        float64          `json:"land_area,omitempty"`
	Housing         *Housing         `json:"housing,omitempty"`

	// Narrative/bookkeeping
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EconomicMetrics are the economy attributes read by the migration model.
type EconomicMetrics struct {
	TradeIncome  float64 `json:"trade_income"`
	TaxRate      float64 `json:"tax_rate"`
	Unemployment float64 `json:"unemployment"`
	GrowthRate   float64 `json:"growth_rate"`
	Industries   int     `json:"industries"`
}

// Housing tracks dwelling capacity for the housing factor and reception
// capacity calculations.
type Housing struct {
	Total     int `json:"total"`
	Occupied  int `json:"occupied"`
	Available int `json:"available"`
}

// New creates a POI with initialized owned maps and timestamps.
func New(id, name string, t Type) *PointOfInterest {
	now := time.Now().UTC()
	return &PointOfInterest{
		ID:              id,
		Name:            name,
		Type:            t,
		CurrentState:    StateNormal,
		InteractionType: InteractionSocial,
		Resources:       make(map[ResourceType]*Stock),
		Influences:      make(map[FactionID]*FactionInfluence),
		Metadata:        make(Metadata),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Touch updates the modification timestamp. Every executed mutation calls it.
func (p *PointOfInterest) Touch() {
	p.UpdatedAt = time.Now().UTC()
}

// PopulationRatio returns population/max_population, or 0 when max is unknown.
func (p *PointOfInterest) PopulationRatio() float64 {
	if p.MaxPopulation <= 0 {
		return 0
	}
	return float64(p.Population) / float64(p.MaxPopulation)
}

// SetPopulation clamps to zero and updates the timestamp.
func (p *PointOfInterest) SetPopulation(n int) {
	if n < 0 {
		n = 0
	}
	p.Population = n
	p.Touch()
}

// HasTag reports whether the POI carries the given tag.
func (p *PointOfInterest) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Stock returns the stock for a resource type, or nil.
func (p *PointOfInterest) Stock(rt ResourceType) *Stock {
	if p.Resources == nil {
		return nil
	}
	return p.Resources[rt]
}

// EnsureStock returns the stock for a resource type, creating an empty one
// if needed.
func (p *PointOfInterest) EnsureStock(rt ResourceType) *Stock {
	if p.Resources == nil {
		p.Resources = make(map[ResourceType]*Stock)
	}
	s, ok := p.Resources[rt]
	if !ok {
		s = &Stock{Quality: 1.0}
		p.Resources[rt] = s
	}
	return s
}

// Influence returns the influence record for a faction, or nil.
func (p *PointOfInterest) Influence(f FactionID) *FactionInfluence {
	if p.Influences == nil {
		return nil
	}
	return p.Influences[f]
}

// EnsureInfluence returns the influence record for a faction, creating a
// zero-strength one if needed. Influence maps are lazily initialized.
func (p *PointOfInterest) EnsureInfluence(f FactionID) *FactionInfluence {
	if p.Influences == nil {
		p.Influences = make(map[FactionID]*FactionInfluence)
	}
	fi, ok := p.Influences[f]
	if !ok {
		now := time.Now().UTC()
		fi = &FactionInfluence{Established: now, LastUpdated: now}
		p.Influences[f] = fi
	}
	return fi
}
