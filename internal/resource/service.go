// Package resource runs each POI's economy: daily production against
// input requirements, per-capita consumption with shortage detection,
// spoilage of perishables, and trading between POIs through reserved
// stock and settled offers.
package resource

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/poi"
)

// producedQuality is the quality of freshly produced goods before any
// blending with existing stock.
const producedQuality = 0.8

// InsufficientResourceError reports a removal that exceeds the available
// (unreserved) amount. The stock is left untouched.
type InsufficientResourceError struct {
	POIID     string
	Resource  poi.ResourceType
	Requested float64
	Available float64
}

func (e *InsufficientResourceError) Error() string {
	return fmt.Sprintf("poi %s: need %.2f %s, only %.2f available",
		e.POIID, e.Requested, e.Resource, e.Available)
}

// ErrInvalidAmount rejects non-positive quantities.
var ErrInvalidAmount = errors.New("amount must be positive")

// Service mutates POI stocks.
type Service struct {
	bus    *event.Bus
	offers map[string]*TradeOffer
}

// NewService creates a resource service publishing to the given bus.
func NewService(bus *event.Bus) *Service {
	return &Service{bus: bus, offers: make(map[string]*TradeOffer)}
}

// Initialize seeds a POI with starting supplies scaled by its population.
// Existing stocks are topped up, not replaced.
func (s *Service) Initialize(p *poi.PointOfInterest) {
	pop := p.Population
	if pop < 10 {
		pop = 10
	}
	for rt, perCapita := range initialStocks {
		p.EnsureStock(rt).Add(perCapita*float64(pop), producedQuality)
	}
	p.Touch()
}

// Add credits a stock and publishes a resource event.
func (s *Service) Add(p *poi.PointOfInterest, rt poi.ResourceType, amount, quality float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	p.EnsureStock(rt).Add(amount, quality)
	p.Touch()
	s.bus.Publish(event.TypeResourceAdded, map[string]any{
		"poi_id":   p.ID,
		"resource": string(rt),
		"amount":   amount,
	})
	return nil
}

// Remove debits a stock against its available amount. Reserved quantities
// cannot be taken; an oversized request fails without mutation.
func (s *Service) Remove(p *poi.PointOfInterest, rt poi.ResourceType, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	st := p.Stock(rt)
	if st == nil || !st.Remove(amount) {
		avail := 0.0
		if st != nil {
			avail = st.Available()
		}
		return &InsufficientResourceError{
			POIID: p.ID, Resource: rt, Requested: amount, Available: avail,
		}
	}
	p.Touch()
	s.bus.Publish(event.TypeResourceConsumed, map[string]any{
		"poi_id":   p.ID,
		"resource": string(rt),
		"amount":   amount,
	})
	return nil
}

// productionAmount computes the daily output of one resource for a POI,
// before input gating.
func (s *Service) productionAmount(p *poi.PointOfInterest, rt poi.ResourceType, base float64, days int) float64 {
	amount := base * float64(p.Population) * float64(days)
	amount *= stateModifier(p.CurrentState)
	for _, tag := range p.Tags {
		if boosts, ok := tagBoosts[tag]; ok {
			if mult, ok := boosts[rt]; ok {
				amount *= mult
			}
		}
	}
	if mod, ok := p.ProdModifiers[rt]; ok {
		amount *= mod
	}
	return amount
}

// Produce runs production for the given number of days. Crafted goods are
// input-gated and all-or-nothing: if any input falls short of the full
// batch, that resource produces nothing and consumes nothing this pass.
// Returns the amounts actually produced.
func (s *Service) Produce(p *poi.PointOfInterest, days int) map[poi.ResourceType]float64 {
	produced := make(map[poi.ResourceType]float64)
	if days <= 0 || p.Population <= 0 {
		return produced
	}
	table, ok := baseProduction[p.Type]
	if !ok {
		return produced
	}

	for rt, base := range table {
		amount := s.productionAmount(p, rt, base, days)
		if amount <= 0 {
			continue
		}

		if inputs, gated := productionInputs[rt]; gated {
			short := false
			for in, perUnit := range inputs {
				st := p.Stock(in)
				if st == nil || st.Available() < perUnit*amount {
					short = true
					break
				}
			}
			if short {
				continue
			}
			for in, perUnit := range inputs {
				p.Stock(in).Remove(perUnit * amount)
			}
		}

		p.EnsureStock(rt).Add(amount, producedQuality)
		produced[rt] = amount
	}
	if len(produced) > 0 {
		p.Touch()
	}
	return produced
}

// Consume runs per-capita consumption for the given number of days.
// Demand that cannot be met is recorded as a shortage: a lifecycle entry
// on the POI plus a shortage event, but never an error. Returns the
// amounts actually consumed.
func (s *Service) Consume(p *poi.PointOfInterest, days int) map[poi.ResourceType]float64 {
	consumed := make(map[poi.ResourceType]float64)
	if days <= 0 || p.Population <= 0 {
		return consumed
	}
	mod := stateModifier(p.CurrentState)
	if mod == 0 {
		return consumed
	}

	for rt, perCapita := range baseConsumption {
		demand := perCapita * float64(p.Population) * float64(days) * mod
		if m, ok := p.ConsModifiers[rt]; ok {
			demand *= m
		}
		if demand <= 0 {
			continue
		}

		st := p.Stock(rt)
		avail := 0.0
		if st != nil {
			avail = st.Available()
		}
		take := math.Min(demand, avail)
		if take > 0 {
			st.Remove(take)
			consumed[rt] = take
		}
		if avail < demand {
			s.recordShortage(p, rt, demand, avail)
		}
	}
	if len(consumed) > 0 {
		p.Touch()
	}
	return consumed
}

// recordShortage notes unmet demand on the POI and the bus. Shortages feed
// later lifecycle evaluation; they do not change state here.
func (s *Service) recordShortage(p *poi.PointOfInterest, rt poi.ResourceType, demand, available float64) {
	p.Metadata.AppendHistory(poi.MetaLifecycle, map[string]any{
		"event":     "resource_shortage",
		"resource":  string(rt),
		"demand":    demand,
		"available": available,
	})
	s.bus.Publish(event.TypeResourceShortage, map[string]any{
		"poi_id":    p.ID,
		"resource":  string(rt),
		"demand":    demand,
		"available": available,
	})
	slog.Debug("resource shortage",
		"poi", p.ID, "resource", rt, "demand", demand, "available", available)
}

// Spoil decays perishables for the given number of days. The loss is
// capped at the stored quantity.
func (s *Service) Spoil(p *poi.PointOfInterest, days int) map[poi.ResourceType]float64 {
	spoiled := make(map[poi.ResourceType]float64)
	if days <= 0 {
		return spoiled
	}
	for rt, rate := range spoilageRates {
		st := p.Stock(rt)
		if st == nil || st.Quantity <= 0 {
			continue
		}
		loss := math.Min(st.Quantity, st.Quantity*rate*float64(days))
		if loss <= 0 {
			continue
		}
		st.Quantity -= loss
		if st.Reserved > st.Quantity {
			st.Reserved = st.Quantity
		}
		spoiled[rt] = loss
	}
	if len(spoiled) > 0 {
		p.Touch()
	}
	return spoiled
}

// Report summarizes one resource pass over a POI.
type Report struct {
	Production  map[poi.ResourceType]float64 `json:"production"`
	Consumption map[poi.ResourceType]float64 `json:"consumption"`
	Spoilage    map[poi.ResourceType]float64 `json:"spoilage"`
	NetChange   map[poi.ResourceType]float64 `json:"net_change"`
}

// UpdateResources runs a full resource pass: production, then consumption,
// then spoilage, in that order. The report's net change covers all three.
func (s *Service) UpdateResources(p *poi.PointOfInterest, days int) Report {
	r := Report{
		Production:  s.Produce(p, days),
		Consumption: s.Consume(p, days),
		Spoilage:    s.Spoil(p, days),
		NetChange:   make(map[poi.ResourceType]float64),
	}
	for rt, v := range r.Production {
		r.NetChange[rt] += v
	}
	for rt, v := range r.Consumption {
		r.NetChange[rt] -= v
	}
	for rt, v := range r.Spoilage {
		r.NetChange[rt] -= v
	}
	return r
}
