// Package sim ties the POI services together and drives them day by day.
package sim

import (
	"sort"
	"sync"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/poi"
)

// World holds every simulated POI, indexed by id and by region. The tick
// loop is the only writer during a pass; the read lock covers queries from
// outside the loop.
type World struct {
	mu      sync.RWMutex
	pois    map[string]*poi.PointOfInterest
	regions map[string][]string
	bus     *event.Bus
	Day     int
}

// NewWorld creates an empty world.
func NewWorld() *World {
	return &World{
		pois:    make(map[string]*poi.PointOfInterest),
		regions: make(map[string][]string),
	}
}

// Watch publishes a POI lifecycle event for every later Add and Remove.
// Loading a snapshot happens before watching, so restored POIs do not
// replay as creations.
func (w *World) Watch(bus *event.Bus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bus = bus
}

// Add registers a POI, replacing any previous entry with the same id.
func (w *World) Add(p *poi.PointOfInterest) {
	w.mu.Lock()
	_, replaced := w.pois[p.ID]
	if replaced {
		w.dropFromRegion(w.pois[p.ID])
	}
	w.pois[p.ID] = p
	w.regions[p.RegionID] = append(w.regions[p.RegionID], p.ID)
	bus := w.bus
	w.mu.Unlock()

	kind := event.TypePOICreated
	if replaced {
		kind = event.TypePOIUpdated
	}
	bus.Publish(kind, map[string]any{
		"poi_id": p.ID,
		"name":   p.Name,
		"type":   string(p.Type),
		"region": p.RegionID,
	})
}

// Remove deletes a POI. Unknown ids are ignored.
func (w *World) Remove(id string) {
	w.mu.Lock()
	p, ok := w.pois[id]
	if !ok {
		w.mu.Unlock()
		return
	}
	w.dropFromRegion(p)
	delete(w.pois, id)
	bus := w.bus
	w.mu.Unlock()

	bus.Publish(event.TypePOIDeleted, map[string]any{
		"poi_id": id,
		"name":   p.Name,
		"region": p.RegionID,
	})
}

func (w *World) dropFromRegion(p *poi.PointOfInterest) {
	ids := w.regions[p.RegionID]
	for i, id := range ids {
		if id == p.ID {
			w.regions[p.RegionID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(w.regions[p.RegionID]) == 0 {
		delete(w.regions, p.RegionID)
	}
}

// POI returns a POI by id, or nil.
func (w *World) POI(id string) *poi.PointOfInterest {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pois[id]
}

// Region returns the POIs of one region, ordered by id so passes over a
// region are deterministic.
func (w *World) Region(regionID string) []*poi.PointOfInterest {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := append([]string(nil), w.regions[regionID]...)
	sort.Strings(ids)
	out := make([]*poi.PointOfInterest, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.pois[id])
	}
	return out
}

// Regions lists region ids in sorted order.
func (w *World) Regions() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.regions))
	for id := range w.regions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// All returns every POI, ordered by id.
func (w *World) All() []*poi.PointOfInterest {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]string, 0, len(w.pois))
	for id := range w.pois {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*poi.PointOfInterest, 0, len(ids))
	for _, id := range ids {
		out = append(out, w.pois[id])
	}
	return out
}

// Len returns the number of POIs.
func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.pois)
}

// Stats aggregates world-level numbers for the daily report.
type Stats struct {
	POIs            int `json:"pois"`
	TotalPopulation int `json:"total_population"`
	Abandoned       int `json:"abandoned"`
	Ruins           int `json:"ruins"`
	Controlled      int `json:"controlled"`
}

// ComputeStats walks the world once.
func (w *World) ComputeStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var st Stats
	st.POIs = len(w.pois)
	for _, p := range w.pois {
		st.TotalPopulation += p.Population
		switch p.CurrentState {
		case poi.StateAbandoned:
			st.Abandoned++
		case poi.StateRuins:
			st.Ruins++
		}
		if p.ControllingFaction != "" {
			st.Controlled++
		}
	}
	return st
}
