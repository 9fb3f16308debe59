package migration

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/poi"
)

// GroupStatus is the lifecycle stage of a migration group.
type GroupStatus string

const (
	GroupPlanning  GroupStatus = "planning"
	GroupInTransit GroupStatus = "in_transit"
	GroupArrived   GroupStatus = "arrived"
	GroupFailed    GroupStatus = "failed"
)

// Group is a body of migrants moving between POIs over several days, as
// opposed to the instantaneous transfers of Execute. The origin's
// population and any carried supplies drop at departure; the destination
// receives both at arrival.
type Group struct {
	ID           string                       `json:"id"`
	FromID       string                       `json:"from_poi_id"`
	ToID         string                       `json:"to_poi_id"`
	Size         int                          `json:"size"`
	Status       GroupStatus                  `json:"status"`
	Reason       string                       `json:"reason,omitempty"`
	Carried      map[poi.ResourceType]Carried `json:"carried,omitempty"`
	DepartureDay int                          `json:"departure_day"`
	ArrivalDay   int                          `json:"arrival_day"`
	CreatedAt    time.Time                    `json:"created_at"`
}

// Carried is one resource packed by a group, with the quality it had when
// it left the origin's stores.
type Carried struct {
	Amount  float64 `json:"amount"`
	Quality float64 `json:"quality"`
}

var (
	// ErrGroupNotFound: no group with that id.
	ErrGroupNotFound = errors.New("migration group not found")
	// ErrGroupState: the group is not in the right stage for the operation.
	ErrGroupState = errors.New("migration group in wrong state")
)

// PlanGroup registers a migration group in the planning stage. Size must be
// positive and within the origin's current population; the destination must
// be able to receive migrants. Supplies to carry are requested sizes; the
// amounts actually packed are settled at departure against what the origin
// can spare. Nothing moves until departure.
func (s *Service) PlanGroup(from, to *poi.PointOfInterest, size int, supplies map[poi.ResourceType]float64, reason string) (*Group, error) {
	if size <= 0 {
		return nil, fmt.Errorf("group size %d must be positive", size)
	}
	if size > from.Population {
		return nil, fmt.Errorf("group size %d exceeds population %d of %s", size, from.Population, from.ID)
	}
	if !habitable(to) {
		return nil, fmt.Errorf("destination %s cannot receive migrants in state %s", to.ID, to.CurrentState)
	}

	g := &Group{
		ID:        uuid.NewString(),
		FromID:    from.ID,
		ToID:      to.ID,
		Size:      size,
		Status:    GroupPlanning,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	for rt, amount := range supplies {
		if amount <= 0 {
			continue
		}
		if g.Carried == nil {
			g.Carried = make(map[poi.ResourceType]Carried)
		}
		g.Carried[rt] = Carried{Amount: amount}
	}
	s.groups[g.ID] = g

	s.bus.Publish(event.TypeMigrationGroup, map[string]any{
		"group_id":    g.ID,
		"from_poi_id": g.FromID,
		"to_poi_id":   g.ToID,
		"size":        g.Size,
		"reason":      reason,
	})
	return g, nil
}

// Depart moves a planned group onto the road on the given day. The group's
// size is clamped to what the origin can still spare, the origin's
// population drops immediately, and the arrival day is set from the
// travel distance.
func (s *Service) Depart(groupID string, from, to *poi.PointOfInterest, day int) error {
	g, ok := s.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	if g.Status != GroupPlanning {
		return fmt.Errorf("%w: %s is %s", ErrGroupState, groupID, g.Status)
	}
	if g.Size > from.Population {
		g.Size = from.Population
	}
	if g.Size == 0 {
		g.Status = GroupFailed
		return fmt.Errorf("group %s: origin %s has no one left to send", groupID, from.ID)
	}

	if err := s.states.UpdatePopulation(from, from.Population-g.Size); err != nil {
		return err
	}
	// Pack supplies: the group takes what the origin can actually spare.
	for rt, c := range g.Carried {
		st := from.Stock(rt)
		if st == nil || st.Available() <= 0 {
			delete(g.Carried, rt)
			continue
		}
		if c.Amount > st.Available() {
			c.Amount = st.Available()
		}
		c.Quality = st.Quality
		st.Remove(c.Amount)
		g.Carried[rt] = c
	}
	from.Metadata.AppendHistory(poi.MetaMigration, map[string]any{
		"direction": "out",
		"other_poi": to.ID,
		"count":     g.Size,
		"group_id":  g.ID,
		"reason":    g.Reason,
	})

	g.Status = GroupInTransit
	g.DepartureDay = day
	g.ArrivalDay = day + s.travelDays(from, to)

	s.bus.Publish(event.TypeMigrationStarted, map[string]any{
		"group_id":    g.ID,
		"from_poi_id": g.FromID,
		"to_poi_id":   g.ToID,
		"size":        g.Size,
		"arrival_day": g.ArrivalDay,
	})
	return nil
}

// travelDays estimates how long the road takes, at least one day.
func (s *Service) travelDays(from, to *poi.PointOfInterest) int {
	if from.Coords == nil || to.Coords == nil {
		return 1
	}
	d := math.Hypot(from.Coords.X-to.Coords.X, from.Coords.Y-to.Coords.Y)
	days := int(math.Ceil(d / s.cfg.TravelSpeed))
	if days < 1 {
		days = 1
	}
	return days
}

// AdvanceGroups settles every in-transit group due by the given day. A
// group whose destination has since become unreceivable turns back: it
// fails and its people return to the origin when that still exists.
// Returns the groups that changed status.
func (s *Service) AdvanceGroups(day int, lookup func(id string) *poi.PointOfInterest) ([]*Group, error) {
	var settled []*Group
	for _, g := range s.groups {
		if g.Status != GroupInTransit || g.ArrivalDay > day {
			continue
		}
		to := lookup(g.ToID)
		if to == nil || !habitable(to) {
			s.failGroup(g, lookup(g.FromID))
			settled = append(settled, g)
			continue
		}
		if err := s.states.UpdatePopulation(to, to.Population+g.Size); err != nil {
			return settled, err
		}
		for rt, c := range g.Carried {
			to.EnsureStock(rt).Add(c.Amount, c.Quality)
		}
		to.Metadata.AppendHistory(poi.MetaMigration, map[string]any{
			"direction": "in",
			"other_poi": g.FromID,
			"count":     g.Size,
			"group_id":  g.ID,
			"reason":    g.Reason,
		})
		g.Status = GroupArrived
		s.bus.Publish(event.TypeMigrationArrived, map[string]any{
			"group_id":  g.ID,
			"to_poi_id": g.ToID,
			"size":      g.Size,
			"day":       day,
		})
		settled = append(settled, g)
	}
	return settled, nil
}

// failGroup turns a group back to its origin, or disbands it when the
// origin is gone.
func (s *Service) failGroup(g *Group, origin *poi.PointOfInterest) {
	g.Status = GroupFailed
	if origin != nil {
		// Ignoring the error: returning people home must not fail the pass.
		_ = s.states.UpdatePopulation(origin, origin.Population+g.Size)
		for rt, c := range g.Carried {
			origin.EnsureStock(rt).Add(c.Amount, c.Quality)
		}
		origin.Metadata.AppendHistory(poi.MetaMigration, map[string]any{
			"direction": "in",
			"other_poi": g.ToID,
			"count":     g.Size,
			"group_id":  g.ID,
			"reason":    "migration failed, group returned",
		})
	}
}

// Group returns a group by id.
func (s *Service) Group(id string) (*Group, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

// Groups lists every tracked group, in no particular order.
func (s *Service) Groups() []*Group {
	out := make([]*Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g)
	}
	return out
}
