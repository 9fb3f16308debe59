package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/poi"
)

func recordingBus() (*event.Bus, *[]event.Event) {
	bus := event.NewBus()
	var got []event.Event
	bus.Subscribe(func(ev event.Event) {
		got = append(got, ev)
	})
	return bus, &got
}

func eventsOfType(events []event.Event, t string) []event.Event {
	var out []event.Event
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestPOI(t poi.Type, pop, maxPop int) *poi.PointOfInterest {
	p := poi.New("poi-1", "Thornhaven", t)
	p.Population = pop
	p.MaxPopulation = maxPop
	return p
}

func TestTransitionValid(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus)
	p := newTestPOI(poi.TypeTown, 100, 200)

	err := svc.Transition(p, poi.StateDeclining, "test")
	require.NoError(t, err)
	assert.Equal(t, poi.StateDeclining, p.CurrentState)

	changes := eventsOfType(*got, event.TypeStateChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, "normal", changes[0].Payload["from_state"])
	assert.Equal(t, "declining", changes[0].Payload["to_state"])
}

func TestTransitionInvalidMutatesNothing(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus)
	p := newTestPOI(poi.TypeTown, 100, 200)
	before := p.UpdatedAt

	err := svc.Transition(p, poi.StateDungeon, "test")
	require.Error(t, err)

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, poi.StateNormal, invalid.From)
	assert.Equal(t, poi.StateDungeon, invalid.To)

	assert.Equal(t, poi.StateNormal, p.CurrentState)
	assert.Equal(t, before, p.UpdatedAt)
	assert.Empty(t, *got)
}

func TestTransitionTableClosure(t *testing.T) {
	all := []poi.State{
		poi.StateNormal, poi.StateDeclining, poi.StateAbandoned,
		poi.StateRuins, poi.StateDungeon, poi.StateRepopulating, poi.StateSpecial,
	}
	svc := NewService(nil)
	for _, from := range all {
		for _, to := range all {
			p := newTestPOI(poi.TypeTown, 100, 200)
			p.CurrentState = from
			err := svc.Transition(p, to, "closure")
			if allowed(from, to) {
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, p.CurrentState)
			} else {
				assert.Error(t, err, "%s -> %s", from, to)
				assert.Equal(t, from, p.CurrentState)
			}
		}
	}
}

func TestSpecialReachableFromEveryState(t *testing.T) {
	for from := range Transitions {
		if from == poi.StateSpecial {
			continue
		}
		assert.True(t, allowed(from, poi.StateSpecial), "from %s", from)
	}
}

func TestInteractionDerivedFromState(t *testing.T) {
	svc := NewService(nil)

	p := newTestPOI(poi.TypeTown, 100, 200)
	require.NoError(t, svc.Transition(p, poi.StateAbandoned, "test"))
	assert.Equal(t, poi.InteractionNeutral, p.InteractionType)

	require.NoError(t, svc.Transition(p, poi.StateDungeon, "test"))
	assert.Equal(t, poi.InteractionCombat, p.InteractionType)

	require.NoError(t, svc.Transition(p, poi.StateRepopulating, "test"))
	assert.Equal(t, poi.InteractionSocial, p.InteractionType)
}

func TestSpecialKeepsInteraction(t *testing.T) {
	svc := NewService(nil)
	p := newTestPOI(poi.TypeTown, 100, 200)
	p.CurrentState = poi.StateDungeon
	p.InteractionType = poi.InteractionCombat

	// dungeon -> special is in the table and must not touch interaction
	require.NoError(t, svc.Transition(p, poi.StateSpecial, "festival"))
	assert.Equal(t, poi.InteractionCombat, p.InteractionType)
}

func TestInteractionChangeEmitsSecondEvent(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus)
	p := newTestPOI(poi.TypeTown, 100, 200)
	p.CurrentState = poi.StateDeclining

	require.NoError(t, svc.Transition(p, poi.StateAbandoned, "test"))

	assert.Len(t, eventsOfType(*got, event.TypeStateChanged), 1)
	inter := eventsOfType(*got, event.TypeInteractionChanged)
	require.Len(t, inter, 1)
	assert.Equal(t, "social", inter[0].Payload["from"])
	assert.Equal(t, "neutral", inter[0].Payload["to"])
}

func TestUpdatePopulationDecline(t *testing.T) {
	svc := NewService(nil)

	cases := []struct {
		poiType   poi.Type
		maxPop    int
		newPop    int
		wantState poi.State
	}{
		{poi.TypeCity, 1000, 450, poi.StateDeclining},    // under 0.5
		{poi.TypeCity, 1000, 550, poi.StateNormal},       // above 0.5
		{poi.TypeTown, 1000, 350, poi.StateDeclining},    // under 0.4
		{poi.TypeVillage, 1000, 250, poi.StateDeclining}, // under 0.3
		{poi.TypeVillage, 1000, 350, poi.StateNormal},
		{poi.TypeCamp, 1000, 350, poi.StateDeclining}, // default 0.4
	}
	for _, tc := range cases {
		p := newTestPOI(tc.poiType, tc.maxPop, tc.maxPop)
		require.NoError(t, svc.UpdatePopulation(p, tc.newPop))
		assert.Equal(t, tc.wantState, p.CurrentState,
			"%s with %d/%d", tc.poiType, tc.newPop, tc.maxPop)
	}
}

func TestUpdatePopulationAbandonAndRecover(t *testing.T) {
	svc := NewService(nil)
	p := newTestPOI(poi.TypeTown, 400, 1000)

	// Below the abandoned threshold from declining.
	p.CurrentState = poi.StateDeclining
	require.NoError(t, svc.UpdatePopulation(p, 50))
	assert.Equal(t, poi.StateAbandoned, p.CurrentState)

	// Rising from zero is not required here; 50 -> 500 revives.
	require.NoError(t, svc.UpdatePopulation(p, 0))
	require.NoError(t, svc.UpdatePopulation(p, 500))
	assert.Equal(t, poi.StateRepopulating, p.CurrentState)

	// Repopulating crosses back to normal above the declining threshold.
	require.NoError(t, svc.UpdatePopulation(p, 600))
	assert.Equal(t, poi.StateNormal, p.CurrentState)
}

func TestUpdatePopulationZeroForcesAbandoned(t *testing.T) {
	svc := NewService(nil)
	p := newTestPOI(poi.TypeCity, 800, 1000)

	require.NoError(t, svc.UpdatePopulation(p, 0))
	assert.Equal(t, poi.StateAbandoned, p.CurrentState)
	assert.Equal(t, 0, p.Population)
}

func TestUpdatePopulationNegativeClamped(t *testing.T) {
	svc := NewService(nil)
	p := newTestPOI(poi.TypeTown, 100, 200)

	require.NoError(t, svc.UpdatePopulation(p, -25))
	assert.Equal(t, 0, p.Population)
	assert.Equal(t, poi.StateAbandoned, p.CurrentState)
}

func TestUpdatePopulationRuinsRevive(t *testing.T) {
	svc := NewService(nil)
	p := newTestPOI(poi.TypeTown, 0, 1000)
	p.CurrentState = poi.StateRuins
	p.InteractionType = poi.InteractionNeutral

	require.NoError(t, svc.UpdatePopulation(p, 40))
	assert.Equal(t, poi.StateRepopulating, p.CurrentState)
	assert.Equal(t, poi.InteractionSocial, p.InteractionType)
}

func TestUpdatePopulationNoMaxNoThresholds(t *testing.T) {
	svc := NewService(nil)
	p := newTestPOI(poi.TypeTown, 100, 0)

	require.NoError(t, svc.UpdatePopulation(p, 1))
	assert.Equal(t, poi.StateNormal, p.CurrentState)
}

func TestUpdatePopulationEvent(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus)
	p := newTestPOI(poi.TypeCity, 1000, 1000)

	require.NoError(t, svc.UpdatePopulation(p, 900))

	popEvents := eventsOfType(*got, event.TypePopulationChanged)
	require.Len(t, popEvents, 1)
	assert.Equal(t, 1000, popEvents[0].Payload["old_population"])
	assert.Equal(t, 900, popEvents[0].Payload["new_population"])
	assert.InDelta(t, -10.0, popEvents[0].Payload["percent_change"], 1e-9)
}

func TestApplyWarDamageSevere(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus)
	p := newTestPOI(poi.TypeCity, 1000, 1000)

	svc.ApplyWarDamage(p, 0.9)

	assert.Equal(t, poi.StateRuins, p.CurrentState)
	assert.Equal(t, poi.InteractionNeutral, p.InteractionType)
	assert.Equal(t, 100, p.Population) // lost 900

	assert.Len(t, eventsOfType(*got, event.TypeStateChanged), 1)
	assert.Len(t, eventsOfType(*got, event.TypeInteractionChanged), 1)

	history := p.Metadata.History(poi.MetaWarDamage)
	require.Len(t, history, 1)
	assert.Equal(t, 1000, history[0]["population_before"])
	assert.Equal(t, 900, history[0]["population_lost"])
}

func TestApplyWarDamageThresholds(t *testing.T) {
	svc := NewService(nil)

	cases := []struct {
		severity  float64
		wantState poi.State
	}{
		{0.8, poi.StateRuins},
		{0.5, poi.StateAbandoned},
		{0.3, poi.StateDeclining},
		{0.2, poi.StateNormal}, // below every threshold
	}
	for _, tc := range cases {
		p := newTestPOI(poi.TypeCity, 1000, 1000)
		svc.ApplyWarDamage(p, tc.severity)
		assert.Equal(t, tc.wantState, p.CurrentState, "severity %.1f", tc.severity)
	}
}

func TestApplyWarDamageMildKeepsPopulation(t *testing.T) {
	svc := NewService(nil)
	p := newTestPOI(poi.TypeCity, 1000, 1000)

	svc.ApplyWarDamage(p, 0.2)

	assert.Equal(t, 1000, p.Population)
	history := p.Metadata.History(poi.MetaWarDamage)
	require.Len(t, history, 1)
	assert.Equal(t, 1000, history[0]["population_before"])
	assert.Equal(t, 0, history[0]["population_lost"])
}

func TestApplyWarDamageZeroNoOp(t *testing.T) {
	svc := NewService(nil)
	p := newTestPOI(poi.TypeCity, 1000, 1000)

	svc.ApplyWarDamage(p, 0)

	assert.Equal(t, 1000, p.Population)
	assert.Empty(t, p.Metadata.History(poi.MetaWarDamage))
}

func TestSetInteractionManual(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus)
	p := newTestPOI(poi.TypeTown, 100, 200)

	svc.SetInteraction(p, poi.InteractionCombat, "bandit takeover")
	assert.Equal(t, poi.InteractionCombat, p.InteractionType)
	assert.Len(t, eventsOfType(*got, event.TypeInteractionChanged), 1)

	// Same value again is not an event.
	svc.SetInteraction(p, poi.InteractionCombat, "still bandits")
	assert.Len(t, eventsOfType(*got, event.TypeInteractionChanged), 1)
}

func TestSetInteractionDerive(t *testing.T) {
	svc := NewService(nil)
	p := newTestPOI(poi.TypeTown, 100, 200)
	p.CurrentState = poi.StateDungeon
	p.InteractionType = poi.InteractionSocial

	svc.SetInteraction(p, "", "resync")
	assert.Equal(t, poi.InteractionCombat, p.InteractionType)
}

func TestStateInfo(t *testing.T) {
	svc := NewService(nil)
	p := newTestPOI(poi.TypeCity, 200, 400)
	p.ClaimedIDs = []string{"cell-1", "cell-2"}

	info := svc.StateInfo(p)
	assert.Equal(t, poi.StateNormal, info.State)
	assert.Equal(t, 200, info.Population)
	assert.InDelta(t, 0.5, info.PopulationRatio, 1e-9)
	assert.Equal(t, 0.5, info.Thresholds.Declining)
	assert.True(t, info.IsPopulated)
	assert.True(t, info.IsMetropolis)

	p.ClaimedIDs = p.ClaimedIDs[:1]
	assert.False(t, svc.StateInfo(p).IsMetropolis)
}
