package influence

import (
	"math"
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

func newRegionPOI(id string, x, y float64) *poi.PointOfInterest {
	p := poi.New(id, id, poi.TypeTown)
	p.RegionID = "heartlands"
	p.Coords = &poi.Position{X: x, Y: y}
	return p
}

func TestApplyEstablishesInfluence(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus, Config{})
	p := newRegionPOI("poi-1", 0, 0)

	strength, err := svc.Apply(p, "iron-pact", 0.3, poi.InfluenceMilitary, "garrison placed")
	require.NoError(t, err)
	assert.InDelta(t, 0.3, strength, 1e-9)

	fi := p.Influence("iron-pact")
	require.NotNil(t, fi)
	assert.Equal(t, poi.InfluenceMilitary, fi.Kind)
	assert.Contains(t, fi.Actions, "garrison placed")

	require.Len(t, eventsOfType(*got, event.TypeInfluenceEstablished), 1)
	assert.Empty(t, eventsOfType(*got, event.TypeInfluenceChanged))
}

func TestApplyClampsToUnitInterval(t *testing.T) {
	svc := NewService(nil, Config{})
	p := newRegionPOI("poi-1", 0, 0)

	strength, err := svc.Apply(p, "iron-pact", 1.7, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1.0, strength)

	strength, err = svc.Apply(p, "iron-pact", -5, "", "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, strength)
}

func TestApplyEmptyFactionNoOp(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus, Config{})
	p := newRegionPOI("poi-1", 0, 0)

	strength, err := svc.Apply(p, "", 0.3, "", "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, strength)
	assert.Empty(t, p.Influences)
	assert.Empty(t, *got)
}

func TestApplyNonFiniteDelta(t *testing.T) {
	svc := NewService(nil, Config{})
	p := newRegionPOI("poi-1", 0, 0)

	_, err := svc.Apply(p, "iron-pact", math.NaN(), "", "")
	var invalid *InvalidDeltaError
	require.ErrorAs(t, err, &invalid)
	assert.Empty(t, p.Influences)
}

func TestApplyNegligibleDeltaIgnored(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus, Config{})
	p := newRegionPOI("poi-1", 0, 0)

	strength, err := svc.Apply(p, "iron-pact", 1e-9, "", "")
	require.NoError(t, err)
	assert.Equal(t, 0.0, strength)
	assert.Empty(t, p.Influences)
	assert.Empty(t, *got)
}

func TestControlGainedAndLost(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus, Config{})
	p := newRegionPOI("poi-1", 0, 0)

	_, err := svc.Apply(p, "iron-pact", 0.6, "", "")
	require.NoError(t, err)
	assert.Equal(t, poi.FactionID("iron-pact"), p.ControllingFaction)

	flips := eventsOfType(*got, event.TypeControlChanged)
	require.Len(t, flips, 1)
	assert.Equal(t, "iron-pact", flips[0].Payload["new_faction"])

	_, err = svc.Apply(p, "iron-pact", -0.3, "", "")
	require.NoError(t, err)
	assert.Equal(t, poi.FactionID(""), p.ControllingFaction)
	assert.Len(t, eventsOfType(*got, event.TypeControlChanged), 2)
}

func TestControlStrongestWins(t *testing.T) {
	svc := NewService(nil, Config{})
	p := newRegionPOI("poi-1", 0, 0)

	_, _ = svc.Apply(p, "iron-pact", 0.6, "", "")
	_, _ = svc.Apply(p, "silver-court", 0.8, "", "")
	assert.Equal(t, poi.FactionID("silver-court"), p.ControllingFaction)
}

func TestControlTieKeepsIncumbent(t *testing.T) {
	svc := NewService(nil, Config{})
	p := newRegionPOI("poi-1", 0, 0)

	_, _ = svc.Apply(p, "iron-pact", 0.6, "", "")
	require.Equal(t, poi.FactionID("iron-pact"), p.ControllingFaction)

	// A rival reaching exactly the same strength does not unseat the holder.
	_, _ = svc.Apply(p, "silver-court", 0.6, "", "")
	assert.Equal(t, poi.FactionID("iron-pact"), p.ControllingFaction)
}

func TestDecaySubtractsFixedRate(t *testing.T) {
	svc := NewService(nil, Config{DecayRate: 0.01})
	p := newRegionPOI("poi-1", 0, 0)

	_, _ = svc.Apply(p, "iron-pact", 0.5, "", "")

	svc.Decay(p, 1)
	assert.InDelta(t, 0.49, p.Influence("iron-pact").Strength, 1e-9)

	svc.Decay(p, 3)
	assert.InDelta(t, 0.46, p.Influence("iron-pact").Strength, 1e-9)
}

func TestDecayPrunesExhaustedEntries(t *testing.T) {
	svc := NewService(nil, Config{DecayRate: 0.01})
	p := newRegionPOI("poi-1", 0, 0)

	_, _ = svc.Apply(p, "iron-pact", 0.8, "", "")
	_, _ = svc.Apply(p, "silver-court", 0.005, "", "")

	svc.Decay(p, 1) // the weak entry hits the floor and disappears
	assert.NotContains(t, p.Influences, poi.FactionID("silver-court"))
	assert.InDelta(t, 0.79, p.Influence("iron-pact").Strength, 1e-9)
}

func TestDecayDropsControl(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus, Config{DecayRate: 0.2})
	p := newRegionPOI("poi-1", 0, 0)

	_, _ = svc.Apply(p, "iron-pact", 0.55, "", "")
	require.Equal(t, poi.FactionID("iron-pact"), p.ControllingFaction)

	svc.Decay(p, 1) // 0.55 - 0.2 = 0.35, below the control threshold
	assert.Equal(t, poi.FactionID(""), p.ControllingFaction)
	assert.Len(t, eventsOfType(*got, event.TypeControlChanged), 2)
}

func TestContestBatch(t *testing.T) {
	bus, got := recordingBus()
	svc := NewService(bus, Config{})
	p := newRegionPOI("poi-1", 0, 0)

	results := svc.Contest(p, []Claim{
		{Faction: "iron-pact", Delta: 0.4, Kind: poi.InfluenceMilitary},
		{Faction: "", Delta: 0.3},
		{Faction: "silver-court", Delta: 0.7, Kind: poi.InfluenceEconomic},
		{Faction: "veiled-hand", Delta: math.Inf(1)},
	})

	require.Len(t, results, 4)
	assert.NoError(t, results[0].Err)
	assert.InDelta(t, 0.4, results[0].Strength, 1e-9)
	assert.ErrorIs(t, results[1].Err, ErrEmptyFaction)
	assert.NoError(t, results[2].Err)
	var invalid *InvalidDeltaError
	assert.ErrorAs(t, results[3].Err, &invalid)

	assert.Equal(t, poi.FactionID("silver-court"), p.ControllingFaction)
	// One settlement for the whole batch, not one per claim.
	assert.Len(t, eventsOfType(*got, event.TypeControlChanged), 1)
}

func TestContestRegionAppliesAcrossPOIs(t *testing.T) {
	svc := NewService(nil, Config{})
	a := newRegionPOI("a", 0, 0)
	b := newRegionPOI("b", 10, 0)
	_, _ = svc.Apply(b, "silver-court", 0.9, "", "")

	outcomes := svc.ContestRegion([]*poi.PointOfInterest{a, b}, []Claim{
		{Faction: "iron-pact", Delta: 0.6, Kind: poi.InfluenceMilitary, Reason: "spring campaign"},
		{Faction: "", Delta: 0.3},
	})

	require.Len(t, outcomes, 2)
	assert.Equal(t, "a", outcomes[0].POIID)
	assert.Equal(t, "b", outcomes[1].POIID)
	for _, o := range outcomes {
		require.Len(t, o.Results, 2)
		assert.NoError(t, o.Results[0].Err)
		assert.InDelta(t, 0.6, o.Results[0].Strength, 1e-9)
		// The malformed claim is reported per POI without halting the pass.
		assert.ErrorIs(t, o.Results[1].Err, ErrEmptyFaction)
	}

	// Each POI settles on its own numbers.
	assert.Equal(t, poi.FactionID("iron-pact"), a.ControllingFaction)
	assert.Equal(t, poi.FactionID("silver-court"), b.ControllingFaction)
}

func TestNaturalSpreadInverseDistance(t *testing.T) {
	svc := NewService(nil, Config{SpreadRate: 0.1, SpreadRadius: 50})
	src := newRegionPOI("capital", 0, 0)
	near := newRegionPOI("near", 5, 0)
	far := newRegionPOI("far", 25, 0)
	elsewhere := newRegionPOI("elsewhere", 5, 5)
	elsewhere.RegionID = "badlands"

	_, _ = svc.Apply(src, "iron-pact", 0.8, poi.InfluenceMilitary, "")

	affected := svc.NaturalSpread(src, []*poi.PointOfInterest{src, near, far, elsewhere})
	assert.Equal(t, 2, affected)

	nearFi := near.Influence("iron-pact")
	farFi := far.Influence("iron-pact")
	require.NotNil(t, nearFi)
	require.NotNil(t, farFi)
	assert.Greater(t, nearFi.Strength, farFi.Strength)
	assert.InDelta(t, 0.8*0.1/5, nearFi.Strength, 1e-9)

	assert.Nil(t, elsewhere.Influence("iron-pact"))
}

func TestNaturalSpreadRequiresControl(t *testing.T) {
	svc := NewService(nil, Config{})
	src := newRegionPOI("capital", 0, 0)
	near := newRegionPOI("near", 5, 0)

	_, _ = svc.Apply(src, "iron-pact", 0.3, "", "") // present but not in control
	assert.Equal(t, 0, svc.NaturalSpread(src, []*poi.PointOfInterest{near}))
}

func TestRegionalSummary(t *testing.T) {
	svc := NewService(nil, Config{})
	a := newRegionPOI("a", 0, 0)
	b := newRegionPOI("b", 10, 0)
	c := newRegionPOI("c", 20, 0)

	_, _ = svc.Apply(a, "iron-pact", 0.7, "", "")
	_, _ = svc.Apply(b, "iron-pact", 0.3, "", "")
	_, _ = svc.Apply(b, "silver-court", 0.4, "", "")
	_, _ = svc.Apply(c, "silver-court", 0.1, "", "")

	sum := svc.RegionalSummary([]*poi.PointOfInterest{a, b, c})
	assert.Equal(t, 3, sum.POICount)
	assert.Equal(t, 1, sum.Contested) // only b has two significant factions
	assert.Equal(t, poi.FactionID("iron-pact"), sum.Dominant)

	require.Len(t, sum.Standings, 2)
	iron := sum.Standings[0]
	assert.Equal(t, poi.FactionID("iron-pact"), iron.Faction)
	assert.InDelta(t, 1.0, iron.TotalStrength, 1e-9)
	assert.Equal(t, 1, iron.Controlled)
	assert.Equal(t, 2, iron.SignificantIn)
	assert.Equal(t, 2, iron.PresentIn)
	assert.InDelta(t, 0.5, iron.AvgStrength, 1e-9)
}

func TestProcessDailyDecaysAndSpreads(t *testing.T) {
	svc := NewService(nil, Config{DecayRate: 0.01, SpreadRate: 0.1, SpreadRadius: 50})
	capital := newRegionPOI("capital", 0, 0)
	hamlet := newRegionPOI("hamlet", 4, 3) // distance 5

	_, _ = svc.Apply(capital, "iron-pact", 0.9, "", "")

	svc.ProcessDaily([]*poi.PointOfInterest{capital, hamlet})

	fi := hamlet.Influence("iron-pact")
	require.NotNil(t, fi)
	assert.Greater(t, fi.Strength, 0.0)
	assert.Less(t, capital.Influence("iron-pact").Strength, 0.9)
}
