package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/poi"
	"github.com/talgya/worldsim/internal/sim"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "world.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func samplePOI() *poi.PointOfInterest {
	p := poi.New("poi-1", "Thornhaven", poi.TypeCity)
	p.Population = 800
	p.MaxPopulation = 1000
	p.RegionID = "heartlands"
	p.Coords = &poi.Position{X: 12.5, Y: -3.25}
	p.ClaimedIDs = []string{"cell-1", "cell-2"}
	p.Tags = []string{"coastal"}
	p.ControllingFaction = "iron-pact"
	p.DefenseRating = 60
	p.EnsureStock(poi.ResourceFood).Add(120, 0.8)
	fi := p.EnsureInfluence("iron-pact")
	fi.Strength = 0.7
	fi.Kind = poi.InfluenceMilitary
	p.EconomicMetrics = &poi.EconomicMetrics{TradeIncome: 400, Unemployment: 0.2}
	p.Housing = &poi.Housing{Total: 300, Occupied: 250, Available: 50}
	p.Metadata.AppendHistory(poi.MetaWarDamage, map[string]any{
		"severity":          0.4,
		"population_before": 900,
	})
	return p
}

func TestSaveAndLoadPOIs(t *testing.T) {
	db := openTestDB(t)
	orig := samplePOI()

	require.NoError(t, db.SavePOIs([]*poi.PointOfInterest{orig}))

	loaded, err := db.LoadPOIs()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]

	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Type, got.Type)
	assert.Equal(t, orig.CurrentState, got.CurrentState)
	assert.Equal(t, orig.Population, got.Population)
	assert.Equal(t, orig.RegionID, got.RegionID)
	require.NotNil(t, got.Coords)
	assert.Equal(t, 12.5, got.Coords.X)
	assert.Equal(t, orig.ClaimedIDs, got.ClaimedIDs)
	assert.Equal(t, poi.FactionID("iron-pact"), got.ControllingFaction)

	food := got.Stock(poi.ResourceFood)
	require.NotNil(t, food)
	assert.InDelta(t, 120, food.Quantity, 1e-9)
	assert.InDelta(t, 0.8, food.Quality, 1e-9)

	fi := got.Influence("iron-pact")
	require.NotNil(t, fi)
	assert.InDelta(t, 0.7, fi.Strength, 1e-9)
	assert.Equal(t, poi.InfluenceMilitary, fi.Kind)

	require.NotNil(t, got.EconomicMetrics)
	assert.Equal(t, 400.0, got.EconomicMetrics.TradeIncome)
	require.NotNil(t, got.Housing)
	assert.Equal(t, 300, got.Housing.Total)

	history := got.Metadata.History(poi.MetaWarDamage)
	require.Len(t, history, 1)
	assert.Equal(t, 0.4, history[0]["severity"])
}

func TestSavePOIsFullReplace(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SavePOIs([]*poi.PointOfInterest{samplePOI()}))

	other := poi.New("poi-2", "Dimhollow", poi.TypeVillage)
	require.NoError(t, db.SavePOIs([]*poi.PointOfInterest{other}))

	loaded, err := db.LoadPOIs()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "poi-2", loaded[0].ID)
}

func TestLoadPOIsSparseRow(t *testing.T) {
	db := openTestDB(t)
	bare := poi.New("bare", "Nowhere", poi.TypeCamp)
	bare.RegionID = "wastes"

	require.NoError(t, db.SavePOIs([]*poi.PointOfInterest{bare}))

	loaded, err := db.LoadPOIs()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	got := loaded[0]
	assert.Nil(t, got.Coords)
	assert.Equal(t, poi.FactionID(""), got.ControllingFaction)
	assert.NotNil(t, got.Resources)
	assert.NotNil(t, got.Influences)
	assert.NotNil(t, got.Metadata)
}

func TestEventJournal(t *testing.T) {
	db := openTestDB(t)

	db.AppendEvent(3, event.Event{
		Type:      event.TypeStateChanged,
		Payload:   map[string]any{"poi_id": "poi-1", "to_state": "ruins"},
		Timestamp: time.Now().UTC(),
	})
	db.AppendEvent(4, event.Event{
		Type:      event.TypePopulationChanged,
		Payload:   map[string]any{"poi_id": "poi-1"},
		Timestamp: time.Now().UTC(),
	})

	stored, err := db.EventsForDay(3)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, event.TypeStateChanged, stored[0].Type)
	assert.Contains(t, stored[0].PayloadJSON, "ruins")
}

func TestMetaRoundTrip(t *testing.T) {
	db := openTestDB(t)

	missing, err := db.Meta("nope")
	require.NoError(t, err)
	assert.Equal(t, "", missing)

	require.NoError(t, db.SetMeta("seed", "1337"))
	require.NoError(t, db.SetMeta("seed", "42")) // upsert

	got, err := db.Meta("seed")
	require.NoError(t, err)
	assert.Equal(t, "42", got)
}

func TestSaveAndLoadWorld(t *testing.T) {
	db := openTestDB(t)

	w := sim.NewWorld()
	w.Add(samplePOI())
	w.Day = 12

	require.NoError(t, db.SaveWorld(w))

	restored, err := db.LoadWorld()
	require.NoError(t, err)
	assert.Equal(t, 12, restored.Day)
	assert.Equal(t, 1, restored.Len())
	assert.NotNil(t, restored.POI("poi-1"))
	assert.Len(t, restored.Region("heartlands"), 1)
}

func TestLoadWorldEmptyDatabase(t *testing.T) {
	db := openTestDB(t)

	w, err := db.LoadWorld()
	require.NoError(t, err)
	assert.Equal(t, 0, w.Day)
	assert.Equal(t, 0, w.Len())
}
