// Package persistence provides SQLite-based world state storage.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/poi"
	"github.com/talgya/worldsim/internal/sim"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pois (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		state TEXT NOT NULL,
		interaction_type TEXT NOT NULL,
		population INTEGER NOT NULL,
		max_population INTEGER NOT NULL,
		region_id TEXT NOT NULL,
		pos_x REAL,
		pos_y REAL,
		controlling_faction TEXT,
		defense_rating REAL NOT NULL,
		land_area REAL NOT NULL,
		claimed_json TEXT NOT NULL,
		tags_json TEXT NOT NULL,
		resources_json TEXT NOT NULL,
		prod_modifiers_json TEXT NOT NULL,
		cons_modifiers_json TEXT NOT NULL,
		influences_json TEXT NOT NULL,
		economic_json TEXT NOT NULL,
		amenities_json TEXT NOT NULL,
		housing_json TEXT NOT NULL,
		metadata_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		day INTEGER NOT NULL,
		type TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS world_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_day ON events(day);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	CREATE INDEX IF NOT EXISTS idx_pois_region ON pois(region_id);
	CREATE INDEX IF NOT EXISTS idx_pois_state ON pois(state);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// poiRow is the flat scan target for the pois table.
type poiRow struct {
	ID                 string   `db:"id"`
	Name               string   `db:"name"`
	Type               string   `db:"type"`
	State              string   `db:"state"`
	InteractionType    string   `db:"interaction_type"`
	Population         int      `db:"population"`
	MaxPopulation      int      `db:"max_population"`
	RegionID           string   `db:"region_id"`
	PosX               *float64 `db:"pos_x"`
	PosY               *float64 `db:"pos_y"`
	ControllingFaction *string  `db:"controlling_faction"`
	DefenseRating      float64  `db:"defense_rating"`
	LandArea           float64  `db:"land_area"`
	ClaimedJSON        string   `db:"claimed_json"`
	TagsJSON           string   `db:"tags_json"`
	ResourcesJSON      string   `db:"resources_json"`
	ProdModifiersJSON  string   `db:"prod_modifiers_json"`
	ConsModifiersJSON  string   `db:"cons_modifiers_json"`
	InfluencesJSON     string   `db:"influences_json"`
	EconomicJSON       string   `db:"economic_json"`
	AmenitiesJSON      string   `db:"amenities_json"`
	HousingJSON        string   `db:"housing_json"`
	MetadataJSON       string   `db:"metadata_json"`
	CreatedAt          string   `db:"created_at"`
	UpdatedAt          string   `db:"updated_at"`
}

// SavePOIs writes every POI to the database (full replace).
func (db *DB) SavePOIs(pois []*poi.PointOfInterest) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM pois"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO pois
		(id, name, type, state, interaction_type, population, max_population,
		 region_id, pos_x, pos_y, controlling_faction, defense_rating, land_area,
		 claimed_json, tags_json, resources_json, prod_modifiers_json,
		 cons_modifiers_json, influences_json, economic_json, amenities_json,
		 housing_json, metadata_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range pois {
		claimedJSON, _ := json.Marshal(p.ClaimedIDs)
		tagsJSON, _ := json.Marshal(p.Tags)
		resourcesJSON, _ := json.Marshal(p.Resources)
		prodJSON, _ := json.Marshal(p.ProdModifiers)
		consJSON, _ := json.Marshal(p.ConsModifiers)
		influencesJSON, _ := json.Marshal(p.Influences)
		economicJSON, _ := json.Marshal(p.EconomicMetrics)
		amenitiesJSON, _ := json.Marshal(p.Amenities)
		housingJSON, _ := json.Marshal(p.Housing)
		metadataJSON, _ := json.Marshal(p.Metadata)

		var posX, posY *float64
		if p.Coords != nil {
			posX, posY = &p.Coords.X, &p.Coords.Y
		}
		var faction *string
		if p.ControllingFaction != "" {
			f := string(p.ControllingFaction)
			faction = &f
		}

		_, err := stmt.Exec(
			p.ID, p.Name, string(p.Type), string(p.CurrentState), string(p.InteractionType),
			p.Population, p.MaxPopulation, p.RegionID, posX, posY, faction,
			p.DefenseRating, p.LandArea,
			string(claimedJSON), string(tagsJSON), string(resourcesJSON),
			string(prodJSON), string(consJSON), string(influencesJSON),
			string(economicJSON), string(amenitiesJSON), string(housingJSON),
			string(metadataJSON),
			p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert poi %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// LoadPOIs reads every stored POI.
func (db *DB) LoadPOIs() ([]*poi.PointOfInterest, error) {
	var rows []poiRow
	if err := db.conn.Select(&rows, "SELECT * FROM pois ORDER BY id"); err != nil {
		return nil, fmt.Errorf("load pois: %w", err)
	}

	out := make([]*poi.PointOfInterest, 0, len(rows))
	for _, r := range rows {
		p, err := r.toPOI()
		if err != nil {
			return nil, fmt.Errorf("decode poi %s: %w", r.ID, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r poiRow) toPOI() (*poi.PointOfInterest, error) {
	p := &poi.PointOfInterest{
		ID:              r.ID,
		Name:            r.Name,
		Type:            poi.Type(r.Type),
		CurrentState:    poi.State(r.State),
		InteractionType: poi.InteractionType(r.InteractionType),
		Population:      r.Population,
		MaxPopulation:   r.MaxPopulation,
		RegionID:        r.RegionID,
		DefenseRating:   r.DefenseRating,
		LandArea:        r.LandArea,
	}
	if r.PosX != nil && r.PosY != nil {
		p.Coords = &poi.Position{X: *r.PosX, Y: *r.PosY}
	}
	if r.ControllingFaction != nil {
		p.ControllingFaction = poi.FactionID(*r.ControllingFaction)
	}

	for _, step := range []struct {
		raw  string
		dest any
	}{
		{r.ClaimedJSON, &p.ClaimedIDs},
		{r.TagsJSON, &p.Tags},
		{r.ResourcesJSON, &p.Resources},
		{r.ProdModifiersJSON, &p.ProdModifiers},
		{r.ConsModifiersJSON, &p.ConsModifiers},
		{r.InfluencesJSON, &p.Influences},
		{r.EconomicJSON, &p.EconomicMetrics},
		{r.AmenitiesJSON, &p.Amenities},
		{r.HousingJSON, &p.Housing},
		{r.MetadataJSON, &p.Metadata},
	} {
		if step.raw == "" || step.raw == "null" {
			continue
		}
		if err := json.Unmarshal([]byte(step.raw), step.dest); err != nil {
			return nil, err
		}
	}

	var err error
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, r.CreatedAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, r.UpdatedAt); err != nil {
		return nil, err
	}
	if p.Resources == nil {
		p.Resources = make(map[poi.ResourceType]*poi.Stock)
	}
	if p.Influences == nil {
		p.Influences = make(map[poi.FactionID]*poi.FactionInfluence)
	}
	if p.Metadata == nil {
		p.Metadata = make(poi.Metadata)
	}
	return p, nil
}

// AppendEvent journals an event. Called from the bus subscriber; errors
// are logged rather than returned so a full disk cannot stall the day.
func (db *DB) AppendEvent(day int, ev event.Event) {
	payload, _ := json.Marshal(ev.Payload)
	_, err := db.conn.Exec(
		"INSERT INTO events (day, type, payload_json, timestamp) VALUES (?, ?, ?, ?)",
		day, ev.Type, string(payload), ev.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		slog.Error("journal event", "type", ev.Type, "error", err)
	}
}

// StoredEvent is one journaled event.
type StoredEvent struct {
	ID          int64  `db:"id"`
	Day         int    `db:"day"`
	Type        string `db:"type"`
	PayloadJSON string `db:"payload_json"`
	Timestamp   string `db:"timestamp"`
}

// EventsForDay reads the journal for one day, oldest first.
func (db *DB) EventsForDay(day int) ([]StoredEvent, error) {
	var out []StoredEvent
	err := db.conn.Select(&out,
		"SELECT * FROM events WHERE day = ? ORDER BY id", day)
	return out, err
}

// SetMeta stores a world metadata value.
func (db *DB) SetMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO world_meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// Meta reads a world metadata value; missing keys return "".
func (db *DB) Meta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM world_meta WHERE key = ?", key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

const metaDay = "day"

// SaveWorld snapshots the full world: every POI plus the day counter.
func (db *DB) SaveWorld(w *sim.World) error {
	if err := db.SavePOIs(w.All()); err != nil {
		return err
	}
	if err := db.SetMeta(metaDay, strconv.Itoa(w.Day)); err != nil {
		return err
	}
	slog.Info("world saved", "pois", w.Len(), "day", w.Day)
	return nil
}

// LoadWorld restores a snapshot. An empty database yields an empty world
// at day zero.
func (db *DB) LoadWorld() (*sim.World, error) {
	pois, err := db.LoadPOIs()
	if err != nil {
		return nil, err
	}
	w := sim.NewWorld()
	for _, p := range pois {
		w.Add(p)
	}
	if raw, err := db.Meta(metaDay); err != nil {
		return nil, err
	} else if raw != "" {
		if w.Day, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("bad stored day %q: %w", raw, err)
		}
	}
	return w, nil
}
