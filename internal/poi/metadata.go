package poi

import "time"

// Metadata is the free-form narrative/bookkeeping map carried by every POI.
// Services append structured history entries under well-known keys; readers
// tolerate missing or foreign entries.
type Metadata map[string]any

// Well-known metadata keys.
const (
	MetaWarDamage      = "war_damage_history"
	MetaMigration      = "migration_history"
	MetaLifecycle      = "lifecycle_events"
	MetaGovernment     = "government"
	MetaCulturalGroups = "cultural_groups"
)

// historyLimit bounds every per-POI history list.
const historyLimit = 50

// AppendHistory appends an entry to the named history list, trimming to the
// bound. Entries are timestamped if the caller did not set one.
func (m Metadata) AppendHistory(key string, entry map[string]any) {
	if m == nil {
		return
	}
	if _, ok := entry["timestamp"]; !ok {
		entry["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	list := m.History(key)
	list = append(list, entry)
	if len(list) > historyLimit {
		list = list[len(list)-historyLimit:]
	}
	m[key] = list
}

// History returns the named history list, or nil. Foreign-typed values under
// the key are treated as absent rather than an error: one POI's malformed
// metadata must not halt a batch.
func (m Metadata) History(key string) []map[string]any {
	if m == nil {
		return nil
	}
	switch v := m[key].(type) {
	case []map[string]any:
		return v
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, e := range v {
			if entry, ok := e.(map[string]any); ok {
				out = append(out, entry)
			}
		}
		return out
	default:
		return nil
	}
}

// StringValue reads a nested string from the metadata map, following the
// given key path. Returns "" when any step is missing or mistyped.
func (m Metadata) StringValue(path ...string) string {
	var cur any = map[string]any(m)
	for _, key := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			if meta, ok2 := cur.(Metadata); ok2 {
				node = map[string]any(meta)
			} else {
				return ""
			}
		}
		cur = node[key]
	}
	s, _ := cur.(string)
	return s
}
