package poi

import "time"

// InfluenceKind categorizes how a faction projects power over a POI.
type InfluenceKind string

const (
	InfluenceMilitary  InfluenceKind = "military"
	InfluenceEconomic  InfluenceKind = "economic"
	InfluenceCultural  InfluenceKind = "cultural"
	InfluencePolitical InfluenceKind = "political"
	InfluenceCovert    InfluenceKind = "covert"
)

// FactionInfluence is one faction's hold over one POI. Owned by the POI;
// lifetime tied to it. Strength stays in [0,1].
type FactionInfluence struct {
	Strength    float64       `json:"strength"`
	Kind        InfluenceKind `json:"kind,omitempty"`
	Established time.Time     `json:"established"`
	LastUpdated time.Time     `json:"last_updated"`
	Actions     []string      `json:"actions,omitempty"` // recent action log, bounded
}

// maxInfluenceActions bounds the per-influence action log.
const maxInfluenceActions = 20

// RecordAction appends to the bounded action log and refreshes the
// update timestamp.
func (fi *FactionInfluence) RecordAction(action string) {
	fi.Actions = append(fi.Actions, action)
	if len(fi.Actions) > maxInfluenceActions {
		fi.Actions = fi.Actions[len(fi.Actions)-maxInfluenceActions:]
	}
	fi.LastUpdated = time.Now().UTC()
}
