package resource

import "github.com/talgya/worldsim/internal/poi"

// baseProduction is the per-capita daily output by POI type. A type that
// does not produce a resource simply has no entry.
var baseProduction = map[poi.Type]map[poi.ResourceType]float64{
	poi.TypeFarm: {
		poi.ResourceFood:  0.50,
		poi.ResourceWater: 0.20,
		poi.ResourceHerbs: 0.05,
	},
	poi.TypeVillage: {
		poi.ResourceFood:  0.15,
		poi.ResourceWater: 0.20,
		poi.ResourceWood:  0.08,
		poi.ResourceHerbs: 0.02,
	},
	poi.TypeTown: {
		poi.ResourceFood:  0.08,
		poi.ResourceWater: 0.15,
		poi.ResourceWood:  0.05,
		poi.ResourceStone: 0.03,
		poi.ResourceTools: 0.02,
		poi.ResourceCloth: 0.03,
	},
	poi.TypeCity: {
		poi.ResourceWater:    0.12,
		poi.ResourceTools:    0.04,
		poi.ResourceCloth:    0.05,
		poi.ResourceLuxuries: 0.01,
		poi.ResourceGold:     0.02,
	},
	poi.TypeMine: {
		poi.ResourceStone:  0.30,
		poi.ResourceMetals: 0.20,
		poi.ResourceGems:   0.01,
	},
	poi.TypeOutpost: {
		poi.ResourceFood:  0.05,
		poi.ResourceWater: 0.10,
		poi.ResourceWood:  0.05,
	},
	poi.TypeCamp: {
		poi.ResourceFood:  0.05,
		poi.ResourceWater: 0.10,
	},
}

// productionInputs lists per-unit input requirements for crafted goods.
// Production of these is all-or-nothing: when any input falls short, the
// whole output for the tick is skipped and nothing is consumed.
var productionInputs = map[poi.ResourceType]map[poi.ResourceType]float64{
	poi.ResourceTools: {
		poi.ResourceMetals: 0.5,
		poi.ResourceWood:   0.2,
	},
	poi.ResourceCloth: {
		poi.ResourceHerbs: 0.3,
	},
	poi.ResourceLuxuries: {
		poi.ResourceGems: 0.2,
		poi.ResourceGold: 0.3,
	},
}

// baseConsumption is the per-capita daily demand.
var baseConsumption = map[poi.ResourceType]float64{
	poi.ResourceFood:  0.10,
	poi.ResourceWater: 0.15,
	poi.ResourceWood:  0.02,
	poi.ResourceCloth: 0.01,
	poi.ResourceTools: 0.005,
}

// spoilageRates is the daily fractional loss for perishables.
var spoilageRates = map[poi.ResourceType]float64{
	poi.ResourceFood:  0.02,
	poi.ResourceHerbs: 0.05,
}

// tagBoosts multiply production of a resource when the POI carries a tag.
var tagBoosts = map[string]map[poi.ResourceType]float64{
	"farming": {poi.ResourceFood: 1.5},
	"fertile": {poi.ResourceFood: 1.3, poi.ResourceHerbs: 1.3},
	"mining":  {poi.ResourceMetals: 1.5, poi.ResourceStone: 1.3},
	"forest":  {poi.ResourceWood: 1.5},
	"coastal": {poi.ResourceFood: 1.2, poi.ResourceWater: 1.5},
}

// stateModifier scales all production and consumption by lifecycle state.
func stateModifier(st poi.State) float64 {
	switch st {
	case poi.StateNormal:
		return 1.0
	case poi.StateDeclining:
		return 0.7
	case poi.StateRepopulating:
		return 0.8
	case poi.StateSpecial:
		return 1.0
	default: // abandoned, ruins, dungeon
		return 0
	}
}

// initialStocks seeds a freshly created POI with a few days of supplies per
// inhabitant.
var initialStocks = map[poi.ResourceType]float64{
	poi.ResourceFood:  1.0,
	poi.ResourceWater: 1.5,
	poi.ResourceWood:  0.5,
}
