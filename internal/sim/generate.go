package sim

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/talgya/worldsim/internal/poi"
)

// GenConfig controls fresh world generation.
type GenConfig struct {
	Seed          int64
	Regions       int
	POIsPerRegion int
}

// DefaultGenConfig returns a small starting world.
func DefaultGenConfig(seed int64) GenConfig {
	return GenConfig{Seed: seed, Regions: 3, POIsPerRegion: 6}
}

var regionNames = []string{
	"heartlands", "ironvale", "mistmoor", "sunreach", "thornfell", "greywater",
}

var namePrefixes = []string{
	"Thorn", "Green", "Bridge", "Dim", "Iron", "Ash", "Raven", "Stone",
	"Mill", "Oak", "Salt", "Wolf",
}

var nameSuffixes = []string{
	"haven", "hollow", "water", "ford", "gate", "stead", "march", "brook",
}

var startingFactions = []poi.FactionID{
	"iron-pact", "silver-court", "veiled-hand",
}

// Generate builds a deterministic fresh world from the seed: a handful of
// regions, each with a spread of settlement types, light faction presence,
// and starting populations.
func Generate(cfg GenConfig) *World {
	rng := rand.New(rand.NewSource(cfg.Seed))
	w := NewWorld()

	types := []poi.Type{
		poi.TypeCity, poi.TypeTown, poi.TypeVillage, poi.TypeVillage,
		poi.TypeFarm, poi.TypeMine, poi.TypeOutpost,
	}

	for r := 0; r < cfg.Regions && r < len(regionNames); r++ {
		region := regionNames[r]
		originX := float64(r) * 200

		for i := 0; i < cfg.POIsPerRegion; i++ {
			t := types[rng.Intn(len(types))]
			if i == 0 {
				t = poi.TypeCity // every region gets an anchor city
			}
			p := poi.New(uuid.NewString(), generateName(rng), t)
			p.RegionID = region
			p.Coords = &poi.Position{
				X: originX + rng.Float64()*100,
				Y: rng.Float64() * 100,
			}
			p.MaxPopulation = maxPopFor(t, rng)
			p.Population = int(float64(p.MaxPopulation) * (0.5 + rng.Float64()*0.4))
			p.Tags = tagsFor(t, rng)
			p.DefenseRating = float64(rng.Intn(70))
			p.EconomicMetrics = &poi.EconomicMetrics{
				TradeIncome:  rng.Float64() * 500,
				TaxRate:      0.05 + rng.Float64()*0.1,
				Unemployment: rng.Float64() * 0.4,
				Industries:   rng.Intn(6),
			}
			housing := p.MaxPopulation / 4
			p.Housing = &poi.Housing{
				Total:     housing,
				Occupied:  p.Population / 4,
				Available: housing - p.Population/4,
			}

			// Roughly half the settlements start with a patron faction.
			if rng.Float64() < 0.5 {
				faction := startingFactions[rng.Intn(len(startingFactions))]
				fi := p.EnsureInfluence(faction)
				fi.Strength = 0.3 + rng.Float64()*0.4
				fi.Kind = poi.InfluencePolitical
				if fi.Strength >= 0.5 {
					p.ControllingFaction = faction
				}
			}

			w.Add(p)
		}
	}
	return w
}

func generateName(rng *rand.Rand) string {
	return fmt.Sprintf("%s%s",
		namePrefixes[rng.Intn(len(namePrefixes))],
		nameSuffixes[rng.Intn(len(nameSuffixes))])
}

func maxPopFor(t poi.Type, rng *rand.Rand) int {
	switch t {
	case poi.TypeCity:
		return 800 + rng.Intn(1200)
	case poi.TypeTown:
		return 300 + rng.Intn(400)
	case poi.TypeVillage:
		return 80 + rng.Intn(200)
	case poi.TypeFarm, poi.TypeMine:
		return 30 + rng.Intn(60)
	default:
		return 20 + rng.Intn(40)
	}
}

func tagsFor(t poi.Type, rng *rand.Rand) []string {
	switch t {
	case poi.TypeFarm:
		if rng.Float64() < 0.5 {
			return []string{"farming", "fertile"}
		}
		return []string{"farming"}
	case poi.TypeMine:
		return []string{"mining"}
	case poi.TypeVillage:
		if rng.Float64() < 0.3 {
			return []string{"forest"}
		}
	}
	return nil
}
