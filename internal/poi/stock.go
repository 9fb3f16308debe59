package poi

import "time"

// ResourceType enumerates the simulated resource kinds.
type ResourceType string

const (
	ResourceFood     ResourceType = "food"
	ResourceWater    ResourceType = "water"
	ResourceWood     ResourceType = "wood"
	ResourceStone    ResourceType = "stone"
	ResourceMetals   ResourceType = "metals"
	ResourceTools    ResourceType = "tools"
	ResourceCloth    ResourceType = "cloth"
	ResourceHerbs    ResourceType = "herbs"
	ResourceGems     ResourceType = "gems"
	ResourceGold     ResourceType = "gold"
	ResourceLuxuries ResourceType = "luxuries"
)

// AllResourceTypes lists every resource kind in a stable order.
var AllResourceTypes = []ResourceType{
	ResourceFood, ResourceWater, ResourceWood, ResourceStone, ResourceMetals,
	ResourceTools, ResourceCloth, ResourceHerbs, ResourceGems, ResourceGold,
	ResourceLuxuries,
}

// Stock is a quantity of one resource held at a POI. Part of the quantity
// may be reserved against pending trades; removal always checks the
// available amount, never the raw quantity.
type Stock struct {
	Quantity    float64   `json:"quantity"`
	Quality     float64   `json:"quality"`  // 0-1, quantity-weighted on additions
	Reserved    float64   `json:"reserved"` // held for in-flight trades
	LastUpdated time.Time `json:"last_updated"`
}

// Available returns the quantity not reserved for pending trades.
func (s *Stock) Available() float64 {
	avail := s.Quantity - s.Reserved
	if avail < 0 {
		return 0
	}
	return avail
}

// Add credits the stock, blending quality by quantity-weighted average.
// Negative amounts are ignored.
func (s *Stock) Add(amount, quality float64) {
	if amount <= 0 {
		return
	}
	if quality < 0 {
		quality = 0
	} else if quality > 1 {
		quality = 1
	}
	if s.Quantity <= 0 {
		s.Quality = quality
	} else {
		total := s.Quantity*s.Quality + amount*quality
		s.Quality = total / (s.Quantity + amount)
	}
	s.Quantity += amount
	s.LastUpdated = time.Now().UTC()
}

// Reserve holds part of the available quantity for a pending trade.
// Fails without mutation when the available amount is insufficient.
func (s *Stock) Reserve(amount float64) bool {
	if amount < 0 || amount > s.Available() {
		return false
	}
	s.Reserved += amount
	return true
}

// Release returns a reservation to the available pool.
func (s *Stock) Release(amount float64) {
	s.Reserved -= amount
	if s.Reserved < 0 {
		s.Reserved = 0
	}
}

// Remove debits the stock against the available amount. Fails without
// mutation when more than available is requested.
func (s *Stock) Remove(amount float64) bool {
	if amount < 0 || amount > s.Available() {
		return false
	}
	s.Quantity -= amount
	s.LastUpdated = time.Now().UTC()
	return true
}

// ConsumeReserved debits a previously reserved amount, releasing the
// reservation and the quantity together. Used when a trade settles.
func (s *Stock) ConsumeReserved(amount float64) bool {
	if amount < 0 || amount > s.Reserved || amount > s.Quantity {
		return false
	}
	s.Reserved -= amount
	s.Quantity -= amount
	s.LastUpdated = time.Now().UTC()
	return true
}
