package resource

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/worldsim/internal/event"
	"github.com/talgya/worldsim/internal/poi"
)

// Bundle is a set of resource quantities moving together in a trade.
type Bundle map[poi.ResourceType]float64

// OfferStatus is the lifecycle stage of a trade offer.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
	OfferExpired  OfferStatus = "expired"
)

// TradeOffer is a proposed exchange: the seller's offered bundle is
// reserved from the moment the offer exists, so it cannot be consumed or
// double-sold while the buyer decides.
type TradeOffer struct {
	ID         string      `json:"id"`
	SellerID   string      `json:"seller_poi_id"`
	BuyerID    string      `json:"buyer_poi_id"`
	Offered    Bundle      `json:"offered"`
	Requested  Bundle      `json:"requested"`
	Status     OfferStatus `json:"status"`
	ExpiresDay int         `json:"expires_day"`
	CreatedAt  time.Time   `json:"created_at"`
}

var (
	// ErrOfferNotFound: no offer with that id.
	ErrOfferNotFound = errors.New("trade offer not found")
	// ErrOfferClosed: the offer is no longer pending.
	ErrOfferClosed = errors.New("trade offer already settled")
)

// CreateOffer registers a trade offer and reserves the offered bundle on
// the seller. A seller that cannot cover the full bundle gets an
// InsufficientResourceError and no partial reservation survives.
func (s *Service) CreateOffer(seller, buyer *poi.PointOfInterest, offered, requested Bundle, expiresDay int) (*TradeOffer, error) {
	if len(offered) == 0 || len(requested) == 0 {
		return nil, fmt.Errorf("both bundles must be non-empty")
	}
	for rt, amount := range offered {
		if amount <= 0 {
			return nil, ErrInvalidAmount
		}
		st := seller.Stock(rt)
		avail := 0.0
		if st != nil {
			avail = st.Available()
		}
		if avail < amount {
			return nil, &InsufficientResourceError{
				POIID: seller.ID, Resource: rt, Requested: amount, Available: avail,
			}
		}
	}
	for _, amount := range requested {
		if amount <= 0 {
			return nil, ErrInvalidAmount
		}
	}

	for rt, amount := range offered {
		seller.Stock(rt).Reserve(amount)
	}
	seller.Touch()

	offer := &TradeOffer{
		ID:         uuid.NewString(),
		SellerID:   seller.ID,
		BuyerID:    buyer.ID,
		Offered:    offered,
		Requested:  requested,
		Status:     OfferPending,
		ExpiresDay: expiresDay,
		CreatedAt:  time.Now().UTC(),
	}
	s.offers[offer.ID] = offer

	s.bus.Publish(event.TypeTradeOfferCreated, map[string]any{
		"offer_id":      offer.ID,
		"seller_poi_id": seller.ID,
		"buyer_poi_id":  buyer.ID,
		"offered":       bundleAmounts(offer.Offered),
		"requested":     bundleAmounts(offer.Requested),
		"expires_day":   expiresDay,
	})
	return offer, nil
}

// AcceptOffer settles a pending offer: the buyer's requested bundle and the
// seller's reserved bundle change hands together. If either side cannot
// cover its full bundle nothing moves and the offer stays pending. The
// seller is re-verified because spoilage can erode a reservation after the
// offer was made.
func (s *Service) AcceptOffer(offerID string, seller, buyer *poi.PointOfInterest) error {
	offer, ok := s.offers[offerID]
	if !ok {
		return ErrOfferNotFound
	}
	if offer.Status != OfferPending {
		return fmt.Errorf("%w: %s is %s", ErrOfferClosed, offerID, offer.Status)
	}

	for rt, amount := range offer.Requested {
		st := buyer.Stock(rt)
		avail := 0.0
		if st != nil {
			avail = st.Available()
		}
		if avail < amount {
			return &InsufficientResourceError{
				POIID: buyer.ID, Resource: rt, Requested: amount, Available: avail,
			}
		}
	}
	for rt, amount := range offer.Offered {
		st := seller.Stock(rt)
		held := 0.0
		if st != nil {
			held = math.Min(st.Reserved, st.Quantity)
		}
		if held < amount {
			return &InsufficientResourceError{
				POIID: seller.ID, Resource: rt, Requested: amount, Available: held,
			}
		}
	}

	// Both sides verified; settle. Quality travels with the goods.
	for rt, amount := range offer.Requested {
		st := buyer.Stock(rt)
		quality := st.Quality
		st.Remove(amount)
		seller.EnsureStock(rt).Add(amount, quality)
	}
	for rt, amount := range offer.Offered {
		st := seller.Stock(rt)
		quality := st.Quality
		st.ConsumeReserved(amount)
		buyer.EnsureStock(rt).Add(amount, quality)
	}
	seller.Touch()
	buyer.Touch()
	offer.Status = OfferAccepted

	s.bus.Publish(event.TypeTradeCompleted, map[string]any{
		"offer_id":      offer.ID,
		"seller_poi_id": seller.ID,
		"buyer_poi_id":  buyer.ID,
		"offered":       bundleAmounts(offer.Offered),
		"requested":     bundleAmounts(offer.Requested),
		"seller_totals": tradedTotals(seller, offer),
		"buyer_totals":  tradedTotals(buyer, offer),
	})
	return nil
}

// bundleAmounts flattens a bundle for an event payload.
func bundleAmounts(b Bundle) map[string]float64 {
	out := make(map[string]float64, len(b))
	for rt, amount := range b {
		out[string(rt)] = amount
	}
	return out
}

// tradedTotals reports a POI's post-settlement quantity of every resource
// the offer touched.
func tradedTotals(p *poi.PointOfInterest, offer *TradeOffer) map[string]float64 {
	out := make(map[string]float64, len(offer.Offered)+len(offer.Requested))
	for _, b := range []Bundle{offer.Offered, offer.Requested} {
		for rt := range b {
			if st := p.Stock(rt); st != nil {
				out[string(rt)] = st.Quantity
			} else {
				out[string(rt)] = 0
			}
		}
	}
	return out
}

// RejectOffer closes a pending offer and releases the seller's reservation.
func (s *Service) RejectOffer(offerID string, seller *poi.PointOfInterest) error {
	offer, ok := s.offers[offerID]
	if !ok {
		return ErrOfferNotFound
	}
	if offer.Status != OfferPending {
		return fmt.Errorf("%w: %s is %s", ErrOfferClosed, offerID, offer.Status)
	}
	s.releaseOffer(offer, seller)
	offer.Status = OfferRejected
	return nil
}

// ExpireOffers closes every pending offer due by the given day, releasing
// reservations. Returns the offers that expired.
func (s *Service) ExpireOffers(day int, lookup func(id string) *poi.PointOfInterest) []*TradeOffer {
	var expired []*TradeOffer
	for _, offer := range s.offers {
		if offer.Status != OfferPending || offer.ExpiresDay > day {
			continue
		}
		s.releaseOffer(offer, lookup(offer.SellerID))
		offer.Status = OfferExpired
		expired = append(expired, offer)
	}
	return expired
}

func (s *Service) releaseOffer(offer *TradeOffer, seller *poi.PointOfInterest) {
	if seller == nil {
		return
	}
	for rt, amount := range offer.Offered {
		if st := seller.Stock(rt); st != nil {
			st.Release(amount)
		}
	}
	seller.Touch()
}

// Offer returns an offer by id.
func (s *Service) Offer(id string) (*TradeOffer, error) {
	offer, ok := s.offers[id]
	if !ok {
		return nil, ErrOfferNotFound
	}
	return offer, nil
}
