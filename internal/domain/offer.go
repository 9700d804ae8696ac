package domain

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/tenzoki/peerx/internal/wire"
)

// CommandResult is a collaborator's verdict on a routed payload. Only an
// accepted payload is re-broadcast to other peers.
type CommandResult int

const (
	Ignored CommandResult = iota
	Accepted
)

func (r CommandResult) String() string {
	if r == Accepted {
		return "accepted"
	}
	return "ignored"
}

// OfferDirection is the side of the book an offer sits on.
type OfferDirection int

const (
	Buy OfferDirection = iota
	Sell
)

func (d OfferDirection) String() string {
	if d == Sell {
		return "sell"
	}
	return "buy"
}

// OpenOffer is one live offer as tracked by the offer book.
type OpenOffer struct {
	Hash      wire.PayloadHash
	ID        string
	Direction OfferDirection
	CreatedAt time.Time
	Sequence  int64
}

// OpenOfferFromEntry converts a gossiped storage entry into an open offer.
// Entries that do not carry an offer payload, or whose direction is out of
// range, convert to false.
func OpenOfferFromEntry(entry *wire.ProtectedStorageEntry) (*OpenOffer, bool) {
	payload := entry.StoragePayload.OfferPayload
	if payload == nil {
		return nil, false
	}
	var direction OfferDirection
	switch payload.Direction {
	case wire.DirectionBuy:
		direction = Buy
	case wire.DirectionSell:
		direction = Sell
	default:
		return nil, false
	}
	hash, err := wire.HashOfStoragePayload(&entry.StoragePayload)
	if err != nil {
		return nil, false
	}
	return &OpenOffer{
		Hash:      hash,
		ID:        payload.ID,
		Direction: direction,
		CreatedAt: time.UnixMilli(entry.CreationTimeStamp),
		Sequence:  entry.SequenceNumber,
	}, true
}

// OfferBook owns the set of open offers. Writers are the data router;
// readers are the query API. All methods are safe for concurrent use.
type OfferBook struct {
	mux    sync.RWMutex
	offers map[wire.PayloadHash]*OpenOffer
	debug  bool
}

// NewOfferBook creates an empty book.
func NewOfferBook(debug bool) *OfferBook {
	return &OfferBook{
		offers: make(map[wire.PayloadHash]*OpenOffer),
		debug:  debug,
	}
}

// Add admits an offer keyed by its content hash. An offer already present
// under the same hash is ignored.
func (b *OfferBook) Add(offer *OpenOffer) CommandResult {
	b.mux.Lock()
	defer b.mux.Unlock()

	if _, exists := b.offers[offer.Hash]; exists {
		return Ignored
	}
	b.offers[offer.Hash] = offer
	if b.debug {
		log.Printf("offer book: added %s %s (seq %d)", offer.Direction, offer.ID, offer.Sequence)
	}
	return Accepted
}

// Refresh bumps the sequence number of a known offer. The sequence must be
// strictly monotonic; a stale or duplicate refresh is ignored, as is a
// refresh for an unknown hash.
func (b *OfferBook) Refresh(sequence int64, hash wire.PayloadHash) CommandResult {
	b.mux.Lock()
	defer b.mux.Unlock()

	offer, exists := b.offers[hash]
	if !exists || sequence <= offer.Sequence {
		return Ignored
	}
	offer.Sequence = sequence
	if b.debug {
		log.Printf("offer book: refreshed %s to seq %d", offer.ID, sequence)
	}
	return Accepted
}

// Offers returns a snapshot of the book, oldest offer first.
func (b *OfferBook) Offers() []*OpenOffer {
	b.mux.RLock()
	defer b.mux.RUnlock()

	out := make([]*OpenOffer, 0, len(b.offers))
	for _, offer := range b.offers {
		copied := *offer
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len reports the number of open offers.
func (b *OfferBook) Len() int {
	b.mux.RLock()
	defer b.mux.RUnlock()
	return len(b.offers)
}
