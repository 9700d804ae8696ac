// Package router classifies and deduplicates the gossip a node receives.
// Every payload is admitted at most once, keyed by its content hash;
// admitted offers and trade statistics are forwarded to their owning
// collaborators, and payloads a peer sent us are re-broadcast to everyone
// except that peer once the collaborator accepts them.
package router

import (
	"context"
	"errors"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tenzoki/peerx/internal/domain"
	"github.com/tenzoki/peerx/internal/p2p"
	"github.com/tenzoki/peerx/internal/wire"
)

// ErrMailboxClosed reports a dispatch against a router that has stopped.
var ErrMailboxClosed = errors.New("router mailbox closed")

// deliveredCap bounds the dedup set. Entries map a content hash to its
// first admission time and are never mutated afterwards; the cap evicts
// least recently touched hashes long after the network stopped
// re-delivering them.
const deliveredCap = 65536

const mailboxDepth = 64

// Broadcaster fans an accepted message out to the other peers.
type Broadcaster interface {
	Broadcast(msg wire.Message, except p2p.ConnectionID)
}

// BootstrapData is the authoritative data set a seed answered with.
type BootstrapData struct {
	Entries  []wire.StorageEntryWrapper
	Payloads []wire.PersistableNetworkPayload
}

// Dispatch is one unit of work for the router. Exactly one of the payload
// members is set. Origin is empty for bootstrap-sourced dispatches, which
// are never re-broadcast.
type Dispatch struct {
	Origin         p2p.ConnectionID
	Bootstrap      *BootstrapData
	AddData        *wire.AddDataMessage
	RefreshOffer   *wire.RefreshOfferMessage
	AddPersistable *wire.AddPersistableNetworkPayloadMessage
}

// Router is the single-task actor consuming dispatches. Collaborator calls
// never block its loop: results are observed asynchronously and only
// decide whether the original message fans out.
type Router struct {
	offers      *domain.OfferBook
	stats       *domain.StatsCache
	broadcaster Broadcaster
	delivered   *lru.Cache[wire.PayloadHash, time.Time]
	mailbox     chan Dispatch
	stopped     chan struct{}
	debug       bool
}

// New creates a router. It must be started before dispatches are accepted.
func New(offers *domain.OfferBook, stats *domain.StatsCache, broadcaster Broadcaster, debug bool) *Router {
	delivered, err := lru.New[wire.PayloadHash, time.Time](deliveredCap)
	if err != nil {
		// Only reachable with a non-positive capacity.
		panic(err)
	}
	return &Router{
		offers:      offers,
		stats:       stats,
		broadcaster: broadcaster,
		delivered:   delivered,
		mailbox:     make(chan Dispatch, mailboxDepth),
		stopped:     make(chan struct{}),
		debug:       debug,
	}
}

// Start runs the mailbox loop until ctx is cancelled.
func (r *Router) Start(ctx context.Context) {
	go func() {
		defer close(r.stopped)
		for {
			select {
			case d := <-r.mailbox:
				r.handle(d)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Deliver queues one dispatch. It blocks while the mailbox is full and
// fails once the router has stopped.
func (r *Router) Deliver(d Dispatch) error {
	select {
	case <-r.stopped:
		return ErrMailboxClosed
	default:
	}
	select {
	case r.mailbox <- d:
		return nil
	case <-r.stopped:
		return ErrMailboxClosed
	}
}

// Dispatch implements p2p.Dispatcher: it extracts the router-relevant
// payload kinds from inbound traffic. A GetDataResponse arriving outside a
// correlation waiter is treated as bootstrap-grade data.
func (r *Router) Dispatch(from p2p.ConnectionID, msg wire.Message) bool {
	var d Dispatch
	switch m := msg.(type) {
	case *wire.GetDataResponse:
		d = Dispatch{Bootstrap: &BootstrapData{
			Entries:  m.DataSet,
			Payloads: m.PersistableNetworkPayloadItems,
		}}
	case *wire.AddDataMessage:
		d = Dispatch{Origin: from, AddData: m}
	case *wire.RefreshOfferMessage:
		d = Dispatch{Origin: from, RefreshOffer: m}
	case *wire.AddPersistableNetworkPayloadMessage:
		d = Dispatch{Origin: from, AddPersistable: m}
	default:
		return false
	}
	if err := r.Deliver(d); err != nil {
		log.Printf("router: dropping %s from %s: %v", msg.Kind(), from, err)
	}
	return true
}

// resultHandler observes a collaborator's verdict on an admitted payload.
type resultHandler func(domain.CommandResult)

// ignoreResult is used for bootstrap-sourced payloads, which are admitted
// but never re-broadcast.
func ignoreResult(domain.CommandResult) {}

// rebroadcast fans the original message out when the collaborator accepted
// the payload, suppressing the peer it came from.
func (r *Router) rebroadcast(origin p2p.ConnectionID, original wire.Message) resultHandler {
	return func(result domain.CommandResult) {
		if result == domain.Accepted {
			r.broadcaster.Broadcast(original, origin)
		}
	}
}

func (r *Router) handle(d Dispatch) {
	switch {
	case d.Bootstrap != nil:
		for _, entry := range d.Bootstrap.Entries {
			r.routeEntry(entry, ignoreResult)
		}
		for _, payload := range d.Bootstrap.Payloads {
			payload := payload
			r.routePersistable(&payload, ignoreResult)
		}
	case d.AddData != nil:
		r.routeEntry(d.AddData.Entry, r.rebroadcast(d.Origin, d.AddData))
	case d.RefreshOffer != nil:
		r.routeRefresh(d.RefreshOffer, r.rebroadcast(d.Origin, d.RefreshOffer))
	case d.AddPersistable != nil:
		r.routePersistable(&d.AddPersistable.Payload, r.rebroadcast(d.Origin, d.AddPersistable))
	}
}

// admit inserts a hash into the delivered set. A hash already present
// means the payload was routed before and must be dropped silently.
func (r *Router) admit(hash wire.PayloadHash) bool {
	seen, _ := r.delivered.ContainsOrAdd(hash, time.Now())
	return !seen
}

// routeEntry admits one storage entry and forwards offer payloads to the
// offer book. Recognized kinds without a collaborator are deduplicated and
// dropped.
func (r *Router) routeEntry(wrapper wire.StorageEntryWrapper, handler resultHandler) {
	entry := wrapper.Entry()
	if entry == nil {
		return
	}
	hash, err := wire.HashOfStoragePayload(&entry.StoragePayload)
	if err != nil {
		log.Printf("router: unhashable storage entry: %v", err)
		return
	}
	if !r.admit(hash) {
		return
	}

	if entry.StoragePayload.OfferPayload != nil {
		offer, ok := domain.OpenOfferFromEntry(entry)
		if !ok {
			return
		}
		go func() {
			handler(r.offers.Add(offer))
		}()
	}
}

// routePersistable admits one self-hashed payload and forwards trade
// statistics to the stats cache.
func (r *Router) routePersistable(payload *wire.PersistableNetworkPayload, handler resultHandler) {
	hash, err := wire.HashOfPersistable(payload)
	if err != nil {
		log.Printf("router: unhashable persistable payload: %v", err)
		return
	}
	if !r.admit(hash) {
		return
	}

	if payload.TradeStatistics != nil {
		trade, ok := domain.TradeFromStatistics(payload.TradeStatistics)
		if !ok {
			return
		}
		go func() {
			handler(r.stats.Add(trade))
		}()
	}
}

// routeRefresh forwards a sequence bump to the offer book. Refreshes are
// not content-deduplicated; the book's monotonic sequence check decides.
func (r *Router) routeRefresh(msg *wire.RefreshOfferMessage, handler resultHandler) {
	hash, err := wire.Sha256FromSum(msg.HashOfPayload)
	if err != nil {
		log.Printf("router: refresh with bad payload hash: %v", err)
		return
	}
	sequence := msg.SequenceNumber
	go func() {
		handler(r.offers.Refresh(sequence, hash))
	}()
}
