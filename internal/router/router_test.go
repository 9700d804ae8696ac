package router

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tenzoki/peerx/internal/domain"
	"github.com/tenzoki/peerx/internal/p2p"
	"github.com/tenzoki/peerx/internal/wire"
)

type recordedBroadcast struct {
	msg    wire.Message
	except p2p.ConnectionID
}

// recordingBroadcaster captures fan-outs instead of touching the network.
type recordingBroadcaster struct {
	mux   sync.Mutex
	calls []recordedBroadcast
}

func (b *recordingBroadcaster) Broadcast(msg wire.Message, except p2p.ConnectionID) {
	b.mux.Lock()
	defer b.mux.Unlock()
	b.calls = append(b.calls, recordedBroadcast{msg: msg, except: except})
}

func (b *recordingBroadcaster) snapshot() []recordedBroadcast {
	b.mux.Lock()
	defer b.mux.Unlock()
	out := make([]recordedBroadcast, len(b.calls))
	copy(out, b.calls)
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// settle gives pending collaborator goroutines a chance to run before a
// negative assertion.
func settle() { time.Sleep(100 * time.Millisecond) }

func newTestRouter(t *testing.T) (*Router, *domain.OfferBook, *domain.StatsCache, *recordingBroadcaster) {
	t.Helper()
	offers := domain.NewOfferBook(false)
	stats := domain.NewStatsCache()
	broadcaster := &recordingBroadcaster{}
	r := New(offers, stats, broadcaster, false)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r.Start(ctx)
	return r, offers, stats, broadcaster
}

func offerWrapper(id string) wire.StorageEntryWrapper {
	return wire.StorageEntryWrapper{ProtectedStorageEntry: &wire.ProtectedStorageEntry{
		StoragePayload: wire.StoragePayload{OfferPayload: &wire.OfferPayload{
			ID:                  id,
			Direction:           wire.DirectionBuy,
			Price:               90000000,
			Amount:              100000000,
			BaseCurrencyCode:    "BTC",
			CounterCurrencyCode: "EUR",
			PaymentMethodID:     "SEPA",
			Date:                1564140000000,
		}},
		SequenceNumber:    1,
		CreationTimeStamp: 1564140000000,
	}}
}

func statsMessage(hashByte byte) *wire.AddPersistableNetworkPayloadMessage {
	return &wire.AddPersistableNetworkPayloadMessage{
		Payload: wire.PersistableNetworkPayload{TradeStatistics: &wire.TradeStatistics{
			BaseCurrency:    "BTC",
			CounterCurrency: "EUR",
			Direction:       wire.DirectionSell,
			TradePrice:      90000000,
			TradeAmount:     100000000,
			TradeDate:       time.Now().UnixMilli(),
			PaymentMethodID: "SEPA",
			OfferID:         "offer-1",
			Hash:            bytes.Repeat([]byte{hashByte}, wire.PersistentHashLen),
		}},
	}
}

func TestDedupAcrossPeers(t *testing.T) {
	r, offers, _, broadcaster := newTestRouter(t)

	msg := &wire.AddDataMessage{Entry: offerWrapper("offer-1")}
	connA := p2p.ConnectionID("conn-a")
	connB := p2p.ConnectionID("conn-b")

	if !r.Dispatch(connA, msg) {
		t.Fatal("router did not consume the message")
	}
	r.Dispatch(connB, msg)

	waitFor(t, "offer admission", func() bool { return offers.Len() == 1 })
	waitFor(t, "broadcast", func() bool { return len(broadcaster.snapshot()) == 1 })
	settle()

	calls := broadcaster.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one broadcast, got %d", len(calls))
	}
	if calls[0].except != connA {
		t.Errorf("broadcast must exclude the first origin, excluded %q", calls[0].except)
	}
	if offers.Len() != 1 {
		t.Errorf("offer book saw the payload more than once")
	}
}

func TestBootstrapDataIsNotRebroadcast(t *testing.T) {
	r, offers, stats, broadcaster := newTestRouter(t)

	err := r.Deliver(Dispatch{Bootstrap: &BootstrapData{
		Entries:  []wire.StorageEntryWrapper{offerWrapper("offer-1")},
		Payloads: []wire.PersistableNetworkPayload{statsMessage(0x01).Payload},
	}})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	waitFor(t, "offer admission", func() bool { return offers.Len() == 1 })
	waitFor(t, "trade admission", func() bool { return stats.Len() == 1 })
	settle()

	if calls := broadcaster.snapshot(); len(calls) != 0 {
		t.Errorf("bootstrap data must never be re-broadcast, saw %d broadcasts", len(calls))
	}
}

func TestPeerDeliveryAfterBootstrapIsSuppressed(t *testing.T) {
	r, offers, _, broadcaster := newTestRouter(t)

	err := r.Deliver(Dispatch{Bootstrap: &BootstrapData{
		Entries: []wire.StorageEntryWrapper{offerWrapper("offer-1")},
	}})
	if err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	waitFor(t, "offer admission", func() bool { return offers.Len() == 1 })

	// The same entry now arrives from a peer; the hash is already known.
	r.Dispatch("conn-a", &wire.AddDataMessage{Entry: offerWrapper("offer-1")})
	settle()

	if offers.Len() != 1 {
		t.Errorf("duplicate admission reached the offer book")
	}
	if calls := broadcaster.snapshot(); len(calls) != 0 {
		t.Errorf("suppressed payload was broadcast %d times", len(calls))
	}
}

func TestIgnoredResultSuppressesBroadcast(t *testing.T) {
	r, offers, _, broadcaster := newTestRouter(t)

	// Seed the book directly so admission passes dedup but the
	// collaborator answers Ignored.
	entry := offerWrapper("offer-1")
	offer, ok := domain.OpenOfferFromEntry(entry.Entry())
	if !ok {
		t.Fatal("test entry did not convert")
	}
	if offers.Add(offer) != domain.Accepted {
		t.Fatal("seeding the offer book failed")
	}

	r.Dispatch("conn-a", &wire.AddDataMessage{Entry: entry})
	settle()

	if calls := broadcaster.snapshot(); len(calls) != 0 {
		t.Errorf("ignored payload was broadcast %d times", len(calls))
	}
}

func TestPersistablePayloadRouting(t *testing.T) {
	r, _, stats, broadcaster := newTestRouter(t)

	msg := statsMessage(0x07)
	r.Dispatch("conn-a", msg)

	waitFor(t, "trade admission", func() bool { return stats.Len() == 1 })
	waitFor(t, "broadcast", func() bool { return len(broadcaster.snapshot()) == 1 })

	// Redelivery from another peer is dropped silently.
	r.Dispatch("conn-b", msg)
	settle()
	if stats.Len() != 1 {
		t.Errorf("stats cache saw the payload more than once")
	}
	if len(broadcaster.snapshot()) != 1 {
		t.Errorf("duplicate persistable payload was re-broadcast")
	}
}

func TestRefreshOfferBypassesDedup(t *testing.T) {
	r, offers, _, broadcaster := newTestRouter(t)

	entry := offerWrapper("offer-1")
	offer, ok := domain.OpenOfferFromEntry(entry.Entry())
	if !ok {
		t.Fatal("test entry did not convert")
	}
	offers.Add(offer)

	refresh := func(seq int64) *wire.RefreshOfferMessage {
		return &wire.RefreshOfferMessage{
			HashOfPayload:  offer.Hash.Bytes(),
			SequenceNumber: seq,
		}
	}

	r.Dispatch("conn-a", refresh(2))
	waitFor(t, "first refresh broadcast", func() bool { return len(broadcaster.snapshot()) == 1 })

	r.Dispatch("conn-a", refresh(3))
	waitFor(t, "second refresh broadcast", func() bool { return len(broadcaster.snapshot()) == 2 })

	// A stale sequence is ignored by the book and not fanned out.
	r.Dispatch("conn-a", refresh(3))
	settle()
	if len(broadcaster.snapshot()) != 2 {
		t.Errorf("stale refresh was broadcast")
	}
}

func TestUnroutedKindsAreNotConsumed(t *testing.T) {
	r, _, _, _ := newTestRouter(t)
	if r.Dispatch("conn-a", &wire.Pong{RequestNonce: 1}) {
		t.Error("router consumed a message kind it does not route")
	}
}

func TestOpaqueEntryDeduplicatedWithoutForwarding(t *testing.T) {
	r, offers, stats, broadcaster := newTestRouter(t)

	wrapper := wire.StorageEntryWrapper{ProtectedStorageEntry: &wire.ProtectedStorageEntry{
		StoragePayload: wire.StoragePayload{Opaque: []byte{1, 2, 3}},
	}}
	r.Dispatch("conn-a", &wire.AddDataMessage{Entry: wrapper})
	settle()

	if offers.Len() != 0 || stats.Len() != 0 {
		t.Errorf("opaque entry reached a collaborator")
	}
	if len(broadcaster.snapshot()) != 0 {
		t.Errorf("opaque entry was broadcast")
	}
}
