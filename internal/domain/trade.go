package domain

import (
	"sync"
	"time"

	"github.com/tenzoki/peerx/internal/wire"
)

// Trade is one completed trade as reported by the network's statistics
// gossip. Volume is always derived from price and amount.
type Trade struct {
	Market          *Market
	Direction       OfferDirection
	OfferID         string
	Price           NumberWithPrecision
	Amount          NumberWithPrecision
	Volume          NumberWithPrecision
	PaymentMethodID string
	Timestamp       time.Time
	Hash            wire.PayloadHash
}

// NewTrade assembles a trade, computing its volume.
func NewTrade(market *Market, direction OfferDirection, offerID string,
	price, amount NumberWithPrecision, paymentMethodID string,
	timestamp time.Time, hash wire.PayloadHash) *Trade {
	return &Trade{
		Market:          market,
		Direction:       direction,
		OfferID:         offerID,
		Price:           price,
		Amount:          amount,
		Volume:          price.Mul(amount),
		PaymentMethodID: paymentMethodID,
		Timestamp:       timestamp,
		Hash:            hash,
	}
}

// TradeFromStatistics converts a gossiped statistics payload into a trade.
// Payloads for unknown markets, bad directions or malformed hashes convert
// to false.
func TradeFromStatistics(stats *wire.TradeStatistics) (*Trade, bool) {
	market, ok := MarketForCurrencies(stats.BaseCurrency, stats.CounterCurrency)
	if !ok {
		return nil, false
	}
	var direction OfferDirection
	switch stats.Direction {
	case wire.DirectionBuy:
		direction = Buy
	case wire.DirectionSell:
		direction = Sell
	default:
		return nil, false
	}
	hash, err := wire.PersistentPayloadHash(stats.Hash)
	if err != nil {
		return nil, false
	}
	price := NewNumber(uint64(stats.TradePrice), market.PricePrecision)
	amount := NewNumber(uint64(stats.TradeAmount), AmountPrecision)
	return NewTrade(market, direction, stats.OfferID, price, amount,
		stats.PaymentMethodID, time.UnixMilli(stats.TradeDate), hash), true
}

// TradeHistory keeps trades ordered by timestamp, oldest first. New trades
// arrive mostly in order, so insertion scans from the rear.
type TradeHistory struct {
	trades []*Trade
}

// Insert places a trade at its timestamp position.
func (h *TradeHistory) Insert(trade *Trade) {
	for n := len(h.trades); ; n-- {
		if n == 0 || trade.Timestamp.After(h.trades[n-1].Timestamp) {
			h.trades = append(h.trades, nil)
			copy(h.trades[n+1:], h.trades[n:])
			h.trades[n] = trade
			return
		}
	}
}

// Len reports the number of recorded trades.
func (h *TradeHistory) Len() int { return len(h.trades) }

// At returns the i-th trade, oldest first.
func (h *TradeHistory) At(i int) *Trade { return h.trades[i] }

// StatsCache owns the trade history. The router writes, the query API
// reads; both sides go through the read/write lock and the lock is never
// held across anything that can block.
type StatsCache struct {
	mux    sync.RWMutex
	trades TradeHistory
	hashes map[wire.PayloadHash]struct{}
}

// NewStatsCache creates an empty cache.
func NewStatsCache() *StatsCache {
	return &StatsCache{hashes: make(map[wire.PayloadHash]struct{})}
}

// Add records a trade keyed by its persistent hash. A trade already seen
// is ignored.
func (c *StatsCache) Add(trade *Trade) CommandResult {
	c.mux.Lock()
	defer c.mux.Unlock()

	if _, exists := c.hashes[trade.Hash]; exists {
		return Ignored
	}
	c.hashes[trade.Hash] = struct{}{}
	c.trades.Insert(trade)
	return Accepted
}

// Trades returns a snapshot of the history, oldest first, optionally
// filtered to one market.
func (c *StatsCache) Trades(market *Market) []*Trade {
	c.mux.RLock()
	defer c.mux.RUnlock()

	out := make([]*Trade, 0, c.trades.Len())
	for i := 0; i < c.trades.Len(); i++ {
		trade := c.trades.At(i)
		if market == nil || trade.Market == market {
			out = append(out, trade)
		}
	}
	return out
}

// Tickers rolls the history up into per-market tickers. With a nil market
// every known market is reported, including ones without trades.
func (c *StatsCache) Tickers(market *Market) []Ticker {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return tickersFromHistory(&c.trades, market, time.Now())
}

// Len reports the number of recorded trades.
func (c *StatsCache) Len() int {
	c.mux.RLock()
	defer c.mux.RUnlock()
	return c.trades.Len()
}
