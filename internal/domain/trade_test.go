package domain

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/peerx/internal/wire"
)

func statsPayload(offerID string, hashByte byte, date time.Time) *wire.TradeStatistics {
	return &wire.TradeStatistics{
		BaseCurrency:    "BTC",
		CounterCurrency: "EUR",
		Direction:       wire.DirectionBuy,
		TradePrice:      90000000, // 9000.0000
		TradeAmount:     100000000,
		TradeDate:       date.UnixMilli(),
		PaymentMethodID: "SEPA",
		OfferID:         offerID,
		Hash:            bytes.Repeat([]byte{hashByte}, wire.PersistentHashLen),
	}
}

func TestTradeFromStatistics(t *testing.T) {
	date := time.UnixMilli(1564140000000)
	trade, ok := TradeFromStatistics(statsPayload("offer-1", 0x01, date))
	require.True(t, ok)

	assert.Equal(t, "btc_eur", trade.Market.Pair)
	assert.Equal(t, Buy, trade.Direction)
	assert.Equal(t, "9000.0000", trade.Price.Format(4))
	assert.Equal(t, "1.00000000", trade.Amount.Format(8))
	assert.Equal(t, "9000.0000", trade.Volume.Format(4))
	assert.Equal(t, date, trade.Timestamp)
}

func TestTradeFromStatisticsUnknownMarket(t *testing.T) {
	payload := statsPayload("offer-1", 0x01, time.Now())
	payload.CounterCurrency = "XYZ"
	_, ok := TradeFromStatistics(payload)
	assert.False(t, ok)
}

func TestStatsCacheDeduplicatesByHash(t *testing.T) {
	cache := NewStatsCache()
	now := time.Now()

	first, ok := TradeFromStatistics(statsPayload("offer-1", 0x01, now))
	require.True(t, ok)
	same, ok := TradeFromStatistics(statsPayload("offer-other", 0x01, now))
	require.True(t, ok)
	other, ok := TradeFromStatistics(statsPayload("offer-2", 0x02, now))
	require.True(t, ok)

	assert.Equal(t, Accepted, cache.Add(first))
	assert.Equal(t, Ignored, cache.Add(same), "same persistent hash must be ignored")
	assert.Equal(t, Accepted, cache.Add(other))
	assert.Equal(t, 2, cache.Len())
}

func TestTradeHistoryOrdersByTimestamp(t *testing.T) {
	cache := NewStatsCache()
	base := time.UnixMilli(1564140000000)

	late, _ := TradeFromStatistics(statsPayload("late", 0x01, base.Add(2*time.Hour)))
	early, _ := TradeFromStatistics(statsPayload("early", 0x02, base))
	middle, _ := TradeFromStatistics(statsPayload("middle", 0x03, base.Add(time.Hour)))

	cache.Add(late)
	cache.Add(early)
	cache.Add(middle)

	trades := cache.Trades(nil)
	require.Len(t, trades, 3)
	assert.Equal(t, "early", trades[0].OfferID)
	assert.Equal(t, "middle", trades[1].OfferID)
	assert.Equal(t, "late", trades[2].OfferID)
}

func TestTickerRollup(t *testing.T) {
	now := time.Now()
	var history TradeHistory

	add := func(offerID string, hashByte byte, price int64, age time.Duration) {
		payload := statsPayload(offerID, hashByte, now.Add(-age))
		payload.TradePrice = price
		trade, ok := TradeFromStatistics(payload)
		require.True(t, ok)
		history.Insert(trade)
	}

	// Inside the 24h window.
	add("t1", 0x01, 90000000, 1*time.Hour)  // 9000.0000
	add("t2", 0x02, 80000000, 2*time.Hour)  // 8000.0000
	add("t3", 0x03, 95000000, 23*time.Hour) // 9500.0000
	// Outside the window; must not affect btc_eur.
	add("t4", 0x04, 70000000, 48*time.Hour)

	market := MarketByPair("btc_eur")
	require.NotNil(t, market)
	tickers := tickersFromHistory(&history, market, now)
	require.Len(t, tickers, 1)

	ticker := tickers[0]
	require.NotNil(t, ticker.Last)
	assert.Equal(t, "9000.0000", ticker.Last.Format(4), "last is the newest trade in the window")
	assert.Equal(t, "9500.0000", ticker.High.Format(4))
	assert.Equal(t, "8000.0000", ticker.Low.Format(4))
	assert.Equal(t, "3.00000000", ticker.VolumeLeft.Format(8))
}

func TestTickerBackfillsQuietMarkets(t *testing.T) {
	now := time.Now()
	var history TradeHistory

	payload := statsPayload("old", 0x01, now.Add(-72*time.Hour))
	trade, ok := TradeFromStatistics(payload)
	require.True(t, ok)
	history.Insert(trade)

	market := MarketByPair("btc_eur")
	tickers := tickersFromHistory(&history, market, now)
	require.Len(t, tickers, 1)

	ticker := tickers[0]
	require.NotNil(t, ticker.Last, "a quiet market still reports its last known price")
	assert.Equal(t, "9000.0000", ticker.Last.Format(4))
	assert.Equal(t, "0.00000000", ticker.VolumeLeft.Format(8), "backfill carries no volume")
}

func TestTickerAllMarketsIncludesEmpty(t *testing.T) {
	var history TradeHistory
	tickers := tickersFromHistory(&history, nil, time.Now())
	assert.Len(t, tickers, len(Markets))
	for _, ticker := range tickers {
		assert.Nil(t, ticker.Last)
	}
}
