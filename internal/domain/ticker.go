package domain

import (
	"sort"
	"time"
)

// Ticker is the 24-hour rollup of one market: the price of the most recent
// trade, the high and low inside the window, and the traded volumes on
// both sides of the pair. A market without any trade in the window still
// reports its last known price.
type Ticker struct {
	Market      *Market
	Last        *NumberWithPrecision
	High        *NumberWithPrecision
	Low         *NumberWithPrecision
	VolumeLeft  NumberWithPrecision
	VolumeRight NumberWithPrecision
}

func emptyTicker(market *Market) *Ticker {
	return &Ticker{Market: market, VolumeLeft: Zero, VolumeRight: Zero}
}

// tickersFromHistory walks the history newest-first. Trades inside the
// 24-hour window feed the full rollup; once past the window boundary only
// markets still missing a price get filled from their most recent older
// trade.
func tickersFromHistory(history *TradeHistory, market *Market, now time.Time) []Ticker {
	tickers := make(map[string]*Ticker)
	if market == nil {
		for _, m := range Markets {
			tickers[m.Pair] = emptyTicker(m)
		}
	} else {
		tickers[market.Pair] = emptyTicker(market)
	}

	earliest := now.Add(-24 * time.Hour)
	i := history.Len() - 1

	for ; i >= 0; i-- {
		trade := history.At(i)
		if trade.Timestamp.Before(earliest) {
			break
		}
		ticker, ok := tickers[trade.Market.Pair]
		if !ok {
			continue
		}
		if ticker.Last == nil {
			last := trade.Price
			ticker.Last = &last
		}
		if ticker.High == nil {
			high := trade.Price
			ticker.High = &high
		} else {
			high := ticker.High.Max(trade.Price)
			ticker.High = &high
		}
		if ticker.Low == nil {
			low := trade.Price
			ticker.Low = &low
		} else {
			low := ticker.Low.Min(trade.Price)
			ticker.Low = &low
		}
		ticker.VolumeLeft = ticker.VolumeLeft.Add(trade.Amount)
		ticker.VolumeRight = ticker.VolumeRight.Add(trade.Volume)
	}

	// Older trades only backfill a price for markets quiet in the window.
	missing := make(map[string]*Ticker)
	for pair, ticker := range tickers {
		if ticker.Last == nil {
			missing[pair] = ticker
		}
	}
	for ; i >= 0 && len(missing) > 0; i-- {
		trade := history.At(i)
		ticker, ok := missing[trade.Market.Pair]
		if !ok {
			continue
		}
		price := trade.Price
		ticker.Last = &price
		high, low := price, price
		ticker.High = &high
		ticker.Low = &low
		delete(missing, trade.Market.Pair)
	}

	out := make([]Ticker, 0, len(tickers))
	for _, ticker := range tickers {
		out = append(out, *ticker)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Market.Pair < out[j].Market.Pair })
	return out
}
