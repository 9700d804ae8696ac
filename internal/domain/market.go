package domain

import "strings"

// Price precisions used by the markets: fiat quotes carry four fractional
// digits, crypto quotes eight.
const (
	FiatPricePrecision   uint32 = 4
	CryptoPricePrecision uint32 = 8
	AmountPrecision      uint32 = 8
)

// Market is one tradable pair. Markets are static: the table below is the
// complete set this node reports on, and Market values are always pointers
// into it.
type Market struct {
	Pair      string // e.g. "btc_eur"
	LeftCode  string // traded asset
	RightCode string // quote asset
	// PricePrecision is the fractional-digit count of prices on this
	// market.
	PricePrecision uint32
}

func fiatMarket(code string) *Market {
	return &Market{
		Pair:           "btc_" + strings.ToLower(code),
		LeftCode:       "BTC",
		RightCode:      code,
		PricePrecision: FiatPricePrecision,
	}
}

func cryptoMarket(code string) *Market {
	return &Market{
		Pair:           strings.ToLower(code) + "_btc",
		LeftCode:       code,
		RightCode:      "BTC",
		PricePrecision: CryptoPricePrecision,
	}
}

// Markets is the static market table: the fiat markets first, then the
// crypto markets, each group in alphabetical order of currency code.
var Markets = []*Market{
	fiatMarket("AUD"),
	fiatMarket("BRL"),
	fiatMarket("CAD"),
	fiatMarket("CHF"),
	fiatMarket("EUR"),
	fiatMarket("GBP"),
	fiatMarket("JPY"),
	fiatMarket("USD"),
	cryptoMarket("BSQ"),
	cryptoMarket("DASH"),
	cryptoMarket("DOGE"),
	cryptoMarket("ETH"),
	cryptoMarket("LTC"),
	cryptoMarket("XMR"),
}

var marketsByPair = func() map[string]*Market {
	m := make(map[string]*Market, len(Markets))
	for _, market := range Markets {
		m[market.Pair] = market
	}
	return m
}()

// MarketByPair resolves a pair name like "btc_eur". Returns nil when the
// pair is not in the table.
func MarketByPair(pair string) *Market {
	return marketsByPair[strings.ToLower(pair)]
}

// MarketForCurrencies resolves the market a gossiped payload belongs to
// from its base and counter currency codes. BTC-based pairs quote the
// counter currency; everything else trades against BTC.
func MarketForCurrencies(base, counter string) (*Market, bool) {
	base = strings.ToUpper(base)
	counter = strings.ToUpper(counter)
	var pair string
	if base == "BTC" {
		pair = "btc_" + strings.ToLower(counter)
	} else {
		pair = strings.ToLower(base) + "_btc"
	}
	m, ok := marketsByPair[pair]
	return m, ok
}
