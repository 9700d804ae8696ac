// Package api serves the read-only query surface of the node: open offers,
// trade history and per-market tickers, all as JSON snapshots of the
// domain state. The API never mutates anything.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tenzoki/peerx/internal/domain"
	"github.com/tenzoki/peerx/internal/p2p"
)

// Server exposes the domain collaborators over HTTP.
type Server struct {
	offers *domain.OfferBook
	stats  *domain.StatsCache
	peers  *p2p.Peers
	debug  bool
}

// New wires the query API to its data sources.
func New(offers *domain.OfferBook, stats *domain.StatsCache, peers *p2p.Peers, debug bool) *Server {
	return &Server{offers: offers, stats: stats, peers: peers, debug: debug}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/offers", s.handleOffers).Methods(http.MethodGet)
	r.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
	r.HandleFunc("/ticker", s.handleTicker).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	return r
}

// ListenAndServe runs the API until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, port uint16) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.Router(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if s.debug {
		log.Printf("api: listening on :%d", port)
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type offerView struct {
	ID        string `json:"id"`
	Direction string `json:"direction"`
	CreatedAt string `json:"created_at"`
	Sequence  int64  `json:"sequence"`
}

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	offers := s.offers.Offers()
	views := make([]offerView, 0, len(offers))
	for _, offer := range offers {
		views = append(views, offerView{
			ID:        offer.ID,
			Direction: offer.Direction.String(),
			CreatedAt: offer.CreatedAt.UTC().Format(time.RFC3339),
			Sequence:  offer.Sequence,
		})
	}
	writeJSON(w, map[string]interface{}{"offers": views})
}

type tradeView struct {
	Market          string `json:"market"`
	Direction       string `json:"direction"`
	OfferID         string `json:"offer_id"`
	Price           string `json:"price"`
	Amount          string `json:"amount"`
	Volume          string `json:"volume"`
	PaymentMethodID string `json:"payment_method_id"`
	Timestamp       string `json:"timestamp"`
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(r)
	if !ok {
		http.Error(w, "unknown market", http.StatusBadRequest)
		return
	}
	trades := s.stats.Trades(market)
	views := make([]tradeView, 0, len(trades))
	for _, trade := range trades {
		views = append(views, tradeView{
			Market:          trade.Market.Pair,
			Direction:       trade.Direction.String(),
			OfferID:         trade.OfferID,
			Price:           trade.Price.Format(trade.Market.PricePrecision),
			Amount:          trade.Amount.Format(domain.AmountPrecision),
			Volume:          trade.Volume.Format(trade.Market.PricePrecision),
			PaymentMethodID: trade.PaymentMethodID,
			Timestamp:       trade.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, map[string]interface{}{"trades": views})
}

type tickerView struct {
	Market      string  `json:"market"`
	Last        *string `json:"last"`
	High        *string `json:"high"`
	Low         *string `json:"low"`
	VolumeLeft  string  `json:"volume_left"`
	VolumeRight string  `json:"volume_right"`
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(r)
	if !ok {
		http.Error(w, "unknown market", http.StatusBadRequest)
		return
	}
	tickers := s.stats.Tickers(market)
	views := make([]tickerView, 0, len(tickers))
	for _, t := range tickers {
		precision := t.Market.PricePrecision
		views = append(views, tickerView{
			Market:      t.Market.Pair,
			Last:        formatted(t.Last, precision),
			High:        formatted(t.High, precision),
			Low:         formatted(t.Low, precision),
			VolumeLeft:  t.VolumeLeft.Format(domain.AmountPrecision),
			VolumeRight: t.VolumeRight.Format(precision),
		})
	}
	writeJSON(w, map[string]interface{}{"tickers": views})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"peers":  s.peers.Len(),
		"offers": s.offers.Len(),
		"trades": s.stats.Len(),
	})
}

// marketParam resolves the optional market query parameter. Absence means
// all markets; an unknown pair is the caller's error.
func marketParam(r *http.Request) (*domain.Market, bool) {
	pair := r.URL.Query().Get("market")
	if pair == "" {
		return nil, true
	}
	market := domain.MarketByPair(pair)
	if market == nil {
		return nil, false
	}
	return market, true
}

func formatted(n *domain.NumberWithPrecision, precision uint32) *string {
	if n == nil {
		return nil
	}
	s := n.Format(precision)
	return &s
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}
