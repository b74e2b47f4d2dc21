package replay

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pipguard/pipguard/broker"
	"github.com/pipguard/pipguard/internal/id"
	"github.com/pipguard/pipguard/market"
)

// simGateway is the deterministic broker used by the engine. Market orders
// fill at the requested price with no slippage; resting limit orders never
// self-fill, the entry queue drives every fill decision. Tickets come from
// a Sequence so two runs produce identical ledgers.
type simGateway struct {
	tickets *id.Sequence
	orders  *id.Sequence

	now       time.Time
	last      map[string]float64
	positions map[string]broker.PositionInfo
	pending   map[string]broker.OrderInfo
	balance   func() float64
}

func newSimGateway(balance func() float64) *simGateway {
	return &simGateway{
		tickets:   id.NewSequence("T"),
		orders:    id.NewSequence("O"),
		last:      make(map[string]float64),
		positions: make(map[string]broker.PositionInfo),
		pending:   make(map[string]broker.OrderInfo),
		balance:   balance,
	}
}

// advance moves the simulated clock and price tape.
func (s *simGateway) advance(now time.Time, instrument string, price float64) {
	s.now = now
	s.last[instrument] = price
}

func (s *simGateway) price(instrument string) (float64, bool) {
	p, ok := s.last[instrument]
	return p, ok
}

func (s *simGateway) GetTick(_ context.Context, instrument string) (market.Tick, error) {
	p, ok := s.last[instrument]
	if !ok {
		return market.Tick{}, market.ErrNoTick
	}
	return market.Tick{Instrument: instrument, Time: s.now, Bid: p, Ask: p}, nil
}

func (s *simGateway) GetCandles(_ context.Context, instrument, timeframe string, count int) ([]market.Candle, error) {
	return nil, fmt.Errorf("sim gateway serves no candles")
}

func (s *simGateway) PlaceMarketOrder(_ context.Context, req broker.OrderRequest) (broker.Fill, error) {
	price := req.Price
	if price == 0 {
		price = s.last[req.Instrument]
	}
	ticket := s.tickets.Next()
	s.positions[ticket] = broker.PositionInfo{
		Ticket:     ticket,
		Instrument: req.Instrument,
		Side:       req.Side,
		Lots:       req.Lots,
		OpenPrice:  price,
		Stop:       req.Stop,
		OpenTime:   s.now,
	}
	return broker.Fill{
		Ticket:     ticket,
		Instrument: req.Instrument,
		Side:       req.Side,
		Lots:       req.Lots,
		Price:      price,
		Time:       s.now,
	}, nil
}

func (s *simGateway) PlaceLimitOrder(_ context.Context, req broker.OrderRequest) (string, error) {
	orderID := s.orders.Next()
	s.pending[orderID] = broker.OrderInfo{
		OrderID:    orderID,
		Instrument: req.Instrument,
		Side:       req.Side,
		Lots:       req.Lots,
		Price:      req.Price,
		Stop:       req.Stop,
		CreatedAt:  s.now,
	}
	return orderID, nil
}

func (s *simGateway) CancelOrder(_ context.Context, orderID string) error {
	if _, ok := s.pending[orderID]; !ok {
		return broker.ErrNotFound
	}
	delete(s.pending, orderID)
	return nil
}

func (s *simGateway) ClosePosition(_ context.Context, ticket string, volume float64) (float64, error) {
	p, ok := s.positions[ticket]
	if !ok {
		return 0, broker.ErrNotFound
	}
	price := s.last[p.Instrument]
	if volume <= 0 || volume >= p.Lots {
		delete(s.positions, ticket)
		return price, nil
	}
	p.Lots -= volume
	s.positions[ticket] = p
	return price, nil
}

func (s *simGateway) ModifyStop(_ context.Context, ticket string, newStop float64) error {
	p, ok := s.positions[ticket]
	if !ok {
		return broker.ErrNotFound
	}
	p.Stop = newStop
	s.positions[ticket] = p
	return nil
}

func (s *simGateway) GetOpenPositions(_ context.Context) ([]broker.PositionInfo, error) {
	out := make([]broker.PositionInfo, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out, nil
}

func (s *simGateway) GetPendingOrders(_ context.Context) ([]broker.OrderInfo, error) {
	out := make([]broker.OrderInfo, 0, len(s.pending))
	for _, o := range s.pending {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out, nil
}

func (s *simGateway) GetAccount(_ context.Context) (broker.Account, error) {
	return broker.Account{ID: "SIM", Currency: "USD", Balance: s.balance(), Equity: s.balance()}, nil
}
