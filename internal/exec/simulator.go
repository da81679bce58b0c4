package exec

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridbot/internal/domain"
)

// Compile-time interface check.
var _ Executor = (*Simulator)(nil)

// Simulator implements Executor entirely in memory. Orders fill immediately
// at their stated price, less a proportional commission taken from cash.
type Simulator struct {
	mu         sync.Mutex
	cash       float64
	commission float64
	positions  map[string]*Position
	orders     map[string]*Order
}

// NewSimulator creates a Simulator with the given starting cash and
// commission rate (fraction of notional per fill).
func NewSimulator(cash, commissionRate float64) *Simulator {
	return &Simulator{
		cash:       cash,
		commission: commissionRate,
		positions:  make(map[string]*Position),
		orders:     make(map[string]*Order),
	}
}

// Name returns "simulator".
func (s *Simulator) Name() string { return "simulator" }

// SubmitOrder fills the order immediately at its price. Buys that cost more
// than available cash are rejected rather than leaving the account negative.
func (s *Simulator) SubmitOrder(_ context.Context, order *Order) (*Order, error) {
	if order.Size <= 0 || order.Price <= 0 {
		return nil, fmt.Errorf("invalid order: size %v at price %v", order.Size, order.Price)
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.SubmittedAt.IsZero() {
		order.SubmittedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	notional := order.Price * order.Size
	fee := notional * s.commission

	if order.Side == domain.SideBuy && notional+fee > s.cash {
		order.Status = OrderStatusRejected
		s.orders[order.ID] = order
		return order, fmt.Errorf("insufficient cash: need %.2f, have %.2f", notional+fee, s.cash)
	}

	s.applyFill(order)
	s.cash -= fee
	if order.Side == domain.SideBuy {
		s.cash -= notional
	} else {
		s.cash += notional
	}

	order.Status = OrderStatusFilled
	order.FilledAt = order.SubmittedAt
	s.orders[order.ID] = order
	return order, nil
}

// applyFill nets the fill into the symbol's position, realizing PnL on the
// reduced portion when the fill opposes the current holding.
func (s *Simulator) applyFill(order *Order) {
	pos, ok := s.positions[order.Symbol]
	if !ok {
		pos = &Position{Symbol: order.Symbol}
		s.positions[order.Symbol] = pos
	}

	delta := order.Size
	if order.Side == domain.SideSell {
		delta = -order.Size
	}

	switch {
	case pos.Size == 0 || sameSign(pos.Size, delta):
		// Extending: average the entry price over the combined size.
		total := math.Abs(pos.Size) + math.Abs(delta)
		pos.AvgPrice = (pos.AvgPrice*math.Abs(pos.Size) + order.Price*math.Abs(delta)) / total
		pos.Size += delta
	default:
		// Reducing, possibly flipping through flat.
		closed := math.Min(math.Abs(pos.Size), math.Abs(delta))
		if pos.Size > 0 {
			pos.RealizedPnL += (order.Price - pos.AvgPrice) * closed
		} else {
			pos.RealizedPnL += (pos.AvgPrice - order.Price) * closed
		}
		pos.Size += delta
		if pos.Size == 0 {
			pos.AvgPrice = 0
		} else if !sameSign(pos.Size-delta, pos.Size) {
			// Flipped: the remainder opened at the fill price.
			pos.AvgPrice = order.Price
		}
	}
}

// CancelOrder marks a pending order cancelled. Filled orders cannot be
// cancelled.
func (s *Simulator) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s not found", orderID)
	}
	if o.Status == OrderStatusFilled {
		return fmt.Errorf("order %s already filled", orderID)
	}
	o.Status = OrderStatusCancelled
	return nil
}

// Positions returns copies of all non-flat positions, sorted by symbol.
func (s *Simulator) Positions(_ context.Context) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Position
	for _, p := range s.positions {
		if p.Size != 0 {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// Account marks open positions at the supplied prices and returns cash and
// equity.
func (s *Simulator) Account(_ context.Context, marks map[string]float64) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	equity := s.cash
	for _, p := range s.positions {
		if p.Size == 0 {
			continue
		}
		price, ok := marks[p.Symbol]
		if !ok {
			price = p.AvgPrice
		}
		equity += p.Size * price
	}
	return &Account{Cash: s.cash, Equity: equity}, nil
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
