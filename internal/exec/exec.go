// Package exec defines the Executor interface for routing orders produced by
// a strategy, and provides an in-memory simulator implementation.
package exec

import (
	"context"
	"time"

	"gridbot/internal/domain"
)

// OrderStatus tracks an order through its lifecycle.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Order is a request to trade a fixed size at a price.
type Order struct {
	ID          string
	Symbol      string
	Side        domain.Side
	Price       float64
	Size        float64
	Status      OrderStatus
	SubmittedAt time.Time
	FilledAt    time.Time
}

// Position is the net holding in one symbol. Size is signed: positive long,
// negative short. RealizedPnL accumulates as the position is reduced.
type Position struct {
	Symbol      string
	Size        float64
	AvgPrice    float64
	RealizedPnL float64
}

// Account is a snapshot of cash and marked-to-market equity.
type Account struct {
	Cash   float64
	Equity float64
}

// Executor routes orders for execution and reports resulting positions.
type Executor interface {
	// Name returns the executor identifier (e.g. "simulator").
	Name() string

	// SubmitOrder sends an order for execution and returns it with its
	// final status set.
	SubmitOrder(ctx context.Context, order *Order) (*Order, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error

	// Positions returns all non-flat positions.
	Positions(ctx context.Context) ([]Position, error)

	// Account returns cash and equity, marking open positions at the
	// supplied prices. Symbols missing a mark are valued at average cost.
	Account(ctx context.Context, marks map[string]float64) (*Account, error)
}
