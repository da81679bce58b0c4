package exec

import (
	"context"
	"fmt"

	"gridbot/internal/backtest"
)

// ReplayTrades feeds a recorded trade log through an executor in submission
// order. A net-position run replayed into a fresh Simulator with the same
// starting cash and commission rate reproduces its final capital exactly,
// since entries and closes both settle signed notional less commission.
func ReplayTrades(ctx context.Context, ex Executor, symbol string, trades []backtest.Trade) error {
	for i := range trades {
		t := &trades[i]
		if _, err := ex.SubmitOrder(ctx, &Order{
			Symbol:      symbol,
			Side:        t.Side,
			Price:       t.Price,
			Size:        t.Size,
			SubmittedAt: t.Timestamp,
		}); err != nil {
			return fmt.Errorf("replaying trade %d (%s %v@%v): %w", i, t.Side, t.Size, t.Price, err)
		}
	}
	return nil
}
