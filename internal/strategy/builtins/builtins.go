// Package builtins provides the built-in strategy implementations that ship
// with gridbot.
package builtins

import "gridbot/internal/strategy"

// RegisterAll registers every built-in strategy factory on the given
// registry.
func RegisterAll(reg *strategy.Registry) error {
	for name, factory := range map[string]strategy.Factory{
		"grid":               NewGridTrend,
		"grid-hedge":         NewGridHedge,
		"bollinger-breakout": NewBollingerBreakout,
		"hedging":            NewHedging,
	} {
		if err := reg.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}
