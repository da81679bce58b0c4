// Package strategy defines the Strategy interface for trading strategies,
// the canonical parameter merge/validate routine shared by every
// implementation, and a Registry for managing strategy factories.
package strategy

import (
	"fmt"
	"sort"
	"strings"

	"gridbot/internal/domain"
	"gridbot/internal/indicator"
)

// Params is a strategy's parameter map: name → numeric value. Integer-typed
// parameters (periods, level counts) are stored as floats and truncated at
// the point of use.
type Params map[string]float64

// Clone returns an independent copy of the parameter map.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Int returns the named parameter truncated to an int.
func (p Params) Int(name string) int {
	return int(p[name])
}

// Range describes the advisory value range of one parameter, used by the
// optimizer to discretise the search grid. Ranges never clamp signal
// generation; out-of-range values are accepted at the caller's risk.
type Range struct {
	Min  float64
	Max  float64
	Step float64
}

// MissingParamsError is a configuration error: one or more required
// parameters were absent after merging defaults and overrides.
type MissingParamsError struct {
	Missing []string
}

func (e *MissingParamsError) Error() string {
	return fmt.Sprintf("missing required parameters: %s", strings.Join(e.Missing, ", "))
}

// MergeParams merges overrides on top of defaults and validates that every
// required name is present, returning a MissingParamsError naming all absent
// parameters otherwise. This is the single parameter routine used by every
// strategy.
func MergeParams(defaults, overrides Params, required []string) (Params, error) {
	merged := defaults.Clone()
	for k, v := range overrides {
		merged[k] = v
	}

	var missing []string
	for _, name := range required {
		if _, ok := merged[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingParamsError{Missing: missing}
	}
	return merged, nil
}

// Strategy is the capability set every trading strategy implements.
//
// GenerateSignals is the bulk entry point used by the backtester: it maps a
// prepared frame to one signal per bar, using only bars up to and including
// each signal's own bar. Analyze is the per-bar entry point for live-style
// callers; it may keep run-internal state (such as the current position
// side), which Reset clears between independent runs.
type Strategy interface {
	// Name returns the registry identifier for this strategy.
	Name() string

	// Symbol returns the instrument this instance was constructed for.
	Symbol() string

	// Params returns a copy of the merged parameter map.
	Params() Params

	// SetParams replaces the overrides and re-validates against the
	// required set.
	SetParams(overrides Params) error

	// RequiredParams lists the parameter names that must be present.
	RequiredParams() []string

	// ParamRanges returns the advisory optimisation range per parameter.
	ParamRanges() map[string]Range

	// RequiredIndicators lists the frame columns the strategy reads.
	RequiredIndicators() []string

	// GenerateSignals maps a prepared frame to exactly one signal per bar.
	GenerateSignals(f *indicator.Frame) ([]domain.Signal, error)

	// Analyze inspects a single bar plus its indicator row and returns zero
	// or more signal intents.
	Analyze(bar domain.Bar, row map[string]float64) ([]domain.Signal, error)

	// Reset clears any run-internal state kept by Analyze.
	Reset()
}

// Base carries the shared identity and parameter plumbing embedded by every
// builtin strategy.
type Base struct {
	name     string
	symbol   string
	defaults Params
	required []string
	params   Params
}

// NewBase merges and validates parameters for a strategy instance. It fails
// with a MissingParamsError if a required parameter is absent.
func NewBase(name, symbol string, defaults Params, required []string, overrides Params) (Base, error) {
	merged, err := MergeParams(defaults, overrides, required)
	if err != nil {
		return Base{}, fmt.Errorf("strategy %s: %w", name, err)
	}
	return Base{
		name:     name,
		symbol:   symbol,
		defaults: defaults,
		required: required,
		params:   merged,
	}, nil
}

// Name returns the registry identifier.
func (b *Base) Name() string { return b.name }

// Symbol returns the instrument symbol.
func (b *Base) Symbol() string { return b.symbol }

// Params returns a copy of the merged parameters.
func (b *Base) Params() Params { return b.params.Clone() }

// RequiredParams lists the required parameter names.
func (b *Base) RequiredParams() []string { return b.required }

// SetParams re-merges the given overrides on top of the defaults,
// re-validating the required set. The previous parameters are kept on error.
func (b *Base) SetParams(overrides Params) error {
	merged, err := MergeParams(b.defaults, overrides, b.required)
	if err != nil {
		return fmt.Errorf("strategy %s: %w", b.name, err)
	}
	b.params = merged
	return nil
}

// P returns the named parameter value.
func (b *Base) P(name string) float64 { return b.params[name] }

// PInt returns the named parameter truncated to an int.
func (b *Base) PInt(name string) int { return int(b.params[name]) }
