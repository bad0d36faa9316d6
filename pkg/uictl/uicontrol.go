// Package uictl defines the small control interfaces front ends bind
// to without knowing what sits behind them.
package uictl

import "golang.org/x/exp/constraints"

// Number covers the element types level controls report.
type Number interface {
	constraints.Integer | constraints.Float
}

// Knob is a simple on/off toggle control.
type Knob interface {
	Read() bool
	On()
	Off()
	Toggle()
}

// Levels is a control that reads a vector of level values, one entry
// per channel.
type Levels[N Number] interface {
	Read() []N
}
