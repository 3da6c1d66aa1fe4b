// Package uictl holds the small read-only control interfaces the terminal
// monitor polls. Implementations live next to the data they expose.
package uictl

import "golang.org/x/exp/constraints"

type Number interface {
	constraints.Integer | constraints.Float
}

// Knob is an on/off control, such as a stream endpoint.
type Knob interface {
	Read() bool
	On() error
	Off() error
	Toggle() error
}

// CappedDial reads a value together with its upper bound, such as ring fill
// against capacity.
type CappedDial[N Number] interface {
	Cap() (num, max N)
}

// Levels reads a window of recent values, oldest first.
type Levels[N Number] interface {
	Read() []N
}
