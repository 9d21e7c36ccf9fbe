package common

import (
	"golang.org/x/exp/constraints"
)

type Atomic[T any] interface {
	Store(x T)
	Load() T
	CompareAndSwap(old T, new T) (swapped bool)
}

type AtomicNumeric[T constraints.Integer] interface {
	Atomic[T]
	Add(n T) T
	And(n T) T
	Or(n T) T
}

// AtomicMorph atomically replaces the value held by left with the result of
// applying fn to its current value, retrying on concurrent writers via
// CompareAndSwap, and returns fn's second (caller-chosen) result value.
func AtomicMorph[T any](left Atomic[T], fn func(startVal T) (val T, res T)) T {
	for {
		start := left.Load()
		newVal, res := fn(start)
		if left.CompareAndSwap(start, newVal) {
			return res
		}
	}
}

func AtomicSubtract[T constraints.Integer](left AtomicNumeric[T], right T) T {
	return AtomicMorph[T](left, func(startVal T) (val T, res T) {
		out := startVal - right
		return out, out
	})
}
