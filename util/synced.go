package util

import "sync/atomic"

// SafeCounter is a counter safe to use concurrently.
type SafeCounter struct {
	value atomic.Int64
}

// NewSafeInt creates a counter starting at zero.
func NewSafeInt() *SafeCounter {
	return &SafeCounter{}
}

// Increment adds one and returns the new value.
func (si *SafeCounter) Increment() int {
	return int(si.value.Add(1))
}

// Value returns the current value of the counter.
func (si *SafeCounter) Value() int {
	return int(si.value.Load())
}

// SafeFlag is a boolean safe to use concurrently.
type SafeFlag struct {
	value atomic.Bool
}

// NewSafeBool creates a flag that starts false.
func NewSafeBool() *SafeFlag {
	return &SafeFlag{}
}

// Set stores newValue and reports whether it changed the flag.
func (sb *SafeFlag) Set(newValue bool) bool {
	return sb.value.Swap(newValue) != newValue
}

// Value returns the current value of the flag.
func (sb *SafeFlag) Value() bool {
	return sb.value.Load()
}
