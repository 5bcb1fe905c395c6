// Package vectorclock implements a causal comparator: a map from
// device identifier to a monotonically non-decreasing counter,
// combined into a causal ordering between any two observations.
package vectorclock

import (
	"fmt"
	"strconv"

	"github.com/adrianco/the-goodies/pkg/model"
)

// Clock is a device id -> counter map. A missing key is treated as 0
// rather than erroring.
type Clock map[string]int64

// New returns an empty clock.
func New() Clock {
	return make(Clock)
}

// Relation is the result of comparing two clocks.
type Relation int

const (
	Equal Relation = iota
	Before
	After
	Concurrent
)

func (r Relation) String() string {
	switch r {
	case Equal:
		return "Equal"
	case Before:
		return "Before"
	case After:
		return "After"
	case Concurrent:
		return "Concurrent"
	default:
		return "Unknown"
	}
}

// Clone returns an independent copy of c.
func (c Clock) Clone() Clock {
	out := make(Clock, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Compare classifies the causal relationship between a and b.
//
//   - Before iff for every key a[k] <= b[k] and some a[k] < b[k].
//   - After iff the symmetric condition holds.
//   - Equal iff all keys agree.
//   - Concurrent otherwise.
func Compare(a, b Clock) Relation {
	aLess, bLess := false, false

	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}

	for k := range keys {
		av, bv := a[k], b[k]
		if av < bv {
			aLess = true
		} else if av > bv {
			bLess = true
		}
	}

	switch {
	case !aLess && !bLess:
		return Equal
	case aLess && !bLess:
		return Before
	case !aLess && bLess:
		return After
	default:
		return Concurrent
	}
}

// Merge returns the element-wise maximum of a and b.
func Merge(a, b Clock) Clock {
	out := a.Clone()
	for k, v := range b {
		if v > out[k] {
			out[k] = v
		}
	}
	return out
}

// Advance returns a copy of clock with deviceID's counter incremented
// by one.
func Advance(clock Clock, deviceID string) Clock {
	out := clock.Clone()
	out[deviceID] = out[deviceID] + 1
	return out
}

// ToWire encodes c as the opaque-string wire representation used by
// model.VectorClock, so clock values stay independent of integer
// wraparound across the transport boundary.
func ToWire(c Clock) model.VectorClock {
	wire := model.VectorClock{Clocks: make(map[string]string, len(c))}
	for k, v := range c {
		wire.Clocks[k] = strconv.FormatInt(v, 10)
	}
	return wire
}

// FromWire decodes a model.VectorClock back into a Clock.
func FromWire(wire model.VectorClock) (Clock, error) {
	c := New()
	for k, v := range wire.Clocks {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("vectorclock: invalid counter %q for device %q: %w", v, k, err)
		}
		c[k] = n
	}
	return c, nil
}
