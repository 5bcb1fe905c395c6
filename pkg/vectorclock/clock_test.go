package vectorclock

import (
	"testing"

	"github.com/adrianco/the-goodies/pkg/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareBeforeAfter(t *testing.T) {
	a := Clock{"dev1": 1, "dev2": 2}
	b := Clock{"dev1": 2, "dev2": 2}

	assert.Equal(t, Before, Compare(a, b))
	assert.Equal(t, After, Compare(b, a))
}

func TestCompareEqual(t *testing.T) {
	a := Clock{"dev1": 1}
	b := Clock{"dev1": 1}
	assert.Equal(t, Equal, Compare(a, b))
}

func TestCompareConcurrent(t *testing.T) {
	a := Clock{"dev1": 2, "dev2": 1}
	b := Clock{"dev1": 1, "dev2": 2}
	assert.Equal(t, Concurrent, Compare(a, b))
}

func TestCompareMissingKeysDefaultToZero(t *testing.T) {
	a := Clock{"dev1": 1}
	b := Clock{"dev1": 1, "dev2": 1}
	assert.Equal(t, Before, Compare(a, b))
}

func TestMergeIsElementwiseMax(t *testing.T) {
	a := Clock{"dev1": 3, "dev2": 1}
	b := Clock{"dev1": 1, "dev2": 5, "dev3": 2}

	merged := Merge(a, b)
	assert.Equal(t, Clock{"dev1": 3, "dev2": 5, "dev3": 2}, merged)

	// Original clocks are untouched.
	assert.Equal(t, Clock{"dev1": 3, "dev2": 1}, a)
}

func TestAdvanceIncrementsOnlyNamedDevice(t *testing.T) {
	c := Clock{"dev1": 1, "dev2": 4}
	advanced := Advance(c, "dev1")

	assert.Equal(t, int64(2), advanced["dev1"])
	assert.Equal(t, int64(4), advanced["dev2"])
	assert.Equal(t, int64(1), c["dev1"], "Advance must not mutate its input")
}

func TestWireRoundTrip(t *testing.T) {
	c := Clock{"dev1": 7, "dev2": 0}
	wire := ToWire(c)
	back, err := FromWire(wire)
	require.NoError(t, err)
	assert.Equal(t, c, back)
}

func TestFromWireRejectsNonNumeric(t *testing.T) {
	_, err := FromWire(model.VectorClock{Clocks: map[string]string{"dev1": "not-a-number"}})
	assert.Error(t, err)
}

// genClock produces small random clocks over a fixed 3-device alphabet,
// biasing toward the shared-key case so Compare's Concurrent branch is
// actually exercised.
func genClock() gopter.Gen {
	devices := [3]string{"dev1", "dev2", "dev3"}
	return gen.SliceOfN(3, gen.Int64Range(0, 50)).Map(func(counters []int64) Clock {
		c := New()
		for i, name := range devices {
			c[name] = counters[i]
		}
		return c
	})
}

// TestVectorClockProperties checks that Compare is antisymmetric, that
// Merge is commutative, and that Advance increases the named device's
// counter by exactly one.
func TestVectorClockProperties(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping property-based test in short mode")
	}

	properties := gopter.NewProperties(nil)

	properties.Property("Compare is antisymmetric", prop.ForAll(
		func(a, b Clock) bool {
			r1 := Compare(a, b)
			r2 := Compare(b, a)
			switch r1 {
			case Before:
				return r2 == After
			case After:
				return r2 == Before
			case Equal:
				return r2 == Equal
			default:
				return r2 == Concurrent
			}
		},
		genClock(), genClock(),
	))

	properties.Property("Merge is commutative", prop.ForAll(
		func(a, b Clock) bool {
			m1 := Merge(a, b)
			m2 := Merge(b, a)
			if len(m1) != len(m2) {
				return false
			}
			for k, v := range m1 {
				if m2[k] != v {
					return false
				}
			}
			return true
		},
		genClock(), genClock(),
	))

	properties.Property("Advance strictly increases the advanced device's counter", prop.ForAll(
		func(c Clock) bool {
			advanced := Advance(c, "dev1")
			return advanced["dev1"] == c["dev1"]+1
		},
		genClock(),
	))

	properties.TestingRun(t)
}
