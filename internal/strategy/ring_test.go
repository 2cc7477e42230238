package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingPushWithinCapacity(t *testing.T) {
	r := NewRing[int](4)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{1, 2, 3}, r.Values())
}

func TestRingEvictsOldestAtCapacity(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Push(4)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{2, 3, 4}, r.Values())
}

func TestRingLastAndAt(t *testing.T) {
	r := NewRing[string](2)
	_, ok := r.Last()
	assert.False(t, ok)

	r.Push("a")
	r.Push("b")
	r.Push("c")

	last, ok := r.Last()
	assert.True(t, ok)
	assert.Equal(t, "c", last)
	assert.Equal(t, "b", r.At(0))
	assert.Equal(t, "c", r.At(1))
}

func TestRingReset(t *testing.T) {
	r := NewRing[int](2)
	r.Push(1)
	r.Push(2)
	r.Reset()
	assert.Equal(t, 0, r.Len())
	r.Push(9)
	assert.Equal(t, []int{9}, r.Values())
}

func TestRingZeroCapacity(t *testing.T) {
	r := NewRing[int](0)
	r.Push(1)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Values())
}
