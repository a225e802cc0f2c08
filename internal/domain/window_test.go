package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowEvictsOldest(t *testing.T) {
	w := NewWindow[int](3)
	_, ok := w.Last()
	assert.False(t, ok)

	for i := 1; i <= 5; i++ {
		w.Push(i)
		assert.LessOrEqual(t, w.Len(), w.Cap())
	}
	assert.Equal(t, []int{3, 4, 5}, w.Values())

	last, ok := w.Last()
	require.True(t, ok)
	assert.Equal(t, 5, last)
}

func TestWindowValuesIsCopy(t *testing.T) {
	w := NewWindow[float64](2)
	w.Push(1)
	vals := w.Values()
	vals[0] = 99
	assert.Equal(t, []float64{1}, w.Values())
}

func TestWindowMinimumCapacity(t *testing.T) {
	w := NewWindow[string](0)
	w.Push("a")
	w.Push("b")
	assert.Equal(t, 1, w.Cap())
	assert.Equal(t, []string{"b"}, w.Values())
}

func TestParseInterval(t *testing.T) {
	for _, s := range []string{"5m", "1h", "4h"} {
		iv, err := ParseInterval(s)
		require.NoError(t, err)
		assert.Equal(t, s, iv.String())
	}
	_, err := ParseInterval("1m")
	assert.Error(t, err)

	assert.False(t, Interval5m.IsTrend())
	assert.True(t, Interval1h.IsTrend())
	assert.True(t, Interval4h.IsTrend())
}

func TestEMAStackComplete(t *testing.T) {
	s := EMAStack{15: 1, 30: 1, 45: 1}
	assert.False(t, s.Complete())
	s[60] = 1
	assert.True(t, s.Complete())

	c := s.Clone()
	c[15] = 2
	assert.Equal(t, 1.0, s[15])
}
