package ringchan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdtp/vitalink/internal/ringchan"
)

func TestRing_OverwritesOldestWhenFull(t *testing.T) {
	r := ringchan.New[int](3)

	for i := 1; i <= 5; i++ {
		require.True(t, r.Put(i))
	}
	r.Close()

	var got []int
	for v := range r.C() {
		got = append(got, v)
	}

	// Only the newest three survive.
	assert.Equal(t, []int{3, 4, 5}, got)

	stats := r.Stats()
	assert.Equal(t, int64(5), stats.Written)
	assert.Equal(t, int64(2), stats.Dropped)
}

func TestRing_PutAfterCloseIsCountedNoOp(t *testing.T) {
	r := ringchan.New[string](2)
	require.True(t, r.Put("a"))

	r.Close()
	r.Close() // idempotent

	assert.False(t, r.Put("late"))

	var got []string
	for v := range r.C() {
		got = append(got, v)
	}
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, int64(1), r.Stats().Dropped)
}

func TestRing_PanicsOnInvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { ringchan.New[int](0) })
}
