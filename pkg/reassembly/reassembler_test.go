package reassembly

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frag(id string, index, total int, data string) Fragment {
	return Fragment{ID: id, Index: index, Total: total, Data: data}
}

func TestCompletesInOrder(t *testing.T) {
	r := New()

	_, done, err := r.Offer(1, frag("m", 0, 3, "hel"))
	require.NoError(t, err)
	assert.False(t, done)

	_, done, err = r.Offer(1, frag("m", 1, 3, "lo "))
	require.NoError(t, err)
	assert.False(t, done)

	msg, done, err := r.Offer(1, frag("m", 2, 3, "world"))
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, "hello world", string(msg))
	assert.Zero(t, r.Pending(), "completed buffer must be discarded")
}

func TestOrderIndependence(t *testing.T) {
	parts := []string{"a", "b", "c", "d", "e"}
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 10; trial++ {
		r := New()
		order := rng.Perm(len(parts))

		var got []byte
		completions := 0
		for _, idx := range order {
			msg, done, err := r.Offer(1, frag("m", idx, len(parts), parts[idx]))
			require.NoError(t, err)
			if done {
				completions++
				got = msg
			}
		}
		assert.Equal(t, 1, completions, "permutation %v", order)
		assert.Equal(t, "abcde", string(got), "permutation %v", order)
	}
}

func TestDuplicateFragmentIsDiscarded(t *testing.T) {
	r := New()

	// index 1, index 0, index 1 (dup), index 2: completes exactly once,
	// immediately after the third distinct fragment.
	_, done, err := r.Offer(1, frag("x", 1, 3, "B"))
	require.NoError(t, err)
	assert.False(t, done)

	_, done, err = r.Offer(1, frag("x", 0, 3, "A"))
	require.NoError(t, err)
	assert.False(t, done)

	_, done, err = r.Offer(1, frag("x", 1, 3, "ZZZ"))
	require.NoError(t, err)
	assert.False(t, done, "duplicate must not complete the message")

	msg, done, err := r.Offer(1, frag("x", 2, 3, "C"))
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, "ABC", string(msg), "duplicate payload must not replace the original slot")
}

func TestNoCrossSessionBleed(t *testing.T) {
	r := New()

	_, done, err := r.Offer(1, frag("m", 0, 2, "session-1-"))
	require.NoError(t, err)
	assert.False(t, done)

	// Same message id on another session must key a separate buffer.
	_, done, err = r.Offer(2, frag("m", 0, 2, "session-2-"))
	require.NoError(t, err)
	assert.False(t, done)

	msg, done, err := r.Offer(2, frag("m", 1, 2, "tail"))
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, "session-2-tail", string(msg))

	msg, done, err = r.Offer(1, frag("m", 1, 2, "tail"))
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, "session-1-tail", string(msg))
}

func TestRejectsOutOfRangeFragments(t *testing.T) {
	r := New()

	_, _, err := r.Offer(1, frag("m", 3, 3, "x"))
	assert.Error(t, err)

	_, _, err = r.Offer(1, frag("m", -1, 3, "x"))
	assert.Error(t, err)

	_, _, err = r.Offer(1, frag("m", 0, 0, "x"))
	assert.Error(t, err)
}

func TestRejectsTotalMismatchOnOpenBuffer(t *testing.T) {
	r := New()

	_, _, err := r.Offer(1, frag("m", 0, 3, "x"))
	require.NoError(t, err)

	_, _, err = r.Offer(1, frag("m", 1, 4, "y"))
	assert.Error(t, err)
	assert.Equal(t, 1, r.Pending(), "open buffer must survive the mismatch")
}

func TestDropSessionDiscardsPartials(t *testing.T) {
	r := New()

	for n := 0; n < 3; n++ {
		_, _, err := r.Offer(1, frag(fmt.Sprintf("m%d", n), 0, 2, "x"))
		require.NoError(t, err)
	}
	_, _, err := r.Offer(2, frag("other", 0, 2, "y"))
	require.NoError(t, err)

	assert.Equal(t, 3, r.DropSession(1))
	assert.Equal(t, 1, r.Pending(), "other sessions' buffers must survive")
}

func TestSweepIdleEvictsStaleBuffers(t *testing.T) {
	now := time.Now()
	clock := &now
	r := New(WithIdleTTL(time.Second), WithNow(func() time.Time { return *clock }))

	_, _, err := r.Offer(1, frag("stale", 0, 2, "x"))
	require.NoError(t, err)

	assert.Zero(t, r.SweepIdle(), "fresh buffer must not be evicted")

	later := now.Add(2 * time.Second)
	clock = &later
	_, _, err = r.Offer(1, frag("fresh", 0, 2, "y"))
	require.NoError(t, err)

	assert.Equal(t, 1, r.SweepIdle())
	assert.Equal(t, 1, r.Pending())
}
