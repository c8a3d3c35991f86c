package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-dev/ensemble/internal/chantest"
	"github.com/ensemble-dev/ensemble/pkg/session"
)

func TestDispatchReachesEverySession(t *testing.T) {
	reg := session.NewRegistry()
	conns := []*chantest.Channel{chantest.New(), chantest.New(), chantest.New()}
	for n, conn := range conns {
		reg.Attach(conn, string(rune('a'+n)))
	}

	b := New(reg)
	outcomes := b.Dispatch(context.Background(), [][]byte{[]byte("frame-1"), []byte("frame-2")})

	require.Len(t, outcomes, 3)
	for n, outcome := range outcomes {
		assert.True(t, outcome.OK(), "session %d should succeed", n)
		writes := conns[n].Writes()
		require.Len(t, writes, 2)
		assert.Equal(t, "frame-1", string(writes[0]))
		assert.Equal(t, "frame-2", string(writes[1]))
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	reg := session.NewRegistry()
	ok1 := chantest.New()
	bad := chantest.New()
	ok2 := chantest.New()
	reg.Attach(ok1, "ok-1")
	reg.Attach(bad, "bad")
	reg.Attach(ok2, "ok-2")

	bad.FailWrites(errors.New("radio dropout"))

	b := New(reg)
	outcomes := b.Dispatch(context.Background(), [][]byte{[]byte("cmd")})

	// Exactly one entry per live session, regardless of individual failures.
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].OK())
	assert.False(t, outcomes[1].OK())
	assert.Contains(t, outcomes[1].Error, "radio dropout")
	assert.True(t, outcomes[2].OK(), "a failing session must not block later sessions")
	assert.Len(t, ok2.Writes(), 1)
}

func TestDispatchStopsWritingToFailedSession(t *testing.T) {
	reg := session.NewRegistry()
	bad := chantest.New()
	reg.Attach(bad, "bad")
	bad.FailWrites(errors.New("gone"))

	b := New(reg)
	outcomes := b.Dispatch(context.Background(), [][]byte{[]byte("f0"), []byte("f1"), []byte("f2")})

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].OK())
	assert.Empty(t, bad.Writes(), "no further frames after the first failure")
}

func TestDispatchOrderMatchesSnapshotOrder(t *testing.T) {
	reg := session.NewRegistry()
	reg.Attach(chantest.New(), "first")
	reg.Attach(chantest.New(), "second")

	b := New(reg)
	outcomes := b.Dispatch(context.Background(), [][]byte{[]byte("cmd")})

	require.Len(t, outcomes, 2)
	assert.Equal(t, "first", outcomes[0].SessionName)
	assert.Equal(t, "second", outcomes[1].SessionName)
}

func TestDispatchWithNoSessions(t *testing.T) {
	b := New(session.NewRegistry())
	outcomes := b.Dispatch(context.Background(), [][]byte{[]byte("cmd")})
	assert.Empty(t, outcomes)
}
