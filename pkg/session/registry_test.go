package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensemble-dev/ensemble/internal/chantest"
	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/events"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestAttachAssignsMonotonicIdentities(t *testing.T) {
	r := NewRegistry()

	s1 := r.Attach(chantest.New(), "puppet-a")
	s2 := r.Attach(chantest.New(), "puppet-b")
	assert.Equal(t, 1, s1.ID())
	assert.Equal(t, 2, s2.ID())
	assert.Equal(t, 2, r.Count())

	// Identities are never reused, even after the session is gone.
	r.Remove(s1.ID())
	waitFor(t, func() bool { return r.Count() == 1 })

	s3 := r.Attach(chantest.New(), "puppet-c")
	assert.Equal(t, 3, s3.ID())
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	s := r.Attach(chantest.New(), "puppet")

	r.Remove(s.ID())
	waitFor(t, func() bool { return r.Count() == 0 })
	r.Remove(s.ID()) // second remove races a detach notification; must be a no-op
	assert.Equal(t, 0, r.Count())
}

func TestSnapshotSurvivesMutation(t *testing.T) {
	r := NewRegistry()
	s1 := r.Attach(chantest.New(), "puppet-a")
	r.Attach(chantest.New(), "puppet-b")

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	r.Remove(s1.ID())
	waitFor(t, func() bool { return r.Count() == 1 })

	// The already-taken snapshot still lists both sessions, in attach order.
	require.Len(t, snap, 2)
	assert.Equal(t, "puppet-a", snap[0].Name())
	assert.Equal(t, "puppet-b", snap[1].Name())
}

func TestDetachFiresExactlyOnce(t *testing.T) {
	broker := events.NewBroker()
	ch, cancel := broker.Subscribe()
	defer cancel()

	r := NewRegistry(WithBroker(broker))
	conn := chantest.New()
	s := r.Attach(conn, "puppet")

	ev := <-ch
	require.Equal(t, domain.EventSessionAttached, ev.Type)

	// Voluntary close and link loss race onto the same path.
	r.Remove(s.ID())
	require.NoError(t, conn.Close())
	_ = s.Close()

	ev = <-ch
	assert.Equal(t, domain.EventSessionDetached, ev.Type)
	assert.Equal(t, s.ID(), ev.Session.ID)

	select {
	case extra := <-ch:
		t.Fatalf("detach notified more than once: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInboundFramesArriveInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	r := NewRegistry(WithFrameHandler(func(s *Session, frame []byte) {
		mu.Lock()
		got = append(got, string(frame))
		mu.Unlock()
	}))

	conn := chantest.New()
	r.Attach(conn, "puppet")

	for _, frame := range []string{"one", "two", "three"} {
		conn.Push([]byte(frame))
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"one", "two", "three"}, got)
}

func TestDetachHookRunsBeforeEvent(t *testing.T) {
	broker := events.NewBroker()
	ch, cancel := broker.Subscribe()
	defer cancel()

	var hooked []int
	var mu sync.Mutex
	r := NewRegistry(WithBroker(broker), WithDetachHook(func(id int) {
		mu.Lock()
		hooked = append(hooked, id)
		mu.Unlock()
	}))

	s := r.Attach(chantest.New(), "puppet")
	<-ch // attached

	r.Remove(s.ID())
	ev := <-ch
	require.Equal(t, domain.EventSessionDetached, ev.Type)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{s.ID()}, hooked)
}

func TestWriteAfterCloseFails(t *testing.T) {
	r := NewRegistry()
	conn := chantest.New()
	s := r.Attach(conn, "puppet")

	require.NoError(t, conn.Close())
	waitFor(t, func() bool { return r.Count() == 0 })

	err := s.Write(context.Background(), []byte("late"))
	assert.ErrorIs(t, err, domain.ErrSessionClosed)
}

func TestFindByName(t *testing.T) {
	r := NewRegistry()
	r.Attach(chantest.New(), "puppet-a")
	s := r.Attach(chantest.New(), "puppet-b")

	got, ok := r.FindByName("puppet-b")
	require.True(t, ok)
	assert.Equal(t, s.ID(), got.ID())

	_, ok = r.FindByName("puppet-z")
	assert.False(t, ok)
}
