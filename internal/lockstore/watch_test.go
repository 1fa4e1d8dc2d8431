package lockstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watch event")
		return Event{}
	}
}

func TestWatch_ClaimAndRelease(t *testing.T) {
	s := newTestStore(t)
	w, err := s.Watch()
	require.NoError(t, err)
	defer w.Stop()

	lock, err := s.TryClaim(context.Background(), 4, "roll")
	require.NoError(t, err)

	ev := nextEvent(t, w)
	assert.Equal(t, EventClaimed, ev.Kind)
	assert.Equal(t, 4, ev.ClientID)
	require.NotNil(t, ev.Entry)
	require.NotNil(t, ev.Entry.Marker)
	assert.Equal(t, "roll", ev.Entry.Marker.Tool)
	assert.Equal(t, StatusHeld, ev.Entry.Status)

	require.NoError(t, s.Release(lock))

	ev = nextEvent(t, w)
	assert.Equal(t, EventReleased, ev.Kind)
	assert.Equal(t, 4, ev.ClientID)
	assert.Nil(t, ev.Entry)
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	s := newTestStore(t)
	w, err := s.Watch()
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "client_07.lock"), []byte("x"), 0644))

	lock, err := s.TryClaim(context.Background(), 9, "cli")
	require.NoError(t, err)
	defer func() { _ = s.Release(lock) }()

	ev := nextEvent(t, w)
	assert.Equal(t, 9, ev.ClientID)
}

func TestWatch_StopClosesEvents(t *testing.T) {
	s := newTestStore(t)
	w, err := s.Watch()
	require.NoError(t, err)

	w.Stop()
	w.Stop()

	_, ok := <-w.Events()
	assert.False(t, ok)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "claimed", EventClaimed.String())
	assert.Equal(t, "released", EventReleased.String())
}
