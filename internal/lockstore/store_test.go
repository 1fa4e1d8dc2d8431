package lockstore

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/iborker/iborker/internal/errors"
	"github.com/iborker/iborker/internal/testutil"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(testutil.LockDir(t), opts...)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	t.Run("creates nested directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b", "locks")

		s, err := New(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, s.Dir())
		assert.DirExists(t, dir)
	})

	t.Run("path blocked by a file", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "locks")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

		_, err := New(filepath.Join(blocker, "sub"))
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
		assert.Contains(t, err.Error(), blocker)
	})

	t.Run("empty dir", func(t *testing.T) {
		_, err := New("")
		assert.ErrorIs(t, err, errors.ErrStoreUnavailable)
	})
}

func TestTryClaim_Fresh(t *testing.T) {
	s := newTestStore(t)

	lock, err := s.TryClaim(context.Background(), 3, "history")
	require.NoError(t, err)
	assert.Equal(t, 3, lock.ClientID)
	assert.False(t, lock.Reclaimed)
	assert.Equal(t, s.MarkerPath(3), lock.Path())

	m, err := readMarker(3, lock.Path())
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), m.PID)
	assert.Equal(t, "history", m.Tool)
	assert.Equal(t, lock.Marker.Owner, m.Owner)
	assert.NotEmpty(t, m.Owner)
	assert.False(t, m.CreatedAt.IsZero())

	// No temporary files are left behind.
	names, err := filepath.Glob(filepath.Join(s.Dir(), ".claim-*"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestTryClaim_NegativeID(t *testing.T) {
	s := newTestStore(t)

	_, err := s.TryClaim(context.Background(), -1, "cli")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestTryClaim_LiveHolder(t *testing.T) {
	s := newTestStore(t)

	first, err := s.TryClaim(context.Background(), 7, "trader")
	require.NoError(t, err)

	_, err = s.TryClaim(context.Background(), 7, "trader")
	require.ErrorIs(t, err, errors.ErrAlreadyHeld)

	var held *HeldError
	require.ErrorAs(t, err, &held)
	assert.Equal(t, os.Getpid(), held.Marker.PID)
	assert.Equal(t, first.Marker.Owner, held.Marker.Owner)
	assert.Contains(t, err.Error(), "pid "+strconv.Itoa(os.Getpid()))
}

func TestTryClaim_Reclaim(t *testing.T) {
	tests := []struct {
		name    string
		write   func(t *testing.T, dir string)
		opts    []Option
		wantErr error
	}{
		{
			name: "dead owner",
			write: func(t *testing.T, dir string) {
				testutil.WriteMarker(t, dir, testutil.MarkerFile{ClientID: 5, PID: testutil.DeadPID(t)})
			},
		},
		{
			name: "recycled pid",
			write: func(t *testing.T, dir string) {
				// This process started long after the marker claims to have been written.
				testutil.WriteMarker(t, dir, testutil.MarkerFile{
					ClientID:  5,
					PID:       os.Getpid(),
					CreatedAt: time.Now().Add(-24 * time.Hour),
				})
			},
		},
		{
			name: "legacy marker with dead pid",
			write: func(t *testing.T, dir string) {
				testutil.WriteRawMarker(t, dir, 5, []byte(strconv.Itoa(testutil.DeadPID(t))+"\n"))
			},
		},
		{
			name: "old corrupt marker",
			write: func(t *testing.T, dir string) {
				path := testutil.WriteRawMarker(t, dir, 5, []byte("{not json"))
				testutil.Age(t, path, time.Minute)
			},
		},
		{
			name: "live owner",
			write: func(t *testing.T, dir string) {
				testutil.WriteMarker(t, dir, testutil.MarkerFile{ClientID: 5, PID: os.Getpid()})
			},
			wantErr: errors.ErrAlreadyHeld,
		},
		{
			name: "legacy marker with live pid",
			write: func(t *testing.T, dir string) {
				testutil.WriteRawMarker(t, dir, 5, []byte(strconv.Itoa(os.Getpid())))
			},
			wantErr: errors.ErrAlreadyHeld,
		},
		{
			name: "foreign host is never reclaimed",
			write: func(t *testing.T, dir string) {
				testutil.WriteMarker(t, dir, testutil.MarkerFile{
					ClientID: 5,
					PID:      testutil.DeadPID(t),
					Hostname: "some-other-host",
				})
			},
			wantErr: errors.ErrAlreadyHeld,
		},
		{
			name: "young empty marker is being written",
			write: func(t *testing.T, dir string) {
				testutil.WriteRawMarker(t, dir, 5, nil)
			},
			opts:    []Option{WithCorruptGrace(time.Hour)},
			wantErr: errors.ErrAlreadyHeld,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t, tt.opts...)
			tt.write(t, s.Dir())

			lock, err := s.TryClaim(context.Background(), 5, "cli")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.FileExists(t, s.MarkerPath(5))
				return
			}

			require.NoError(t, err)
			assert.True(t, lock.Reclaimed)
			m, err := readMarker(5, s.MarkerPath(5))
			require.NoError(t, err)
			assert.Equal(t, lock.Marker.Owner, m.Owner)
			assert.Equal(t, os.Getpid(), m.PID)
		})
	}
}

func TestTryClaim_GuardTimeout(t *testing.T) {
	s := newTestStore(t, WithGuardPoll(5*time.Millisecond))
	testutil.WriteMarker(t, s.Dir(), testutil.MarkerFile{ClientID: 1, PID: testutil.DeadPID(t)})

	// Another holder of the guard, as a hung process would be.
	other := newReclaimGuard(s.Dir())
	ok, err := other.tryLock()
	require.NoError(t, err)
	require.True(t, ok)
	defer func() { _ = other.unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = s.TryClaim(ctx, 1, "cli")
	require.ErrorIs(t, err, errors.ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	// The fast path does not need the guard.
	_, err = s.TryClaim(ctx, 2, "cli")
	assert.NoError(t, err)
}

func TestTryClaim_ConcurrentSameID(t *testing.T) {
	for _, stale := range []bool{false, true} {
		t.Run("stale="+strconv.FormatBool(stale), func(t *testing.T) {
			s := newTestStore(t)
			if stale {
				testutil.WriteMarker(t, s.Dir(), testutil.MarkerFile{ClientID: 9, PID: testutil.DeadPID(t)})
			}

			const workers = 16
			locks := make([]*Lock, workers)
			var g errgroup.Group
			for i := range workers {
				g.Go(func() error {
					lock, err := s.TryClaim(context.Background(), 9, "cli")
					if errors.Is(err, errors.ErrAlreadyHeld) {
						return nil
					}
					locks[i] = lock
					return err
				})
			}
			require.NoError(t, g.Wait())

			winners := 0
			for _, l := range locks {
				if l != nil {
					winners++
				}
			}
			assert.Equal(t, 1, winners)
		})
	}
}

func TestRelease(t *testing.T) {
	t.Run("removes own marker and is idempotent", func(t *testing.T) {
		s := newTestStore(t)
		lock, err := s.TryClaim(context.Background(), 2, "cli")
		require.NoError(t, err)

		require.NoError(t, s.Release(lock))
		assert.NoFileExists(t, lock.Path())
		assert.NoError(t, s.Release(lock))
	})

	t.Run("leaves a marker owned by another claim", func(t *testing.T) {
		s := newTestStore(t)
		lock, err := s.TryClaim(context.Background(), 2, "cli")
		require.NoError(t, err)

		// The marker was reclaimed and re-claimed by someone else.
		testutil.WriteMarker(t, s.Dir(), testutil.MarkerFile{ClientID: 2, PID: os.Getpid(), Owner: "someone-else"})

		require.NoError(t, s.Release(lock))
		assert.FileExists(t, lock.Path())
	})

	t.Run("nil lock", func(t *testing.T) {
		s := newTestStore(t)
		assert.NoError(t, s.Release(nil))
	})

	t.Run("freed id can be claimed again", func(t *testing.T) {
		s := newTestStore(t)
		lock, err := s.TryClaim(context.Background(), 4, "cli")
		require.NoError(t, err)
		require.NoError(t, s.Release(lock))

		again, err := s.TryClaim(context.Background(), 4, "cli")
		require.NoError(t, err)
		assert.False(t, again.Reclaimed)
		assert.NotEqual(t, lock.Marker.Owner, again.Marker.Owner)
	})
}

func TestInspectListClean(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.TryClaim(ctx, 12, "trader")
	require.NoError(t, err)
	testutil.WriteMarker(t, s.Dir(), testutil.MarkerFile{ClientID: 3, PID: testutil.DeadPID(t), Tool: "history"})
	corrupt := testutil.WriteRawMarker(t, s.Dir(), 21, []byte("garbage"))
	testutil.Age(t, corrupt, time.Minute)
	// Files that are not markers are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "client_abc.lock"), []byte("x"), 0644))

	entry, err := s.Inspect(12)
	require.NoError(t, err)
	assert.Equal(t, StatusHeld, entry.Status)
	assert.Equal(t, "trader", entry.Marker.Tool)

	_, err = s.Inspect(99)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []int{3, 12, 21}, []int{entries[0].ClientID, entries[1].ClientID, entries[2].ClientID})
	assert.Equal(t, StatusStale, entries[0].Status)
	assert.Equal(t, StatusHeld, entries[1].Status)
	assert.Equal(t, StatusCorrupt, entries[2].Status)
	assert.Nil(t, entries[2].Marker)

	freed, err := s.CleanStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 21}, freed)
	assert.Equal(t, []int{12}, testutil.MarkerIDs(t, s.Dir()))
}

func TestList_Canceled(t *testing.T) {
	s := newTestStore(t)
	_, err := s.TryClaim(context.Background(), 1, "cli")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.List(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithLiveness(t *testing.T) {
	dead := LivenessFunc(func(Marker) bool { return false })
	s := newTestStore(t, WithLiveness(dead))

	_, err := s.TryClaim(context.Background(), 1, "cli")
	require.NoError(t, err)

	// Every marker looks stale, so a second claim reclaims the first.
	lock, err := s.TryClaim(context.Background(), 1, "cli")
	require.NoError(t, err)
	assert.True(t, lock.Reclaimed)
}
