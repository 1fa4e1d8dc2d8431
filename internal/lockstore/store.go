// Package lockstore keeps one exclusive marker file per held client ID in a
// shared directory. It needs no daemon: every cooperating process claims,
// inspects and releases markers directly.
//
// A claim publishes a fully written temporary file with link(2), which fails
// when the marker already exists. Markers whose owner has died are reclaimed
// under a directory-wide flock(2) guard, so two processes can never both
// replace the same stale marker.
package lockstore

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/iborker/iborker/internal/errors"
	"github.com/iborker/iborker/internal/logging"
)

// DefaultCorruptGrace is how long an undecodable marker is left alone. The
// original tool creates its marker first and writes the PID afterwards, so a
// young empty marker is most likely being written.
const DefaultCorruptGrace = 2 * time.Second

// HeldError reports a claim that failed because a live process owns the marker.
type HeldError struct {
	Marker Marker
}

func (e *HeldError) Error() string {
	m := e.Marker
	if m.PID <= 0 {
		return fmt.Sprintf("client id %d: %v (marker is being written)", m.ClientID, errors.ErrAlreadyHeld)
	}
	if m.Hostname != "" {
		return fmt.Sprintf("client id %d: %v by pid %d on %s", m.ClientID, errors.ErrAlreadyHeld, m.PID, m.Hostname)
	}
	return fmt.Sprintf("client id %d: %v by pid %d", m.ClientID, errors.ErrAlreadyHeld, m.PID)
}

// Unwrap makes errors.Is(err, errors.ErrAlreadyHeld) hold.
func (e *HeldError) Unwrap() error { return errors.ErrAlreadyHeld }

// Lock is a claimed marker. It is released through Store.Release.
type Lock struct {
	ClientID int
	Marker   Marker
	// Reclaimed is set when the claim replaced a stale or corrupt marker.
	Reclaimed bool

	path string
}

// Path returns the marker file path.
func (l *Lock) Path() string { return l.path }

// Entry describes a marker found in the lock directory.
type Entry struct {
	ClientID int
	Path     string
	Status   Status
	// Marker is nil when Status is StatusCorrupt.
	Marker  *Marker
	ModTime time.Time
}

// Store is a directory of lock markers.
type Store struct {
	dir          string
	liveness     Liveness
	logger       *logging.Logger
	hostname     string
	pid          int
	guardPoll    time.Duration
	corruptGrace time.Duration
	now          func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLiveness replaces the process-table liveness check.
func WithLiveness(l Liveness) Option {
	return func(s *Store) { s.liveness = l }
}

// WithLogger sets the logger used for claim, reclaim and release events.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithGuardPoll sets the interval between reclaim guard attempts.
func WithGuardPoll(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.guardPoll = d
		}
	}
}

// WithCorruptGrace sets how long an undecodable marker is treated as held.
func WithCorruptGrace(d time.Duration) Option {
	return func(s *Store) { s.corruptGrace = d }
}

// New opens the lock directory at dir, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.NewStoreError("lock directory not configured", nil)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.NewStoreError("create lock directory", err).WithDir(dir)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	s := &Store{
		dir:          dir,
		logger:       logging.NopLogger(),
		hostname:     hostname,
		pid:          os.Getpid(),
		guardPoll:    DefaultGuardPoll,
		corruptGrace: DefaultCorruptGrace,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.liveness == nil {
		s.liveness = &ProcessLiveness{Hostname: hostname, Slack: DefaultStartSlack}
	}
	return s, nil
}

// Dir returns the lock directory.
func (s *Store) Dir() string { return s.dir }

// MarkerPath returns the marker path for a client ID.
func (s *Store) MarkerPath(clientID int) string {
	return filepath.Join(s.dir, MarkerName(clientID))
}

// TryClaim atomically claims clientID for this process. It fails with an
// error matching errors.ErrAlreadyHeld (a *HeldError) when a live process
// owns the marker, and with errors.ErrStoreUnavailable on I/O failure.
// ctx bounds only the wait for the reclaim guard.
func (s *Store) TryClaim(ctx context.Context, clientID int, tool string) (*Lock, error) {
	if clientID < 0 {
		return nil, errors.NewValidationError("client id must be non-negative").WithValue(clientID)
	}

	lock := &Lock{
		ClientID: clientID,
		Marker:   newMarker(clientID, tool, s.hostname, s.pid, s.now()),
		path:     s.MarkerPath(clientID),
	}

	err := s.publish(lock)
	if err == nil {
		s.logger.Debug("lock claimed", "client_id", clientID, "tool", tool)
		return lock, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return nil, errors.NewStoreError("publish marker", err).WithDir(s.dir).WithClientID(clientID)
	}

	return s.reclaim(ctx, lock)
}

// publish writes the marker to a temporary file and links it into place.
func (s *Store) publish(lock *Lock) error {
	data, err := encodeMarker(lock.Marker)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".claim-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Link(tmpPath, lock.path)
}

// reclaim re-examines an existing marker under the guard and replaces it if
// its owner is gone.
func (s *Store) reclaim(ctx context.Context, lock *Lock) (*Lock, error) {
	guard := newReclaimGuard(s.dir)
	if err := guard.lock(ctx, s.guardPoll); err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			return nil, err
		}
		return nil, errors.NewStoreError("acquire reclaim guard", err).WithDir(s.dir)
	}
	defer func() {
		if err := guard.unlock(); err != nil {
			s.logger.Warn("failed to release reclaim guard", "error", err.Error())
		}
	}()

	entry, err := s.inspect(lock.ClientID)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Released since the fast path saw it.
	case err != nil:
		return nil, errors.NewStoreError("read marker", err).WithDir(s.dir).WithClientID(lock.ClientID)
	case entry.Status == StatusHeld:
		return nil, &HeldError{Marker: *entry.Marker}
	case entry.Status == StatusCorrupt && s.now().Sub(entry.ModTime) < s.corruptGrace:
		return nil, &HeldError{Marker: Marker{ClientID: lock.ClientID}}
	default:
		if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
			return nil, errors.NewStoreError("remove stale marker", err).WithDir(s.dir).WithClientID(lock.ClientID)
		}
		lock.Reclaimed = true
		if entry.Marker != nil {
			s.logger.Warn("stale lock reclaimed",
				"client_id", lock.ClientID,
				"old_pid", entry.Marker.PID,
				"old_tool", entry.Marker.Tool,
			)
		} else {
			s.logger.Warn("corrupt lock reclaimed", "client_id", lock.ClientID)
		}
	}

	if err := s.publish(lock); err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return nil, errors.NewStoreError("publish marker", err).WithDir(s.dir).WithClientID(lock.ClientID)
		}
		// A fast-path claimer published between our remove and link.
		holder := Marker{ClientID: lock.ClientID}
		if m, readErr := readMarker(lock.ClientID, lock.path); readErr == nil {
			holder = *m
		}
		return nil, &HeldError{Marker: holder}
	}

	s.logger.Debug("lock claimed", "client_id", lock.ClientID, "tool", lock.Marker.Tool, "reclaimed", lock.Reclaimed)
	return lock, nil
}

// Release removes the lock's marker if this claim still owns it. A missing
// marker, or one owned by another claim, is left alone and is not an error.
// Safe to call multiple times.
func (s *Store) Release(lock *Lock) error {
	if lock == nil || lock.path == "" {
		return nil
	}

	existing, err := readMarker(lock.ClientID, lock.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, errors.ErrCorruptMarker) {
			return nil
		}
		return errors.NewStoreError("read marker", err).WithDir(s.dir).WithClientID(lock.ClientID)
	}

	if existing.Owner != lock.Marker.Owner {
		s.logger.Debug("lock not released: owned by another claim",
			"client_id", lock.ClientID,
			"owner_pid", existing.PID,
		)
		return nil
	}

	if err := os.Remove(lock.path); err != nil && !os.IsNotExist(err) {
		return errors.NewStoreError("remove marker", err).WithDir(s.dir).WithClientID(lock.ClientID)
	}

	s.logger.Debug("lock released", "client_id", lock.ClientID)
	return nil
}

// Inspect returns the marker for clientID with its liveness status. It
// returns an error matching fs.ErrNotExist when no marker exists.
func (s *Store) Inspect(clientID int) (*Entry, error) {
	entry, err := s.inspect(clientID)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.NewStoreError("read marker", err).WithDir(s.dir).WithClientID(clientID)
	}
	return entry, err
}

func (s *Store) inspect(clientID int) (*Entry, error) {
	path := s.MarkerPath(clientID)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	entry := &Entry{ClientID: clientID, Path: path, ModTime: info.ModTime()}

	m, err := readMarker(clientID, path)
	switch {
	case errors.Is(err, errors.ErrCorruptMarker):
		entry.Status = StatusCorrupt
		return entry, nil
	case err != nil:
		return nil, err
	}

	entry.Marker = m
	if s.liveness.Alive(*m) {
		entry.Status = StatusHeld
	} else {
		entry.Status = StatusStale
	}
	return entry, nil
}

// List returns every marker in the directory, ordered by client ID.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.NewStoreError("read lock directory", err).WithDir(s.dir)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if de.IsDir() {
			continue
		}
		id, ok := ParseMarkerName(de.Name())
		if !ok {
			continue
		}

		entry, err := s.inspect(id)
		if errors.Is(err, fs.ErrNotExist) {
			continue // released while listing
		}
		if err != nil {
			return nil, errors.NewStoreError("read marker", err).WithDir(s.dir).WithClientID(id)
		}
		entries = append(entries, *entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ClientID < entries[j].ClientID
	})
	return entries, nil
}

// Removable reports whether CleanStale would delete the entry.
func (s *Store) Removable(e Entry) bool {
	switch e.Status {
	case StatusStale:
		return true
	case StatusCorrupt:
		return s.now().Sub(e.ModTime) >= s.corruptGrace
	default:
		return false
	}
}

// CleanStale removes every stale marker, and every corrupt marker past the
// grace period, under the reclaim guard. It returns the freed client IDs.
func (s *Store) CleanStale(ctx context.Context) ([]int, error) {
	guard := newReclaimGuard(s.dir)
	if err := guard.lock(ctx, s.guardPoll); err != nil {
		if errors.Is(err, errors.ErrTimeout) {
			return nil, err
		}
		return nil, errors.NewStoreError("acquire reclaim guard", err).WithDir(s.dir)
	}
	defer func() { _ = guard.unlock() }()

	entries, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var freed []int
	for _, e := range entries {
		if !s.Removable(e) {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			return freed, errors.NewStoreError("remove stale marker", err).WithDir(s.dir).WithClientID(e.ClientID)
		}
		s.logger.Info("stale lock removed", "client_id", e.ClientID, "status", e.Status.String())
		freed = append(freed, e.ClientID)
	}
	return freed, nil
}
