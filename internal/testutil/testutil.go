// Package testutil provides testing utilities for iborker tests.
package testutil

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"testing"
	"time"
)

// LockDir returns a fresh lock directory that is removed when the test ends.
func LockDir(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "locks")
}

// DeadPID returns the PID of a process that has already exited. It runs the
// test binary itself with no tests selected and waits for it.
func DeadPID(t *testing.T) int {
	t.Helper()

	cmd := exec.Command(os.Args[0], "-test.run=^$")
	if err := cmd.Run(); err != nil {
		t.Fatalf("failed to run helper process: %v", err)
	}
	return cmd.ProcessState.Pid()
}

// MarkerFile is the JSON shape of a lock marker, written by tests that
// simulate other processes.
type MarkerFile struct {
	ClientID  int       `json:"client_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Owner     string    `json:"owner"`
	Tool      string    `json:"tool,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// WriteMarker writes client_<id>.lock into dir with the given content,
// creating dir if needed, and returns the marker path.
func WriteMarker(t *testing.T, dir string, m MarkerFile) string {
	t.Helper()

	if m.Owner == "" {
		m.Owner = "test-owner-" + strconv.Itoa(m.ClientID)
	}
	if m.Hostname == "" {
		m.Hostname = Hostname(t)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal marker: %v", err)
	}
	return WriteRawMarker(t, dir, m.ClientID, data)
}

// WriteRawMarker writes arbitrary bytes as the marker for clientID.
func WriteRawMarker(t *testing.T, dir string, clientID int, data []byte) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create lock dir: %v", err)
	}
	path := filepath.Join(dir, "client_"+strconv.Itoa(clientID)+".lock")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write marker: %v", err)
	}
	return path
}

// Age sets a file's modification time to d in the past.
func Age(t *testing.T, path string, d time.Duration) {
	t.Helper()

	past := time.Now().Add(-d)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("failed to age %s: %v", path, err)
	}
}

// Hostname returns the local hostname as the lock store records it.
func Hostname(t *testing.T) string {
	t.Helper()

	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// MarkerIDs returns the client IDs that currently have a marker in dir, in
// ascending order.
func MarkerIDs(t *testing.T, dir string) []int {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "client_*.lock"))
	if err != nil {
		t.Fatalf("failed to glob markers: %v", err)
	}

	var ids []int
	for _, m := range matches {
		name := filepath.Base(m)
		id, err := strconv.Atoi(name[len("client_") : len(name)-len(".lock")])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
