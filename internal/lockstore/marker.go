package lockstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/iborker/iborker/internal/errors"
)

const (
	markerPrefix = "client_"
	markerSuffix = ".lock"
)

// MarkerName returns the file name of the marker for a client ID.
func MarkerName(clientID int) string {
	return fmt.Sprintf("%s%d%s", markerPrefix, clientID, markerSuffix)
}

// ParseMarkerName extracts the client ID from a marker file name.
func ParseMarkerName(name string) (int, bool) {
	if !strings.HasPrefix(name, markerPrefix) || !strings.HasSuffix(name, markerSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, markerPrefix), markerSuffix)
	id, err := strconv.Atoi(digits)
	if err != nil || id < 0 || strconv.Itoa(id) != digits {
		return 0, false
	}
	return id, true
}

// Marker is the content of a lock file.
type Marker struct {
	ClientID  int       `json:"client_id"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Owner     string    `json:"owner"`
	Tool      string    `json:"tool,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Legacy is set for markers written by the original tool, which hold
	// only the owner's PID as text.
	Legacy bool `json:"-"`
}

// Holder converts the marker into the holder description used in
// allocation errors.
func (m Marker) Holder() errors.LiveHolder {
	return errors.LiveHolder{ClientID: m.ClientID, PID: m.PID, Hostname: m.Hostname}
}

func newMarker(clientID int, tool, hostname string, pid int, now time.Time) Marker {
	return Marker{
		ClientID:  clientID,
		PID:       pid,
		Hostname:  hostname,
		Owner:     xid.New().String(),
		Tool:      tool,
		CreatedAt: now.UTC(),
	}
}

func encodeMarker(m Marker) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// decodeMarker parses marker content. A bare integer is accepted as a
// legacy marker; anything else that is not a JSON marker yields ErrCorruptMarker.
func decodeMarker(clientID int, data []byte) (*Marker, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.Wrapf(errors.ErrCorruptMarker, "client_%d: empty marker", clientID)
	}

	if pid, err := strconv.Atoi(string(trimmed)); err == nil {
		return &Marker{ClientID: clientID, PID: pid, Legacy: true}, nil
	}

	var m Marker
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, errors.Wrapf(errors.ErrCorruptMarker, "client_%d: %v", clientID, err)
	}
	if m.ClientID != clientID || m.PID <= 0 {
		return nil, errors.Wrapf(errors.ErrCorruptMarker, "client_%d: marker names client %d pid %d", clientID, m.ClientID, m.PID)
	}
	return &m, nil
}

// readMarker reads and decodes the marker at path. File system errors are
// returned unchanged so callers can test for fs.ErrNotExist.
func readMarker(clientID int, path string) (*Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeMarker(clientID, data)
}
