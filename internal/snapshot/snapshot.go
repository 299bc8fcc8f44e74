// Package snapshot captures the generated stub table and the counter list
// into a msgpack document. Snapshots are diagnostic artifacts: `kiln
// generate` writes one after a successful run, and crash reports reference
// captures by their identity string.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"kiln/internal/counters"
	"kiln/internal/stubs"
	"kiln/internal/version"
)

// Current schema version - increment when Payload format changes.
const schemaVersion uint16 = 1

// ErrSchema reports a snapshot written under an incompatible schema.
var ErrSchema = errors.New("snapshot: schema mismatch")

// StubEntry is one generated stub.
type StubEntry struct {
	ID    int
	Name  string
	Kind  uint8
	Entry uint64
	Size  int
}

// CounterEntry is one counter row at capture time.
type CounterEntry struct {
	Name  string
	Tag   uint8
	Value int64
}

// Payload is the snapshot document.
type Payload struct {
	// Schema guards against reading a document written by another version.
	Schema uint16
	// ID names this capture; crash reports cite it.
	ID        string
	Build     string
	CreatedAt time.Time
	Stubs     []StubEntry
	Counters  []CounterEntry
}

// Capture builds a payload from the generated stub registry and the counter
// list. Counter values are racy by nature; the capture is a point-in-time
// hint, not an account.
func Capture(reg *stubs.Registry, ctrs *counters.Registry) *Payload {
	p := &Payload{
		Schema:    schemaVersion,
		ID:        uuid.NewString(),
		Build:     version.Fingerprint(),
		CreatedAt: time.Now().UTC(),
	}
	for _, e := range reg.Entries() {
		p.Stubs = append(p.Stubs, StubEntry{
			ID:    int(e.ID),
			Name:  e.Name,
			Kind:  uint8(e.Kind),
			Entry: uint64(e.Entry),
			Size:  e.Blob.Size(),
		})
	}
	for _, st := range ctrs.Snapshot() {
		p.Counters = append(p.Counters, CounterEntry{Name: st.Name, Tag: uint8(st.Tag), Value: st.Value})
	}
	return p
}

// Write serializes the payload to path, replacing any previous snapshot
// atomically.
func Write(path string, p *Payload) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer os.Remove(f.Name())

	if err := msgpack.NewEncoder(f).Encode(p); err != nil {
		f.Close()
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return nil
}

// Read loads and schema-checks a snapshot.
func Read(path string) (*Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()

	var p Payload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	if p.Schema != schemaVersion {
		return nil, fmt.Errorf("%w: %s has schema %d, this build reads %d", ErrSchema, path, p.Schema, schemaVersion)
	}
	return &p, nil
}
