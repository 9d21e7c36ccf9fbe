// Package resumable implements the process-wide Resumable Download
// Store (spec.md §4.4): a URL-keyed registry of {validator, offset}
// for transfers that failed mid-stream, so a subsequent request can
// resume via Range/If-Range instead of restarting from zero.
package resumable

import (
	"bytes"
	"context"
	"encoding/gob"
	"os"
	"sync"
	"time"

	"github.com/Azure/go-autorest/autorest/date"
)

const flushInterval = 10 * time.Second

// Checkpoint is what the store remembers about one partially
// downloaded URL.
type Checkpoint struct {
	// Validator is the ETag (or, failing that, the formatted
	// Last-Modified) the server reported for the in-progress transfer;
	// sent back as If-Range on resume.
	Validator string
	// Offset is the number of bytes already received; always equal to
	// len(Data).
	Offset int64
	// Data is the bytes already received, so a resumed transfer can
	// reassemble the full resource from this prefix plus whatever the
	// DataLoader delivers on top of it (spec §4.4): a 206 response only
	// hands the new tail to onChunk, never the bytes the server thinks
	// the client already has.
	Data []byte
}

// Store is a URL -> Checkpoint registry, persisted to a single gob
// file on a periodic ticker (grounded on the teacher's checkpoint-blob
// flush loop) so an abrupt process exit loses at most one flush
// interval's worth of resumability, never correctness (a stale or
// missing checkpoint just means "start over from zero").
type Store struct {
	mu       sync.Mutex
	entries  map[string]Checkpoint
	path     string
	dirty    bool
	log      func(string)
}

// Open loads path if it exists (a missing or corrupt file just starts
// empty) and starts the background flush loop tied to ctx.
func Open(ctx context.Context, path string, log func(string)) (*Store, error) {
	if log == nil {
		log = func(string) {}
	}
	s := &Store{entries: make(map[string]Checkpoint), path: path, log: log}
	if path != "" {
		if buf, err := os.ReadFile(path); err == nil {
			dec := gob.NewDecoder(bytes.NewReader(buf))
			_ = dec.Decode(&s.entries)
		}
		go s.flushLoop(ctx)
	}
	return s, nil
}

// Record saves or replaces url's checkpoint after a failed transfer
// (spec §4.4: "record the validator and the number of bytes received").
func (s *Store) Record(url string, cp Checkpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[url] = cp
	s.dirty = true
}

// Lookup returns url's checkpoint, if any.
func (s *Store) Lookup(url string) (Checkpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.entries[url]
	return cp, ok
}

// Forget removes url's checkpoint, used once a transfer completes
// successfully (resumed or not) so a future request starts fresh
// rather than sending a stale Range.
func (s *Store) Forget(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[url]; ok {
		delete(s.entries, url)
		s.dirty = true
	}
}

// Flush forces a synchronous persist, used by tests.
func (s *Store) Flush() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	buf := new(bytes.Buffer)
	enc := gob.NewEncoder(buf)
	err := enc.Encode(s.entries)
	s.dirty = false
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, buf.Bytes(), 0644)
}

func (s *Store) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.Flush(); err != nil {
				s.log("resumable store: final flush failed: " + err.Error())
			}
			return
		case <-ticker.C:
			if err := s.Flush(); err != nil {
				s.log("resumable store: periodic flush failed: " + err.Error())
			}
		}
	}
}

// ValidatorFromHeaders extracts the preferred validator from a
// response's headers: ETag if present, else a formatted Last-Modified
// (spec §4.4). It returns "" if neither is usable, meaning the
// transfer cannot be resumed even if it fails.
func ValidatorFromHeaders(etag, lastModified string) string {
	if etag != "" {
		return etag
	}
	if lastModified == "" {
		return ""
	}
	t, err := date.ParseTime(time.RFC1123, lastModified)
	if err != nil {
		return ""
	}
	return t.Format(time.RFC1123)
}
