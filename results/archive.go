package results

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/pulseline-io/pulseline/types"
)

// Archiver mirrors completed run files to long-term storage. Archive
// faults are reported to the caller for logging but never fail a run.
type Archiver interface {
	// Put uploads one object. Key is relative to the archive root.
	Put(ctx context.Context, key string, data []byte) error
}

// ArchiveRun uploads the sink files and manifest of a completed run
// under <procedure>/<run_id>/. Missing mirrors are skipped; the first
// upload error is returned after attempting the remaining files.
func ArchiveRun(ctx context.Context, a Archiver, r *Results, meta *types.RunMeta) error {
	prefix := path.Join(meta.Procedure, meta.RunID)

	paths := append(r.Sinks(), ManifestPath(r.Primary()))

	var firstErr error
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			if firstErr == nil {
				firstErr = wrapSinkError("read", p, err)
			}
			continue
		}
		key := path.Join(prefix, filepath.Base(p))
		if err := a.Put(ctx, key, data); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("archive %s: %w", key, err)
			}
		}
	}
	return firstErr
}

// StubArchiver records uploads for testing.
type StubArchiver struct {
	mu sync.Mutex

	// PutErr, if non-nil, is returned by Put.
	PutErr error

	// Objects maps uploaded keys to payloads.
	Objects map[string][]byte
}

// NewStubArchiver creates an empty stub archiver.
func NewStubArchiver() *StubArchiver {
	return &StubArchiver{Objects: make(map[string][]byte)}
}

// Put implements Archiver by recording the object.
func (s *StubArchiver) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	s.Objects[key] = append([]byte(nil), data...)
	return nil
}

// Keys returns the uploaded keys.
func (s *StubArchiver) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Objects))
	for k := range s.Objects {
		out = append(out, k)
	}
	return out
}

// Verify StubArchiver implements Archiver.
var _ Archiver = (*StubArchiver)(nil)
