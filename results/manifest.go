package results

import (
	"fmt"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pulseline-io/pulseline/types"
)

// manifestSuffix is appended to the primary sink path to form the
// manifest sidecar path.
const manifestSuffix = ".manifest"

// Manifest is the msgpack-encoded run sidecar persisted next to the
// primary sink. It carries enough state to recover a run's identity and
// parameter values when the implementing procedure can no longer be
// loaded (the LOST recovery path).
type Manifest struct {
	RunID       string         `msgpack:"run_id"`
	Procedure   string         `msgpack:"procedure"`
	Status      string         `msgpack:"status"`
	Parameters  map[string]any `msgpack:"parameters"`
	Metadata    map[string]any `msgpack:"metadata"`
	StartedAt   time.Time      `msgpack:"started_at"`
	CompletedAt time.Time      `msgpack:"completed_at"`
}

// ManifestPath returns the manifest sidecar path for a sink path.
func ManifestPath(sink string) string {
	return sink + manifestSuffix
}

// WriteManifest persists the current run state next to the primary
// sink. Called by the worker after metadata evaluation and again at
// terminal status, so the sidecar reflects the final state of the run.
func (r *Results) WriteManifest(meta *types.RunMeta, completedAt time.Time) error {
	m := Manifest{
		RunID:       meta.RunID,
		Procedure:   r.proc.Name(),
		Status:      string(r.proc.Status()),
		Parameters:  r.proc.ParameterValues(),
		Metadata:    r.proc.MetadataValues(),
		StartedAt:   meta.StartedAt,
		CompletedAt: completedAt,
	}

	payload, err := msgpack.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	path := ManifestPath(r.sinks[0])
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return wrapSinkError("write", path, err)
	}
	return nil
}

// ReadManifest loads the manifest sidecar for a sink path. Used by
// diagnostics and by LOST recovery to restore parameter values from a
// persisted run.
func ReadManifest(sink string) (*Manifest, error) {
	payload, err := os.ReadFile(ManifestPath(sink))
	if err != nil {
		return nil, wrapSinkError("read", ManifestPath(sink), err)
	}

	var m Manifest
	if err := msgpack.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", ManifestPath(sink), err)
	}
	if !types.Status(m.Status).Valid() {
		return nil, fmt.Errorf("manifest %s: unknown status %q", ManifestPath(sink), m.Status)
	}
	return &m, nil
}
