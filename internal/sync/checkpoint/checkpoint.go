// Package checkpoint persists resumable run state to a local file so an
// interrupted run can pick up where it stopped instead of refetching
// everything. The file is advisory: losing it costs a full refetch, never
// correctness, because every write downstream is an idempotent upsert.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SchemaVersion guards the on-disk layout. A file written by a different
// layout is discarded, not migrated.
const SchemaVersion = 1

// State is the serialized cursor for one interrupted run.
type State struct {
	SchemaVersion int                 `json:"schema_version"`
	RunStartedAt  time.Time           `json:"run_started_at"`
	Pages         map[string]int      `json:"pages"`
	Processed     map[string][]string `json:"processed"`
}

// Manager owns one checkpoint file for the lifetime of a run.
type Manager struct {
	path      string
	state     State
	processed map[string]map[string]struct{}
	logger    *slog.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func New(path string, opts ...Option) *Manager {
	m := &Manager{
		path:      path,
		processed: make(map[string]map[string]struct{}),
		state: State{
			SchemaVersion: SchemaVersion,
			RunStartedAt:  time.Now().UTC(),
			Pages:         make(map[string]int),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load reads a previous run's cursor. Returns true when a usable cursor was
// found. A missing file means a fresh run; an unreadable or
// version-mismatched file is discarded with a warning, also a fresh run.
func (m *Manager) Load() (bool, error) {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read checkpoint %s: %w", m.path, err)
	}

	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		m.logger.Warn("discarding unreadable checkpoint", "path", m.path, "error", err)
		return false, nil
	}
	if state.SchemaVersion != SchemaVersion {
		m.logger.Warn("discarding checkpoint with foreign schema version",
			"path", m.path, "found", state.SchemaVersion, "want", SchemaVersion)
		return false, nil
	}

	if state.Pages == nil {
		state.Pages = make(map[string]int)
	}
	m.state = state
	for collection, ids := range state.Processed {
		set := make(map[string]struct{}, len(ids))
		for _, externalID := range ids {
			set[externalID] = struct{}{}
		}
		m.processed[collection] = set
	}
	m.logger.Info("resuming from checkpoint",
		"path", m.path, "started_at", state.RunStartedAt)
	return true, nil
}

// RunStartedAt reports when the checkpointed run originally started.
func (m *Manager) RunStartedAt() time.Time {
	return m.state.RunStartedAt
}

// LastPage reports the last fully processed page for a collection, 0 when
// the collection has not been touched.
func (m *Manager) LastPage(collection string) int {
	return m.state.Pages[collection]
}

// MarkPage records that every record up to and including page has been
// processed for a collection.
func (m *Manager) MarkPage(collection string, page int) {
	if page > m.state.Pages[collection] {
		m.state.Pages[collection] = page
	}
}

// MarkProcessed records one processed external id for a collection.
func (m *Manager) MarkProcessed(collection, externalID string) {
	if externalID == "" {
		return
	}
	set, ok := m.processed[collection]
	if !ok {
		set = make(map[string]struct{})
		m.processed[collection] = set
	}
	set[externalID] = struct{}{}
}

// IsProcessed reports whether an external id was already handled, either in
// this run or in the checkpointed run being resumed.
func (m *Manager) IsProcessed(collection, externalID string) bool {
	_, ok := m.processed[collection][externalID]
	return ok
}

// Save writes the cursor atomically: temp file in the same directory, then
// rename.
func (m *Manager) Save() error {
	m.state.Processed = make(map[string][]string, len(m.processed))
	for collection, set := range m.processed {
		ids := make([]string, 0, len(set))
		for externalID := range set {
			ids = append(ids, externalID)
		}
		m.state.Processed[collection] = ids
	}

	raw, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace checkpoint %s: %w", m.path, err)
	}
	return nil
}

// Clear deletes the checkpoint file after a fully successful run.
func (m *Manager) Clear() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", m.path, err)
	}
	return nil
}
