// Package state persists everything a restart must not forget: the local
// balance, open positions, queued setups, the drawdown baseline, an active
// halt, and the weekend carry-over. One JSON file, written atomically.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pipguard/pipguard/entry"
	"github.com/pipguard/pipguard/position"
	"github.com/pipguard/pipguard/risk"
	"github.com/pipguard/pipguard/weekend"
)

// Snapshot is the full persisted state.
type Snapshot struct {
	SavedAt   time.Time           `json:"saved_at"`
	Balance   float64             `json:"balance"`
	Baseline  risk.Baseline       `json:"baseline"`
	Halt      HaltState           `json:"halt"`
	Positions []position.Position `json:"positions"`
	Setups    []entry.Setup       `json:"setups"`
	Weekend   weekend.State       `json:"weekend"`
}

// HaltState survives restarts; a halt decided before a crash must still
// hold when the process comes back.
type HaltState struct {
	State  risk.State `json:"state"`
	Reason string     `json:"reason"`
	Date   string     `json:"date"`
}

// Store reads and writes snapshots at a fixed path.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes the snapshot via a temp file and rename, so a crash mid-write
// never leaves a truncated state file.
func (s *Store) Save(snap Snapshot) error {
	snap.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("state temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file returns (nil, nil): first run.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return &snap, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}
