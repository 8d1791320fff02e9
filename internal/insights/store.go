package insights

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"leviatan/internal/errors"
	"leviatan/internal/paths"
	"leviatan/internal/slogutil"
)

// Store is the sole reader and writer of snapshot files. Writers to the
// same project serialize on a per-path lock so concurrent analyses cannot
// interleave a read-modify-write cycle.
type Store struct {
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Store{
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *Store) pathLock(projectPath string) *sync.Mutex {
	key, err := paths.CanonicalAbs(projectPath)
	if err != nil {
		key = projectPath
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[key] = l
	return l
}

// Read loads the snapshot for projectPath. A missing file, unparseable
// JSON, or a record without version/projectId all read as no snapshot
// (nil, nil); the next analysis simply recreates the file. Only a real
// I/O failure on an existing file is an error.
func (s *Store) Read(projectPath string) (*Snapshot, error) {
	path := paths.SnapshotPath(projectPath)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewLeviError(errors.IOError,
			fmt.Sprintf("Failed to read snapshot at %q", path), err, nil, nil)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		s.logger.Warn("snapshot corrupt, treating as absent", "path", path, "error", err)
		return nil, nil
	}
	if snap.Version == "" || snap.ProjectID == "" {
		s.logger.Warn("snapshot missing identity fields, treating as absent", "path", path)
		return nil, nil
	}
	return &snap, nil
}

// Write persists snap for projectPath with an atomic tmp+rename,
// refreshing lastModified.
func (s *Store) Write(projectPath string, snap *Snapshot) error {
	lock := s.pathLock(projectPath)
	lock.Lock()
	defer lock.Unlock()
	return s.writeLocked(projectPath, snap)
}

func (s *Store) writeLocked(projectPath string, snap *Snapshot) error {
	snap.LastModified = time.Now().UTC()
	normalize(snap)

	path := paths.SnapshotPath(projectPath)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}

	s.logger.Debug("snapshot written", "path", path, "files", snap.TotalFiles)
	return nil
}

// CreateFromAnalysis builds the first snapshot for a project from fresh
// findings, filling identity fields and seeding history.
func (s *Store) CreateFromAnalysis(projectPath string, findings *Snapshot) *Snapshot {
	now := time.Now().UTC()
	snap := *findings
	snap.Version = SnapshotVersion
	snap.ProjectID = uuid.NewString()
	snap.ProjectName = filepath.Base(projectPath)
	snap.ProjectPath = projectPath
	snap.CreatedAt = now
	snap.LastAnalyzed = now
	snap.PreviousAnalyses = []HistoryEntry{{
		Timestamp: now,
		Summary:   "Initial analysis",
		Changes:   []string{},
	}}
	normalize(&snap)
	return &snap
}

// UpdateWithAnalysis folds fresh findings over an existing snapshot.
// Current-state fields are replaced outright; identity, user notes, and
// history are carried forward, with one new history entry prepended.
func (s *Store) UpdateWithAnalysis(existing, findings *Snapshot) *Snapshot {
	now := time.Now().UTC()
	changes := describeChanges(existing, findings)

	snap := *findings
	snap.Version = SnapshotVersion
	snap.ProjectID = existing.ProjectID
	snap.ProjectName = existing.ProjectName
	snap.ProjectPath = existing.ProjectPath
	snap.CreatedAt = existing.CreatedAt
	snap.LastAnalyzed = now
	snap.UserNotes = existing.UserNotes

	merged := make(map[string]interface{}, len(existing.CustomSettings)+len(findings.CustomSettings))
	for k, v := range existing.CustomSettings {
		merged[k] = v
	}
	for k, v := range findings.CustomSettings {
		merged[k] = v
	}
	snap.CustomSettings = merged

	entry := HistoryEntry{
		Timestamp: now,
		Summary:   "Re-analysis completed",
		Changes:   changes,
	}
	snap.PreviousAnalyses = append([]HistoryEntry{entry}, existing.PreviousAnalyses...)
	if len(snap.PreviousAnalyses) > HistoryLimit {
		snap.PreviousAnalyses = snap.PreviousAnalyses[:HistoryLimit]
	}

	normalize(&snap)
	return &snap
}

// Merge runs the whole read-decide-write cycle under the project lock and
// returns the stored snapshot.
func (s *Store) Merge(projectPath string, findings *Snapshot) (*Snapshot, error) {
	lock := s.pathLock(projectPath)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.Read(projectPath)
	if err != nil {
		return nil, err
	}

	var snap *Snapshot
	if existing == nil {
		snap = s.CreateFromAnalysis(projectPath, findings)
	} else {
		snap = s.UpdateWithAnalysis(existing, findings)
	}
	if err := s.writeLocked(projectPath, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// UpdateNotes replaces the snapshot's free-form user notes.
func (s *Store) UpdateNotes(projectPath, notes string) (*Snapshot, error) {
	lock := s.pathLock(projectPath)
	lock.Lock()
	defer lock.Unlock()

	snap, err := s.Read(projectPath)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.NewLeviError(errors.SnapshotMissing,
			fmt.Sprintf("No analysis snapshot exists for %q", projectPath),
			nil, errors.GetSuggestedFixes(errors.SnapshotMissing), nil)
	}
	snap.UserNotes = notes
	if err := s.writeLocked(projectPath, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Export streams the snapshot as gzipped JSON.
func (s *Store) Export(projectPath string, w io.Writer) error {
	snap, err := s.Read(projectPath)
	if err != nil {
		return err
	}
	if snap == nil {
		return errors.NewLeviError(errors.SnapshotMissing,
			fmt.Sprintf("No analysis snapshot exists for %q", projectPath),
			nil, errors.GetSuggestedFixes(errors.SnapshotMissing), nil)
	}

	zw := gzip.NewWriter(w)
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		_ = zw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return zw.Close()
}

// describeChanges diffs the fields surfaced in analysis history.
func describeChanges(existing, findings *Snapshot) []string {
	changes := []string{}
	if !equalStringSets(existing.Technologies, findings.Technologies) {
		changes = append(changes, "Technologies detected changed")
	}
	if !equalStringSets(existing.Frameworks, findings.Frameworks) {
		changes = append(changes, "Frameworks detected changed")
	}
	if existing.TotalFiles != findings.TotalFiles {
		changes = append(changes,
			fmt.Sprintf("File count changed from %d to %d", existing.TotalFiles, findings.TotalFiles))
	}
	return changes
}
