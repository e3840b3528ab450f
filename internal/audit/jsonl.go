package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ahrav/finjudge/internal/domain"
)

const (
	tracesFile   = "traces.jsonl"
	manifestFile = "manifest.json"
)

// JSONLStore appends traces to <dir>/<run_id>/traces.jsonl, one self-contained
// JSON record per line, and keeps the run manifest in manifest.json next to it.
// Reads scan the file linearly.
type JSONLStore struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
	// seen indexes the task ids already written per run.
	seen map[string]map[string]bool
}

// NewJSONLStore creates a store rooted at dir, creating it if needed.
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("jsonl store: %w", os.ErrInvalid)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonl store: %w", err)
	}
	return &JSONLStore{
		dir:   dir,
		files: make(map[string]*os.File),
		seen:  make(map[string]map[string]bool),
	}, nil
}

// runDir returns the directory of a run. Run ids that could resolve outside
// the store root are rejected.
func (s *JSONLStore) runDir(runID string) (string, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, runID), nil
}

// Put implements Store.
func (s *JSONLStore) Put(_ context.Context, t *domain.Trace) error {
	if err := domain.ValidateRunID(t.RunID); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	seen, err := s.loadSeenLocked(t.RunID)
	if err != nil {
		return err
	}
	if seen[t.TaskID] {
		return fmt.Errorf("%w: %s/%s", ErrTraceExists, t.RunID, t.TaskID)
	}
	f, err := s.fileLocked(t.RunID)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("append trace %s/%s: %w", t.RunID, t.TaskID, err)
	}
	seen[t.TaskID] = true
	return nil
}

// loadSeenLocked builds the task index of a run from disk on first use, so a
// reopened store still rejects duplicates.
func (s *JSONLStore) loadSeenLocked(runID string) (map[string]bool, error) {
	if seen, ok := s.seen[runID]; ok {
		return seen, nil
	}
	seen := make(map[string]bool)
	err := s.scan(runID, func(t *domain.Trace) bool {
		seen[t.TaskID] = true
		return true
	})
	if err != nil {
		return nil, err
	}
	s.seen[runID] = seen
	return seen, nil
}

func (s *JSONLStore) fileLocked(runID string) (*os.File, error) {
	if f, ok := s.files[runID]; ok {
		return f, nil
	}
	dir, err := s.runDir(runID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, tracesFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open traces: %w", err)
	}
	s.files[runID] = f
	return f, nil
}

// Get implements Store.
func (s *JSONLStore) Get(_ context.Context, runID, taskID string) (*domain.Trace, error) {
	var found *domain.Trace
	err := s.scan(runID, func(t *domain.Trace) bool {
		if t.TaskID == taskID {
			found = t
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrTraceNotFound, runID, taskID)
	}
	return found, nil
}

// List implements Store.
func (s *JSONLStore) List(_ context.Context, runID string) ([]*domain.Trace, error) {
	var out []*domain.Trace
	err := s.scan(runID, func(t *domain.Trace) bool {
		out = append(out, t)
		return true
	})
	return out, err
}

// scan calls fn for every trace of a run until fn returns false. A missing
// file is an empty run. Undecodable lines, such as a torn final write, are
// skipped.
func (s *JSONLStore) scan(runID string, fn func(*domain.Trace) bool) error {
	dir, err := s.runDir(runID)
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(dir, tracesFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open traces: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var t domain.Trace
		if err := json.Unmarshal(line, &t); err != nil {
			continue
		}
		if !fn(&t) {
			return nil
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan traces: %w", err)
	}
	return nil
}

// PutManifest implements ManifestStore. The manifest is replaced atomically.
func (s *JSONLStore) PutManifest(_ context.Context, m domain.RunManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	dir, err := s.runDir(m.RunID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	path := filepath.Join(dir, manifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// GetManifest implements ManifestStore.
func (s *JSONLStore) GetManifest(_ context.Context, runID string) (domain.RunManifest, error) {
	dir, err := s.runDir(runID)
	if err != nil {
		return domain.RunManifest{}, err
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.RunManifest{}, fmt.Errorf("%w: %s", ErrManifestNotFound, runID)
		}
		return domain.RunManifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m domain.RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.RunManifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// Close closes every open trace file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for id, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.files, id)
	}
	return errors.Join(errs...)
}
