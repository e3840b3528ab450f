package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ahrav/finjudge/internal/domain"
)

// MemoryStore keeps traces in process memory. Traces are stored as encoded
// JSON so callers can never mutate a recorded trace through a shared pointer.
type MemoryStore struct {
	mu        sync.RWMutex
	traces    map[string][]byte
	order     map[string][]string
	manifests map[string]domain.RunManifest
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		traces:    make(map[string][]byte),
		order:     make(map[string][]string),
		manifests: make(map[string]domain.RunManifest),
	}
}

func traceKey(runID, taskID string) string { return runID + "\x00" + taskID }

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, t *domain.Trace) error {
	if err := domain.ValidateRunID(t.RunID); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	key := traceKey(t.RunID, t.TaskID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.traces[key]; ok {
		return fmt.Errorf("%w: %s/%s", ErrTraceExists, t.RunID, t.TaskID)
	}
	s.traces[key] = data
	s.order[t.RunID] = append(s.order[t.RunID], t.TaskID)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, runID, taskID string) (*domain.Trace, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.traces[traceKey(runID, taskID)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrTraceNotFound, runID, taskID)
	}
	return decodeTrace(data)
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, runID string) ([]*domain.Trace, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.order[runID]
	out := make([]*domain.Trace, 0, len(ids))
	for _, id := range ids {
		t, err := decodeTrace(s.traces[traceKey(runID, id)])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// PutManifest implements ManifestStore.
func (s *MemoryStore) PutManifest(_ context.Context, m domain.RunManifest) error {
	if err := domain.ValidateRunID(m.RunID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[m.RunID] = cloneManifest(m)
	return nil
}

// GetManifest implements ManifestStore.
func (s *MemoryStore) GetManifest(_ context.Context, runID string) (domain.RunManifest, error) {
	if err := domain.ValidateRunID(runID); err != nil {
		return domain.RunManifest{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[runID]
	if !ok {
		return domain.RunManifest{}, fmt.Errorf("%w: %s", ErrManifestNotFound, runID)
	}
	return cloneManifest(m), nil
}

func cloneManifest(m domain.RunManifest) domain.RunManifest {
	versions := make(map[domain.JudgeName]string, len(m.JudgeVersions))
	for k, v := range m.JudgeVersions {
		versions[k] = v
	}
	m.JudgeVersions = versions
	return m
}

func decodeTrace(data []byte) (*domain.Trace, error) {
	var t domain.Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}
	return &t, nil
}
