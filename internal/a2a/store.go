package a2a

import (
	"context"
	"errors"
	"sync"
)

// ErrTaskNotFound indicates a requested task record is missing.
var ErrTaskNotFound = errors.New("task not found")

// TaskStore persists an agent's local task projections. Implementations
// must be safe for concurrent use across independent contexts.
type TaskStore interface {
	Get(ctx context.Context, id string) (Task, error)
	Save(ctx context.Context, task Task) error
}

// MemoryTaskStore keeps task projections in process memory. Durable task
// history is a deployment concern.
type MemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

// NewMemoryTaskStore creates an empty in-memory task store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[string]Task)}
}

// Get returns the task with the given id.
func (s *MemoryTaskStore) Get(ctx context.Context, id string) (Task, error) {
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// Save stores the task snapshot keyed by its id.
func (s *MemoryTaskStore) Save(ctx context.Context, task Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// cloneTask copies the slices so callers cannot mutate stored state.
func cloneTask(task Task) Task {
	out := task
	out.Artifacts = append([]Artifact(nil), task.Artifacts...)
	out.History = append([]Message(nil), task.History...)
	return out
}
