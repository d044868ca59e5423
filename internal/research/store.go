package research

import (
	"sort"
	"sync"
)

// taskStore is the in-memory task map. Tasks are never evicted; readers
// always get deep copies.
type taskStore struct {
	mu    sync.RWMutex
	tasks map[string]*ResearchTask
	done  map[string]chan struct{}
}

func newTaskStore() *taskStore {
	return &taskStore{
		tasks: make(map[string]*ResearchTask),
		done:  make(map[string]chan struct{}),
	}
}

func (s *taskStore) add(t *ResearchTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	s.done[t.ID] = make(chan struct{})
}

func (s *taskStore) get(id string) (*ResearchTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

func (s *taskStore) list() []*ResearchTask {
	s.mu.RLock()
	out := make([]*ResearchTask, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.clone())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// update applies fn under the write lock and returns a copy of the result.
// Terminal tasks are immutable: fn is not called and ok is false.
func (s *taskStore) update(id string, fn func(t *ResearchTask)) (snapshot *ResearchTask, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, found := s.tasks[id]
	if !found || t.Status.Terminal() {
		return nil, false
	}
	fn(t)
	return t.clone(), true
}

// finish releases Wait callers of a terminal task. It is safe to call twice.
func (s *taskStore) finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || !t.Status.Terminal() {
		return
	}
	ch := s.done[id]
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// doneCh is closed once the task is terminal and its final progress event
// has been handed to the stream.
func (s *taskStore) doneCh(id string) (<-chan struct{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.done[id]
	return ch, ok
}
