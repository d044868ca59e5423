package server

import (
	"context"
	"sync"

	"github.com/mohammad-safakhou/researcher/internal/research"
	"go.uber.org/zap"
)

// frame is one server-sent event.
type frame struct {
	event string
	data  interface{}
	final bool
}

const (
	eventSnapshot = "snapshot"
	eventProgress = "progress"
	eventResult   = "result"
	eventDone     = "done"
)

// subscriber receives the frames of a single task. ch is closed when the
// subscriber falls too far behind or the hub stops.
type subscriber struct {
	taskID string
	ch     chan frame
	closed bool
}

// Hub drains the orchestrator streams and fans events out per task id.
type Hub struct {
	progress <-chan research.ProgressEvent
	results  <-chan research.ResultEvent
	buffer   int
	logger   *zap.Logger

	mu      sync.Mutex
	subs    map[string]map[*subscriber]struct{}
	stopped bool
}

// NewHub builds a hub over the orchestrator's progress and result streams.
func NewHub(progress <-chan research.ProgressEvent, results <-chan research.ResultEvent, buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		progress: progress,
		results:  results,
		buffer:   buffer,
		logger:   logger.Named("hub"),
		subs:     make(map[string]map[*subscriber]struct{}),
	}
}

// Run dispatches events until both streams are closed or ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	defer h.stop()
	progress, results := h.progress, h.results
	for progress != nil || results != nil {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-progress:
			if !ok {
				progress = nil
				continue
			}
			h.dispatch(ev.TaskID, frame{event: eventProgress, data: ev, final: ev.Final})
		case ev, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			h.dispatch(ev.TaskID, frame{event: eventResult, data: ev})
		}
	}
	return nil
}

// subscribe registers interest in taskID. The returned func must be called to unsubscribe.
func (h *Hub) subscribe(taskID string) (*subscriber, func()) {
	s := &subscriber{taskID: taskID, ch: make(chan frame, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		s.closed = true
		close(s.ch)
		return s, func() {}
	}
	if h.subs[taskID] == nil {
		h.subs[taskID] = make(map[*subscriber]struct{})
	}
	h.subs[taskID][s] = struct{}{}
	return s, func() { h.unsubscribe(s) }
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

func (h *Hub) removeLocked(s *subscriber) {
	if set, ok := h.subs[s.taskID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.taskID)
		}
	}
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (h *Hub) dispatch(taskID string, f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[taskID] {
		select {
		case s.ch <- f:
		default:
			if f.event == eventProgress && !f.final {
				continue
			}
			// Results and the final event are never dropped silently.
			h.logger.Warn("Disconnecting slow subscriber.", zap.String("task_id", taskID), zap.String("event", f.event))
			h.removeLocked(s)
		}
	}
}

func (h *Hub) stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for _, set := range h.subs {
		for s := range set {
			h.removeLocked(s)
		}
	}
}

func (h *Hub) subscribers(taskID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[taskID])
}
