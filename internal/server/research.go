package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"go.uber.org/zap"
)

// ResearchHandler exposes research tasks over HTTP.
type ResearchHandler struct {
	orch      Orchestrator
	hub       *Hub
	streaming bool
	keepAlive time.Duration
	logger    *zap.Logger
}

// Register mounts the research routes under g.
func (h *ResearchHandler) Register(g *echo.Group) {
	g.POST("", h.start)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.cancel)
	g.GET("/:id/stream", h.stream)
}

// start accepts a research query.
//
//	@Summary	Start research
//	@Tags		research
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		StartResearchRequest	true	"Query"
//	@Success	202		{object}	StartResearchResponse
//	@Failure	400		{object}	HTTPError
//	@Failure	503		{object}	HTTPError
//	@Router		/api/research [post]
func (h *ResearchHandler) start(c echo.Context) error {
	var req StartResearchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	id, err := h.orch.StartResearch(c.Request().Context(), req.Query)
	switch {
	case errors.Is(err, research.ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, research.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case err != nil:
		return err
	}
	h.logger.Info("Research accepted.", zap.String("task_id", id), zap.String("query", strings.TrimSpace(req.Query)))
	return c.JSON(http.StatusAccepted, StartResearchResponse{TaskID: id})
}

// list returns every known task.
//
//	@Summary	List research tasks
//	@Tags		research
//	@Produce	json
//	@Success	200	{object}	TaskListResponse
//	@Router		/api/research [get]
func (h *ResearchHandler) list(c echo.Context) error {
	tasks := h.orch.ListTasks()
	if tasks == nil {
		tasks = []*research.ResearchTask{}
	}
	return c.JSON(http.StatusOK, TaskListResponse{Tasks: tasks})
}

// get returns a task snapshot.
//
//	@Summary	Get research task
//	@Tags		research
//	@Produce	json
//	@Param		id	path		string	true	"Task ID"
//	@Success	200	{object}	research.ResearchTask
//	@Failure	404	{object}	HTTPError
//	@Router		/api/research/{id} [get]
func (h *ResearchHandler) get(c echo.Context) error {
	task, ok := h.orch.GetTask(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, research.ErrTaskNotFound.Error())
	}
	return c.JSON(http.StatusOK, task)
}

// cancel stops a running task.
//
//	@Summary	Cancel research task
//	@Tags		research
//	@Param		id	path	string	true	"Task ID"
//	@Success	202
//	@Failure	404	{object}	HTTPError
//	@Router		/api/research/{id} [delete]
func (h *ResearchHandler) cancel(c echo.Context) error {
	id := c.Param("id")
	if err := h.orch.Cancel(id); err != nil {
		if errors.Is(err, research.ErrTaskNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return err
	}
	h.logger.Info("Research cancel requested.", zap.String("task_id", id))
	return c.NoContent(http.StatusAccepted)
}

// stream sends progress and result events of a task as Server-Sent Events.
// The first frame is a snapshot of the task; the last is "done".
//
//	@Summary	Research event stream
//	@Tags		research
//	@Param		id	path	string	true	"Task ID"
//	@Produce	text/event-stream
//	@Success	200	{string}	string
//	@Failure	404	{object}	HTTPError
//	@Failure	503	{object}	HTTPError
//	@Router		/api/research/{id}/stream [get]
func (h *ResearchHandler) stream(c echo.Context) error {
	if !h.streaming {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "research stream disabled")
	}
	id := c.Param("id")
	if _, ok := h.orch.GetTask(id); !ok {
		return echo.NewHTTPError(http.StatusNotFound, research.ErrTaskNotFound.Error())
	}

	// Subscribe before taking the snapshot so no event falls in between.
	sub, unsubscribe := h.hub.subscribe(id)
	defer unsubscribe()
	task, ok := h.orch.GetTask(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, research.ErrTaskNotFound.Error())
	}

	resp := c.Response()
	flusher, ok := resp.Writer.(http.Flusher)
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "streaming unsupported")
	}
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	w := &sseWriter{resp: resp, flusher: flusher}
	if err := w.send(eventSnapshot, task); err != nil {
		return nil
	}
	if task.Status.Terminal() {
		_ = w.send(eventDone, doneFrame(task))
		return nil
	}
	seen := make(map[string]struct{}, len(task.Results))
	for _, r := range task.Results {
		seen[r.ID] = struct{}{}
	}

	ctx := c.Request().Context()
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.comment("ping"); err != nil {
				return nil
			}
		case f, open := <-sub.ch:
			if !open {
				return nil
			}
			if ev, isResult := f.data.(research.ResultEvent); isResult {
				if _, dup := seen[ev.Result.ID]; dup {
					continue
				}
				seen[ev.Result.ID] = struct{}{}
			}
			if err := w.send(f.event, f.data); err != nil {
				return nil
			}
			if f.final {
				ev := f.data.(research.ProgressEvent)
				done := DoneFrame{TaskID: ev.TaskID, Status: ev.Status, Error: ev.Error, Degraded: ev.Degraded}
				if t, ok := h.orch.GetTask(id); ok {
					done = doneFrame(t)
				}
				_ = w.send(eventDone, done)
				return nil
			}
		}
	}
}

func doneFrame(t *research.ResearchTask) DoneFrame {
	return DoneFrame{TaskID: t.ID, Status: t.Status, Error: t.Error, Degraded: t.Degraded}
}

type sseWriter struct {
	resp    *echo.Response
	flusher http.Flusher
}

func (w *sseWriter) send(event string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.resp, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) comment(text string) error {
	if _, err := fmt.Fprintf(w.resp, ": %s\n\n", text); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}
