package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Misbahrahman/tasks/models"
	"github.com/Misbahrahman/tasks/services"
)

// StreamHandler serves the live subscriptions over server-sent events. Each
// event carries the full replacement snapshot, mirroring what the stores
// deliver; the subscription is released when the client disconnects.
type StreamHandler struct {
	TaskService    *services.TaskService
	ProjectService *services.ProjectService
}

func NewStreamHandler(taskService *services.TaskService, projectService *services.ProjectService) *StreamHandler {
	return &StreamHandler{TaskService: taskService, ProjectService: projectService}
}

// StreamBoard pushes the bucketed board for the query filter on every change.
func (h *StreamHandler) StreamBoard(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	filter, err := boardFilterFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	setSSEHeaders(w)

	events := make(chan services.Board, 8)
	sub, err := h.TaskService.SubscribeBoard(r.Context(), filter, func(board services.Board) {
		sendLatest(events, board)
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case board := <-events:
			if err := writeSSE(w, board); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// StreamProjects pushes the project list on every change. With ?scope=mine
// the list is limited to projects whose team contains the caller.
func (h *StreamHandler) StreamProjects(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	member := primitive.NilObjectID
	if r.URL.Query().Get("scope") == "mine" {
		actor, ok := actorID(r)
		if !ok {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		member = actor
	}

	setSSEHeaders(w)

	events := make(chan []models.Project, 8)
	sub, err := h.ProjectService.SubscribeProjects(r.Context(), member, func(projects []models.Project) {
		sendLatest(events, projects)
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			return
		case projects := <-events:
			if err := writeSSE(w, projects); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// sendLatest queues a snapshot without blocking the store callback. When the
// client lags and the channel is full, the oldest queued snapshot is evicted;
// every snapshot is a full replacement, so the newest one must always win.
func sendLatest[T any](events chan T, v T) {
	for {
		select {
		case events <- v:
			return
		default:
			select {
			case <-events:
			default:
			}
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func writeSSE(w http.ResponseWriter, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
