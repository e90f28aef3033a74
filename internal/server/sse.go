package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gemihub/gemiflow/internal/engine"
	"github.com/gemihub/gemiflow/pkg/schema"
)

// handleExecutionEvents streams an execution's live events as Server-Sent
// Events. The terminal event is the last one delivered; the hub closes the
// channel once the run finishes. The observer contract guarantees a terminal
// event even when the run finished before the client attached, so after
// subscribing the handler checks the execution state and replays a
// synthesized terminal event for an already-finished run.
func (s *Server) handleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	exec, ok := s.deps.Executions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ch, cancel := s.deps.Hub.Subscribe(id)
	defer cancel()

	// Status is checked after Subscribe: a run that turns terminal later
	// publishes into our channel, a run that already finished had its
	// terminal event published before we attached.
	if snap := exec.Snapshot(); snap.Status.Terminal() {
		writeSSE(w, flusher, terminalEvent(snap))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, flusher, event)
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event schema.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	flusher.Flush()
}

// terminalEvent rebuilds the terminal event from a finished execution's
// snapshot.
func terminalEvent(snap engine.Snapshot) schema.Event {
	event := schema.Event{
		ExecutionID: snap.ID,
		Status:      snap.Status,
		Timestamp:   time.Now().UTC(),
	}
	if snap.FinishedAt != nil {
		event.Timestamp = *snap.FinishedAt
	}
	switch snap.Status {
	case schema.ExecutionStatusCancelled:
		event.Type = schema.EventCancelled
	case schema.ExecutionStatusError:
		event.Type = schema.EventError
		event.Message = snap.Error
	default:
		event.Type = schema.EventComplete
	}
	return event
}
