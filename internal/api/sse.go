package api

import (
	"fmt"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/hugo-lorenzo-mato/flowrun/internal/events"
)

// handleSSE streams execution events. ?execution_id= narrows the stream to
// one run and ?types= (comma separated) to some event types.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if s.eventBus == nil {
		respondError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	ctx := r.Context()
	executionID := r.URL.Query().Get("execution_id")
	var types []string
	if raw := r.URL.Query().Get("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, t)
			}
		}
	}

	eventCh := s.eventBus.SubscribeForExecution(executionID, types...)
	defer s.eventBus.Unsubscribe(eventCh)

	s.logger.Info("SSE client connected", "remote_addr", r.RemoteAddr, "execution_id", executionID)

	s.sendSSEEvent(w, flusher, "connected", map[string]string{
		"status": "connected",
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("SSE client disconnected", "remote_addr", r.RemoteAddr)
			return

		case event, ok := <-eventCh:
			if !ok {
				s.logger.Info("EventBus closed, ending SSE stream")
				return
			}
			s.sendSSEEvent(w, flusher, event.EventType(), eventPayload(event))
		}
	}
}

// sendSSEEvent writes an event to the SSE stream.
func (s *Server) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	// SSE format: event: type\ndata: json\n\n
	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()
}

// eventPayload flattens an event into the map sent to clients.
func eventPayload(event events.Event) map[string]interface{} {
	payload := map[string]interface{}{
		"workflow_id":  event.WorkflowID(),
		"execution_id": event.ExecutionID(),
		"timestamp":    event.Timestamp(),
	}

	switch e := event.(type) {
	case events.ExecutionStartedEvent:
		payload["node_count"] = e.NodeCount

	case events.StepStartedEvent:
		payload["node_id"] = e.NodeID
		payload["node_name"] = e.NodeName
		payload["node_type"] = e.NodeType

	case events.StepCompletedEvent:
		payload["node_id"] = e.NodeID
		payload["node_name"] = e.NodeName
		payload["status"] = e.Status
		payload["duration"] = e.Duration.String()
		if e.Error != "" {
			payload["error"] = e.Error
		}

	case events.StepSkippedEvent:
		payload["node_id"] = e.NodeID
		payload["node_name"] = e.NodeName
		payload["reason"] = e.Reason

	case events.ExecutionCompletedEvent:
		payload["duration"] = e.Duration.String()
		payload["succeeded"] = e.Succeeded
		payload["skipped"] = e.Skipped

	case events.ExecutionFailedEvent:
		payload["error"] = e.Error
		payload["duration"] = e.Duration.String()
		payload["failed"] = e.Failed
	}

	return payload
}
