package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"subgen/internal/logging"
	"subgen/internal/progress"
)

// keepAliveInterval is how often an idle SSE stream emits a comment so
// proxies do not drop the connection.
const keepAliveInterval = 25 * time.Second

// handleEvents streams a task's progress events as server-sent events. The
// event kind becomes the SSE event name and the payload is the JSON event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.registry.Get(id); err != nil {
		s.writeRegistryError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.bus.Subscribe(id, progress.DefaultBuffer)
	defer sub.Close()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case evt, open := <-sub.Events():
			if !open {
				return
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				s.logger.Error("encode sse event", logging.Error(err))
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Kind, payload)
			flusher.Flush()

			// Terminal events end the stream; the client has everything.
			switch evt.Kind {
			case progress.KindCompleted, progress.KindFailed, progress.KindCancelled:
				return
			}
		}
	}
}
