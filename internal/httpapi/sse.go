package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/vn-script-translator/internal/jobs"
)

// handleQueueStream sends a queue snapshot as a server-sent event every time
// the queue reports an event, and periodically while it is quiet.
func (s *Server) handleQueueStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// observers run on the queue worker and must not block
	notify := make(chan struct{}, 1)
	unsubscribe := s.queue.Subscribe(func(jobs.Event) {
		select {
		case notify <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	send := func() bool {
		payload, err := json.Marshal(s.queue.Snapshot())
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-notify:
			if !send() {
				return
			}
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}
