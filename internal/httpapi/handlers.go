package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/MimeLyc/vn-script-translator/internal/config"
	"github.com/MimeLyc/vn-script-translator/internal/jobs"
	"github.com/MimeLyc/vn-script-translator/internal/service"
	"github.com/MimeLyc/vn-script-translator/pkg/log"
)

type queueRequest struct {
	Paths []string `json:"paths"`
}

func (r queueRequest) cleaned() []string {
	ret := make([]string, 0, len(r.Paths))
	for _, p := range r.Paths {
		if p = strings.TrimSpace(p); p != "" {
			ret = append(ret, p)
		}
	}
	return ret
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.Snapshot())
	case http.MethodPost:
		var req queueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		paths := req.cleaned()
		if len(paths) == 0 {
			writeError(w, http.StatusBadRequest, "paths is required")
			return
		}
		pending := s.queue.Enqueue(paths...)
		writeJSON(w, http.StatusCreated, map[string]any{
			"added":   len(paths),
			"pending": pending,
			"queue":   s.queue.Snapshot(),
		})
	case http.MethodPut:
		var req queueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		s.queue.ReplaceQueue(req.cleaned()...)
		writeJSON(w, http.StatusOK, s.queue.Snapshot())
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleQueueStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.executor == nil {
		writeError(w, http.StatusNotImplemented, "no executor configured")
		return
	}

	// Start is a no-op unless the queue is idle with pending files; skip
	// building an executor in that case.
	snap := s.queue.Snapshot()
	if snap.State != jobs.StateIdle || len(snap.Pending) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"started": false,
			"queue":   snap,
		})
		return
	}

	exec, err := s.executor()
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	started := s.queue.Start(exec)
	writeJSON(w, http.StatusOK, map[string]any{
		"started": started,
		"queue":   s.queue.Snapshot(),
	})
}

func (s *Server) handleQueueStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stopped := s.queue.Stop()
	writeJSON(w, http.StatusOK, map[string]any{
		"stopped": stopped,
		"queue":   s.queue.Snapshot(),
	})
}

func (s *Server) handleQueueAck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	acknowledged := s.queue.Acknowledge()
	writeJSON(w, http.StatusOK, map[string]any{
		"acknowledged": acknowledged,
		"queue":        s.queue.Snapshot(),
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, http.StatusNotImplemented, "scanner is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		info, err := s.scanner.TriggerInfo()
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, info)
	case http.MethodPost:
		queued, err := s.scanner.RunOnce(r.Context())
		if err != nil {
			writeError(w, statusForError(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"queued": queued,
			"queue":  s.queue.Snapshot(),
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := s.settings.GetRuntimeSettings()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, settings)
	case http.MethodPut:
		var req config.RuntimeSettings
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if err := req.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		saved, err := s.settings.UpdateRuntimeSettings(req)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if s.apply != nil {
			if err := s.apply(saved); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		log.Info("Runtime settings updated: target=%s", saved.TargetLanguage)
		writeJSON(w, http.StatusOK, saved)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func statusForError(err error) int {
	switch {
	case service.IsErrorType(err, service.ErrConfig), service.IsErrorType(err, service.ErrValidation):
		return http.StatusBadRequest
	case service.IsErrorType(err, service.ErrFileNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
