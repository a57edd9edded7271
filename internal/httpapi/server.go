package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/MimeLyc/vn-script-translator/internal/config"
	"github.com/MimeLyc/vn-script-translator/internal/jobs"
	"github.com/MimeLyc/vn-script-translator/internal/service"
	"github.com/MimeLyc/vn-script-translator/pkg/icron"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type scanner interface {
	RunOnce(ctx context.Context) (int, error)
	TriggerInfo() (*icron.TriggerInfo, error)
}

type resultLister interface {
	ListResults(ctx context.Context, runID string, limit int) ([]*jobs.FileResult, error)
}

// Server exposes the queue controller, folder scans and runtime settings over
// HTTP.
type Server struct {
	queue    *jobs.Queue
	executor service.ExecutorFactory
	scanner  scanner
	results  resultLister
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier

	streamInterval time.Duration

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

func WithScanner(sc scanner) Option {
	return func(s *Server) {
		s.scanner = sc
	}
}

func WithResults(results resultLister) Option {
	return func(s *Server) {
		s.results = results
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

// WithStreamInterval sets how often the event stream re-sends the snapshot
// when the queue is quiet.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

// NewServer builds the API around queue. executor is called on every start
// request so that each run picks up the settings current at that moment.
func NewServer(queue *jobs.Queue, executor service.ExecutorFactory, opts ...Option) *Server {
	s := &Server{
		queue:          queue,
		executor:       executor,
		streamInterval: 15 * time.Second,
		mux:            http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/queue", s.handleQueue)
	s.mux.HandleFunc("/api/queue/start", s.handleQueueStart)
	s.mux.HandleFunc("/api/queue/stop", s.handleQueueStop)
	s.mux.HandleFunc("/api/queue/ack", s.handleQueueAck)
	s.mux.HandleFunc("/api/queue/stream", s.handleQueueStream)
	s.mux.HandleFunc("/api/scan", s.handleScan)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	s.mux.HandleFunc("/api/results", s.handleResults)
}
