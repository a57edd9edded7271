package service

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/vn-script-translator/internal/jobs"
	"github.com/MimeLyc/vn-script-translator/pkg/file"
	"github.com/MimeLyc/vn-script-translator/pkg/icron"
	"github.com/MimeLyc/vn-script-translator/pkg/log"
)

// ScriptQueue is the part of the queue controller the scanner drives.
type ScriptQueue interface {
	Enqueue(paths ...string) int
	Start(exec jobs.Executor) bool
	Snapshot() jobs.Snapshot
	Subscribe(o jobs.Observer) func()
}

// ExecutorFactory builds the executor for a new run, freezing the translation
// settings current at that moment.
type ExecutorFactory func() (jobs.Executor, error)

type ScanConfig struct {
	Dirs     []string
	Exts     []string
	CronExpr string
}

// ScanService periodically looks for new or modified script files, queues them
// and starts the queue.
type ScanService struct {
	cfg      ScanConfig
	cron     *cron.Cron
	queue    ScriptQueue
	executor ExecutorFactory

	group singleflight.Group

	mu              sync.Mutex
	lastTriggerTime time.Time
	// handled maps a finished script to its mtime right after the queue was done
	// with it, so the tool's own rewrite is not picked up as a modification.
	handled map[string]time.Time
}

func NewScanService(
	cfg ScanConfig,
	cron *cron.Cron,
	queue ScriptQueue,
	executor ExecutorFactory,
) *ScanService {
	s := &ScanService{
		cfg:      cfg,
		cron:     cron,
		queue:    queue,
		executor: executor,
		handled:  make(map[string]time.Time),
	}
	queue.Subscribe(s.onEvent)
	return s
}

func (s *ScanService) onEvent(e jobs.Event) {
	if e.Type != jobs.EventFileFinished || e.Path == "" {
		return
	}
	info, err := os.Stat(e.Path)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.handled[e.Path] = info.ModTime()
	s.mu.Unlock()
}

// alreadyHandled reports a script the queue finished and nobody touched since.
func (s *ScanService) alreadyHandled(path string) bool {
	s.mu.Lock()
	modTime, ok := s.handled[path]
	s.mu.Unlock()
	if !ok {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.ModTime().After(modTime)
}

// Schedule registers the scan with the cron engine. An empty expression
// disables scheduled scans.
func (s *ScanService) Schedule(ctx context.Context) error {
	if s.cfg.CronExpr == "" {
		log.Info("CRON_EXPR is empty, scheduled scans disabled")
		return nil
	}
	if s.cron == nil {
		return NewError(ErrConfig, "cron engine is required for scheduled scans")
	}
	log.Info("Scheduling script scans with %q", s.cfg.CronExpr)

	_, err := s.cron.AddFunc(s.cfg.CronExpr, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			log.Error("Scheduled scan failed: %v", err)
		}
	})
	if err != nil {
		return WrapError(err, ErrConfig, "invalid cron expression").WithContext("cron_expr", s.cfg.CronExpr)
	}
	return nil
}

// RunOnce scans every configured directory for scripts modified since the
// previous scan, queues the ones not already pending, in progress or unchanged
// since the queue rewrote them, and starts the queue.
// Overlapping calls share one scan.
func (s *ScanService) RunOnce(ctx context.Context) (int, error) {
	v, err, _ := s.group.Do("scan", func() (any, error) {
		return s.run(ctx)
	})
	n, _ := v.(int)
	return n, err
}

func (s *ScanService) run(_ context.Context) (int, error) {
	now := time.Now()
	s.mu.Lock()
	since := s.lastTriggerTime
	s.mu.Unlock()

	snap := s.queue.Snapshot()
	var found []string
	for _, dir := range s.cfg.Dirs {
		log.Info("Scanning %s for scripts modified after %v", dir, since)
		paths, err := FindScripts(dir, s.cfg.Exts, since)
		if err != nil {
			log.Error("Failed to scan dir %s: %v", dir, err)
			continue
		}
		for _, path := range paths {
			if path == snap.Current || slices.Contains(snap.Pending, path) || slices.Contains(found, path) {
				continue
			}
			if s.alreadyHandled(path) {
				log.Debug("Skipping %s, unchanged since it was translated", path)
				continue
			}
			found = append(found, path)
		}
	}

	s.mu.Lock()
	s.lastTriggerTime = now
	s.mu.Unlock()

	if len(found) == 0 {
		log.Info("No new scripts found")
		return 0, nil
	}
	s.queue.Enqueue(found...)
	log.Info("Queued %d scripts", len(found))

	exec, err := s.executor()
	if err != nil {
		return len(found), WrapError(err, ErrConfig, "failed to build executor")
	}
	if !s.queue.Start(exec) {
		log.Info("Queue is already running or stopped, scripts stay pending")
	}
	return len(found), nil
}

// TriggerInfo describes the previous and next scheduled scan.
func (s *ScanService) TriggerInfo() (*icron.TriggerInfo, error) {
	if s.cfg.CronExpr == "" {
		return nil, NewError(ErrConfig, "scheduled scans are disabled")
	}
	return icron.GetTriggerInfo(s.cfg.CronExpr, time.Now())
}

// FindScripts walks dir for script files with one of exts modified after since.
// A zero since returns every script, which is the folder detection of a fresh
// game directory.
func FindScripts(dir string, exts []string, since time.Time) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewErrorWithCause(ErrFileNotFound, fmt.Sprintf("directory %s does not exist", dir), err)
		}
		return nil, WrapError(err, ErrFileRead, "failed to stat directory").WithContext("dir", dir)
	}
	if !info.IsDir() {
		return nil, NewError(ErrValidation, fmt.Sprintf("%s is not a directory", dir))
	}

	var paths []string
	if since.IsZero() {
		paths, err = file.FindByExt(dir, exts)
	} else {
		paths, err = file.FindRecentAfter(dir, since, exts)
	}
	if err != nil {
		return nil, WrapError(err, ErrFileRead, "failed to walk directory").WithContext("dir", dir)
	}
	return paths, nil
}
