// Package watcher runs the processing driver on a cron schedule and, when
// enabled, as soon as a new export lands in the source directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"annexparse/internal/archive"
	"annexparse/internal/config"
	"annexparse/internal/logger"
	"annexparse/internal/pipeline"
)

const defaultSettle = 2 * time.Second

type Runner interface {
	Run(ctx context.Context) (pipeline.RunResult, error)
}

type Service struct {
	runner  Runner
	cfg     config.Config
	log     logger.Logger
	settle  time.Duration
	trigger chan string
}

type Option func(*Service)

// WithSettle sets how long the directory must stay quiet after a file event
// before a run starts, so half-written exports are not picked up.
func WithSettle(d time.Duration) Option {
	return func(s *Service) { s.settle = d }
}

func NewService(runner Runner, cfg config.Config, log logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	s := &Service{
		runner:  runner,
		cfg:     cfg,
		log:     log,
		settle:  defaultSettle,
		trigger: make(chan string, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled. Every run happens on this goroutine, so
// two runs never overlap; triggers arriving during a run collapse into one.
func (s *Service) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.WatchSchedule, func() { s.request("schedule") }); err != nil {
		return fmt.Errorf("invalid WATCH_SCHEDULE %q: %w", s.cfg.WatchSchedule, err)
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if s.cfg.WatchFSNotify {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create file watcher: %w", err)
		}
		defer w.Close()
		if err := w.Add(s.cfg.SourceDir); err != nil {
			return fmt.Errorf("watch %s: %w", s.cfg.SourceDir, err)
		}
		events, watchErrs = w.Events, w.Errors
	}

	c.Start()
	defer func() { <-c.Stop().Done() }()
	s.log.Info("watcher started",
		logger.String("schedule", s.cfg.WatchSchedule),
		logger.Bool("fsnotify", s.cfg.WatchFSNotify),
		logger.String("dir", s.cfg.SourceDir),
	)

	s.request("startup")
	var settled <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			s.log.Info("watcher stopped")
			return nil
		case reason := <-s.trigger:
			s.runCycle(ctx, reason)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if s.isExport(ev) {
				s.log.Debug("export file event", logger.String("path", ev.Name), logger.String("op", ev.Op.String()))
				settled = time.After(s.settle)
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			s.log.Warn("file watcher error", logger.Err(err))
		case <-settled:
			settled = nil
			s.runCycle(ctx, "fsnotify")
		}
	}
}

func (s *Service) request(reason string) {
	select {
	case s.trigger <- reason:
	default:
	}
}

func (s *Service) isExport(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return false
	}
	return strings.HasPrefix(filepath.Base(ev.Name), s.cfg.SourcePrefix)
}

// runCycle drains the source directory one file at a time. A failed file
// stays where it is, so the cycle stops rather than retrying it. So does a
// file kept by dev mode, which would otherwise be picked up again at once.
func (s *Service) runCycle(ctx context.Context, reason string) {
	for ctx.Err() == nil {
		res, err := s.runner.Run(ctx)
		if errors.Is(err, archive.ErrNoNewFile) {
			return
		}
		if err != nil {
			s.log.Error("watcher cycle error", logger.String("trigger", reason), logger.Err(err))
			return
		}
		s.log.Info("watcher cycle done",
			logger.String("trigger", reason),
			logger.String("source", res.SourceFile),
			logger.Int("count", res.Count),
		)
		if res.SourceKept {
			return
		}
	}
}
