// Package watch turns snapshot edits and a heartbeat schedule into
// notifications, handled one at a time.
package watch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/sourceplane/edgeroute/internal/model"
)

// Handler processes one notification
type Handler func(ctx context.Context, n model.Notification) error

// Loop feeds notifications to a handler. Passes never overlap.
type Loop struct {
	path     string
	schedule string
	logger   *slog.Logger

	mu   sync.Mutex
	hash [sha256.Size]byte

	changes chan struct{}
	beats   chan struct{}
}

// New creates a loop watching path. An empty schedule disables the
// heartbeat.
func New(path, schedule string, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		path:     path,
		schedule: schedule,
		logger:   logger.With("component", "watch"),
		changes:  make(chan struct{}, 1),
		beats:    make(chan struct{}, 1),
	}
}

// Remember marks data as the current snapshot content, so a write of
// exactly these bytes does not trigger another pass
func (l *Loop) Remember(data []byte) {
	l.mu.Lock()
	l.hash = sha256.Sum256(data)
	l.mu.Unlock()
}

// changed reports whether the snapshot differs from the remembered content
func (l *Loop) changed() bool {
	data, err := os.ReadFile(l.path)
	if err != nil {
		l.logger.Warn("failed to read snapshot", "path", l.path, "error", err)
		return false
	}
	sum := sha256.Sum256(data)

	l.mu.Lock()
	defer l.mu.Unlock()
	if sum == l.hash {
		return false
	}
	l.hash = sum
	return true
}

// Run handles a start notification and then one notification per
// snapshot change or heartbeat until ctx is cancelled
func (l *Loop) Run(ctx context.Context, handle Handler) error {
	if l.schedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(l.schedule, func() { signal(l.beats) }); err != nil {
			return fmt.Errorf("invalid heartbeat schedule %q: %w", l.schedule, err)
		}
		c.Start()
		defer func() { <-c.Stop().Done() }()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(l.path); err != nil {
		return fmt.Errorf("failed to watch %s: %w", l.path, err)
	}
	go l.watchFile(ctx, w)

	l.changed()
	l.dispatch(ctx, handle, model.Notification{Kind: model.Start})

	l.logger.Info("watching snapshot", "path", l.path, "heartbeat", l.schedule)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.changes:
			if l.changed() {
				l.dispatch(ctx, handle, model.Notification{Kind: model.ConfigChanged})
			}
		case <-l.beats:
			l.dispatch(ctx, handle, model.Notification{Kind: model.UpdateStatus})
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, handle Handler, n model.Notification) {
	if ctx.Err() != nil {
		return
	}
	if err := handle(ctx, n); err != nil {
		l.logger.Error("notification failed", "notification", string(n.Kind), "error", err)
	}
}

// watchFile signals changes of the snapshot file, re-adding the watch
// when the file is replaced
func (l *Loop) watchFile(ctx context.Context, w *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				go l.readd(ctx, w, ev.Name)
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				signal(l.changes)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			l.logger.Error("watch error", "error", err)
		}
	}
}

func (l *Loop) readd(ctx context.Context, w *fsnotify.Watcher, name string) {
	for i := 0; i < 5; i++ {
		err := w.Add(name)
		if err == nil {
			signal(l.changes)
			return
		}
		if !os.IsNotExist(err) {
			l.logger.Error("watch re-add failed", "file", name, "error", err)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// signal performs a non-blocking send; pending signals coalesce
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
