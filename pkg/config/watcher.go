package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/samlbridge/samlbridge/pkg/observability"
	"github.com/samlbridge/samlbridge/pkg/rolemap"
)

// RoleUpdateFunc receives the freshly parsed rule set and its parse issues
// whenever the watched role-population file changes.
type RoleUpdateFunc func(rules rolemap.RuleSet, issues []rolemap.ParseIssue)

// Watcher hot-reloads the role-population file. Malformed fragments are
// reported as issues, never as a hard failure, so a typo cannot take role
// assignment down entirely.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	onRoles RoleUpdateFunc
	logger  *observability.Logger

	mu    sync.Mutex
	rules rolemap.RuleSet

	done chan struct{}
}

// NewWatcher parses the file once and starts watching it for changes.
// logger may be nil.
func NewWatcher(path string, onRoles RoleUpdateFunc, logger *observability.Logger) (*Watcher, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &Watcher{
		path:    path,
		watcher: fsw,
		onRoles: onRoles,
		logger:  logger,
		done:    make(chan struct{}),
	}
	if err := w.reload(); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

// Rules returns the most recently parsed rule set.
func (w *Watcher) Rules() rolemap.RuleSet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rules
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				w.logger.WithError(err).Error("failed to reload role population file")
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("role population watcher error")
		}
	}
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", w.path, err)
	}

	rules, issues := rolemap.Parse(strings.TrimSpace(string(data)))
	w.mu.Lock()
	w.rules = rules
	w.mu.Unlock()

	for _, issue := range issues {
		w.logger.WithField("fragment", issue.Fragment).Warnf("role rule skipped: %s", issue.Reason)
	}
	if w.onRoles != nil {
		w.onRoles(rules, issues)
	}
	return nil
}
