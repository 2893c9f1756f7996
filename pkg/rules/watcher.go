package rules

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/stagepass/stagepass/pkg/observability"
)

// Engine serves the current rule set and hot-reloads it when the policy
// file changes on disk. A reload that fails to parse keeps the previous
// policy in force.
type Engine struct {
	path    string
	logger  *observability.Logger
	watcher *fsnotify.Watcher

	mu      sync.RWMutex
	ruleSet *RuleSet

	done chan struct{}
}

// NewEngine loads the policy at path and begins watching it. Pass an empty
// path to run on the shipped default policy without watching.
func NewEngine(path string, logger *observability.Logger) (*Engine, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	e := &Engine{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}

	if path == "" {
		e.ruleSet = DefaultRuleSet()
		return e, nil
	}

	rs, err := Load(path)
	if err != nil {
		return nil, err
	}
	e.ruleSet = rs

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create rules watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch rules file: %w", err)
	}
	e.watcher = watcher
	go e.watch()
	return e, nil
}

// RuleSet returns the active policy.
func (e *Engine) RuleSet() *RuleSet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ruleSet
}

// Allows evaluates the active policy.
func (e *Engine) Allows(collection string, op Op, req Request) bool {
	return e.RuleSet().Allows(collection, op, req)
}

// Close stops watching. Safe to call on an unwatched engine.
func (e *Engine) Close() error {
	close(e.done)
	if e.watcher != nil {
		return e.watcher.Close()
	}
	return nil
}

func (e *Engine) watch() {
	for {
		select {
		case <-e.done:
			return
		case event, ok := <-e.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			e.reload()
		case err, ok := <-e.watcher.Errors:
			if !ok {
				return
			}
			e.logger.WithError(err).Warn("rules watcher error")
		}
	}
}

func (e *Engine) reload() {
	rs, err := Load(e.path)
	if err != nil {
		e.logger.WithError(err).Error("rules reload failed, keeping previous policy")
		return
	}
	e.mu.Lock()
	e.ruleSet = rs
	e.mu.Unlock()
	e.logger.WithField("path", e.path).Info("rules reloaded")
}
