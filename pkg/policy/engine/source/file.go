package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"warden-hq/warden/pkg/policy/ast"
	"warden-hq/warden/pkg/policy/engine"
)

// FileSource loads rules from a YAML/JSON file or a directory of such files.
type FileSource struct {
	path   string
	logger *slog.Logger
}

// NewFileSource creates a file-based rule source. The path can be a single
// file or a directory; for a directory every .yaml/.yml/.json file is loaded.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:   path,
		logger: logger.With("component", "policy.source.file"),
	}
}

// Name identifies the source.
func (s *FileSource) Name() string {
	return fmt.Sprintf("file:%s", s.path)
}

// Load loads all rules from the configured path.
func (s *FileSource) Load(ctx context.Context) ([]*ast.Rule, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", s.path, err)
	}

	if !info.IsDir() {
		return s.loadFile(s.path)
	}

	var rules []*ast.Rule
	err = filepath.Walk(s.path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isRuleFile(path) {
			return nil
		}
		fileRules, err := s.loadFile(path)
		if err != nil {
			return fmt.Errorf("file %q: %w", path, err)
		}
		rules = append(rules, fileRules...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("loaded rules", "path", s.path, "rule_count", len(rules))
	return rules, nil
}

// Watch watches the configured path with fsnotify and emits a change event
// for every write, create, remove, or rename affecting a rule file.
func (s *FileSource) Watch(ctx context.Context) (<-chan engine.ChangeEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the containing directory so editors that replace the file
	// (rename + create) still trigger events.
	watchPath := s.path
	if info, err := os.Stat(s.path); err == nil && !info.IsDir() {
		watchPath = filepath.Dir(s.path)
	}
	if err := watcher.Add(watchPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", watchPath, err)
	}

	ch := make(chan engine.ChangeEvent, 1)
	go func() {
		defer close(ch)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
					continue
				}
				if !isRuleFile(event.Name) && event.Name != s.path {
					continue
				}
				select {
				case ch <- engine.ChangeEvent{Path: event.Name}:
				default:
					// A reload is already pending.
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				select {
				case ch <- engine.ChangeEvent{Err: err}:
				default:
				}
			}
		}
	}()

	return ch, nil
}

// loadFile parses one rule file.
func (s *FileSource) loadFile(path string) ([]*ast.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	rules, err := ast.ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	return rules, nil
}

// isRuleFile reports whether the path looks like a rule file.
func isRuleFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
