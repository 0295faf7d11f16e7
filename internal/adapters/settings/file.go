package settings

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/okian/rampart/pkg/logger"
	"gopkg.in/yaml.v3"
)

// FileSource serves settings from a flat YAML mapping of name to scalar value.
// It is read-only; edit the file to change a setting.
type FileSource struct {
	path string
	log  logger.Logger

	mu     sync.RWMutex
	values map[string]string
}

// NewFileSource loads path. A missing file is an error.
func NewFileSource(path string, log logger.Logger) (*FileSource, error) {
	if log == nil {
		log = logger.Nop()
	}
	f := &FileSource{path: path, log: log}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Get implements Source.
func (f *FileSource) Get(_ context.Context, name string) (string, bool, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[name]
	return v, ok, nil
}

// Set always fails with ErrReadOnly.
func (f *FileSource) Set(_ context.Context, name, _ string) error {
	return fmt.Errorf("%w: %s is managed in %s", ErrReadOnly, name, f.path)
}

// Reload re-reads the file. On error the previously loaded values stay active.
func (f *FileSource) Reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}
	values, err := parseSettings(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.values = values
	f.mu.Unlock()
	return nil
}

func parseSettings(data []byte) (map[string]string, error) {
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	out := make(map[string]string, len(raw))
	for k, node := range raw {
		if node.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: %s must be a scalar", ErrInvalidFile, k)
		}
		out[k] = node.Value
	}
	return out, nil
}

// Watch reloads the file whenever it is written and then calls onChange. It
// blocks until ctx is cancelled. A failed reload is logged and skipped.
func (f *FileSource) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(f.path); err != nil {
		return fmt.Errorf("watch %s: %w", f.path, err)
	}
	f.log.Info(ctx, "watching settings file", logger.String("path", f.path))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Editors often save by rename, which shows up as Create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := f.Reload(); err != nil {
				f.log.Warn(ctx, "settings reload failed, keeping previous values",
					logger.String("path", f.path), logger.Error(err))
				continue
			}
			f.log.Info(ctx, "settings reloaded", logger.String("path", f.path), logger.Int("keys", f.size()))
			if onChange != nil {
				onChange()
			}
			// An atomic save replaces the inode, so re-arm the watch.
			_ = watcher.Add(f.path)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.log.Error(ctx, "settings watcher error", logger.Error(err))
		}
	}
}

func (f *FileSource) size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.values)
}
