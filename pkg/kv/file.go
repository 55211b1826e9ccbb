package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileStore saves values as a JSON object in a single file so they survive
// process restarts. Once subscribed, it watches the file and reports writes
// made by other processes sharing the path as Remote changes.
type FileStore struct {
	mu     sync.Mutex
	path   string
	closed bool
	// snapshot is the content as last written or observed by this process.
	snapshot map[string]string
	hub      *hub
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileStore creates the parent directory if missing.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("kv file path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create kv dir: %w", err)
	}
	f := &FileStore{path: path, hub: newHub(), logger: logger}
	snapshot, err := f.load()
	if err != nil {
		logger.Warn("kv file unreadable, starting from empty snapshot", "path", path, "err", err)
		snapshot = make(map[string]string)
	}
	f.snapshot = snapshot
	return f, nil
}

func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, ErrClosed
	}
	values, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *FileStore) Set(ctx context.Context, key, value string) error {
	return f.Apply(ctx, Batch{Set: map[string]string{key: value}})
}

func (f *FileStore) Delete(ctx context.Context, keys ...string) error {
	return f.Apply(ctx, Batch{Delete: keys})
}

func (f *FileStore) Apply(_ context.Context, b Batch) error {
	if b.empty() {
		return nil
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	values, err := f.load()
	if err != nil {
		f.mu.Unlock()
		return err
	}
	// Another process may have written since we last looked.
	outside := diffKeys(f.snapshot, values)
	for k, v := range b.Set {
		values[k] = v
	}
	for _, k := range b.Delete {
		delete(values, k)
	}
	err = f.save(values)
	if err == nil {
		f.snapshot = values
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if len(outside) > 0 {
		f.hub.publish(Change{Keys: outside, Remote: true})
	}
	f.hub.publish(Change{Keys: b.keys()})
	return nil
}

// Subscribe starts the file watcher on first use. If the watcher cannot be
// set up, changes are still announced within this process.
func (f *FileStore) Subscribe() (<-chan Change, func()) {
	if err := f.startWatch(); err != nil {
		f.logger.Warn("kv file watch unavailable", "path", f.path, "err", err)
	}
	return f.hub.subscribe()
}

func (f *FileStore) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	w, done := f.watcher, f.done
	f.mu.Unlock()
	var err error
	if w != nil {
		err = w.Close()
		<-done
	}
	f.hub.close()
	return err
}

func (f *FileStore) startWatch() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || f.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// Writes replace the file by rename, so watch the directory.
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		_ = w.Close()
		return err
	}
	// Nobody was listening before now, so earlier writes need no announcement.
	if values, err := f.load(); err == nil {
		f.snapshot = values
	}
	f.watcher = w
	f.done = make(chan struct{})
	go f.watch(w, f.done)
	return nil
}

func (f *FileStore) watch(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			f.reload()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			f.logger.Warn("kv file watch error", "path", f.path, "err", err)
		}
	}
}

// reload publishes the keys that differ from the last snapshot. Writes by
// this process already updated the snapshot, so they produce nothing here.
func (f *FileStore) reload() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	values, err := f.load()
	if err != nil {
		f.mu.Unlock()
		f.logger.Warn("kv file reload failed", "path", f.path, "err", err)
		return
	}
	changed := diffKeys(f.snapshot, values)
	f.snapshot = values
	f.mu.Unlock()
	if len(changed) > 0 {
		f.hub.publish(Change{Keys: changed, Remote: true})
	}
}

func diffKeys(before, after map[string]string) []string {
	var keys []string
	for k, v := range after {
		if old, ok := before[k]; !ok || old != v {
			keys = append(keys, k)
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (f *FileStore) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read kv file: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse kv file: %w", err)
	}
	return values, nil
}

// save writes to a temp file and renames it over the target.
func (f *FileStore) save(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".kv-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write kv file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close kv file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace kv file: %w", err)
	}
	return nil
}
