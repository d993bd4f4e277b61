package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONFileBackend keeps each namespace as one JSON object on disk, the
// format earlier deployments wrote their plan and action caches in. Every
// Put rewrites the whole file through a temp file and a rename. Writers
// inside this process are serialized; separate processes sharing a file can
// still lose each other's updates.
type JSONFileBackend struct {
	mu    sync.Mutex
	files map[Namespace]string
}

func NewJSONFileBackend(planFile, actionFile string) *JSONFileBackend {
	return &JSONFileBackend{files: map[Namespace]string{
		NamespacePlans:   planFile,
		NamespaceActions: actionFile,
	}}
}

func (b *JSONFileBackend) path(ns Namespace) (string, error) {
	p, ok := b.files[ns]
	if !ok || p == "" {
		return "", fmt.Errorf("no file configured for namespace %q", ns)
	}
	return p, nil
}

// load reads the namespace file. A missing file is an empty map; a corrupt
// one is reported together with an empty map so Put can start over.
func (b *JSONFileBackend) load(ns Namespace) (map[string]json.RawMessage, error) {
	p, err := b.path(ns)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]json.RawMessage)
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return entries, err
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return make(map[string]json.RawMessage), fmt.Errorf("corrupt cache file %s: %w", p, err)
	}
	return entries, nil
}

func (b *JSONFileBackend) Get(_ context.Context, ns Namespace, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := b.load(ns)
	if err != nil {
		return nil, false, err
	}
	v, ok := entries[key]
	return v, ok, nil
}

func (b *JSONFileBackend) Put(_ context.Context, ns Namespace, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries, _ := b.load(ns)
	entries[key] = json.RawMessage(value)
	return b.write(ns, entries)
}

func (b *JSONFileBackend) Clear(_ context.Context, ns Namespace) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(ns, map[string]json.RawMessage{})
}

func (b *JSONFileBackend) write(ns Namespace, entries map[string]json.RawMessage) error {
	p, err := b.path(ns)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(p)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}
