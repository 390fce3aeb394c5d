package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

const reportsStorageKey = "civicReports"

var (
	errDocumentNotFound = errors.New("report document not found")
	// errReportsUnchanged lets a mutateReports callback skip the save.
	errReportsUnchanged = errors.New("reports unchanged")
)

// ReportStore owns the persisted report list. Save replaces the whole list;
// subscribers receive every saved snapshot and must not modify it.
type ReportStore interface {
	Load(ctx context.Context) ([]Report, error)
	Save(ctx context.Context, reports []Report) error
	Subscribe(fn func([]Report)) (unsubscribe func())
}

// documentBackend persists one opaque JSON document per key.
type documentBackend interface {
	Name() string
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, body []byte) error
}

type documentStore struct {
	backend documentBackend
	key     string
	seed    func() []Report
	log     *slog.Logger

	subMu       sync.RWMutex
	subscribers map[int]func([]Report)
	nextSubID   int
}

func newDocumentStore(backend documentBackend, logger *slog.Logger) *documentStore {
	return &documentStore{
		backend:     backend,
		key:         reportsStorageKey,
		seed:        seededSampleReports,
		log:         logger,
		subscribers: make(map[int]func([]Report)),
	}
}

func (s *documentStore) Load(ctx context.Context) ([]Report, error) {
	body, err := s.backend.Read(ctx, s.key)
	if errors.Is(err, errDocumentNotFound) {
		seeded := s.seed()
		if err := s.write(ctx, seeded); err != nil {
			return nil, err
		}
		s.log.Info("seeded report store", "backend", s.backend.Name(), "count", len(seeded))
		return seeded, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read report document: %w", err)
	}
	return decodeReports(body)
}

func (s *documentStore) Save(ctx context.Context, reports []Report) error {
	if err := s.write(ctx, reports); err != nil {
		return err
	}
	s.publish(reports)
	return nil
}

func (s *documentStore) Subscribe(fn func([]Report)) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
		})
	}
}

func (s *documentStore) write(ctx context.Context, reports []Report) error {
	body, err := encodeReports(reports)
	if err != nil {
		return err
	}
	if err := s.backend.Write(ctx, s.key, body); err != nil {
		return fmt.Errorf("write report document: %w", err)
	}
	return nil
}

func (s *documentStore) publish(reports []Report) {
	snapshot := append([]Report(nil), reports...)

	s.subMu.RLock()
	listeners := make([]func([]Report), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		listeners = append(listeners, fn)
	}
	s.subMu.RUnlock()

	for _, fn := range listeners {
		fn(snapshot)
	}
}

func encodeReports(reports []Report) ([]byte, error) {
	if reports == nil {
		reports = []Report{}
	}
	body, err := json.Marshal(reports)
	if err != nil {
		return nil, fmt.Errorf("encode reports: %w", err)
	}
	return body, nil
}

// decodeReports does no schema validation; a malformed document is an error.
func decodeReports(body []byte) ([]Report, error) {
	var reports []Report
	if err := json.Unmarshal(body, &reports); err != nil {
		return nil, fmt.Errorf("decode report document: %w", err)
	}
	if reports == nil {
		reports = []Report{}
	}
	return reports, nil
}

type fileBackend struct {
	dir string
}

func newFileBackend(dir string) *fileBackend {
	return &fileBackend{dir: dir}
}

func (b *fileBackend) Name() string { return "file" }

func (b *fileBackend) path(key string) string {
	return filepath.Join(b.dir, key+".json")
}

func (b *fileBackend) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := os.ReadFile(b.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errDocumentNotFound
	}
	return body, err
}

func (b *fileBackend) Write(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(b.dir, key+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), b.path(key))
}

type memoryBackend struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{docs: make(map[string][]byte)}
}

func (b *memoryBackend) Name() string { return "memory" }

func (b *memoryBackend) Read(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	body, ok := b.docs[key]
	if !ok {
		return nil, errDocumentNotFound
	}
	return append([]byte(nil), body...), nil
}

func (b *memoryBackend) Write(_ context.Context, key string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.docs[key] = append([]byte(nil), body...)
	return nil
}

// mutateReports serialises read-modify-write cycles against the store.
func (a *App) mutateReports(ctx context.Context, fn func([]Report) ([]Report, error)) ([]Report, error) {
	a.storeMu.Lock()
	defer a.storeMu.Unlock()

	current, err := a.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	next, err := fn(current)
	if errors.Is(err, errReportsUnchanged) {
		return current, nil
	}
	if err != nil {
		return nil, err
	}
	if err := a.store.Save(ctx, next); err != nil {
		return nil, err
	}
	return next, nil
}
