package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-explab/internal/domain"
)

const (
	recordFile = "experiment.json"
	notesFile  = "notes.md"
	dirPerm    = 0o755
)

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithFileLogger sets the store's logger.
func WithFileLogger(l *slog.Logger) FileOption { return func(s *FileStore) { s.logger = l } }

// WithClock overrides the time source used for CreatedAt and UpdatedAt.
func WithClock(now func() time.Time) FileOption { return func(s *FileStore) { s.now = now } }

// FileStore is a Store on the local filesystem.
type FileStore struct {
	root   string
	logger *slog.Logger
	now    func() time.Time

	// mu serializes writers. Readers never take it; atomic renames keep
	// them consistent.
	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates root if needed and returns a store rooted there.
func NewFileStore(root string, opts ...FileOption) (*FileStore, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create store root %s: %w", root, err)
	}
	s := &FileStore{root: root, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "experiment_store")
	return s, nil
}

// Root returns the store directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) dir(h Handle) (string, error) {
	id := string(h)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: invalid handle %q", ErrNotFound, id)
	}
	return filepath.Join(s.root, id), nil
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, exp *domain.Experiment) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	record := *exp
	now := s.now().UTC()
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if err := record.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	h := Handle(record.ID)
	dir, err := s.dir(h)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	data, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return "", fmt.Errorf("%w: encode: %w", ErrWriteFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err := writeFileAtomic(filepath.Join(dir, recordFile), data); err != nil {
		return "", fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	exp.ID, exp.CreatedAt, exp.UpdatedAt = record.ID, record.CreatedAt, record.UpdatedAt
	s.logger.Info("experiment saved", "experiment_id", record.ID, "name", record.Name, "bytes", len(data))

	if err := writeFileAtomic(filepath.Join(dir, notesFile), []byte(record.Notes)); err != nil {
		s.logger.Warn("notes write failed", "experiment_id", record.ID, "error", err)
		return h, fmt.Errorf("%w: %w", ErrNotesWriteFailed, err)
	}
	return h, nil
}

// Load implements Store.
func (s *FileStore) Load(ctx context.Context, h Handle) (*domain.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := s.dir(h)
	if err != nil {
		return nil, err
	}

	exp, err := readRecord(filepath.Join(dir, recordFile), h)
	if err != nil {
		return nil, err
	}

	notes, err := os.ReadFile(filepath.Join(dir, notesFile))
	switch {
	case err == nil:
		exp.Notes = string(notes)
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read notes for %s: %w", h, err)
	}
	return exp, nil
}

func readRecord(path string, h Handle) (*domain.Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, h)
		}
		return nil, fmt.Errorf("read record %s: %w", h, err)
	}

	var exp domain.Experiment
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, h, err)
	}
	if exp.ID != string(h) {
		return nil, fmt.Errorf("%w: %s: record id %q does not match", ErrCorrupt, h, exp.ID)
	}
	if err := exp.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, h, err)
	}
	return &exp, nil
}

// List implements Store. Unreadable or corrupt records are skipped and
// logged.
func (s *FileStore) List(ctx context.Context) ([]Entry, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.root, err)
	}

	entries := make([]Entry, 0, len(dirs))
	for _, d := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !d.IsDir() {
			continue
		}
		h := Handle(d.Name())
		exp, err := readRecord(filepath.Join(s.root, d.Name(), recordFile), h)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Warn("skipping unreadable experiment", "experiment_id", h, "error", err)
			}
			continue
		}
		entries = append(entries, entryFor(exp))
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(string(a.Handle), string(b.Handle))
	})
	return entries, nil
}

// UpdateNotes implements Store.
func (s *FileStore) UpdateNotes(ctx context.Context, h Handle, notes string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.dir(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := recordExists(dir, h); err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, notesFile), []byte(notes)); err != nil {
		return fmt.Errorf("%w: %w", ErrNotesWriteFailed, err)
	}
	s.logger.Info("notes updated", "experiment_id", h, "bytes", len(notes))
	return nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, h Handle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.dir(h)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := recordExists(dir, h); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete %s: %w", h, err)
	}
	s.logger.Info("experiment deleted", "experiment_id", h)
	return nil
}

// FindByName implements Store.
func (s *FileStore) FindByName(ctx context.Context, name string) (Handle, bool, error) {
	entries, err := s.List(ctx)
	if err != nil {
		return "", false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e.Handle, true, nil
		}
	}
	return "", false, nil
}

func recordExists(dir string, h Handle) error {
	_, err := os.Stat(filepath.Join(dir, recordFile))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	return err
}
