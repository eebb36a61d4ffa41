package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.ConfigFileStore = (*FileStore)(nil)

const (
	lockFileName   = ".sync.lock"
	lockRetryDelay = 200 * time.Millisecond
)

// FileStore keeps configuration files in a single directory. Writers hold an
// advisory file lock so two bot processes never sync into the same directory.
type FileStore struct {
	dir  string
	lock *flock.Flock
	log  *zerolog.Logger
}

func NewFileStore(dir string, logger *zerolog.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage dir is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	l := logger.With().Str("component", "FileStore").Logger()
	return &FileStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFileName)),
		log:  &l,
	}, nil
}

func (s *FileStore) Dir() string { return s.dir }

// Lock blocks until the directory lock is taken or ctx ends.
func (s *FileStore) Lock(ctx context.Context) (func() error, error) {
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock storage dir: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: storage dir is locked", domain.ErrOperationFailed)
	}
	return s.lock.Unlock, nil
}

func (s *FileStore) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, filepath.Base(name)))
	return err == nil
}

// Save writes into a temp file first so a failed download never leaves a
// truncated config behind.
func (s *FileStore) Save(name string, fill func(w io.Writer) error) (string, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) || name == lockFileName {
		return "", fmt.Errorf("%w: bad file name %q", domain.ErrInvalidArgument, name)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", fmt.Errorf("close temp file: %w", err)
	}
	dst := filepath.Join(s.dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		cleanup()
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	s.log.Debug().Str("file", name).Msg("config file stored")
	return dst, nil
}

func (s *FileStore) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, filepath.Base(path))
		}
		return nil, err
	}
	return f, nil
}
