package storage

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brandon/outlook-email/pkg/types"
)

const fileExt = ".md"

// Store keeps one file per cached email, named by its stored id
type Store struct {
	dir    string
	logger *logrus.Logger
}

// NewStore creates a new store rooted at dir
func NewStore(dir string, logger *logrus.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: logger,
	}
}

// IDFor derives the stored id for a remote id
func IDFor(remoteID string) string {
	sum := sha1.Sum([]byte(remoteID))
	return hex.EncodeToString(sum[:])
}

// Dir returns the storage directory
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// Exists reports whether a record with the exact id is cached
func (s *Store) Exists(id string) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// IDs returns every cached id in lexical order
func (s *Store) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &IOError{Op: "read directory", Path: s.dir, Err: err}
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Load reads a single record by exact id
func (s *Store) Load(id string) (*types.Email, error) {
	path := s.path(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}

	email, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	email.StoredID = id
	return email, nil
}

// LoadAll reads every record. Files that fail to parse are logged and skipped.
func (s *Store) LoadAll() ([]*types.Email, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}

	emails := make([]*types.Email, 0, len(ids))
	for _, id := range ids {
		email, err := s.Load(id)
		if err != nil {
			var ioErr *IOError
			if errors.As(err, &ioErr) {
				return nil, err
			}
			s.logger.WithError(err).WithField("id", id).Warn("Skipping unreadable email file")
			continue
		}
		emails = append(emails, email)
	}
	return emails, nil
}

// Save writes a record, assigning its stored id on first save
func (s *Store) Save(email *types.Email) error {
	if email.StoredID == "" {
		if email.RemoteID == "" {
			return fmt.Errorf("cannot save email without id")
		}
		email.StoredID = IDFor(email.RemoteID)
	}
	if email.StoredAt == nil {
		now := time.Now().UTC().Truncate(time.Second)
		email.StoredAt = &now
	}

	data, err := Encode(email)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &IOError{Op: "create directory", Path: s.dir, Err: err}
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return &IOError{Op: "create", Path: s.dir, Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &IOError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, s.path(email.StoredID)); err != nil {
		os.Remove(tmpName)
		return &IOError{Op: "rename", Path: s.path(email.StoredID), Err: err}
	}

	s.logger.WithField("id", email.StoredID).Debug("Saved email")
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(id string) error {
	path := s.path(id)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &IOError{Op: "delete", Path: path, Err: err}
	}
	s.logger.WithField("id", id).Debug("Deleted email")
	return nil
}

// Clear removes every cached record and returns how many were removed
func (s *Store) Clear() (int, error) {
	ids, err := s.IDs()
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := s.Delete(id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// Resolve expands a partial id: an exact match wins, then a unique prefix
func (s *Store) Resolve(partial string) (string, error) {
	partial = strings.ToLower(strings.TrimSpace(partial))
	if partial == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}

	ids, err := s.IDs()
	if err != nil {
		return "", err
	}

	var matches []string
	for _, id := range ids {
		if id == partial {
			return id, nil
		}
		if strings.HasPrefix(id, partial) {
			matches = append(matches, id)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, partial)
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousIDError{Partial: partial, Matches: matches}
	}
}

// Find resolves a partial id and loads the record
func (s *Store) Find(partial string) (*types.Email, error) {
	id, err := s.Resolve(partial)
	if err != nil {
		return nil, err
	}
	return s.Load(id)
}
