package session

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
	"time"

	"github.com/mikeboe/research-advisor/pkg/research"
)

const (
	filePrefix = "session_"
	fileSuffix = ".json"
)

// FileStore keeps one JSON document per session in Dir. A file is written
// to a temporary name and then linked into place, so readers never see a
// partial document and an existing session is never overwritten.
type FileStore struct {
	Dir    string
	IDs    *IDSource
	Logger *slog.Logger
	now    func() time.Time
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first save.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir, IDs: DefaultIDs, Logger: slog.Default(), now: time.Now}
}

func (s *FileStore) Save(ctx context.Context, state research.ResearchState) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", &PersistenceError{Op: "save", Err: fmt.Errorf("failed to create sessions directory: %w", err)}
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", &PersistenceError{Op: "save", Err: err}
		}

		id := s.ids().Next()
		record := Record{ID: id, Timestamp: s.timestamp(), ResearchState: state}
		data, err := json.MarshalIndent(record, "", "    ")
		if err != nil {
			return "", &PersistenceError{Op: "save", ID: id, Err: fmt.Errorf("failed to marshal state: %w", err)}
		}

		err = s.writeNew(s.path(id), data)
		if errors.Is(err, fs.ErrExist) {
			s.logger().Warn("Session file already exists, drawing a new id", "session_id", id)
			continue
		}
		if err != nil {
			return "", &PersistenceError{Op: "save", ID: id, Err: err}
		}
		s.logger().Info("Session saved", "session_id", id, "path", s.path(id))
		return id, nil
	}
	return "", &PersistenceError{Op: "save", Err: fmt.Errorf("no free session id after %d attempts", maxIDAttempts)}
}

// writeNew writes data to path, failing with fs.ErrExist if path exists.
func (s *FileStore) writeNew(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.Dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}

	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("failed to publish session: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, id string) (Record, error) {
	if !ValidID(id) {
		return Record{}, &PersistenceError{Op: "load", ID: id, Err: ErrNotFound}
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, &PersistenceError{Op: "load", ID: id, Err: ErrNotFound}
	}
	if err != nil {
		return Record{}, &PersistenceError{Op: "load", ID: id, Err: err}
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return Record{}, &PersistenceError{Op: "load", ID: id, Err: fmt.Errorf("failed to decode session: %w", err)}
	}
	if record.ID == "" {
		record.ID = id
	}
	return record, nil
}

// List returns the saved sessions, newest first. Unreadable files are
// skipped and logged.
func (s *FileStore) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
		if ValidID(id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	slices.Reverse(ids)

	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		record, err := s.Load(ctx, id)
		if err != nil {
			s.logger().Warn("Skipping unreadable session", "session_id", id, "error", err)
			continue
		}
		infos = append(infos, record.info())
	}
	return infos, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.Dir, filePrefix+id+fileSuffix)
}

func (s *FileStore) ids() *IDSource {
	if s.IDs == nil {
		return DefaultIDs
	}
	return s.IDs
}

func (s *FileStore) timestamp() time.Time {
	if s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func (s *FileStore) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
