package feedback

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore appends feedback as JSON lines to a single file.
type FileStore struct {
	Path   string
	Logger *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path, Logger: slog.Default(), now: time.Now}
}

func (s *FileStore) Record(_ context.Context, fb Feedback) (Feedback, error) {
	fb, err := prepare(fb, s.clock())
	if err != nil {
		return Feedback{}, err
	}
	line, err := json.Marshal(fb)
	if err != nil {
		return Feedback{}, fmt.Errorf("failed to marshal feedback: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Feedback{}, fmt.Errorf("failed to create feedback directory: %w", err)
		}
	}
	f, err := os.OpenFile(s.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Feedback{}, fmt.Errorf("failed to open feedback file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return Feedback{}, fmt.Errorf("failed to write feedback: %w", err)
	}
	s.logger().Info("Feedback recorded", "id", fb.ID, "rating", fb.Rating)
	return fb, nil
}

// All returns every valid entry. Malformed lines are skipped and logged.
func (s *FileStore) All(_ context.Context) ([]Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Feedback{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open feedback file: %w", err)
	}
	defer f.Close()

	entries := []Feedback{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var fb Feedback
		if err := json.Unmarshal(raw, &fb); err != nil {
			s.logger().Warn("Skipping invalid feedback entry", "line", lineNo, "error", err)
			continue
		}
		if _, err := prepare(fb, fb.Timestamp); err != nil {
			s.logger().Warn("Skipping invalid feedback entry", "line", lineNo, "error", err)
			continue
		}
		entries = append(entries, fb)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read feedback file: %w", err)
	}
	return entries, nil
}

func (s *FileStore) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *FileStore) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
