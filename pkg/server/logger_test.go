package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBLogHandler(t *testing.T) {
	db := &recordingDB{}
	jobID := uuid.New()
	log := slog.New(NewDBLogHandler(db, jobID, nil))

	log.With("query", "caffeine").WithGroup("step").Info("Retrieved results",
		"sub_query", "caffeine half-life",
		"elapsed", 1500*time.Millisecond,
		"error", errors.New("timeout"),
		slog.Group("search", "count", 3),
	)
	log.Debug("dropped below the level")

	require.Len(t, db.rows, 1)
	row := db.rows[0]
	assert.Equal(t, jobID, row[0])
	assert.Equal(t, "INFO", row[2])
	assert.Equal(t, "Retrieved results", row[3])

	var meta map[string]any
	require.NoError(t, json.Unmarshal(row[4].([]byte), &meta))
	assert.Equal(t, map[string]any{
		"query":             "caffeine",
		"step.sub_query":    "caffeine half-life",
		"step.elapsed":      "1.5s",
		"step.error":        "timeout",
		"step.search.count": float64(3),
	}, meta)
}

func TestDBLogHandlerForwardsToNext(t *testing.T) {
	db := &recordingDB{}
	var console bytes.Buffer
	next := slog.NewTextHandler(&console, &slog.HandlerOptions{Level: slog.LevelDebug})

	log := slog.New(NewDBLogHandler(db, uuid.New(), next)).With("job", "j1")
	log.Debug("routing")
	log.Warn("search failed")

	assert.Contains(t, console.String(), "msg=routing job=j1")
	assert.Contains(t, console.String(), `msg="search failed" job=j1`)
	require.Len(t, db.rows, 1, "debug records only reach the console")
	assert.Equal(t, "WARN", db.rows[0][2])
}

func TestDBLogHandlerWithAttrsDoesNotLeak(t *testing.T) {
	db := &recordingDB{}
	base := slog.New(NewDBLogHandler(db, uuid.New(), nil))

	base.With("a", 1).Info("first")
	base.Info("second")

	require.Len(t, db.rows, 2)
	var first, second map[string]any
	require.NoError(t, json.Unmarshal(db.rows[0][4].([]byte), &first))
	require.NoError(t, json.Unmarshal(db.rows[1][4].([]byte), &second))
	assert.Equal(t, map[string]any{"a": float64(1)}, first)
	assert.Empty(t, second)
}
