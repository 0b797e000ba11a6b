package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the part of a pgx pool the log handler writes through.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DBLogHandler is a slog.Handler that writes records of one job to the
// research_logs table. Records are also passed to Next when it is set, so
// job output still shows up on the console.
type DBLogHandler struct {
	DB    Execer
	JobID uuid.UUID
	Level slog.Leveler
	Next  slog.Handler

	attrs  map[string]any
	prefix string
}

func NewDBLogHandler(db Execer, jobID uuid.UUID, next slog.Handler) *DBLogHandler {
	return &DBLogHandler{
		DB:    db,
		JobID: jobID,
		Level: slog.LevelInfo,
		Next:  next,
	}
}

func (h *DBLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.Next != nil && h.Next.Enabled(ctx, level) {
		return true
	}
	return level >= h.minLevel()
}

func (h *DBLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.Next != nil && h.Next.Enabled(ctx, r.Level) {
		_ = h.Next.Handle(ctx, r.Clone())
	}
	if r.Level < h.minLevel() {
		return nil
	}

	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for k, v := range h.attrs {
		meta[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		flatten(meta, h.prefix, a)
		return true
	})

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`
	// Logs of a cancelled run still belong to the job.
	_, err = h.DB.Exec(context.WithoutCancel(ctx), query, h.JobID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

func (h *DBLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	for _, a := range attrs {
		flatten(h2.attrs, h2.prefix, a)
	}
	if h2.Next != nil {
		h2.Next = h2.Next.WithAttrs(attrs)
	}
	return h2
}

func (h *DBLogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.prefix = h.prefix + name + "."
	if h2.Next != nil {
		h2.Next = h2.Next.WithGroup(name)
	}
	return h2
}

func (h *DBLogHandler) clone() *DBLogHandler {
	attrs := make(map[string]any, len(h.attrs))
	for k, v := range h.attrs {
		attrs[k] = v
	}
	return &DBLogHandler{
		DB:     h.DB,
		JobID:  h.JobID,
		Level:  h.Level,
		Next:   h.Next,
		attrs:  attrs,
		prefix: h.prefix,
	}
}

func (h *DBLogHandler) minLevel() slog.Level {
	if h.Level == nil {
		return slog.LevelInfo
	}
	return h.Level.Level()
}

// flatten stores a under its dotted key. Groups are expanded and errors are
// stored as their message.
func flatten(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range v.Group() {
			flatten(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	key := prefix + a.Key

	switch x := v.Any().(type) {
	case error:
		dst[key] = x.Error()
	case slog.Level:
		dst[key] = x.String()
	default:
		if v.Kind() == slog.KindDuration {
			dst[key] = v.Duration().String()
			return
		}
		dst[key] = x
	}
}
