// Package app wires the research engine and its stores from configuration.
// Both the server and the CLI build on it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/mikeboe/research-advisor/pkg/archive"
	"github.com/mikeboe/research-advisor/pkg/assistant"
	"github.com/mikeboe/research-advisor/pkg/clients"
	"github.com/mikeboe/research-advisor/pkg/config"
	"github.com/mikeboe/research-advisor/pkg/database"
	"github.com/mikeboe/research-advisor/pkg/embeddings"
	"github.com/mikeboe/research-advisor/pkg/feedback"
	"github.com/mikeboe/research-advisor/pkg/research"
	"github.com/mikeboe/research-advisor/pkg/research/tools"
	"github.com/mikeboe/research-advisor/pkg/session"
	"github.com/mikeboe/research-advisor/pkg/splitter"
	"github.com/mikeboe/research-advisor/pkg/vectorstore"
)

// App holds the configured collaborators. DB, Archive and PDF are nil when
// not configured.
type App struct {
	Config   *config.Config
	DB       *database.PostgresDB
	Reasoner research.Reasoner
	Searcher research.Searcher
	Splitter *splitter.TextSplitter
	Sessions session.Store
	Feedback feedback.Store
	Analyzer *feedback.Analyzer
	Archive  *archive.Index
	PDF      *tools.PDFReader
}

// SetupLogger installs a text handler writing to w at the configured level
// as the default logger.
func SetupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// New builds the application. With DATABASE_URL set, sessions and feedback
// are stored in Postgres and the session archive is enabled when embeddings
// are available; otherwise sessions go to SESSIONS_DIR and feedback to
// FEEDBACK_FILE.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reasoner, err := clients.NewReasoner(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create reasoner: %w", err)
	}
	searcher, err := clients.NewSearcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create searcher: %w", err)
	}

	a := &App{
		Config:   cfg,
		Reasoner: reasoner,
		Searcher: searcher,
		Splitter: splitter.NewRecursiveCharacterTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		PDF:      tools.NewPDFReader(cfg.MistralApiKey),
	}

	if cfg.DatabaseURL == "" {
		a.Sessions = session.NewFileStore(cfg.SessionsDir)
		a.Feedback = feedback.NewFileStore(cfg.FeedbackFile)
	} else {
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.InitSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		a.DB = db
		a.Sessions = session.NewPostgresStore(db.Pool)
		a.Feedback = feedback.NewPostgresStore(db.Pool)

		if cfg.GoogleApiKey != "" {
			ix, err := a.newArchive(ctx)
			if err != nil {
				// The archive is optional; runs work without it.
				slog.Warn("Session archive disabled", "error", err)
			} else {
				a.Archive = ix
			}
		}
	}

	a.Analyzer = feedback.NewAnalyzer(a.Feedback, reasoner)
	return a, nil
}

func (a *App) newArchive(ctx context.Context) (*archive.Index, error) {
	embedder, err := embeddings.NewGoogleEmbedder(ctx, a.Config.EmbeddingModel, a.Config.GoogleApiKey)
	if err != nil {
		return nil, err
	}
	if err := a.DB.EnsureVectorExtension(ctx); err != nil {
		return nil, fmt.Errorf("failed to enable pgvector: %w", err)
	}
	if err := a.DB.CreateArchiveTable(ctx, a.Config.CollectionName, embedder.Dimension()); err != nil {
		return nil, err
	}
	store, err := vectorstore.NewPGVectorStore(a.DB.Pool, a.Config.CollectionName)
	if err != nil {
		return nil, err
	}
	return archive.NewIndex(store, embedder, a.Splitter), nil
}

// Engine returns a new engine over the app's collaborators that logs to log.
func (a *App) Engine(log *slog.Logger) *research.ResearchEngine {
	opts := []research.Option{
		research.WithConfig(a.Config.Research()),
		research.WithLogger(log),
		research.WithPersister(a.Sessions),
		research.WithSplitter(a.Splitter),
	}
	if a.Archive != nil {
		opts = append(opts, research.WithArchiver(a.Archive))
	}
	return research.NewEngine(a.Reasoner, a.Searcher, opts...)
}

// Toolset returns the research tools for the assistant and MCP.
func (a *App) Toolset(engine assistant.Researcher) *assistant.ResearchToolset {
	ts := assistant.NewResearchToolset(engine, a.Sessions)
	if a.Archive != nil {
		ts.Archive = a.Archive
	}
	if a.PDF != nil {
		ts.PDF = a.PDF
	}
	return ts
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}
