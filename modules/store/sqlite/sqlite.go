// Package sqlite implements persistent, SQLite-backed conversation, link,
// and context-config stores over a single database file. It uses
// modernc.org/sqlite (pure Go, no CGO) with WAL mode, and supports
// transactional conversation+link writes for fork and continuation.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/flemzord/loom/internal/graph"
	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/pkg/thread"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Compile-time interface guards.
var (
	_ store.ConversationStore  = (*conversationStore)(nil)
	_ store.LinkStore          = (*linkStore)(nil)
	_ store.ContextConfigStore = (*configStore)(nil)
	_ graph.AtomicPairWriter   = (*Stores)(nil)
)

// Stores bundles the three store implementations backed by one database.
type Stores struct {
	db            *sql.DB
	logger        *slog.Logger
	conversations *conversationStore
	links         *linkStore
	configs       *configStore
}

type conversationStore struct{ db *sql.DB }

type linkStore struct{ db *sql.DB }

type configStore struct{ db *sql.DB }

// Open opens (creating if needed) the database at cfg.Path and returns the
// stores. The database uses WAL mode, a busy timeout, and a single
// connection (SQLite serialises writes); the schema is migrated
// automatically. Callers own the returned Stores and must Close them.
func Open(cfg Config, logger *slog.Logger) (*Stores, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	ctx := context.TODO()
	if cfg.walEnabled() {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("sqlite store opened", "path", cfg.Path, "wal", cfg.walEnabled())

	return &Stores{
		db:            db,
		logger:        logger,
		conversations: &conversationStore{db: db},
		links:         &linkStore{db: db},
		configs:       &configStore{db: db},
	}, nil
}

// Conversations returns the ConversationStore implementation.
func (s *Stores) Conversations() store.ConversationStore { return s.conversations }

// Links returns the LinkStore implementation.
func (s *Stores) Links() store.LinkStore { return s.links }

// Configs returns the ContextConfigStore implementation.
func (s *Stores) Configs() store.ContextConfigStore { return s.configs }

// Close closes the underlying database.
func (s *Stores) Close() error {
	s.logger.Info("sqlite store closing")
	return s.db.Close()
}

// SaveConversationAndLink persists a conversation and a link in one
// transaction, so fork and continuation either fully happen or not at all.
func (s *Stores) SaveConversationAndLink(ctx context.Context, conv *thread.Conversation, link thread.Link) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveConversation(ctx, tx, conv); err != nil {
		return err
	}
	if err := saveLink(ctx, tx, link); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// execer abstracts *sql.DB and *sql.Tx for helpers shared between direct
// writes and the transactional pair write.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
