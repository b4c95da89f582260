package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/pkg/thread"
)

// Get returns the stored context config for the conversation.
func (s *configStore) Get(ctx context.Context, conversationID string) (thread.ContextConfig, error) {
	var (
		cfg           thread.ContextConfig
		includedJSON  string
		parent, links int
		strategy      string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, included_links, auto_load_parent, auto_load_links, strategy, max_tokens
		FROM context_configs WHERE conversation_id = ?`, conversationID,
	).Scan(&cfg.ConversationID, &includedJSON, &parent, &links, &strategy, &cfg.MaxTokens)
	if err == sql.ErrNoRows {
		return thread.ContextConfig{}, store.ErrConfigNotFound
	}
	if err != nil {
		return thread.ContextConfig{}, fmt.Errorf("sqlite: get context config: %w", err)
	}

	if err := json.Unmarshal([]byte(includedJSON), &cfg.IncludedLinks); err != nil {
		return thread.ContextConfig{}, fmt.Errorf("sqlite: unmarshal included links: %w", err)
	}
	cfg.AutoLoadParent = parent != 0
	cfg.AutoLoadLinks = links != 0
	cfg.Strategy = thread.TruncationStrategy(strategy)
	return cfg.WithDefaults(), nil
}

// Put stores the config, replacing any existing one.
func (s *configStore) Put(ctx context.Context, cfg thread.ContextConfig) error {
	cfg = cfg.WithDefaults()

	includedJSON, err := json.Marshal(cfg.IncludedLinks)
	if err != nil {
		return fmt.Errorf("sqlite: marshal included links: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO context_configs
			(conversation_id, included_links, auto_load_parent, auto_load_links, strategy, max_tokens)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cfg.ConversationID, string(includedJSON),
		boolToInt(cfg.AutoLoadParent), boolToInt(cfg.AutoLoadLinks),
		string(cfg.Strategy), cfg.MaxTokens,
	); err != nil {
		return fmt.Errorf("sqlite: put context config: %w", err)
	}
	return nil
}

// Delete removes the stored config. Absent configs are a no-op.
func (s *configStore) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM context_configs WHERE conversation_id = ?", conversationID); err != nil {
		return fmt.Errorf("sqlite: delete context config: %w", err)
	}
	return nil
}
