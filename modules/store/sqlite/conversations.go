package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/pkg/thread"
)

// Get returns the conversation with its messages in seq order.
func (s *conversationStore) Get(ctx context.Context, id string) (*thread.Conversation, error) {
	conv, err := scanConversationRow(s.db.QueryRowContext(ctx, `
		SELECT id, title, model, parent_id, archived, favorite, tags, created_at, updated_at
		FROM conversations WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	conv.Messages, err = loadMessages(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// Save inserts or replaces the conversation and its messages.
func (s *conversationStore) Save(ctx context.Context, conv *thread.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := saveConversation(ctx, tx, conv); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Update applies a partial update and refreshes updated_at.
func (s *conversationStore) Update(ctx context.Context, id string, patch store.ConversationPatch) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC().Format(time.RFC3339Nano)}

	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Model != nil {
		sets = append(sets, "model = ?")
		args = append(args, *patch.Model)
	}
	if patch.Archived != nil {
		sets = append(sets, "archived = ?")
		args = append(args, boolToInt(*patch.Archived))
	}
	if patch.Favorite != nil {
		sets = append(sets, "favorite = ?")
		args = append(args, boolToInt(*patch.Favorite))
	}
	if patch.Tags != nil {
		tagsJSON, err := json.Marshal(patch.Tags)
		if err != nil {
			return fmt.Errorf("sqlite: marshal tags: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, string(tagsJSON))
	}

	args = append(args, id)
	result, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("sqlite: update conversation: %w", err)
	}
	return requireRow(result, store.ErrConversationNotFound)
}

// AppendMessages appends messages after the current max seq and refreshes
// updated_at.
func (s *conversationStore) AppendMessages(ctx context.Context, id string, msgs ...thread.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("sqlite: touch conversation: %w", err)
	}
	if err := requireRow(result, store.ErrConversationNotFound); err != nil {
		return err
	}

	for i := range msgs {
		if err := insertMessage(ctx, tx, id, msgs[i], `
			COALESCE((SELECT MAX(seq) FROM messages WHERE conversation_id = ?), 0) + 1`); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// List returns all conversations with their messages, ordered by
// created_at then id.
func (s *conversationStore) List(ctx context.Context) ([]*thread.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, model, parent_id, archived, favorite, tags, created_at, updated_at
		FROM conversations ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var convs []*thread.Conversation
	byID := make(map[string]*thread.Conversation)
	for rows.Next() {
		conv, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, conv)
		byID[conv.ID] = conv
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list conversations rows: %w", err)
	}

	// One pass over all messages instead of a query per conversation.
	msgRows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, id, role, content, timestamp, attachments
		FROM messages ORDER BY conversation_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list messages: %w", err)
	}
	defer func() { _ = msgRows.Close() }()

	for msgRows.Next() {
		var convID string
		msg, err := scanMessage(msgRows, &convID)
		if err != nil {
			return nil, err
		}
		if conv, ok := byID[convID]; ok {
			conv.Messages = append(conv.Messages, msg)
		}
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list messages rows: %w", err)
	}

	return convs, nil
}

// Delete removes the conversation and its messages. Links and context
// configs are left in place; readers tolerate orphans and the janitor
// sweeps them.
func (s *conversationStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete conversation: %w", err)
	}
	if err := requireRow(result, store.ErrConversationNotFound); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("sqlite: delete messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// saveConversation writes the conversation row and rewrites its messages.
// Shared between Save and the transactional pair write.
func saveConversation(ctx context.Context, ex execer, conv *thread.Conversation) error {
	tagsJSON, err := json.Marshal(conv.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: marshal tags: %w", err)
	}

	createdAt := conv.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := conv.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	if _, err := ex.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversations
			(id, title, model, parent_id, archived, favorite, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.Model, conv.ParentID,
		boolToInt(conv.Archived), boolToInt(conv.Favorite), string(tagsJSON),
		createdAt.Format(time.RFC3339Nano), updatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("sqlite: save conversation: %w", err)
	}

	if _, err := ex.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return fmt.Errorf("sqlite: clear messages: %w", err)
	}
	for i := range conv.Messages {
		if err := insertMessage(ctx, ex, conv.ID, conv.Messages[i], fmt.Sprintf("%d", i+1)); err != nil {
			return err
		}
	}
	return nil
}

// insertMessage inserts one message row. seqExpr is a SQL expression for
// the seq column; extra ? placeholders in it must reference the
// conversation ID.
func insertMessage(ctx context.Context, ex execer, convID string, msg thread.Message, seqExpr string) error {
	attJSON, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("sqlite: marshal attachments: %w", err)
	}

	args := []any{convID}
	if strings.Contains(seqExpr, "?") {
		args = append(args, convID)
	}
	args = append(args,
		msg.ID, string(msg.Role), msg.Content,
		msg.Timestamp.UTC().Format(time.RFC3339Nano), string(attJSON),
	)

	if _, err := ex.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, seq, id, role, content, timestamp, attachments)
		VALUES (?, `+seqExpr+`, ?, ?, ?, ?, ?)`, args...); err != nil {
		return fmt.Errorf("sqlite: insert message: %w", err)
	}
	return nil
}

// loadMessages returns a conversation's messages in seq order.
func loadMessages(ctx context.Context, ex execer, convID string) ([]thread.Message, error) {
	rows, err := ex.QueryContext(ctx, `
		SELECT conversation_id, id, role, content, timestamp, attachments
		FROM messages WHERE conversation_id = ? ORDER BY seq`, convID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []thread.Message
	for rows.Next() {
		var id string
		msg, err := scanMessage(rows, &id)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: load messages rows: %w", err)
	}
	return msgs, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversationRow(row rowScanner) (*thread.Conversation, error) {
	var (
		conv                 thread.Conversation
		archived, favorite   int
		tagsJSON             string
		createdAt, updatedAt string
	)
	err := row.Scan(&conv.ID, &conv.Title, &conv.Model, &conv.ParentID,
		&archived, &favorite, &tagsJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan conversation: %w", err)
	}

	conv.Archived = archived != 0
	conv.Favorite = favorite != 0
	if err := json.Unmarshal([]byte(tagsJSON), &conv.Tags); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal tags: %w", err)
	}
	if conv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse created_at: %w", err)
	}
	if conv.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse updated_at: %w", err)
	}
	return &conv, nil
}

func scanMessage(rows *sql.Rows, convID *string) (thread.Message, error) {
	var (
		msg       thread.Message
		role      string
		timestamp string
		attJSON   string
	)
	if err := rows.Scan(convID, &msg.ID, &role, &msg.Content, &timestamp, &attJSON); err != nil {
		return thread.Message{}, fmt.Errorf("sqlite: scan message: %w", err)
	}
	msg.Role = thread.Role(role)

	var err error
	if msg.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
		return thread.Message{}, fmt.Errorf("sqlite: parse timestamp: %w", err)
	}
	if err := json.Unmarshal([]byte(attJSON), &msg.Attachments); err != nil {
		return thread.Message{}, fmt.Errorf("sqlite: unmarshal attachments: %w", err)
	}
	return msg, nil
}

func requireRow(result sql.Result, missing error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return missing
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
