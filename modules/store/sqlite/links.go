package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flemzord/loom/internal/store"
	"github.com/flemzord/loom/pkg/thread"
)

// Save inserts or replaces the link.
func (s *linkStore) Save(ctx context.Context, link thread.Link) error {
	return saveLink(ctx, s.db, link)
}

// Delete removes the link. Returns store.ErrLinkNotFound if it does not
// exist.
func (s *linkStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM links WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("sqlite: delete link: %w", err)
	}
	return requireRow(result, store.ErrLinkNotFound)
}

// Get returns the link with the given ID.
func (s *linkStore) Get(ctx context.Context, id string) (thread.Link, error) {
	links, err := s.queryLinks(ctx, "WHERE id = ?", id)
	if err != nil {
		return thread.Link{}, err
	}
	if len(links) == 0 {
		return thread.Link{}, store.ErrLinkNotFound
	}
	return links[0], nil
}

// ByConversation returns links touching the conversation in either
// direction.
func (s *linkStore) ByConversation(ctx context.Context, conversationID string) ([]thread.Link, error) {
	return s.queryLinks(ctx, "WHERE source_id = ? OR target_id = ?", conversationID, conversationID)
}

// BySource returns links originating at the conversation.
func (s *linkStore) BySource(ctx context.Context, conversationID string) ([]thread.Link, error) {
	return s.queryLinks(ctx, "WHERE source_id = ?", conversationID)
}

// ByTarget returns links pointing at the conversation.
func (s *linkStore) ByTarget(ctx context.Context, conversationID string) ([]thread.Link, error) {
	return s.queryLinks(ctx, "WHERE target_id = ?", conversationID)
}

// List returns all links.
func (s *linkStore) List(ctx context.Context) ([]thread.Link, error) {
	return s.queryLinks(ctx, "")
}

func (s *linkStore) queryLinks(ctx context.Context, where string, args ...any) ([]thread.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, target_id, type, fork_message_id, metadata, created_at
		FROM links `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query links: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []thread.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: query links rows: %w", err)
	}
	return links, nil
}

// saveLink writes one link row. Shared between Save and the transactional
// pair write.
func saveLink(ctx context.Context, ex execer, link thread.Link) error {
	metaJSON := []byte("{}")
	if link.Metadata != nil {
		var err error
		if metaJSON, err = json.Marshal(link.Metadata); err != nil {
			return fmt.Errorf("sqlite: marshal link metadata: %w", err)
		}
	}

	createdAt := link.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	if _, err := ex.ExecContext(ctx, `
		INSERT OR REPLACE INTO links
			(id, source_id, target_id, type, fork_message_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		link.ID, link.SourceID, link.TargetID, string(link.Type),
		link.ForkMessageID, string(metaJSON), createdAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("sqlite: save link: %w", err)
	}
	return nil
}

func scanLink(rows *sql.Rows) (thread.Link, error) {
	var (
		link      thread.Link
		linkType  string
		metaJSON  string
		createdAt string
	)
	if err := rows.Scan(&link.ID, &link.SourceID, &link.TargetID, &linkType,
		&link.ForkMessageID, &metaJSON, &createdAt); err != nil {
		return thread.Link{}, fmt.Errorf("sqlite: scan link: %w", err)
	}
	link.Type = thread.LinkType(linkType)

	if metaJSON != "" && metaJSON != "{}" {
		var meta thread.LinkMetadata
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return thread.Link{}, fmt.Errorf("sqlite: unmarshal link metadata: %w", err)
		}
		link.Metadata = &meta
	}

	var err error
	if link.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return thread.Link{}, fmt.Errorf("sqlite: parse created_at: %w", err)
	}
	return link, nil
}
