// Package thread defines the data contracts for saved conversations, the
// messages they contain, and per-conversation context configuration.
package thread

import "time"

// Role identifies the author of a message.
type Role string

// Supported message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Attachment is an optional payload attached to a message. Content holds the
// extracted text form when available; binary payloads carry an empty Content
// and are ignored by token estimation.
type Attachment struct {
	Name    string `json:"name,omitempty"`
	Content string `json:"content,omitempty"`
}

// Message is a single utterance in a conversation. Messages are immutable
// once created; ordering by Timestamp is preserved within a conversation.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Conversation is a saved chat thread. Messages are kept in insertion order,
// which is also chronological order.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ParentID  string    `json:"parent_id,omitempty"`
	Archived  bool      `json:"archived,omitempty"`
	Favorite  bool      `json:"favorite,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// MessageIndex returns the index of the message with the given ID, or -1 if
// no such message exists.
func (c *Conversation) MessageIndex(messageID string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// CloneMessages returns a copy of the first n messages. The backing array is
// not shared with the receiver, so appends to either side are independent.
func (c *Conversation) CloneMessages(n int) []Message {
	if n > len(c.Messages) {
		n = len(c.Messages)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Message, n)
	copy(out, c.Messages[:n])
	return out
}
