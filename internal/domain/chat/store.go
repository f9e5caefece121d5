// Package chat owns conversations and their messages, and runs one chat turn
// against a registered LLM provider.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"

	"github.com/matiasleandrokruk/llmhub/internal/infra/llm"
	"github.com/matiasleandrokruk/llmhub/pkg/uuid"
)

// ErrConversationNotFound is returned both for missing conversations and for
// conversations owned by another user.
var ErrConversationNotFound = errors.New("conversation not found")

var (
	ErrInvalidRole  = errors.New("invalid message role")
	ErrEmptyTitle   = errors.New("conversation title is required")
	ErrEmptyContent = errors.New("message content is required")
)

// ConversationListLimit caps ListConversations.
const ConversationListLimit = 50

// Conversation timestamps are unix milliseconds.
type Conversation struct {
	ID            string `db:"id" json:"id"`
	UserID        string `db:"user_id" json:"userId"`
	Title         string `db:"title" json:"title"`
	ModelProvider string `db:"model_provider" json:"modelProvider"`
	ModelName     string `db:"model_name" json:"modelName"`
	CreatedAt     int64  `db:"created_at" json:"createdAt"`
	UpdatedAt     int64  `db:"updated_at" json:"updatedAt"`
}

// Message is immutable once stored. Provider and model are set on assistant turns.
type Message struct {
	ID             string  `db:"id" json:"id"`
	ConversationID string  `db:"conversation_id" json:"conversationId"`
	Role           string  `db:"role" json:"role"`
	Content        string  `db:"content" json:"content"`
	Timestamp      int64   `db:"timestamp" json:"timestamp"`
	ModelProvider  *string `db:"model_provider" json:"modelProvider,omitempty"`
	ModelName      *string `db:"model_name" json:"modelName,omitempty"`
	TokenCount     *int64  `db:"token_count" json:"tokenCount,omitempty"`
}

type CreateConversationInput struct {
	Title         string
	ModelProvider string
	ModelName     string
}

type AppendMessageInput struct {
	ConversationID string
	Role           string
	Content        string
	ModelProvider  string
	ModelName      string
	TokenCount     *int64
}

// Store persists conversations and messages. Every method takes the acting
// user and checks ownership before reading or writing.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const selectConversation = `
	SELECT id, user_id, title, model_provider, model_name, created_at, updated_at
	FROM conversation`

func (s *Store) CreateConversation(ctx context.Context, userID string, in CreateConversationInput) (*Conversation, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	now := s.now().UnixMilli()
	conv := &Conversation{
		ID:            uuid.NewV7(),
		UserID:        userID,
		Title:         title,
		ModelProvider: in.ModelProvider,
		ModelName:     in.ModelName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation (id, user_id, title, model_provider, model_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, conv.ID, conv.UserID, conv.Title, conv.ModelProvider, conv.ModelName, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("chat: create conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	return getOwnedConversation(ctx, s.db, userID, conversationID)
}

// ListConversations returns the user's most recently updated conversations.
func (s *Store) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	out := []Conversation{}
	err := sqlscan.Select(ctx, s.db, &out,
		selectConversation+` WHERE user_id = ? ORDER BY updated_at DESC, rowid DESC LIMIT ?`,
		userID, ConversationListLimit)
	if err != nil {
		return nil, fmt.Errorf("chat: list conversations: %w", err)
	}
	return out, nil
}

func (s *Store) RenameConversation(ctx context.Context, userID, conversationID, title string) (*Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversation SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		title, s.now().UnixMilli(), conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("chat: rename conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrConversationNotFound
	}
	return s.GetConversation(ctx, userID, conversationID)
}

// DeleteConversation removes the messages and then the conversation in one
// transaction.
func (s *Store) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chat: begin delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := getOwnedConversation(ctx, tx, userID, conversationID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM message WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("chat: delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation WHERE id = ?`, conversationID); err != nil {
		return fmt.Errorf("chat: delete conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("chat: commit delete: %w", err)
	}
	return nil
}

// AppendMessage inserts a message and bumps the conversation's updated_at.
func (s *Store) AppendMessage(ctx context.Context, userID string, in AppendMessageInput) (*Message, error) {
	switch in.Role {
	case llm.RoleUser, llm.RoleAssistant, llm.RoleSystem:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, in.Role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chat: begin append: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := getOwnedConversation(ctx, tx, userID, in.ConversationID); err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	msg := &Message{
		ID:             uuid.NewV7(),
		ConversationID: in.ConversationID,
		Role:           in.Role,
		Content:        in.Content,
		Timestamp:      now,
		ModelProvider:  optional(in.ModelProvider),
		ModelName:      optional(in.ModelName),
		TokenCount:     in.TokenCount,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO message (id, conversation_id, role, content, timestamp, model_provider, model_name, token_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Timestamp, msg.ModelProvider, msg.ModelName, msg.TokenCount)
	if err != nil {
		return nil, fmt.Errorf("chat: insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversation SET updated_at = ? WHERE id = ?`, now, in.ConversationID); err != nil {
		return nil, fmt.Errorf("chat: touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("chat: commit append: %w", err)
	}
	return msg, nil
}

// ListMessages returns the transcript in (timestamp, insertion) order.
func (s *Store) ListMessages(ctx context.Context, userID, conversationID string) ([]Message, error) {
	if _, err := s.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	out := []Message{}
	err := sqlscan.Select(ctx, s.db, &out, `
		SELECT id, conversation_id, role, content, timestamp, model_provider, model_name, token_count
		FROM message WHERE conversation_id = ? ORDER BY timestamp, rowid`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("chat: list messages: %w", err)
	}
	return out, nil
}

func getOwnedConversation(ctx context.Context, q sqlscan.Querier, userID, conversationID string) (*Conversation, error) {
	var conv Conversation
	err := sqlscan.Get(ctx, q, &conv, selectConversation+` WHERE id = ?`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("chat: load conversation: %w", err)
	}
	if conv.UserID != userID {
		return nil, ErrConversationNotFound
	}
	return &conv, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
