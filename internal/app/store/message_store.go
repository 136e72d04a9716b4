/*
Package store implements chat.Store on top of the generated PostgreSQL queries.
*/
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"fullchat/internal/app/chat"
	"fullchat/internal/app/db"
	dbc "fullchat/internal/app/db/sqlc"
	"fullchat/internal/app/user"
	"fullchat/internal/pkg/logx"
)

const (
	// DefaultMaxMessageLength is the longest accepted message, in characters.
	DefaultMaxMessageLength = 2000

	// DefaultHistoryLimit is how many of the most recent messages ListMessages returns.
	DefaultHistoryLimit = 500
)

// MessageQuerier is the subset of the generated queries the message store needs.
type MessageQuerier interface {
	CreateMessage(ctx context.Context, arg dbc.CreateMessageParams) (dbc.CreateMessageRow, error)
	ListMessages(ctx context.Context, limit int32) ([]dbc.ListMessagesRow, error)
}

// Options bounds message length and history size.
type Options struct {
	MaxMessageLength int
	HistoryLimit     int
}

// MessageStore persists chat messages in PostgreSQL.
type MessageStore struct {
	queries      MessageQuerier
	maxLength    int
	historyLimit int32
	validate     *validator.Validate
	logger       zerolog.Logger
}

// NewMessageStore returns a store backed by queries.
func NewMessageStore(queries MessageQuerier, opts Options) *MessageStore {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}

	return &MessageStore{
		queries:      queries,
		maxLength:    opts.MaxMessageLength,
		historyLimit: int32(opts.HistoryLimit),
		validate:     validator.New(),
		logger:       logx.Component("MessageStore"),
	}
}

// CreateMessage validates and stores text as a new message by authorID.
// Blank text and text over the length limit fail with *chat.ValidationError, as does an author
// that does not exist. Database failures are returned as *chat.StoreError.
func (s *MessageStore) CreateMessage(ctx context.Context, authorID string, text string) (chat.Message, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, &chat.ValidationError{Field: "text", Reason: chat.ReasonEmpty}
	}

	if err := s.validate.Var(text, fmt.Sprintf("max=%d", s.maxLength)); err != nil {
		return chat.Message{}, &chat.ValidationError{Field: "text", Reason: chat.ReasonTooLong, Limit: s.maxLength}
	}

	author, err := uuid.Parse(authorID)
	if err != nil {
		return chat.Message{}, &chat.ValidationError{Field: "author", Reason: chat.ReasonUnknown}
	}

	row, err := s.queries.CreateMessage(ctx, dbc.CreateMessageParams{
		ID:       pgtype.UUID{Bytes: uuid.New(), Valid: true},
		AuthorID: pgtype.UUID{Bytes: author, Valid: true},
		Text:     text,
	})
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return chat.Message{}, &chat.ValidationError{Field: "author", Reason: chat.ReasonUnknown}
		}
		s.logger.Error().Err(err).Str("user_id", authorID).Msg("Failed to insert message.")
		return chat.Message{}, &chat.StoreError{Op: "create message", Err: err}
	}

	return chat.Message{
		ID:        row.ID.String(),
		Author:    user.Identity{ID: row.AuthorID.String(), Username: row.Username},
		Text:      row.Text,
		CreatedAt: row.CreatedAt.Time,
	}, nil
}

// ListMessages returns the most recent messages, oldest first.
func (s *MessageStore) ListMessages(ctx context.Context) ([]chat.Message, error) {
	rows, err := s.queries.ListMessages(ctx, s.historyLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list messages.")
		return nil, &chat.StoreError{Op: "list messages", Err: err}
	}

	return lo.Map(rows, func(row dbc.ListMessagesRow, _ int) chat.Message {
		return chat.Message{
			ID:        row.ID.String(),
			Author:    user.Identity{ID: row.AuthorID.String(), Username: row.Username},
			Text:      row.Text,
			CreatedAt: row.CreatedAt.Time,
		}
	}), nil
}
