package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// WithLogging wraps ds so that every failed operation is logged once, with
// the operation name, before the error is handed back unchanged. Lookups of
// absent records are not failures and are not logged.
func WithLogging(ds DataStore, logger zerolog.Logger) DataStore {
	return &loggingStore{next: ds, logger: logger.With().Str("component", "store").Logger()}
}

type loggingStore struct {
	next   DataStore
	logger zerolog.Logger
}

func (s *loggingStore) observe(op string, err error, fields map[string]any) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	s.logger.Error().Err(err).Str("op", op).Fields(fields).Msg("store operation failed")
	return err
}

func (s *loggingStore) Close() error {
	return s.observe("Close", s.next.Close(), nil)
}

func (s *loggingStore) Ping(ctx context.Context) error {
	return s.observe("Ping", s.next.Ping(ctx), nil)
}

func (s *loggingStore) CreateChat(ctx context.Context, chat *Chat) error {
	err := s.next.CreateChat(ctx, chat)
	return s.observe("CreateChat", err, map[string]any{"user_id": chat.UserID, "project_id": chat.ProjectID})
}

func (s *loggingStore) GetChatByID(ctx context.Context, chatID string) (*Chat, error) {
	chat, err := s.next.GetChatByID(ctx, chatID)
	return chat, s.observe("GetChatByID", err, map[string]any{"chat_id": chatID})
}

func (s *loggingStore) ListChats(ctx context.Context, q ChatQuery) ([]Chat, error) {
	chats, err := s.next.ListChats(ctx, q)
	return chats, s.observe("ListChats", err, map[string]any{"owner_id": q.OwnerID, "project_id": q.ProjectID, "limit": q.Limit})
}

func (s *loggingStore) UpdateChatVisibility(ctx context.Context, chatID string, visibility Visibility) error {
	err := s.next.UpdateChatVisibility(ctx, chatID, visibility)
	return s.observe("UpdateChatVisibility", err, map[string]any{"chat_id": chatID, "visibility": visibility})
}

func (s *loggingStore) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	err := s.next.UpdateChatTitle(ctx, chatID, title)
	return s.observe("UpdateChatTitle", err, map[string]any{"chat_id": chatID})
}

func (s *loggingStore) DeleteChat(ctx context.Context, chatID string) error {
	err := s.next.DeleteChat(ctx, chatID)
	return s.observe("DeleteChat", err, map[string]any{"chat_id": chatID})
}

func (s *loggingStore) CreateMessages(ctx context.Context, messages []Message) error {
	err := s.next.CreateMessages(ctx, messages)
	return s.observe("CreateMessages", err, map[string]any{"count": len(messages)})
}

func (s *loggingStore) GetMessagesByChatID(ctx context.Context, chatID string) ([]Message, error) {
	messages, err := s.next.GetMessagesByChatID(ctx, chatID)
	return messages, s.observe("GetMessagesByChatID", err, map[string]any{"chat_id": chatID})
}

func (s *loggingStore) UpsertVote(ctx context.Context, chatID, messageID string, isUpvote bool) error {
	err := s.next.UpsertVote(ctx, chatID, messageID, isUpvote)
	return s.observe("UpsertVote", err, map[string]any{"chat_id": chatID, "message_id": messageID})
}

func (s *loggingStore) GetVotesByChatID(ctx context.Context, chatID string) ([]Vote, error) {
	votes, err := s.next.GetVotesByChatID(ctx, chatID)
	return votes, s.observe("GetVotesByChatID", err, map[string]any{"chat_id": chatID})
}
