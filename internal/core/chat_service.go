package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"gwi.com/chat-dataset/internal/store"
)

const titleTimeout = 30 * time.Second

// TitleGenerator produces a short title from the opening text of a chat.
type TitleGenerator interface {
	GenerateTitleForChat(ctx context.Context, basisContent string) (string, error)
}

type ChatService struct {
	dbStore     store.DataStore
	titles      TitleGenerator // optional
	logger      zerolog.Logger
	maxPageSize int

	pending sync.WaitGroup // title generations in flight
}

func NewChatService(db store.DataStore, titles TitleGenerator, logger zerolog.Logger, maxPageSize int) *ChatService {
	return &ChatService{
		dbStore:     db,
		titles:      titles,
		logger:      logger.With().Str("component", "chat_service").Logger(),
		maxPageSize: maxPageSize,
	}
}

type CreateChatRequest struct {
	UserID     string
	ProjectID  string
	Visibility store.Visibility
	// FirstMessage holds the parts of the opening user turn, if any.
	FirstMessage *string
}

func (s *ChatService) CreateChat(ctx context.Context, req CreateChatRequest) (*store.Chat, []store.Message, error) {
	if req.Visibility == "" {
		req.Visibility = store.VisibilityPrivate
	}
	if !req.Visibility.Valid() {
		return nil, nil, errors.Wrapf(ErrInvalidArgument, "unknown visibility %q", req.Visibility)
	}

	var firstText string
	if req.FirstMessage != nil {
		parts, err := store.DecodeParts(*req.FirstMessage)
		if err != nil {
			return nil, nil, errors.Wrap(ErrInvalidArgument, err.Error())
		}
		firstText, _ = store.FirstText(parts)
	}

	chat := &store.Chat{UserID: req.UserID, ProjectID: req.ProjectID, Visibility: req.Visibility}
	if err := s.dbStore.CreateChat(ctx, chat); err != nil {
		return nil, nil, errors.Wrap(err, "failed to create chat in DB")
	}

	messages := []store.Message{}
	if req.FirstMessage != nil {
		messages = append(messages, store.Message{ChatID: chat.ID, Role: store.RoleUser, Parts: *req.FirstMessage})
		if err := s.dbStore.CreateMessages(ctx, messages); err != nil {
			if delErr := s.dbStore.DeleteChat(ctx, chat.ID); delErr != nil {
				s.logger.Warn().Err(delErr).Str("chat_id", chat.ID).Msg("failed to remove chat after first message was rejected")
			}
			return nil, nil, errors.Wrap(err, "failed to store first user message")
		}
		if firstText != "" {
			s.generateTitleAsync(chat.ID, firstText)
		}
	}

	return chat, messages, nil
}

// GetChat returns the chat if it exists inside projectID.
func (s *ChatService) GetChat(ctx context.Context, projectID, chatID string) (*store.Chat, error) {
	chat, err := s.dbStore.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chat")
	}
	if chat == nil || chat.ProjectID != projectID {
		return nil, errors.Wrapf(store.ErrNotFound, "chat %s in project %s", chatID, projectID)
	}
	return chat, nil
}

func (s *ChatService) GetChatDetails(ctx context.Context, projectID, chatID string) (*store.Chat, []store.Message, error) {
	chat, err := s.GetChat(ctx, projectID, chatID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.dbStore.GetMessagesByChatID(ctx, chatID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to get messages for chat")
	}
	return chat, messages, nil
}

func (s *ChatService) DeleteChat(ctx context.Context, projectID, chatID string) error {
	if _, err := s.GetChat(ctx, projectID, chatID); err != nil {
		return err
	}
	return s.dbStore.DeleteChat(ctx, chatID)
}

func (s *ChatService) UpdateChatVisibility(ctx context.Context, projectID, chatID string, visibility store.Visibility) error {
	if !visibility.Valid() {
		return errors.Wrapf(ErrInvalidArgument, "unknown visibility %q", visibility)
	}
	if _, err := s.GetChat(ctx, projectID, chatID); err != nil {
		return err
	}
	return s.dbStore.UpdateChatVisibility(ctx, chatID, visibility)
}

type NewMessage struct {
	Role  string
	Parts string
}

func (s *ChatService) SaveMessages(ctx context.Context, projectID, chatID string, in []NewMessage) ([]store.Message, error) {
	if len(in) == 0 {
		return nil, errors.Wrap(ErrInvalidArgument, "no messages to save")
	}
	if _, err := s.GetChat(ctx, projectID, chatID); err != nil {
		return nil, err
	}

	messages := make([]store.Message, 0, len(in))
	for _, m := range in {
		if m.Role == "" {
			return nil, errors.Wrap(ErrInvalidArgument, "message role is required")
		}
		if _, err := store.DecodeParts(m.Parts); err != nil {
			return nil, errors.Wrap(ErrInvalidArgument, err.Error())
		}
		messages = append(messages, store.Message{ChatID: chatID, Role: m.Role, Parts: m.Parts})
	}

	if err := s.dbStore.CreateMessages(ctx, messages); err != nil {
		return nil, errors.Wrap(err, "failed to store messages")
	}
	return messages, nil
}

// VoteMessage records an "up" or "down" vote. Repeating a vote, or changing
// its direction, updates the single vote kept for the message.
func (s *ChatService) VoteMessage(ctx context.Context, projectID, chatID, messageID, voteType string) error {
	var isUpvote bool
	switch voteType {
	case "up":
		isUpvote = true
	case "down":
		isUpvote = false
	default:
		return errors.Wrapf(ErrInvalidArgument, "vote type must be up or down, got %q", voteType)
	}
	if messageID == "" {
		return errors.Wrap(ErrInvalidArgument, "messageId is required")
	}
	if _, err := s.GetChat(ctx, projectID, chatID); err != nil {
		return err
	}
	return s.dbStore.UpsertVote(ctx, chatID, messageID, isUpvote)
}

func (s *ChatService) GetVotes(ctx context.Context, projectID, chatID string) ([]store.Vote, error) {
	if _, err := s.GetChat(ctx, projectID, chatID); err != nil {
		return nil, err
	}
	return s.dbStore.GetVotesByChatID(ctx, chatID)
}

// Wait blocks until background title generations have finished.
func (s *ChatService) Wait() {
	s.pending.Wait()
}

func (s *ChatService) generateTitleAsync(chatID, basisContent string) {
	if s.titles == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
		defer cancel()
		s.generateAndSaveChatTitle(ctx, chatID, basisContent)
	}()
}

func (s *ChatService) generateAndSaveChatTitle(ctx context.Context, chatID string, basisContent string) {
	log := s.logger.With().Str("chat_id", chatID).Logger()
	log.Debug().Msg("generating chat title")

	title, err := s.titles.GenerateTitleForChat(ctx, basisContent)
	if err != nil {
		log.Warn().Err(err).Msg("failed to generate chat title")
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")
	if title == "" {
		return
	}

	if err := s.dbStore.UpdateChatTitle(ctx, chatID, title); err != nil {
		log.Warn().Err(err).Str("title", title).Msg("failed to save generated title")
		return
	}
	log.Info().Str("title", title).Msg("saved generated chat title")
}
