package core

import (
	"context"

	"github.com/pkg/errors"

	"gwi.com/chat-dataset/internal/store"
)

// ErrInvalidArgument is returned for requests the caller must fix.
var ErrInvalidArgument = errors.New("invalid argument")

type ListChatsRequest struct {
	OwnerID   string
	ProjectID string
	Limit     int

	// At most one of these may be set. Each holds the id of an existing chat.
	StartingAfter string // only chats newer than this one
	EndingBefore  string // only chats older than this one
}

type ChatPage struct {
	Chats   []store.Chat `json:"chats"`
	HasMore bool         `json:"hasMore"`
}

// ListChats returns one page of the chats OwnerID can see in ProjectID:
// their own chats plus public ones, newest first in every direction.
//
// One extra row is fetched to tell whether more results exist. Resolving the
// cursor and scanning are two separate store calls, so a cursor chat deleted
// in between still yields a page anchored at the timestamp read first.
func (s *ChatService) ListChats(ctx context.Context, req ListChatsRequest) (*ChatPage, error) {
	if req.Limit <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "limit must be positive, got %d", req.Limit)
	}
	if req.StartingAfter != "" && req.EndingBefore != "" {
		return nil, errors.Wrap(ErrInvalidArgument, "only one of starting_after or ending_before may be set")
	}
	if s.maxPageSize > 0 && req.Limit > s.maxPageSize {
		req.Limit = s.maxPageSize
	}

	q := store.ChatQuery{
		OwnerID:   req.OwnerID,
		ProjectID: req.ProjectID,
		Limit:     req.Limit + 1,
	}

	switch {
	case req.StartingAfter != "":
		anchor, err := s.resolveCursor(ctx, req.StartingAfter)
		if err != nil {
			return nil, err
		}
		q.CreatedAfter = &anchor.CreatedAt
	case req.EndingBefore != "":
		anchor, err := s.resolveCursor(ctx, req.EndingBefore)
		if err != nil {
			return nil, err
		}
		q.CreatedBefore = &anchor.CreatedAt
	}

	chats, err := s.dbStore.ListChats(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "listing chats")
	}

	page := &ChatPage{Chats: chats, HasMore: len(chats) > req.Limit}
	if page.HasMore {
		page.Chats = chats[:req.Limit]
	}
	if page.Chats == nil {
		page.Chats = []store.Chat{}
	}
	return page, nil
}

func (s *ChatService) resolveCursor(ctx context.Context, chatID string) (*store.Chat, error) {
	anchor, err := s.dbStore.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving cursor %s", chatID)
	}
	if anchor == nil {
		return nil, errors.Wrapf(store.ErrNotFound, "chat with id %s", chatID)
	}
	return anchor, nil
}
