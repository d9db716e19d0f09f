package store

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStoreFailure matches every error produced by a store operation.
	ErrStoreFailure = errors.New("store failure")
)

// DataStore is the record store used by the services. Point lookups return
// (nil, nil) when the record is absent.
type DataStore interface {
	Close() error
	Ping(ctx context.Context) error

	// Chat operations
	CreateChat(ctx context.Context, chat *Chat) error
	GetChatByID(ctx context.Context, chatID string) (*Chat, error)
	ListChats(ctx context.Context, q ChatQuery) ([]Chat, error)
	UpdateChatVisibility(ctx context.Context, chatID string, visibility Visibility) error
	UpdateChatTitle(ctx context.Context, chatID, title string) error
	DeleteChat(ctx context.Context, chatID string) error

	// Message operations
	CreateMessages(ctx context.Context, messages []Message) error
	GetMessagesByChatID(ctx context.Context, chatID string) ([]Message, error)

	// Vote operations
	UpsertVote(ctx context.Context, chatID, messageID string, isUpvote bool) error
	GetVotesByChatID(ctx context.Context, chatID string) ([]Vote, error)
}

// opError tags a failed store operation so that errors.Is(err, ErrStoreFailure)
// holds while the driver error stays reachable through Unwrap.
type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return e.op + ": " + e.err.Error() }

func (e *opError) Unwrap() error { return e.err }

func (e *opError) Is(target error) bool { return target == ErrStoreFailure }

func failure(err error, op string) error {
	return &opError{op: op, err: errors.WithStack(err)}
}
