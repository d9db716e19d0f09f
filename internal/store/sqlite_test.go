package store

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func mustCreateChat(t *testing.T, s DataStore, userID, projectID string, visibility Visibility, offset time.Duration) Chat {
	t.Helper()
	chat := Chat{UserID: userID, ProjectID: projectID, Visibility: visibility, CreatedAt: baseTime.Add(offset)}
	require.NoError(t, s.CreateChat(context.Background(), &chat))
	return chat
}

func TestCreateAndGetChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chat := Chat{UserID: "u1", ProjectID: "p1", CreatedAt: baseTime.Add(123456789 * time.Nanosecond)}
	require.NoError(t, s.CreateChat(ctx, &chat))
	assert.NotEmpty(t, chat.ID)
	assert.Equal(t, VisibilityPrivate, chat.Visibility)

	got, err := s.GetChatByID(ctx, chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, chat, *got)
	assert.Nil(t, got.Title)

	missing, err := s.GetChatByID(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListChatsVisibilityAndOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	own1 := mustCreateChat(t, s, "alice", "p1", VisibilityPrivate, 1*time.Minute)
	public := mustCreateChat(t, s, "bob", "p1", VisibilityPublic, 2*time.Minute)
	mustCreateChat(t, s, "bob", "p1", VisibilityPrivate, 3*time.Minute)   // someone else's private chat
	mustCreateChat(t, s, "alice", "p2", VisibilityPrivate, 4*time.Minute) // own chat, other project
	mustCreateChat(t, s, "bob", "p2", VisibilityPublic, 5*time.Minute)    // public chat, other project
	own2 := mustCreateChat(t, s, "alice", "p1", VisibilityPublic, 6*time.Minute)

	chats, err := s.ListChats(ctx, ChatQuery{OwnerID: "alice", ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []string{own2.ID, public.ID, own1.ID}, chatIDs(chats))

	limited, err := s.ListChats(ctx, ChatQuery{OwnerID: "alice", ProjectID: "p1", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{own2.ID, public.ID}, chatIDs(limited))
}

func TestListChatsBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1 := mustCreateChat(t, s, "u", "p", VisibilityPrivate, 1*time.Second)
	c2 := mustCreateChat(t, s, "u", "p", VisibilityPrivate, 2*time.Second)
	c3 := mustCreateChat(t, s, "u", "p", VisibilityPrivate, 3*time.Second)

	after, err := s.ListChats(ctx, ChatQuery{OwnerID: "u", ProjectID: "p", CreatedAfter: &c1.CreatedAt})
	require.NoError(t, err)
	assert.Equal(t, []string{c3.ID, c2.ID}, chatIDs(after))

	before, err := s.ListChats(ctx, ChatQuery{OwnerID: "u", ProjectID: "p", CreatedBefore: &c3.CreatedAt})
	require.NoError(t, err)
	assert.Equal(t, []string{c2.ID, c1.ID}, chatIDs(before))

	none, err := s.ListChats(ctx, ChatQuery{OwnerID: "u", ProjectID: "p", CreatedAfter: &c3.CreatedAt})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestUpdateAndDeleteChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := mustCreateChat(t, s, "u", "p", VisibilityPrivate, 0)

	require.NoError(t, s.UpdateChatVisibility(ctx, chat.ID, VisibilityPublic))
	require.NoError(t, s.UpdateChatTitle(ctx, chat.ID, "Weekend plans"))

	got, err := s.GetChatByID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, VisibilityPublic, got.Visibility)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Weekend plans", *got.Title)

	assert.ErrorIs(t, s.UpdateChatVisibility(ctx, "missing", VisibilityPublic), ErrNotFound)
	assert.ErrorIs(t, s.UpdateChatTitle(ctx, "missing", "x"), ErrNotFound)
	assert.ErrorIs(t, s.DeleteChat(ctx, "missing"), ErrNotFound)
}

func TestDeleteChatCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := mustCreateChat(t, s, "u", "p", VisibilityPrivate, 0)

	msgs := []Message{{ChatID: chat.ID, Role: RoleUser, Parts: `[{"type":"text","text":"hi"}]`}}
	require.NoError(t, s.CreateMessages(ctx, msgs))
	require.NoError(t, s.UpsertVote(ctx, chat.ID, msgs[0].ID, true))

	require.NoError(t, s.DeleteChat(ctx, chat.ID))

	messages, err := s.GetMessagesByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, messages)

	votes, err := s.GetVotesByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestMessagesChronological(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := mustCreateChat(t, s, "u", "p", VisibilityPrivate, 0)

	// Inserted out of order on purpose.
	late := Message{ChatID: chat.ID, Role: RoleAssistant, Parts: `[]`, CreatedAt: baseTime.Add(2 * time.Second)}
	early := Message{ChatID: chat.ID, Role: RoleUser, Parts: `[]`, CreatedAt: baseTime.Add(1 * time.Second)}
	require.NoError(t, s.CreateMessages(ctx, []Message{late}))
	require.NoError(t, s.CreateMessages(ctx, []Message{early}))

	// Same timestamp keeps insertion order.
	tied := []Message{
		{ChatID: chat.ID, Role: RoleUser, Parts: `[]`},
		{ChatID: chat.ID, Role: RoleAssistant, Parts: `[]`},
	}
	tied[0].CreatedAt = baseTime.Add(3 * time.Second)
	tied[1].CreatedAt = tied[0].CreatedAt
	require.NoError(t, s.CreateMessages(ctx, tied))

	messages, err := s.GetMessagesByChatID(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	assert.Equal(t, RoleUser, messages[0].Role)
	assert.Equal(t, RoleAssistant, messages[1].Role)
	assert.Equal(t, tied[0].ID, messages[2].ID)
	assert.Equal(t, tied[1].ID, messages[3].ID)
}

func TestCreateMessagesUnknownChat(t *testing.T) {
	s := newTestStore(t)
	err := s.CreateMessages(context.Background(), []Message{{ChatID: "nope", Role: RoleUser, Parts: `[]`}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertVoteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chat := mustCreateChat(t, s, "u", "p", VisibilityPrivate, 0)
	msgs := []Message{{ChatID: chat.ID, Role: RoleAssistant, Parts: `[]`}}
	require.NoError(t, s.CreateMessages(ctx, msgs))

	require.NoError(t, s.UpsertVote(ctx, chat.ID, msgs[0].ID, true))
	require.NoError(t, s.UpsertVote(ctx, chat.ID, msgs[0].ID, true))

	votes, err := s.GetVotesByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, []Vote{{ChatID: chat.ID, MessageID: msgs[0].ID, IsUpvote: true}}, votes)

	require.NoError(t, s.UpsertVote(ctx, chat.ID, msgs[0].ID, false))

	votes, err = s.GetVotesByChatID(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, []Vote{{ChatID: chat.ID, MessageID: msgs[0].ID, IsUpvote: false}}, votes)

	assert.ErrorIs(t, s.UpsertVote(ctx, chat.ID, "missing-message", true), ErrNotFound)
}

func TestUpsertVoteRejectsMessageFromAnotherChat(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	chatA := mustCreateChat(t, s, "u", "p1", VisibilityPrivate, 0)
	chatB := mustCreateChat(t, s, "v", "p2", VisibilityPrivate, time.Second)
	msgs := []Message{{ChatID: chatB.ID, Role: RoleAssistant, Parts: `[]`}}
	require.NoError(t, s.CreateMessages(ctx, msgs))

	err := s.UpsertVote(ctx, chatA.ID, msgs[0].ID, true)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStoreFailure)

	votes, err := s.GetVotesByChatID(ctx, chatA.ID)
	require.NoError(t, err)
	assert.Empty(t, votes)
}

func TestStoreFailuresAreTagged(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.ListChats(context.Background(), ChatQuery{OwnerID: "u", ProjectID: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestWithLoggingLogsFailuresOnly(t *testing.T) {
	s := newTestStore(t)
	var buf bytes.Buffer
	logged := WithLogging(s, zerolog.New(&buf))
	ctx := context.Background()

	_, err := logged.GetChatByID(ctx, "missing")
	require.NoError(t, err)
	assert.ErrorIs(t, logged.DeleteChat(ctx, "missing"), ErrNotFound)
	assert.Zero(t, buf.Len())

	require.NoError(t, s.Close())
	_, err = logged.ListChats(ctx, ChatQuery{OwnerID: "u", ProjectID: "p"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStoreFailure), "error is returned unchanged")
	assert.Contains(t, buf.String(), `"op":"ListChats"`)
	assert.Contains(t, buf.String(), `"project_id":"p"`)
}

func chatIDs(chats []Chat) []string {
	ids := make([]string, 0, len(chats))
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	return ids
}
