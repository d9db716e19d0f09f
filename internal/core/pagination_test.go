package core

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/chat-dataset/internal/store"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestService(t *testing.T, db store.DataStore, titles TitleGenerator) *ChatService {
	t.Helper()
	return NewChatService(db, titles, zerolog.Nop(), 50)
}

// seedChats creates n chats owned by userID in projectID, one second apart,
// and returns them oldest first.
func seedChats(t *testing.T, db store.DataStore, userID, projectID string, n int) []store.Chat {
	t.Helper()
	chats := make([]store.Chat, 0, n)
	for i := 0; i < n; i++ {
		chat := store.Chat{
			ID:        fmt.Sprintf("%s-%s-%02d", projectID, userID, i),
			UserID:    userID,
			ProjectID: projectID,
			CreatedAt: baseTime.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.CreateChat(context.Background(), &chat))
		chats = append(chats, chat)
	}
	return chats
}

func ids(chats []store.Chat) []string {
	out := make([]string, 0, len(chats))
	for _, c := range chats {
		out = append(out, c.ID)
	}
	return out
}

func TestListChatsFirstPage(t *testing.T) {
	db := newTestStore(t)
	svc := newTestService(t, db, nil)
	chats := seedChats(t, db, "u", "p", 5)

	page, err := svc.ListChats(context.Background(), ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 2})
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, []string{chats[4].ID, chats[3].ID}, ids(page.Chats))
}

func TestListChatsPageSizeContract(t *testing.T) {
	db := newTestStore(t)
	svc := newTestService(t, db, nil)
	seedChats(t, db, "u", "p", 4)

	for limit := 1; limit <= 6; limit++ {
		page, err := svc.ListChats(context.Background(), ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: limit})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page.Chats), limit)
		assert.Equal(t, limit < 4, page.HasMore, "limit %d", limit)
	}
}

func TestListChatsExactFitHasNoMore(t *testing.T) {
	db := newTestStore(t)
	svc := newTestService(t, db, nil)
	seedChats(t, db, "u", "p", 3)

	page, err := svc.ListChats(context.Background(), ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 3})
	require.NoError(t, err)
	assert.Len(t, page.Chats, 3)
	assert.False(t, page.HasMore)
}

func TestListChatsStartingAfter(t *testing.T) {
	db := newTestStore(t)
	svc := newTestService(t, db, nil)
	chats := seedChats(t, db, "u", "p", 6)

	// Newer than chats[1], still newest first.
	page, err := svc.ListChats(context.Background(), ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 3, StartingAfter: chats[1].ID})
	require.NoError(t, err)
	assert.Equal(t, []string{chats[5].ID, chats[4].ID, chats[3].ID}, ids(page.Chats))
	assert.True(t, page.HasMore)

	page, err = svc.ListChats(context.Background(), ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 3, StartingAfter: chats[3].ID})
	require.NoError(t, err)
	assert.Equal(t, []string{chats[5].ID, chats[4].ID}, ids(page.Chats))
	assert.False(t, page.HasMore)
}

func TestListChatsEndingBefore(t *testing.T) {
	db := newTestStore(t)
	svc := newTestService(t, db, nil)
	chats := seedChats(t, db, "u", "p", 6)

	page, err := svc.ListChats(context.Background(), ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 2, EndingBefore: chats[4].ID})
	require.NoError(t, err)
	assert.Equal(t, []string{chats[3].ID, chats[2].ID}, ids(page.Chats))
	assert.True(t, page.HasMore)

	page, err = svc.ListChats(context.Background(), ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 2, EndingBefore: chats[0].ID})
	require.NoError(t, err)
	assert.Empty(t, page.Chats)
	assert.NotNil(t, page.Chats)
	assert.False(t, page.HasMore)
}

func TestListChatsCursorRoundTrip(t *testing.T) {
	db := newTestStore(t)
	svc := newTestService(t, db, nil)
	chats := seedChats(t, db, "u", "p", 6)
	ctx := context.Background()

	forward, err := svc.ListChats(ctx, ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 10, StartingAfter: chats[2].ID})
	require.NoError(t, err)
	require.Equal(t, []string{chats[5].ID, chats[4].ID, chats[3].ID}, ids(forward.Chats))

	oldest := forward.Chats[len(forward.Chats)-1]
	backward, err := svc.ListChats(ctx, ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 10, EndingBefore: oldest.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{chats[2].ID, chats[1].ID, chats[0].ID}, ids(backward.Chats))
}

func TestListChatsVisibility(t *testing.T) {
	db := newTestStore(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	mk := func(id, user, project string, vis store.Visibility, sec int) {
		chat := store.Chat{ID: id, UserID: user, ProjectID: project, Visibility: vis, CreatedAt: baseTime.Add(time.Duration(sec) * time.Second)}
		require.NoError(t, db.CreateChat(ctx, &chat))
	}
	mk("own-private", "alice", "p1", store.VisibilityPrivate, 1)
	mk("other-public", "bob", "p1", store.VisibilityPublic, 2)
	mk("other-private", "bob", "p1", store.VisibilityPrivate, 3)
	mk("own-elsewhere", "alice", "p2", store.VisibilityPrivate, 4)
	mk("public-elsewhere", "bob", "p2", store.VisibilityPublic, 5)

	page, err := svc.ListChats(ctx, ListChatsRequest{OwnerID: "alice", ProjectID: "p1", Limit: 10})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"own-private", "other-public"}, ids(page.Chats))

	page, err = svc.ListChats(ctx, ListChatsRequest{OwnerID: "bob", ProjectID: "p2", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"public-elsewhere"}, ids(page.Chats))
}

func TestListChatsUnknownCursor(t *testing.T) {
	db := newTestStore(t)
	svc := newTestService(t, db, nil)
	seedChats(t, db, "u", "p", 2)
	ctx := context.Background()

	_, err := svc.ListChats(ctx, ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 2, StartingAfter: "ghost"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.ListChats(ctx, ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 2, EndingBefore: "ghost"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListChatsRejectsBadRequests(t *testing.T) {
	db := newTestStore(t)
	svc := newTestService(t, db, nil)
	chats := seedChats(t, db, "u", "p", 2)
	ctx := context.Background()

	_, err := svc.ListChats(ctx, ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 0})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.ListChats(ctx, ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = svc.ListChats(ctx, ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 1, StartingAfter: chats[0].ID, EndingBefore: chats[1].ID})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestListChatsClampsToMaxPageSize(t *testing.T) {
	db := newTestStore(t)
	svc := NewChatService(db, nil, zerolog.Nop(), 2)
	seedChats(t, db, "u", "p", 4)

	page, err := svc.ListChats(context.Background(), ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, page.Chats, 2)
	assert.True(t, page.HasMore)
}

func TestListChatsSurfacesStoreFailure(t *testing.T) {
	db := newTestStore(t)
	svc := newTestService(t, db, nil)
	require.NoError(t, db.Close())

	page, err := svc.ListChats(context.Background(), ListChatsRequest{OwnerID: "u", ProjectID: "p", Limit: 2})
	assert.Nil(t, page)
	assert.ErrorIs(t, err, store.ErrStoreFailure)
}
