package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ DataStore = (*SQLiteStore)(nil)

func NewSQLiteStore(ctx context.Context, dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", withPragmas(dataSourceName))
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "pinging database")
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing schema")
	}
	return store, nil
}

// withPragmas turns on foreign keys (needed for the delete cascade) and WAL.
func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return failure(err, "ping")
	}
	return nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
    CREATE TABLE IF NOT EXISTS chats (
        id TEXT PRIMARY KEY, -- UUID
        user_id TEXT NOT NULL,
        project_id TEXT NOT NULL,
        title TEXT,
        visibility TEXT NOT NULL DEFAULT 'private' CHECK (visibility IN ('private', 'public')),
        created_at INTEGER NOT NULL -- unix microseconds
    );

    CREATE INDEX IF NOT EXISTS idx_chats_project_created ON chats (project_id, created_at);

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        chat_id TEXT NOT NULL,
        role TEXT NOT NULL,
        parts TEXT NOT NULL,
        created_at INTEGER NOT NULL,
        FOREIGN KEY (chat_id) REFERENCES chats (id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages (chat_id, created_at);

    CREATE TABLE IF NOT EXISTS votes (
        chat_id TEXT NOT NULL,
        message_id TEXT NOT NULL,
        is_upvote INTEGER NOT NULL,
        PRIMARY KEY (chat_id, message_id),
        FOREIGN KEY (chat_id) REFERENCES chats (id) ON DELETE CASCADE,
        FOREIGN KEY (message_id) REFERENCES messages (id) ON DELETE CASCADE
    );
    `
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const chatColumns = "id, user_id, project_id, title, visibility, created_at"

// Chat methods
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *Chat) error {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now()
	}
	chat.CreatedAt = chat.CreatedAt.UTC().Truncate(time.Microsecond)
	if chat.Visibility == "" {
		chat.Visibility = VisibilityPrivate
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chats ("+chatColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		chat.ID, chat.UserID, chat.ProjectID, chat.Title, string(chat.Visibility), chat.CreatedAt.UnixMicro(),
	)
	if err != nil {
		return failure(err, "inserting chat")
	}
	return nil
}

func (s *SQLiteStore) GetChatByID(ctx context.Context, chatID string) (*Chat, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+chatColumns+" FROM chats WHERE id = ?", chatID)
	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, failure(err, "getting chat")
	}
	return chat, nil
}

// ListChats runs the visibility-filtered range scan: chats of q.ProjectID that
// are owned by q.OwnerID or public, newest first.
func (s *SQLiteStore) ListChats(ctx context.Context, q ChatQuery) ([]Chat, error) {
	var query strings.Builder
	query.WriteString("SELECT " + chatColumns + " FROM chats WHERE project_id = ? AND (user_id = ? OR visibility = ?)")
	args := []any{q.ProjectID, q.OwnerID, string(VisibilityPublic)}

	if q.CreatedAfter != nil {
		query.WriteString(" AND created_at > ?")
		args = append(args, q.CreatedAfter.UnixMicro())
	}
	if q.CreatedBefore != nil {
		query.WriteString(" AND created_at < ?")
		args = append(args, q.CreatedBefore.UnixMicro())
	}
	query.WriteString(" ORDER BY created_at DESC, rowid DESC")
	if q.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, failure(err, "querying chats")
	}
	defer rows.Close()

	chats := []Chat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, failure(err, "scanning chat row")
		}
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, failure(err, "iterating chat rows")
	}
	return chats, nil
}

func (s *SQLiteStore) UpdateChatVisibility(ctx context.Context, chatID string, visibility Visibility) error {
	res, err := s.db.ExecContext(ctx, "UPDATE chats SET visibility = ? WHERE id = ?", string(visibility), chatID)
	if err != nil {
		return failure(err, "updating chat visibility")
	}
	return requireAffected(res, "updating chat visibility")
}

func (s *SQLiteStore) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE chats SET title = ? WHERE id = ?", title, chatID)
	if err != nil {
		return failure(err, "updating chat title")
	}
	return requireAffected(res, "updating chat title")
}

// DeleteChat removes the chat; messages and votes go with it through the
// foreign key cascade.
func (s *SQLiteStore) DeleteChat(ctx context.Context, chatID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chats WHERE id = ?", chatID)
	if err != nil {
		return failure(err, "deleting chat")
	}
	return requireAffected(res, "deleting chat")
}

// Message methods
func (s *SQLiteStore) CreateMessages(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return failure(err, "beginning transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO messages (id, chat_id, role, parts, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return failure(err, "preparing message insert")
	}
	defer stmt.Close()

	now := time.Now()
	for i := range messages {
		msg := &messages[i]
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		msg.CreatedAt = msg.CreatedAt.UTC().Truncate(time.Microsecond)

		if _, err := stmt.ExecContext(ctx, msg.ID, msg.ChatID, msg.Role, msg.Parts, msg.CreatedAt.UnixMicro()); err != nil {
			if isForeignKeyViolation(err) {
				return errors.Wrapf(ErrNotFound, "chat %s", msg.ChatID)
			}
			return failure(err, "inserting message")
		}
	}

	if err := tx.Commit(); err != nil {
		return failure(err, "committing messages")
	}
	return nil
}

// GetMessagesByChatID returns every message of the chat in conversation
// order. Messages sharing a timestamp keep their insertion order.
func (s *SQLiteStore) GetMessagesByChatID(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, chat_id, role, parts, created_at FROM messages WHERE chat_id = ? ORDER BY created_at ASC, rowid ASC",
		chatID,
	)
	if err != nil {
		return nil, failure(err, "querying messages")
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Parts, &createdAt); err != nil {
			return nil, failure(err, "scanning message row")
		}
		msg.CreatedAt = time.UnixMicro(createdAt).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, failure(err, "iterating message rows")
	}
	return messages, nil
}

// Vote methods

// UpsertVote keeps at most one vote per (chat, message): a second write for
// the same pair overwrites the first. The message must belong to the chat.
func (s *SQLiteStore) UpsertVote(ctx context.Context, chatID, messageID string, isUpvote bool) error {
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO votes (chat_id, message_id, is_upvote)
        SELECT chat_id, id, ? FROM messages WHERE id = ? AND chat_id = ?
        ON CONFLICT (chat_id, message_id) DO UPDATE SET is_upvote = excluded.is_upvote
    `, boolToInt(isUpvote), messageID, chatID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.Wrapf(ErrNotFound, "message %s in chat %s", messageID, chatID)
		}
		return failure(err, "upserting vote")
	}
	if err := requireAffected(res, "upserting vote"); err != nil {
		return errors.Wrapf(err, "message %s in chat %s", messageID, chatID)
	}
	return nil
}

func (s *SQLiteStore) GetVotesByChatID(ctx context.Context, chatID string) ([]Vote, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT chat_id, message_id, is_upvote FROM votes WHERE chat_id = ? ORDER BY rowid ASC", chatID)
	if err != nil {
		return nil, failure(err, "querying votes")
	}
	defer rows.Close()

	votes := []Vote{}
	for rows.Next() {
		var vote Vote
		var isUpvote int
		if err := rows.Scan(&vote.ChatID, &vote.MessageID, &isUpvote); err != nil {
			return nil, failure(err, "scanning vote row")
		}
		vote.IsUpvote = isUpvote != 0
		votes = append(votes, vote)
	}
	if err := rows.Err(); err != nil {
		return nil, failure(err, "iterating vote rows")
	}
	return votes, nil
}

func scanChat(row interface{ Scan(...any) error }) (*Chat, error) {
	var chat Chat
	var title sql.NullString
	var visibility string
	var createdAt int64
	if err := row.Scan(&chat.ID, &chat.UserID, &chat.ProjectID, &title, &visibility, &createdAt); err != nil {
		return nil, err
	}
	if title.Valid {
		chat.Title = &title.String
	}
	chat.Visibility = Visibility(visibility)
	chat.CreatedAt = time.UnixMicro(createdAt).UTC()
	return &chat, nil
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return failure(err, op)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

func boolToInt(val bool) int {
	if val {
		return 1
	}
	return 0
}
