package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/tgrelay/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id INTEGER PRIMARY KEY,
			full_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			join_date INTEGER NOT NULL,
			invite_link TEXT,
			photo_url TEXT,
			label TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_join_date ON users(join_date)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			sender TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendMessage appends a message to a conversation.
func (s *SQLiteStore) AppendMessage(ctx context.Context, conversationID int64, role domain.Role, body domain.Body, at time.Time) (*domain.Message, error) {
	at = at.Truncate(time.Second)
	content := body.Text
	if body.IsMedia() {
		content = body.URL
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_id, sender, kind, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		conversationID, string(role), string(body.Kind), content, at.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}
	return &domain.Message{ID: id, ConversationID: conversationID, Role: role, Body: body, CreatedAt: at}, nil
}

// ListRecent returns the last limit messages of a conversation, oldest first.
func (s *SQLiteStore) ListRecent(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, sender, kind, content, created_at FROM (
			SELECT id, user_id, sender, kind, content, created_at FROM messages
			WHERE user_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			msg           domain.Message
			role, kind    string
			content       string
			createdAtUnix int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &kind, &content, &createdAtUnix); err != nil {
			return nil, err
		}
		msg.Role = domain.Role(role)
		msg.Body = decodeBody(kind, content)
		msg.CreatedAt = time.Unix(createdAtUnix, 0)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CountMessages returns the number of stored messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM messages`)
}

// CountDistinctSendersSince counts users who sent at least one message since the given time.
func (s *SQLiteStore) CountDistinctSendersSince(ctx context.Context, since time.Time) (int, error) {
	return s.count(ctx, `SELECT COUNT(DISTINCT user_id) FROM messages WHERE sender = ? AND created_at >= ?`,
		string(domain.RoleUser), since.Unix())
}

// ExistsRecentActivity reports whether the user sent a message since the given time.
func (s *SQLiteStore) ExistsRecentActivity(ctx context.Context, conversationID int64, since time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM messages WHERE user_id = ? AND sender = ? AND created_at >= ? LIMIT 1`,
		conversationID, string(domain.RoleUser), since.Unix()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check activity: %w", err)
	}
	return true, nil
}

// LastActivity returns the timestamp of the newest user message in a conversation.
func (s *SQLiteStore) LastActivity(ctx context.Context, conversationID int64) (*time.Time, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM messages WHERE user_id = ? AND sender = 'user' ORDER BY id DESC LIMIT 1`, conversationID).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last activity: %w", err)
	}
	t := time.Unix(ts, 0)
	return &t, nil
}

// UpsertUser inserts the user if absent. Existing rows are left untouched.
// It reports whether a new row was created.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) (bool, error) {
	joinDate := user.JoinDate
	if joinDate.IsZero() {
		joinDate = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, full_name, username, join_date, invite_link, photo_url, label)
		VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(user_id) DO NOTHING`,
		user.ID, user.FullName, user.Username, joinDate.Unix(),
		nullString(user.InviteLink), nullString(user.PhotoURL), nullString(user.Label))
	if err != nil {
		return false, fmt.Errorf("failed to upsert user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, full_name, username, join_date, invite_link, photo_url, label FROM users WHERE user_id = ?`, userID)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// ListUsers returns one page of users, newest first, and the total count.
func (s *SQLiteStore) ListUsers(ctx context.Context, page, pageSize int) ([]domain.User, int, error) {
	total, err := s.CountUsers(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, full_name, username, join_date, invite_link, photo_url, label
		FROM users ORDER BY join_date DESC, user_id DESC LIMIT ? OFFSET ?`,
		pageSize, offset(page, pageSize))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *user)
	}
	return users, total, rows.Err()
}

// ListUserIDs returns the ids of all users.
func (s *SQLiteStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountUsers returns the number of users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users`)
}

// CountUsersCreatedOn counts users whose join date falls on the calendar day of day.
func (s *SQLiteStore) CountUsersCreatedOn(ctx context.Context, day time.Time) (int, error) {
	start, end := dayBounds(day)
	return s.count(ctx, `SELECT COUNT(*) FROM users WHERE join_date >= ? AND join_date < ?`, start, end)
}

// SetInviteLink stores an invite link only if the user does not have one yet.
func (s *SQLiteStore) SetInviteLink(ctx context.Context, userID int64, link string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET invite_link = ? WHERE user_id = ? AND (invite_link IS NULL OR invite_link = '')`,
		link, userID)
	if err != nil {
		return false, fmt.Errorf("failed to set invite link: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SetLabel sets the operator label of a user.
func (s *SQLiteStore) SetLabel(ctx context.Context, userID int64, label string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET label = ? WHERE user_id = ?`, nullString(label), userID)
	if err != nil {
		return fmt.Errorf("failed to set label: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		user                        domain.User
		joinDate                    int64
		inviteLink, photoURL, label sql.NullString
	)
	if err := row.Scan(&user.ID, &user.FullName, &user.Username, &joinDate, &inviteLink, &photoURL, &label); err != nil {
		return nil, err
	}
	user.JoinDate = time.Unix(joinDate, 0)
	user.InviteLink = inviteLink.String
	user.PhotoURL = photoURL.String
	user.Label = label.String
	return &user, nil
}

func decodeBody(kind, content string) domain.Body {
	if kind == "" {
		return domain.Text(content)
	}
	return domain.Media(domain.MediaKind(kind), content)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
