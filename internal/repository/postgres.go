package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xiaot623/tgrelay/internal/domain"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dsn and runs migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			full_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			join_date BIGINT NOT NULL,
			invite_link TEXT,
			photo_url TEXT,
			label TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_join_date ON users(join_date)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			sender TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, conversationID int64, role domain.Role, body domain.Body, at time.Time) (*domain.Message, error) {
	at = at.Truncate(time.Second)
	content := body.Text
	if body.IsMedia() {
		content = body.URL
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (user_id, sender, kind, content, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		conversationID, string(role), string(body.Kind), content, at.Unix()).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return &domain.Message{ID: id, ConversationID: conversationID, Role: role, Body: body, CreatedAt: at}, nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, sender, kind, content, created_at FROM (
			SELECT id, user_id, sender, kind, content, created_at FROM messages
			WHERE user_id = $1 ORDER BY id DESC LIMIT $2
		) recent ORDER BY id ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var (
			msg        domain.Message
			role, kind string
			content    string
			createdAt  int64
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &kind, &content, &createdAt); err != nil {
			return nil, err
		}
		msg.Role = domain.Role(role)
		msg.Body = decodeBody(kind, content)
		msg.CreatedAt = time.Unix(createdAt, 0)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *PostgresStore) CountMessages(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM messages`)
}

func (s *PostgresStore) CountDistinctSendersSince(ctx context.Context, since time.Time) (int, error) {
	return s.count(ctx, `SELECT COUNT(DISTINCT user_id) FROM messages WHERE sender = $1 AND created_at >= $2`,
		string(domain.RoleUser), since.Unix())
}

func (s *PostgresStore) ExistsRecentActivity(ctx context.Context, conversationID int64, since time.Time) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE user_id = $1 AND sender = $2 AND created_at >= $3)`,
		conversationID, string(domain.RoleUser), since.Unix()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check activity: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) LastActivity(ctx context.Context, conversationID int64) (*time.Time, error) {
	var ts int64
	err := s.pool.QueryRow(ctx,
		`SELECT created_at FROM messages WHERE user_id = $1 AND sender = 'user' ORDER BY id DESC LIMIT 1`, conversationID).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last activity: %w", err)
	}
	t := time.Unix(ts, 0)
	return &t, nil
}

func (s *PostgresStore) UpsertUser(ctx context.Context, user *domain.User) (bool, error) {
	joinDate := user.JoinDate
	if joinDate.IsZero() {
		joinDate = time.Now()
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, full_name, username, join_date, invite_link, photo_url, label)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (user_id) DO NOTHING`,
		user.ID, user.FullName, user.Username, joinDate.Unix(),
		nullable(user.InviteLink), nullable(user.PhotoURL), nullable(user.Label))
	if err != nil {
		return false, fmt.Errorf("failed to upsert user: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, full_name, username, join_date, invite_link, photo_url, label FROM users WHERE user_id = $1`, userID)
	user, err := scanPgUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, page, pageSize int) ([]domain.User, int, error) {
	total, err := s.CountUsers(ctx)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, full_name, username, join_date, invite_link, photo_url, label
		FROM users ORDER BY join_date DESC, user_id DESC LIMIT $1 OFFSET $2`,
		pageSize, offset(page, pageSize))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanPgUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, *user)
	}
	return users, total, rows.Err()
}

func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users`)
}

func (s *PostgresStore) CountUsersCreatedOn(ctx context.Context, day time.Time) (int, error) {
	start, end := dayBounds(day)
	return s.count(ctx, `SELECT COUNT(*) FROM users WHERE join_date >= $1 AND join_date < $2`, start, end)
}

func (s *PostgresStore) SetInviteLink(ctx context.Context, userID int64, link string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET invite_link = $1 WHERE user_id = $2 AND (invite_link IS NULL OR invite_link = '')`,
		link, userID)
	if err != nil {
		return false, fmt.Errorf("failed to set invite link: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetLabel(ctx context.Context, userID int64, label string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET label = $1 WHERE user_id = $2`, nullable(label), userID)
	if err != nil {
		return fmt.Errorf("failed to set label: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) count(ctx context.Context, query string, args ...any) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count: %w", err)
	}
	return int(n), nil
}

func scanPgUser(row pgx.Row) (*domain.User, error) {
	var (
		user                        domain.User
		joinDate                    int64
		inviteLink, photoURL, label *string
	)
	if err := row.Scan(&user.ID, &user.FullName, &user.Username, &joinDate, &inviteLink, &photoURL, &label); err != nil {
		return nil, err
	}
	user.JoinDate = time.Unix(joinDate, 0)
	user.InviteLink = deref(inviteLink)
	user.PhotoURL = deref(photoURL)
	user.Label = deref(label)
	return &user, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
