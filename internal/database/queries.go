package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"

	eventColumns = "id, title, description, location, category, date, tags, votes"
)

func (db *PgCampusRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (username, email, password_hash, role, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, username, email, role, created_at",
		params.Username,
		params.Email,
		params.PasswordHash,
		params.Role,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.Email,
		&u.Role,
		&u.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			switch pqErr.Constraint {
			case "users_username_key":
				return User{}, ErrUsernameTaken
			case "users_email_key":
				return User{}, ErrEmailTaken
			}
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	return u, nil
}

func (db *PgCampusRepository) GetUserById(ctx context.Context, id int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, role, created_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	return scanUser(row)
}

func (db *PgCampusRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, username, email, password_hash, role, created_at FROM users "+
			"WHERE username = $1 LIMIT 1",
		username,
	)

	return scanUser(row)
}

func scanUser(row *sql.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func (db *PgCampusRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return db.exists(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)", username)
}

func (db *PgCampusRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return db.exists(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)", email)
}

func (db *PgCampusRepository) EventExists(ctx context.Context, id int) (bool, error) {
	return db.exists(ctx, "SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)", id)
}

func (db *PgCampusRepository) exists(ctx context.Context, query string, arg any) (bool, error) {
	var ok bool
	if err := db.conn.QueryRowContext(ctx, query, arg).Scan(&ok); err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return ok, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var e Event
	err := row.Scan(
		&e.Id,
		&e.Title,
		&e.Description,
		&e.Location,
		&e.Category,
		&e.Date,
		&e.Tags,
		&e.Votes,
	)
	return e, err
}

func (db *PgCampusRepository) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return events, nil
}

func (db *PgCampusRepository) ListEvents(ctx context.Context) ([]Event, error) {
	return db.queryEvents(ctx, "SELECT "+eventColumns+" FROM events ORDER BY date, id")
}

func (db *PgCampusRepository) ListEventsByCategory(ctx context.Context, category string) ([]Event, error) {
	return db.queryEvents(ctx,
		"SELECT "+eventColumns+" FROM events WHERE lower(category) = lower($1) ORDER BY date, id",
		category,
	)
}

// SearchEvents matches term as a case-insensitive substring of the title,
// description or location.
func (db *PgCampusRepository) SearchEvents(ctx context.Context, term string) ([]Event, error) {
	return db.queryEvents(ctx,
		"SELECT "+eventColumns+" FROM events "+
			"WHERE title ILIKE $1 OR description ILIKE $1 OR location ILIKE $1 ORDER BY date, id",
		"%"+escapeLike(term)+"%",
	)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (db *PgCampusRepository) GetEvent(ctx context.Context, id int) (Event, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = $1", id)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("get event: %w", err)
	}

	return e, nil
}

func (db *PgCampusRepository) CreateEvent(ctx context.Context, params EventParams) (Event, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Event{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	tags := ParseTags(params.Tags)
	row := tx.QueryRowContext(ctx,
		"INSERT INTO events (title, description, location, category, date, tags) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+eventColumns,
		params.Title,
		params.Description,
		params.Location,
		params.Category,
		params.Date.UTC(),
		strings.Join(tags, ","),
	)

	var e Event
	e, err = scanEvent(row)
	if err != nil {
		return Event{}, fmt.Errorf("create event: %w", err)
	}

	if err = syncEventTags(ctx, tx, e.Id, tags); err != nil {
		return Event{}, err
	}

	if err = tx.Commit(); err != nil {
		return Event{}, err
	}

	return e, nil
}

// UpdateEvent replaces the editable fields of an event. Votes only change
// through AdjustEventVotes.
func (db *PgCampusRepository) UpdateEvent(ctx context.Context, id int, params EventParams) (Event, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Event{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	tags := ParseTags(params.Tags)
	row := tx.QueryRowContext(ctx,
		"UPDATE events SET title = $2, description = $3, location = $4, category = $5, date = $6, tags = $7 "+
			"WHERE id = $1 RETURNING "+eventColumns,
		id,
		params.Title,
		params.Description,
		params.Location,
		params.Category,
		params.Date.UTC(),
		strings.Join(tags, ","),
	)

	var e Event
	e, err = scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrNotFound
	}
	if err != nil {
		return Event{}, fmt.Errorf("update event: %w", err)
	}

	if err = syncEventTags(ctx, tx, e.Id, tags); err != nil {
		return Event{}, err
	}

	if err = tx.Commit(); err != nil {
		return Event{}, err
	}

	return e, nil
}

func syncEventTags(ctx context.Context, tx *sql.Tx, eventId int, tags []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM event_tags WHERE event_id = $1", eventId); err != nil {
		return fmt.Errorf("clear event tags: %w", err)
	}

	for _, name := range tags {
		var tagId int
		err := tx.QueryRowContext(ctx,
			"INSERT INTO tags (name) VALUES ($1) "+
				"ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name RETURNING id",
			name,
		).Scan(&tagId)
		if err != nil {
			return fmt.Errorf("upsert tag %q: %w", name, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO event_tags (event_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			eventId,
			tagId,
		); err != nil {
			return fmt.Errorf("link tag %q: %w", name, err)
		}
	}

	return nil
}

func (db *PgCampusRepository) DeleteEvent(ctx context.Context, id int) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// AdjustEventVotes adds delta to the vote count, never going below zero,
// and returns the new count.
func (db *PgCampusRepository) AdjustEventVotes(ctx context.Context, id, delta int) (int, error) {
	var votes int
	err := db.conn.QueryRowContext(ctx,
		"UPDATE events SET votes = GREATEST(votes + $2, 0) WHERE id = $1 RETURNING votes",
		id,
		delta,
	).Scan(&votes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("adjust votes: %w", err)
	}

	return votes, nil
}

func (db *PgCampusRepository) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := make([]Tag, 0)
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.Id, &tag.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	return tags, rows.Err()
}

func (db *PgCampusRepository) ListCommentsByEvent(ctx context.Context, eventId int) ([]Comment, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT c.id, c.event_id, c.user_id, u.username, c.content, c.created_at "+
			"FROM comments c JOIN users u ON u.id = c.user_id "+
			"WHERE c.event_id = $1 ORDER BY c.created_at, c.id",
		eventId,
	)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.Id, &c.EventId, &c.UserId, &c.Username, &c.Content, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}

	return comments, rows.Err()
}

func (db *PgCampusRepository) CreateComment(ctx context.Context, params CreateCommentParams) (Comment, error) {
	var c Comment
	err := db.conn.QueryRowContext(ctx,
		"INSERT INTO comments (content, event_id, user_id, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, event_id, user_id, content, created_at",
		params.Content,
		params.EventId,
		params.UserId,
		time.Now().UTC(),
	).Scan(&c.Id, &c.EventId, &c.UserId, &c.Content, &c.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return Comment{}, ErrNotFound
		}
		return Comment{}, fmt.Errorf("create comment: %w", err)
	}

	return c, nil
}

func (db *PgCampusRepository) CreateChatMessage(ctx context.Context, params CreateChatMessageParams) (ChatMessage, error) {
	var msg ChatMessage
	err := db.conn.QueryRowContext(ctx,
		"INSERT INTO chat_messages (content, user_id, sent_at) "+
			"VALUES ($1, $2, $3) RETURNING id, content, user_id, sent_at",
		params.Content,
		params.UserId,
		params.SentAt,
	).Scan(&msg.Id, &msg.Content, &msg.UserId, &msg.SentAt)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("create chat message: %w", err)
	}

	return msg, nil
}

func (db *PgCampusRepository) GetRecentChatMessages(ctx context.Context, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		return []ChatMessage{}, nil
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT m.id, m.content, m.user_id, u.username, m.sent_at "+
			"FROM chat_messages m JOIN users u ON u.id = m.user_id "+
			"ORDER BY m.sent_at DESC, m.id DESC LIMIT $1",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]ChatMessage, 0, limit)
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.Id, &msg.Content, &msg.UserId, &msg.Username, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}
