package database

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already exists")
	ErrEmailTaken    = errors.New("email already exists")
)

type UserRepository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserById(ctx context.Context, id int) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type EventRepository interface {
	ListEvents(ctx context.Context) ([]Event, error)
	GetEvent(ctx context.Context, id int) (Event, error)
	CreateEvent(ctx context.Context, params EventParams) (Event, error)
	UpdateEvent(ctx context.Context, id int, params EventParams) (Event, error)
	DeleteEvent(ctx context.Context, id int) error
	ListEventsByCategory(ctx context.Context, category string) ([]Event, error)
	SearchEvents(ctx context.Context, term string) ([]Event, error)
	AdjustEventVotes(ctx context.Context, id, delta int) (int, error)
	EventExists(ctx context.Context, id int) (bool, error)
	ListTags(ctx context.Context) ([]Tag, error)
}

type CommentRepository interface {
	ListCommentsByEvent(ctx context.Context, eventId int) ([]Comment, error)
	CreateComment(ctx context.Context, params CreateCommentParams) (Comment, error)
}

// ChatMessageRepository is the message store backing the chat hub.
// GetRecentChatMessages returns the newest messages first.
type ChatMessageRepository interface {
	CreateChatMessage(ctx context.Context, params CreateChatMessageParams) (ChatMessage, error)
	GetRecentChatMessages(ctx context.Context, limit int) ([]ChatMessage, error)
}

type CampusRepository interface {
	Ping(ctx context.Context) error
	UserRepository
	EventRepository
	CommentRepository
	ChatMessageRepository
}
