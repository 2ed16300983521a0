package database

import "time"

type User struct {
	Id           int
	Username     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type Event struct {
	Id          int
	Title       string
	Description string
	Location    string
	Category    string
	Date        time.Time
	Tags        string
	Votes       int
}

type Tag struct {
	Id   int
	Name string
}

type Comment struct {
	Id        int
	EventId   int
	UserId    int
	Username  string
	Content   string
	CreatedAt time.Time
}

type ChatMessage struct {
	Id       int
	Content  string
	UserId   int
	Username string
	SentAt   time.Time
}

type CreateUserParams struct {
	Username     string
	Email        string
	PasswordHash string
	Role         string
}

type EventParams struct {
	Title       string
	Description string
	Location    string
	Category    string
	Date        time.Time
	Tags        string
}

type CreateCommentParams struct {
	EventId int
	UserId  int
	Content string
}

type CreateChatMessageParams struct {
	UserId  int
	Content string
	SentAt  time.Time
}
