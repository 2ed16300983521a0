package types

import (
	"time"
)

type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

type User struct {
	Id        int       `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ChatMessage is the shape clients see, both in history backfill and in
// ReceiveMessage pushes.
type ChatMessage struct {
	Id       int       `json:"id"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sentAt"`
	Username string    `json:"username"`
}

type Event struct {
	Id          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Date        time.Time `json:"date"`
	Tags        string    `json:"tags"`
	Votes       int       `json:"votes"`
}

type Tag struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
}

type Comment struct {
	Id        int       `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Username  string    `json:"username"`
}
