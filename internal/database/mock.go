package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockCampusRepository struct {
	mock.Mock
}

func (m *MockCampusRepository) Ping(ctx context.Context) error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockCampusRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCampusRepository) GetUserById(ctx context.Context, id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCampusRepository) GetUserByUsername(ctx context.Context, username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockCampusRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	args := m.Called(username)
	return args.Bool(0), args.Error(1)
}
func (m *MockCampusRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(email)
	return args.Bool(0), args.Error(1)
}
func (m *MockCampusRepository) ListEvents(ctx context.Context) ([]Event, error) {
	args := m.Called()
	return args.Get(0).([]Event), args.Error(1)
}
func (m *MockCampusRepository) GetEvent(ctx context.Context, id int) (Event, error) {
	args := m.Called(id)
	return args.Get(0).(Event), args.Error(1)
}
func (m *MockCampusRepository) CreateEvent(ctx context.Context, params EventParams) (Event, error) {
	args := m.Called(params)
	return args.Get(0).(Event), args.Error(1)
}
func (m *MockCampusRepository) UpdateEvent(ctx context.Context, id int, params EventParams) (Event, error) {
	args := m.Called(id, params)
	return args.Get(0).(Event), args.Error(1)
}
func (m *MockCampusRepository) DeleteEvent(ctx context.Context, id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockCampusRepository) ListEventsByCategory(ctx context.Context, category string) ([]Event, error) {
	args := m.Called(category)
	return args.Get(0).([]Event), args.Error(1)
}
func (m *MockCampusRepository) SearchEvents(ctx context.Context, term string) ([]Event, error) {
	args := m.Called(term)
	return args.Get(0).([]Event), args.Error(1)
}
func (m *MockCampusRepository) AdjustEventVotes(ctx context.Context, id, delta int) (int, error) {
	args := m.Called(id, delta)
	return args.Int(0), args.Error(1)
}
func (m *MockCampusRepository) EventExists(ctx context.Context, id int) (bool, error) {
	args := m.Called(id)
	return args.Bool(0), args.Error(1)
}
func (m *MockCampusRepository) ListTags(ctx context.Context) ([]Tag, error) {
	args := m.Called()
	return args.Get(0).([]Tag), args.Error(1)
}
func (m *MockCampusRepository) ListCommentsByEvent(ctx context.Context, eventId int) ([]Comment, error) {
	args := m.Called(eventId)
	return args.Get(0).([]Comment), args.Error(1)
}
func (m *MockCampusRepository) CreateComment(ctx context.Context, params CreateCommentParams) (Comment, error) {
	args := m.Called(params)
	return args.Get(0).(Comment), args.Error(1)
}
func (m *MockCampusRepository) CreateChatMessage(ctx context.Context, params CreateChatMessageParams) (ChatMessage, error) {
	args := m.Called(params)
	return args.Get(0).(ChatMessage), args.Error(1)
}
func (m *MockCampusRepository) GetRecentChatMessages(ctx context.Context, limit int) ([]ChatMessage, error) {
	args := m.Called(limit)
	return args.Get(0).([]ChatMessage), args.Error(1)
}
