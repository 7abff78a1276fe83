package service

import (
	"context"

	"chatrelay/internal/models"
	"chatrelay/internal/relay"

	"github.com/stretchr/testify/mock"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockStore) UpdateUserToken(ctx context.Context, id, token string) error {
	return m.Called(ctx, id, token).Error(0)
}

func (m *mockStore) ListUsersExcept(ctx context.Context, excludeID string) ([]models.User, error) {
	args := m.Called(ctx, excludeID)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *mockStore) SearchUsersByEmail(ctx context.Context, term, excludeID string) ([]models.User, error) {
	args := m.Called(ctx, term, excludeID)
	return args.Get(0).([]models.User), args.Error(1)
}

func (m *mockStore) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	return m.Called(ctx, conv).Error(0)
}

func (m *mockStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *mockStore) FindConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Conversation), args.Error(1)
}

func (m *mockStore) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]models.Conversation), args.Error(1)
}

func (m *mockStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func (m *mockStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	args := m.Called(ctx, conversationID)
	return args.Get(0).([]models.Message), args.Error(1)
}

type mockHasher struct {
	mock.Mock
}

func (m *mockHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *mockHasher) Compare(hash, password string) error {
	return m.Called(hash, password).Error(0)
}

type mockTokens struct {
	mock.Mock
}

func (m *mockTokens) Issue(userID, email string) (string, error) {
	args := m.Called(userID, email)
	return args.String(0), args.Error(1)
}

type mockRelay struct {
	mock.Mock
}

func (m *mockRelay) Sweep() int {
	return m.Called().Int(0)
}

func (m *mockRelay) Stats() relay.Stats {
	return m.Called().Get(0).(relay.Stats)
}
