package service

import (
	"context"
	"testing"

	"chatrelay/internal/auth"
	"chatrelay/internal/database"
	apperrors "chatrelay/internal/errors"
	"chatrelay/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func newTestUserService() (UserService, *mockStore, *mockHasher, *mockTokens) {
	store := &mockStore{}
	hasher := &mockHasher{}
	tokens := &mockTokens{}
	return NewUserService(store, hasher, tokens, quietLogger()), store, hasher, tokens
}

func TestUserService_Register(t *testing.T) {
	svc, store, hasher, tokens := newTestUserService()
	ctx := context.Background()

	store.On("GetUserByEmail", ctx, "alice@example.com").Return(nil, nil).Once()
	hasher.On("Hash", "secret1").Return("hashed", nil).Once()
	store.On("CreateUser", ctx, mock.MatchedBy(func(u *models.User) bool {
		return u.Email == "alice@example.com" && u.PasswordHash == "hashed" && u.ID != ""
	})).Return(nil).Once()
	tokens.On("Issue", mock.AnythingOfType("string"), "alice@example.com").Return("tok", nil).Once()
	store.On("UpdateUserToken", ctx, mock.AnythingOfType("string"), "tok").Return(nil).Once()

	res, err := svc.Register(ctx, RegisterRequest{FullName: "Alice", Email: " alice@example.com ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "tok", res.Token)
	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.Equal(t, "Alice", res.User.FullName)
	assert.NotEmpty(t, res.User.ID)

	store.AssertExpectations(t)
	hasher.AssertExpectations(t)
	tokens.AssertExpectations(t)
}

func TestUserService_RegisterMissingFields(t *testing.T) {
	svc, store, _, _ := newTestUserService()

	_, err := svc.Register(context.Background(), RegisterRequest{Email: "a@x.io"})
	require.Error(t, err)
	assert.Equal(t, "Please fill all required fields", apperrors.GetUserMessage(err))
	store.AssertNotCalled(t, "GetUserByEmail", mock.Anything, mock.Anything)
}

func TestUserService_RegisterExistingEmail(t *testing.T) {
	svc, store, _, _ := newTestUserService()
	ctx := context.Background()

	store.On("GetUserByEmail", ctx, "alice@example.com").Return(&models.User{ID: "u1"}, nil).Once()

	_, err := svc.Register(ctx, RegisterRequest{FullName: "Alice", Email: "alice@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, "User already exists", apperrors.GetUserMessage(err))
	assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
}

func TestUserService_RegisterRaceOnEmail(t *testing.T) {
	svc, store, hasher, _ := newTestUserService()
	ctx := context.Background()

	store.On("GetUserByEmail", ctx, "alice@example.com").Return(nil, nil).Once()
	hasher.On("Hash", "secret1").Return("hashed", nil).Once()
	store.On("CreateUser", ctx, mock.Anything).Return(database.ErrDuplicateEmail).Once()

	_, err := svc.Register(ctx, RegisterRequest{FullName: "Alice", Email: "alice@example.com", Password: "secret1"})
	assert.Equal(t, apperrors.ErrCodeAlreadyExists, apperrors.GetCode(err))
}

func TestUserService_RegisterInvalidInput(t *testing.T) {
	svc, _, _, _ := newTestUserService()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"bad email", RegisterRequest{FullName: "A", Email: "nope", Password: "secret1"}},
		{"short password", RegisterRequest{FullName: "A", Email: "a@x.io", Password: "123"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.req)
			assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetCode(err))
		})
	}
}

func TestUserService_Login(t *testing.T) {
	svc, store, hasher, tokens := newTestUserService()
	ctx := context.Background()
	user := &models.User{ID: "u1", FullName: "Alice", Email: "alice@example.com", PasswordHash: "hashed"}

	store.On("GetUserByEmail", ctx, "alice@example.com").Return(user, nil).Once()
	hasher.On("Compare", "hashed", "secret1").Return(nil).Once()
	tokens.On("Issue", "u1", "alice@example.com").Return("tok", nil).Once()
	store.On("UpdateUserToken", ctx, "u1", "tok").Return(nil).Once()

	res, err := svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, UserView{ID: "u1", Email: "alice@example.com", FullName: "Alice"}, res.User)
	assert.Equal(t, "tok", res.Token)
}

func TestUserService_LoginBadCredentials(t *testing.T) {
	svc, store, hasher, _ := newTestUserService()
	ctx := context.Background()

	store.On("GetUserByEmail", ctx, "ghost@example.com").Return(nil, nil).Once()
	_, err := svc.Login(ctx, LoginRequest{Email: "ghost@example.com", Password: "x"})
	assert.Equal(t, msgBadCredentials, apperrors.GetUserMessage(err))
	assert.Equal(t, 400, apperrors.HTTPStatusCode(err))

	store.On("GetUserByEmail", ctx, "alice@example.com").Return(&models.User{ID: "u1", PasswordHash: "h"}, nil).Once()
	hasher.On("Compare", "h", "wrong").Return(auth.ErrPasswordMismatch).Once()
	_, err = svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "wrong"})
	assert.Equal(t, msgBadCredentials, apperrors.GetUserMessage(err))
}

func TestUserService_LoginDatabaseError(t *testing.T) {
	svc, store, _, _ := newTestUserService()
	ctx := context.Background()

	store.On("GetUserByEmail", ctx, "alice@example.com").Return(nil, assert.AnError).Once()
	_, err := svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "x"})
	assert.Equal(t, 503, apperrors.HTTPStatusCode(err))
}

func TestUserService_ListContacts(t *testing.T) {
	svc, store, _, _ := newTestUserService()
	ctx := context.Background()

	store.On("ListUsersExcept", ctx, "u1").Return([]models.User{
		{ID: "u2", FullName: "Bob", Email: "bob@example.com"},
	}, nil).Once()

	entries, err := svc.ListContacts(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []ContactEntry{{User: PeerView{ReceiverID: "u2", Email: "bob@example.com", FullName: "Bob"}}}, entries)
}

func TestUserService_Search(t *testing.T) {
	svc, store, _, _ := newTestUserService()
	ctx := context.Background()

	store.On("SearchUsersByEmail", ctx, "bo", "u1").Return([]models.User{
		{ID: "u2", FullName: "Bob", Email: "bob@example.com"},
	}, nil).Once()

	found, err := svc.Search(ctx, "bo", "u1")
	require.NoError(t, err)
	assert.Equal(t, []UserView{{ID: "u2", Email: "bob@example.com", FullName: "Bob"}}, found)

	_, err = svc.Search(ctx, "", "u1")
	assert.Error(t, err)
}
