package service

import (
	"context"
	"errors"
	"strings"

	"chatrelay/internal/auth"
	"chatrelay/internal/database"
	apperrors "chatrelay/internal/errors"
	"chatrelay/internal/models"
	"chatrelay/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const msgBadCredentials = "User email or password is incorrect"

// RegisterRequest is the body of a registration call.
type RegisterRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by a successful registration or login.
type AuthResult struct {
	User  UserView `json:"user"`
	Token string   `json:"token"`
}

// ContactEntry wraps a peer the way the user list is returned.
type ContactEntry struct {
	User PeerView `json:"user"`
}

type UserService interface {
	Register(ctx context.Context, req RegisterRequest) (*AuthResult, error)
	Login(ctx context.Context, req LoginRequest) (*AuthResult, error)
	ListContacts(ctx context.Context, userID string) ([]ContactEntry, error)
	Search(ctx context.Context, term, excludeID string) ([]UserView, error)
}

type userService struct {
	store  UserStore
	hasher PasswordHasher
	tokens TokenIssuer
	logger *logrus.Logger
}

func NewUserService(store UserStore, hasher PasswordHasher, tokens TokenIssuer, logger *logrus.Logger) UserService {
	return &userService{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
	}
}

func (s *userService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.FullName == "" || req.Email == "" || req.Password == "" {
		return nil, apperrors.NewMissingFieldsError("fullName", "email", "password")
	}
	if err := validation.ValidateFullName(req.FullName); err != nil {
		return nil, err
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	existing, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get user by email", err)
	}
	if existing != nil {
		return nil, apperrors.NewAlreadyExistsError("User")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		FullName:     strings.TrimSpace(req.FullName),
		Email:        req.Email,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, database.ErrDuplicateEmail) {
			return nil, apperrors.NewAlreadyExistsError("User")
		}
		return nil, apperrors.NewDatabaseError("create user", err)
	}

	result, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	LogWithContext(ctx, s.logger, logrus.Fields{
		LogFieldUserID: user.ID,
		LogFieldEmail:  user.Email,
	}).Info("User registered")
	return result, nil
}

func (s *userService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return nil, apperrors.NewMissingFieldsError("email", "password")
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperrors.NewDatabaseError("get user by email", err)
	}
	if user == nil {
		return nil, badCredentials("unknown email")
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, badCredentials("password mismatch")
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to check password")
	}

	result, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}

	LogWithContext(ctx, s.logger, logrus.Fields{LogFieldUserID: user.ID}).Debug("User logged in")
	return result, nil
}

// badCredentials keeps the 400 status clients already handle for failed
// logins.
func badCredentials(reason string) error {
	return apperrors.New(apperrors.ErrCodeInvalidInput, "invalid credentials").
		WithContext("reason", reason).
		WithUserMessage(msgBadCredentials)
}

func (s *userService) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternalError, "failed to issue token").
			WithUserMessage("Error generating token")
	}
	if err := s.store.UpdateUserToken(ctx, user.ID, token); err != nil {
		return nil, apperrors.NewDatabaseError("update user token", err)
	}
	return &AuthResult{User: userView(user), Token: token}, nil
}

func (s *userService) ListContacts(ctx context.Context, userID string) ([]ContactEntry, error) {
	users, err := s.store.ListUsersExcept(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list users", err)
	}

	entries := make([]ContactEntry, 0, len(users))
	for i := range users {
		entries = append(entries, ContactEntry{User: peerView(&users[i])})
	}
	return entries, nil
}

func (s *userService) Search(ctx context.Context, term, excludeID string) ([]UserView, error) {
	if err := validation.ValidateSearchTerm(term); err != nil {
		return nil, err
	}

	users, err := s.store.SearchUsersByEmail(ctx, term, excludeID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("search users", err)
	}

	views := make([]UserView, 0, len(users))
	for i := range users {
		views = append(views, userView(&users[i]))
	}
	return views, nil
}
