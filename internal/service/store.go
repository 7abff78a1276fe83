package service

import (
	"context"

	"chatrelay/internal/models"
)

// UserStore persists user accounts. Lookups return nil, nil when nothing
// matches.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserToken(ctx context.Context, id, token string) error
	ListUsersExcept(ctx context.Context, excludeID string) ([]models.User, error)
	SearchUsersByEmail(ctx context.Context, term, excludeID string) ([]models.User, error)
}

// ConversationStore persists two-member conversations.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	FindConversation(ctx context.Context, a, b string) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error)
}

// MessageStore persists chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Store is everything the services need from the database.
type Store interface {
	UserStore
	ConversationStore
	MessageStore
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer issues session tokens.
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

// UserView is the public shape of a user.
type UserView struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

// PeerView is a user seen from another user's contact list.
type PeerView struct {
	ReceiverID string `json:"receiverId"`
	Email      string `json:"email"`
	FullName   string `json:"fullName"`
}

func userView(u *models.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, FullName: u.FullName}
}

func peerView(u *models.User) PeerView {
	return PeerView{ReceiverID: u.ID, Email: u.Email, FullName: u.FullName}
}
