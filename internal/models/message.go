package models

import (
	"time"
)

// User is a registered account. PasswordHash and Token never leave the
// server.
type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"fullName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Token        string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Conversation pairs two users.
type Conversation struct {
	ID        string    `json:"id"`
	Members   [2]string `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// Peer returns the member that is not userID, or "" when userID is not a
// member.
func (c Conversation) Peer(userID string) string {
	switch userID {
	case c.Members[0]:
		return c.Members[1]
	case c.Members[1]:
		return c.Members[0]
	}
	return ""
}

// HasMember reports whether userID takes part in the conversation.
func (c Conversation) HasMember(userID string) bool {
	return c.Members[0] == userID || c.Members[1] == userID
}

// Message is one stored chat message.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Body           string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
}
