package service

import (
	"context"

	apperrors "chatrelay/internal/errors"
	"chatrelay/internal/models"
	"chatrelay/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ConversationEntry is one row of a user's conversation list.
type ConversationEntry struct {
	User           PeerView `json:"user"`
	ConversationID string   `json:"conversationId"`
}

type ConversationService interface {
	// Open returns the conversation between senderID and receiverID,
	// creating it when none exists. created reports which happened.
	Open(ctx context.Context, senderID, receiverID string) (conv *models.Conversation, created bool, err error)
	List(ctx context.Context, userID string) ([]ConversationEntry, error)
}

type conversationService struct {
	convs  ConversationStore
	users  UserStore
	logger *logrus.Logger
}

func NewConversationService(convs ConversationStore, users UserStore, logger *logrus.Logger) ConversationService {
	return &conversationService{
		convs:  convs,
		users:  users,
		logger: logger,
	}
}

func (s *conversationService) Open(ctx context.Context, senderID, receiverID string) (*models.Conversation, bool, error) {
	if senderID == "" || receiverID == "" {
		return nil, false, apperrors.NewMissingFieldsError("senderId", "receiverId")
	}
	if err := validation.ValidateUserID("senderId", senderID); err != nil {
		return nil, false, err
	}
	if err := validation.ValidateUserID("receiverId", receiverID); err != nil {
		return nil, false, err
	}

	existing, err := s.convs.FindConversation(ctx, senderID, receiverID)
	if err != nil {
		return nil, false, apperrors.NewDatabaseError("find conversation", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	conv := &models.Conversation{
		ID:      uuid.NewString(),
		Members: [2]string{senderID, receiverID},
	}
	if err := s.convs.CreateConversation(ctx, conv); err != nil {
		return nil, false, apperrors.NewDatabaseError("create conversation", err)
	}

	LogWithContext(ctx, s.logger, logrus.Fields{
		LogFieldConversationID: conv.ID,
		LogFieldSenderID:       senderID,
		LogFieldReceiverID:     receiverID,
	}).Debug("Conversation created")
	return conv, true, nil
}

func (s *conversationService) List(ctx context.Context, userID string) ([]ConversationEntry, error) {
	convs, err := s.convs.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list conversations", err)
	}

	entries := make([]ConversationEntry, 0, len(convs))
	for _, conv := range convs {
		peer, err := s.users.GetUserByID(ctx, conv.Peer(userID))
		if err != nil {
			return nil, apperrors.NewDatabaseError("get conversation peer", err)
		}
		// Conversations whose peer account is gone are skipped.
		if peer == nil {
			continue
		}
		entries = append(entries, ConversationEntry{
			User:           peerView(peer),
			ConversationID: conv.ID,
		})
	}
	return entries, nil
}
