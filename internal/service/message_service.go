package service

import (
	"context"

	apperrors "chatrelay/internal/errors"
	"chatrelay/internal/models"
	"chatrelay/internal/validation"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NewConversationID is the placeholder clients send before a conversation
// exists.
const NewConversationID = "new"

// SendRequest is the body of a message append call.
type SendRequest struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Message        string `json:"message"`
	ReceiverID     string `json:"receiverId"`
}

// HistoryEntry is one message in a conversation history.
type HistoryEntry struct {
	User    UserView `json:"user"`
	Message string   `json:"message"`
}

type MessageService interface {
	// Send stores a message. A "new" conversation ID together with a
	// receiver opens the conversation first.
	Send(ctx context.Context, req SendRequest) (*models.Message, error)
	// History lists a conversation's messages. For "new", the pair
	// senderID/receiverID selects the conversation and an empty history is
	// returned when they have none.
	History(ctx context.Context, conversationID, senderID, receiverID string) ([]HistoryEntry, error)
}

type messageService struct {
	messages      MessageStore
	users         UserStore
	conversations ConversationService
	lookup        ConversationStore
	logger        *logrus.Logger
}

func NewMessageService(messages MessageStore, users UserStore, lookup ConversationStore, conversations ConversationService, logger *logrus.Logger) MessageService {
	return &messageService{
		messages:      messages,
		users:         users,
		conversations: conversations,
		lookup:        lookup,
		logger:        logger,
	}
}

func (s *messageService) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	if req.SenderID == "" || req.Message == "" {
		return nil, apperrors.NewMissingFieldsError("senderId", "message")
	}
	if req.ConversationID == "" && req.ReceiverID == "" {
		return nil, apperrors.NewMissingFieldsError("conversationId", "receiverId")
	}
	if err := validation.ValidateMessageText(req.Message); err != nil {
		return nil, err
	}

	conversationID := req.ConversationID
	switch {
	case conversationID == NewConversationID && req.ReceiverID != "":
		conv, _, err := s.conversations.Open(ctx, req.SenderID, req.ReceiverID)
		if err != nil {
			return nil, err
		}
		conversationID = conv.ID
	case conversationID == "" || conversationID == NewConversationID:
		return nil, apperrors.NewMissingFieldsError("conversationId", "receiverId")
	default:
		conv, err := s.lookup.GetConversation(ctx, conversationID)
		if err != nil {
			return nil, apperrors.NewDatabaseError("get conversation", err)
		}
		if conv == nil {
			return nil, apperrors.NewNotFoundError("Conversation", conversationID)
		}
	}

	msg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       req.SenderID,
		Body:           req.Message,
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, apperrors.NewDatabaseError("create message", err)
	}

	LogWithContext(ctx, s.logger, logrus.Fields{
		LogFieldMessageID:      msg.ID,
		LogFieldConversationID: conversationID,
		LogFieldSenderID:       req.SenderID,
	}).Debug("Message stored")
	return msg, nil
}

func (s *messageService) History(ctx context.Context, conversationID, senderID, receiverID string) ([]HistoryEntry, error) {
	if conversationID == NewConversationID {
		if senderID == "" || receiverID == "" {
			return []HistoryEntry{}, nil
		}
		conv, err := s.lookup.FindConversation(ctx, senderID, receiverID)
		if err != nil {
			return nil, apperrors.NewDatabaseError("find conversation", err)
		}
		if conv == nil {
			return []HistoryEntry{}, nil
		}
		conversationID = conv.ID
	}

	if err := validation.ValidateConversationID(conversationID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list messages", err)
	}

	senders := make(map[string]*models.User)
	entries := make([]HistoryEntry, 0, len(msgs))
	for _, msg := range msgs {
		sender, seen := senders[msg.SenderID]
		if !seen {
			sender, err = s.users.GetUserByID(ctx, msg.SenderID)
			if err != nil {
				return nil, apperrors.NewDatabaseError("get message sender", err)
			}
			senders[msg.SenderID] = sender
		}
		// Messages from deleted accounts are skipped.
		if sender == nil {
			continue
		}
		entries = append(entries, HistoryEntry{
			User:    userView(sender),
			Message: msg.Body,
		})
	}
	return entries, nil
}
