package service

import (
	"context"
	"testing"

	"chatrelay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConversationService_OpenCreates(t *testing.T) {
	store := &mockStore{}
	svc := NewConversationService(store, store, quietLogger())
	ctx := context.Background()

	store.On("FindConversation", ctx, "alice", "bob").Return(nil, nil).Once()
	store.On("CreateConversation", ctx, mock.MatchedBy(func(c *models.Conversation) bool {
		return c.Members == [2]string{"alice", "bob"} && c.ID != ""
	})).Return(nil).Once()

	conv, created, err := svc.Open(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, [2]string{"alice", "bob"}, conv.Members)
	store.AssertExpectations(t)
}

func TestConversationService_OpenReusesExisting(t *testing.T) {
	store := &mockStore{}
	svc := NewConversationService(store, store, quietLogger())
	ctx := context.Background()
	existing := &models.Conversation{ID: "c1", Members: [2]string{"bob", "alice"}}

	store.On("FindConversation", ctx, "alice", "bob").Return(existing, nil).Once()

	conv, created, err := svc.Open(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "c1", conv.ID)
	store.AssertNotCalled(t, "CreateConversation", mock.Anything, mock.Anything)
}

func TestConversationService_OpenMissingMember(t *testing.T) {
	svc := NewConversationService(&mockStore{}, &mockStore{}, quietLogger())

	_, _, err := svc.Open(context.Background(), "alice", "")
	assert.Error(t, err)
}

func TestConversationService_ListSkipsMissingPeers(t *testing.T) {
	store := &mockStore{}
	svc := NewConversationService(store, store, quietLogger())
	ctx := context.Background()

	store.On("ListConversationsForUser", ctx, "alice").Return([]models.Conversation{
		{ID: "c1", Members: [2]string{"alice", "bob"}},
		{ID: "c2", Members: [2]string{"ghost", "alice"}},
	}, nil).Once()
	store.On("GetUserByID", ctx, "bob").Return(&models.User{ID: "bob", FullName: "Bob", Email: "bob@example.com"}, nil).Once()
	store.On("GetUserByID", ctx, "ghost").Return(nil, nil).Once()

	entries, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []ConversationEntry{{
		User:           PeerView{ReceiverID: "bob", Email: "bob@example.com", FullName: "Bob"},
		ConversationID: "c1",
	}}, entries)
}
