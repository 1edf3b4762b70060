package chat

import (
	"context"
	"testing"

	"support_chat/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanView(t *testing.T) {
	stranger := domain.Session{UserID: "cust-2"}
	open := domain.Room{ID: "r", ClientID: customer.UserID, Status: domain.RoomOpen}
	queued := open
	queued.WaitingForAgent = true
	assigned := queued
	assigned.WaitingForAgent = false
	assigned.AgentAccepted = true
	assigned.AgentID = agentA.UserID

	tests := []struct {
		name string
		room domain.Room
		who  domain.Session
		role domain.SenderType
		want error
	}{
		{"owner", open, customer, domain.SenderClient, nil},
		{"other customer", open, stranger, domain.SenderClient, ErrNotRoomClient},
		{"no session", open, domain.Session{}, domain.SenderClient, ErrInvalidSession},
		{"agent on idle room", open, agentA, domain.SenderAgent, ErrNotAssignedAgent},
		{"agent on queued room", queued, agentB, domain.SenderAgent, nil},
		{"assigned agent", assigned, agentA, domain.SenderAgent, nil},
		{"other agent after accept", assigned, agentB, domain.SenderAgent, ErrNotAssignedAgent},
		{"bot role", open, customer, domain.SenderBot, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CanView(tt.room, tt.who, tt.role)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_ViewChecksAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	room := f.openRoom(t, customer)
	_, err := f.svc.Widget.Send(ctx, customer, room.ID, domain.Text{Body: "private"}, BotState{})
	require.NoError(t, err)

	_, err = f.svc.View(ctx, room.ID, domain.Session{UserID: "cust-2"}, domain.SenderClient, BotState{})
	assert.ErrorIs(t, err, ErrNotRoomClient)

	view, err := f.svc.View(ctx, room.ID, customer, domain.SenderClient, BotState{})
	require.NoError(t, err)
	assert.NotEmpty(t, view.Messages)
}
