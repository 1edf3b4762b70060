package chat

import (
	"errors"
	"fmt"
	"testing"

	"support_chat/internal/domain"
	"support_chat/internal/repository"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("room x: %w", repository.ErrNotFound), CodeNotFound},
		{ErrRoomClosed, CodeRoomClosed},
		{ErrAlreadyClaimed, CodeAlreadyClaimed},
		{ErrNotWaiting, CodeNotWaiting},
		{ErrNotAssignedAgent, CodeForbidden},
		{ErrNotRoomClient, CodeForbidden},
		{ErrOwnRoom, CodeForbidden},
		{ErrInvalidSession, CodeUnauthorized},
		{ErrInvalidRoomID, CodeInvalid},
		{domain.ErrEmptyContent, CodeInvalid},
		{fmt.Errorf("%w: video", domain.ErrUnknownMessageType), CodeInvalid},
		{errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Code(tt.err), tt.err.Error())
	}
}
