package repo

import (
	"context"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
)

// ClassifierRepo asks the external intent service about a message.
// Implementations never return an error: failures come back as a
// classification with Failure set.
type ClassifierRepo interface {
	Classify(ctx context.Context, prompt, text string) domain.Classification
}

// DeliveryRepo sends notices to rooms.
// Send returns a *domain.DeliveryError; Reason is domain.FailureInvalidControl
// when the platform rejected the notice's controls.
type DeliveryRepo interface {
	Send(ctx context.Context, roomID string, notice domain.Notice) error

	// SendText sends a plain operator message
	SendText(ctx context.Context, roomID, text string) error
}

// ProfileRepo looks up sender details not carried by the message event
type ProfileRepo interface {
	Profile(ctx context.Context, userID string) (domain.Member, error)
}
