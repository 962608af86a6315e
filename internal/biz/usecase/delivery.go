package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orderrelay/feishu-order-relay/internal/biz/domain"
	"github.com/orderrelay/feishu-order-relay/internal/biz/repo"
	"github.com/orderrelay/feishu-order-relay/internal/metrics"
)

// DeliveryUsecase fans a notice out to destination rooms.
// Each destination is attempted independently.
type DeliveryUsecase struct {
	repo        repo.DeliveryRepo
	sendTimeout time.Duration
	log         zerolog.Logger
}

// NewDeliveryUsecase creates a fan-out delivery
func NewDeliveryUsecase(delivery repo.DeliveryRepo, sendTimeout time.Duration, log zerolog.Logger) *DeliveryUsecase {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &DeliveryUsecase{
		repo:        delivery,
		sendTimeout: sendTimeout,
		log:         log.With().Str("component", "delivery").Logger(),
	}
}

// FanOut sends notice to every room concurrently and returns one result
// per room, in the order of rooms
func (uc *DeliveryUsecase) FanOut(ctx context.Context, rooms []string, notice domain.Notice) []domain.DeliveryResult {
	results := make([]domain.DeliveryResult, len(rooms))

	var wg sync.WaitGroup
	for i, roomID := range rooms {
		wg.Add(1)
		go func(i int, roomID string) {
			defer wg.Done()
			results[i] = uc.deliver(ctx, roomID, notice)
		}(i, roomID)
	}
	wg.Wait()

	return results
}

// Delivered counts successful results
func Delivered(results []domain.DeliveryResult) int {
	n := 0
	for _, r := range results {
		if r.Delivered {
			n++
		}
	}
	return n
}

func (uc *DeliveryUsecase) deliver(ctx context.Context, roomID string, notice domain.Notice) domain.DeliveryResult {
	log := uc.log.With().Str("room_id", roomID).Logger()

	err := uc.send(ctx, roomID, notice)
	if err == nil {
		metrics.DeliveryResults.WithLabelValues("ok").Inc()
		return domain.DeliveryResult{RoomID: roomID, Delivered: true}
	}

	if domain.IsInvalidControl(err) && len(notice.Controls) > 0 {
		log.Debug().Err(err).Msg("controls rejected, retrying without them")
		if err = uc.send(ctx, roomID, notice.WithoutControls()); err == nil {
			metrics.DeliveryResults.WithLabelValues("ok_stripped").Inc()
			return domain.DeliveryResult{RoomID: roomID, Delivered: true, StrippedCtrl: true}
		}
	}

	metrics.DeliveryResults.WithLabelValues(string(failureOf(err))).Inc()
	log.Warn().Err(err).Msg("delivery failed")
	return domain.DeliveryResult{RoomID: roomID, Err: err}
}

func (uc *DeliveryUsecase) send(ctx context.Context, roomID string, notice domain.Notice) error {
	sendCtx, cancel := context.WithTimeout(ctx, uc.sendTimeout)
	defer cancel()
	return uc.repo.Send(sendCtx, roomID, notice)
}

func failureOf(err error) domain.FailureReason {
	var de *domain.DeliveryError
	if errors.As(err, &de) {
		return de.Reason
	}
	return domain.FailureTransport
}
