package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/outreachd/interactiond/internal/gateway"
	"github.com/outreachd/interactiond/internal/interaction/domain"
)

// confirmationBody is the fixed text sent when a user subscribes.
const confirmationBody = "Thanks for subscribing. You'll hear from us soon."

// SubscriptionManager handles the "subscribe" keyword: it flags the user as
// subscribed and sends the confirmation text. Safe to invoke for an
// already-subscribed user; the confirmation is re-sent each time
// (at-least-once, unlike the followup/reprompt at-most-once flags).
type SubscriptionManager struct {
	users   domain.UserRepository
	gateway gateway.Client
	logger  *slog.Logger
}

func NewSubscriptionManager(users domain.UserRepository, gatewayClient gateway.Client, logger *slog.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		users:   users,
		gateway: gatewayClient,
		logger:  logger.With("service", "subscription"),
	}
}

// Subscribe sends the confirmation from number and persists the flag. The
// send happens first: a gateway failure leaves the user unsubscribed so the
// next attempt retries both.
func (s *SubscriptionManager) Subscribe(ctx context.Context, user *domain.User, number *domain.Number) error {
	if _, err := s.gateway.SendMessage(ctx, number.Value, user.PhoneNumber, confirmationBody); err != nil {
		return fmt.Errorf("%w: sending subscription confirmation: %w", domain.ErrDispatchFailed, err)
	}

	if err := s.users.SetSubscribed(ctx, user.ID, true); err != nil {
		return fmt.Errorf("persisting subscription for user %s: %w", user.ID, err)
	}
	user.Subscribed = true

	s.logger.InfoContext(ctx, "user subscribed", "user_id", user.ID, "number", number.Value)
	return nil
}
