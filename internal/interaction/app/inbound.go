package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outreachd/interactiond/internal/gateway"
	"github.com/outreachd/interactiond/internal/interaction/domain"
	"github.com/outreachd/interactiond/internal/platform/messagebroker"
)

const (
	// subscribeKeyword short-circuits normal dispatch into the subscription
	// manager; confirmKeyword re-triggers the user's most recent pending call.
	// Both are matched after lower-casing.
	subscribeKeyword = "subscribe"
	confirmKeyword   = "yes"

	inboundReceivedSubject = "interactions.inbound.received.v1"
)

// InboundMessage is one received text message, delivered by the (upstream,
// already signature-verified) webhook layer.
type InboundMessage struct {
	From              string
	To                string
	Body              string
	ProviderMessageID string
}

// InboundReceivedEvent is published after an inbound message has been routed.
type InboundReceivedEvent struct {
	InboundID   string    `json:"inbound_id,omitempty"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Keyword     string    `json:"keyword"`
	Outcome     string    `json:"outcome"`
	ProcessedAt time.Time `json:"processed_at"`
}

// InboundProcessor routes each received message: the subscribe keyword, the
// yes-confirmation, or a keyword lookup followed by dispatch (with the
// number's fallback text on a miss).
type InboundProcessor struct {
	numbers       domain.NumberRepository
	users         domain.UserRepository
	inbounds      domain.InboundRepository
	outbounds     domain.OutboundRepository
	actions       domain.ActionRepository
	dispatcher    *Dispatcher
	subscriptions *SubscriptionManager
	gateway       gateway.Client
	broker        messagebroker.Publisher
	logger        *slog.Logger
}

// NewInboundProcessor builds an InboundProcessor. broker may be nil.
func NewInboundProcessor(
	numbers domain.NumberRepository,
	users domain.UserRepository,
	inbounds domain.InboundRepository,
	outbounds domain.OutboundRepository,
	actions domain.ActionRepository,
	dispatcher *Dispatcher,
	subscriptions *SubscriptionManager,
	gatewayClient gateway.Client,
	broker messagebroker.Publisher,
	logger *slog.Logger,
) *InboundProcessor {
	return &InboundProcessor{
		numbers:       numbers,
		users:         users,
		inbounds:      inbounds,
		outbounds:     outbounds,
		actions:       actions,
		dispatcher:    dispatcher,
		subscriptions: subscriptions,
		gateway:       gatewayClient,
		broker:        broker,
		logger:        logger.With("service", "inbound_processor"),
	}
}

// Process handles one inbound message end to end. A keyword with no bound
// action is recovered locally by sending the number's fallback text and is
// not an error; an unconfigured receiving number is.
func (p *InboundProcessor) Process(ctx context.Context, msg InboundMessage) error {
	number, err := p.numbers.GetByValue(ctx, msg.To)
	if err != nil {
		if errors.Is(err, domain.ErrNumberNotFound) {
			p.logger.ErrorContext(ctx, "inbound message for unconfigured number", "to", msg.To, "from", msg.From)
		}
		return fmt.Errorf("looking up receiving number %s: %w", msg.To, err)
	}

	user, err := p.users.GetOrCreateByPhoneNumber(ctx, msg.From)
	if err != nil {
		return fmt.Errorf("resolving user %s: %w", msg.From, err)
	}

	body := strings.ToLower(strings.TrimSpace(msg.Body))

	if body == subscribeKeyword {
		if err := p.subscriptions.Subscribe(ctx, user, number); err != nil {
			return err
		}
		inboundMessagesCounter.WithLabelValues("subscribed").Inc()
		p.publishReceived(ctx, "", msg, body, "subscribed")
		return nil
	}

	inbound := &domain.Inbound{
		ID:                uuid.NewString(),
		UserID:            user.ID,
		NumberID:          number.ID,
		Body:              body,
		ProviderMessageID: msg.ProviderMessageID,
		CreatedAt:         time.Now().UTC(),
	}
	if err := p.inbounds.Create(ctx, inbound); err != nil {
		return fmt.Errorf("recording inbound message: %w", err)
	}

	if body == confirmKeyword {
		return p.processConfirmation(ctx, inbound, user, msg)
	}

	action, err := p.dispatcher.Resolve(ctx, number.ID, body)
	if err != nil {
		if errors.Is(err, domain.ErrActionNotFound) {
			if err := p.sendFallback(ctx, number, user); err != nil {
				return err
			}
			inboundMessagesCounter.WithLabelValues("fallback").Inc()
			p.publishReceived(ctx, inbound.ID, msg, body, "fallback")
			return nil
		}
		return fmt.Errorf("resolving keyword %q: %w", body, err)
	}

	if _, err := p.dispatcher.Dispatch(ctx, action, number, user); err != nil {
		return err
	}
	if err := p.inbounds.AttachAction(ctx, inbound.ID, action.ID); err != nil {
		// The dispatch already happened; an unattached inbound is a ledger
		// blemish, not a processing failure.
		p.logger.ErrorContext(ctx, "failed to attach action to inbound",
			"error", err, "inbound_id", inbound.ID, "action_id", action.ID)
	}

	inboundMessagesCounter.WithLabelValues("dispatched").Inc()
	p.publishReceived(ctx, inbound.ID, msg, body, "dispatched")
	return nil
}

// processConfirmation re-triggers the action behind the user's most recent
// call that has not yet resolved to a human/unknown disposition. With no
// such call there is nothing to confirm and the message is dropped.
func (p *InboundProcessor) processConfirmation(ctx context.Context, inbound *domain.Inbound, user *domain.User, msg InboundMessage) error {
	pending, err := p.outbounds.FindMostRecentPendingCall(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNoPendingCall) {
			p.logger.InfoContext(ctx, "confirmation with no pending call", "user_id", user.ID)
			inboundMessagesCounter.WithLabelValues("confirm_noop").Inc()
			p.publishReceived(ctx, inbound.ID, msg, confirmKeyword, "confirm_noop")
			return nil
		}
		return fmt.Errorf("finding pending call for user %s: %w", user.ID, err)
	}

	action, err := p.actions.GetByID(ctx, pending.ActionID)
	if err != nil {
		return fmt.Errorf("loading action %s for pending call: %w", pending.ActionID, err)
	}
	// Dispatch from the number the pending call was placed from, which may
	// differ from the number this confirmation arrived on.
	number, err := p.numbers.GetByID(ctx, pending.NumberID)
	if err != nil {
		return fmt.Errorf("loading number %s for pending call: %w", pending.NumberID, err)
	}

	if _, err := p.dispatcher.Dispatch(ctx, action, number, user); err != nil {
		return err
	}
	if err := p.inbounds.AttachAction(ctx, inbound.ID, action.ID); err != nil {
		p.logger.ErrorContext(ctx, "failed to attach action to inbound",
			"error", err, "inbound_id", inbound.ID, "action_id", action.ID)
	}

	inboundMessagesCounter.WithLabelValues("confirmed").Inc()
	p.publishReceived(ctx, inbound.ID, msg, confirmKeyword, "confirmed")
	return nil
}

// sendFallback sends the number's configured fallback text. A keyword miss
// is never surfaced to the sender as silence, so a number with no fallback
// body is a configuration error.
func (p *InboundProcessor) sendFallback(ctx context.Context, number *domain.Number, user *domain.User) error {
	if number.Fallback == nil || *number.Fallback == "" {
		return fmt.Errorf("%w: number %s has no fallback body", domain.ErrConfigurationMissing, number.ID)
	}
	if _, err := p.gateway.SendMessage(ctx, number.Value, user.PhoneNumber, *number.Fallback); err != nil {
		return fmt.Errorf("%w: sending fallback: %w", domain.ErrDispatchFailed, err)
	}
	p.logger.InfoContext(ctx, "fallback sent", "number", number.Value, "to", user.PhoneNumber)
	return nil
}

func (p *InboundProcessor) publishReceived(ctx context.Context, inboundID string, msg InboundMessage, keyword, outcome string) {
	if p.broker == nil {
		return
	}
	event := InboundReceivedEvent{
		InboundID:   inboundID,
		From:        msg.From,
		To:          msg.To,
		Keyword:     keyword,
		Outcome:     outcome,
		ProcessedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal inbound event", "error", err)
		return
	}
	if err := p.broker.Publish(ctx, inboundReceivedSubject, payload); err != nil {
		p.logger.WarnContext(ctx, "failed to publish inbound event",
			"error", err, "subject", inboundReceivedSubject)
	}
}
