package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/outreachd/interactiond/internal/gateway"
	"github.com/outreachd/interactiond/internal/interaction/domain"
)

// Dispatcher resolves inbound keywords to actions and performs them: voice
// actions become tracked gateway calls, text actions become fire-and-forget
// message sends.
type Dispatcher struct {
	actions   domain.ActionRepository
	outbounds domain.OutboundRepository
	gateway   gateway.Client
	answerURL string
	statusURL string
	logger    *slog.Logger
}

// NewDispatcher builds a Dispatcher. publicBaseURL is this service's
// externally reachable base URL; the two call webhooks are derived from it.
func NewDispatcher(
	actions domain.ActionRepository,
	outbounds domain.OutboundRepository,
	gatewayClient gateway.Client,
	publicBaseURL string,
	logger *slog.Logger,
) *Dispatcher {
	base := strings.TrimRight(publicBaseURL, "/")
	return &Dispatcher{
		actions:   actions,
		outbounds: outbounds,
		gateway:   gatewayClient,
		answerURL: base + "/webhooks/calls/answered",
		statusURL: base + "/webhooks/calls/status",
		logger:    logger.With("service", "dispatcher"),
	}
}

// Resolve finds the action bound to keyword on the given number. The match
// is exact on the lower-cased keyword and scoped to that number; a miss
// surfaces domain.ErrActionNotFound for the caller to recover from.
func (d *Dispatcher) Resolve(ctx context.Context, numberID, keyword string) (*domain.Action, error) {
	return d.actions.GetByKeyword(ctx, numberID, strings.ToLower(keyword))
}

// Dispatch performs the action toward user. For the voice path it places a
// machine-detection call and persists an Outbound carrying the provider call
// id; the returned record is what the disposition callbacks later mutate.
// For the text path it sends the body and returns a nil Outbound: message
// sends have no later disposition to track.
func (d *Dispatcher) Dispatch(ctx context.Context, action *domain.Action, number *domain.Number, user *domain.User) (*domain.Outbound, error) {
	if action.IsCall() {
		return d.dispatchCall(ctx, action, number, user)
	}
	return nil, d.dispatchMessage(ctx, action, number, user)
}

func (d *Dispatcher) dispatchCall(ctx context.Context, action *domain.Action, number *domain.Number, user *domain.User) (*domain.Outbound, error) {
	callID, err := d.gateway.PlaceCall(ctx, gateway.CallRequest{
		From:              number.Value,
		To:                user.PhoneNumber,
		AnswerURL:         d.answerURL,
		StatusCallbackURL: d.statusURL,
		MachineDetection:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: placing call for action %q: %w", domain.ErrDispatchFailed, action.Keyword, err)
	}

	now := time.Now().UTC()
	outbound := &domain.Outbound{
		ID:             uuid.NewString(),
		NumberID:       number.ID,
		UserID:         user.ID,
		ActionID:       action.ID,
		ProviderCallID: callID,
		AnsweredBy:     domain.AnsweredByUnset,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := d.outbounds.Create(ctx, outbound); err != nil {
		// The call is already placed; without the record its callbacks
		// cannot be matched, so this is a hard failure.
		d.logger.ErrorContext(ctx, "failed to persist outbound for placed call",
			"error", err, "call_id", callID, "action_id", action.ID)
		return nil, fmt.Errorf("persisting outbound for call %s: %w", callID, err)
	}

	dispatchesCounter.WithLabelValues("call").Inc()
	d.logger.InfoContext(ctx, "call dispatched",
		"outbound_id", outbound.ID, "call_id", callID, "keyword", action.Keyword, "to", user.PhoneNumber)
	return outbound, nil
}

func (d *Dispatcher) dispatchMessage(ctx context.Context, action *domain.Action, number *domain.Number, user *domain.User) error {
	var body string
	if action.Body != nil {
		body = *action.Body
	}
	messageID, err := d.gateway.SendMessage(ctx, number.Value, user.PhoneNumber, body)
	if err != nil {
		return fmt.Errorf("%w: sending message for action %q: %w", domain.ErrDispatchFailed, action.Keyword, err)
	}

	dispatchesCounter.WithLabelValues("message").Inc()
	d.logger.InfoContext(ctx, "message dispatched",
		"message_id", messageID, "keyword", action.Keyword, "to", user.PhoneNumber)
	return nil
}
