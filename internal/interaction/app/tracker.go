package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/outreachd/interactiond/internal/gateway"
	"github.com/outreachd/interactiond/internal/interaction/domain"
	"github.com/outreachd/interactiond/internal/platform/messagebroker"
)

// dispositionSubject is where processed call dispositions are announced for
// downstream consumers.
const dispositionSubject = "interactions.call.disposition.v1"

// DispositionEvent is the payload published after a status callback has been
// fully processed.
type DispositionEvent struct {
	OutboundID  string            `json:"outbound_id"`
	CallID      string            `json:"call_id"`
	AnsweredBy  domain.AnsweredBy `json:"answered_by"`
	Duration    string            `json:"duration"`
	Outcome     string            `json:"outcome"` // "followup" or "reprompt"
	ProcessedAt time.Time         `json:"processed_at"`
}

// Tracker consumes the gateway's asynchronous call callbacks, records the
// disposition on the matching Outbound, and drives the followup-or-reprompt
// decision.
//
// An Outbound's AnsweredBy moves from unset to exactly one of human, unknown
// or machine and is terminal once set. The followup/reprompt flags mutate
// independently and each transitions false to true at most once, guarded by
// compare-and-set claims in the repository.
type Tracker struct {
	outbounds domain.OutboundRepository
	actions   domain.ActionRepository
	numbers   domain.NumberRepository
	users     domain.UserRepository
	gateway   gateway.Client
	broker    messagebroker.Publisher
	logger    *slog.Logger
}

// NewTracker builds a Tracker. broker may be nil; disposition events are
// then skipped.
func NewTracker(
	outbounds domain.OutboundRepository,
	actions domain.ActionRepository,
	numbers domain.NumberRepository,
	users domain.UserRepository,
	gatewayClient gateway.Client,
	broker messagebroker.Publisher,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		outbounds: outbounds,
		actions:   actions,
		numbers:   numbers,
		users:     users,
		gateway:   gatewayClient,
		broker:    broker,
		logger:    logger.With("service", "tracker"),
	}
}

// OnAnsweredBy handles the machine-detection callback for callID. It returns
// the voice-response document the gateway should execute: playback of the
// triggering action's audio when a person (human or unknown) answered, an
// immediate hangup otherwise. The classification is persisted unconditionally,
// whichever branch was taken.
//
// A call id with no matching Outbound is unrecoverable for this callback:
// the error is surfaced so the transport rejects it.
func (t *Tracker) OnAnsweredBy(ctx context.Context, callID string, classification domain.AnsweredBy) (gateway.VoiceResponse, error) {
	start := time.Now()
	defer func() {
		callbackDurationHist.WithLabelValues("answered_by").Observe(time.Since(start).Seconds())
	}()

	outbound, err := t.outbounds.GetByCallID(ctx, callID)
	if err != nil {
		if errors.Is(err, domain.ErrOutboundNotFound) {
			callbacksCounter.WithLabelValues("answered_by", "not_found").Inc()
			t.logger.ErrorContext(ctx, "answered-by callback for unknown call id", "call_id", callID)
		} else {
			callbacksCounter.WithLabelValues("answered_by", "error").Inc()
		}
		return gateway.VoiceResponse{}, fmt.Errorf("looking up outbound for call %s: %w", callID, err)
	}

	var doc gateway.VoiceResponse
	if classification.ReachedPerson() {
		action, err := t.actions.GetByID(ctx, outbound.ActionID)
		if err != nil {
			callbacksCounter.WithLabelValues("answered_by", "error").Inc()
			return gateway.VoiceResponse{}, fmt.Errorf("loading action %s for call %s: %w", outbound.ActionID, callID, err)
		}
		if action.AudioURL == nil || *action.AudioURL == "" {
			// Voice dispatches always originate from audio actions; an
			// empty reference here means the action was edited out from
			// under an in-flight call.
			t.logger.WarnContext(ctx, "answered call has no audio to play, hanging up",
				"call_id", callID, "action_id", action.ID)
			doc = gateway.HangupResponse()
		} else {
			doc = gateway.PlayResponse(*action.AudioURL)
		}
	} else {
		doc = gateway.HangupResponse()
	}

	if err := t.outbounds.SetAnsweredBy(ctx, outbound.ID, classification); err != nil {
		callbacksCounter.WithLabelValues("answered_by", "error").Inc()
		return gateway.VoiceResponse{}, fmt.Errorf("recording answered-by for outbound %s: %w", outbound.ID, err)
	}

	callbacksCounter.WithLabelValues("answered_by", "success").Inc()
	t.logger.InfoContext(ctx, "answered-by recorded",
		"outbound_id", outbound.ID, "call_id", callID, "answered_by", string(classification))
	return doc, nil
}

// OnStatus handles the call-completed callback: it persists the reported
// duration and then takes exactly one of two branches: followup when the
// recorded disposition is human/unknown, reprompt otherwise.
//
// The two callbacks for a call are not guaranteed to arrive in order. A
// status callback that beats the answered-by callback sees an unset
// classification and takes the reprompt branch; that race is accepted, and
// the reprompt is the safe outcome since it asks the recipient to respond.
func (t *Tracker) OnStatus(ctx context.Context, callID, duration string) error {
	start := time.Now()
	defer func() {
		callbackDurationHist.WithLabelValues("status").Observe(time.Since(start).Seconds())
	}()

	outbound, err := t.outbounds.GetByCallID(ctx, callID)
	if err != nil {
		if errors.Is(err, domain.ErrOutboundNotFound) {
			callbacksCounter.WithLabelValues("status", "not_found").Inc()
			t.logger.ErrorContext(ctx, "status callback for unknown call id", "call_id", callID)
		} else {
			callbacksCounter.WithLabelValues("status", "error").Inc()
		}
		return fmt.Errorf("looking up outbound for call %s: %w", callID, err)
	}

	if err := t.outbounds.SetDuration(ctx, outbound.ID, duration); err != nil {
		callbacksCounter.WithLabelValues("status", "error").Inc()
		return fmt.Errorf("recording duration for outbound %s: %w", outbound.ID, err)
	}
	outbound.Duration = duration

	var outcome string
	if outbound.AnsweredBy.ReachedPerson() {
		outcome = "followup"
		err = t.sendFollowup(ctx, outbound)
	} else {
		outcome = "reprompt"
		err = t.sendReprompt(ctx, outbound)
	}
	if err != nil {
		callbacksCounter.WithLabelValues("status", "error").Inc()
		return err
	}

	t.publishDisposition(ctx, outbound, outcome)
	callbacksCounter.WithLabelValues("status", "success").Inc()
	t.logger.InfoContext(ctx, "call disposition processed",
		"outbound_id", outbound.ID, "call_id", callID,
		"answered_by", string(outbound.AnsweredBy), "duration", duration, "outcome", outcome)
	return nil
}

// sendFollowup sends the effective followup text at most once: the action's
// override when non-empty, else the number's default, else nothing. A second
// invocation, or one with no text configured, is a silent no-op.
func (t *Tracker) sendFollowup(ctx context.Context, outbound *domain.Outbound) error {
	action, number, user, err := t.loadDispatchParties(ctx, outbound)
	if err != nil {
		return err
	}

	text := effectiveBody(action.Followup, number.Followup)
	if text == "" {
		t.logger.DebugContext(ctx, "no followup text configured", "outbound_id", outbound.ID)
		return nil
	}

	claimed, err := t.outbounds.ClaimFollowup(ctx, outbound.ID)
	if err != nil {
		return fmt.Errorf("claiming followup for outbound %s: %w", outbound.ID, err)
	}
	if !claimed {
		t.logger.DebugContext(ctx, "followup already sent", "outbound_id", outbound.ID)
		return nil
	}

	if _, err := t.gateway.SendMessage(ctx, number.CallerID(), user.PhoneNumber, text); err != nil {
		// The claim stands: the guarantee is at-most-once, retries belong
		// to the transport layer.
		return fmt.Errorf("%w: sending followup for outbound %s: %w", domain.ErrDispatchFailed, outbound.ID, err)
	}
	outbound.FollowupSent = true

	followupsSentCounter.Inc()
	t.logger.InfoContext(ctx, "followup sent", "outbound_id", outbound.ID, "to", user.PhoneNumber)
	return nil
}

// sendReprompt mirrors sendFollowup with the reprompt override chain and flag.
func (t *Tracker) sendReprompt(ctx context.Context, outbound *domain.Outbound) error {
	action, number, user, err := t.loadDispatchParties(ctx, outbound)
	if err != nil {
		return err
	}

	text := effectiveBody(action.Reprompt, number.Reprompt)
	if text == "" {
		t.logger.DebugContext(ctx, "no reprompt text configured", "outbound_id", outbound.ID)
		return nil
	}

	claimed, err := t.outbounds.ClaimReprompt(ctx, outbound.ID)
	if err != nil {
		return fmt.Errorf("claiming reprompt for outbound %s: %w", outbound.ID, err)
	}
	if !claimed {
		t.logger.DebugContext(ctx, "reprompt already sent", "outbound_id", outbound.ID)
		return nil
	}

	if _, err := t.gateway.SendMessage(ctx, number.CallerID(), user.PhoneNumber, text); err != nil {
		return fmt.Errorf("%w: sending reprompt for outbound %s: %w", domain.ErrDispatchFailed, outbound.ID, err)
	}
	outbound.RepromptSent = true

	repromptsSentCounter.Inc()
	t.logger.InfoContext(ctx, "reprompt sent", "outbound_id", outbound.ID, "to", user.PhoneNumber)
	return nil
}

func (t *Tracker) loadDispatchParties(ctx context.Context, outbound *domain.Outbound) (*domain.Action, *domain.Number, *domain.User, error) {
	action, err := t.actions.GetByID(ctx, outbound.ActionID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading action %s: %w", outbound.ActionID, err)
	}
	number, err := t.numbers.GetByID(ctx, outbound.NumberID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading number %s: %w", outbound.NumberID, err)
	}
	user, err := t.users.GetByID(ctx, outbound.UserID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading user %s: %w", outbound.UserID, err)
	}
	return action, number, user, nil
}

// effectiveBody applies the override precedence: a non-empty action override
// always wins over the number default.
func effectiveBody(override, fallback *string) string {
	if override != nil && *override != "" {
		return *override
	}
	if fallback != nil && *fallback != "" {
		return *fallback
	}
	return ""
}

func (t *Tracker) publishDisposition(ctx context.Context, outbound *domain.Outbound, outcome string) {
	if t.broker == nil {
		return
	}
	event := DispositionEvent{
		OutboundID:  outbound.ID,
		CallID:      outbound.ProviderCallID,
		AnsweredBy:  outbound.AnsweredBy,
		Duration:    outbound.Duration,
		Outcome:     outcome,
		ProcessedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.logger.ErrorContext(ctx, "failed to marshal disposition event", "error", err, "outbound_id", outbound.ID)
		return
	}
	if err := t.broker.Publish(ctx, dispositionSubject, payload); err != nil {
		// Best effort; the ledger already holds the state of record.
		t.logger.WarnContext(ctx, "failed to publish disposition event",
			"error", err, "subject", dispositionSubject, "outbound_id", outbound.ID)
	}
}
