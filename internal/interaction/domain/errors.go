package domain

import "errors"

var (
	// ErrNumberNotFound means an inbound message targeted a number this
	// engine has no configuration for.
	ErrNumberNotFound = errors.New("number not found")

	// ErrActionNotFound means no action is bound to the keyword on the
	// receiving number. Callers recover by sending the number's fallback.
	ErrActionNotFound = errors.New("action not found for keyword")

	ErrUserNotFound = errors.New("user not found")

	// ErrOutboundNotFound means a gateway callback referenced a call id with
	// no matching dispatch record. There is no recovery path; the callback
	// must be rejected.
	ErrOutboundNotFound = errors.New("outbound not found for call id")

	// ErrNoPendingCall means the user has no outbound call still awaiting a
	// human/unknown disposition; a "yes" confirmation is a no-op.
	ErrNoPendingCall = errors.New("no pending call for user")

	// ErrDispatchFailed wraps gateway rejections of a send or call request.
	// Not retried here; retry policy belongs to the transport layer.
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrConfigurationMissing means a number lacks a body (fallback,
	// followup, reprompt) that the current operation requires.
	ErrConfigurationMissing = errors.New("number configuration missing")
)
