package domain

import "context"

// NumberRepository reads configured sending identities (directory store).
type NumberRepository interface {
	GetByValue(ctx context.Context, value string) (*Number, error)
	GetByID(ctx context.Context, id string) (*Number, error)
}

// ActionRepository reads keyword bindings (directory store).
type ActionRepository interface {
	// GetByKeyword does an exact match on the lower-cased keyword, scoped
	// to the receiving number.
	GetByKeyword(ctx context.Context, numberID, keyword string) (*Action, error)
	GetByID(ctx context.Context, id string) (*Action, error)
}

// UserRepository manages inbound counterparties. The subscription flag is the
// only field the engine mutates.
type UserRepository interface {
	GetOrCreateByPhoneNumber(ctx context.Context, phoneNumber string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	SetSubscribed(ctx context.Context, id string, subscribed bool) error
}

// InboundRepository appends received-message records to the ledger.
type InboundRepository interface {
	Create(ctx context.Context, inbound *Inbound) error
	// AttachAction records which action an inbound resolved to. The only
	// mutation an Inbound ever sees.
	AttachAction(ctx context.Context, inboundID, actionID string) error
}

// OutboundRepository manages dispatch records in the ledger. The Claim
// methods are compare-and-set: they flip the flag only if it is still false
// and report whether this caller won, so concurrent duplicate callbacks
// cannot both pass a read-then-write check.
type OutboundRepository interface {
	Create(ctx context.Context, outbound *Outbound) error
	GetByCallID(ctx context.Context, providerCallID string) (*Outbound, error)
	SetAnsweredBy(ctx context.Context, id string, answeredBy AnsweredBy) error
	SetDuration(ctx context.Context, id, duration string) error
	ClaimFollowup(ctx context.Context, id string) (bool, error)
	ClaimReprompt(ctx context.Context, id string) (bool, error)
	// FindMostRecentPendingCall returns the newest outbound for the user
	// whose disposition is not human/unknown, or ErrNoPendingCall.
	FindMostRecentPendingCall(ctx context.Context, userID string) (*Outbound, error)
}
