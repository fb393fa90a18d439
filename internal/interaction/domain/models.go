package domain

import (
	"time"
)

// AnsweredBy classifies how a placed call was answered, as reported by the
// gateway's machine-detection callback. Empty means no classification has
// been recorded yet.
type AnsweredBy string

const (
	AnsweredByUnset   AnsweredBy = ""
	AnsweredByHuman   AnsweredBy = "human"
	AnsweredByUnknown AnsweredBy = "unknown"
	AnsweredByMachine AnsweredBy = "machine"
)

// ReachedPerson reports whether the classification counts as having reached
// the recipient (human or unknown). Machine and unset do not.
func (a AnsweredBy) ReachedPerson() bool {
	return a == AnsweredByHuman || a == AnsweredByUnknown
}

// Number is a configured sending identity: a phone number or an alphanumeric
// sender, with the default followup/fallback/reprompt bodies for actions
// bound to it.
type Number struct {
	ID          string
	Value       string // E.164 number, e.g. "+15551230000"
	AlphaID     bool
	AlphaSender string // display name used as caller ID when AlphaID is set
	Followup    *string
	Fallback    *string
	Reprompt    *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CallerID returns the identity messages are sent from: the alphanumeric
// sender when configured, otherwise the number itself.
func (n *Number) CallerID() string {
	if n.AlphaID && n.AlphaSender != "" {
		return n.AlphaSender
	}
	return n.Value
}

// Action binds a keyword on a Number to a response: either an audio
// reference (voice-call path) or a message body (text path). Exactly one of
// AudioURL/Body is set; the audio reference wins the dispatch decision.
// Followup and Reprompt, when set, override the Number's defaults.
type Action struct {
	ID        string
	NumberID  string
	Keyword   string // stored lower-cased, unique per number
	AudioURL  *string
	Body      *string
	Followup  *string
	Reprompt  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCall reports whether dispatching this action places a voice call.
func (a *Action) IsCall() bool {
	return a.AudioURL != nil && *a.AudioURL != ""
}

// User is an inbound counterparty, identified by phone number.
type User struct {
	ID          string
	PhoneNumber string
	Subscribed  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Inbound is the immutable record of one received message. ActionID is
// attached after keyword resolution and stays nil when no action matched.
type Inbound struct {
	ID                string // UUID
	UserID            string
	NumberID          string
	Body              string // lower-cased
	ProviderMessageID string
	ActionID          *string
	CreatedAt         time.Time
}

// Outbound is the mutable record of one dispatched call. The disposition
// tracker writes AnsweredBy and Duration; the followup/reprompt sends flip
// their flags at most once each.
type Outbound struct {
	ID             string // UUID
	NumberID       string
	UserID         string
	ActionID       string
	ProviderCallID string
	Duration       string
	AnsweredBy     AnsweredBy
	FollowupSent   bool
	RepromptSent   bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
