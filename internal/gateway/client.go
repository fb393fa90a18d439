package gateway

import "context"

// CallRequest carries everything needed to place an outbound voice call.
type CallRequest struct {
	From string
	To   string
	// AnswerURL is fetched by the gateway when the call connects; the
	// response is a voice-response document (see VoiceResponse).
	AnswerURL string
	// StatusCallbackURL receives the call-completed status webhook.
	StatusCallbackURL string
	// MachineDetection asks the gateway to classify who answered and to
	// report it on the AnswerURL request.
	MachineDetection bool
}

// Client is the outbound messaging/telephony gateway. Both operations return
// the provider-assigned identifier synchronously on submission; delivery and
// disposition arrive later as webhooks.
type Client interface {
	SendMessage(ctx context.Context, from, to, body string) (messageID string, err error)
	PlaceCall(ctx context.Context, req CallRequest) (callID string, err error)
}
