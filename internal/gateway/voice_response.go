package gateway

import (
	"encoding/xml"
	"fmt"
)

// VoiceResponse is the small declarative document returned to the gateway's
// answered-by request: either play an audio asset or hang the call up.
type VoiceResponse struct {
	XMLName xml.Name  `xml:"Response"`
	Play    *playVerb `xml:"Play,omitempty"`
	Hangup  *struct{} `xml:"Hangup,omitempty"`
}

type playVerb struct {
	URL string `xml:",chardata"`
}

// PlayResponse instructs the gateway to play the audio at url to the callee.
func PlayResponse(url string) VoiceResponse {
	return VoiceResponse{Play: &playVerb{URL: url}}
}

// HangupResponse instructs the gateway to end the call immediately.
func HangupResponse() VoiceResponse {
	return VoiceResponse{Hangup: &struct{}{}}
}

// Render serializes the document with an XML declaration, ready to be used
// as an HTTP response body.
func (v VoiceResponse) Render() ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal voice response: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
