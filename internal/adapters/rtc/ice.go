// Package rtc holds the WebRTC-facing helpers of the signaling server.
// The server never terminates media; it only describes ICE servers to
// clients and inspects relayed payloads for logging and sanity checks.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

var (
	ErrNoField         = errors.New("payload field missing")
	ErrSDPTypeMismatch = errors.New("sdp type does not match frame type")
)

func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{
			URLs: []string{"stun:stun.l.google.com:19302"},
		},
	}
}

// ICEServers builds the list handed to clients. Empty urls fall back to the
// public STUN default.
func ICEServers(urls []string, username, credential string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return DefaultICEServers()
	}
	srv := webrtc.ICEServer{URLs: urls}
	if username != "" {
		srv.Username = username
		srv.Credential = credential
	}
	return []webrtc.ICEServer{srv}
}

// Summary describes a relayed payload without altering it.
type Summary struct {
	SDPType   string
	Media     int
	Candidate string
	SDPMid    string
}

// Inspect decodes the offer/answer/candidate field of a relay payload.
func Inspect(kind string, data json.RawMessage) (Summary, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Summary{}, err
	}
	raw, ok := fields[fieldFor(kind)]
	if !ok {
		return Summary{}, fmt.Errorf("%w: %s", ErrNoField, fieldFor(kind))
	}

	if kind == "ice-candidate" {
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(raw, &ci); err != nil {
			return Summary{}, err
		}
		s := Summary{Candidate: ci.Candidate}
		if ci.SDPMid != nil {
			s.SDPMid = *ci.SDPMid
		}
		return s, nil
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(raw, &desc); err != nil {
		return Summary{}, err
	}
	s := Summary{SDPType: desc.Type.String()}
	if parsed, err := desc.Unmarshal(); err == nil {
		s.Media = len(parsed.MediaDescriptions)
	}
	return s, nil
}

// Matches reports whether an offer or answer frame carries a session
// description of the same type. Candidates always match.
func (s Summary) Matches(kind string) error {
	switch kind {
	case "offer":
		if s.SDPType == webrtc.SDPTypeOffer.String() {
			return nil
		}
	case "answer":
		if s.SDPType == webrtc.SDPTypeAnswer.String() || s.SDPType == webrtc.SDPTypePranswer.String() {
			return nil
		}
	default:
		return nil
	}
	return fmt.Errorf("%w: %q in %s", ErrSDPTypeMismatch, s.SDPType, kind)
}

func fieldFor(kind string) string {
	if kind == "ice-candidate" {
		return "candidate"
	}
	return kind
}
