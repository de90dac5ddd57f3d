package protocol

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestEncodeRelayKeepsPayloadBytes(t *testing.T) {
	data := json.RawMessage(`{ "to":"c2",  "offer": {"type":"offer","sdp":"v=0\r\n<a>&b"} }`)
	frame, err := EncodeRelay(TypeOffer, "c1", "u1", "Alice", data)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(frame, []byte(`,"data":`+string(data)+`}`)) {
		t.Fatalf("payload altered: %s", frame)
	}

	var got Relayed
	if err := json.Unmarshal(frame, &got); err != nil {
		t.Fatalf("frame is not valid json: %v", err)
	}
	if got.Type != TypeOffer || got.From != "c1" || got.UserID != "u1" || got.Nickname != "Alice" {
		t.Fatalf("header = %+v", got)
	}
	if !bytes.Equal(got.Data, data) {
		t.Fatalf("data = %s", got.Data)
	}
}

func TestEncodeRelayNilData(t *testing.T) {
	frame, err := EncodeRelay(TypeAnswer, "c1", "u1", "A", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"answer","from":"c1","userId":"u1","nickname":"A","data":null}`
	if string(frame) != want {
		t.Fatalf("frame = %s", frame)
	}
}

func TestEncodeEnvelope(t *testing.T) {
	b, err := Encode(TypeError, Error{Code: CodeBadPayload})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"error","data":{"code":"bad_payload"}}` {
		t.Fatalf("got %s", b)
	}
	b, err = Encode(TypeSuperseded, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"type":"superseded"}` {
		t.Fatalf("got %s", b)
	}
}

func TestJoinMicRequestSlot(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{`{"position":3}`, 3, true},
		{`{"micPosition":5}`, 5, true},
		{`{"position":0,"micPosition":5}`, 0, true},
		{`{}`, 0, false},
	}
	for _, tt := range tests {
		var r JoinMicRequest
		if err := json.Unmarshal([]byte(tt.in), &r); err != nil {
			t.Fatal(err)
		}
		got, ok := r.Slot()
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s: Slot() = %d, %v", tt.in, got, ok)
		}
	}
}

func TestStatusRequestsRequireFlag(t *testing.T) {
	tests := []struct {
		in   string
		want bool
		ok   bool
	}{
		{`{"isMuted":true,"isSpeaking":true}`, true, true},
		{`{"isMuted":false,"isSpeaking":false}`, false, true},
		{`{}`, false, false},
		{`{"isMuted":null,"isSpeaking":null}`, false, false},
	}
	for _, tt := range tests {
		var mute MicStatusRequest
		var speak SpeakingRequest
		if err := json.Unmarshal([]byte(tt.in), &mute); err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal([]byte(tt.in), &speak); err != nil {
			t.Fatal(err)
		}
		if got, ok := mute.Muted(); got != tt.want || ok != tt.ok {
			t.Errorf("%s: Muted() = %v, %v", tt.in, got, ok)
		}
		if got, ok := speak.Speaking(); got != tt.want || ok != tt.ok {
			t.Errorf("%s: Speaking() = %v, %v", tt.in, got, ok)
		}
	}
}

func TestIsRelayType(t *testing.T) {
	for _, typ := range []string{TypeOffer, TypeAnswer, TypeICECandidate} {
		if !IsRelayType(typ) {
			t.Errorf("%s should relay", typ)
		}
	}
	for _, typ := range []string{TypeJoinMic, TypePing, "candidate"} {
		if IsRelayType(typ) {
			t.Errorf("%s should not relay", typ)
		}
	}
}
