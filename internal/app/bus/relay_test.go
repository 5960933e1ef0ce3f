package bus

import (
	"testing"

	"github.com/goccy/go-json"
)

type emission struct {
	username string
	frame    string
}

type recordingBroadcaster struct {
	user   []emission
	global []string
}

func (b *recordingBroadcaster) EmitToUser(username string, frame []byte) {
	b.user = append(b.user, emission{username: username, frame: string(frame)})
}

func (b *recordingBroadcaster) EmitToAll(frame []byte) {
	b.global = append(b.global, string(frame))
}

func encodeEnvelope(t *testing.T, env Envelope) []byte {
	t.Helper()

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

func TestHandleDeliversRemoteEnvelopes(t *testing.T) {
	local := &recordingBroadcaster{}
	r := NewRelay(nil, local)

	frame := `{"type":"receive_message","payload":{"_id":"m1"}}`
	r.handle(encodeEnvelope(t, Envelope{Origin: "other", Scope: ScopeUser, Username: "bob", Frame: json.RawMessage(frame)}))
	r.handle(encodeEnvelope(t, Envelope{Origin: "other", Scope: ScopeGlobal, Frame: json.RawMessage(`{"type":"user_status"}`)}))

	if len(local.user) != 1 || local.user[0].username != "bob" {
		t.Fatalf("user emissions = %+v", local.user)
	}

	var got, want any
	if err := json.Unmarshal([]byte(local.user[0].frame), &got); err != nil {
		t.Fatalf("relayed frame is not JSON: %v", err)
	}
	_ = json.Unmarshal([]byte(frame), &want)
	gotJSON, _ := json.Marshal(got)
	wantJSON, _ := json.Marshal(want)
	if string(gotJSON) != string(wantJSON) {
		t.Fatalf("relayed frame = %s, want %s", gotJSON, wantJSON)
	}

	if len(local.global) != 1 {
		t.Fatalf("global emissions = %+v", local.global)
	}
}

func TestHandleSkipsOwnAndInvalidEnvelopes(t *testing.T) {
	local := &recordingBroadcaster{}
	r := NewRelay(nil, local)

	r.handle(encodeEnvelope(t, Envelope{Origin: r.origin, Scope: ScopeGlobal, Frame: json.RawMessage(`{}`)}))
	r.handle(encodeEnvelope(t, Envelope{Origin: "other", Scope: ScopeUser, Frame: json.RawMessage(`{}`)}))
	r.handle(encodeEnvelope(t, Envelope{Origin: "other", Scope: "room", Frame: json.RawMessage(`{}`)}))
	r.handle([]byte("not json"))

	if len(local.user) != 0 || len(local.global) != 0 {
		t.Fatalf("unexpected deliveries: user=%+v global=%+v", local.user, local.global)
	}
}
