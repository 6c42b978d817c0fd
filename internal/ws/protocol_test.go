package ws

import (
	"encoding/json"
	"testing"
)

func TestClientEventDecode(t *testing.T) {
	var ev ClientEvent
	raw := `{"event":"typing","data":{"chat_id":"01HXCHAT00000000000000000A","username":"alice"}}`
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Event != EvTyping {
		t.Fatalf("unexpected event %q", ev.Event)
	}

	var p TypingPayload
	if err := ev.Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ChatID != "01HXCHAT00000000000000000A" || p.Username != "alice" {
		t.Fatalf("unexpected payload: %+v", p)
	}

	// events without a payload are rejected at the boundary
	bare := ClientEvent{Event: EvJoinChat}
	if err := bare.Decode(&ChatPayload{}); err == nil {
		t.Fatalf("expected error for missing payload")
	}
}

func TestRoomNames(t *testing.T) {
	if got := ChatRoom("abc"); got != "chat:abc" {
		t.Fatalf("chat room: %q", got)
	}
	if got := UserRoom(42); got != "user:42" {
		t.Fatalf("user room: %q", got)
	}
	if ChatRoom("42") == UserRoom(42) {
		t.Fatalf("room namespaces collide")
	}
}
