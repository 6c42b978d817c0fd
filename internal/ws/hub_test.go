package ws

import (
	"context"
	"testing"
	"time"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func recvEvent(t *testing.T, s *Session) ServerEvent {
	t.Helper()
	select {
	case ev := <-s.send:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("session %s received no event", s.ID)
	}
	return ServerEvent{}
}

func TestHub_LastConnectedWins(t *testing.T) {
	h := startHub(t)

	first := NewSession(nil)
	second := NewSession(nil)
	h.Attach(first)
	h.Attach(second)
	h.Bind(first, 7)
	h.Bind(second, 7)

	if got := h.Current(7); got != second {
		t.Fatalf("expected the newer session to own the presence entry")
	}

	// user-room events follow the newer session
	h.NotifyUser(7, ServerEvent{Event: "marker"})
	if ev := recvEvent(t, second); ev.Event != "marker" {
		t.Fatalf("unexpected event %q", ev.Event)
	}
	select {
	case ev := <-first.send:
		t.Fatalf("superseded session still receives user events: %q", ev.Event)
	default:
	}

	// a stale disconnect of the superseded socket must not clobber presence
	h.Detach(first)
	if got := h.Current(7); got != second {
		t.Fatalf("stale detach removed the live presence entry")
	}
	if !h.Online(7) {
		t.Fatalf("user should still be online")
	}

	h.Detach(second)
	if h.Online(7) {
		t.Fatalf("user should be offline after the live session detached")
	}
}

func TestHub_RoomBroadcastAndExclusion(t *testing.T) {
	h := startHub(t)

	a := NewSession(nil)
	b := NewSession(nil)
	h.Attach(a)
	h.Attach(b)
	h.Bind(a, 1)
	h.Bind(b, 2)

	room := ChatRoom("01HXCHAT00000000000000000A")
	h.Join(a, room)
	h.Join(b, room)

	// broadcasting to a room nobody joined is a silent no-op
	h.Broadcast(ChatRoom("nope"), ServerEvent{Event: "lost"}, nil)

	// the excluded sender gets nothing, everyone else gets the event
	h.Broadcast(room, ServerEvent{Event: "message received"}, a)
	if ev := recvEvent(t, b); ev.Event != "message received" {
		t.Fatalf("unexpected event %q", ev.Event)
	}

	// per-room ordering is preserved for one receiver
	h.Broadcast(room, ServerEvent{Event: "one"}, nil)
	h.Broadcast(room, ServerEvent{Event: "two"}, nil)
	if ev := recvEvent(t, a); ev.Event != "one" {
		t.Fatalf("expected one, got %q", ev.Event)
	}
	if ev := recvEvent(t, a); ev.Event != "two" {
		t.Fatalf("expected two, got %q", ev.Event)
	}
	recvEvent(t, b)
	recvEvent(t, b)
	select {
	case ev := <-a.send:
		t.Fatalf("excluded session received %q", ev.Event)
	default:
	}

	// leaving stops delivery
	h.Leave(b, room)
	h.Broadcast(room, ServerEvent{Event: "after leave"}, nil)
	if ev := recvEvent(t, a); ev.Event != "after leave" {
		t.Fatalf("unexpected event %q", ev.Event)
	}
	select {
	case ev := <-b.send:
		t.Fatalf("departed session received %q", ev.Event)
	default:
	}
}

func TestHub_InRoom(t *testing.T) {
	h := startHub(t)

	s := NewSession(nil)
	h.Attach(s)
	h.Bind(s, 1)

	room := ChatRoom("01HXCHAT00000000000000000C")
	if h.InRoom(1, room) {
		t.Fatalf("not joined yet")
	}
	h.Join(s, room)
	if !h.InRoom(1, room) {
		t.Fatalf("expected membership after join")
	}
	if h.InRoom(2, room) {
		t.Fatalf("offline user reported in room")
	}
	h.Leave(s, room)
	if h.InRoom(1, room) {
		t.Fatalf("still reported in room after leave")
	}
}

func TestHub_EvictUser(t *testing.T) {
	h := startHub(t)

	a := NewSession(nil)
	b := NewSession(nil)
	h.Attach(a)
	h.Attach(b)
	h.Bind(a, 1)
	h.Bind(b, 2)

	room := ChatRoom("01HXCHAT00000000000000000B")
	h.Join(a, room)
	h.Join(b, room)

	h.EvictUser(2, room)
	// evicting an offline user is harmless
	h.EvictUser(99, room)

	h.Broadcast(room, ServerEvent{Event: "post eviction"}, nil)
	if ev := recvEvent(t, a); ev.Event != "post eviction" {
		t.Fatalf("unexpected event %q", ev.Event)
	}
	select {
	case ev := <-b.send:
		t.Fatalf("evicted session received %q", ev.Event)
	default:
	}

	// the evicted user keeps their private channel
	h.NotifyUser(2, ServerEvent{Event: "still here"})
	if ev := recvEvent(t, b); ev.Event != "still here" {
		t.Fatalf("unexpected event %q", ev.Event)
	}
}

func TestHub_ShutdownClosesSessions(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	s := NewSession(nil)
	h.Attach(s)
	h.Bind(s, 1)

	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session not closed on shutdown")
	}

	// post-shutdown calls return instead of blocking forever
	h.Broadcast(UserRoom(1), ServerEvent{Event: "late"}, nil)
	if h.Current(1) != nil {
		t.Fatalf("presence lookup after shutdown should be empty")
	}
	h.Detach(s)
}
