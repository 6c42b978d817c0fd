package ws

import (
	"context"
	"log"

	"nhooyr.io/websocket"
)

// Hub is the presence registry and room router. A single run loop owns every
// table, so registration, membership and broadcasts are serialized without
// locks; the only concurrency in the system is persistence I/O, which never
// touches these maps.
type Hub struct {
	attach      chan *Session
	detach      chan *Session
	bind        chan bindReq
	join        chan roomReq
	leave       chan roomReq
	evict       chan evictReq
	broadcasts  chan broadcastReq
	lookups     chan lookupReq
	roomLookups chan roomLookupReq

	done chan struct{}

	sessions map[*Session]struct{}
	presence map[uint64]*Session // last-connected-wins, one session per user
	rooms    map[string]map[*Session]struct{}
}

type bindReq struct {
	s      *Session
	userID uint64
}

type roomReq struct {
	s    *Session
	room string
}

type broadcastReq struct {
	room    string
	ev      ServerEvent
	exclude *Session
}

type evictReq struct {
	userID uint64
	room   string
}

type lookupReq struct {
	userID uint64
	reply  chan *Session
}

type roomLookupReq struct {
	userID uint64
	room   string
	reply  chan bool
}

func NewHub() *Hub {
	return &Hub{
		attach:      make(chan *Session),
		detach:      make(chan *Session),
		bind:        make(chan bindReq),
		join:        make(chan roomReq),
		leave:       make(chan roomReq),
		evict:       make(chan evictReq),
		broadcasts:  make(chan broadcastReq, 64),
		lookups:     make(chan lookupReq),
		roomLookups: make(chan roomLookupReq),
		done:        make(chan struct{}),
		sessions:    map[*Session]struct{}{},
		presence:    map[uint64]*Session{},
		rooms:       map[string]map[*Session]struct{}{},
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for s := range h.sessions {
				s.Close(websocket.StatusGoingAway, "server shutting down")
			}
			return

		case s := <-h.attach:
			h.sessions[s] = struct{}{}

		case s := <-h.detach:
			h.dropSession(s)

		case req := <-h.bind:
			h.bindSession(req.s, req.userID)

		case req := <-h.join:
			h.joinRoom(req.s, req.room)

		case req := <-h.leave:
			h.leaveRoom(req.s, req.room)

		case req := <-h.evict:
			if s := h.presence[req.userID]; s != nil {
				h.leaveRoom(s, req.room)
			}

		case req := <-h.broadcasts:
			h.dispatch(req)

		case req := <-h.lookups:
			req.reply <- h.presence[req.userID]

		case req := <-h.roomLookups:
			s := h.presence[req.userID]
			if s == nil {
				req.reply <- false
				break
			}
			_, in := h.rooms[req.room][s]
			req.reply <- in
		}
	}
}

// bindSession installs the presence mapping and joins the user's private
// notification room. A newer session silently supersedes the old mapping;
// the superseded socket is not kicked, it just stops receiving user-room
// events.
func (h *Hub) bindSession(s *Session, userID uint64) {
	if _, ok := h.sessions[s]; !ok {
		return
	}
	if prev := h.presence[userID]; prev != nil && prev != s {
		h.leaveRoom(prev, UserRoom(userID))
	}
	s.userID = userID
	h.presence[userID] = s
	h.joinRoom(s, UserRoom(userID))
}

// dropSession removes the session everywhere. The presence entry is removed
// only if it still points at this session, so a stale disconnect cannot
// clobber a newer registration.
func (h *Hub) dropSession(s *Session) {
	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	for room := range s.rooms {
		h.leaveRoom(s, room)
	}
	if s.userID != 0 && h.presence[s.userID] == s {
		delete(h.presence, s.userID)
	}
}

func (h *Hub) joinRoom(s *Session, room string) {
	if _, ok := h.sessions[s]; !ok || room == "" {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = map[*Session]struct{}{}
		h.rooms[room] = members
	}
	members[s] = struct{}{}
	s.rooms[room] = struct{}{}
}

func (h *Hub) leaveRoom(s *Session, room string) {
	delete(s.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// dispatch fans an event out to a room. An empty room is a silent no-op, and
// events for a single room go out in the order broadcasts were requested.
func (h *Hub) dispatch(req broadcastReq) {
	for s := range h.rooms[req.room] {
		if s == req.exclude {
			continue
		}
		s.Push(req.ev)
	}
}

// --- public API (safe from any goroutine) ---

func (h *Hub) Attach(s *Session) {
	select {
	case h.attach <- s:
	case <-h.done:
	}
}

func (h *Hub) Detach(s *Session) {
	select {
	case h.detach <- s:
	case <-h.done:
	}
}

// Bind registers the session as userID's current session.
func (h *Hub) Bind(s *Session, userID uint64) {
	select {
	case h.bind <- bindReq{s: s, userID: userID}:
	case <-h.done:
	}
}

func (h *Hub) Join(s *Session, room string) {
	select {
	case h.join <- roomReq{s: s, room: room}:
	case <-h.done:
	}
}

func (h *Hub) Leave(s *Session, room string) {
	select {
	case h.leave <- roomReq{s: s, room: room}:
	case <-h.done:
	}
}

// Broadcast sends ev to every member of the room except exclude (may be nil).
func (h *Hub) Broadcast(room string, ev ServerEvent, exclude *Session) {
	select {
	case h.broadcasts <- broadcastReq{room: room, ev: ev, exclude: exclude}:
	case <-h.done:
		log.Printf("ws: broadcast to %s dropped, hub stopped", room)
	}
}

// NotifyUser pushes to the user's private room; offline users simply miss it
// and reconcile from history on the next connect.
func (h *Hub) NotifyUser(userID uint64, ev ServerEvent) {
	h.Broadcast(UserRoom(userID), ev, nil)
}

// EvictUser removes the user's current session from a room, used when a
// member is removed from a group while connected.
func (h *Hub) EvictUser(userID uint64, room string) {
	select {
	case h.evict <- evictReq{userID: userID, room: room}:
	case <-h.done:
	}
}

// Current returns the user's registered session, or nil when offline. The
// pointer is only useful as a broadcast-exclusion identity; its routing
// state belongs to the hub loop.
func (h *Hub) Current(userID uint64) *Session {
	reply := make(chan *Session, 1)
	select {
	case h.lookups <- lookupReq{userID: userID, reply: reply}:
		return <-reply
	case <-h.done:
		return nil
	}
}

// Online reports whether the user has a currently registered session.
func (h *Hub) Online(userID uint64) bool {
	return h.Current(userID) != nil
}

// InRoom reports whether the user's current session has joined the room.
// Used to decide between an in-room event and a private notification.
func (h *Hub) InRoom(userID uint64, room string) bool {
	reply := make(chan bool, 1)
	select {
	case h.roomLookups <- roomLookupReq{userID: userID, room: room, reply: reply}:
		return <-reply
	case <-h.done:
		return false
	}
}
