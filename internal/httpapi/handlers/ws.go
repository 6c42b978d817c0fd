package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/letterchat/letterchat/internal/auth"
	"github.com/letterchat/letterchat/internal/common"
	"github.com/letterchat/letterchat/internal/ws"
	"nhooyr.io/websocket"
)

// HandleWS upgrades the connection and runs the session's read loop. The
// browser WebSocket API cannot set an Authorization header, so the JWT
// arrives as a query parameter.
func (h *Handler) HandleWS(c *gin.Context) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		common.Fail(c, http.StatusUnauthorized, 40100, "missing token")
		return
	}
	uid, err := auth.ParseJWT(tokenStr, h.Cfg.JWTSecret)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40101, "invalid token")
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin is enforced by the CORS layer
	})
	if err != nil {
		return // Accept already wrote the error response
	}

	s := ws.NewSession(conn)
	h.Hub.Attach(s)
	defer h.Hub.Detach(s)

	ctx := c.Request.Context()
	go s.WritePump(ctx)
	go s.KeepAlive(ctx)

	// Sessions that never bind an identity are dropped after the grace
	// period; they are invisible to presence routing anyway.
	grace := time.AfterFunc(h.Cfg.WSSetupGrace, func() {
		s.Close(websocket.StatusPolicyViolation, "setup timeout")
	})
	defer grace.Stop()

	for {
		ev, err := s.ReadEvent(ctx)
		if err != nil {
			s.Close(websocket.StatusNormalClosure, "bye")
			return
		}
		h.dispatchWS(ctx, s, uid, ev, grace)
	}
}

func (h *Handler) dispatchWS(ctx context.Context, s *ws.Session, uid uint64, ev ws.ClientEvent, grace *time.Timer) {
	switch ev.Event {
	case ws.EvSetup:
		var p ws.SetupPayload
		if err := ev.Decode(&p); err != nil || p.UserID != uid {
			log.Printf("ws: session %s bad setup (token uid=%d)", s.ID, uid)
			return
		}
		grace.Stop()
		h.Hub.Bind(s, uid)
		s.Push(ws.ServerEvent{Event: ws.EvConnected})

	case ws.EvJoinChat:
		var p ws.ChatPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		// only members may join a conversation room
		if _, err := h.ChatSvc.GetChat(ctx, p.ChatID, uid); err != nil {
			return
		}
		h.Hub.Join(s, ws.ChatRoom(p.ChatID))
		s.Push(ws.ServerEvent{Event: ws.EvJoinedChat, Data: p})

	case ws.EvTyping:
		var p ws.TypingPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		if _, err := h.ChatSvc.GetChat(ctx, p.ChatID, uid); err != nil {
			return
		}
		h.Hub.Broadcast(ws.ChatRoom(p.ChatID), ws.ServerEvent{
			Event: ws.EvTyping,
			Data:  ws.TypingNotice{Username: p.Username},
		}, s)

	case ws.EvStopTyping:
		var p ws.ChatPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		if _, err := h.ChatSvc.GetChat(ctx, p.ChatID, uid); err != nil {
			return
		}
		h.Hub.Broadcast(ws.ChatRoom(p.ChatID), ws.ServerEvent{Event: ws.EvStopTyping}, s)

	case ws.EvReadMessages:
		var p ws.ChatPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		// persistence first; the live event is only an announcement
		if err := h.ChatSvc.MarkRead(ctx, p.ChatID, uid); err != nil {
			log.Printf("ws: mark read chat=%s user=%d: %v", p.ChatID, uid, err)
			return
		}
		h.Hub.Broadcast(ws.ChatRoom(p.ChatID), ws.ServerEvent{
			Event: ws.EvMessagesRead,
			Data:  ws.StatusPayload{ChatID: p.ChatID, UserID: uid},
		}, s)

	case ws.EvDeliverMessages:
		var p ws.ChatPayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		if err := h.ChatSvc.MarkDelivered(ctx, p.ChatID, uid); err != nil {
			log.Printf("ws: mark delivered chat=%s user=%d: %v", p.ChatID, uid, err)
			return
		}
		h.Hub.Broadcast(ws.ChatRoom(p.ChatID), ws.ServerEvent{
			Event: ws.EvMessagesDelivered,
			Data:  ws.StatusPayload{ChatID: p.ChatID, UserID: uid},
		}, s)

	case ws.EvDeleteMessage:
		// fan-out notice only; the REST delete call owns authorization and
		// the tombstone itself. Members only, so a socket cannot push forged
		// notices into chats it does not belong to.
		var p ws.DeleteMessagePayload
		if err := ev.Decode(&p); err != nil {
			return
		}
		if _, err := h.ChatSvc.GetChat(ctx, p.ChatID, uid); err != nil {
			return
		}
		h.Hub.Broadcast(ws.ChatRoom(p.ChatID), ws.ServerEvent{
			Event: ws.EvMessageDeleted,
			Data:  p,
		}, s)

	default:
		log.Printf("ws: session %s unknown event %q", s.ID, ev.Event)
	}
}
