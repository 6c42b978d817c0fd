package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/letterchat/letterchat/internal/chat"
	"github.com/letterchat/letterchat/internal/common"
	"github.com/letterchat/letterchat/internal/ws"
)

// SendMessage persists a message (multipart, optional file) and fans it out:
// the chat room gets the full message (minus the sender's own session, which
// already holds an optimistic copy), and every other member's private
// channel gets a cross-chat notification.
func (h *Handler) SendMessage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	chatID := c.PostForm("chat_id")
	content := c.PostForm("content")

	var att *chat.Attachment
	if fh, err := c.FormFile("file"); err == nil {
		saved, err := h.Uploads.Save(fh)
		if err != nil {
			failUploadErr(c, err)
			return
		}
		att = &chat.Attachment{URL: saved.URL, Type: saved.Type, Name: saved.Name}
	}

	msg, err := h.ChatSvc.Send(c.Request.Context(), uid, chatID, content, att)
	if err != nil {
		failChatErr(c, err)
		return
	}

	chatRoom, err := h.ChatSvc.GetChat(c.Request.Context(), chatID, uid)
	if err != nil {
		failChatErr(c, err)
		return
	}

	sender := h.Hub.Current(uid)
	h.Hub.Broadcast(ws.ChatRoom(chatID), ws.ServerEvent{Event: ws.EvMessageReceived, Data: msg}, sender)
	for _, m := range chatRoom.Members {
		if m.UserID == uid {
			continue
		}
		// members viewing the chat already got the room event
		if h.Hub.InRoom(m.UserID, ws.ChatRoom(chatID)) {
			continue
		}
		h.Hub.NotifyUser(m.UserID, ws.ServerEvent{
			Event: ws.EvNotification,
			Data:  ws.NotificationPayload{Message: msg},
		})
	}

	common.OK(c, msg)
}

func (h *Handler) GetMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	chatID := c.Param("id")
	limit, _ := strconv.Atoi(c.Query("limit"))
	beforeID := c.Query("before_id")

	msgs, err := h.ChatSvc.History(c.Request.Context(), chatID, uid, limit, beforeID)
	if err != nil {
		failChatErr(c, err)
		return
	}

	var nextBeforeID string
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}
	common.OK(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

type chatStatusReq struct {
	ChatID string `json:"chat_id" binding:"required"`
}

// MarkRead is the durable counterpart of the read_messages socket event.
// Both paths are idempotent set-adds, so replays and races are harmless.
func (h *Handler) MarkRead(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req chatStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "chat_id required")
		return
	}

	if err := h.ChatSvc.MarkRead(c.Request.Context(), req.ChatID, uid); err != nil {
		failChatErr(c, err)
		return
	}

	h.Hub.Broadcast(ws.ChatRoom(req.ChatID), ws.ServerEvent{
		Event: ws.EvMessagesRead,
		Data:  ws.StatusPayload{ChatID: req.ChatID, UserID: uid},
	}, h.Hub.Current(uid))
	common.OK(c, gin.H{"chat_id": req.ChatID})
}

func (h *Handler) MarkDelivered(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req chatStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "chat_id required")
		return
	}

	if err := h.ChatSvc.MarkDelivered(c.Request.Context(), req.ChatID, uid); err != nil {
		failChatErr(c, err)
		return
	}

	h.Hub.Broadcast(ws.ChatRoom(req.ChatID), ws.ServerEvent{
		Event: ws.EvMessagesDelivered,
		Data:  ws.StatusPayload{ChatID: req.ChatID, UserID: uid},
	}, h.Hub.Current(uid))
	common.OK(c, gin.H{"chat_id": req.ChatID})
}

// DeleteForMe hides the message for the caller only. No broadcast: other
// participants are unaffected and unaware.
func (h *Handler) DeleteForMe(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	if err := h.ChatSvc.DeleteForMe(c.Request.Context(), c.Param("id"), uid); err != nil {
		failChatErr(c, err)
		return
	}
	common.OK(c, gin.H{"deleted": true})
}

// DeleteForEveryone tombstones the message and tells the room. A rejected
// call changes nothing and broadcasts nothing.
func (h *Handler) DeleteForEveryone(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	msg, err := h.ChatSvc.DeleteForEveryone(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		failChatErr(c, err)
		return
	}

	if msg.ChatID != nil {
		h.Hub.Broadcast(ws.ChatRoom(*msg.ChatID), ws.ServerEvent{
			Event: ws.EvMessageDeleted,
			Data:  ws.DeleteMessagePayload{MessageID: msg.ID, ChatID: *msg.ChatID},
		}, h.Hub.Current(uid))
	}
	common.OK(c, msg)
}

// MessageStatus reports delivered/read counts against current membership.
func (h *Handler) MessageStatus(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	st, err := h.ChatSvc.Status(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		failChatErr(c, err)
		return
	}
	common.OK(c, st)
}
