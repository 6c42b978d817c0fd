package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/letterchat/letterchat/internal/common"
	"github.com/letterchat/letterchat/internal/ws"
)

type accessChatReq struct {
	UserID uint64 `json:"user_id" binding:"required"`
}

// AccessChat returns the one-on-one chat with another user, creating it on
// first contact.
func (h *Handler) AccessChat(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req accessChatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "user_id required")
		return
	}

	chatRoom, err := h.ChatSvc.AccessDirectChat(c.Request.Context(), uid, req.UserID)
	if err != nil {
		failChatErr(c, err)
		return
	}
	common.OK(c, chatRoom)
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	chats, err := h.ChatSvc.ListChats(c.Request.Context(), uid)
	if err != nil {
		failChatErr(c, err)
		return
	}
	common.OK(c, chats)
}

func (h *Handler) GetChat(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	chatRoom, err := h.ChatSvc.GetChat(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		failChatErr(c, err)
		return
	}
	common.OK(c, chatRoom)
}

type createGroupReq struct {
	Name  string   `json:"name" binding:"required"`
	Users []uint64 `json:"users" binding:"required"`
}

func (h *Handler) CreateGroupChat(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "name and users required")
		return
	}

	chatRoom, err := h.ChatSvc.CreateGroupChat(c.Request.Context(), uid, req.Name, req.Users)
	if err != nil {
		failChatErr(c, err)
		return
	}
	common.OK(c, chatRoom)
}

type renameGroupReq struct {
	ChatID string `json:"chat_id" binding:"required"`
	Name   string `json:"name" binding:"required"`
}

func (h *Handler) RenameGroupChat(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req renameGroupReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "chat_id and name required")
		return
	}

	chatRoom, err := h.ChatSvc.RenameGroup(c.Request.Context(), req.ChatID, uid, req.Name)
	if err != nil {
		failChatErr(c, err)
		return
	}
	common.OK(c, chatRoom)
}

type groupMemberReq struct {
	ChatID string `json:"chat_id" binding:"required"`
	UserID uint64 `json:"user_id" binding:"required"`
}

// AddToGroup is admin-only. The added user gets a notice on their private
// channel so their client can join the chat room.
func (h *Handler) AddToGroup(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req groupMemberReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "chat_id and user_id required")
		return
	}

	chatRoom, err := h.ChatSvc.AddToGroup(c.Request.Context(), req.ChatID, uid, req.UserID)
	if err != nil {
		failChatErr(c, err)
		return
	}

	h.Hub.NotifyUser(req.UserID, ws.ServerEvent{
		Event: ws.EvNotification,
		Data:  ws.NotificationPayload{Message: gin.H{"type": "added_to_group", "chat": chatRoom}},
	})
	common.OK(c, chatRoom)
}

// RemoveFromGroup is admin-only. The removed user's live session is evicted
// from the chat room so no further events reach it, and past delivered/read
// counts stop counting them.
func (h *Handler) RemoveFromGroup(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req groupMemberReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "chat_id and user_id required")
		return
	}

	chatRoom, err := h.ChatSvc.RemoveFromGroup(c.Request.Context(), req.ChatID, uid, req.UserID)
	if err != nil {
		failChatErr(c, err)
		return
	}

	h.Hub.EvictUser(req.UserID, ws.ChatRoom(req.ChatID))
	h.Hub.NotifyUser(req.UserID, ws.ServerEvent{
		Event: ws.EvNotification,
		Data:  ws.NotificationPayload{Message: gin.H{"type": "removed_from_group", "chat_id": req.ChatID}},
	})
	common.OK(c, chatRoom)
}
