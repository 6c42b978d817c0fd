package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/letterchat/letterchat/internal/common"
)

type createCampaignReq struct {
	Title   string   `json:"title" binding:"required"`
	Content string   `json:"content" binding:"required"`
	Users   []uint64 `json:"users" binding:"required"`
}

// CreateCampaign queues an announcement for fan-out on the worker. The
// sender's settings can cap the content length.
func (h *Handler) CreateCampaign(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req createCampaignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "title, content and users required")
		return
	}

	lengthLimit := 0
	if s := h.settingsFor(uid); s.EnforceLengthLimit {
		lengthLimit = s.TextLengthLimit
		if lengthLimit == 0 {
			lengthLimit = 160
		}
	}

	campaign, err := h.ChatSvc.CreateCampaign(c.Request.Context(), uid, req.Title, req.Content, req.Users, lengthLimit)
	if err != nil {
		failChatErr(c, err)
		return
	}

	if err := h.Publisher.PublishCampaign(c.Request.Context(), campaign.ID); err != nil {
		log.Printf("campaign %s publish failed: %v", campaign.ID, err)
		common.Fail(c, http.StatusInternalServerError, 50003, "failed to queue campaign")
		return
	}

	common.OK(c, campaign)
}

func (h *Handler) ListCampaigns(c *gin.Context) {
	campaigns, err := h.ChatSvc.ListCampaigns(c.Request.Context())
	if err != nil {
		failChatErr(c, err)
		return
	}
	common.OK(c, campaigns)
}

func (h *Handler) GetCampaign(c *gin.Context) {
	campaign, err := h.ChatSvc.GetCampaign(c.Request.Context(), c.Param("id"))
	if err != nil {
		failChatErr(c, err)
		return
	}
	common.OK(c, campaign)
}

// CampaignInbox lists the caller's campaign messages. Fetching doubles as
// the delivery acknowledgment: newly seen messages gain a delivery receipt
// and bump their campaign's delivered counter.
func (h *Handler) CampaignInbox(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.ChatSvc.CampaignInbox(c.Request.Context(), uid, limit)
	if err != nil {
		failChatErr(c, err)
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}
