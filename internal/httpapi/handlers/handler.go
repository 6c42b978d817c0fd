package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/letterchat/letterchat/internal/chat"
	"github.com/letterchat/letterchat/internal/common"
	"github.com/letterchat/letterchat/internal/config"
	"github.com/letterchat/letterchat/internal/email"
	"github.com/letterchat/letterchat/internal/httpapi/middleware"
	"github.com/letterchat/letterchat/internal/store/redisstore"
	"github.com/letterchat/letterchat/internal/upload"
	"github.com/letterchat/letterchat/internal/ws"
	"gorm.io/gorm"
)

// CampaignPublisher queues a campaign for fan-out on the worker.
type CampaignPublisher interface {
	PublishCampaign(ctx context.Context, campaignID string) error
}

type Handler struct {
	DB          *gorm.DB
	Cfg         config.Config
	Redis       *redisstore.Store
	SMTPSetting email.SMTPConfig
	ChatSvc     *chat.Service
	Hub         *ws.Hub
	Uploads     *upload.Store
	Publisher   CampaignPublisher
}

func NewHandler(db *gorm.DB, cfg config.Config, rds *redisstore.Store, hub *ws.Hub, uploads *upload.Store, pub CampaignPublisher) *Handler {
	return &Handler{
		DB:    db,
		Cfg:   cfg,
		Redis: rds,
		SMTPSetting: email.SMTPConfig{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		},
		ChatSvc:   chat.NewService(chat.NewRepo(db)),
		Hub:       hub,
		Uploads:   uploads,
		Publisher: pub,
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "LetterChat API is running"})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
