package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/letterchat/letterchat/internal/common"
	"github.com/letterchat/letterchat/internal/config"
	"github.com/letterchat/letterchat/internal/httpapi/handlers"
	"github.com/letterchat/letterchat/internal/httpapi/middleware"
	"github.com/letterchat/letterchat/internal/store/redisstore"
	"github.com/letterchat/letterchat/internal/upload"
	"github.com/letterchat/letterchat/internal/ws"
	"gorm.io/gorm"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, hub *ws.Hub, uploads *upload.Store, pub handlers.CampaignPublisher) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.MaxMultipartMemory = cfg.MaxUploadSize
	r.Use(gin.Logger())
	// r.Use(gin.Recovery())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:   []string{"X-Request-ID"},
		MaxAge:          12 * time.Hour,
	}))

	h := handlers.NewHandler(db, cfg, rds, hub, uploads, pub)

	r.GET("/ping", h.Ping)
	r.Static("/uploads", cfg.UploadDir)

	// captcha
	r.POST("/captcha", h.SendCaptcha)

	// CRUD users register
	r.POST("/users", h.CreateUser)

	// auth
	r.POST("/login", h.Login)

	// websocket, token travels as a query param
	r.GET("/ws", h.HandleWS)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	authGroup.GET("/me", h.Me)
	authGroup.GET("/users", h.SearchUsers)
	authGroup.PUT("/users/password", h.UpdatePassword)
	authGroup.PUT("/users/profile", h.UpdateProfile)
	authGroup.PUT("/users/profile-picture", h.UpdateProfilePicture)
	authGroup.GET("/users/settings", h.GetSettings)
	authGroup.PUT("/users/settings", h.UpdateSettings)

	// chats (JWT required)
	authGroup.POST("/chats", h.AccessChat)
	authGroup.GET("/chats", h.ListChats)
	authGroup.GET("/chats/:id", h.GetChat)
	authGroup.POST("/chats/group", h.CreateGroupChat)
	authGroup.PUT("/chats/group/rename", h.RenameGroupChat)
	authGroup.PUT("/chats/group/add", h.AddToGroup)
	authGroup.PUT("/chats/group/remove", h.RemoveFromGroup)

	// messages, every route keeps the same :id wildcard name
	authGroup.POST("/messages", h.SendMessage)
	authGroup.GET("/messages/:id", h.GetMessages)
	authGroup.PUT("/messages/read", h.MarkRead)
	authGroup.PUT("/messages/delivered", h.MarkDelivered)
	authGroup.DELETE("/messages/:id/me", h.DeleteForMe)
	authGroup.DELETE("/messages/:id", h.DeleteForEveryone)
	authGroup.GET("/messages/:id/status", h.MessageStatus)

	// campaigns; the inbox lives outside /campaigns so the :id wildcard
	// stays unambiguous
	authGroup.GET("/inbox/campaigns", h.CampaignInbox)
	adminGroup := authGroup.Group("/campaigns")
	adminGroup.Use(middleware.AdminRequired(db))
	adminGroup.POST("", h.CreateCampaign)
	adminGroup.GET("", h.ListCampaigns)
	adminGroup.GET("/:id", h.GetCampaign)

	return r
}
