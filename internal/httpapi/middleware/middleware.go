package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/letterchat/letterchat/internal/auth"
	"github.com/letterchat/letterchat/internal/common"
	"github.com/letterchat/letterchat/internal/models"
	"gorm.io/gorm"
)

const (
	UserIDKey    = "userID"
	RequestIDKey = "requestID"
)

// AuthRequired parses the Bearer token and stores the user id on the context.
func AuthRequired(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			common.Fail(c, http.StatusUnauthorized, 40100, "missing token")
			c.Abort()
			return
		}
		uid, err := auth.ParseJWT(strings.TrimPrefix(h, "Bearer "), jwtSecret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40101, "invalid token")
			c.Abort()
			return
		}
		c.Set(UserIDKey, uid)
		c.Next()
	}
}

// AdminRequired must run after AuthRequired. Campaigns are staff-only.
func AdminRequired(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(UserIDKey)
		if !ok {
			common.Fail(c, http.StatusUnauthorized, 40100, "missing token")
			c.Abort()
			return
		}
		var u models.User
		if err := db.First(&u, "id = ?", v.(uint64)).Error; err != nil || !u.IsAdmin {
			common.Fail(c, http.StatusForbidden, 40301, "admin only")
			c.Abort()
			return
		}
		c.Next()
	}
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic recovered: %v", r)
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}
