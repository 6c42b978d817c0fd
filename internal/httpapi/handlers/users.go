package handlers

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/letterchat/letterchat/internal/auth"
	"github.com/letterchat/letterchat/internal/common"
	"github.com/letterchat/letterchat/internal/email"
	"github.com/letterchat/letterchat/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// generate a 11 digit random username
func randomUsername11() (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, 11)
	for i := 0; i < 11; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		out[i] = letters[n.Int64()]
	}
	return string(out), nil
}

func randomCaptcha6() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	code := n.Int64()
	return string([]byte{
		byte('0' + code/100000%10),
		byte('0' + code/10000%10),
		byte('0' + code/1000%10),
		byte('0' + code/100%10),
		byte('0' + code/10%10),
		byte('0' + code%10),
	}), nil
}

type sendCaptchaReq struct {
	Email string `json:"email"`
}

func (h *Handler) SendCaptcha(c *gin.Context) {
	var req sendCaptchaReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "email required")
		return
	}

	code, err := randomCaptcha6()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "failed to generate code")
		return
	}
	if err := h.Redis.SetCaptcha(c.Request.Context(), req.Email, code); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}

	go func(to, code string) {
		subject := "Your LetterChat verification code"
		body := "Your verification code is: " + code + "\n\nIt expires in 10 minutes.\n"
		_ = email.SendText(h.SMTPSetting, to, subject, body)
	}(req.Email, code)

	common.OK(c, gin.H{"sent": true})
}

type createUserReq struct {
	Email    string `json:"email"`
	Captcha  string `json:"captcha"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Email == "" || req.Password == "" || req.Captcha == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email, captcha and password required")
		return
	}

	// redis verification
	code, err := h.Redis.GetCaptcha(c.Request.Context(), req.Email)
	if err != nil {
		if err == redis.Nil {
			common.Fail(c, http.StatusBadRequest, 10020, "captcha expired or not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}
	if code != req.Captcha {
		common.Fail(c, http.StatusBadRequest, 10021, "invalid captcha")
		return
	}
	_ = h.Redis.DeleteCaptcha(c.Request.Context(), req.Email)

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	// generate username to avoid conflict
	var username string
	for i := 0; i < 5; i++ {
		u, err := randomUsername11()
		if err != nil {
			common.Fail(c, http.StatusInternalServerError, 20004, "failed to generate username")
			return
		}

		var cnt int64
		if err := h.DB.Model(&models.User{}).Where("username = ?", u).Count(&cnt).Error; err != nil {
			common.Fail(c, http.StatusInternalServerError, 20005, "failed to check username")
			return
		}
		if cnt == 0 {
			username = u
			break
		}
	}
	if username == "" {
		common.Fail(c, http.StatusInternalServerError, 20006, "failed to allocate username")
		return
	}

	user := models.User{
		Email:        req.Email,
		Username:     username,
		Name:         req.Name,
		PasswordHash: hash,
	}
	if err := h.DB.Create(&user).Error; err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "failed to create user (maybe email already exists)")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	// send welcome email
	go func(to, uname string) {
		subject := "Welcome to LetterChat - Your account is ready"
		body := "Hello,\n\n" +
			"Welcome to LetterChat. Your account has been successfully created.\n\n" +
			"Username: " + uname + "\n\n" +
			"If you did not request this account, please contact our support immediately.\n\n" +
			"Best regards,\n" +
			"LetterChat\n"
		_ = email.SendText(h.SMTPSetting, to, subject, body)
	}(user.Email, user.Username)

	common.OK(c, gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
		"token":    token,
	})
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "email and password required")
		return
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid email or password")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid email or password")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
		"name":     user.Name,
		"is_admin": user.IsAdmin,
		"token":    token,
	})
}

func (h *Handler) Me(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var user models.User
	if err := h.DB.First(&user, uid).Error; err != nil {
		common.Fail(c, http.StatusNotFound, 40401, "user not found")
		return
	}
	common.OK(c, user)
}

// SearchUsers finds contacts by name, email or username. Results carry a
// live online flag from the presence registry.
func (h *Handler) SearchUsers(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	search := c.Query("search")
	q := h.DB.Model(&models.User{}).Where("id <> ?", uid).Limit(20)
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("name LIKE ? OR email LIKE ? OR username LIKE ?", like, like, like)
	}

	var users []models.User
	if err := q.Find(&users).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{
			"id":          u.ID,
			"name":        u.Name,
			"email":       u.Email,
			"username":    u.Username,
			"profile_pic": u.ProfilePic,
			"online":      h.Hub.Online(u.ID),
		})
	}
	common.OK(c, out)
}

type updatePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) UpdatePassword(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req updatePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil || req.OldPassword == "" || req.NewPassword == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "old and new password required")
		return
	}

	var user models.User
	if err := h.DB.First(&user, uid).Error; err != nil {
		common.Fail(c, http.StatusNotFound, 40401, "user not found")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.OldPassword) {
		common.Fail(c, http.StatusUnauthorized, 40103, "wrong password")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}
	if err := h.DB.Model(&user).Update("password_hash", hash).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"updated": true})
}

type updateProfileReq struct {
	Name string `json:"name"`
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req updateProfileReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		common.Fail(c, http.StatusBadRequest, 10001, "name required")
		return
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", uid).Update("name", req.Name).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"updated": true})
}

// UpdateProfilePicture stores the uploaded image and saves its public URL.
func (h *Handler) UpdateProfilePicture(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	fh, err := c.FormFile("profile_pic")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "profile_pic file required")
		return
	}
	saved, err := h.Uploads.Save(fh)
	if err != nil {
		failUploadErr(c, err)
		return
	}
	if saved.Type != "image" {
		common.Fail(c, http.StatusBadRequest, 10030, "profile picture must be an image")
		return
	}
	if err := h.DB.Model(&models.User{}).Where("id = ?", uid).Update("profile_pic", saved.URL).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, gin.H{"profile_pic": saved.URL})
}

func (h *Handler) GetSettings(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	common.OK(c, h.settingsFor(uid))
}

type updateSettingsReq struct {
	Notifications      *bool `json:"notifications"`
	MessagePreview     *bool `json:"message_preview"`
	SoundEnabled       *bool `json:"sound_enabled"`
	TextLengthLimit    *int  `json:"text_length_limit"`
	EnforceLengthLimit *bool `json:"enforce_length_limit"`
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req updateSettingsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	s := h.settingsFor(uid)
	if req.Notifications != nil {
		s.Notifications = *req.Notifications
	}
	if req.MessagePreview != nil {
		s.MessagePreview = *req.MessagePreview
	}
	if req.SoundEnabled != nil {
		s.SoundEnabled = *req.SoundEnabled
	}
	if req.TextLengthLimit != nil && *req.TextLengthLimit >= 0 && *req.TextLengthLimit <= 1000 {
		s.TextLengthLimit = *req.TextLengthLimit
	}
	if req.EnforceLengthLimit != nil {
		s.EnforceLengthLimit = *req.EnforceLengthLimit
	}

	if err := h.DB.Save(s).Error; err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	common.OK(c, s)
}

// settingsFor loads the user's settings, falling back to defaults for users
// who never saved any.
func (h *Handler) settingsFor(uid uint64) *models.UserSettings {
	var s models.UserSettings
	err := h.DB.Where("user_id = ?", uid).First(&s).Error
	if err == gorm.ErrRecordNotFound {
		return &models.UserSettings{
			UserID:             uid,
			Notifications:      true,
			MessagePreview:     true,
			SoundEnabled:       true,
			TextLengthLimit:    160,
			EnforceLengthLimit: true,
		}
	}
	if err != nil {
		return &models.UserSettings{UserID: uid, Notifications: true, TextLengthLimit: 160, EnforceLengthLimit: true}
	}
	return &s
}
