package models

import "time"

type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(190);uniqueIndex;not null" json:"email"`
	Username     string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Name         string    `gorm:"type:varchar(120)" json:"name"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	ProfilePic   string    `gorm:"type:varchar(512)" json:"profile_pic"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

// UserSettings carries per-user preferences. The length limit applies to
// campaign content when EnforceLengthLimit is set.
type UserSettings struct {
	ID                 uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UserID             uint64    `gorm:"uniqueIndex;not null" json:"-"`
	Notifications      bool      `gorm:"not null;default:true" json:"notifications"`
	MessagePreview     bool      `gorm:"not null;default:true" json:"message_preview"`
	SoundEnabled       bool      `gorm:"not null;default:true" json:"sound_enabled"`
	TextLengthLimit    int       `gorm:"not null;default:160" json:"text_length_limit"`
	EnforceLengthLimit bool      `gorm:"not null;default:true" json:"enforce_length_limit"`
	CreatedAt          time.Time `json:"-"`
	UpdatedAt          time.Time `json:"-"`
}

func (UserSettings) TableName() string { return "user_settings" }
