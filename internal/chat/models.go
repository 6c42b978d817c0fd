package chat

import "time"

// Chat is a conversation with a fixed member list. Direct chats have two
// members and no admin; group chats carry a display name and an admin who is
// the only user allowed to mutate membership.
type Chat struct {
	ID            string    `gorm:"primaryKey;size:26" json:"id"`
	Name          string    `gorm:"type:varchar(120)" json:"name"`
	IsGroup       bool      `gorm:"not null;default:false" json:"is_group"`
	AdminID       *uint64   `gorm:"index" json:"admin_id,omitempty"`
	LastMessageID *string   `gorm:"size:26" json:"last_message_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Members []ChatMember `json:"members,omitempty"`
}

func (Chat) TableName() string { return "chats" }

type ChatMember struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ChatID    string    `gorm:"size:26;not null;index:uniq_chat_member,unique,priority:1" json:"chat_id"`
	UserID    uint64    `gorm:"not null;index:uniq_chat_member,unique,priority:2;index" json:"user_id"`
	CreatedAt time.Time `json:"joined_at"`
}

func (ChatMember) TableName() string { return "chat_members" }

// Message is never physically removed. "Delete for me" adds a Deletion row
// for one user; "delete for everyone" tombstones the record in place so the
// id stays stable for every client.
type Message struct {
	ID         string  `gorm:"primaryKey;size:26" json:"id"`
	ChatID     *string `gorm:"size:26;index" json:"chat_id,omitempty"`
	SenderID   uint64  `gorm:"not null;index" json:"sender_id"`
	ReceiverID *uint64 `gorm:"index" json:"receiver_id,omitempty"`
	Content    string  `gorm:"type:text" json:"content"`

	FileURL  *string `gorm:"type:varchar(512)" json:"file_url,omitempty"`
	FileType *string `gorm:"type:varchar(16)" json:"file_type,omitempty"`
	FileName *string `gorm:"type:varchar(255)" json:"file_name,omitempty"`

	IsCampaign bool    `gorm:"not null;default:false" json:"is_campaign"`
	CampaignID *string `gorm:"size:26;index" json:"campaign_id,omitempty"`

	Deleted   bool      `gorm:"not null;default:false" json:"deleted"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

// Receipt records per-recipient delivery state. A row means delivered; a row
// with ReadAt set means read. Rows are only ever added, never removed, and
// the sender never gets a row for their own message.
type Receipt struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID   string     `gorm:"size:26;not null;index:uniq_receipt,unique,priority:1" json:"message_id"`
	UserID      uint64     `gorm:"not null;index:uniq_receipt,unique,priority:2;index" json:"user_id"`
	DeliveredAt time.Time  `gorm:"not null" json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

func (Receipt) TableName() string { return "message_receipts" }

// Deletion is a per-user "deleted for me" marker. Invisible to everyone else.
type Deletion struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	MessageID string    `gorm:"size:26;not null;index:uniq_deletion,unique,priority:1" json:"message_id"`
	UserID    uint64    `gorm:"not null;index:uniq_deletion,unique,priority:2" json:"user_id"`
	CreatedAt time.Time `json:"-"`
}

func (Deletion) TableName() string { return "message_deletions" }

type CampaignStatus string

const (
	CampaignQueued CampaignStatus = "queued"
	CampaignSent   CampaignStatus = "sent"
	CampaignFailed CampaignStatus = "failed"
)

// Campaign is an announcement fanned out as one message per recipient. The
// fan-out runs on the worker; DeliveredCount grows as recipients fetch their
// campaign inbox.
type Campaign struct {
	ID             string         `gorm:"primaryKey;size:26" json:"id"`
	Title          string         `gorm:"type:varchar(190);not null" json:"title"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	SenderID       uint64         `gorm:"not null;index" json:"sender_id"`
	Status         CampaignStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	RecipientCount int            `gorm:"not null;default:0" json:"recipient_count"`
	DeliveredCount int            `gorm:"not null;default:0" json:"delivered_count"`
	Error          *string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

type CampaignRecipient struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement" json:"-"`
	CampaignID string `gorm:"size:26;not null;index:uniq_campaign_rcpt,unique,priority:1" json:"campaign_id"`
	UserID     uint64 `gorm:"not null;index:uniq_campaign_rcpt,unique,priority:2" json:"user_id"`
}

func (CampaignRecipient) TableName() string { return "campaign_recipients" }

// Attachment describes an uploaded file bound to a message.
type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// MessageStatus is the sender-facing receipt summary for one message,
// computed against the chat's current membership.
type MessageStatus struct {
	MessageID  string `json:"message_id"`
	Delivered  int64  `json:"delivered"`
	Read       int64  `json:"read"`
	Recipients int64  `json:"recipients"`
}
