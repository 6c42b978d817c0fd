package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// --- chats ---

func (r *Repo) CreateChat(ctx context.Context, c *Chat, memberIDs []uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		members := make([]ChatMember, 0, len(memberIDs))
		for _, uid := range memberIDs {
			members = append(members, ChatMember{ChatID: c.ID, UserID: uid})
		}
		return tx.Create(&members).Error
	})
}

func (r *Repo) GetChat(ctx context.Context, chatID string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Preload("Members").
		First(&c, "id = ?", chatID).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindDirectChat returns the existing one-on-one chat between two users.
func (r *Repo) FindDirectChat(ctx context.Context, userA, userB uint64) (*Chat, error) {
	var c Chat
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("is_group = ?", false).
		Where("EXISTS (SELECT 1 FROM chat_members m WHERE m.chat_id = chats.id AND m.user_id = ?)", userA).
		Where("EXISTS (SELECT 1 FROM chat_members m WHERE m.chat_id = chats.id AND m.user_id = ?)", userB).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns every chat the user belongs to, most recently active first.
func (r *Repo) ListChats(ctx context.Context, userID uint64) ([]Chat, error) {
	var chats []Chat
	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("EXISTS (SELECT 1 FROM chat_members m WHERE m.chat_id = chats.id AND m.user_id = ?)", userID).
		Order("updated_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *Repo) IsMember(ctx context.Context, chatID string, userID uint64) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Count(&cnt).Error
	return cnt > 0, err
}

func (r *Repo) AddMember(ctx context.Context, chatID string, userID uint64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ChatMember{ChatID: chatID, UserID: userID}).Error
}

func (r *Repo) RemoveMember(ctx context.Context, chatID string, userID uint64) error {
	return r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Delete(&ChatMember{}).Error
}

func (r *Repo) RenameChat(ctx context.Context, chatID, name string) error {
	return r.db.WithContext(ctx).Model(&Chat{}).
		Where("id = ?", chatID).
		Update("name", name).Error
}

// --- messages ---

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		if m.ChatID == nil {
			return nil
		}
		// keeps the chat sorted to the top of the list view
		return tx.Model(&Chat{}).
			Where("id = ?", *m.ChatID).
			Updates(map[string]any{
				"last_message_id": m.ID,
				"updated_at":      m.CreatedAt,
			}).Error
	})
}

func (r *Repo) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", messageID).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns chat history in DESC id order (newest -> oldest),
// skipping messages the viewer deleted for themselves. Tombstoned messages
// are included; their content is already blanked.
func (r *Repo) ListMessages(ctx context.Context, chatID string, viewerID uint64, limit int, beforeID string) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Where("id NOT IN (SELECT d.message_id FROM message_deletions d WHERE d.user_id = ?)", viewerID).
		Order("id DESC").
		Limit(limit)

	if beforeID != "" {
		q = q.Where("id < ?", beforeID)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// chatMessageIDs lists ids of messages in the chat not authored by userID.
func (r *Repo) chatMessageIDs(ctx context.Context, chatID string, userID uint64) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("chat_id = ? AND sender_id <> ?", chatID, userID).
		Pluck("id", &ids).Error
	return ids, err
}

// MarkDelivered adds a delivery receipt for every message in the chat not
// authored by the user. Re-marking is a no-op per message; the insert is a
// set-add, never a read-modify-write.
func (r *Repo) MarkDelivered(ctx context.Context, chatID string, userID uint64) error {
	ids, err := r.chatMessageIDs(ctx, chatID, userID)
	if err != nil || len(ids) == 0 {
		return err
	}

	now := time.Now()
	receipts := make([]Receipt, 0, len(ids))
	for _, id := range ids {
		receipts = append(receipts, Receipt{MessageID: id, UserID: userID, DeliveredAt: now})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&receipts).Error
}

// MarkRead upserts read receipts for every message in the chat not authored
// by the user. A read receipt implies delivery, so DeliveredAt is written
// with it; an existing read_at is never overwritten.
func (r *Repo) MarkRead(ctx context.Context, chatID string, userID uint64) error {
	ids, err := r.chatMessageIDs(ctx, chatID, userID)
	if err != nil || len(ids) == 0 {
		return err
	}

	now := time.Now()
	receipts := make([]Receipt, 0, len(ids))
	for _, id := range ids {
		receipts = append(receipts, Receipt{MessageID: id, UserID: userID, DeliveredAt: now, ReadAt: &now})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"read_at": gorm.Expr("COALESCE(read_at, ?)", now),
			}),
		}).
		Create(&receipts).Error
}

// MarkMessagesDelivered adds delivery receipts for an explicit id list (used
// by the campaign inbox). Returns how many receipts were newly created.
func (r *Repo) MarkMessagesDelivered(ctx context.Context, messageIDs []string, userID uint64) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	now := time.Now()
	receipts := make([]Receipt, 0, len(messageIDs))
	for _, id := range messageIDs {
		receipts = append(receipts, Receipt{MessageID: id, UserID: userID, DeliveredAt: now})
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&receipts)
	return res.RowsAffected, res.Error
}

func (r *Repo) InsertDeletion(ctx context.Context, messageID string, userID uint64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Deletion{MessageID: messageID, UserID: userID}).Error
}

// TombstoneMessage blanks the content and attachment in place. The row and
// its id survive for every client.
func (r *Repo) TombstoneMessage(ctx context.Context, messageID string) error {
	return r.db.WithContext(ctx).Model(&Message{}).
		Where("id = ?", messageID).
		Updates(map[string]any{
			"deleted":   true,
			"content":   "",
			"file_url":  nil,
			"file_type": nil,
			"file_name": nil,
		}).Error
}

// ReceiptCounts computes delivered/read totals for one message against the
// chat's current members, excluding the sender. Removing a member removes
// their receipts from the count.
func (r *Repo) ReceiptCounts(ctx context.Context, m *Message) (delivered, read, recipients int64, err error) {
	if m.ChatID == nil {
		return 0, 0, 0, nil
	}
	base := r.db.WithContext(ctx).Model(&Receipt{}).
		Joins("JOIN chat_members cm ON cm.user_id = message_receipts.user_id AND cm.chat_id = ?", *m.ChatID).
		Where("message_receipts.message_id = ? AND message_receipts.user_id <> ?", m.ID, m.SenderID)

	if err = base.Session(&gorm.Session{}).Count(&delivered).Error; err != nil {
		return
	}
	if err = base.Session(&gorm.Session{}).Where("message_receipts.read_at IS NOT NULL").Count(&read).Error; err != nil {
		return
	}
	err = r.db.WithContext(ctx).Model(&ChatMember{}).
		Where("chat_id = ? AND user_id <> ?", *m.ChatID, m.SenderID).
		Count(&recipients).Error
	return
}

// IsDeletedFor reports whether the user has deleted the message for
// themselves.
func (r *Repo) IsDeletedFor(ctx context.Context, messageID string, userID uint64) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&Deletion{}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Count(&cnt).Error
	return cnt > 0, err
}

// --- campaigns ---

func (r *Repo) CreateCampaign(ctx context.Context, c *Campaign, recipientIDs []uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		rcpts := make([]CampaignRecipient, 0, len(recipientIDs))
		for _, uid := range recipientIDs {
			rcpts = append(rcpts, CampaignRecipient{CampaignID: c.ID, UserID: uid})
		}
		return tx.Create(&rcpts).Error
	})
}

func (r *Repo) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	var c Campaign
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	var cs []Campaign
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&cs).Error
	return cs, err
}

func (r *Repo) ListCampaignRecipients(ctx context.Context, campaignID string) ([]uint64, error) {
	var ids []uint64
	err := r.db.WithContext(ctx).Model(&CampaignRecipient{}).
		Where("campaign_id = ?", campaignID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *Repo) MarkCampaignSent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Campaign{}).
		Where("id = ? AND status = ?", id, CampaignQueued).
		Updates(map[string]any{"status": CampaignSent, "error": nil}).Error
}

func (r *Repo) MarkCampaignFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Campaign{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": CampaignFailed, "error": errMsg}).Error
}

func (r *Repo) AddCampaignDelivered(ctx context.Context, id string, n int64) error {
	if n == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&Campaign{}).
		Where("id = ?", id).
		Update("delivered_count", gorm.Expr("delivered_count + ?", n)).Error
}

// ListCampaignMessages returns campaign messages addressed to the user,
// newest first.
func (r *Repo) ListCampaignMessages(ctx context.Context, userID uint64, limit int) ([]Message, error) {
	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("is_campaign = ? AND receiver_id = ?", true, userID).
		Where("id NOT IN (SELECT d.message_id FROM message_deletions d WHERE d.user_id = ?)", userID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}
