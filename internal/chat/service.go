package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Service owns the message lifecycle: creation, delivery/read marking,
// per-user and global deletion, and campaign fan-out. It never pushes live
// events itself; callers broadcast after a successful mutation so a rejected
// operation can never partially apply.
type Service struct {
	repo *Repo
}

func NewService(repo *Repo) *Service {
	return &Service{repo: repo}
}

const defaultHistoryLimit = 50

// --- chats ---

// AccessDirectChat finds the one-on-one chat between two users, creating it
// on first contact.
func (s *Service) AccessDirectChat(ctx context.Context, userID, otherID uint64) (*Chat, error) {
	if otherID == 0 || otherID == userID {
		return nil, fmt.Errorf("%w: invalid peer", ErrValidation)
	}

	c, err := s.repo.FindDirectChat(ctx, userID, otherID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}
	c = &Chat{ID: id, IsGroup: false}
	if err := s.repo.CreateChat(ctx, c, []uint64{userID, otherID}); err != nil {
		return nil, err
	}
	return s.repo.GetChat(ctx, id)
}

func (s *Service) CreateGroupChat(ctx context.Context, adminID uint64, name string, memberIDs []uint64) (*Chat, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: group name required", ErrValidation)
	}
	if len(memberIDs) < 2 {
		return nil, fmt.Errorf("%w: a group needs at least 2 other members", ErrValidation)
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}
	c := &Chat{ID: id, Name: name, IsGroup: true, AdminID: &adminID}
	members := append([]uint64{adminID}, memberIDs...)
	if err := s.repo.CreateChat(ctx, c, members); err != nil {
		return nil, err
	}
	return s.repo.GetChat(ctx, id)
}

// GetChat returns the chat only to its members; everyone else sees not-found.
func (s *Service) GetChat(ctx context.Context, chatID string, userID uint64) (*Chat, error) {
	c, err := s.repo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	for _, m := range c.Members {
		if m.UserID == userID {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Service) ListChats(ctx context.Context, userID uint64) ([]Chat, error) {
	return s.repo.ListChats(ctx, userID)
}

func (s *Service) RenameGroup(ctx context.Context, chatID string, actorID uint64, name string) (*Chat, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: chat name required", ErrValidation)
	}
	if _, err := s.requireGroupAdmin(ctx, chatID, actorID); err != nil {
		return nil, err
	}
	if err := s.repo.RenameChat(ctx, chatID, name); err != nil {
		return nil, err
	}
	return s.repo.GetChat(ctx, chatID)
}

// AddToGroup and RemoveFromGroup are admin-only. Removal also shrinks the
// denominator of delivered/read counts for past messages; that is the
// documented behavior, not a bug.
func (s *Service) AddToGroup(ctx context.Context, chatID string, actorID, userID uint64) (*Chat, error) {
	if _, err := s.requireGroupAdmin(ctx, chatID, actorID); err != nil {
		return nil, err
	}
	if err := s.repo.AddMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.repo.GetChat(ctx, chatID)
}

func (s *Service) RemoveFromGroup(ctx context.Context, chatID string, actorID, userID uint64) (*Chat, error) {
	c, err := s.requireGroupAdmin(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}
	if c.AdminID != nil && *c.AdminID == userID {
		return nil, fmt.Errorf("%w: admin cannot be removed", ErrValidation)
	}
	if err := s.repo.RemoveMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.repo.GetChat(ctx, chatID)
}

func (s *Service) requireGroupAdmin(ctx context.Context, chatID string, actorID uint64) (*Chat, error) {
	c, err := s.repo.GetChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !c.IsGroup || c.AdminID == nil || *c.AdminID != actorID {
		return nil, fmt.Errorf("%w: only the group admin can do this", ErrForbidden)
	}
	return c, nil
}

// --- message lifecycle ---

// Send validates and persists a message. A message needs content or an
// attachment, and a chat the sender belongs to.
func (s *Service) Send(ctx context.Context, senderID uint64, chatID, content string, att *Attachment) (*Message, error) {
	if content == "" && att == nil {
		return nil, fmt.Errorf("%w: content or attachment required", ErrValidation)
	}
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id required", ErrValidation)
	}

	if _, err := s.GetChat(ctx, chatID, senderID); err != nil {
		return nil, err
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}
	m := &Message{
		ID:        id,
		ChatID:    &chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if att != nil {
		m.FileURL, m.FileType, m.FileName = &att.URL, &att.Type, &att.Name
	}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) History(ctx context.Context, chatID string, userID uint64, limit int, beforeID string) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}
	if _, err := s.GetChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, chatID, userID, limit, beforeID)
}

// MarkDelivered records that every message in the chat has reached userID.
// Idempotent; safe to call on reconnect, on socket event and on the REST
// path alike.
func (s *Service) MarkDelivered(ctx context.Context, chatID string, userID uint64) error {
	if _, err := s.GetChat(ctx, chatID, userID); err != nil {
		return err
	}
	return s.repo.MarkDelivered(ctx, chatID, userID)
}

// MarkRead records read receipts. Read implies delivered: the receipt row
// carries both timestamps even if no delivered mark ever arrived.
func (s *Service) MarkRead(ctx context.Context, chatID string, userID uint64) error {
	if _, err := s.GetChat(ctx, chatID, userID); err != nil {
		return err
	}
	return s.repo.MarkRead(ctx, chatID, userID)
}

// DeleteForMe hides the message from one user's view. Nobody else is
// affected or notified.
func (s *Service) DeleteForMe(ctx context.Context, messageID string, userID uint64) error {
	m, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return err
	}
	return s.repo.InsertDeletion(ctx, m.ID, userID)
}

// DeleteForEveryone tombstones a message. Only the sender, or the admin of a
// group chat, may do it; a rejected call leaves the message untouched.
func (s *Service) DeleteForEveryone(ctx context.Context, messageID string, actorID uint64) (*Message, error) {
	m, err := s.visibleMessage(ctx, messageID, actorID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != actorID {
		if m.ChatID == nil {
			return nil, fmt.Errorf("%w: only the sender can delete this message", ErrForbidden)
		}
		c, err := s.repo.GetChat(ctx, *m.ChatID)
		if err != nil {
			return nil, err
		}
		if !c.IsGroup || c.AdminID == nil || *c.AdminID != actorID {
			return nil, fmt.Errorf("%w: only the sender or the group admin can delete for everyone", ErrForbidden)
		}
	}
	if err := s.repo.TombstoneMessage(ctx, m.ID); err != nil {
		return nil, err
	}
	return s.repo.GetMessage(ctx, m.ID)
}

// Status reports delivered/read counts for the sender's UI, intersected with
// the chat's current membership.
func (s *Service) Status(ctx context.Context, messageID string, userID uint64) (*MessageStatus, error) {
	m, err := s.visibleMessage(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	delivered, read, recipients, err := s.repo.ReceiptCounts(ctx, m)
	if err != nil {
		return nil, err
	}
	return &MessageStatus{MessageID: m.ID, Delivered: delivered, Read: read, Recipients: recipients}, nil
}

// visibleMessage loads a message the user is allowed to act on: a member of
// its chat, or its sender/receiver for campaign messages.
func (s *Service) visibleMessage(ctx context.Context, messageID string, userID uint64) (*Message, error) {
	m, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if m.SenderID == userID {
		return m, nil
	}
	if m.ReceiverID != nil && *m.ReceiverID == userID {
		return m, nil
	}
	if m.ChatID != nil {
		member, err := s.repo.IsMember(ctx, *m.ChatID, userID)
		if err != nil {
			return nil, err
		}
		if member {
			return m, nil
		}
	}
	return nil, ErrNotFound
}

// --- campaigns ---

// CreateCampaign validates and queues a campaign. The actual per-recipient
// fan-out happens on the worker; lengthLimit comes from the sender's
// settings (0 disables the check).
func (s *Service) CreateCampaign(ctx context.Context, senderID uint64, title, content string, recipientIDs []uint64, lengthLimit int) (*Campaign, error) {
	if title == "" || content == "" || len(recipientIDs) == 0 {
		return nil, fmt.Errorf("%w: title, content and at least one recipient required", ErrValidation)
	}
	if lengthLimit > 0 && len(content) > lengthLimit {
		return nil, fmt.Errorf("%w: content exceeds the %d character limit", ErrValidation, lengthLimit)
	}

	id, err := NewID()
	if err != nil {
		return nil, err
	}
	c := &Campaign{
		ID:             id,
		Title:          title,
		Content:        content,
		SenderID:       senderID,
		Status:         CampaignQueued,
		RecipientCount: len(recipientIDs),
	}
	if err := s.repo.CreateCampaign(ctx, c, recipientIDs); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	c, err := s.repo.GetCampaign(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (s *Service) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	return s.repo.ListCampaigns(ctx)
}

// ProcessCampaign runs on the worker: one campaign message per recipient.
// Recipients see it on their next campaign-inbox fetch; there is no live
// push from the worker process.
func (s *Service) ProcessCampaign(ctx context.Context, campaignID string) error {
	c, err := s.repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}
	recipients, err := s.repo.ListCampaignRecipients(ctx, campaignID)
	if err != nil {
		return err
	}

	for _, uid := range recipients {
		id, err := NewID()
		if err != nil {
			return err
		}
		uid := uid
		m := &Message{
			ID:         id,
			SenderID:   c.SenderID,
			ReceiverID: &uid,
			Content:    c.Content,
			IsCampaign: true,
			CampaignID: &c.ID,
			CreatedAt:  time.Now(),
		}
		if err := s.repo.InsertMessage(ctx, m); err != nil {
			return err
		}
	}
	return s.repo.MarkCampaignSent(ctx, campaignID)
}

// CampaignInbox returns the user's campaign messages and marks the newly
// seen ones delivered, bumping each campaign's delivered counter by the
// receipts actually created.
func (s *Service) CampaignInbox(ctx context.Context, userID uint64, limit int) ([]Message, error) {
	if limit <= 0 || limit > 200 {
		limit = defaultHistoryLimit
	}
	msgs, err := s.repo.ListCampaignMessages(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	byCampaign := map[string][]string{}
	for _, m := range msgs {
		if m.CampaignID != nil {
			byCampaign[*m.CampaignID] = append(byCampaign[*m.CampaignID], m.ID)
		}
	}
	for cid, ids := range byCampaign {
		n, err := s.repo.MarkMessagesDelivered(ctx, ids, userID)
		if err != nil {
			return nil, err
		}
		if err := s.repo.AddCampaignDelivered(ctx, cid, n); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}
