package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Chat{}, &ChatMember{}, &Message{}, &Receipt{}, &Deletion{}, &Campaign{}, &CampaignRecipient{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(NewRepo(openTestDB(t)))
}

func mustGroup(t *testing.T, svc *Service, admin uint64, members []uint64) *Chat {
	t.Helper()
	c, err := svc.CreateGroupChat(context.Background(), admin, "test group", members)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return c
}

func mustSend(t *testing.T, svc *Service, sender uint64, chatID, content string) *Message {
	t.Helper()
	m, err := svc.Send(context.Background(), sender, chatID, content, nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return m
}

func TestAccessDirectChat_CreatesOnceAndReuses(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	c1, err := svc.AccessDirectChat(ctx, 1, 2)
	if err != nil {
		t.Fatalf("first access: %v", err)
	}
	if c1.IsGroup {
		t.Fatalf("direct chat flagged as group")
	}
	if len(c1.Members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(c1.Members))
	}

	// the peer opening the same conversation must land in the same chat
	c2, err := svc.AccessDirectChat(ctx, 2, 1)
	if err != nil {
		t.Fatalf("second access: %v", err)
	}
	if c2.ID != c1.ID {
		t.Fatalf("expected same chat, got %s and %s", c1.ID, c2.ID)
	}

	if _, err := svc.AccessDirectChat(ctx, 1, 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("self chat: expected validation error, got %v", err)
	}
}

func TestSend_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := mustGroup(t, svc, 1, []uint64{2, 3})

	if _, err := svc.Send(ctx, 1, c.ID, "", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty message: expected validation error, got %v", err)
	}
	if _, err := svc.Send(ctx, 1, "", "hi", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing chat: expected validation error, got %v", err)
	}
	// non-members see the chat as not-found, not forbidden
	if _, err := svc.Send(ctx, 9, c.ID, "hi", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("outsider send: expected not found, got %v", err)
	}

	// attachment-only messages are valid
	att := &Attachment{URL: "/uploads/x.png", Type: "image", Name: "x.png"}
	m, err := svc.Send(ctx, 1, c.ID, "", att)
	if err != nil {
		t.Fatalf("attachment-only send: %v", err)
	}
	if m.FileURL == nil || *m.FileURL != att.URL {
		t.Fatalf("attachment not persisted: %+v", m)
	}
}

func TestMarkRead_ImpliesDeliveredAndIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := mustGroup(t, svc, 1, []uint64{2, 3})
	m := mustSend(t, svc, 1, c.ID, "hello")

	// read arrives before any delivered mark
	if err := svc.MarkRead(ctx, c.ID, 2); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	st, err := svc.Status(ctx, m.ID, 1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Delivered != 1 || st.Read != 1 || st.Recipients != 2 {
		t.Fatalf("after read: got delivered=%d read=%d recipients=%d", st.Delivered, st.Read, st.Recipients)
	}

	var before Receipt
	if err := svc.repo.db.First(&before, "message_id = ? AND user_id = ?", m.ID, uint64(2)).Error; err != nil {
		t.Fatalf("load receipt: %v", err)
	}
	if before.ReadAt == nil {
		t.Fatalf("read receipt missing read_at")
	}

	// a late delivered mark and a repeated read mark change nothing
	if err := svc.MarkDelivered(ctx, c.ID, 2); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if err := svc.MarkRead(ctx, c.ID, 2); err != nil {
		t.Fatalf("re-mark read: %v", err)
	}

	var after Receipt
	if err := svc.repo.db.First(&after, "message_id = ? AND user_id = ?", m.ID, uint64(2)).Error; err != nil {
		t.Fatalf("reload receipt: %v", err)
	}
	if after.ReadAt == nil || !after.ReadAt.Equal(*before.ReadAt) {
		t.Fatalf("read_at changed on replay: %v -> %v", before.ReadAt, after.ReadAt)
	}

	st, err = svc.Status(ctx, m.ID, 1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Delivered != 1 || st.Read != 1 {
		t.Fatalf("after replay: got delivered=%d read=%d", st.Delivered, st.Read)
	}

	// the sender never gets a receipt for their own message
	if err := svc.MarkRead(ctx, c.ID, 1); err != nil {
		t.Fatalf("sender mark read: %v", err)
	}
	var own int64
	svc.repo.db.Model(&Receipt{}).Where("message_id = ? AND user_id = ?", m.ID, uint64(1)).Count(&own)
	if own != 0 {
		t.Fatalf("sender has %d receipt(s) for own message", own)
	}
}

func TestStatus_CountsAgainstCurrentMembership(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := mustGroup(t, svc, 1, []uint64{2, 3})
	m := mustSend(t, svc, 1, c.ID, "hello")

	if err := svc.MarkRead(ctx, c.ID, 2); err != nil {
		t.Fatalf("mark read 2: %v", err)
	}
	if err := svc.MarkRead(ctx, c.ID, 3); err != nil {
		t.Fatalf("mark read 3: %v", err)
	}

	st, err := svc.Status(ctx, m.ID, 1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Delivered != 2 || st.Read != 2 || st.Recipients != 2 {
		t.Fatalf("got delivered=%d read=%d recipients=%d", st.Delivered, st.Read, st.Recipients)
	}

	// removing a member shrinks every count, past receipts included
	if _, err := svc.RemoveFromGroup(ctx, c.ID, 1, 3); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	st, err = svc.Status(ctx, m.ID, 1)
	if err != nil {
		t.Fatalf("status after removal: %v", err)
	}
	if st.Delivered != 1 || st.Read != 1 || st.Recipients != 1 {
		t.Fatalf("after removal: got delivered=%d read=%d recipients=%d", st.Delivered, st.Read, st.Recipients)
	}
}

func TestDeleteForMe_HidesOnlyForDeleter(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := mustGroup(t, svc, 1, []uint64{2, 3})
	m := mustSend(t, svc, 1, c.ID, "secret")
	mustSend(t, svc, 1, c.ID, "second")

	if err := svc.DeleteForMe(ctx, m.ID, 2); err != nil {
		t.Fatalf("delete for me: %v", err)
	}
	// idempotent
	if err := svc.DeleteForMe(ctx, m.ID, 2); err != nil {
		t.Fatalf("repeat delete for me: %v", err)
	}

	forDeleter, err := svc.History(ctx, c.ID, 2, 0, "")
	if err != nil {
		t.Fatalf("history for deleter: %v", err)
	}
	for _, got := range forDeleter {
		if got.ID == m.ID {
			t.Fatalf("deleted message still visible to deleter")
		}
	}

	forOther, err := svc.History(ctx, c.ID, 3, 0, "")
	if err != nil {
		t.Fatalf("history for other: %v", err)
	}
	found := false
	for _, got := range forOther {
		if got.ID == m.ID && got.Content == "secret" {
			found = true
		}
	}
	if !found {
		t.Fatalf("message hidden from an unaffected member")
	}
}

func TestDeleteForEveryone_AuthorizationAndTombstone(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := mustGroup(t, svc, 1, []uint64{2, 3})
	m := mustSend(t, svc, 2, c.ID, "oops")

	// a plain member is rejected and nothing changes
	if _, err := svc.DeleteForEveryone(ctx, m.ID, 3); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	got, err := svc.repo.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Deleted || got.Content != "oops" {
		t.Fatalf("rejected delete mutated the message: %+v", got)
	}

	// the sender may tombstone; id survives, content is gone
	tomb, err := svc.DeleteForEveryone(ctx, m.ID, 2)
	if err != nil {
		t.Fatalf("sender delete: %v", err)
	}
	if !tomb.Deleted || tomb.Content != "" || tomb.ID != m.ID {
		t.Fatalf("bad tombstone: %+v", tomb)
	}

	// tombstoned messages stay in history
	hist, err := svc.History(ctx, c.ID, 3, 0, "")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	found := false
	for _, h := range hist {
		if h.ID == m.ID && h.Deleted {
			found = true
		}
	}
	if !found {
		t.Fatalf("tombstone missing from history")
	}

	// the group admin may delete someone else's message
	m2 := mustSend(t, svc, 3, c.ID, "spam")
	if _, err := svc.DeleteForEveryone(ctx, m2.ID, 1); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestHistory_PaginatesNewestFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := mustGroup(t, svc, 1, []uint64{2, 3})

	var ids []string
	for i := 0; i < 5; i++ {
		m := mustSend(t, svc, 1, c.ID, fmt.Sprintf("msg %d", i))
		ids = append(ids, m.ID)
	}

	page, err := svc.History(ctx, c.ID, 2, 2, "")
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[4] || page[1].ID != ids[3] {
		t.Fatalf("unexpected first page: %+v", page)
	}

	page, err = svc.History(ctx, c.ID, 2, 2, page[1].ID)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[1] {
		t.Fatalf("unexpected second page: %+v", page)
	}
}

func TestGroupAdministration(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	c := mustGroup(t, svc, 1, []uint64{2, 3})

	if _, err := svc.RenameGroup(ctx, c.ID, 2, "new name"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin rename: expected forbidden, got %v", err)
	}
	renamed, err := svc.RenameGroup(ctx, c.ID, 1, "new name")
	if err != nil {
		t.Fatalf("admin rename: %v", err)
	}
	if renamed.Name != "new name" {
		t.Fatalf("rename not applied: %q", renamed.Name)
	}

	if _, err := svc.AddToGroup(ctx, c.ID, 2, 4); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-admin add: expected forbidden, got %v", err)
	}
	added, err := svc.AddToGroup(ctx, c.ID, 1, 4)
	if err != nil {
		t.Fatalf("admin add: %v", err)
	}
	if len(added.Members) != 4 {
		t.Fatalf("expected 4 members, got %d", len(added.Members))
	}

	if _, err := svc.RemoveFromGroup(ctx, c.ID, 1, 1); !errors.Is(err, ErrValidation) {
		t.Fatalf("removing the admin: expected validation error, got %v", err)
	}
}

func TestCampaign_FanOutAndInbox(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateCampaign(ctx, 1, "t", "way too long", nil, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("no recipients: expected validation error, got %v", err)
	}
	if _, err := svc.CreateCampaign(ctx, 1, "t", "way too long", []uint64{2}, 5); !errors.Is(err, ErrValidation) {
		t.Fatalf("over length limit: expected validation error, got %v", err)
	}

	camp, err := svc.CreateCampaign(ctx, 1, "launch", "we are live", []uint64{2, 3}, 0)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if camp.Status != CampaignQueued || camp.RecipientCount != 2 {
		t.Fatalf("bad campaign: %+v", camp)
	}

	if err := svc.ProcessCampaign(ctx, camp.ID); err != nil {
		t.Fatalf("process campaign: %v", err)
	}
	camp, err = svc.GetCampaign(ctx, camp.ID)
	if err != nil {
		t.Fatalf("reload campaign: %v", err)
	}
	if camp.Status != CampaignSent {
		t.Fatalf("expected sent, got %s", camp.Status)
	}

	// the first inbox fetch acknowledges delivery
	inbox, err := svc.CampaignInbox(ctx, 2, 0)
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(inbox) != 1 || inbox[0].Content != "we are live" || !inbox[0].IsCampaign {
		t.Fatalf("unexpected inbox: %+v", inbox)
	}
	camp, _ = svc.GetCampaign(ctx, camp.ID)
	if camp.DeliveredCount != 1 {
		t.Fatalf("expected delivered_count=1, got %d", camp.DeliveredCount)
	}

	// refetching must not double count
	if _, err := svc.CampaignInbox(ctx, 2, 0); err != nil {
		t.Fatalf("second inbox fetch: %v", err)
	}
	camp, _ = svc.GetCampaign(ctx, camp.ID)
	if camp.DeliveredCount != 1 {
		t.Fatalf("delivery double counted: %d", camp.DeliveredCount)
	}

	// campaign messages never leak into a third user's inbox
	other, err := svc.CampaignInbox(ctx, 9, 0)
	if err != nil {
		t.Fatalf("outsider inbox: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("outsider received %d campaign message(s)", len(other))
	}
}
