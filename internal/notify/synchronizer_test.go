package notify

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/thriveup/internal/bus"
	"github.com/matheus3301/thriveup/internal/chat"
	"github.com/matheus3301/thriveup/internal/docstore"
	"github.com/matheus3301/thriveup/internal/model"
	"github.com/matheus3301/thriveup/internal/status"
	"github.com/matheus3301/thriveup/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

var (
	ann = model.User{ID: "u1", Name: "Ann", ProfileImageURL: "https://img.example/ann.png"}
	ben = model.User{ID: "u2", Name: "Ben", ProfileImageURL: "gs://bucket/ben.png"}
	cat = model.User{ID: "u3", Name: "Cat", ProfileImageURL: "http://img.example/cat.png"}
)

type memHandled struct {
	mu        sync.Mutex
	ids       []string
	dismissed []string
}

func (m *memHandled) HandledNotificationIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.ids), nil
}

func (m *memHandled) SaveHandledNotificationIDs(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = slices.Clone(ids)
	return nil
}

func (m *memHandled) DismissedNotificationIDs() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.dismissed), nil
}

func (m *memHandled) SaveDismissedNotificationIDs(ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dismissed = slices.Clone(ids)
	return nil
}

func (m *memHandled) contains(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.ids, id)
}

type fixture struct {
	bus     *bus.Bus
	mem     *docstore.Memory
	chats   *chat.Manager
	handled *memHandled
	sync    *Synchronizer
}

func newFixture(t *testing.T, users ...model.User) *fixture {
	t.Helper()
	b := bus.New()
	mem := docstore.NewMemory(b)
	for _, u := range users {
		seedUser(t, mem, u)
	}
	chats := chat.NewManager(mem, 0, nil)
	handled := &memHandled{}
	s := NewSynchronizer(mem, chats, handled, b, nil)
	t.Cleanup(s.Stop)
	return &fixture{bus: b, mem: mem, chats: chats, handled: handled, sync: s}
}

func seedUser(t *testing.T, mem *docstore.Memory, u model.User) {
	t.Helper()
	data := map[string]any{"uid": u.ID, "name": u.Name}
	if u.ProfileImageURL != "" {
		data["profileImageURL"] = u.ProfileImageURL
	}
	require.NoError(t, mem.Set(context.Background(), model.Users, u.ID, data))
}

func message(id, senderID string) docstore.Document {
	return docstore.Document{ID: id, Data: map[string]any{
		"id":             id,
		"senderId":       senderID,
		"messageContent": "hello",
		"timestamp":      time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}}
}

func notificationIDs(items []model.NotificationItem) []string {
	out := make([]string, len(items))
	for i, n := range items {
		out[i] = n.ID
	}
	return out
}

func latestMessageID(t *testing.T, mem *docstore.Memory, threadID string) string {
	t.Helper()
	docs, err := mem.Query(context.Background(), docstore.Collection(model.MessagesPath(threadID)).Order("timestamp", true).Take(1))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	return docs[0].ID
}

func TestMessageNotifyOpenNoResurrection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann, ben)
	events, unsub := f.bus.Subscribe("notification.", 16)
	defer unsub()

	require.NoError(t, f.sync.Start(ctx, ann.ID))
	assert.Equal(t, status.Listening, f.sync.State())

	thread, err := f.chats.FetchOrCreateChatThread(ctx, ann, ben)
	require.NoError(t, err)
	require.Equal(t, "u1_u2", thread.ID)
	require.NoError(t, f.chats.SendMessage(ctx, *thread, "hi", ben.ID))
	msgID := latestMessageID(t, f.mem, thread.ID)

	require.Eventually(t, func() bool { return len(f.sync.Notifications()) == 1 }, waitFor, tick)
	item := f.sync.Notifications()[0]
	assert.Equal(t, msgID, item.ID)
	assert.Equal(t, ben.ID, item.SenderID)
	assert.Equal(t, ann.ID, item.RecipientID)
	assert.Equal(t, "Ben", item.Name)
	assert.True(t, f.handled.contains(msgID))

	mirrored, err := f.mem.Get(ctx, model.Notifications, msgID)
	require.NoError(t, err)
	require.NotNil(t, mirrored)
	assert.Equal(t, ann.ID, mirrored.StringOr("recipientId", ""))

	evt := <-events
	assert.Equal(t, bus.KindNotificationCreated, evt.Kind)

	opened, dismissed, err := f.sync.OpenChat(ctx, ben.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1_u2", opened.ID)
	assert.Equal(t, 1, dismissed)
	assert.Empty(t, f.sync.Notifications())

	mirrored, err = f.mem.Get(ctx, model.Notifications, msgID)
	require.NoError(t, err)
	assert.Nil(t, mirrored)

	evt = <-events
	assert.Equal(t, bus.KindNotificationDismissed, evt.Kind)
	assert.Equal(t, Dismissal{ThreadID: "u1_u2", SenderID: ben.ID, IDs: []string{msgID}}, evt.Payload)

	// Re-delivery of the same message id.
	f.sync.handleMessage(ctx, thread.ID, message(msgID, ben.ID))
	assert.Empty(t, f.sync.Notifications())
}

func TestSameMessageTwiceNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann, ben)
	f.sync.userID = ann.ID

	f.sync.handleMessage(ctx, "u1_u2", message("m1", ben.ID))
	f.sync.handleMessage(ctx, "u1_u2", message("m1", ben.ID))

	assert.Equal(t, []string{"m1"}, notificationIDs(f.sync.Notifications()))
	docs, err := f.mem.Query(ctx, docstore.Collection(model.Notifications))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestConcurrentDeliveriesNotifyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann, ben)
	f.sync.userID = ann.ID

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.sync.handleMessage(ctx, "u1_u2", message("m1", ben.ID))
		}()
	}
	wg.Wait()
	assert.Len(t, f.sync.Notifications(), 1)
}

func TestOwnMessagesAreIgnored(t *testing.T) {
	f := newFixture(t, ann, ben)
	f.sync.userID = ann.ID

	f.sync.handleMessage(context.Background(), "u1_u2", message("m1", ann.ID))
	assert.Empty(t, f.sync.Notifications())
	assert.False(t, f.handled.contains("m1"))
}

func TestInvalidImageSchemeIsDroppedForGood(t *testing.T) {
	ctx := context.Background()
	ftp := model.User{ID: "u4", Name: "Dan", ProfileImageURL: "ftp://files.example/dan.png"}
	bare := model.User{ID: "u5", Name: "Eve"}
	f := newFixture(t, ann, ftp, bare)
	f.sync.userID = ann.ID

	f.sync.handleMessage(ctx, "u1_u4", message("m1", ftp.ID))
	f.sync.handleMessage(ctx, "u1_u5", message("m2", bare.ID))

	assert.Empty(t, f.sync.Notifications())
	assert.True(t, f.handled.contains("m1"))
	assert.True(t, f.handled.contains("m2"))
	docs, err := f.mem.Query(ctx, docstore.Collection(model.Notifications))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestUnknownSenderIsNotHandled(t *testing.T) {
	f := newFixture(t, ann)
	f.sync.userID = ann.ID

	f.sync.handleMessage(context.Background(), "u1_u9", message("m1", "u9"))
	assert.Empty(t, f.sync.Notifications())
	assert.False(t, f.handled.contains("m1"))
}

func TestDismissRemovesOnlyThatSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann, ben, cat)
	f.sync.userID = ann.ID

	f.sync.handleMessage(ctx, "u1_u2", message("m1", ben.ID))
	f.sync.handleMessage(ctx, "u1_u3", message("m2", cat.ID))
	f.sync.handleMessage(ctx, "u1_u2", message("m3", ben.ID))
	require.Len(t, f.sync.Notifications(), 3)

	n := f.sync.Dismiss(ctx, model.ChatThread{ID: "u1_u2", Participants: []model.User{ann, ben}})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"m2"}, notificationIDs(f.sync.Notifications()))

	left, err := f.mem.Query(ctx, docstore.Collection(model.Notifications))
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "m2", left[0].ID)

	assert.Zero(t, f.sync.Dismiss(ctx, model.ChatThread{ID: "u1_u2", Participants: []model.User{ann, ben}}))
}

func TestOpenChatUnknownSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann)

	_, _, err := f.sync.OpenChat(ctx, "u2")
	assert.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, f.sync.Start(ctx, ann.ID))
	_, _, err = f.sync.OpenChat(ctx, "u9")
	assert.ErrorIs(t, err, ErrUnknownSender)
}

func TestStartWithoutUserStaysIdle(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sync.Start(context.Background(), ""))
	assert.Equal(t, status.Idle, f.sync.State())
	assert.Zero(t, f.bus.Subscribers())
}

func TestStartTwiceFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann)
	require.NoError(t, f.sync.Start(ctx, ann.ID))
	assert.ErrorIs(t, f.sync.Start(ctx, ann.ID), status.ErrInvalidTransition)
}

func TestStopTearsDownListeners(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann, ben, cat)
	require.NoError(t, f.sync.Start(ctx, ann.ID))
	_, err := f.chats.FetchOrCreateChatThread(ctx, ann, ben)
	require.NoError(t, err)
	_, err = f.chats.FetchOrCreateChatThread(ctx, ann, cat)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		f.sync.mu.Lock()
		defer f.sync.mu.Unlock()
		return len(f.sync.listeners) == 2
	}, waitFor, tick)

	f.sync.Stop()
	assert.Equal(t, status.Stopped, f.sync.State())
	assert.Zero(t, f.bus.Subscribers())

	// A second Stop is a no-op.
	f.sync.Stop()
}

func TestRemovedThreadLosesItsListener(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann, ben)
	require.NoError(t, f.sync.Start(ctx, ann.ID))
	thread, err := f.chats.FetchOrCreateChatThread(ctx, ann, ben)
	require.NoError(t, err)

	listeners := func() int {
		f.sync.mu.Lock()
		defer f.sync.mu.Unlock()
		return len(f.sync.listeners)
	}
	require.Eventually(t, func() bool { return listeners() == 1 }, waitFor, tick)

	require.NoError(t, f.mem.Delete(ctx, model.Chats, thread.ID))
	require.Eventually(t, func() bool { return listeners() == 0 }, waitFor, tick)
}

func TestStartRestoresMirroredNotifications(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann, ben)
	ts := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	kept := model.NotificationItem{ID: "m1", RecipientID: ann.ID, SenderID: ben.ID, Name: "Ben", ProfileImageURL: ben.ProfileImageURL, Timestamp: ts}
	require.NoError(t, f.mem.Set(ctx, model.Notifications, "m1", kept.Doc()))
	other := model.NotificationItem{ID: "m9", RecipientID: "u7", SenderID: ben.ID, Name: "Ben", Timestamp: ts}
	require.NoError(t, f.mem.Set(ctx, model.Notifications, "m9", other.Doc()))

	require.NoError(t, f.sync.Start(ctx, ann.ID))
	assert.Equal(t, []model.NotificationItem{kept}, f.sync.Notifications())

	f.sync.handleMessage(ctx, "u1_u2", message("m1", ben.ID))
	assert.Len(t, f.sync.Notifications(), 1)
}

func TestHandledIDsSurviveRestart(t *testing.T) {
	ctx := context.Background()
	b := bus.New()
	mem := docstore.NewMemory(b)
	seedUser(t, mem, ann)
	seedUser(t, mem, ben)
	chats := chat.NewManager(mem, 0, nil)

	db, err := store.OpenMigrated(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	first := NewSynchronizer(mem, chats, db, b, nil)
	require.NoError(t, first.Start(ctx, ann.ID))
	thread, err := chats.FetchOrCreateChatThread(ctx, ann, ben)
	require.NoError(t, err)
	require.NoError(t, chats.SendMessage(ctx, *thread, "hi", ben.ID))
	require.Eventually(t, func() bool { return len(first.Notifications()) == 1 }, waitFor, tick)
	_, _, err = first.OpenChat(ctx, ben.ID)
	require.NoError(t, err)
	first.Stop()

	second := NewSynchronizer(mem, chats, db, b, nil)
	t.Cleanup(second.Stop)
	require.NoError(t, second.Start(ctx, ann.ID))
	require.NoError(t, chats.SendMessage(ctx, *thread, "still there?", ben.ID))
	next := latestMessageID(t, mem, thread.ID)

	require.Eventually(t, func() bool {
		return slices.Equal(notificationIDs(second.Notifications()), []string{next})
	}, waitFor, tick)
}

// flakyDeletes is a memory store whose deletes fail while broken is set.
type flakyDeletes struct {
	*docstore.Memory
	broken atomic.Bool
}

func (f *flakyDeletes) Delete(ctx context.Context, collection, id string) error {
	if f.broken.Load() {
		return errors.New("delete unavailable")
	}
	return f.Memory.Delete(ctx, collection, id)
}

func TestDismissedStaysDismissedWhenRemoteDeleteFails(t *testing.T) {
	ctx := context.Background()
	b := bus.New()
	mem := docstore.NewMemory(b)
	seedUser(t, mem, ann)
	seedUser(t, mem, ben)
	chats := chat.NewManager(mem, 0, nil)
	remote := &flakyDeletes{Memory: mem}
	remote.broken.Store(true)

	db, err := store.OpenMigrated(filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	first := NewSynchronizer(remote, chats, db, b, nil)
	require.NoError(t, first.Start(ctx, ann.ID))
	thread, err := chats.FetchOrCreateChatThread(ctx, ann, ben)
	require.NoError(t, err)
	require.NoError(t, chats.SendMessage(ctx, *thread, "hi", ben.ID))
	msgID := latestMessageID(t, mem, thread.ID)
	require.Eventually(t, func() bool { return len(first.Notifications()) == 1 }, waitFor, tick)

	_, dismissed, err := first.OpenChat(ctx, ben.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, dismissed)
	assert.Empty(t, first.Notifications())
	first.Stop()

	mirrored, err := mem.Get(ctx, model.Notifications, msgID)
	require.NoError(t, err)
	require.NotNil(t, mirrored, "remote delete should have failed")
	pending, err := db.DismissedNotificationIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{msgID}, pending)

	second := NewSynchronizer(remote, chats, db, b, nil)
	require.NoError(t, second.Start(ctx, ann.ID))
	assert.Empty(t, second.Notifications())
	second.Stop()

	// Once deletes work again the next start purges the mirrored document.
	remote.broken.Store(false)
	third := NewSynchronizer(remote, chats, db, b, nil)
	t.Cleanup(third.Stop)
	require.NoError(t, third.Start(ctx, ann.ID))
	assert.Empty(t, third.Notifications())

	mirrored, err = mem.Get(ctx, model.Notifications, msgID)
	require.NoError(t, err)
	assert.Nil(t, mirrored)
	pending, err = db.DismissedNotificationIDs()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestConcurrentStartRestoresOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, ann, ben)
	item := model.NotificationItem{ID: "m1", RecipientID: ann.ID, SenderID: ben.ID, Name: "Ben",
		ProfileImageURL: ben.ProfileImageURL, Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, f.mem.Set(ctx, model.Notifications, item.ID, item.Doc()))

	var (
		wg sync.WaitGroup
		ok atomic.Int32
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.sync.Start(ctx, ann.ID) == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, []string{"m1"}, notificationIDs(f.sync.Notifications()))
}

func TestValidImageURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://img.example/a.png", true},
		{"http://img.example/a.png", true},
		{"gs://bucket/a.png", true},
		{"HTTPS://img.example/a.png", true},
		{"ftp://img.example/a.png", false},
		{"file:///etc/passwd", false},
		{"img.example/a.png", false},
		{"", false},
		{"://broken", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidImageURL(tt.url), tt.url)
	}
}
