package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/thriveup/internal/docstore"
	"github.com/matheus3301/thriveup/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	ann = model.User{ID: "u1", Name: "Ann"}
	ben = model.User{ID: "u2", Name: "Ben"}
	cat = model.User{ID: "u3", Name: "Cat"}
)

func newTestManager(t *testing.T, users ...model.User) (*Manager, *docstore.Memory) {
	t.Helper()
	mem := docstore.NewMemory(nil)
	for _, u := range users {
		require.NoError(t, mem.Set(context.Background(), model.Users, u.ID, map[string]any{
			"uid": u.ID, "name": u.Name,
		}))
	}
	return NewManager(mem, 2, nil), mem
}

func receive(t *testing.T, ch <-chan []model.ChatMessage) []model.ChatMessage {
	t.Helper()
	select {
	case msgs, ok := <-ch:
		require.True(t, ok, "stream closed")
		return msgs
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for messages")
		return nil
	}
}

func contents(msgs []model.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestThreadIDIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "u1_u2", ThreadID("u1", "u2"))
	assert.Equal(t, ThreadID("u1", "u2"), ThreadID("u2", "u1"))
	assert.Equal(t, "abc_abd", ThreadID("abd", "abc"))
}

func TestFetchOrCreateChatThreadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m, mem := newTestManager(t, ann, ben)

	first, err := m.FetchOrCreateChatThread(ctx, ann, ben)
	require.NoError(t, err)
	assert.Equal(t, "u1_u2", first.ID)
	assert.Equal(t, []model.User{ann, ben}, first.Participants)

	created, err := mem.Get(ctx, model.Chats, "u1_u2")
	require.NoError(t, err)
	require.NotNil(t, created)
	createdAt, ok := created.Time("timestamp")
	require.True(t, ok)

	second, err := m.FetchOrCreateChatThread(ctx, ben, ann)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	docs, err := mem.Query(ctx, docstore.Collection(model.Chats))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	ts, _ := docs[0].Time("timestamp")
	assert.True(t, ts.Equal(createdAt), "existing thread must not be rewritten")
}

func TestSendMessageUpdatesSummary(t *testing.T) {
	ctx := context.Background()
	m, mem := newTestManager(t, ann, ben)
	thread, err := m.FetchOrCreateChatThread(ctx, ann, ben)
	require.NoError(t, err)

	require.NoError(t, m.SendMessage(ctx, *thread, "hi", ben.ID))

	msgs, err := mem.Query(ctx, docstore.Collection(model.MessagesPath(thread.ID)))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msgs[0].ID, msgs[0].StringOr("id", ""))
	assert.Equal(t, "u2", msgs[0].StringOr("senderId", ""))
	assert.Equal(t, "hi", msgs[0].StringOr("messageContent", ""))

	doc, err := mem.Get(ctx, model.Chats, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", doc.StringOr("lastMessage", ""))
}

func TestSendMessageToMissingThreadKeepsMessage(t *testing.T) {
	ctx := context.Background()
	m, mem := newTestManager(t, ann, ben)
	thread := model.ChatThread{ID: "u1_u2", Participants: []model.User{ann, ben}}

	// The summary update fails because the thread document is absent.
	require.NoError(t, m.SendMessage(ctx, thread, "orphan", ann.ID))

	msgs, err := mem.Query(ctx, docstore.Collection(model.MessagesPath(thread.ID)))
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestFetchMessagesStreamsFullOrderedList(t *testing.T) {
	ctx := context.Background()
	m, mem := newTestManager(t, ann, ben, cat)
	thread, err := m.FetchOrCreateChatThread(ctx, ann, ben)
	require.NoError(t, err)

	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	path := model.MessagesPath(thread.ID)
	require.NoError(t, mem.Set(ctx, path, "m2", map[string]any{"senderId": "u2", "messageContent": "second", "timestamp": base.Add(time.Minute)}))
	require.NoError(t, mem.Set(ctx, path, "m1", map[string]any{"senderId": "u1", "messageContent": "first", "timestamp": base}))
	require.NoError(t, mem.Set(ctx, path, "m3", map[string]any{"senderId": "u3", "messageContent": "intruder", "timestamp": base.Add(2 * time.Minute)}))

	stream, stop := m.FetchMessages(ctx, *thread, ann.ID)
	defer stop()

	msgs := receive(t, stream)
	assert.Equal(t, []string{"first", "second"}, contents(msgs))
	assert.True(t, msgs[0].IsSender)
	assert.False(t, msgs[1].IsSender)
	assert.Equal(t, ben, msgs[1].Sender)

	require.NoError(t, m.SendMessage(ctx, *thread, "third", ben.ID))
	msgs = receive(t, stream)
	assert.Equal(t, []string{"first", "second", "third"}, contents(msgs))
}

func TestFetchMessagesStopClosesStream(t *testing.T) {
	m, _ := newTestManager(t, ann, ben)
	stream, stop := m.FetchMessages(context.Background(), model.ChatThread{ID: "u1_u2", Participants: []model.User{ann, ben}}, ann.ID)
	receive(t, stream)
	stop()
	stop()

	select {
	case _, ok := <-stream:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream not closed")
	}
}

func TestFetchLastMessage(t *testing.T) {
	ctx := context.Background()
	m, mem := newTestManager(t, ann, ben)
	thread := model.ChatThread{ID: "u1_u2", Participants: []model.User{ann, ben}}

	last, err := m.FetchLastMessage(ctx, thread, ann.ID)
	require.NoError(t, err)
	assert.Nil(t, last)

	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	path := model.MessagesPath(thread.ID)
	require.NoError(t, mem.Set(ctx, path, "m1", map[string]any{"senderId": "u1", "messageContent": "old", "timestamp": base}))
	require.NoError(t, mem.Set(ctx, path, "m2", map[string]any{"senderId": "u9", "messageContent": "new", "timestamp": base.Add(time.Hour)}))

	last, err = m.FetchLastMessage(ctx, thread, ann.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "m2", last.ID)
	assert.Equal(t, "new", last.Content)
	assert.Equal(t, model.User{ID: "u9", Name: model.UnknownName}, last.Sender)
}

func TestFetchUsersDefaults(t *testing.T) {
	ctx := context.Background()
	m, mem := newTestManager(t, ann)
	require.NoError(t, mem.Set(ctx, model.Users, "anon", map[string]any{}))

	users := m.FetchUsers(ctx)
	require.Len(t, users, 2)
	assert.Equal(t, model.User{ID: "anon", Name: model.UnknownName}, users[0])
	assert.Equal(t, ann, users[1])
}

// recordingStore records the size of every "in" filter it serves.
type recordingStore struct {
	docstore.Store
	mu      sync.Mutex
	inSizes []int
}

func (r *recordingStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	for _, f := range q.Filters {
		if f.Op == docstore.OpIn {
			r.mu.Lock()
			r.inSizes = append(r.inSizes, len(f.Value.([]string)))
			r.mu.Unlock()
		}
	}
	return r.Store.Query(ctx, q)
}

func TestFetchParticipantsBatchesAndKeepsOrder(t *testing.T) {
	ctx := context.Background()
	_, mem := newTestManager(t, ann, ben, cat)
	rec := &recordingStore{Store: mem}
	m := NewManager(rec, 2, nil)

	users, err := m.FetchParticipants(ctx, []string{"u3", "missing", "u1", "u3", "u2"})
	require.NoError(t, err)
	assert.Equal(t, []model.User{cat, ann, ben}, users)

	require.NotEmpty(t, rec.inSizes)
	for _, n := range rec.inSizes {
		assert.LessOrEqual(t, n, 2)
	}
}

func TestFetchUsersWhoMessaged(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ann, ben, cat)

	t1, err := m.FetchOrCreateChatThread(ctx, ann, ben)
	require.NoError(t, err)
	t2, err := m.FetchOrCreateChatThread(ctx, ann, cat)
	require.NoError(t, err)
	_, err = m.FetchOrCreateChatThread(ctx, ben, cat)
	require.NoError(t, err)

	require.NoError(t, m.SendMessage(ctx, *t1, "hello", ben.ID))
	require.NoError(t, m.SendMessage(ctx, *t1, "again", ben.ID))
	require.NoError(t, m.SendMessage(ctx, *t1, "reply", ann.ID))
	require.NoError(t, m.SendMessage(ctx, *t2, "only mine", ann.ID))

	users := m.FetchUsersWhoMessaged(ctx, ann.ID)
	assert.Equal(t, []model.User{ben}, users)
}

func TestFetchChatThreadsAttachesPreview(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, ann, ben, cat)

	t1, err := m.FetchOrCreateChatThread(ctx, ann, ben)
	require.NoError(t, err)
	_, err = m.FetchOrCreateChatThread(ctx, cat, ann)
	require.NoError(t, err)
	require.NoError(t, m.SendMessage(ctx, *t1, "latest", ben.ID))

	threads := m.FetchChatThreads(ctx, ann)
	require.Len(t, threads, 2)

	// Query order is by document id.
	assert.Equal(t, "u1_u2", threads[0].ID)
	assert.Equal(t, []model.User{ann, ben}, threads[0].Participants)
	require.Len(t, threads[0].Messages, 1)
	assert.Equal(t, LastMessageID, threads[0].Messages[0].ID)
	assert.Equal(t, "latest", threads[0].Messages[0].Content)

	assert.Equal(t, "u1_u3", threads[1].ID)
	assert.Equal(t, []model.User{cat, ann}, threads[1].Participants)
	assert.Equal(t, NoMessagesYet, threads[1].Messages[0].Content)
}
