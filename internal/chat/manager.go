// Package chat reads and writes chat threads and their messages in the
// remote document store.
package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/matheus3301/thriveup/internal/batch"
	"github.com/matheus3301/thriveup/internal/docstore"
	"github.com/matheus3301/thriveup/internal/metrics"
	"github.com/matheus3301/thriveup/internal/model"
	"go.uber.org/zap"
)

// NoMessagesYet is the preview of a thread that never had a message.
const NoMessagesYet = "No messages yet."

// LastMessageID is the id of the synthetic preview message attached to
// threads by FetchChatThreads.
const LastMessageID = "lastMessage"

// Manager is the chat data-access layer.
type Manager struct {
	store     docstore.Store
	batchSize int
	logger    *zap.Logger
}

// NewManager creates a chat manager. batchSize bounds "in" lookups; a
// non-positive value uses batch.DefaultSize.
func NewManager(store docstore.Store, batchSize int, logger *zap.Logger) *Manager {
	if batchSize <= 0 {
		batchSize = batch.DefaultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, batchSize: batchSize, logger: logger}
}

// ThreadID returns the id of the thread between two users. It does not
// depend on argument order.
func ThreadID(a, b string) string {
	ids := []string{a, b}
	slices.Sort(ids)
	return strings.Join(ids, "_")
}

// FetchUsers returns every user. Store errors are logged and yield an empty list.
func (m *Manager) FetchUsers(ctx context.Context) []model.User {
	docs, err := m.store.Query(ctx, docstore.Collection(model.Users))
	if err != nil {
		m.logger.Error("failed to fetch users", zap.Error(err))
		return nil
	}
	users := make([]model.User, 0, len(docs))
	for _, d := range docs {
		users = append(users, model.UserFromDoc(d))
	}
	return users
}

// FetchOrCreateChatThread returns the thread between a and b, creating the
// thread document when it does not exist yet.
func (m *Manager) FetchOrCreateChatThread(ctx context.Context, a, b model.User) (*model.ChatThread, error) {
	id := ThreadID(a.ID, b.ID)
	doc, err := m.store.Get(ctx, model.Chats, id)
	if err != nil {
		return nil, fmt.Errorf("get thread %s: %w", id, err)
	}
	if doc == nil {
		if err := m.store.Set(ctx, model.Chats, id, map[string]any{
			"participants": []string{a.ID, b.ID},
			"timestamp":    docstore.ServerTimestamp,
		}); err != nil {
			return nil, fmt.Errorf("create thread %s: %w", id, err)
		}
		m.logger.Info("chat thread created", zap.String("thread_id", id))
	}
	return &model.ChatThread{ID: id, Participants: []model.User{a, b}}, nil
}

// SendMessage appends a message to the thread, then refreshes the thread's
// lastMessage summary. The summary write is independent: its failure is
// logged and leaves the summary stale.
func (m *Manager) SendMessage(ctx context.Context, thread model.ChatThread, content, senderID string) error {
	path := model.MessagesPath(thread.ID)
	id := m.store.NewID(path)
	if err := m.store.Set(ctx, path, id, map[string]any{
		"id":             id,
		"senderId":       senderID,
		"messageContent": content,
		"timestamp":      docstore.ServerTimestamp,
	}); err != nil {
		metrics.IncMessageSent(metrics.StatusFailed)
		return fmt.Errorf("send message to %s: %w", thread.ID, err)
	}
	metrics.IncMessageSent(metrics.StatusSuccess)

	if err := m.store.Update(ctx, model.Chats, thread.ID, map[string]any{
		"lastMessage": content,
		"timestamp":   docstore.ServerTimestamp,
	}); err != nil {
		m.logger.Warn("failed to update last message",
			zap.Error(err),
			zap.String("thread_id", thread.ID),
			zap.String("msg_id", id))
	}
	return nil
}

// FetchParticipants resolves user ids with batched "in" lookups. The
// result follows the order of ids; unknown ids are omitted.
func (m *Manager) FetchParticipants(ctx context.Context, ids []string) ([]model.User, error) {
	ids = batch.Unique(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	chunks, err := batch.Map(ctx, batch.Chunk(ids, m.batchSize), 0, func(ctx context.Context, chunk []string) ([]model.User, error) {
		docs, err := m.store.Query(ctx, docstore.Collection(model.Users).Where("uid", docstore.OpIn, chunk))
		if err != nil {
			return nil, err
		}
		users := make([]model.User, 0, len(docs))
		for _, d := range docs {
			users = append(users, model.UserFromDoc(d))
		}
		return users, nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch participants: %w", err)
	}

	byID := make(map[string]model.User, len(ids))
	for _, chunk := range chunks {
		for _, u := range chunk {
			byID[u.ID] = u
		}
	}
	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

// FetchUsersWhoMessaged returns every user who sent a message in a thread
// the organiser takes part in. Per-thread failures are logged and skipped.
func (m *Manager) FetchUsersWhoMessaged(ctx context.Context, organiserID string) []model.User {
	threads, err := m.store.Query(ctx, docstore.Collection(model.Chats).
		Where("participants", docstore.OpArrayContains, organiserID))
	if err != nil {
		m.logger.Error("failed to fetch chat threads", zap.Error(err), zap.String("user_id", organiserID))
		return nil
	}

	perThread, _ := batch.Map(ctx, threads, 0, func(ctx context.Context, thread docstore.Document) ([]string, error) {
		msgs, err := m.store.Query(ctx, docstore.Collection(model.MessagesPath(thread.ID)).
			Where("senderId", docstore.OpNotEqual, organiserID))
		if err != nil {
			m.logger.Error("failed to fetch messages", zap.Error(err), zap.String("thread_id", thread.ID))
			return nil, nil
		}
		senders := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			if s, ok := msg.String("senderId"); ok && s != "" {
				senders = append(senders, s)
			}
		}
		return senders, nil
	})

	var senderIDs []string
	for _, s := range perThread {
		senderIDs = append(senderIDs, s...)
	}
	users, err := m.FetchParticipants(ctx, senderIDs)
	if err != nil {
		m.logger.Error("failed to resolve senders", zap.Error(err), zap.Int("count", len(senderIDs)))
		return nil
	}
	return users
}

// FetchChatThreads returns the threads the user takes part in, in query
// order. Each thread carries one synthetic message holding its lastMessage
// summary. Threads whose participants cannot be resolved are skipped.
func (m *Manager) FetchChatThreads(ctx context.Context, currentUser model.User) []model.ChatThread {
	docs, err := m.store.Query(ctx, docstore.Collection(model.Chats).
		Where("participants", docstore.OpArrayContains, currentUser.ID))
	if err != nil {
		m.logger.Error("failed to fetch chat threads", zap.Error(err), zap.String("user_id", currentUser.ID))
		return nil
	}

	threads, _ := batch.Map(ctx, docs, 0, func(ctx context.Context, d docstore.Document) (*model.ChatThread, error) {
		participants, err := m.FetchParticipants(ctx, d.Strings("participants"))
		if err != nil {
			m.logger.Error("failed to fetch participants", zap.Error(err), zap.String("thread_id", d.ID))
			return nil, nil
		}
		return threadFromDoc(d, participants), nil
	})

	out := make([]model.ChatThread, 0, len(threads))
	for _, t := range threads {
		if t != nil {
			out = append(out, *t)
		}
	}
	return out
}

func threadFromDoc(d docstore.Document, participants []model.User) *model.ChatThread {
	sender := model.User{Name: model.UnknownName}
	if len(participants) > 0 {
		sender = participants[0]
	}
	ts, _ := d.Time("timestamp")
	return &model.ChatThread{
		ID:           d.ID,
		Participants: participants,
		Messages: []model.ChatMessage{{
			ID:        LastMessageID,
			Sender:    sender,
			Content:   d.StringOr("lastMessage", NoMessagesYet),
			Timestamp: ts,
		}},
	}
}
