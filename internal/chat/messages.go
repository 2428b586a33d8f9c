package chat

import (
	"context"
	"fmt"

	"github.com/matheus3301/thriveup/internal/docstore"
	"github.com/matheus3301/thriveup/internal/model"
	"go.uber.org/zap"
)

// messageFromDoc resolves the sender against the thread participants.
// ok is false when the sender is not a participant.
func messageFromDoc(d docstore.Document, thread model.ChatThread, currentUserID string) (model.ChatMessage, bool) {
	senderID, _ := d.String("senderId")
	var sender model.User
	found := false
	for _, p := range thread.Participants {
		if p.ID == senderID {
			sender, found = p, true
			break
		}
	}
	if !found {
		return model.ChatMessage{}, false
	}
	ts, _ := d.Time("timestamp")
	return model.ChatMessage{
		ID:        d.ID,
		Sender:    sender,
		Content:   d.StringOr("messageContent", ""),
		Timestamp: ts,
		IsSender:  senderID == currentUserID,
	}, true
}

// FetchMessages streams the thread's messages in ascending timestamp
// order. Every value is the full list. Messages from non-participants are
// left out. The returned func stops the stream; the channel is closed
// afterwards.
func (m *Manager) FetchMessages(ctx context.Context, thread model.ChatThread, currentUserID string) (<-chan []model.ChatMessage, func()) {
	ctx, cancel := context.WithCancel(ctx)
	snaps, stop := m.store.Listen(ctx, docstore.Collection(model.MessagesPath(thread.ID)).Order("timestamp", false))
	out := make(chan []model.ChatMessage, 1)

	go func() {
		defer close(out)
		defer stop()
		for {
			select {
			case snap, ok := <-snaps:
				if !ok {
					return
				}
				if snap.Err != nil {
					m.logger.Error("message listener failed", zap.Error(snap.Err), zap.String("thread_id", thread.ID))
					continue
				}
				msgs := make([]model.ChatMessage, 0, len(snap.Docs))
				for _, d := range snap.Docs {
					if msg, ok := messageFromDoc(d, thread, currentUserID); ok {
						msgs = append(msgs, msg)
					}
				}
				select {
				case out <- msgs:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, cancel
}

// FetchLastMessage returns the newest message of the thread, or nil when
// the thread has none. Senders outside the participants are reported as
// "Unknown".
func (m *Manager) FetchLastMessage(ctx context.Context, thread model.ChatThread, currentUserID string) (*model.ChatMessage, error) {
	docs, err := m.store.Query(ctx, docstore.Collection(model.MessagesPath(thread.ID)).Order("timestamp", true).Take(1))
	if err != nil {
		return nil, fmt.Errorf("fetch last message of %s: %w", thread.ID, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	msg, ok := messageFromDoc(docs[0], thread, currentUserID)
	if !ok {
		senderID, _ := docs[0].String("senderId")
		ts, _ := docs[0].Time("timestamp")
		msg = model.ChatMessage{
			ID:        docs[0].ID,
			Sender:    model.User{ID: senderID, Name: model.UnknownName},
			Content:   docs[0].StringOr("messageContent", ""),
			Timestamp: ts,
			IsSender:  senderID == currentUserID,
		}
	}
	return &msg, nil
}
