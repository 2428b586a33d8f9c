package notify

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/matheus3301/thriveup/internal/bus"
	"github.com/matheus3301/thriveup/internal/docstore"
	"github.com/matheus3301/thriveup/internal/metrics"
	"github.com/matheus3301/thriveup/internal/model"
	"github.com/matheus3301/thriveup/internal/status"
	"go.uber.org/zap"
)

var allowedSchemes = map[string]struct{}{
	"gs":    {},
	"http":  {},
	"https": {},
}

// ValidImageURL reports whether raw parses as a URL with an allowed scheme.
func ValidImageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	_, ok := allowedSchemes[strings.ToLower(u.Scheme)]
	return ok
}

// Dismissal is the payload of notification.dismissed events.
type Dismissal struct {
	ThreadID string   `json:"threadId"`
	SenderID string   `json:"senderId"`
	IDs      []string `json:"ids"`
}

func (s *Synchronizer) handleMessage(ctx context.Context, threadID string, doc docstore.Document) {
	msgID := doc.ID
	senderID, _ := doc.String("senderId")
	ts, _ := doc.Time("timestamp")

	s.mu.Lock()
	userID := s.userID
	_, handled := s.handledIDs[msgID]
	_, busy := s.inflight[msgID]
	if senderID == "" || senderID == userID || handled || busy {
		s.mu.Unlock()
		return
	}
	s.inflight[msgID] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, msgID)
		s.mu.Unlock()
	}()

	log := s.logger.With(
		zap.String("thread_id", threadID),
		zap.String("msg_id", msgID),
		zap.String("sender_id", senderID))
	log.Debug("resolving sender", zap.String("stage", string(status.StageResolvingSender)))

	senderDoc, err := s.store.Get(ctx, model.Users, senderID)
	if err != nil {
		metrics.IncNotificationDropped(metrics.DropSenderLookup)
		log.Error("failed to fetch sender", zap.Error(err))
		return
	}
	if senderDoc == nil {
		metrics.IncNotificationDropped(metrics.DropSenderMissing)
		log.Warn("sender not found")
		return
	}

	item := model.NotificationItem{
		ID:              msgID,
		RecipientID:     userID,
		SenderID:        senderID,
		Name:            senderDoc.StringOr("name", model.UnknownName),
		ProfileImageURL: senderDoc.StringOr("profileImageURL", ""),
		Timestamp:       ts,
	}

	if !ValidImageURL(item.ProfileImageURL) {
		metrics.IncNotificationDropped(metrics.DropInvalidScheme)
		log.Warn("dropping notification with invalid image url", zap.String("url", item.ProfileImageURL))
		s.mu.Lock()
		s.markHandledLocked(msgID)
		s.mu.Unlock()
		s.persistHandled()
		return
	}

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.notifications = append(s.notifications, item)
	s.markHandledLocked(msgID)
	s.mu.Unlock()

	s.persistHandled()
	if err := s.store.Set(ctx, model.Notifications, item.ID, item.Doc()); err != nil {
		log.Error("failed to mirror notification", zap.Error(err))
	}
	s.bus.Emit(bus.KindNotificationCreated, item)
	metrics.IncNotificationCreated()
	log.Info("notification created", zap.String("stage", string(status.StageNotified)))
}

// Dismiss removes every notification sent by the thread's other
// participant and deletes their mirrored documents. Their ids stay handled,
// and stay dismissed until the remote delete succeeds.
// It returns the number of removed notifications.
func (s *Synchronizer) Dismiss(ctx context.Context, thread model.ChatThread) int {
	s.mu.Lock()
	userID := s.userID
	if userID == "" {
		s.mu.Unlock()
		return 0
	}
	other, ok := thread.Other(userID)
	if !ok {
		s.mu.Unlock()
		return 0
	}
	kept := s.notifications[:0:0]
	var removed []string
	for _, n := range s.notifications {
		if n.SenderID == other.ID {
			removed = append(removed, n.ID)
			continue
		}
		kept = append(kept, n)
	}
	s.notifications = kept
	for _, id := range removed {
		if !slices.Contains(s.dismissed, id) {
			s.dismissed = append(s.dismissed, id)
		}
	}
	s.mu.Unlock()

	if len(removed) == 0 {
		return 0
	}
	s.persistDismissed()
	var deleted []string
	for _, id := range removed {
		if err := s.store.Delete(ctx, model.Notifications, id); err != nil {
			s.logger.Error("failed to delete notification", zap.Error(err), zap.String("msg_id", id))
			continue
		}
		deleted = append(deleted, id)
	}
	if len(deleted) > 0 {
		s.mu.Lock()
		s.dismissed = slices.DeleteFunc(s.dismissed, func(id string) bool {
			return slices.Contains(deleted, id)
		})
		s.mu.Unlock()
		s.persistDismissed()
	}
	s.bus.Emit(bus.KindNotificationDismissed, Dismissal{ThreadID: thread.ID, SenderID: other.ID, IDs: removed})
	metrics.AddNotificationsDismissed(len(removed))
	s.logger.Info("notifications dismissed",
		zap.String("thread_id", thread.ID),
		zap.String("sender_id", other.ID),
		zap.Int("count", len(removed)),
		zap.String("stage", string(status.StageDismissed)))
	return len(removed)
}

// OpenChat resolves or creates the thread with senderID and dismisses the
// sender's notifications. It returns the thread and the number of
// dismissed notifications.
func (s *Synchronizer) OpenChat(ctx context.Context, senderID string) (*model.ChatThread, int, error) {
	userID := s.UserID()
	if userID == "" {
		return nil, 0, ErrNotStarted
	}

	self, err := s.lookupUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if self == nil {
		self = &model.User{ID: userID, Name: model.UnknownName}
	}
	sender, err := s.lookupUser(ctx, senderID)
	if err != nil {
		return nil, 0, err
	}
	if sender == nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownSender, senderID)
	}

	thread, err := s.chats.FetchOrCreateChatThread(ctx, *self, *sender)
	if err != nil {
		return nil, 0, err
	}
	return thread, s.Dismiss(ctx, *thread), nil
}

func (s *Synchronizer) lookupUser(ctx context.Context, id string) (*model.User, error) {
	doc, err := s.store.Get(ctx, model.Users, id)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	u := model.UserFromDoc(*doc)
	return &u, nil
}
