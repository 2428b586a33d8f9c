package api

import (
	"time"

	"github.com/matheus3301/thriveup/internal/bus"
	"github.com/matheus3301/thriveup/internal/model"
	"github.com/matheus3301/thriveup/internal/notify"
	"google.golang.org/protobuf/types/known/structpb"
)

// Status is the decoded GetStatus response.
type Status struct {
	Session       string `json:"session"`
	State         string `json:"state"`
	UserID        string `json:"user_id,omitempty"`
	Notifications int    `json:"notifications"`
	UptimeMs      int64  `json:"uptime_ms"`
}

// Update is one WatchNotifications message. Notification is set for
// notification.created; ThreadID, SenderID and IDs for
// notification.dismissed.
type Update struct {
	Kind         string                  `json:"kind"`
	Notification *model.NotificationItem `json:"notification,omitempty"`
	ThreadID     string                  `json:"thread_id,omitempty"`
	SenderID     string                  `json:"sender_id,omitempty"`
	IDs          []string                `json:"ids,omitempty"`
}

func notificationMap(n model.NotificationItem) map[string]any {
	m := map[string]any{
		"id":                n.ID,
		"sender_id":         n.SenderID,
		"name":              n.Name,
		"profile_image_url": n.ProfileImageURL,
	}
	if !n.Timestamp.IsZero() {
		m["timestamp"] = n.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return m
}

func notificationFromMap(m map[string]any) model.NotificationItem {
	n := model.NotificationItem{
		ID:              str(m, "id"),
		SenderID:        str(m, "sender_id"),
		Name:            str(m, "name"),
		ProfileImageURL: str(m, "profile_image_url"),
	}
	if ts, err := time.Parse(time.RFC3339Nano, str(m, "timestamp")); err == nil {
		n.Timestamp = ts
	}
	return n
}

// NotificationsToList encodes a working set.
func NotificationsToList(items []model.NotificationItem) (*structpb.ListValue, error) {
	values := make([]any, len(items))
	for i, n := range items {
		values[i] = notificationMap(n)
	}
	return structpb.NewList(values)
}

// NotificationsFromList decodes a ListNotifications response.
func NotificationsFromList(l *structpb.ListValue) []model.NotificationItem {
	out := make([]model.NotificationItem, 0, len(l.GetValues()))
	for _, v := range l.AsSlice() {
		if m, ok := v.(map[string]any); ok {
			out = append(out, notificationFromMap(m))
		}
	}
	return out
}

// StatusFromStruct decodes a GetStatus response.
func StatusFromStruct(s *structpb.Struct) Status {
	m := s.AsMap()
	return Status{
		Session:       str(m, "session"),
		State:         str(m, "state"),
		UserID:        str(m, "user_id"),
		Notifications: int(num(m, "notifications")),
		UptimeMs:      int64(num(m, "uptime_ms")),
	}
}

// UpdateFromStruct decodes a WatchNotifications message.
func UpdateFromStruct(s *structpb.Struct) Update {
	m := s.AsMap()
	u := Update{
		Kind:     str(m, "kind"),
		ThreadID: str(m, "thread_id"),
		SenderID: str(m, "sender_id"),
	}
	if nm, ok := m["notification"].(map[string]any); ok {
		n := notificationFromMap(nm)
		u.Notification = &n
	}
	if ids, ok := m["ids"].([]any); ok {
		for _, id := range ids {
			if s, ok := id.(string); ok {
				u.IDs = append(u.IDs, s)
			}
		}
	}
	return u
}

// updateFromEvent encodes a bus event. ok is false for payloads the stream
// does not carry.
func updateFromEvent(evt bus.Event) (*structpb.Struct, bool, error) {
	m := map[string]any{"kind": evt.Kind}
	switch p := evt.Payload.(type) {
	case model.NotificationItem:
		m["notification"] = notificationMap(p)
	case notify.Dismissal:
		m["thread_id"] = p.ThreadID
		m["sender_id"] = p.SenderID
		ids := make([]any, len(p.IDs))
		for i, id := range p.IDs {
			ids[i] = id
		}
		m["ids"] = ids
	default:
		return nil, false, nil
	}
	s, err := structpb.NewStruct(m)
	return s, err == nil, err
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func num(m map[string]any, key string) float64 {
	f, _ := m[key].(float64)
	return f
}
