package model

import (
	"testing"
	"time"

	"github.com/matheus3301/thriveup/internal/docstore"
	"github.com/stretchr/testify/assert"
)

func TestUserFromDocDefaults(t *testing.T) {
	u := UserFromDoc(docstore.Document{ID: "doc-id", Data: map[string]any{}})
	assert.Equal(t, "doc-id", u.ID)
	assert.Equal(t, UnknownName, u.Name)
	assert.Empty(t, u.ProfileImageURL)

	u = UserFromDoc(docstore.Document{ID: "doc-id", Data: map[string]any{
		"uid": "u1", "name": "Ann", "profileImageURL": "https://img/ann.png",
	}})
	assert.Equal(t, User{ID: "u1", Name: "Ann", ProfileImageURL: "https://img/ann.png"}, u)
}

func TestFriendFromDocSkipsMalformed(t *testing.T) {
	_, ok := FriendFromDoc(docstore.Document{ID: "f1", Data: map[string]any{"userID": "u1"}})
	assert.False(t, ok)

	f, ok := FriendFromDoc(docstore.Document{ID: "f1", Data: map[string]any{"userID": "u1", "friendID": "u2"}})
	assert.True(t, ok)
	assert.Equal(t, Friend{ID: "f1", UserID: "u1", FriendID: "u2"}, f)
}

func TestNotificationRoundTripThroughDoc(t *testing.T) {
	ts := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	n := NotificationItem{ID: "m1", RecipientID: "u1", SenderID: "u2", Name: "Ben", ProfileImageURL: "gs://b/ben.png", Timestamp: ts}
	got := NotificationFromDoc(docstore.Document{ID: "m1", Data: n.Doc()})
	assert.Equal(t, n, got)
}

func TestThreadOther(t *testing.T) {
	th := ChatThread{ID: "u1_u2", Participants: []User{{ID: "u1"}, {ID: "u2"}}}
	other, ok := th.Other("u1")
	assert.True(t, ok)
	assert.Equal(t, "u2", other.ID)

	_, ok = ChatThread{Participants: []User{{ID: "u1"}}}.Other("u1")
	assert.False(t, ok)
}

func TestEventFromDocDefaults(t *testing.T) {
	e := EventFromDoc(docstore.Document{ID: "e1", Data: map[string]any{"title": "Hack Night", "attendanceCount": int64(42)}})
	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, "Hack Night", e.Title)
	assert.Equal(t, 42, e.AttendanceCount)
	assert.Equal(t, "Uncategorized", e.Category)
}
