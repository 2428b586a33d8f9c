package model

import (
	"github.com/matheus3301/thriveup/internal/docstore"
)

// Collection names in the remote store.
const (
	Users          = "users"
	Chats          = "chats"
	Friends        = "friends"
	FriendRequests = "friend_requests"
	Notifications  = "notifications"
	Events         = "events"
	Registrations  = "registrations"
	Bookmarks      = "swipedeventsdb"
	InterestsColl  = "Interest"
)

// MessagesPath returns the messages subcollection of a thread.
func MessagesPath(threadID string) string {
	return Chats + "/" + threadID + "/messages"
}

// UserFromDoc decodes a users document. The id comes from "uid", falling
// back to the document id.
func UserFromDoc(d docstore.Document) User {
	return User{
		ID:              d.StringOr("uid", d.ID),
		Name:            d.StringOr("name", UnknownName),
		ProfileImageURL: d.StringOr("profileImageURL", ""),
	}
}

// FriendFromDoc decodes a friends document; ok is false when either side is missing.
func FriendFromDoc(d docstore.Document) (Friend, bool) {
	userID, _ := d.String("userID")
	friendID, _ := d.String("friendID")
	if userID == "" || friendID == "" {
		return Friend{}, false
	}
	return Friend{ID: d.StringOr("id", d.ID), UserID: userID, FriendID: friendID}, true
}

// Doc encodes a friend record.
func (f Friend) Doc() map[string]any {
	return map[string]any{"id": f.ID, "userID": f.UserID, "friendID": f.FriendID}
}

// FriendRequestFromDoc decodes a friend_requests document.
func FriendRequestFromDoc(d docstore.Document) (FriendRequest, bool) {
	from, _ := d.String("fromUserID")
	to, _ := d.String("toUserID")
	if from == "" || to == "" {
		return FriendRequest{}, false
	}
	return FriendRequest{ID: d.StringOr("id", d.ID), FromUserID: from, ToUserID: to}, true
}

// Doc encodes a friend request.
func (r FriendRequest) Doc() map[string]any {
	return map[string]any{"id": r.ID, "fromUserID": r.FromUserID, "toUserID": r.ToUserID}
}

// NotificationFromDoc decodes a mirrored notification.
func NotificationFromDoc(d docstore.Document) NotificationItem {
	ts, _ := d.Time("timestamp")
	return NotificationItem{
		ID:              d.StringOr("id", d.ID),
		RecipientID:     d.StringOr("recipientId", ""),
		SenderID:        d.StringOr("senderId", ""),
		Name:            d.StringOr("name", UnknownName),
		ProfileImageURL: d.StringOr("profileImageURL", ""),
		Timestamp:       ts,
	}
}

// Doc encodes a notification for mirroring.
func (n NotificationItem) Doc() map[string]any {
	return map[string]any{
		"id":              n.ID,
		"recipientId":     n.RecipientID,
		"senderId":        n.SenderID,
		"name":            n.Name,
		"profileImageURL": n.ProfileImageURL,
		"timestamp":       n.Timestamp,
	}
}

// EventFromDoc decodes an events document with the feed's display defaults.
func EventFromDoc(d docstore.Document) Event {
	attendance, _ := d.Int("attendanceCount")
	lat, _ := d.Float("latitude")
	lng, _ := d.Float("longitude")
	return Event{
		ID:              d.StringOr("eventId", d.ID),
		Title:           d.StringOr("title", "Untitled"),
		Category:        d.StringOr("category", "Uncategorized"),
		AttendanceCount: int(attendance),
		OrganizerName:   d.StringOr("organizerName", UnknownName),
		Date:            d.StringOr("date", "Unknown Date"),
		Time:            d.StringOr("time", "Unknown Time"),
		Location:        d.StringOr("location", "Unknown Location"),
		LocationDetails: d.StringOr("locationDetails", ""),
		ImageName:       d.StringOr("imageName", ""),
		Description:     d.StringOr("description", ""),
		Latitude:        lat,
		Longitude:       lng,
	}
}

// RegistrationFromDoc decodes a registrations document.
func RegistrationFromDoc(d docstore.Document) (Registration, bool) {
	uid, _ := d.String("uid")
	eventID, _ := d.String("eventId")
	if uid == "" || eventID == "" {
		return Registration{}, false
	}
	return Registration{
		ID:      d.ID,
		UserID:  uid,
		EventID: eventID,
		QRCode:  d.StringOr("qrCode", ""),
	}, true
}
