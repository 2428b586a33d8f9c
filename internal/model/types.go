// Package model holds the entities shared by the data-access layers and the
// notification synchronizer. All of them are snapshots of remote documents.
package model

import "time"

// UnknownName is shown for users whose document carries no name.
const UnknownName = "Unknown"

// User is a person in the users collection.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profileImageURL,omitempty"`
	// ProfileImage is filled by callers that load avatars. Never persisted.
	ProfileImage []byte `json:"-"`
}

// ChatThread is a two-party conversation. Messages may hold only the last
// message when built for list views.
type ChatThread struct {
	ID           string        `json:"id"`
	Participants []User        `json:"participants"`
	Messages     []ChatMessage `json:"messages,omitempty"`
}

// Other returns the participant that is not selfID.
func (t ChatThread) Other(selfID string) (User, bool) {
	for _, p := range t.Participants {
		if p.ID != selfID {
			return p, true
		}
	}
	return User{}, false
}

// ChatMessage is one message of a thread. IsSender is derived at read time.
type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    User      `json:"sender"`
	Content   string    `json:"messageContent"`
	Timestamp time.Time `json:"timestamp"`
	IsSender  bool      `json:"isSender"`
}

// Friend is a directional friendship record owned by UserID.
type Friend struct {
	ID       string `json:"id"`
	UserID   string `json:"userID"`
	FriendID string `json:"friendID"`
}

// FriendRequest is a pending request from FromUserID to ToUserID.
type FriendRequest struct {
	ID         string `json:"id"`
	FromUserID string `json:"fromUserID"`
	ToUserID   string `json:"toUserID"`
}

// NotificationItem announces a new message. ID is the message id.
type NotificationItem struct {
	ID              string    `json:"id"`
	RecipientID     string    `json:"recipientId"`
	SenderID        string    `json:"senderId"`
	Name            string    `json:"name"`
	ProfileImageURL string    `json:"profileImageURL"`
	Timestamp       time.Time `json:"timestamp"`
}

// Event is an entry of the events feed.
type Event struct {
	ID              string  `json:"eventId"`
	Title           string  `json:"title"`
	Category        string  `json:"category"`
	AttendanceCount int     `json:"attendanceCount"`
	OrganizerName   string  `json:"organizerName"`
	Date            string  `json:"date"`
	Time            string  `json:"time"`
	Location        string  `json:"location"`
	LocationDetails string  `json:"locationDetails"`
	ImageName       string  `json:"imageName"`
	Description     string  `json:"description"`
	Latitude        float64 `json:"latitude,omitempty"`
	Longitude       float64 `json:"longitude,omitempty"`
}

// Registration links a user to an event they signed up for.
type Registration struct {
	ID      string `json:"id"`
	UserID  string `json:"uid"`
	EventID string `json:"eventId"`
	QRCode  string `json:"qrCode,omitempty"`
}

// Ticket is what a registered user shows at the door.
type Ticket struct {
	Registration Registration `json:"registration"`
	Event        Event        `json:"event"`
	HolderName   string       `json:"holderName"`
	// QRContent is the text encoded in QRCode when it was generated
	// locally; empty for images issued with the registration.
	QRContent string `json:"qrContent,omitempty"`
	// QRCode is a PNG image.
	QRCode []byte `json:"-"`
}

// Interests are the categories a user picked.
type Interests struct {
	UserID    string   `json:"userID"`
	Interests []string `json:"interests"`
}
