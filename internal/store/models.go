package store

import "time"

// Identity is a registered member as seen by the chat core. Registration
// and profile edits happen outside this service.
type Identity struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName"`
	Faculty  string `json:"faculty"`
	Degree   string `json:"degree"`
	Course   int    `json:"course"`
	Avatar   int    `json:"avatar"`
	IsActive bool   `json:"-"`
}

// GroupMessage is a faculty room message hydrated with its author.
type GroupMessage struct {
	ID        int64     `json:"id"`
	RoomName  string    `json:"roomName"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Identity  `json:"author"`
}

// PrivateMessage is a one-to-one message. SenderName and SenderAvatar are
// denormalised for rendering without a second lookup.
type PrivateMessage struct {
	ID           int64     `json:"id"`
	SenderID     int64     `json:"senderId"`
	ReceiverID   int64     `json:"receiverId"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"createdAt"`
	SenderName   string    `json:"fullName"`
	SenderAvatar int       `json:"avatar"`
}

type ReportCount struct {
	ReportedID int64 `json:"reportedId"`
	Count      int   `json:"count"`
}

// RetentionPolicy holds the maximum message ages in hours.
type RetentionPolicy struct {
	GroupHours   int
	PrivateHours int
}

// FilterPolicy is the ordered list of words masked out of message bodies.
type FilterPolicy struct {
	Words []string
}
