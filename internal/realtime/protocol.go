package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"facultychat/internal/store"
)

// Client to server events.
const (
	EventJoinFaculty  = "join-faculty"
	EventLeaveFaculty = "leave-faculty"
	EventJoinPrivate  = "join-private-chat"
	EventLeavePrivate = "leave-private-chat"
	EventSendGroup    = "send-group-message"
	EventSendPrivate  = "send-private-message"
)

// Server to client events.
const (
	EventNewGroupMessage   = "new-group-message"
	EventNewPrivateMessage = "new-private-message"
	EventUserJoined        = "user-joined"
	EventError             = "error"
)

const msgSessionExpired = "Session expired, please login again"

// Frame is the envelope of every websocket text message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type UserJoined struct {
	User store.Identity `json:"user"`
	Time string         `json:"time"`
}

// peerID accepts a JSON number or a numeric string.
type peerID int64

func (p *peerID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
		if len(data) == 0 {
			*p = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid peer id %q", data)
	}
	*p = peerID(n)
	return nil
}

type sendGroupInput struct {
	RoomName string `json:"roomName"`
	Faculty  string `json:"faculty"`
	Body     string `json:"body"`
	Message  string `json:"message"`
}

func (in sendGroupInput) room() string { return firstNonEmpty(in.RoomName, in.Faculty) }
func (in sendGroupInput) text() string { return firstNonEmpty(in.Body, in.Message) }

type sendPrivateInput struct {
	PeerID     peerID `json:"peerId"`
	ReceiverID peerID `json:"receiverId"`
	Body       string `json:"body"`
	Message    string `json:"message"`
}

func (in sendPrivateInput) peer() int64 {
	if in.PeerID != 0 {
		return int64(in.PeerID)
	}
	return int64(in.ReceiverID)
}

func (in sendPrivateInput) text() string { return firstNonEmpty(in.Body, in.Message) }

// decodeRoomName accepts either a bare string or {"roomName"} / {"faculty"}.
func decodeRoomName(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return "", err
		}
		return strings.TrimSpace(name), nil
	}
	var in sendGroupInput
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", err
	}
	return strings.TrimSpace(in.room()), nil
}

// decodePeerID accepts a number, a numeric string or {"peerId"} /
// {"receiverId"}.
func decodePeerID(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var in sendPrivateInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return 0, err
		}
		return in.peer(), nil
	}
	var id peerID
	if err := id.UnmarshalJSON(raw); err != nil {
		return 0, err
	}
	return int64(id), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
