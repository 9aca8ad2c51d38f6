package realtime

import (
	"encoding/json"
	"testing"
)

func TestDecodePeerID(t *testing.T) {
	cases := map[string]int64{
		`7`:                  7,
		`"9"`:                9,
		`" 12 "`:             12,
		`{"peerId":3}`:       3,
		`{"receiverId":"4"}`: 4,
		`null`:               0,
	}
	for raw, want := range cases {
		got, err := decodePeerID(json.RawMessage(raw))
		if err != nil {
			t.Fatalf("decodePeerID(%s) error = %v", raw, err)
		}
		if got != want {
			t.Fatalf("decodePeerID(%s) = %d, want %d", raw, got, want)
		}
	}
	if _, err := decodePeerID(json.RawMessage(`"abc"`)); err == nil {
		t.Fatal("expected error for non-numeric peer id")
	}
}

func TestDecodeRoomNameAcceptsAliases(t *testing.T) {
	for _, raw := range []string{`"Tarix fakültəsi"`, `{"roomName":"Tarix fakültəsi"}`, `{"faculty":"Tarix fakültəsi"}`} {
		got, err := decodeRoomName(json.RawMessage(raw))
		if err != nil || got != "Tarix fakültəsi" {
			t.Fatalf("decodeRoomName(%s) = %q, %v", raw, got, err)
		}
	}
}

func TestSendInputsPreferNewFieldNames(t *testing.T) {
	var group sendGroupInput
	_ = json.Unmarshal([]byte(`{"roomName":"A","faculty":"B","body":"x","message":"y"}`), &group)
	if group.room() != "A" || group.text() != "x" {
		t.Fatalf("unexpected group input %+v", group)
	}

	var private sendPrivateInput
	_ = json.Unmarshal([]byte(`{"receiverId":5,"message":"hi"}`), &private)
	if private.peer() != 5 || private.text() != "hi" {
		t.Fatalf("unexpected private input %+v", private)
	}
}
