package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRoomID(t *testing.T) {
	cases := []struct {
		name  string
		id    RoomID
		valid bool
	}{
		{"generated v4", NewRoomID(), true},
		{"lowercase v4", "6ba7b811-9dad-41d1-80b4-00c04fd430c8", true},
		{"v1 uuid", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", false},
		{"empty", "", false},
		{"arbitrary string", "lobby", false},
		{"participant label", "participant-42", false},
		{"truncated uuid", "6ba7b811-9dad-41d1-80b4", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidRoomID(tc.id))
		})
	}
}

func TestNewRoomIDIsUnique(t *testing.T) {
	seen := make(map[RoomID]struct{})
	for i := 0; i < 100; i++ {
		id := NewRoomID()
		assert.True(t, ValidRoomID(id))
		_, dup := seen[id]
		assert.False(t, dup, "room ids must not repeat")
		seen[id] = struct{}{}
	}
}

func TestSessionDescriptionKind(t *testing.T) {
	offer := SessionDescription{Type: "offer", SDP: "v=0"}
	answer := SessionDescription{Type: "answer", SDP: "v=0"}

	assert.True(t, offer.IsOffer())
	assert.False(t, offer.IsAnswer())
	assert.True(t, answer.IsAnswer())
	assert.False(t, answer.IsOffer())
}

func TestLinkStateString(t *testing.T) {
	assert.Equal(t, "created", LinkCreated.String())
	assert.Equal(t, "established", LinkEstablished.String())
	assert.Equal(t, "closed", LinkClosed.String())
}
