package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalDirectRoom_OrderIndependent(t *testing.T) {
	pairs := [][2]string{
		{"alice", "bob"},
		{"bob", "alice"},
		{"zed", "amy"},
		{"alice", "alice"},
	}

	for _, pair := range pairs {
		forward := CanonicalDirectRoom(pair[0], pair[1])
		reverse := CanonicalDirectRoom(pair[1], pair[0])
		assert.Equal(t, forward, reverse, "pair %v must canonicalize identically in both orders", pair)
	}

	assert.Equal(t, "dm:alice-bob", CanonicalDirectRoom("bob", "alice"))
}

func TestCanonicalDirectRoom_DistinctPairsDiffer(t *testing.T) {
	a := CanonicalDirectRoom("alice", "bob")
	b := CanonicalDirectRoom("alice", "carol")
	c := CanonicalDirectRoom("bob", "carol")
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestCanonicalDirectRoom_NeverCollidesWithChannels(t *testing.T) {
	// Channel names cannot contain ':' so the dm: prefix is reserved.
	id := CanonicalDirectRoom("general", "random")
	assert.True(t, IsDirect(id))
	assert.NotEqual(t, "general", id)
	assert.NotEqual(t, "random", id)
}

func TestDirectParticipants(t *testing.T) {
	a, b, ok := DirectParticipants("dm:alice-bob")
	require.True(t, ok)
	assert.Equal(t, "alice", a)
	assert.Equal(t, "bob", b)

	tests := []struct {
		name   string
		roomID string
	}{
		{"named channel", "general"},
		{"non-canonical order", "dm:bob-alice"},
		{"missing participant", "dm:alice"},
		{"too many participants", "dm:alice-bob-carol"},
		{"empty pair", "dm:-"},
		{"invalid username", "dm:a-bob"},
		{"bare prefix", "dm:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ok := DirectParticipants(tt.roomID)
			assert.False(t, ok)
		})
	}
}

func TestDirectParticipants_Roundtrip(t *testing.T) {
	for _, pair := range [][2]string{{"alice", "bob"}, {"x1", "x2"}, {"amy", "zed"}} {
		id := CanonicalDirectRoom(pair[0], pair[1])
		a, b, ok := DirectParticipants(id)
		require.True(t, ok, "canonical id %q must decompose", id)
		assert.Equal(t, CanonicalDirectRoom(a, b), id)
	}
}
