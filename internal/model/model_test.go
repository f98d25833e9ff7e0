package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChatParticipants(t *testing.T) {
	c := &Chat{ID: "c1", SenderID: "a", ReceiverID: "b"}

	assert.True(t, c.IsParticipant("a"))
	assert.True(t, c.IsParticipant("b"))
	assert.False(t, c.IsParticipant("x"))
	assert.False(t, c.IsParticipant(""))

	assert.Equal(t, "b", c.OtherParticipant("a"))
	assert.Equal(t, "a", c.OtherParticipant("b"))
	assert.Empty(t, c.OtherParticipant("x"))
	assert.Equal(t, ChatRef("c1"), c.Ref())
}

func TestPairKeyIsOrderIndependent(t *testing.T) {
	a1, b1 := PairKey("u2", "u1")
	a2, b2 := PairKey("u1", "u2")
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
	assert.Equal(t, "u1", a1)
}

func TestMessageStatus(t *testing.T) {
	tests := []struct {
		status   MessageStatus
		editable bool
	}{
		{MessageStatusPending, false},
		{MessageStatusSent, true},
		{MessageStatusRead, true},
		{MessageStatusFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.True(t, tt.status.Valid())
			assert.Equal(t, tt.editable, tt.status.Editable())
			assert.Equal(t, tt.editable, tt.status.Visible())
		})
	}
	assert.False(t, MessageStatus("delivered").Valid())
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Ann Lee", (&User{FirstName: "Ann", LastName: "Lee"}).FullName())
	assert.Equal(t, "Ann", (&User{FirstName: "Ann"}).FullName())
	assert.Equal(t, "Lee", (&User{LastName: "Lee"}).FullName())

	u := &User{ID: "u1", FirstName: "Ann", LastName: "Lee", Phone: "+10000000000"}
	pub := u.ToPublic()
	assert.Equal(t, "u1", pub.ID)
	assert.Equal(t, "Ann Lee", pub.FullName)
}

func TestContainerKind(t *testing.T) {
	assert.True(t, ContainerChat.Valid())
	assert.True(t, ContainerGroup.Valid())
	assert.False(t, ContainerKind("channel").Valid())
	assert.Equal(t, "group:g1", GroupRef("g1").String())
}
