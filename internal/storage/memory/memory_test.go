package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convo/internal/model"
	"github.com/convo/internal/storage"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.SetClock(func() time.Time { return t0 })
	for _, id := range []string{"a", "b", "c"} {
		s.AddUser(&model.User{ID: id, Phone: "+7900000000" + id, FirstName: id})
	}
	return s
}

func addMsg(t *testing.T, s *Store, id string, ref model.ContainerRef, sender string, status model.MessageStatus) {
	t.Helper()
	require.NoError(t, s.Messages.Create(context.Background(), &model.Message{
		ID: id, Container: ref, SenderID: sender, Content: id, Status: status, SentAt: t0, UpdatedAt: t0,
	}))
}

func TestUsersUpsertPhoneUnique(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	err := s.Users.Upsert(ctx, &model.User{ID: "d", Phone: "+7900000000a"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	u, err := s.Users.GetByPhone(ctx, "+7900000000b")
	require.NoError(t, err)
	assert.Equal(t, "b", u.ID)

	many, err := s.Users.GetMany(ctx, []string{"a", "zz"})
	require.NoError(t, err)
	assert.Len(t, many, 1)
}

func TestChatPairUnique(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.Chats.Create(ctx, &model.Chat{ID: "c1", SenderID: "a", ReceiverID: "b"}))
	err := s.Chats.Create(ctx, &model.Chat{ID: "c2", SenderID: "b", ReceiverID: "a"})
	assert.ErrorIs(t, err, storage.ErrConflict)

	c, err := s.Chats.FindByPair(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)

	_, err = s.Chats.FindByPair(ctx, "a", "c")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWithTxRollsBack(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.Chats.Create(ctx, &model.Chat{ID: "c1", SenderID: "a", ReceiverID: "b"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = s.Chats.GetByID(ctx, "c1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWithTxHiddenFromConcurrentReaders(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	boom := errors.New("boom")

	type seen struct {
		visible bool
		members []model.GroupMember
	}
	outside := make(chan seen, 1)
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		require.NoError(t, s.Groups.Create(txCtx, &model.Group{ID: "g1", Slug: "team", OwnerID: "a", Name: "Team"}))

		// Внутри транзакции запись видна.
		_, err := s.Groups.GetByID(txCtx, "g1")
		require.NoError(t, err)

		go func() {
			_, err := s.Groups.GetByID(ctx, "g1")
			members, _ := s.Groups.ListMembers(ctx, "g1")
			outside <- seen{visible: err == nil, members: members}
		}()
		got := <-outside
		assert.False(t, got.visible)
		assert.Empty(t, got.members)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = s.Groups.GetByID(ctx, "g1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.Groups.Create(txCtx, &model.Group{ID: "g2", Slug: "team", OwnerID: "a", Name: "Team"}); err != nil {
			return err
		}
		return s.Groups.AddMember(txCtx, &model.GroupMember{GroupID: "g2", UserID: "a", IsAdmin: true, JoinedAt: t0})
	}))
	members, err := s.Groups.ListMembers(ctx, "g2")
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestMarkChatReadOnlyOtherSide(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.Chats.Create(ctx, &model.Chat{ID: "c1", SenderID: "a", ReceiverID: "b"}))
	ref := model.ChatRef("c1")
	addMsg(t, s, "m1", ref, "a", model.MessageStatusSent)
	addMsg(t, s, "m2", ref, "a", model.MessageStatusSent)
	addMsg(t, s, "m3", ref, "b", model.MessageStatusSent)

	unread, err := s.Messages.UnreadCount(ctx, ref, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, unread)

	n, err := s.Messages.MarkChatRead(ctx, "c1", "a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.Messages.MarkChatRead(ctx, "c1", "a")
	require.NoError(t, err)
	assert.Zero(t, n)

	m3, err := s.Messages.GetByID(ctx, "m3")
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusSent, m3.Status)
}

func TestMarkChatReadFlipsEveryUnreadStatus(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.Chats.Create(ctx, &model.Chat{ID: "c1", SenderID: "a", ReceiverID: "b"}))
	ref := model.ChatRef("c1")
	addMsg(t, s, "m-sent", ref, "b", model.MessageStatusSent)
	addMsg(t, s, "m-pending", ref, "b", model.MessageStatusPending)
	addMsg(t, s, "m-failed", ref, "b", model.MessageStatusFailed)
	addMsg(t, s, "m-read", ref, "b", model.MessageStatusRead)

	unread, err := s.Messages.UnreadCount(ctx, ref, "a")
	require.NoError(t, err)
	assert.Equal(t, 3, unread)

	n, err := s.Messages.MarkChatRead(ctx, "c1", "b")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	for _, id := range []string{"m-sent", "m-pending", "m-failed", "m-read"} {
		m, err := s.Messages.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.MessageStatusRead, m.Status, id)
	}

	unread, err = s.Messages.UnreadCount(ctx, ref, "a")
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestMarkGroupReadIdempotent(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.Groups.Create(ctx, &model.Group{ID: "g1", Slug: "g1", OwnerID: "a", Name: "G"}))
	ref := model.GroupRef("g1")
	addMsg(t, s, "m1", ref, "a", model.MessageStatusSent)
	addMsg(t, s, "m2", ref, "b", model.MessageStatusSent)

	n, err := s.Messages.MarkGroupRead(ctx, "g1", "b")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = s.Messages.MarkGroupRead(ctx, "g1", "b")
	require.NoError(t, err)
	assert.Zero(t, n)

	readers, err := s.Messages.Readers(ctx, "m2")
	require.NoError(t, err)
	assert.Empty(t, readers)

	require.NoError(t, s.Messages.Delete(ctx, "m1"))
	readers, err = s.Messages.Readers(ctx, "m1")
	require.NoError(t, err)
	assert.Empty(t, readers)
}

func TestListPagesFromNewest(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.Chats.Create(ctx, &model.Chat{ID: "c1", SenderID: "a", ReceiverID: "b"}))
	ref := model.ChatRef("c1")
	for i := 1; i <= 5; i++ {
		addMsg(t, s, fmt.Sprintf("m%d", i), ref, "a", model.MessageStatusSent)
	}
	addMsg(t, s, "p", ref, "a", model.MessageStatusPending)

	page, err := s.Messages.List(ctx, ref, model.MessageFilter{VisibleOnly: true, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m3", page[0].ID)
	assert.Equal(t, "m4", page[1].ID)

	all, err := s.Messages.List(ctx, ref, model.MessageFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)

	latest, err := s.Messages.Latest(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "m5", latest.ID)
}

func TestGroupDeleteDropsMembers(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	require.NoError(t, s.Groups.Create(ctx, &model.Group{ID: "g1", Slug: "team", OwnerID: "a", Name: "Team"}))
	require.NoError(t, s.Groups.AddMember(ctx, &model.GroupMember{GroupID: "g1", UserID: "a", IsAdmin: true}))
	assert.ErrorIs(t, s.Groups.AddMember(ctx, &model.GroupMember{GroupID: "g1", UserID: "a"}), storage.ErrConflict)

	taken, err := s.Groups.SlugTaken(ctx, "team", "")
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = s.Groups.SlugTaken(ctx, "team", "g1")
	require.NoError(t, err)
	assert.False(t, taken)

	require.NoError(t, s.Groups.Delete(ctx, "g1"))
	_, err = s.Groups.GetMember(ctx, "g1", "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
