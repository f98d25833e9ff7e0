package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convo/internal/apperr"
	"github.com/convo/internal/model"
	"github.com/convo/internal/realtime"
	"github.com/convo/internal/service"
	"github.com/convo/internal/storage/memory"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	st  *memory.Store
	eng *service.Engine
	ctx context.Context
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	st := memory.New()
	st.SetClock(func() time.Time { return t0 })
	var seq atomic.Int64
	eng := service.New(st.Stores(),
		service.WithClock(func() time.Time { return t0 }),
		service.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
	)
	for i, id := range users {
		st.AddUser(&model.User{ID: id, Phone: fmt.Sprintf("+7900000%04d", i), FirstName: id, LastName: "Test"})
	}
	return &fixture{st: st, eng: eng, ctx: context.Background()}
}

func (f *fixture) chat(t *testing.T, a, b string) *model.Chat {
	t.Helper()
	res, _, err := f.eng.CreateChat(f.ctx, a, service.CreateChatInput{SenderID: a, ReceiverID: b})
	require.NoError(t, err)
	return res.Chat
}

func (f *fixture) group(t *testing.T, owner, slug string) *model.Group {
	t.Helper()
	g, _, err := f.eng.CreateGroup(f.ctx, owner, service.CreateGroupInput{Slug: slug, Name: "Group " + slug})
	require.NoError(t, err)
	return g
}

func (f *fixture) send(t *testing.T, actor string, ref model.ContainerRef, text string) *model.Message {
	t.Helper()
	m, _, err := f.eng.CreateMessage(f.ctx, actor, service.CreateMessageInput{Container: ref, Content: text})
	require.NoError(t, err)
	return m
}

func events(fx realtime.Effects) []string {
	out := make([]string, 0, len(fx.Broadcasts))
	for _, b := range fx.Broadcasts {
		out = append(out, b.Event)
	}
	return out
}

func TestCreateChatIdempotentAnyOrder(t *testing.T) {
	f := newFixture(t, "a", "b")
	res, fx, err := f.eng.CreateChat(f.ctx, "a", service.CreateChatInput{SenderID: "a", ReceiverID: "b"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, []string{realtime.EventChatCreated}, events(fx))

	again, fx, err := f.eng.CreateChat(f.ctx, "b", service.CreateChatInput{SenderID: "b", ReceiverID: "a"})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.Chat.ID, again.Chat.ID)
	assert.True(t, fx.Empty())
}

func TestCreateChatValidation(t *testing.T) {
	f := newFixture(t, "a", "b", "c")

	_, _, err := f.eng.CreateChat(f.ctx, "a", service.CreateChatInput{SenderID: "a", ReceiverID: "a"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, _, err = f.eng.CreateChat(f.ctx, "c", service.CreateChatInput{SenderID: "a", ReceiverID: "b"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, _, err = f.eng.CreateChat(f.ctx, "a", service.CreateChatInput{SenderID: "a", ReceiverID: "ghost"})
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestChatMarkReadScenario(t *testing.T) {
	f := newFixture(t, "a", "b")
	c := f.chat(t, "a", "b")
	for i := 0; i < 3; i++ {
		f.send(t, "b", c.Ref(), fmt.Sprintf("hi %d", i))
	}
	mine := f.send(t, "a", c.Ref(), "hello")

	n, fx, err := f.eng.MarkChatRead(f.ctx, "a", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, []string{realtime.EventChatMessagesRead}, events(fx))

	n, fx, err = f.eng.MarkChatRead(f.ctx, "a", c.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, fx.Empty())

	got, err := f.st.Messages.GetByID(f.ctx, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusSent, got.Status)

	list, err := f.eng.ListChats(f.ctx, "b")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].UnreadCount)
	assert.Equal(t, mine.ID, list[0].LatestMessage.ID)
}

func TestMarkChatReadForbiddenForOutsider(t *testing.T) {
	f := newFixture(t, "a", "b", "c")
	c := f.chat(t, "a", "b")
	_, _, err := f.eng.MarkChatRead(f.ctx, "c", c.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestGroupMarkReadIdempotentAndNoSelfReceipt(t *testing.T) {
	f := newFixture(t, "o", "x")
	g := f.group(t, "o", "team")
	_, _, err := f.eng.JoinGroup(f.ctx, "x", g.ID)
	require.NoError(t, err)

	own := f.send(t, "x", g.Ref(), "mine")
	other := f.send(t, "o", g.Ref(), "theirs")

	n, _, err := f.eng.MarkGroupRead(f.ctx, "x", g.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	first, err := f.st.Messages.Readers(f.ctx, other.ID)
	require.NoError(t, err)

	n, fx, err := f.eng.MarkGroupRead(f.ctx, "x", g.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, fx.Empty())

	second, err := f.st.Messages.Readers(f.ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	self, err := f.st.Messages.Readers(f.ctx, own.ID)
	require.NoError(t, err)
	assert.Empty(t, self)
}

func TestJoinMarksHistoryRead(t *testing.T) {
	f := newFixture(t, "o", "x")
	g := f.group(t, "o", "team")
	m := f.send(t, "o", g.Ref(), "before join")

	member, fx, err := f.eng.JoinGroup(f.ctx, "x", g.ID)
	require.NoError(t, err)
	assert.False(t, member.IsAdmin)
	require.Len(t, fx.Broadcasts, 1)
	assert.True(t, fx.Broadcasts[0].ExcludeActor)

	readers, err := f.eng.MessageReaders(f.ctx, "o", m.ID)
	require.NoError(t, err)
	require.Len(t, readers, 1)
	assert.Equal(t, "x", readers[0].MemberID)

	_, _, err = f.eng.JoinGroup(f.ctx, "x", g.ID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyMember)
}

func TestUpdateMessageRules(t *testing.T) {
	f := newFixture(t, "a", "b")
	c := f.chat(t, "a", "b")
	sent := f.send(t, "a", c.Ref(), "original")

	_, _, err := f.eng.UpdateMessage(f.ctx, "b", sent.ID, "hijack")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	upd, fx, err := f.eng.UpdateMessage(f.ctx, "a", sent.ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", upd.Content)
	assert.True(t, upd.IsEdited)
	assert.Equal(t, model.MessageStatusSent, upd.Status)
	assert.Equal(t, []string{realtime.EventMessageUpdated}, events(fx))

	_, _, err = f.eng.MarkChatRead(f.ctx, "b", c.ID)
	require.NoError(t, err)
	upd, _, err = f.eng.UpdateMessage(f.ctx, "a", sent.ID, "after read")
	require.NoError(t, err)
	assert.Equal(t, model.MessageStatusRead, upd.Status)

	for _, st := range []model.MessageStatus{model.MessageStatusPending, model.MessageStatusFailed} {
		id := "m-" + string(st)
		require.NoError(t, f.st.Messages.Create(f.ctx, &model.Message{
			ID: id, Container: c.Ref(), SenderID: "a", Content: "x", Status: st, SentAt: t0, UpdatedAt: t0,
		}))
		_, _, err = f.eng.UpdateMessage(f.ctx, "a", id, "nope")
		assert.ErrorIs(t, err, apperr.ErrNotEditable, st)

		_, _, err = f.eng.UpdateMessage(f.ctx, "b", id, "nope")
		assert.ErrorIs(t, err, apperr.ErrForbidden, st)
	}

	_, _, err = f.eng.UpdateMessage(f.ctx, "a", sent.ID, "   ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestShowChatHidesUndelivered(t *testing.T) {
	f := newFixture(t, "a", "b")
	c := f.chat(t, "a", "b")
	f.send(t, "b", c.Ref(), "visible")
	require.NoError(t, f.st.Messages.Create(f.ctx, &model.Message{
		ID: "pending", Container: c.Ref(), SenderID: "b", Content: "x", Status: model.MessageStatusPending, SentAt: t0, UpdatedAt: t0,
	}))

	detail, fx, err := f.eng.ShowChat(f.ctx, "a", c.ID, model.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, detail.Messages, 1)
	assert.Equal(t, model.MessageStatusRead, detail.Messages[0].Status)
	require.NotNil(t, detail.Messages[0].Sender)
	assert.Equal(t, "b Test", detail.Messages[0].Sender.FullName)
	assert.Equal(t, []string{realtime.EventUserEnteredChat}, events(fx))
}

func TestCreateMessageNotifiesRecipients(t *testing.T) {
	f := newFixture(t, "o", "x", "y")
	g := f.group(t, "o", "team")
	for _, u := range []string{"x", "y"} {
		_, _, err := f.eng.JoinGroup(f.ctx, u, g.ID)
		require.NoError(t, err)
	}
	m, fx, err := f.eng.CreateMessage(f.ctx, "x", service.CreateMessageInput{Container: g.Ref(), Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Content)
	require.Len(t, fx.Broadcasts, 1)
	assert.Equal(t, realtime.GroupPrivateChannel(g.ID), fx.Broadcasts[0].Channel)

	var to []string
	for _, n := range fx.Notifications {
		to = append(to, n.RecipientID)
		assert.Equal(t, "x Test", n.Data.Sender)
	}
	assert.ElementsMatch(t, []string{"o", "y"}, to)
}

func TestCreateMessageRequiresMembership(t *testing.T) {
	f := newFixture(t, "o", "x")
	g := f.group(t, "o", "team")
	_, _, err := f.eng.CreateMessage(f.ctx, "x", service.CreateMessageInput{Container: g.Ref(), Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, _, err = f.eng.CreateMessage(f.ctx, "x", service.CreateMessageInput{
		Container: model.ContainerRef{Kind: "channel", ID: g.ID}, Content: "hi",
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestBlockPreventsMessage(t *testing.T) {
	f := newFixture(t, "a", "b")
	c := f.chat(t, "a", "b")

	_, fx, err := f.eng.Block(f.ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{realtime.EventUserBlocked}, events(fx))

	_, fx, err = f.eng.CreateMessage(f.ctx, "b", service.CreateMessageInput{Container: c.Ref(), Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrBlockedYou)
	assert.True(t, fx.Empty())

	_, _, err = f.eng.CreateMessage(f.ctx, "a", service.CreateMessageInput{Container: c.Ref(), Content: "hi"})
	assert.ErrorIs(t, err, apperr.ErrBlockedByYou)

	msgs, err := f.st.Messages.List(f.ctx, c.Ref(), model.MessageFilter{})
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, _, err = f.eng.Block(f.ctx, "a", "b")
	assert.ErrorIs(t, err, apperr.ErrAlreadyBlocked)

	_, err = f.eng.Unblock(f.ctx, "a", "b")
	require.NoError(t, err)
	_, err = f.eng.Unblock(f.ctx, "a", "b")
	assert.ErrorIs(t, err, apperr.ErrNotBlocked)
	f.send(t, "b", c.Ref(), "back")
}

func TestBlockedChatCreate(t *testing.T) {
	f := newFixture(t, "a", "b")
	_, _, err := f.eng.Block(f.ctx, "b", "a")
	require.NoError(t, err)
	_, _, err = f.eng.CreateChat(f.ctx, "a", service.CreateChatInput{SenderID: "a", ReceiverID: "b"})
	require.ErrorIs(t, err, apperr.ErrAlreadyBlocked)
	assert.Equal(t, apperr.ErrBlockedYou.Message, apperr.As(err).Message)
}

func TestModerationScenario(t *testing.T) {
	f := newFixture(t, "o", "x")
	g := f.group(t, "o", "team")
	_, _, err := f.eng.JoinGroup(f.ctx, "x", g.ID)
	require.NoError(t, err)

	members, err := f.eng.ListMembers(f.ctx, "o", g.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	m, _, err := f.eng.PromoteToAdmin(f.ctx, "o", g.ID, "x")
	require.NoError(t, err)
	assert.True(t, m.IsAdmin)

	_, err = f.eng.RemoveMember(f.ctx, "o", g.ID, "x")
	assert.ErrorIs(t, err, apperr.ErrCannotRemoveAdmin)

	_, _, err = f.eng.PromoteToAdmin(f.ctx, "o", g.ID, "x")
	assert.ErrorIs(t, err, apperr.ErrAlreadyAdmin)

	_, _, err = f.eng.PromoteToAdmin(f.ctx, "o", g.ID, "o")
	assert.ErrorIs(t, err, apperr.ErrCannotPromoteOwner)
	assert.NotErrorIs(t, err, apperr.ErrAlreadyAdmin)
}

func TestOwnerNeverRemovable(t *testing.T) {
	f := newFixture(t, "o", "adm", "x", "out")
	g := f.group(t, "o", "team")
	for _, u := range []string{"adm", "x"} {
		_, _, err := f.eng.JoinGroup(f.ctx, u, g.ID)
		require.NoError(t, err)
	}
	_, _, err := f.eng.PromoteToAdmin(f.ctx, "o", g.ID, "adm")
	require.NoError(t, err)

	for _, actor := range []string{"o", "adm", "x", "out"} {
		_, err := f.eng.RemoveMember(f.ctx, actor, g.ID, "o")
		assert.Error(t, err, actor)
	}
	ok, err := f.eng.IsMember(f.ctx, g.ID, "o")
	require.NoError(t, err)
	assert.True(t, ok)

	fx, err := f.eng.RemoveMember(f.ctx, "adm", g.ID, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{realtime.EventUserRemovedFromGroup, realtime.EventSubscriptionRevoked}, events(fx))
	revoke := fx.Broadcasts[1]
	assert.Equal(t, realtime.UserChannel("x"), revoke.Channel)
	assert.Equal(t, realtime.RevokedPayload{UserID: "x", Channels: realtime.GroupMemberChannels(g.ID)}, revoke.Payload)
}

func TestTransferThenLeave(t *testing.T) {
	f := newFixture(t, "o", "x", "y")
	g := f.group(t, "o", "team")
	_, _, err := f.eng.JoinGroup(f.ctx, "x", g.ID)
	require.NoError(t, err)

	_, err = f.eng.LeaveGroup(f.ctx, "o", g.ID)
	assert.ErrorIs(t, err, apperr.ErrOwnerCannotLeave)

	_, _, err = f.eng.TransferOwnership(f.ctx, "o", g.ID, "y")
	assert.ErrorIs(t, err, apperr.ErrTargetNotMember)
	_, _, err = f.eng.TransferOwnership(f.ctx, "o", g.ID, "o")
	assert.ErrorIs(t, err, apperr.ErrCannotTransferToSelf)
	_, _, err = f.eng.TransferOwnership(f.ctx, "x", g.ID, "x")
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	updated, _, err := f.eng.TransferOwnership(f.ctx, "o", g.ID, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", updated.OwnerID)

	fx, err := f.eng.LeaveGroup(f.ctx, "o", g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{realtime.EventUserLeftGroup, realtime.EventSubscriptionRevoked}, events(fx))
	assert.Equal(t, realtime.UserChannel("o"), fx.Broadcasts[1].Channel)

	stored, err := f.st.Groups.GetByID(f.ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", stored.OwnerID)
	ok, err := f.eng.IsMember(f.ctx, g.ID, "x")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.eng.LeaveGroup(f.ctx, "o", g.ID)
	assert.ErrorIs(t, err, apperr.ErrNotAMember)
}

func TestGroupSlugUnique(t *testing.T) {
	f := newFixture(t, "o", "p")
	f.group(t, "o", "team")
	_, _, err := f.eng.CreateGroup(f.ctx, "p", service.CreateGroupInput{Slug: "team", Name: "Other"})
	assert.ErrorIs(t, err, apperr.ErrGroupSlugTaken)

	g2 := f.group(t, "p", "other")
	slug := "team"
	_, _, err = f.eng.UpdateGroup(f.ctx, "p", g2.ID, service.UpdateGroupInput{Slug: &slug})
	assert.ErrorIs(t, err, apperr.ErrGroupSlugTaken)

	name := "Renamed"
	_, _, err = f.eng.UpdateGroup(f.ctx, "o", g2.ID, service.UpdateGroupInput{Name: &name})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestDeleteGroupRemovesHistory(t *testing.T) {
	f := newFixture(t, "o", "x")
	g := f.group(t, "o", "team")
	_, _, err := f.eng.JoinGroup(f.ctx, "x", g.ID)
	require.NoError(t, err)
	m := f.send(t, "x", g.Ref(), "bye")

	_, err = f.eng.DeleteGroup(f.ctx, "x", g.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	fx, err := f.eng.DeleteGroup(f.ctx, "o", g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{realtime.EventGroupDeleted}, events(fx))

	_, err = f.st.Messages.GetByID(f.ctx, m.ID)
	assert.Error(t, err)
	groups, err := f.eng.ListGroups(f.ctx, "x")
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestContacts(t *testing.T) {
	f := newFixture(t, "a", "b")
	u, err := f.st.Users.GetByID(f.ctx, "b")
	require.NoError(t, err)

	c, fx, err := f.eng.AddContact(f.ctx, "a", service.AddContactInput{Phone: u.Phone})
	require.NoError(t, err)
	assert.Equal(t, "b", c.FirstName)
	assert.Equal(t, []string{realtime.EventContactCreated}, events(fx))

	_, _, err = f.eng.AddContact(f.ctx, "a", service.AddContactInput{Phone: u.Phone})
	assert.ErrorIs(t, err, apperr.ErrContactExists)

	same := "b"
	_, fx, err = f.eng.UpdateContact(f.ctx, "a", "b", service.UpdateContactInput{FirstName: &same})
	require.NoError(t, err)
	assert.True(t, fx.Empty())

	_, err = f.eng.DeleteContact(f.ctx, "a", "b")
	require.NoError(t, err)
	_, err = f.eng.ShowContact(f.ctx, "a", "b")
	assert.ErrorIs(t, err, apperr.ErrContactNotFound)
}

func TestAuthorizeChannel(t *testing.T) {
	f := newFixture(t, "o", "x", "y")
	g := f.group(t, "o", "team")
	_, _, err := f.eng.JoinGroup(f.ctx, "x", g.ID)
	require.NoError(t, err)

	members, err := f.eng.AuthorizeChannel(f.ctx, "x", realtime.GroupPresenceChannel(g.ID))
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = f.eng.AuthorizeChannel(f.ctx, "y", realtime.GroupPrivateChannel(g.ID))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.eng.AuthorizeChannel(f.ctx, "y", realtime.GroupPublicChannel(g.ID))
	assert.NoError(t, err)

	_, err = f.eng.AuthorizeChannel(f.ctx, "y", realtime.UserChannel("x"))
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.eng.AuthorizeChannel(f.ctx, "y", "bogus")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestSearch(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.chat(t, "alice", "bob")
	f.group(t, "alice", "bobs")

	res, err := f.eng.Search(f.ctx, "alice", "BOB")
	require.NoError(t, err)
	assert.Len(t, res.Chats, 1)
	assert.Len(t, res.Groups, 1)

	_, err = f.eng.Search(f.ctx, "alice", " ")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestProvisionUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.eng.ProvisionUser(ctx, model.User{ID: "sub-1", Phone: "+79001112233", FirstName: "Ann", LastName: "Lee"})
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", u.FullName())
	created := u.CreatedAt

	u, err = f.eng.ProvisionUser(ctx, model.User{ID: "sub-1", Phone: "+79001112233", FirstName: "Anna", LastName: "Lee"})
	require.NoError(t, err)
	assert.Equal(t, "Anna", u.FirstName)
	assert.Equal(t, created, u.CreatedAt)

	me, err := f.eng.Me(ctx, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "Anna", me.FirstName)

	_, err = f.eng.ProvisionUser(ctx, model.User{ID: "sub-2", Phone: "+79001112233"})
	assert.ErrorIs(t, err, service.ErrPhoneTaken)

	_, err = f.eng.ProvisionUser(ctx, model.User{ID: "  "})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestChatMarkReadIncludesPendingAndFailed(t *testing.T) {
	f := newFixture(t, "a", "b")
	c := f.chat(t, "a", "b")
	for id, status := range map[string]model.MessageStatus{
		"m-pending": model.MessageStatusPending,
		"m-failed":  model.MessageStatusFailed,
	} {
		require.NoError(t, f.st.Messages.Create(f.ctx, &model.Message{
			ID: id, Container: c.Ref(), SenderID: "b", Content: id, Status: status, SentAt: t0, UpdatedAt: t0,
		}))
	}
	f.send(t, "b", c.Ref(), "hi")

	n, _, err := f.eng.MarkChatRead(f.ctx, "a", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	for _, id := range []string{"m-pending", "m-failed"} {
		m, err := f.st.Messages.GetByID(f.ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.MessageStatusRead, m.Status, id)
	}
}

// brokenGroups ломает запись участника, чтобы проверить откат создания группы.
type brokenGroups struct {
	service.GroupStore
	addMemberErr error
	slugFree     bool
}

func (g brokenGroups) AddMember(ctx context.Context, m *model.GroupMember) error {
	if g.addMemberErr != nil {
		return g.addMemberErr
	}
	return g.GroupStore.AddMember(ctx, m)
}

func (g brokenGroups) SlugTaken(ctx context.Context, slug, exceptID string) (bool, error) {
	if g.slugFree {
		return false, nil
	}
	return g.GroupStore.SlugTaken(ctx, slug, exceptID)
}

func engineWithGroups(f *fixture, groups service.GroupStore) *service.Engine {
	stores := f.st.Stores()
	stores.Groups = groups
	return service.New(stores, service.WithClock(func() time.Time { return t0 }))
}

func TestCreateGroupRollsBackOnMemberFailure(t *testing.T) {
	f := newFixture(t, "o")
	eng := engineWithGroups(f, brokenGroups{GroupStore: f.st.Groups, addMemberErr: errors.New("disk full")})

	g, fx, err := eng.CreateGroup(f.ctx, "o", service.CreateGroupInput{Slug: "team", Name: "Team"})
	require.Error(t, err)
	assert.Nil(t, g)
	assert.True(t, fx.Empty())

	e := apperr.As(err)
	assert.Equal(t, apperr.KindInternal, e.Kind)
	assert.Equal(t, apperr.ErrInternal.Message, e.Message)
	assert.NotContains(t, e.Message, "disk full")

	taken, err := f.st.Groups.SlugTaken(f.ctx, "team", "")
	require.NoError(t, err)
	assert.False(t, taken)
	groups, err := f.st.Groups.ListForMember(f.ctx, "o")
	require.NoError(t, err)
	assert.Empty(t, groups)

	// После сбоя тот же slug свободен.
	f.group(t, "o", "team")
}

func TestCreateGroupSlugTakenConcurrently(t *testing.T) {
	f := newFixture(t, "o", "p")
	f.group(t, "o", "team")
	// Проверка slug до транзакции не видит соперника, уникальность ловит вставка.
	eng := engineWithGroups(f, brokenGroups{GroupStore: f.st.Groups, slugFree: true})

	_, fx, err := eng.CreateGroup(f.ctx, "p", service.CreateGroupInput{Slug: "team", Name: "Other"})
	assert.ErrorIs(t, err, apperr.ErrGroupSlugTaken)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.True(t, fx.Empty())

	groups, err := f.st.Groups.ListForMember(f.ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, groups)
}
