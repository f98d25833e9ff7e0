package service

import (
	"context"
	"errors"
	"time"

	"github.com/convo/internal/access"
	"github.com/convo/internal/apperr"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
	"github.com/convo/internal/realtime"
	"github.com/convo/internal/storage"
)

// moderation загружает группу и членство actor и проверяет право на действие.
func (e *Engine) moderation(ctx context.Context, actor, groupID string, action access.Action) (*model.Group, error) {
	g, err := e.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	m, err := e.membership(ctx, g.ID, actor)
	if err != nil {
		return nil, err
	}
	if err := access.Require(access.Group(actor, g, m, action)); err != nil {
		return nil, err
	}
	return g, nil
}

func (e *Engine) memberViews(ctx context.Context, g *model.Group) ([]model.GroupMemberView, error) {
	members, err := e.st.Groups.ListMembers(ctx, g.ID)
	if err != nil {
		return nil, fail("service.memberViews", err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	users, err := e.publicUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.GroupMemberView, 0, len(members))
	for _, m := range members {
		u, ok := users[m.UserID]
		if !ok {
			continue
		}
		out = append(out, model.GroupMemberView{
			UserPublic: u,
			IsAdmin:    m.IsAdmin,
			IsOwner:    g.IsOwner(m.UserID),
			JoinedAt:   m.JoinedAt,
		})
	}
	return out, nil
}

// ListMembers — участники группы; доступно только участникам.
func (e *Engine) ListMembers(ctx context.Context, actor, groupID string) ([]model.GroupMemberView, error) {
	defer logger.DeferLogDuration("service.ListMembers", time.Now())()
	g, err := e.moderation(ctx, actor, groupID, access.ActionListMembers)
	if err != nil {
		return nil, err
	}
	return e.memberViews(ctx, g)
}

// AddMember — владелец или администратор добавляет пользователя обычным участником.
func (e *Engine) AddMember(ctx context.Context, actor, groupID, userID string) (*model.GroupMember, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.AddMember", time.Now())()
	var fx realtime.Effects
	g, err := e.moderation(ctx, actor, groupID, access.ActionAddMember)
	if err != nil {
		return nil, fx, err
	}
	u, err := e.user(ctx, userID)
	if err != nil {
		return nil, fx, err
	}
	existing, err := e.membership(ctx, g.ID, userID)
	if err != nil {
		return nil, fx, err
	}
	if existing != nil {
		return nil, fx, apperr.ErrAlreadyMember
	}
	m := &model.GroupMember{GroupID: g.ID, UserID: userID, JoinedAt: e.now()}
	if err := e.st.Groups.AddMember(ctx, m); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fx, apperr.ErrAlreadyMember
		}
		return nil, fx, fail("service.AddMember", err)
	}
	fx.Publish(realtime.GroupPresenceChannel(g.ID), realtime.EventUserAddedToGroup,
		realtime.MemberPayload{GroupID: g.ID, Member: presence(u), ActorID: actor}, actor, true)
	return m, fx, nil
}

// RemoveMember — владелец или администратор удаляет обычного участника.
// Владельца и администраторов удалить нельзя никому.
func (e *Engine) RemoveMember(ctx context.Context, actor, groupID, userID string) (realtime.Effects, error) {
	defer logger.DeferLogDuration("service.RemoveMember", time.Now())()
	var fx realtime.Effects
	g, err := e.moderation(ctx, actor, groupID, access.ActionRemoveMember)
	if err != nil {
		return fx, err
	}
	if g.IsOwner(userID) {
		return fx, apperr.ErrCannotRemoveOwner
	}
	target, err := e.membership(ctx, g.ID, userID)
	if err != nil {
		return fx, err
	}
	if target == nil {
		return fx, apperr.ErrNotMember
	}
	if target.IsAdmin {
		return fx, apperr.ErrCannotRemoveAdmin
	}
	u, err := e.user(ctx, userID)
	if err != nil {
		return fx, err
	}
	if err := e.st.Groups.RemoveMember(ctx, g.ID, userID); err != nil {
		return fx, fail("service.RemoveMember", notFound(err, apperr.ErrNotMember))
	}
	fx.Publish(realtime.GroupPrivateChannel(g.ID), realtime.EventUserRemovedFromGroup,
		realtime.MemberPayload{GroupID: g.ID, Member: presence(u), ActorID: actor}, actor, true)
	fx.Revoke(userID, realtime.GroupMemberChannels(g.ID)...)
	return fx, nil
}

// PromoteToAdmin — только владелец; цель должна быть участником без прав администратора.
func (e *Engine) PromoteToAdmin(ctx context.Context, actor, groupID, userID string) (*model.GroupMember, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.PromoteToAdmin", time.Now())()
	var fx realtime.Effects
	g, err := e.moderation(ctx, actor, groupID, access.ActionPromote)
	if err != nil {
		return nil, fx, err
	}
	if g.IsOwner(userID) {
		return nil, fx, apperr.ErrCannotPromoteOwner
	}
	target, err := e.membership(ctx, g.ID, userID)
	if err != nil {
		return nil, fx, err
	}
	if target == nil {
		return nil, fx, apperr.ErrNotMember
	}
	if target.IsAdmin {
		return nil, fx, apperr.ErrAlreadyAdmin
	}
	u, err := e.user(ctx, userID)
	if err != nil {
		return nil, fx, err
	}
	if err := e.st.Groups.SetAdmin(ctx, g.ID, userID, true); err != nil {
		return nil, fx, fail("service.PromoteToAdmin", notFound(err, apperr.ErrNotMember))
	}
	target.IsAdmin = true
	fx.Publish(realtime.GroupPrivateChannel(g.ID), realtime.EventUserPromotedAdmin,
		realtime.MemberPayload{GroupID: g.ID, Member: presence(u), ActorID: actor, IsAdmin: true}, actor, true)
	return target, fx, nil
}
