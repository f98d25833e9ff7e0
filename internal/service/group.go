package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/convo/internal/access"
	"github.com/convo/internal/apperr"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
	"github.com/convo/internal/realtime"
	"github.com/convo/internal/storage"
)

type CreateGroupInput struct {
	Slug        string `json:"group_id"`
	Name        string `json:"name"`
	Picture     string `json:"picture"`
	Description string `json:"description"`
}

func (in *CreateGroupInput) normalize() {
	in.Slug = strings.TrimSpace(in.Slug)
	in.Name = strings.TrimSpace(in.Name)
	in.Picture = strings.TrimSpace(in.Picture)
	in.Description = strings.TrimSpace(in.Description)
}

func (in CreateGroupInput) validate() error {
	v := fields{}
	if v.required("group_id", in.Slug) {
		v.max("group_id", in.Slug, maxNameLength)
	}
	if v.required("name", in.Name) {
		v.max("name", in.Name, maxNameLength)
	}
	v.max("picture", in.Picture, maxPictureLength)
	v.max("description", in.Description, maxDescriptionLength)
	return v.err()
}

// UpdateGroupInput — nil означает "не менять".
type UpdateGroupInput struct {
	Slug        *string `json:"group_id"`
	Name        *string `json:"name"`
	Picture     *string `json:"picture"`
	Description *string `json:"description"`
}

func (e *Engine) ensureSlugFree(ctx context.Context, slug, exceptID string) error {
	taken, err := e.st.Groups.SlugTaken(ctx, slug, exceptID)
	if err != nil {
		return fail("service.ensureSlugFree", err)
	}
	if taken {
		return apperr.ErrGroupSlugTaken
	}
	return nil
}

// CreateGroup создаёт группу и добавляет создателя администратором в одной транзакции.
func (e *Engine) CreateGroup(ctx context.Context, actor string, in CreateGroupInput) (*model.Group, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.CreateGroup", time.Now())()
	var fx realtime.Effects
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, fx, err
	}
	if err := e.ensureSlugFree(ctx, in.Slug, ""); err != nil {
		return nil, fx, err
	}

	now := e.now()
	g := &model.Group{
		ID:          e.newID(),
		Slug:        in.Slug,
		OwnerID:     actor,
		Name:        in.Name,
		Picture:     in.Picture,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.st.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := e.st.Groups.Create(ctx, g); err != nil {
			// Slug заняли между проверкой и вставкой.
			if errors.Is(err, storage.ErrConflict) {
				return apperr.ErrGroupSlugTaken
			}
			return err
		}
		return e.st.Groups.AddMember(ctx, &model.GroupMember{GroupID: g.ID, UserID: actor, IsAdmin: true, JoinedAt: now})
	})
	if errors.Is(err, apperr.ErrGroupSlugTaken) {
		return nil, fx, apperr.ErrGroupSlugTaken
	}
	if err != nil {
		logger.Errorw("create group failed", "user", actor, "group_id", in.Slug, "error", err)
		return nil, fx, apperr.Internal(err)
	}
	fx.Publish(realtime.GroupPublicChannel(g.ID), realtime.EventGroupCreated, realtime.GroupPayload{Group: *g}, actor, false)
	return g, fx, nil
}

// ListGroups — группы, в которых состоит actor.
func (e *Engine) ListGroups(ctx context.Context, actor string) ([]model.GroupSummary, error) {
	defer logger.DeferLogDuration("service.ListGroups", time.Now())()
	groups, err := e.st.Groups.ListForMember(ctx, actor)
	if err != nil {
		return nil, fail("service.ListGroups", err)
	}
	out := make([]model.GroupSummary, 0, len(groups))
	for i := range groups {
		g := groups[i]
		s := model.GroupSummary{Group: g}
		latest, err := e.st.Messages.Latest(ctx, g.Ref())
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fail("service.ListGroups", err)
		}
		s.LatestMessage = latest
		if s.UnreadCount, err = e.reads.UnreadCount(ctx, g.Ref(), actor); err != nil {
			return nil, fail("service.ListGroups", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// ShowGroup открывает группу участнику: отмечает прочтение и возвращает участников и историю.
func (e *Engine) ShowGroup(ctx context.Context, actor, groupID string, page model.MessageFilter) (*model.GroupDetail, error) {
	defer logger.DeferLogDuration("service.ShowGroup", time.Now())()
	g, err := e.group(ctx, groupID)
	if err != nil {
		return nil, err
	}
	m, err := e.membership(ctx, g.ID, actor)
	if err != nil {
		return nil, err
	}
	if err := access.Require(access.Group(actor, g, m, access.ActionView)); err != nil {
		return nil, err
	}
	if _, err := e.reads.MarkRead(ctx, g.Ref(), actor); err != nil {
		return nil, fail("service.ShowGroup", err)
	}
	members, err := e.memberViews(ctx, g)
	if err != nil {
		return nil, err
	}
	page = normalizePage(page)
	page.VisibleOnly = true
	msgs, err := e.st.Messages.List(ctx, g.Ref(), page)
	if err != nil {
		return nil, fail("service.ShowGroup", err)
	}
	if msgs, err = e.withSenders(ctx, msgs); err != nil {
		return nil, err
	}
	return &model.GroupDetail{Group: *g, Members: members, Messages: msgs}, nil
}

// UpdateGroup — только владелец; group_id должен остаться уникальным.
func (e *Engine) UpdateGroup(ctx context.Context, actor, groupID string, in UpdateGroupInput) (*model.Group, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.UpdateGroup", time.Now())()
	var fx realtime.Effects
	g, err := e.group(ctx, groupID)
	if err != nil {
		return nil, fx, err
	}
	if err := access.Require(access.Group(actor, g, nil, access.ActionUpdate)); err != nil {
		return nil, fx, err
	}
	next := CreateGroupInput{Slug: g.Slug, Name: g.Name, Picture: g.Picture, Description: g.Description}
	if in.Slug != nil {
		next.Slug = *in.Slug
	}
	if in.Name != nil {
		next.Name = *in.Name
	}
	if in.Picture != nil {
		next.Picture = *in.Picture
	}
	if in.Description != nil {
		next.Description = *in.Description
	}
	next.normalize()
	if err := next.validate(); err != nil {
		return nil, fx, err
	}
	if next.Slug != g.Slug {
		if err := e.ensureSlugFree(ctx, next.Slug, g.ID); err != nil {
			return nil, fx, err
		}
	}
	g.Slug, g.Name, g.Picture, g.Description = next.Slug, next.Name, next.Picture, next.Description
	g.UpdatedAt = e.now()
	if err := e.st.Groups.Update(ctx, g); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fx, apperr.ErrGroupSlugTaken
		}
		return nil, fx, fail("service.UpdateGroup", err)
	}
	fx.Publish(realtime.GroupPrivateChannel(g.ID), realtime.EventGroupUpdated, realtime.GroupPayload{Group: *g}, actor, false)
	return g, fx, nil
}

// DeleteGroup удаляет группу, её сообщения, отметки прочтения и членства.
func (e *Engine) DeleteGroup(ctx context.Context, actor, groupID string) (realtime.Effects, error) {
	defer logger.DeferLogDuration("service.DeleteGroup", time.Now())()
	var fx realtime.Effects
	g, err := e.group(ctx, groupID)
	if err != nil {
		return fx, err
	}
	if err := access.Require(access.Group(actor, g, nil, access.ActionDelete)); err != nil {
		return fx, err
	}
	err = e.inTx(ctx, "service.DeleteGroup", func(ctx context.Context) error {
		if err := e.st.Messages.DeleteByContainer(ctx, g.Ref()); err != nil {
			return err
		}
		return e.st.Groups.Delete(ctx, g.ID)
	})
	if err != nil {
		return fx, err
	}
	fx.Publish(realtime.GroupPublicChannel(g.ID), realtime.EventGroupDeleted, realtime.GroupRefPayload{GroupID: g.ID}, actor, false)
	return fx, nil
}

// JoinGroup добавляет actor обычным участником и сразу отмечает всю историю прочитанной.
func (e *Engine) JoinGroup(ctx context.Context, actor, groupID string) (*model.GroupMember, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.JoinGroup", time.Now())()
	var fx realtime.Effects
	g, err := e.group(ctx, groupID)
	if err != nil {
		return nil, fx, err
	}
	existing, err := e.membership(ctx, g.ID, actor)
	if err != nil {
		return nil, fx, err
	}
	if existing != nil {
		return nil, fx, apperr.ErrAlreadyMember.WithMessage("You are already a member of this group.")
	}
	u, err := e.user(ctx, actor)
	if err != nil {
		return nil, fx, err
	}
	m := &model.GroupMember{GroupID: g.ID, UserID: actor, JoinedAt: e.now()}
	err = e.inTx(ctx, "service.JoinGroup", func(ctx context.Context) error {
		if err := e.st.Groups.AddMember(ctx, m); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return apperr.ErrAlreadyMember.WithMessage("You are already a member of this group.")
			}
			return err
		}
		_, err := e.reads.MarkRead(ctx, g.Ref(), actor)
		return err
	})
	if err != nil {
		return nil, fx, err
	}
	fx.Publish(realtime.GroupPrivateChannel(g.ID), realtime.EventUserJoinedGroup,
		realtime.MemberPayload{GroupID: g.ID, Member: presence(u), ActorID: actor}, actor, true)
	return m, fx, nil
}

// LeaveGroup: владелец не может выйти, пока не передаст владение.
func (e *Engine) LeaveGroup(ctx context.Context, actor, groupID string) (realtime.Effects, error) {
	defer logger.DeferLogDuration("service.LeaveGroup", time.Now())()
	var fx realtime.Effects
	g, err := e.group(ctx, groupID)
	if err != nil {
		return fx, err
	}
	if g.IsOwner(actor) {
		return fx, apperr.ErrOwnerCannotLeave
	}
	m, err := e.membership(ctx, g.ID, actor)
	if err != nil {
		return fx, err
	}
	if m == nil {
		return fx, apperr.ErrNotAMember
	}
	u, err := e.user(ctx, actor)
	if err != nil {
		return fx, err
	}
	if err := e.st.Groups.RemoveMember(ctx, g.ID, actor); err != nil {
		return fx, fail("service.LeaveGroup", notFound(err, apperr.ErrNotAMember))
	}
	fx.Publish(realtime.GroupPrivateChannel(g.ID), realtime.EventUserLeftGroup,
		realtime.MemberPayload{GroupID: g.ID, Member: presence(u), ActorID: actor}, actor, true)
	fx.Revoke(actor, realtime.GroupMemberChannels(g.ID)...)
	return fx, nil
}

// TransferOwnership передаёт владение группой другому участнику.
func (e *Engine) TransferOwnership(ctx context.Context, actor, groupID, targetID string) (*model.Group, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.TransferOwnership", time.Now())()
	var fx realtime.Effects
	g, err := e.group(ctx, groupID)
	if err != nil {
		return nil, fx, err
	}
	if err := access.Require(access.Group(actor, g, nil, access.ActionTransferOwnership)); err != nil {
		return nil, fx, err
	}
	target, err := e.membership(ctx, g.ID, targetID)
	if err != nil {
		return nil, fx, err
	}
	if target == nil {
		return nil, fx, apperr.ErrTargetNotMember
	}
	if targetID == actor {
		return nil, fx, apperr.ErrCannotTransferToSelf
	}
	if err := e.st.Groups.SetOwner(ctx, g.ID, targetID); err != nil {
		return nil, fx, fail("service.TransferOwnership", notFound(err, apperr.ErrGroupNotFound))
	}
	prev := g.OwnerID
	g.OwnerID = targetID
	fx.Publish(realtime.GroupPublicChannel(g.ID), realtime.EventOwnershipTransferred,
		realtime.OwnershipPayload{GroupID: g.ID, PreviousOwnerID: prev, OwnerID: targetID}, actor, false)
	return g, fx, nil
}

// MarkGroupRead создаёт отметки прочтения actor; повторный вызов возвращает 0.
func (e *Engine) MarkGroupRead(ctx context.Context, actor, groupID string) (int64, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.MarkGroupRead", time.Now())()
	var fx realtime.Effects
	g, err := e.group(ctx, groupID)
	if err != nil {
		return 0, fx, err
	}
	m, err := e.membership(ctx, g.ID, actor)
	if err != nil {
		return 0, fx, err
	}
	if err := access.Require(access.Group(actor, g, m, access.ActionMarkRead)); err != nil {
		return 0, fx, err
	}
	n, err := e.reads.MarkRead(ctx, g.Ref(), actor)
	if err != nil {
		return 0, fx, fail("service.MarkGroupRead", err)
	}
	if n > 0 {
		fx.Publish(realtime.GroupPrivateChannel(g.ID), realtime.EventGroupMessagesRead,
			realtime.ReadPayload{Container: g.Ref(), ReaderID: actor, Count: n}, actor, false)
	}
	return n, fx, nil
}

func presence(u *model.User) model.PresenceMember {
	return model.PresenceMember{ID: u.ID, FullName: u.FullName()}
}
