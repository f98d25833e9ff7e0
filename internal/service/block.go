package service

import (
	"context"
	"errors"
	"time"

	"github.com/convo/internal/apperr"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
	"github.com/convo/internal/realtime"
	"github.com/convo/internal/storage"
)

// blockBetween проверяет блокировку в обе стороны.
// ErrBlockedByYou — actor заблокировал other; ErrBlockedYou — other заблокировал actor.
func (e *Engine) blockBetween(ctx context.Context, actor, other string) error {
	blocked, err := e.st.Blocks.Exists(ctx, actor, other)
	if err != nil {
		return fail("service.blockBetween", err)
	}
	if blocked {
		return apperr.ErrBlockedByYou
	}
	blocked, err = e.st.Blocks.Exists(ctx, other, actor)
	if err != nil {
		return fail("service.blockBetween", err)
	}
	if blocked {
		return apperr.ErrBlockedYou
	}
	return nil
}

func (e *Engine) Block(ctx context.Context, actor, targetID string) (*model.Block, realtime.Effects, error) {
	defer logger.DeferLogDuration("service.Block", time.Now())()
	var fx realtime.Effects
	if targetID == actor {
		return nil, fx, apperr.Field("user_id", "You cannot block yourself.")
	}
	if _, err := e.user(ctx, targetID); err != nil {
		return nil, fx, err
	}
	exists, err := e.st.Blocks.Exists(ctx, actor, targetID)
	if err != nil {
		return nil, fx, fail("service.Block", err)
	}
	if exists {
		return nil, fx, apperr.ErrAlreadyBlocked
	}
	b := &model.Block{UserID: actor, BlockedUserID: targetID, BlockedAt: e.now()}
	if err := e.st.Blocks.Create(ctx, b); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fx, apperr.ErrAlreadyBlocked
		}
		return nil, fx, fail("service.Block", err)
	}
	fx.Publish(realtime.UserChannel(targetID), realtime.EventUserBlocked,
		realtime.BlockPayload{UserID: actor, BlockedUserID: targetID}, actor, false)
	return b, fx, nil
}

func (e *Engine) Unblock(ctx context.Context, actor, targetID string) (realtime.Effects, error) {
	defer logger.DeferLogDuration("service.Unblock", time.Now())()
	var fx realtime.Effects
	if targetID == actor {
		return fx, apperr.Field("user_id", "You cannot unblock yourself.")
	}
	if _, err := e.user(ctx, targetID); err != nil {
		return fx, err
	}
	exists, err := e.st.Blocks.Exists(ctx, actor, targetID)
	if err != nil {
		return fx, fail("service.Unblock", err)
	}
	if !exists {
		return fx, apperr.ErrNotBlocked
	}
	if err := e.st.Blocks.Delete(ctx, actor, targetID); err != nil {
		return fx, fail("service.Unblock", notFound(err, apperr.ErrNotBlocked))
	}
	fx.Publish(realtime.UserChannel(targetID), realtime.EventUserUnblocked,
		realtime.BlockPayload{UserID: actor, BlockedUserID: targetID}, actor, false)
	return fx, nil
}

// ListBlocked — пользователи, которых заблокировал actor.
func (e *Engine) ListBlocked(ctx context.Context, actor string) ([]model.BlockedUser, error) {
	blocks, err := e.st.Blocks.List(ctx, actor)
	if err != nil {
		return nil, fail("service.ListBlocked", err)
	}
	ids := make([]string, 0, len(blocks))
	for _, b := range blocks {
		ids = append(ids, b.BlockedUserID)
	}
	users, err := e.publicUsers(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.BlockedUser, 0, len(blocks))
	for _, b := range blocks {
		u, ok := users[b.BlockedUserID]
		if !ok {
			continue
		}
		out = append(out, model.BlockedUser{UserPublic: u, BlockedAt: b.BlockedAt})
	}
	return out, nil
}
