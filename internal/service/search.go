package service

import (
	"context"
	"strings"
	"time"

	"github.com/convo/internal/access"
	"github.com/convo/internal/apperr"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
)

const maxSearchLength = 100

// Search ищет чаты actor по имени собеседника и группы по названию.
func (e *Engine) Search(ctx context.Context, actor, query string) (*model.SearchResult, error) {
	defer logger.DeferLogDuration("service.Search", time.Now())()
	query = strings.TrimSpace(query)
	v := fields{}
	if v.required("q", query) {
		v.max("q", query, maxSearchLength)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	chats, err := e.st.Chats.SearchForUser(ctx, actor, query)
	if err != nil {
		return nil, fail("service.Search", err)
	}
	summaries, err := e.chatSummaries(ctx, actor, chats, false)
	if err != nil {
		return nil, err
	}
	groups, err := e.st.Groups.SearchByName(ctx, query)
	if err != nil {
		return nil, fail("service.Search", err)
	}
	return &model.SearchResult{Chats: summaries, Groups: groups}, nil
}

// AuthorizeChannel проверяет подписку actor на realtime-канал.
// Для presence-канала возвращает текущих участников группы.
func (e *Engine) AuthorizeChannel(ctx context.Context, actor, name string) ([]model.PresenceMember, error) {
	ch, ok := access.ParseChannel(name)
	if !ok {
		return nil, apperr.Field("channel", "Unknown channel.")
	}
	var facts access.ChannelFacts
	switch ch.Kind {
	case access.ChannelChat:
		c, err := e.chat(ctx, ch.ID)
		if err != nil {
			return nil, err
		}
		facts.Chat = c
	case access.ChannelGroupPrivate, access.ChannelGroupPublic, access.ChannelGroupPresence:
		g, err := e.group(ctx, ch.ID)
		if err != nil {
			return nil, err
		}
		facts.Group = g
		if ch.Kind != access.ChannelGroupPublic {
			if facts.Membership, err = e.membership(ctx, g.ID, actor); err != nil {
				return nil, err
			}
		}
	}
	if err := access.Require(access.Subscribe(actor, ch, facts)); err != nil {
		return nil, err
	}
	if ch.Kind != access.ChannelGroupPresence {
		return nil, nil
	}
	views, err := e.memberViews(ctx, facts.Group)
	if err != nil {
		return nil, err
	}
	out := make([]model.PresenceMember, 0, len(views))
	for _, v := range views {
		out = append(out, model.PresenceMember{ID: v.ID, FullName: v.FullName})
	}
	return out, nil
}
