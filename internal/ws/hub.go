package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/convo/internal/access"
	"github.com/convo/internal/apperr"
	"github.com/convo/internal/logger"
	"github.com/convo/internal/metrics"
	"github.com/convo/internal/model"
	"github.com/convo/internal/realtime"
)

// Authorizer решает, может ли пользователь подписаться на канал.
// Для presence-канала возвращает текущих участников.
type Authorizer interface {
	AuthorizeChannel(ctx context.Context, actor, channel string) ([]model.PresenceMember, error)
}

const authorizeTimeout = 5 * time.Second

// Hub держит соединения и подписки на каналы этого экземпляра.
// События приходят через Publish (напрямую из Dispatcher или из Redis-ретранслятора).
type Hub struct {
	auth Authorizer

	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	channels map[string]map[*Client]struct{}
	// presence: канал -> пользователь -> данные участника.
	presence map[string]map[string]model.PresenceMember
	total    int
	maxConns int

	allowedOrigins string
	closed         bool
}

// NewHub: allowedOrigins — как в CORS (через запятую или "*").
func NewHub(auth Authorizer, maxConns int, allowedOrigins string) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		auth:           auth,
		clients:        make(map[string]map[*Client]struct{}),
		channels:       make(map[string]map[*Client]struct{}),
		presence:       make(map[string]map[string]model.PresenceMember),
		maxConns:       maxConns,
		allowedOrigins: strings.TrimSpace(allowedOrigins),
	}
}

// Run блокируется до отмены ctx, затем закрывает все соединения.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.shutdown()
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	h.closed = true
	all := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	h.channels = make(map[string]map[*Client]struct{})
	h.presence = make(map[string]map[string]model.PresenceMember)
	h.total = 0
	h.mu.Unlock()
	metrics.WSConnections.Set(0)

	// Сетевой I/O вне мьютекса.
	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

// addClient регистрирует соединение и сразу подписывает его на личный канал пользователя.
func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.Close()
		return
	}
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*Client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.total++
	h.subscribeLocked(c, realtime.UserChannel(c.userID))
	h.mu.Unlock()
	metrics.WSConnections.Inc()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.userID)
	}
	var left []presenceChange
	for name := range c.channels {
		if ch, ok := h.unsubscribeLocked(c, name); ok {
			left = append(left, ch)
		}
	}
	h.mu.Unlock()
	metrics.WSConnections.Dec()

	c.Close()
	for _, ch := range left {
		h.announcePresence(ch, EventPresenceLeft)
	}
}

// HandleMessage обрабатывает кадр от клиента.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case FrameSubscribe:
		h.handleSubscribe(ctx, c, msg.Channel)
	case FrameUnsubscribe:
		h.handleUnsubscribe(c, msg.Channel)
	case FramePing:
		h.sendToClient(c, OutgoingMessage{Type: FramePong})
	default:
		h.sendToClient(c, OutgoingMessage{Type: FrameError, Error: "unknown frame type"})
	}
}

type presenceChange struct {
	channel string
	member  model.PresenceMember
}

func channelKind(name string) string {
	if ch, ok := access.ParseChannel(name); ok {
		return string(ch.Kind)
	}
	return "unknown"
}

func (h *Hub) handleSubscribe(ctx context.Context, c *Client, name string) {
	defer logger.DeferLogDuration("ws.subscribe", time.Now())()
	kind := channelKind(name)
	if name == "" {
		h.sendToClient(c, OutgoingMessage{Type: FrameError, Error: "channel required"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, authorizeTimeout)
	defer cancel()
	members, err := h.auth.AuthorizeChannel(ctx, c.userID, name)
	if err != nil {
		e := apperr.As(err)
		result := "denied"
		if e.Kind == apperr.KindInternal {
			result = "error"
			logger.Errorf("ws authorize user=%s channel=%s: %v", c.userID, name, err)
		}
		metrics.WSSubscriptions.WithLabelValues(kind, result).Inc()
		h.sendToClient(c, OutgoingMessage{Type: FrameError, Channel: name, Error: e.Message, Code: e.Code})
		return
	}

	h.mu.Lock()
	_, registered := h.clients[c.userID][c]
	joined := false
	var self model.PresenceMember
	if registered {
		joined = h.subscribeLocked(c, name)
		if joined && kind == string(access.ChannelGroupPresence) {
			self = findMember(members, c.userID)
			if h.presence[name] == nil {
				h.presence[name] = make(map[string]model.PresenceMember)
			}
			h.presence[name][c.userID] = self
		} else {
			joined = false
		}
	}
	h.mu.Unlock()
	if !registered {
		return
	}
	metrics.WSSubscriptions.WithLabelValues(kind, "ok").Inc()

	h.sendToClient(c, OutgoingMessage{Type: FrameSubscribed, Channel: name, Members: members})
	if joined {
		h.announcePresence(presenceChange{channel: name, member: self}, EventPresenceJoined)
	}
}

func findMember(members []model.PresenceMember, userID string) model.PresenceMember {
	for _, m := range members {
		if m.ID == userID {
			return m
		}
	}
	return model.PresenceMember{ID: userID}
}

func (h *Hub) handleUnsubscribe(c *Client, name string) {
	h.mu.Lock()
	ch, left := h.unsubscribeLocked(c, name)
	h.mu.Unlock()
	h.sendToClient(c, OutgoingMessage{Type: FrameUnsubscribed, Channel: name})
	if left {
		h.announcePresence(ch, EventPresenceLeft)
	}
}

// subscribeLocked возвращает true, если это первое соединение пользователя в канале.
func (h *Hub) subscribeLocked(c *Client, name string) bool {
	subs, ok := h.channels[name]
	if !ok {
		subs = make(map[*Client]struct{})
		h.channels[name] = subs
	}
	first := true
	for other := range subs {
		if other.userID == c.userID {
			first = false
			break
		}
	}
	subs[c] = struct{}{}
	c.channels[name] = struct{}{}
	return first
}

// unsubscribeLocked снимает подписку; ok=true, если пользователь покинул presence-канал
// (это было его последнее соединение в канале).
func (h *Hub) unsubscribeLocked(c *Client, name string) (presenceChange, bool) {
	delete(c.channels, name)
	subs, ok := h.channels[name]
	if !ok {
		return presenceChange{}, false
	}
	if _, ok := subs[c]; !ok {
		return presenceChange{}, false
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.channels, name)
	}
	for other := range subs {
		if other.userID == c.userID {
			return presenceChange{}, false
		}
	}
	members, ok := h.presence[name]
	if !ok {
		return presenceChange{}, false
	}
	m, ok := members[c.userID]
	if !ok {
		return presenceChange{}, false
	}
	delete(members, c.userID)
	if len(members) == 0 {
		delete(h.presence, name)
	}
	return presenceChange{channel: name, member: m}, true
}

// announcePresence рассылает изменение состава presence-канала остальным подписчикам.
func (h *Hub) announcePresence(ch presenceChange, event string) {
	h.Deliver(realtime.Broadcast{
		Channel:      ch.channel,
		Event:        event,
		Payload:      PresencePayload{Member: ch.member},
		ActorID:      ch.member.ID,
		ExcludeActor: true,
	})
}

// Publish реализует realtime.Publisher для локальной доставки.
func (h *Hub) Publish(_ context.Context, b realtime.Broadcast) error {
	h.Deliver(b)
	return nil
}

// Deliver отправляет событие всем подписчикам канала на этом экземпляре.
// Отзыв подписок применяется до доставки, чтобы следующее событие группы уже не дошло.
func (h *Hub) Deliver(b realtime.Broadcast) {
	if b.Event == realtime.EventSubscriptionRevoked {
		if p, ok := realtime.DecodeRevoked(b.Payload); ok {
			h.Revoke(p.UserID, p.Channels...)
		}
	}
	h.mu.RLock()
	subs := h.channels[b.Channel]
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		if b.ExcludeActor && c.userID == b.ActorID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	frame, err := json.Marshal(OutgoingMessage{Type: FrameEvent, Channel: b.Channel, Event: b.Event, Payload: b.Payload})
	if err != nil {
		logger.Errorf("ws encode event=%s channel=%s: %v", b.Event, b.Channel, err)
		return
	}
	for _, c := range targets {
		c.enqueue(frame)
	}
}

// Revoke снимает все соединения пользователя с каналов; личный канал не трогается.
func (h *Hub) Revoke(userID string, channels ...string) {
	own := realtime.UserChannel(userID)
	h.mu.Lock()
	var dropped []*Client
	var left []presenceChange
	for c := range h.clients[userID] {
		hit := false
		for _, name := range channels {
			if name == own {
				continue
			}
			if _, ok := c.channels[name]; !ok {
				continue
			}
			hit = true
			if ch, ok := h.unsubscribeLocked(c, name); ok {
				left = append(left, ch)
			}
		}
		if hit {
			dropped = append(dropped, c)
		}
	}
	h.mu.Unlock()
	if len(dropped) == 0 {
		return
	}
	logger.Infof("ws revoke user=%s channels=%v connections=%d", userID, channels, len(dropped))
	for _, ch := range left {
		h.announcePresence(ch, EventPresenceLeft)
	}
}

// Subscribers — число соединений, подписанных на канал.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("ws encode frame=%s user=%s: %v", msg.Type, c.userID, err)
		return
	}
	c.enqueue(frame)
}

// Register синхронный: к моменту старта насосов соединение уже подписано на личный канал.
func (h *Hub) Register(c *Client) {
	h.addClient(c)
}

func (h *Hub) Unregister(c *Client) {
	h.removeClient(c)
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// Serve переводит запрос в WebSocket для уже аутентифицированного userID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}
	// Соединение живёт дольше запроса.
	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(h, conn, userID)
	h.Register(client)
	client.Start(ctx, cancel)
}
