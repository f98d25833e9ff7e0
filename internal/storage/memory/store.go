// Package memory — хранилище в памяти с теми же контрактами, что и repository (Postgres).
// Используется в тестах и при запуске API с -memory. Транзакция работает с копией
// состояния, которая подменяет текущее при фиксации.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/convo/internal/model"
	"github.com/convo/internal/service"
)

type memberKey struct{ group, user string }
type receiptKey struct{ message, member string }
type pairKey struct{ a, b string }

type state struct {
	users    map[string]model.User
	chats    map[string]model.Chat
	groups   map[string]model.Group
	members  map[memberKey]model.GroupMember
	messages map[string]model.Message
	seq      map[string]int64
	receipts map[receiptKey]model.ReadReceipt
	contacts map[pairKey]model.Contact
	blocks   map[pairKey]model.Block
	nextSeq  int64
}

func newState() *state {
	return &state{
		users:    make(map[string]model.User),
		chats:    make(map[string]model.Chat),
		groups:   make(map[string]model.Group),
		members:  make(map[memberKey]model.GroupMember),
		messages: make(map[string]model.Message),
		seq:      make(map[string]int64),
		receipts: make(map[receiptKey]model.ReadReceipt),
		contacts: make(map[pairKey]model.Contact),
		blocks:   make(map[pairKey]model.Block),
	}
}

func (s *state) clone() *state {
	return &state{
		users:    maps.Clone(s.users),
		chats:    maps.Clone(s.chats),
		groups:   maps.Clone(s.groups),
		members:  maps.Clone(s.members),
		messages: maps.Clone(s.messages),
		seq:      maps.Clone(s.seq),
		receipts: maps.Clone(s.receipts),
		contacts: maps.Clone(s.contacts),
		blocks:   maps.Clone(s.blocks),
		nextSeq:  s.nextSeq,
	}
}

type txKey struct{}

// Store объединяет все таблицы. Поля-представления реализуют интерфейсы service.*Store.
type Store struct {
	// txMu сериализует пишущие операции и транзакции; mu защищает st.
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
	now  func() time.Time

	Users    *Users
	Chats    *Chats
	Groups   *Groups
	Messages *Messages
	Contacts *Contacts
	Blocks   *Blocks
}

func New() *Store {
	s := &Store{st: newState(), now: func() time.Time { return time.Now().UTC() }}
	s.Users = &Users{s}
	s.Chats = &Chats{s}
	s.Groups = &Groups{s}
	s.Messages = &Messages{s}
	s.Contacts = &Contacts{s}
	s.Blocks = &Blocks{s}
	return s
}

// SetClock подменяет время для отметок прочтения (тесты).
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Stores возвращает набор зависимостей для service.New.
func (s *Store) Stores() service.Stores {
	return service.Stores{
		Tx:       s,
		Users:    s.Users,
		Chats:    s.Chats,
		Groups:   s.Groups,
		Messages: s.Messages,
		Contacts: s.Contacts,
		Blocks:   s.Blocks,
	}
}

// txState возвращает рабочую копию состояния открытой транзакции.
func txState(ctx context.Context) (*state, bool) {
	st, ok := ctx.Value(txKey{}).(*state)
	return st, ok
}

// WithTx выполняет fn над рабочей копией состояния; копия становится
// текущим состоянием только после успешного fn. Читатели вне транзакции
// видят состояние до её начала. Вложенный вызов работает с той же копией.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txState(ctx); ok {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, work)); err != nil {
		return err
	}
	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

func (s *Store) read(ctx context.Context, fn func(st *state)) {
	if work, ok := txState(ctx); ok {
		fn(work)
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.st)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if work, ok := txState(ctx); ok {
		return fn(work)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// AddUser добавляет пользователя (тесты, сидирование).
func (s *Store) AddUser(u *model.User) {
	_ = s.Users.Upsert(context.Background(), u)
}
