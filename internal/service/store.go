package service

import (
	"context"

	"github.com/convo/internal/model"
)

// Контракты хранилища. Реализации: repository (Postgres) и storage/memory.
// Отсутствие записи — storage.ErrNotFound, нарушение уникальности — storage.ErrConflict.

// TxRunner выполняет fn в одной транзакции; транзакция передаётся через ctx.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByPhone(ctx context.Context, phone string) (*model.User, error)
	GetMany(ctx context.Context, ids []string) (map[string]*model.User, error)
	Upsert(ctx context.Context, u *model.User) error
}

type ChatStore interface {
	Create(ctx context.Context, c *model.Chat) error
	GetByID(ctx context.Context, id string) (*model.Chat, error)
	FindByPair(ctx context.Context, a, b string) (*model.Chat, error)
	ListForUser(ctx context.Context, userID string) ([]model.Chat, error)
	SearchForUser(ctx context.Context, userID, query string) ([]model.Chat, error)
	Delete(ctx context.Context, id string) error
}

type GroupStore interface {
	Create(ctx context.Context, g *model.Group) error
	GetByID(ctx context.Context, id string) (*model.Group, error)
	SlugTaken(ctx context.Context, slug, exceptID string) (bool, error)
	Update(ctx context.Context, g *model.Group) error
	SetOwner(ctx context.Context, groupID, ownerID string) error
	Delete(ctx context.Context, id string) error
	ListForMember(ctx context.Context, userID string) ([]model.Group, error)
	SearchByName(ctx context.Context, query string) ([]model.Group, error)

	AddMember(ctx context.Context, m *model.GroupMember) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	GetMember(ctx context.Context, groupID, userID string) (*model.GroupMember, error)
	SetAdmin(ctx context.Context, groupID, userID string, isAdmin bool) error
	ListMembers(ctx context.Context, groupID string) ([]model.GroupMember, error)
	MemberIDs(ctx context.Context, groupID string) ([]string, error)
}

type MessageStore interface {
	Create(ctx context.Context, m *model.Message) error
	GetByID(ctx context.Context, id string) (*model.Message, error)
	UpdateContent(ctx context.Context, id, content string) (*model.Message, error)
	Delete(ctx context.Context, id string) error
	DeleteByContainer(ctx context.Context, ref model.ContainerRef) error
	List(ctx context.Context, ref model.ContainerRef, f model.MessageFilter) ([]model.Message, error)
	Latest(ctx context.Context, ref model.ContainerRef) (*model.Message, error)

	// MarkChatRead переводит sent-сообщения автора authorID в чате в read; возвращает число изменённых строк.
	MarkChatRead(ctx context.Context, chatID, authorID string) (int64, error)
	// MarkGroupRead создаёт отметки прочтения reader для непрочитанных чужих сообщений группы.
	MarkGroupRead(ctx context.Context, groupID, readerID string) (int64, error)
	UnreadCount(ctx context.Context, ref model.ContainerRef, readerID string) (int, error)
	Readers(ctx context.Context, messageID string) ([]model.ReadReceipt, error)
}

type ContactStore interface {
	List(ctx context.Context, userID string) ([]model.Contact, error)
	Get(ctx context.Context, userID, contactedUserID string) (*model.Contact, error)
	Create(ctx context.Context, c *model.Contact) error
	Update(ctx context.Context, c *model.Contact) error
	Delete(ctx context.Context, userID, contactedUserID string) error
}

type BlockStore interface {
	Exists(ctx context.Context, userID, blockedUserID string) (bool, error)
	Create(ctx context.Context, b *model.Block) error
	Delete(ctx context.Context, userID, blockedUserID string) error
	List(ctx context.Context, userID string) ([]model.Block, error)
}

// Stores — набор зависимостей ядра.
type Stores struct {
	Tx       TxRunner
	Users    UserStore
	Chats    ChatStore
	Groups   GroupStore
	Messages MessageStore
	Contacts ContactStore
	Blocks   BlockStore
}
