package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convo/internal/service"
)

// Postgres — все репозитории поверх одного пула.
type Postgres struct {
	Tx       *TxManager
	Users    *UserRepository
	Chats    *ChatRepository
	Groups   *GroupRepository
	Messages *MessageRepository
	Contacts *ContactRepository
	Blocks   *BlockRepository
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{
		Tx:       NewTxManager(pool),
		Users:    NewUserRepository(pool),
		Chats:    NewChatRepository(pool),
		Groups:   NewGroupRepository(pool),
		Messages: NewMessageRepository(pool),
		Contacts: NewContactRepository(pool),
		Blocks:   NewBlockRepository(pool),
	}
}

// Stores возвращает набор зависимостей для service.New.
func (p *Postgres) Stores() service.Stores {
	return service.Stores{
		Tx:       p.Tx,
		Users:    p.Users,
		Chats:    p.Chats,
		Groups:   p.Groups,
		Messages: p.Messages,
		Contacts: p.Contacts,
		Blocks:   p.Blocks,
	}
}
