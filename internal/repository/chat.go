package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
)

const chatCols = `c.id, c.sender_id, c.receiver_id, c.created_at, c.updated_at`

type ChatRepository struct {
	base
}

func NewChatRepository(pool *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{base{pool}}
}

func scanChat(s interface{ Scan(dest ...any) error }, c *model.Chat) error {
	return s.Scan(&c.ID, &c.SenderID, &c.ReceiverID, &c.CreatedAt, &c.UpdatedAt)
}

func collectChats(op string, rows pgx.Rows, err error) ([]model.Chat, error) {
	if err != nil {
		return nil, wrap(op+" query", err)
	}
	defer rows.Close()
	out := make([]model.Chat, 0, 8)
	for rows.Next() {
		var c model.Chat
		if err := scanChat(rows, &c); err != nil {
			return nil, wrap(op+" scan", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op+" rows", err)
	}
	return out, nil
}

// Create вставляет чат; повтор для той же пары даёт ErrConflict (chats_pair_uniq).
func (r *ChatRepository) Create(ctx context.Context, c *model.Chat) error {
	defer logger.DeferLogDuration("chat.Create", time.Now())()
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO chats (id, sender_id, receiver_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.SenderID, c.ReceiverID, c.CreatedAt, c.UpdatedAt,
	)
	return wrap("chatRepo.Create", err)
}

func (r *ChatRepository) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.GetByID", time.Now())()
	c := &model.Chat{}
	if err := scanChat(r.conn(ctx).QueryRow(ctx, `SELECT `+chatCols+` FROM chats c WHERE c.id = $1`, id), c); err != nil {
		return nil, wrap("chatRepo.GetByID", err)
	}
	return c, nil
}

func (r *ChatRepository) FindByPair(ctx context.Context, a, b string) (*model.Chat, error) {
	defer logger.DeferLogDuration("chat.FindByPair", time.Now())()
	c := &model.Chat{}
	err := scanChat(r.conn(ctx).QueryRow(ctx,
		`SELECT `+chatCols+` FROM chats c
		 WHERE LEAST(c.sender_id, c.receiver_id) = LEAST($1::text, $2::text)
		   AND GREATEST(c.sender_id, c.receiver_id) = GREATEST($1::text, $2::text)`, a, b), c)
	if err != nil {
		return nil, wrap("chatRepo.FindByPair", err)
	}
	return c, nil
}

func (r *ChatRepository) ListForUser(ctx context.Context, userID string) ([]model.Chat, error) {
	defer logger.DeferLogDuration("chat.ListForUser", time.Now())()
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+chatCols+` FROM chats c
		 WHERE c.sender_id = $1 OR c.receiver_id = $1
		 ORDER BY c.created_at DESC, c.id`, userID)
	return collectChats("chatRepo.ListForUser", rows, err)
}

// SearchForUser ищет чаты userID по имени собеседника (без учёта регистра).
func (r *ChatRepository) SearchForUser(ctx context.Context, userID, query string) ([]model.Chat, error) {
	defer logger.DeferLogDuration("chat.SearchForUser", time.Now())()
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+chatCols+` FROM chats c
		 JOIN users u ON u.id = CASE WHEN c.sender_id = $1 THEN c.receiver_id ELSE c.sender_id END
		 WHERE (c.sender_id = $1 OR c.receiver_id = $1)
		   AND TRIM(u.first_name || ' ' || u.last_name) ILIKE '%' || $2 || '%'
		 ORDER BY c.created_at DESC, c.id`, userID, escapeLike(query))
	return collectChats("chatRepo.SearchForUser", rows, err)
}

func (r *ChatRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("chat.Delete", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	if err != nil {
		return wrap("chatRepo.Delete", err)
	}
	return affected(tag)
}
