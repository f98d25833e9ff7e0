package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
)

const contactCols = `user_id, contacted_user_id, first_name, last_name, created_at, updated_at`

type ContactRepository struct {
	base
}

func NewContactRepository(pool *pgxpool.Pool) *ContactRepository {
	return &ContactRepository{base{pool}}
}

func scanContact(s interface{ Scan(dest ...any) error }, c *model.Contact) error {
	return s.Scan(&c.UserID, &c.ContactedUserID, &c.FirstName, &c.LastName, &c.CreatedAt, &c.UpdatedAt)
}

func (r *ContactRepository) List(ctx context.Context, userID string) ([]model.Contact, error) {
	defer logger.DeferLogDuration("contact.List", time.Now())()
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE user_id = $1
		 ORDER BY first_name, last_name, contacted_user_id`, userID)
	if err != nil {
		return nil, wrap("contactRepo.List query", err)
	}
	defer rows.Close()
	out := make([]model.Contact, 0, 16)
	for rows.Next() {
		var c model.Contact
		if err := scanContact(rows, &c); err != nil {
			return nil, wrap("contactRepo.List scan", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("contactRepo.List rows", err)
	}
	return out, nil
}

func (r *ContactRepository) Get(ctx context.Context, userID, contactedUserID string) (*model.Contact, error) {
	defer logger.DeferLogDuration("contact.Get", time.Now())()
	c := &model.Contact{}
	err := scanContact(r.conn(ctx).QueryRow(ctx,
		`SELECT `+contactCols+` FROM contacts WHERE user_id = $1 AND contacted_user_id = $2`,
		userID, contactedUserID), c)
	if err != nil {
		return nil, wrap("contactRepo.Get", err)
	}
	return c, nil
}

func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	defer logger.DeferLogDuration("contact.Create", time.Now())()
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO contacts (`+contactCols+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.UserID, c.ContactedUserID, c.FirstName, c.LastName, c.CreatedAt, c.UpdatedAt,
	)
	return wrap("contactRepo.Create", err)
}

func (r *ContactRepository) Update(ctx context.Context, c *model.Contact) error {
	defer logger.DeferLogDuration("contact.Update", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE contacts SET first_name = $3, last_name = $4, updated_at = $5
		 WHERE user_id = $1 AND contacted_user_id = $2`,
		c.UserID, c.ContactedUserID, c.FirstName, c.LastName, c.UpdatedAt,
	)
	if err != nil {
		return wrap("contactRepo.Update", err)
	}
	return affected(tag)
}

func (r *ContactRepository) Delete(ctx context.Context, userID, contactedUserID string) error {
	defer logger.DeferLogDuration("contact.Delete", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM contacts WHERE user_id = $1 AND contacted_user_id = $2`, userID, contactedUserID)
	if err != nil {
		return wrap("contactRepo.Delete", err)
	}
	return affected(tag)
}

type BlockRepository struct {
	base
}

func NewBlockRepository(pool *pgxpool.Pool) *BlockRepository {
	return &BlockRepository{base{pool}}
}

func (r *BlockRepository) Exists(ctx context.Context, userID, blockedUserID string) (bool, error) {
	defer logger.DeferLogDuration("block.Exists", time.Now())()
	var ok bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blocks WHERE user_id = $1 AND blocked_user_id = $2)`,
		userID, blockedUserID,
	).Scan(&ok)
	if err != nil {
		return false, wrap("blockRepo.Exists", err)
	}
	return ok, nil
}

func (r *BlockRepository) Create(ctx context.Context, b *model.Block) error {
	defer logger.DeferLogDuration("block.Create", time.Now())()
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO blocks (user_id, blocked_user_id, blocked_at) VALUES ($1, $2, $3)`,
		b.UserID, b.BlockedUserID, b.BlockedAt,
	)
	return wrap("blockRepo.Create", err)
}

func (r *BlockRepository) Delete(ctx context.Context, userID, blockedUserID string) error {
	defer logger.DeferLogDuration("block.Delete", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM blocks WHERE user_id = $1 AND blocked_user_id = $2`, userID, blockedUserID)
	if err != nil {
		return wrap("blockRepo.Delete", err)
	}
	return affected(tag)
}

func (r *BlockRepository) List(ctx context.Context, userID string) ([]model.Block, error) {
	defer logger.DeferLogDuration("block.List", time.Now())()
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT user_id, blocked_user_id, blocked_at FROM blocks WHERE user_id = $1
		 ORDER BY blocked_at DESC, blocked_user_id`, userID)
	if err != nil {
		return nil, wrap("blockRepo.List query", err)
	}
	defer rows.Close()
	out := make([]model.Block, 0, 8)
	for rows.Next() {
		var b model.Block
		if err := rows.Scan(&b.UserID, &b.BlockedUserID, &b.BlockedAt); err != nil {
			return nil, wrap("blockRepo.List scan", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("blockRepo.List rows", err)
	}
	return out, nil
}
