package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
)

const userCols = `id, phone, first_name, last_name, username, bio, avatar_url, created_at`

type UserRepository struct {
	base
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{base{pool}}
}

// scanUser сканирует строку в model.User (порядок соответствует userCols).
func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Phone, &u.FirstName, &u.LastName, &u.Username, &u.Bio, &u.AvatarURL, &u.CreatedAt)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	if err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id), u); err != nil {
		return nil, wrap("userRepo.GetByID", err)
	}
	return u, nil
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByPhone", time.Now())()
	u := &model.User{}
	if err := scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE phone = $1 AND phone <> ''`, phone), u); err != nil {
		return nil, wrap("userRepo.GetByPhone", err)
	}
	return u, nil
}

func (r *UserRepository) GetMany(ctx context.Context, ids []string) (map[string]*model.User, error) {
	defer logger.DeferLogDuration("user.GetMany", time.Now())()
	out := make(map[string]*model.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, wrap("userRepo.GetMany query", err)
	}
	defer rows.Close()
	for rows.Next() {
		u := &model.User{}
		if err := scanUser(rows, u); err != nil {
			return nil, wrap("userRepo.GetMany scan", err)
		}
		out[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("userRepo.GetMany rows", err)
	}
	return out, nil
}

// Upsert синхронизирует профиль из токена провайдера; created_at не перезаписывается.
func (r *UserRepository) Upsert(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Upsert", time.Now())()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO users (id, phone, first_name, last_name, username, bio, avatar_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   phone = EXCLUDED.phone,
		   first_name = EXCLUDED.first_name,
		   last_name = EXCLUDED.last_name,
		   username = EXCLUDED.username,
		   bio = EXCLUDED.bio,
		   avatar_url = EXCLUDED.avatar_url`,
		u.ID, u.Phone, u.FirstName, u.LastName, u.Username, u.Bio, u.AvatarURL, u.CreatedAt,
	)
	return wrap("userRepo.Upsert", err)
}
