package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
)

const groupCols = `g.id, g.slug, g.owner_id, g.name, g.picture, g.description, g.created_at, g.updated_at`

type GroupRepository struct {
	base
}

func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{base{pool}}
}

func scanGroup(s interface{ Scan(dest ...any) error }, g *model.Group) error {
	return s.Scan(&g.ID, &g.Slug, &g.OwnerID, &g.Name, &g.Picture, &g.Description, &g.CreatedAt, &g.UpdatedAt)
}

func collectGroups(op string, rows pgx.Rows, err error) ([]model.Group, error) {
	if err != nil {
		return nil, wrap(op+" query", err)
	}
	defer rows.Close()
	out := make([]model.Group, 0, 8)
	for rows.Next() {
		var g model.Group
		if err := scanGroup(rows, &g); err != nil {
			return nil, wrap(op+" scan", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(op+" rows", err)
	}
	return out, nil
}

func (r *GroupRepository) Create(ctx context.Context, g *model.Group) error {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO groups (id, slug, owner_id, name, picture, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Slug, g.OwnerID, g.Name, g.Picture, g.Description, g.CreatedAt, g.UpdatedAt,
	)
	return wrap("groupRepo.Create", err)
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*model.Group, error) {
	defer logger.DeferLogDuration("group.GetByID", time.Now())()
	g := &model.Group{}
	if err := scanGroup(r.conn(ctx).QueryRow(ctx, `SELECT `+groupCols+` FROM groups g WHERE g.id = $1`, id), g); err != nil {
		return nil, wrap("groupRepo.GetByID", err)
	}
	return g, nil
}

func (r *GroupRepository) SlugTaken(ctx context.Context, slug, exceptID string) (bool, error) {
	defer logger.DeferLogDuration("group.SlugTaken", time.Now())()
	var taken bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM groups WHERE slug = $1 AND id <> $2)`, slug, exceptID,
	).Scan(&taken)
	if err != nil {
		return false, wrap("groupRepo.SlugTaken", err)
	}
	return taken, nil
}

func (r *GroupRepository) Update(ctx context.Context, g *model.Group) error {
	defer logger.DeferLogDuration("group.Update", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE groups SET slug = $2, name = $3, picture = $4, description = $5, updated_at = $6
		 WHERE id = $1`,
		g.ID, g.Slug, g.Name, g.Picture, g.Description, g.UpdatedAt,
	)
	if err != nil {
		return wrap("groupRepo.Update", err)
	}
	return affected(tag)
}

func (r *GroupRepository) SetOwner(ctx context.Context, groupID, ownerID string) error {
	defer logger.DeferLogDuration("group.SetOwner", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE groups SET owner_id = $2, updated_at = NOW() WHERE id = $1`, groupID, ownerID)
	if err != nil {
		return wrap("groupRepo.SetOwner", err)
	}
	return affected(tag)
}

// Delete удаляет группу; членства уходят каскадом.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("group.Delete", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return wrap("groupRepo.Delete", err)
	}
	return affected(tag)
}

func (r *GroupRepository) ListForMember(ctx context.Context, userID string) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.ListForMember", time.Now())()
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+groupCols+` FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = $1
		 ORDER BY g.created_at DESC, g.id`, userID)
	return collectGroups("groupRepo.ListForMember", rows, err)
}

func (r *GroupRepository) SearchByName(ctx context.Context, query string) ([]model.Group, error) {
	defer logger.DeferLogDuration("group.SearchByName", time.Now())()
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+groupCols+` FROM groups g
		 WHERE g.name ILIKE '%' || $1 || '%'
		 ORDER BY g.name, g.id`, escapeLike(query))
	return collectGroups("groupRepo.SearchByName", rows, err)
}

func (r *GroupRepository) AddMember(ctx context.Context, m *model.GroupMember) error {
	defer logger.DeferLogDuration("group.AddMember", time.Now())()
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, is_admin, joined_at) VALUES ($1, $2, $3, $4)`,
		m.GroupID, m.UserID, m.IsAdmin, m.JoinedAt,
	)
	return wrap("groupRepo.AddMember", err)
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	defer logger.DeferLogDuration("group.RemoveMember", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return wrap("groupRepo.RemoveMember", err)
	}
	return affected(tag)
}

func (r *GroupRepository) GetMember(ctx context.Context, groupID, userID string) (*model.GroupMember, error) {
	defer logger.DeferLogDuration("group.GetMember", time.Now())()
	m := &model.GroupMember{}
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT group_id, user_id, is_admin, joined_at FROM group_members WHERE group_id = $1 AND user_id = $2`,
		groupID, userID,
	).Scan(&m.GroupID, &m.UserID, &m.IsAdmin, &m.JoinedAt)
	if err != nil {
		return nil, wrap("groupRepo.GetMember", err)
	}
	return m, nil
}

func (r *GroupRepository) SetAdmin(ctx context.Context, groupID, userID string, isAdmin bool) error {
	defer logger.DeferLogDuration("group.SetAdmin", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE group_members SET is_admin = $3 WHERE group_id = $1 AND user_id = $2`, groupID, userID, isAdmin)
	if err != nil {
		return wrap("groupRepo.SetAdmin", err)
	}
	return affected(tag)
}

func (r *GroupRepository) ListMembers(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	defer logger.DeferLogDuration("group.ListMembers", time.Now())()
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT group_id, user_id, is_admin, joined_at FROM group_members
		 WHERE group_id = $1 ORDER BY joined_at, user_id`, groupID)
	if err != nil {
		return nil, wrap("groupRepo.ListMembers query", err)
	}
	defer rows.Close()
	out := make([]model.GroupMember, 0, 8)
	for rows.Next() {
		var m model.GroupMember
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.IsAdmin, &m.JoinedAt); err != nil {
			return nil, wrap("groupRepo.ListMembers scan", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("groupRepo.ListMembers rows", err)
	}
	return out, nil
}

func (r *GroupRepository) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	defer logger.DeferLogDuration("group.MemberIDs", time.Now())()
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY joined_at, user_id`, groupID)
	if err != nil {
		return nil, wrap("groupRepo.MemberIDs query", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrap("groupRepo.MemberIDs", err)
	}
	return ids, nil
}
