package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
)

const messageCols = `id, container_kind, container_id, sender_id, content, status, is_edited, sent_at, updated_at`

// visibleStatuses — статусы, которые показываются в истории.
const visibleStatuses = `('sent', 'read')`

type MessageRepository struct {
	base
}

func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{base{pool}}
}

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message) error {
	return s.Scan(&m.ID, &m.Container.Kind, &m.Container.ID, &m.SenderID, &m.Content, &m.Status, &m.IsEdited, &m.SentAt, &m.UpdatedAt)
}

func (r *MessageRepository) Create(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("message.Create", time.Now())()
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO messages (id, container_kind, container_id, sender_id, content, status, is_edited, sent_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.Container.Kind, m.Container.ID, m.SenderID, m.Content, m.Status, m.IsEdited, m.SentAt, m.UpdatedAt,
	)
	return wrap("messageRepo.Create", err)
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("message.GetByID", time.Now())()
	m := &model.Message{}
	if err := scanMessage(r.conn(ctx).QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id), m); err != nil {
		return nil, wrap("messageRepo.GetByID", err)
	}
	return m, nil
}

// UpdateContent меняет текст и ставит is_edited; статус не трогает.
func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string) (*model.Message, error) {
	defer logger.DeferLogDuration("message.UpdateContent", time.Now())()
	m := &model.Message{}
	err := scanMessage(r.conn(ctx).QueryRow(ctx,
		`UPDATE messages SET content = $2, is_edited = TRUE, updated_at = NOW()
		 WHERE id = $1 RETURNING `+messageCols, id, content), m)
	if err != nil {
		return nil, wrap("messageRepo.UpdateContent", err)
	}
	return m, nil
}

// Delete удаляет сообщение; отметки прочтения уходят каскадом.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("message.Delete", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return wrap("messageRepo.Delete", err)
	}
	return affected(tag)
}

func (r *MessageRepository) DeleteByContainer(ctx context.Context, ref model.ContainerRef) error {
	defer logger.DeferLogDuration("message.DeleteByContainer", time.Now())()
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM messages WHERE container_kind = $1 AND container_id = $2`, ref.Kind, ref.ID)
	return wrap("messageRepo.DeleteByContainer", err)
}

// List: страница отсчитывается от самых новых, строки возвращаются по возрастанию seq.
// Limit 0 — без ограничения.
func (r *MessageRepository) List(ctx context.Context, ref model.ContainerRef, f model.MessageFilter) ([]model.Message, error) {
	defer logger.DeferLogDuration("message.List", time.Now())()
	visible := ""
	if f.VisibleOnly {
		visible = ` AND status IN ` + visibleStatuses
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+messageCols+` FROM (
		   SELECT `+messageCols+`, seq FROM messages
		   WHERE container_kind = $1 AND container_id = $2`+visible+`
		   ORDER BY seq DESC
		   LIMIT NULLIF($3::int, 0) OFFSET $4
		 ) page ORDER BY seq`,
		ref.Kind, ref.ID, f.Limit, max(f.Offset, 0))
	if err != nil {
		return nil, wrap("messageRepo.List query", err)
	}
	defer rows.Close()
	out := make([]model.Message, 0, 32)
	for rows.Next() {
		var m model.Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, wrap("messageRepo.List scan", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("messageRepo.List rows", err)
	}
	return out, nil
}

func (r *MessageRepository) Latest(ctx context.Context, ref model.ContainerRef) (*model.Message, error) {
	defer logger.DeferLogDuration("message.Latest", time.Now())()
	m := &model.Message{}
	err := scanMessage(r.conn(ctx).QueryRow(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE container_kind = $1 AND container_id = $2 AND status IN `+visibleStatuses+`
		 ORDER BY seq DESC LIMIT 1`, ref.Kind, ref.ID), m)
	if err != nil {
		return nil, wrap("messageRepo.Latest", err)
	}
	return m, nil
}

func (r *MessageRepository) MarkChatRead(ctx context.Context, chatID, authorID string) (int64, error) {
	defer logger.DeferLogDuration("message.MarkChatRead", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE messages SET status = 'read', updated_at = NOW()
		 WHERE container_kind = 'chat' AND container_id = $1 AND sender_id = $2 AND status <> 'read'`,
		chatID, authorID)
	if err != nil {
		return 0, wrap("messageRepo.MarkChatRead", err)
	}
	return tag.RowsAffected(), nil
}

// MarkGroupRead вставляет отметки только для сообщений без отметки читателя;
// ON CONFLICT закрывает гонку двух одновременных вызовов.
func (r *MessageRepository) MarkGroupRead(ctx context.Context, groupID, readerID string) (int64, error) {
	defer logger.DeferLogDuration("message.MarkGroupRead", time.Now())()
	tag, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO message_reads (message_id, member_id, read_at)
		 SELECT m.id, $2, NOW() FROM messages m
		 WHERE m.container_kind = 'group' AND m.container_id = $1 AND m.sender_id <> $2
		   AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.member_id = $2)
		 ON CONFLICT (message_id, member_id) DO NOTHING`,
		groupID, readerID)
	if err != nil {
		return 0, wrap("messageRepo.MarkGroupRead", err)
	}
	return tag.RowsAffected(), nil
}

func (r *MessageRepository) UnreadCount(ctx context.Context, ref model.ContainerRef, readerID string) (int, error) {
	defer logger.DeferLogDuration("message.UnreadCount", time.Now())()
	q := `SELECT COUNT(*) FROM messages m
	      WHERE m.container_kind = 'chat' AND m.container_id = $1 AND m.sender_id <> $2 AND m.status <> 'read'`
	if ref.Kind == model.ContainerGroup {
		q = `SELECT COUNT(*) FROM messages m
		     WHERE m.container_kind = 'group' AND m.container_id = $1 AND m.sender_id <> $2
		       AND m.status IN ` + visibleStatuses + `
		       AND NOT EXISTS (SELECT 1 FROM message_reads mr WHERE mr.message_id = m.id AND mr.member_id = $2)`
	}
	var n int
	if err := r.conn(ctx).QueryRow(ctx, q, ref.ID, readerID).Scan(&n); err != nil {
		return 0, wrap("messageRepo.UnreadCount", err)
	}
	return n, nil
}

func (r *MessageRepository) Readers(ctx context.Context, messageID string) ([]model.ReadReceipt, error) {
	defer logger.DeferLogDuration("message.Readers", time.Now())()
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT message_id, member_id, read_at FROM message_reads
		 WHERE message_id = $1 ORDER BY read_at, member_id`, messageID)
	if err != nil {
		return nil, wrap("messageRepo.Readers query", err)
	}
	defer rows.Close()
	out := make([]model.ReadReceipt, 0, 8)
	for rows.Next() {
		var rc model.ReadReceipt
		if err := rows.Scan(&rc.MessageID, &rc.MemberID, &rc.ReadAt); err != nil {
			return nil, wrap("messageRepo.Readers scan", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("messageRepo.Readers rows", err)
	}
	return out, nil
}
