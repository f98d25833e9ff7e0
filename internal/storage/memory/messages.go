package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/convo/internal/model"
	"github.com/convo/internal/storage"
)

type Messages struct{ s *Store }

type seqMessage struct {
	seq int64
	msg model.Message
}

// inContainer — сообщения контейнера в порядке вставки.
func (st *state) inContainer(ref model.ContainerRef) []seqMessage {
	out := make([]seqMessage, 0, 16)
	for id, m := range st.messages {
		if m.Container == ref {
			out = append(out, seqMessage{seq: st.seq[id], msg: m})
		}
	}
	slices.SortFunc(out, func(x, y seqMessage) int { return cmp.Compare(x.seq, y.seq) })
	return out
}

func (r *Messages) Create(ctx context.Context, m *model.Message) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.messages[m.ID]; ok {
			return storage.ErrConflict
		}
		switch m.Container.Kind {
		case model.ContainerChat:
			if _, ok := st.chats[m.Container.ID]; !ok {
				return storage.ErrNotFound
			}
		case model.ContainerGroup:
			if _, ok := st.groups[m.Container.ID]; !ok {
				return storage.ErrNotFound
			}
		}
		st.nextSeq++
		st.seq[m.ID] = st.nextSeq
		cp := *m
		cp.Sender = nil
		st.messages[m.ID] = cp
		return nil
	})
}

func (r *Messages) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var m model.Message
	var ok bool
	r.s.read(ctx, func(st *state) { m, ok = st.messages[id] })
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &m, nil
}

// UpdateContent меняет текст и ставит is_edited; статус сохраняется.
func (r *Messages) UpdateContent(ctx context.Context, id, content string) (*model.Message, error) {
	var out model.Message
	err := r.s.write(ctx, func(st *state) error {
		m, ok := st.messages[id]
		if !ok {
			return storage.ErrNotFound
		}
		m.Content = content
		m.IsEdited = true
		m.UpdatedAt = r.s.now()
		st.messages[id] = m
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (st *state) dropReceipts(messageID string) {
	for k := range st.receipts {
		if k.message == messageID {
			delete(st.receipts, k)
		}
	}
}

func (r *Messages) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.messages[id]; !ok {
			return storage.ErrNotFound
		}
		delete(st.messages, id)
		delete(st.seq, id)
		st.dropReceipts(id)
		return nil
	})
}

func (r *Messages) DeleteByContainer(ctx context.Context, ref model.ContainerRef) error {
	return r.s.write(ctx, func(st *state) error {
		for id, m := range st.messages {
			if m.Container != ref {
				continue
			}
			delete(st.messages, id)
			delete(st.seq, id)
			st.dropReceipts(id)
		}
		return nil
	})
}

// List отдаёт страницу истории: offset отсчитывается от самых новых, результат по возрастанию.
func (r *Messages) List(ctx context.Context, ref model.ContainerRef, f model.MessageFilter) ([]model.Message, error) {
	var all []seqMessage
	r.s.read(ctx, func(st *state) { all = st.inContainer(ref) })
	if f.VisibleOnly {
		all = slices.DeleteFunc(all, func(x seqMessage) bool { return !x.msg.Status.Visible() })
	}
	end := len(all) - max(f.Offset, 0)
	if end < 0 {
		end = 0
	}
	start := 0
	if f.Limit > 0 {
		start = max(end-f.Limit, 0)
	}
	out := make([]model.Message, 0, end-start)
	for _, x := range all[start:end] {
		out = append(out, x.msg)
	}
	return out, nil
}

// Latest — последнее видимое сообщение контейнера.
func (r *Messages) Latest(ctx context.Context, ref model.ContainerRef) (*model.Message, error) {
	var all []seqMessage
	r.s.read(ctx, func(st *state) { all = st.inContainer(ref) })
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].msg.Status.Visible() {
			m := all[i].msg
			return &m, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (r *Messages) MarkChatRead(ctx context.Context, chatID, authorID string) (int64, error) {
	var n int64
	err := r.s.write(ctx, func(st *state) error {
		now := r.s.now()
		ref := model.ChatRef(chatID)
		for id, m := range st.messages {
			if m.Container != ref || m.SenderID != authorID || m.Status == model.MessageStatusRead {
				continue
			}
			m.Status = model.MessageStatusRead
			m.UpdatedAt = now
			st.messages[id] = m
			n++
		}
		return nil
	})
	return n, err
}

func (r *Messages) MarkGroupRead(ctx context.Context, groupID, readerID string) (int64, error) {
	var n int64
	err := r.s.write(ctx, func(st *state) error {
		now := r.s.now()
		ref := model.GroupRef(groupID)
		for id, m := range st.messages {
			if m.Container != ref || m.SenderID == readerID {
				continue
			}
			k := receiptKey{id, readerID}
			if _, ok := st.receipts[k]; ok {
				continue
			}
			st.receipts[k] = model.ReadReceipt{MessageID: id, MemberID: readerID, ReadAt: now}
			n++
		}
		return nil
	})
	return n, err
}

func (r *Messages) UnreadCount(ctx context.Context, ref model.ContainerRef, readerID string) (int, error) {
	n := 0
	r.s.read(ctx, func(st *state) {
		for id, m := range st.messages {
			if m.Container != ref || m.SenderID == readerID {
				continue
			}
			switch ref.Kind {
			case model.ContainerChat:
				// Непрочитанное в чате — всё, что MarkChatRead переведёт в read.
				if m.Status != model.MessageStatusRead {
					n++
				}
			case model.ContainerGroup:
				if !m.Status.Visible() {
					continue
				}
				if _, ok := st.receipts[receiptKey{id, readerID}]; !ok {
					n++
				}
			}
		}
	})
	return n, nil
}

func (r *Messages) Readers(ctx context.Context, messageID string) ([]model.ReadReceipt, error) {
	out := make([]model.ReadReceipt, 0, 4)
	r.s.read(ctx, func(st *state) {
		for k, rc := range st.receipts {
			if k.message == messageID {
				out = append(out, rc)
			}
		}
	})
	slices.SortFunc(out, func(x, y model.ReadReceipt) int {
		if c := x.ReadAt.Compare(y.ReadAt); c != 0 {
			return c
		}
		return strings.Compare(x.MemberID, y.MemberID)
	})
	return out, nil
}
