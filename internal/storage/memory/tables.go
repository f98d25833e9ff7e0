package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/convo/internal/model"
	"github.com/convo/internal/storage"
)

type Users struct{ s *Store }

func (r *Users) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	var ok bool
	r.s.read(ctx, func(st *state) { u, ok = st.users[id] })
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &u, nil
}

func (r *Users) GetByPhone(ctx context.Context, phone string) (*model.User, error) {
	var found *model.User
	r.s.read(ctx, func(st *state) {
		for _, u := range st.users {
			if u.Phone == phone {
				found = &u
				return
			}
		}
	})
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func (r *Users) GetMany(ctx context.Context, ids []string) (map[string]*model.User, error) {
	out := make(map[string]*model.User, len(ids))
	r.s.read(ctx, func(st *state) {
		for _, id := range ids {
			if u, ok := st.users[id]; ok {
				out[id] = &u
			}
		}
	})
	return out, nil
}

// Upsert создаёт или обновляет профиль; телефон уникален.
func (r *Users) Upsert(ctx context.Context, u *model.User) error {
	return r.s.write(ctx, func(st *state) error {
		for _, other := range st.users {
			if other.ID != u.ID && u.Phone != "" && other.Phone == u.Phone {
				return storage.ErrConflict
			}
		}
		cur, ok := st.users[u.ID]
		if ok && u.CreatedAt.IsZero() {
			u.CreatedAt = cur.CreatedAt
		}
		if u.CreatedAt.IsZero() {
			u.CreatedAt = r.s.now()
		}
		st.users[u.ID] = *u
		return nil
	})
}

type Chats struct{ s *Store }

func (r *Chats) Create(ctx context.Context, c *model.Chat) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.chats[c.ID]; ok {
			return storage.ErrConflict
		}
		a, b := model.PairKey(c.SenderID, c.ReceiverID)
		for _, other := range st.chats {
			oa, ob := model.PairKey(other.SenderID, other.ReceiverID)
			if oa == a && ob == b {
				return storage.ErrConflict
			}
		}
		st.chats[c.ID] = *c
		return nil
	})
}

func (r *Chats) GetByID(ctx context.Context, id string) (*model.Chat, error) {
	var c model.Chat
	var ok bool
	r.s.read(ctx, func(st *state) { c, ok = st.chats[id] })
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (r *Chats) FindByPair(ctx context.Context, x, y string) (*model.Chat, error) {
	a, b := model.PairKey(x, y)
	var found *model.Chat
	r.s.read(ctx, func(st *state) {
		for _, c := range st.chats {
			ca, cb := model.PairKey(c.SenderID, c.ReceiverID)
			if ca == a && cb == b {
				found = &c
				return
			}
		}
	})
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func sortChats(list []model.Chat) {
	slices.SortFunc(list, func(x, y model.Chat) int {
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
}

func (r *Chats) ListForUser(ctx context.Context, userID string) ([]model.Chat, error) {
	out := make([]model.Chat, 0, 8)
	r.s.read(ctx, func(st *state) {
		for _, c := range st.chats {
			if c.IsParticipant(userID) {
				out = append(out, c)
			}
		}
	})
	sortChats(out)
	return out, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (r *Chats) SearchForUser(ctx context.Context, userID, query string) ([]model.Chat, error) {
	out := make([]model.Chat, 0, 8)
	r.s.read(ctx, func(st *state) {
		for _, c := range st.chats {
			if !c.IsParticipant(userID) {
				continue
			}
			other, ok := st.users[c.OtherParticipant(userID)]
			if ok && containsFold(other.FullName(), query) {
				out = append(out, c)
			}
		}
	})
	sortChats(out)
	return out, nil
}

func (r *Chats) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.chats[id]; !ok {
			return storage.ErrNotFound
		}
		delete(st.chats, id)
		return nil
	})
}

type Groups struct{ s *Store }

func (r *Groups) Create(ctx context.Context, g *model.Group) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.groups[g.ID]; ok {
			return storage.ErrConflict
		}
		for _, other := range st.groups {
			if other.Slug == g.Slug {
				return storage.ErrConflict
			}
		}
		st.groups[g.ID] = *g
		return nil
	})
}

func (r *Groups) GetByID(ctx context.Context, id string) (*model.Group, error) {
	var g model.Group
	var ok bool
	r.s.read(ctx, func(st *state) { g, ok = st.groups[id] })
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &g, nil
}

func (r *Groups) SlugTaken(ctx context.Context, slug, exceptID string) (bool, error) {
	taken := false
	r.s.read(ctx, func(st *state) {
		for _, g := range st.groups {
			if g.Slug == slug && g.ID != exceptID {
				taken = true
				return
			}
		}
	})
	return taken, nil
}

func (r *Groups) Update(ctx context.Context, g *model.Group) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.groups[g.ID]; !ok {
			return storage.ErrNotFound
		}
		for _, other := range st.groups {
			if other.ID != g.ID && other.Slug == g.Slug {
				return storage.ErrConflict
			}
		}
		st.groups[g.ID] = *g
		return nil
	})
}

func (r *Groups) SetOwner(ctx context.Context, groupID, ownerID string) error {
	return r.s.write(ctx, func(st *state) error {
		g, ok := st.groups[groupID]
		if !ok {
			return storage.ErrNotFound
		}
		g.OwnerID = ownerID
		g.UpdatedAt = r.s.now()
		st.groups[groupID] = g
		return nil
	})
}

func (r *Groups) Delete(ctx context.Context, id string) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.groups[id]; !ok {
			return storage.ErrNotFound
		}
		delete(st.groups, id)
		for k := range st.members {
			if k.group == id {
				delete(st.members, k)
			}
		}
		return nil
	})
}

func sortGroups(list []model.Group) {
	slices.SortFunc(list, func(x, y model.Group) int {
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
}

func (r *Groups) ListForMember(ctx context.Context, userID string) ([]model.Group, error) {
	out := make([]model.Group, 0, 8)
	r.s.read(ctx, func(st *state) {
		for k := range st.members {
			if k.user != userID {
				continue
			}
			if g, ok := st.groups[k.group]; ok {
				out = append(out, g)
			}
		}
	})
	sortGroups(out)
	return out, nil
}

func (r *Groups) SearchByName(ctx context.Context, query string) ([]model.Group, error) {
	out := make([]model.Group, 0, 8)
	r.s.read(ctx, func(st *state) {
		for _, g := range st.groups {
			if containsFold(g.Name, query) {
				out = append(out, g)
			}
		}
	})
	slices.SortFunc(out, func(x, y model.Group) int {
		if c := strings.Compare(x.Name, y.Name); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return out, nil
}

func (r *Groups) AddMember(ctx context.Context, m *model.GroupMember) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.groups[m.GroupID]; !ok {
			return storage.ErrNotFound
		}
		k := memberKey{m.GroupID, m.UserID}
		if _, ok := st.members[k]; ok {
			return storage.ErrConflict
		}
		st.members[k] = *m
		return nil
	})
}

func (r *Groups) RemoveMember(ctx context.Context, groupID, userID string) error {
	return r.s.write(ctx, func(st *state) error {
		k := memberKey{groupID, userID}
		if _, ok := st.members[k]; !ok {
			return storage.ErrNotFound
		}
		delete(st.members, k)
		return nil
	})
}

func (r *Groups) GetMember(ctx context.Context, groupID, userID string) (*model.GroupMember, error) {
	var m model.GroupMember
	var ok bool
	r.s.read(ctx, func(st *state) { m, ok = st.members[memberKey{groupID, userID}] })
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &m, nil
}

func (r *Groups) SetAdmin(ctx context.Context, groupID, userID string, isAdmin bool) error {
	return r.s.write(ctx, func(st *state) error {
		k := memberKey{groupID, userID}
		m, ok := st.members[k]
		if !ok {
			return storage.ErrNotFound
		}
		m.IsAdmin = isAdmin
		st.members[k] = m
		return nil
	})
}

func (r *Groups) ListMembers(ctx context.Context, groupID string) ([]model.GroupMember, error) {
	out := make([]model.GroupMember, 0, 8)
	r.s.read(ctx, func(st *state) {
		for k, m := range st.members {
			if k.group == groupID {
				out = append(out, m)
			}
		}
	})
	slices.SortFunc(out, func(x, y model.GroupMember) int {
		if c := x.JoinedAt.Compare(y.JoinedAt); c != 0 {
			return c
		}
		return strings.Compare(x.UserID, y.UserID)
	})
	return out, nil
}

func (r *Groups) MemberIDs(ctx context.Context, groupID string) ([]string, error) {
	members, err := r.ListMembers(ctx, groupID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

type Contacts struct{ s *Store }

func (r *Contacts) List(ctx context.Context, userID string) ([]model.Contact, error) {
	out := make([]model.Contact, 0, 8)
	r.s.read(ctx, func(st *state) {
		for k, c := range st.contacts {
			if k.a == userID {
				out = append(out, c)
			}
		}
	})
	slices.SortFunc(out, func(x, y model.Contact) int {
		if c := strings.Compare(x.FirstName, y.FirstName); c != 0 {
			return c
		}
		if c := strings.Compare(x.LastName, y.LastName); c != 0 {
			return c
		}
		return strings.Compare(x.ContactedUserID, y.ContactedUserID)
	})
	return out, nil
}

func (r *Contacts) Get(ctx context.Context, userID, contactedUserID string) (*model.Contact, error) {
	var c model.Contact
	var ok bool
	r.s.read(ctx, func(st *state) { c, ok = st.contacts[pairKey{userID, contactedUserID}] })
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (r *Contacts) Create(ctx context.Context, c *model.Contact) error {
	return r.s.write(ctx, func(st *state) error {
		k := pairKey{c.UserID, c.ContactedUserID}
		if _, ok := st.contacts[k]; ok {
			return storage.ErrConflict
		}
		st.contacts[k] = *c
		return nil
	})
}

func (r *Contacts) Update(ctx context.Context, c *model.Contact) error {
	return r.s.write(ctx, func(st *state) error {
		k := pairKey{c.UserID, c.ContactedUserID}
		if _, ok := st.contacts[k]; !ok {
			return storage.ErrNotFound
		}
		st.contacts[k] = *c
		return nil
	})
}

func (r *Contacts) Delete(ctx context.Context, userID, contactedUserID string) error {
	return r.s.write(ctx, func(st *state) error {
		k := pairKey{userID, contactedUserID}
		if _, ok := st.contacts[k]; !ok {
			return storage.ErrNotFound
		}
		delete(st.contacts, k)
		return nil
	})
}

type Blocks struct{ s *Store }

func (r *Blocks) Exists(ctx context.Context, userID, blockedUserID string) (bool, error) {
	var ok bool
	r.s.read(ctx, func(st *state) { _, ok = st.blocks[pairKey{userID, blockedUserID}] })
	return ok, nil
}

func (r *Blocks) Create(ctx context.Context, b *model.Block) error {
	return r.s.write(ctx, func(st *state) error {
		k := pairKey{b.UserID, b.BlockedUserID}
		if _, ok := st.blocks[k]; ok {
			return storage.ErrConflict
		}
		st.blocks[k] = *b
		return nil
	})
}

func (r *Blocks) Delete(ctx context.Context, userID, blockedUserID string) error {
	return r.s.write(ctx, func(st *state) error {
		k := pairKey{userID, blockedUserID}
		if _, ok := st.blocks[k]; !ok {
			return storage.ErrNotFound
		}
		delete(st.blocks, k)
		return nil
	})
}

func (r *Blocks) List(ctx context.Context, userID string) ([]model.Block, error) {
	out := make([]model.Block, 0, 4)
	r.s.read(ctx, func(st *state) {
		for k, b := range st.blocks {
			if k.a == userID {
				out = append(out, b)
			}
		}
	})
	slices.SortFunc(out, func(x, y model.Block) int {
		if c := y.BlockedAt.Compare(x.BlockedAt); c != 0 {
			return c
		}
		return strings.Compare(x.BlockedUserID, y.BlockedUserID)
	})
	return out, nil
}
