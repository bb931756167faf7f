package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/intranet/realtime-system/internal/core/domain"
	"github.com/intranet/realtime-system/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stubs shared by the service tests
// ---------------------------------------------------------------------------

type stubUserRepo struct {
	users    map[string]*domain.User
	countErr error
	findErr  error
}

func newStubUserRepo(users ...*domain.User) *stubUserRepo {
	r := &stubUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *stubUserRepo) Upsert(_ context.Context, u *domain.User) (*domain.User, error) {
	existing, ok := r.users[u.ID]
	if !ok {
		clone := *u
		r.users[u.ID] = &clone
		out := clone
		return &out, nil
	}
	existing.Email = u.Email
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	if u.ImageURL != "" {
		existing.ImageURL = u.ImageURL
	}
	existing.UpdatedAt = u.UpdatedAt
	out := *existing
	return &out, nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *stubUserRepo) FindByIDs(_ context.Context, ids []string) ([]*domain.User, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []*domain.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			clone := *u
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *stubUserRepo) CountExisting(_ context.Context, ids []string) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	var n int64
	for _, id := range ids {
		if _, ok := r.users[id]; ok {
			n++
		}
	}
	return n, nil
}

func (r *stubUserRepo) Search(_ context.Context, _ string, limit int) ([]*domain.User, error) {
	var out []*domain.User
	for _, u := range r.users {
		if len(out) == limit {
			break
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *stubUserRepo) Update(_ context.Context, id string, p ports.UserPatch) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	if p.FirstName != nil {
		u.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		u.LastName = *p.LastName
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Active != nil {
		u.Active = *p.Active
	}
	clone := *u
	return &clone, nil
}

type stubGroupRepo struct {
	groups    map[string]*domain.Group
	members   map[string]map[string]domain.Membership
	createErr error
	memberErr error
}

func newStubGroupRepo() *stubGroupRepo {
	return &stubGroupRepo{
		groups:  make(map[string]*domain.Group),
		members: make(map[string]map[string]domain.Membership),
	}
}

// seed adds a group with the given admin and members.
func (r *stubGroupRepo) seed(groupID, adminID string, memberIDs ...string) {
	r.groups[groupID] = &domain.Group{ID: groupID, Name: groupID, CreatedBy: adminID}
	r.members[groupID] = map[string]domain.Membership{
		adminID: {GroupID: groupID, UserID: adminID, Role: domain.GroupRoleAdmin},
	}
	for _, id := range memberIDs {
		r.members[groupID][id] = domain.Membership{GroupID: groupID, UserID: id, Role: domain.GroupRoleMember}
	}
}

func (r *stubGroupRepo) Create(_ context.Context, g *domain.Group, ms []domain.Membership) error {
	if r.createErr != nil {
		return r.createErr
	}
	clone := *g
	r.groups[g.ID] = &clone
	r.members[g.ID] = make(map[string]domain.Membership)
	for _, m := range ms {
		r.members[g.ID][m.UserID] = m
	}
	return nil
}

func (r *stubGroupRepo) FindByID(_ context.Context, id string) (*domain.Group, error) {
	g, ok := r.groups[id]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	clone := *g
	return &clone, nil
}

func (r *stubGroupRepo) ListForUser(_ context.Context, userID string) ([]*domain.Group, error) {
	var out []*domain.Group
	for id, ms := range r.members {
		if _, ok := ms[userID]; ok {
			out = append(out, r.groups[id])
		}
	}
	return out, nil
}

func (r *stubGroupRepo) Members(_ context.Context, groupID string) ([]domain.Membership, error) {
	var out []domain.Membership
	for _, m := range r.members[groupID] {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *stubGroupRepo) FindMembership(_ context.Context, groupID, userID string) (*domain.Membership, error) {
	m, ok := r.members[groupID][userID]
	if !ok {
		return nil, domain.ErrNotMember
	}
	return &m, nil
}

func (r *stubGroupRepo) IsMember(_ context.Context, groupID, userID string) (bool, error) {
	if r.memberErr != nil {
		return false, r.memberErr
	}
	_, ok := r.members[groupID][userID]
	return ok, nil
}

func (r *stubGroupRepo) AddMember(_ context.Context, m domain.Membership) error {
	set, ok := r.members[m.GroupID]
	if !ok {
		set = make(map[string]domain.Membership)
		r.members[m.GroupID] = set
	}
	if _, ok := set[m.UserID]; ok {
		return domain.ErrAlreadyMember
	}
	set[m.UserID] = m
	return nil
}

func (r *stubGroupRepo) RemoveMember(_ context.Context, groupID, userID string) error {
	if _, ok := r.members[groupID][userID]; !ok {
		return domain.ErrNotMember
	}
	delete(r.members[groupID], userID)
	return nil
}

type stubMessageRepo struct {
	created   []*domain.Message
	createErr error
}

func (r *stubMessageRepo) Create(_ context.Context, m *domain.Message) error {
	if r.createErr != nil {
		return r.createErr
	}
	clone := *m
	r.created = append(r.created, &clone)
	return nil
}

// ListByRoom mirrors the Mongo query: newest first on (created_at, id),
// strictly before the cursor.
func (r *stubMessageRepo) ListByRoom(_ context.Context, roomID string, before ports.MessageCursor, limit int) ([]*domain.Message, error) {
	var out []*domain.Message
	for _, m := range r.created {
		if m.RoomID == roomID && before.After(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stubPresence struct {
	entries   map[string]domain.PresenceEntry
	inRoomErr error
}

func newStubPresence() *stubPresence {
	return &stubPresence{entries: make(map[string]domain.PresenceEntry)}
}

func (p *stubPresence) Join(_ context.Context, e domain.PresenceEntry) (*domain.PresenceEntry, error) {
	var prev *domain.PresenceEntry
	if old, ok := p.entries[e.ConnID]; ok {
		prev = &old
	}
	p.entries[e.ConnID] = e
	return prev, nil
}

func (p *stubPresence) Leave(_ context.Context, connID string) (*domain.PresenceEntry, error) {
	e, ok := p.entries[connID]
	if !ok {
		return nil, domain.ErrPresenceNotFound
	}
	delete(p.entries, connID)
	return &e, nil
}

func (p *stubPresence) Get(_ context.Context, connID string) (*domain.PresenceEntry, error) {
	e, ok := p.entries[connID]
	if !ok {
		return nil, domain.ErrPresenceNotFound
	}
	return &e, nil
}

func (p *stubPresence) Touch(_ context.Context, connID string) error {
	e, ok := p.entries[connID]
	if !ok {
		return domain.ErrPresenceNotFound
	}
	e.LastSeen = time.Now()
	p.entries[connID] = e
	return nil
}

func (p *stubPresence) InRoom(_ context.Context, roomID string) ([]domain.PresenceEntry, error) {
	if p.inRoomErr != nil {
		return nil, p.inRoomErr
	}
	var out []domain.PresenceEntry
	for _, e := range p.entries {
		if e.RoomID == roomID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out, nil
}

type sentEvent struct {
	target string // room, connection or user id
	except string
	evt    domain.Event
}

type stubBroadcaster struct {
	mu       sync.Mutex
	attached map[string]string
	room     []sentEvent
	conn     []sentEvent
	user     []sentEvent
}

func newStubBroadcaster() *stubBroadcaster {
	return &stubBroadcaster{attached: make(map[string]string)}
}

func (b *stubBroadcaster) Attach(connID, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attached[connID] = roomID
}

func (b *stubBroadcaster) Detach(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.attached, connID)
}

func (b *stubBroadcaster) SendToConn(_ context.Context, connID string, evt domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conn = append(b.conn, sentEvent{target: connID, evt: evt})
	return nil
}

func (b *stubBroadcaster) BroadcastToRoom(_ context.Context, roomID string, evt domain.Event, except string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.room = append(b.room, sentEvent{target: roomID, except: except, evt: evt})
	return nil
}

func (b *stubBroadcaster) SendToUser(_ context.Context, userID string, evt domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.user = append(b.user, sentEvent{target: userID, evt: evt})
	return nil
}

// roomEvents returns the room broadcasts with the given event name.
func (b *stubBroadcaster) roomEvents(name string) []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []sentEvent
	for _, s := range b.room {
		if s.evt.Name == name {
			out = append(out, s)
		}
	}
	return out
}

type stubFanout struct {
	jobs []ports.FanoutJob
	err  error
}

func (f *stubFanout) Schedule(_ context.Context, job ports.FanoutJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

type stubDedup struct {
	seen map[string]bool
	err  error
}

func (d *stubDedup) MarkIfNew(_ context.Context, key string, _ time.Duration) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *stubDedup) Forget(_ context.Context, key string) error {
	if d.err != nil {
		return d.err
	}
	delete(d.seen, key)
	return nil
}

type stubNotificationRepo struct {
	inserted  []*domain.Notification
	batchErr  error
	rowErrs   map[int]error
	listItems []*domain.Notification
	listTotal int64
	lastList  ports.NotificationFilter
	unread    int64
	missing   bool
}

func (r *stubNotificationRepo) InsertMany(_ context.Context, ns []*domain.Notification) ([]ports.InsertResult, error) {
	if r.batchErr != nil {
		return nil, r.batchErr
	}
	results := make([]ports.InsertResult, len(ns))
	for i, n := range ns {
		results[i].Index = i
		if err, ok := r.rowErrs[i]; ok {
			results[i].Err = err
			continue
		}
		clone := *n
		r.inserted = append(r.inserted, &clone)
	}
	return results, nil
}

func (r *stubNotificationRepo) List(_ context.Context, f ports.NotificationFilter) ([]*domain.Notification, int64, error) {
	r.lastList = f
	return r.listItems, r.listTotal, nil
}

func (r *stubNotificationRepo) CountUnread(_ context.Context, _ string) (int64, error) {
	return r.unread, nil
}

func (r *stubNotificationRepo) SetRead(_ context.Context, _, _ string, _ bool) error {
	if r.missing {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r *stubNotificationRepo) MarkAllRead(_ context.Context, _ string) (int64, error) {
	return r.unread, nil
}

func (r *stubNotificationRepo) Delete(_ context.Context, _, _ string) error {
	if r.missing {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func strPtr(s string) *string { return &s }

func newUser(id, first, last string) *domain.User {
	return &domain.User{ID: id, FirstName: first, LastName: last, Role: domain.RoleMember, Active: true}
}
