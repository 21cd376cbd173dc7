// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject datastore failures

package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu            sync.RWMutex
	users         map[string]*User
	profiles      map[string]*Profile
	dreams        map[string]*Dream
	subscriptions map[string]*Subscription
	tasks         map[string]*GenerationTask
	audit         []AuditEntry
	seq           int // insertion order for stable newest-first sorting
	order         map[string]int

	// Err, when non-nil, is returned by every method.
	Err error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:         make(map[string]*User),
		profiles:      make(map[string]*Profile),
		dreams:        make(map[string]*Dream),
		subscriptions: make(map[string]*Subscription),
		tasks:         make(map[string]*GenerationTask),
		order:         make(map[string]int),
	}
}

func (m *MockStore) fail(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.Err
}

func (m *MockStore) stamp(id string) {
	m.seq++
	m.order[id] = m.seq
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, u *User) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	if u.Tier == "" {
		u.Tier = TierFree
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = nowUTC()
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	if _, ok := m.users[u.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicate
		}
	}

	cp := *u
	m.users[u.ID] = &cp
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail retrieves a user by email.
func (m *MockStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// CountUsers returns the number of users.
func (m *MockStore) CountUsers(ctx context.Context) (int, error) {
	if err := m.fail(ctx); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// GetProfile retrieves a profile by owner.
func (m *MockStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// UpsertProfile stores or replaces a profile.
func (m *MockStore) UpsertProfile(ctx context.Context, p *Profile) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.Username != "" {
		for uid, existing := range m.profiles {
			if uid != p.UserID && existing.Username == p.Username {
				return ErrDuplicate
			}
		}
	}
	now := nowUTC()
	if existing, ok := m.profiles[p.UserID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	cp := *p
	m.profiles[p.UserID] = &cp
	return nil
}

// CreateDream stores a new dream.
func (m *MockStore) CreateDream(ctx context.Context, d *Dream) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = nowUTC()
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = d.CreatedAt
	}
	if _, ok := m.dreams[d.ID]; ok {
		return ErrDuplicate
	}

	cp := *d
	m.dreams[d.ID] = &cp
	m.stamp(d.ID)
	return nil
}

// GetDream retrieves a dream by ID.
func (m *MockStore) GetDream(ctx context.Context, id string) (*Dream, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.dreams[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// ListDreamsByUser returns a user's dreams, newest first.
func (m *MockStore) ListDreamsByUser(ctx context.Context, userID string, limit int) ([]*Dream, error) {
	return m.listDreams(ctx, limit, func(d *Dream) bool { return d.UserID == userID })
}

// ListPublicDreams returns public dreams, newest first.
func (m *MockStore) ListPublicDreams(ctx context.Context, limit int) ([]*Dream, error) {
	return m.listDreams(ctx, limit, func(d *Dream) bool { return d.IsPublic })
}

func (m *MockStore) listDreams(ctx context.Context, limit int, keep func(*Dream) bool) ([]*Dream, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*Dream{}
	for _, d := range m.dreams {
		if keep(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return m.order[out[i].ID] > m.order[out[j].ID]
	})
	if limit = normalizeListLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateDream replaces a dream's mutable fields.
func (m *MockStore) UpdateDream(ctx context.Context, d *Dream) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.dreams[d.ID]
	if !ok {
		return ErrNotFound
	}
	d.UserID = existing.UserID
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = nowUTC()
	cp := *d
	m.dreams[d.ID] = &cp
	return nil
}

// DeleteDream removes a dream.
func (m *MockStore) DeleteDream(ctx context.Context, id string) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.dreams[id]; !ok {
		return ErrNotFound
	}
	delete(m.dreams, id)
	return nil
}

// CreateSubscription stores an active subscription and updates the owner's tier.
func (m *MockStore) CreateSubscription(ctx context.Context, s *Subscription) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[s.UserID]
	if !ok {
		return ErrNotFound
	}
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = SubscriptionActive
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = nowUTC()
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = s.CreatedAt
	}

	cp := *s
	m.subscriptions[s.ID] = &cp
	m.stamp(s.ID)
	if s.Status == SubscriptionActive {
		u.Tier, u.IsPremium = s.Plan, true
	}
	return nil
}

// GetSubscription retrieves a subscription by ID.
func (m *MockStore) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// ListSubscriptionsByUser returns a user's subscriptions, newest first.
func (m *MockStore) ListSubscriptionsByUser(ctx context.Context, userID string) ([]*Subscription, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subscriptionsFor(userID), nil
}

func (m *MockStore) subscriptionsFor(userID string) []*Subscription {
	out := []*Subscription{}
	for _, s := range m.subscriptions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return m.order[out[i].ID] > m.order[out[j].ID] })
	return out
}

// CancelSubscription cancels an active subscription and recomputes the owner's tier.
func (m *MockStore) CancelSubscription(ctx context.Context, id string) (*Subscription, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.Status != SubscriptionActive {
		return nil, ErrAlreadyCanceled
	}
	now := nowUTC()
	s.Status = SubscriptionCanceled
	s.CanceledAt = &now
	s.UpdatedAt = now

	if u, ok := m.users[s.UserID]; ok {
		u.Tier, u.IsPremium = TierFree, false
		for _, other := range m.subscriptionsFor(s.UserID) {
			if other.Status == SubscriptionActive {
				u.Tier, u.IsPremium = other.Plan, true
				break
			}
		}
	}

	cp := *s
	return &cp, nil
}

// CreateGenerationTask stores a new task.
func (m *MockStore) CreateGenerationTask(ctx context.Context, t *GenerationTask) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = nowUTC()
	}
	t.UpdatedAt = t.CreatedAt

	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

// GetGenerationTask retrieves a task by ID.
func (m *MockStore) GetGenerationTask(ctx context.Context, id string) (*GenerationTask, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// UpdateGenerationTask stores a task's latest state.
func (m *MockStore) UpdateGenerationTask(ctx context.Context, t *GenerationTask) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = t.Status
	existing.ResultURL = t.ResultURL
	existing.Error = t.Error
	existing.UpdatedAt = nowUTC()
	t.UpdatedAt = existing.UpdatedAt
	return nil
}

// AppendAuditLog records an audit entry.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if err := m.fail(ctx); err != nil {
		return err
	}
	if err := e.validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	m.audit = append(m.audit, *e)
	return nil
}

// ListAuditLog returns recorded entries newest first, honoring every
// AuditFilter field.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	if err := m.fail(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []AuditEntry{}
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.ActorID != nil && e.ActorID != *f.ActorID {
			continue
		}
		if f.Action != nil && e.Action != *f.Action {
			continue
		}
		if f.TargetType != nil && e.TargetType != *f.TargetType {
			continue
		}
		if f.TargetID != nil && e.TargetID != *f.TargetID {
			continue
		}
		if f.Since != nil && e.Timestamp.Before(*f.Since) {
			continue
		}
		if f.Until != nil && e.Timestamp.After(*f.Until) {
			continue
		}
		out = append(out, e)
		if len(out) == normalizeAuditLimit(f.Limit) {
			break
		}
	}
	return out, nil
}

// Ping returns Err.
func (m *MockStore) Ping(ctx context.Context) error {
	return m.fail(ctx)
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
