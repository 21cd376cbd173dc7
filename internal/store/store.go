// ABOUTME: Store interface and data types for dream-gateway persistence
// ABOUTME: Defines users, profiles, dreams, subscriptions, generation tasks and audit entries

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint would be violated
var ErrDuplicate = errors.New("already exists")

// ErrAlreadyCanceled is returned when cancelling a subscription that is not active
var ErrAlreadyCanceled = errors.New("subscription already canceled")

// Role and tier defaults for new users
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	TierFree  = "free"
)

// User is the identity record the auth layer resolves tokens against
type User struct {
	ID          string
	Email       string
	Role        string // "user", "admin", ...
	Tier        string // "free" or the plan of the active subscription
	IsPremium   bool
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Profile is the public-facing profile of a user. Owned by UserID.
type Profile struct {
	UserID    string
	Username  string
	Bio       string
	AvatarURL string
	IsPublic  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Dream is a journal entry plus any media generated from it. Owned by UserID.
type Dream struct {
	ID            string
	UserID        string
	Title         string
	Content       string
	Mood          string
	IsPublic      bool
	Transcript    string
	ComicImageURL string
	VideoURL      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Subscription status values
const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
)

// Subscription is a paid plan held by a user. Owned by UserID.
type Subscription struct {
	ID               string
	UserID           string
	Plan             string
	Status           string
	CurrentPeriodEnd *time.Time
	CanceledAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Generation task kinds and statuses
const (
	TaskKindVideo = "video"

	TaskPending   = "pending"
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// GenerationTask tracks an asynchronous job on an external generation service.
type GenerationTask struct {
	ID        string
	UserID    string
	DreamID   string
	Kind      string
	RemoteID  string // id assigned by the generation service
	Status    string
	ResultURL string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Done reports whether the task reached a terminal status.
func (t *GenerationTask) Done() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// UserStore defines user persistence
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	CountUsers(ctx context.Context) (int, error)
}

// ProfileStore defines profile persistence
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpsertProfile(ctx context.Context, p *Profile) error
}

// DreamStore defines dream persistence
type DreamStore interface {
	CreateDream(ctx context.Context, d *Dream) error
	GetDream(ctx context.Context, id string) (*Dream, error)
	ListDreamsByUser(ctx context.Context, userID string, limit int) ([]*Dream, error)
	ListPublicDreams(ctx context.Context, limit int) ([]*Dream, error)
	UpdateDream(ctx context.Context, d *Dream) error
	DeleteDream(ctx context.Context, id string) error
}

// SubscriptionStore defines subscription persistence
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, s *Subscription) error
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]*Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*Subscription, error)
}

// TaskStore defines generation task persistence
type TaskStore interface {
	CreateGenerationTask(ctx context.Context, t *GenerationTask) error
	GetGenerationTask(ctx context.Context, id string) (*GenerationTask, error)
	UpdateGenerationTask(ctx context.Context, t *GenerationTask) error
}

// AuditStore defines audit log persistence
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// Store is everything the gateway needs from the datastore
type Store interface {
	UserStore
	ProfileStore
	DreamStore
	SubscriptionStore
	TaskStore
	AuditStore

	// Ping checks the database is reachable
	Ping(ctx context.Context) error

	// Close releases any resources held by the store
	Close() error
}
