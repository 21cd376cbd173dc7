// ABOUTME: Tests for SQLite store setup, migrations, dreams and generation tasks
// ABOUTME: Covers directory creation, idempotent reopen, dream CRUD and ordering

package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_ReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	first, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	u := createTestUser(t, first, "keep@example.com")
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep@example.com", got.Email)
}

func TestNewSQLiteStore_MigratesOldSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	// A database created before display_name and the media columns existed.
	db, err := sql.Open(DriverModernc, dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			role TEXT NOT NULL DEFAULT 'user',
			tier TEXT NOT NULL DEFAULT 'free',
			is_premium INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE dreams (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			mood TEXT NOT NULL DEFAULT '',
			is_public INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		INSERT INTO users (id, email, created_at, updated_at)
		VALUES ('old', 'old@example.com', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z');
	`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetUser(context.Background(), "old")
	require.NoError(t, err)
	assert.Equal(t, "", got.DisplayName)

	d := &Dream{UserID: "old", Title: "after migration", VideoURL: "https://cdn/v.mp4"}
	require.NoError(t, store.CreateDream(context.Background(), d))
}

func TestNewSQLiteStore_InMemory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	createTestUser(t, store, "mem@example.com")
	n, err := store.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPing(t *testing.T) {
	store := setupTestStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestDreamStore_CRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, store, "d@example.com")

	d := &Dream{UserID: u.ID, Title: "Flying", Content: "I was *flying*", Mood: "joy"}
	require.NoError(t, store.CreateDream(ctx, d))
	require.NotEmpty(t, d.ID)

	got, err := store.GetDream(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Flying", got.Title)
	assert.Equal(t, u.ID, got.UserID)
	assert.False(t, got.IsPublic)

	got.Title = "Soaring"
	got.IsPublic = true
	got.ComicImageURL = "https://img/1.png"
	require.NoError(t, store.UpdateDream(ctx, got))

	again, err := store.GetDream(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Soaring", again.Title)
	assert.True(t, again.IsPublic)
	assert.Equal(t, "https://img/1.png", again.ComicImageURL)

	require.NoError(t, store.DeleteDream(ctx, d.ID))
	_, err = store.GetDream(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDreamStore_MissingReturnsNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetDream(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateDream(ctx, &Dream{ID: "nope", Title: "x"}), ErrNotFound)
	assert.ErrorIs(t, store.DeleteDream(ctx, "nope"), ErrNotFound)
}

func TestDreamStore_RequiresExistingOwner(t *testing.T) {
	store := setupTestStore(t)

	err := store.CreateDream(context.Background(), &Dream{UserID: "ghost", Title: "x"})
	assert.Error(t, err)
}

func TestDreamStore_ListNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	a := createTestUser(t, store, "a@example.com")
	b := createTestUser(t, store, "b@example.com")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, title := range []string{"one", "two", "three"} {
		require.NoError(t, store.CreateDream(ctx, &Dream{
			UserID:    a.ID,
			Title:     title,
			IsPublic:  i != 1,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.CreateDream(ctx, &Dream{UserID: b.ID, Title: "other", CreatedAt: base}))

	mine, err := store.ListDreamsByUser(ctx, a.ID, 0)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, "three", mine[0].Title)
	assert.Equal(t, "one", mine[2].Title)

	limited, err := store.ListDreamsByUser(ctx, a.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	public, err := store.ListPublicDreams(ctx, 10)
	require.NoError(t, err)
	require.Len(t, public, 2)
	assert.Equal(t, "three", public[0].Title)
	assert.Equal(t, "one", public[1].Title)
}

func TestDreamStore_ListEmptyIsNotNil(t *testing.T) {
	store := setupTestStore(t)

	dreams, err := store.ListPublicDreams(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, dreams)
	assert.Empty(t, dreams)
}

func TestNormalizeListLimit(t *testing.T) {
	assert.Equal(t, 50, normalizeListLimit(0))
	assert.Equal(t, 50, normalizeListLimit(-3))
	assert.Equal(t, 7, normalizeListLimit(7))
	assert.Equal(t, 200, normalizeListLimit(5000))
}

func TestTaskStore_CreateGetUpdate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, store, "t@example.com")
	d := &Dream{UserID: u.ID, Title: "video me"}
	require.NoError(t, store.CreateDream(ctx, d))

	task := &GenerationTask{UserID: u.ID, DreamID: d.ID, Kind: TaskKindVideo, RemoteID: "remote-1"}
	require.NoError(t, store.CreateGenerationTask(ctx, task))
	assert.Equal(t, TaskPending, task.Status)

	task.Status = TaskCompleted
	task.ResultURL = "https://cdn/v.mp4"
	require.NoError(t, store.UpdateGenerationTask(ctx, task))

	got, err := store.GetGenerationTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, got.DreamID)
	assert.Equal(t, "remote-1", got.RemoteID)
	assert.Equal(t, TaskCompleted, got.Status)
	assert.Equal(t, "https://cdn/v.mp4", got.ResultURL)
	assert.True(t, got.Done())
}

func TestTaskStore_DreamDeletionKeepsTask(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, store, "t@example.com")
	d := &Dream{UserID: u.ID, Title: "gone soon"}
	require.NoError(t, store.CreateDream(ctx, d))

	task := &GenerationTask{UserID: u.ID, DreamID: d.ID, Kind: TaskKindVideo, RemoteID: "r"}
	require.NoError(t, store.CreateGenerationTask(ctx, task))
	require.NoError(t, store.DeleteDream(ctx, d.ID))

	got, err := store.GetGenerationTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DreamID)
}

func TestTaskStore_NotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetGenerationTask(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateGenerationTask(ctx, &GenerationTask{ID: "nope"}), ErrNotFound)
}
