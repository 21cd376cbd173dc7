// ABOUTME: Tests for subscription persistence and tier bookkeeping
// ABOUTME: Verifies create promotes, cancel demotes, and double cancel is rejected

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionStore_CreatePromotesUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, store, "s@example.com")

	sub := &Subscription{UserID: u.ID, Plan: "pro"}
	require.NoError(t, store.CreateSubscription(ctx, sub))
	assert.Equal(t, SubscriptionActive, sub.Status)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "pro", got.Tier)
	assert.True(t, got.IsPremium)
}

func TestSubscriptionStore_CreateForMissingUserRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.CreateSubscription(ctx, &Subscription{ID: "sub-1", UserID: "ghost", Plan: "pro"})
	require.Error(t, err)

	_, err = store.GetSubscription(ctx, "sub-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubscriptionStore_CancelDemotesUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, store, "s@example.com")

	sub := &Subscription{UserID: u.ID, Plan: "pro"}
	require.NoError(t, store.CreateSubscription(ctx, sub))

	canceled, err := store.CancelSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, SubscriptionCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, TierFree, got.Tier)
	assert.False(t, got.IsPremium)

	_, err = store.CancelSubscription(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrAlreadyCanceled)
}

func TestSubscriptionStore_CancelKeepsOtherActivePlan(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	u := createTestUser(t, store, "s@example.com")

	basic := &Subscription{UserID: u.ID, Plan: "basic"}
	require.NoError(t, store.CreateSubscription(ctx, basic))
	pro := &Subscription{UserID: u.ID, Plan: "pro"}
	require.NoError(t, store.CreateSubscription(ctx, pro))

	_, err := store.CancelSubscription(ctx, pro.ID)
	require.NoError(t, err)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "basic", got.Tier)
	assert.True(t, got.IsPremium)
}

func TestSubscriptionStore_ListByUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	a := createTestUser(t, store, "a@example.com")
	b := createTestUser(t, store, "b@example.com")

	require.NoError(t, store.CreateSubscription(ctx, &Subscription{UserID: a.ID, Plan: "basic"}))
	require.NoError(t, store.CreateSubscription(ctx, &Subscription{UserID: a.ID, Plan: "pro"}))
	require.NoError(t, store.CreateSubscription(ctx, &Subscription{UserID: b.ID, Plan: "pro"}))

	subs, err := store.ListSubscriptionsByUser(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, "pro", subs[0].Plan)
	for _, s := range subs {
		assert.Equal(t, a.ID, s.UserID)
	}
}

func TestSubscriptionStore_CancelMissing(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.CancelSubscription(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
