package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

func TestMemoryStorePolicies(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	_, err := store.GetPolicy(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	active := &types.SecurityPolicy{ID: "pol-1", Name: "Active", OrganizationID: "org", IsActive: true}
	inactive := &types.SecurityPolicy{ID: "pol-2", Name: "Inactive", OrganizationID: "org", IsActive: false}
	require.NoError(t, store.SavePolicy(ctx, active))
	require.NoError(t, store.SavePolicy(ctx, inactive))

	all, err := store.ListPolicies(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyActive, err := store.ListPolicies(ctx, true)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, "pol-1", onlyActive[0].ID)

	active.Name = "Renamed"
	require.NoError(t, store.UpdatePolicy(ctx, "pol-1", active))

	fetched, err := store.GetPolicy(ctx, "pol-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", fetched.Name)

	err = store.UpdatePolicy(ctx, "missing", active)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStoreEvents(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	base := time.Now()

	for i, userID := range []string{"alice", "bob", "alice"} {
		event := &types.SecurityEvent{
			ID:        "evt-" + userID + string(rune('0'+i)),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Type:      "test_event",
			UserID:    userID,
			Outcome:   types.OutcomeAllowed,
		}
		require.NoError(t, store.SaveEvent(ctx, event))
	}

	// 追加顺序保持
	all, err := store.QueryEvents(ctx, &storage.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Timestamp.Before(all[i-1].Timestamp))
	}

	byUser, err := store.QueryEvents(ctx, &storage.EventFilter{UserID: "alice"})
	require.NoError(t, err)
	assert.Len(t, byUser, 2)

	paged, err := store.QueryEvents(ctx, &storage.EventFilter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, all[1].ID, paged[0].ID)

	cutoff := base.Add(90 * time.Second)
	deleted, err := store.DeleteEventsBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	remaining, err := store.QueryEvents(ctx, &storage.EventFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)

	_, err = store.GetEvent(ctx, all[0].ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStoreViolations(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	now := time.Now()

	violations := []*types.SecurityViolation{
		{ID: "vio-1", RuleID: "rule-a", Severity: types.SeverityCritical, Status: types.ViolationStatusOpen, DetectedAt: now.Add(-2 * time.Hour)},
		{ID: "vio-2", RuleID: "rule-a", Severity: types.SeverityHigh, Status: types.ViolationStatusResolved, DetectedAt: now},
		{ID: "vio-3", RuleID: "rule-b", Severity: types.SeverityCritical, Status: types.ViolationStatusOpen, DetectedAt: now},
	}
	for _, v := range violations {
		require.NoError(t, store.SaveViolation(ctx, v))
	}

	byRule, err := store.ListViolations(ctx, &storage.ViolationFilter{RuleID: "rule-a"})
	require.NoError(t, err)
	assert.Len(t, byRule, 2)

	bySeverity, err := store.ListViolations(ctx, &storage.ViolationFilter{Severity: "critical", Status: "open"})
	require.NoError(t, err)
	assert.Len(t, bySeverity, 2)

	count, err := store.CountViolationsSince(ctx, "rule-a", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	fetched, err := store.GetViolation(ctx, "vio-3")
	require.NoError(t, err)
	assert.Equal(t, "rule-b", fetched.RuleID)
}

func TestMemoryStoreKeys(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	now := time.Now()

	first := &types.EncryptionKey{ID: "key-1", CreatedAt: now, IsActive: true}
	second := &types.EncryptionKey{ID: "key-2", CreatedAt: now.Add(time.Second), IsActive: true}
	require.NoError(t, store.SaveKey(ctx, first))
	require.NoError(t, store.SaveKey(ctx, second))

	// 创建顺序保持
	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "key-1", keys[0].ID)
	assert.Equal(t, "key-2", keys[1].ID)

	require.NoError(t, store.SetKeyActive(ctx, "key-1", false))

	fetched, err := store.GetKey(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, fetched.IsActive)

	err = store.SetKeyActive(ctx, "missing", false)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStoreProfilesAndRoles(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	_, err := store.GetProfile(ctx, "alice")
	require.ErrorIs(t, err, storage.ErrNotFound)

	profile := &types.UserSecurityProfile{UserID: "alice", Roles: []string{"user"}}
	require.NoError(t, store.SaveProfile(ctx, profile))

	fetched, err := store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, fetched.Roles)

	role := &types.Role{ID: "admin", Name: "Admin", Permissions: []types.Permission{{Resource: "*", Action: "*"}}}
	require.NoError(t, store.SaveRole(ctx, role))

	fetchedRole, err := store.GetRole(ctx, "admin")
	require.NoError(t, err)
	assert.Len(t, fetchedRole.Permissions, 1)
}
