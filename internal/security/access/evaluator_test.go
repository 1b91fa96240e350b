package access_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-sentinel/internal/security/access"
	"github.com/kashguard/go-sentinel/internal/security/audit"
	"github.com/kashguard/go-sentinel/internal/security/encryption"
	"github.com/kashguard/go-sentinel/internal/security/keys"
	"github.com/kashguard/go-sentinel/internal/security/notify"
	"github.com/kashguard/go-sentinel/internal/security/policy"
	"github.com/kashguard/go-sentinel/internal/security/risk"
	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

type evaluatorFixture struct {
	store     storage.Store
	logger    audit.Logger
	evaluator access.Evaluator
}

func newEvaluatorFixture(t *testing.T, store storage.Store) *evaluatorFixture {
	t.Helper()

	notifier := notify.NewNotifier()
	policies := policy.NewStore(store, notifier)
	keyManager := keys.NewManager(store)
	encryptor := encryption.NewService(keyManager)
	scorer := risk.NewScorer(store)
	logger := audit.NewLogger(store, policies, scorer, encryptor, keyManager, notifier)

	return &evaluatorFixture{
		store:     store,
		logger:    logger,
		evaluator: access.NewEvaluator(store, logger),
	}
}

func (f *evaluatorFixture) eventsOfType(t *testing.T, eventType string) []*types.SecurityEvent {
	t.Helper()
	events, err := f.logger.QueryEvents(context.Background(), &storage.EventFilter{EventType: eventType})
	require.NoError(t, err)
	return events
}

func TestDirectPermissionGrants(t *testing.T) {
	ctx := context.Background()
	f := newEvaluatorFixture(t, storage.NewMemoryStore())

	require.NoError(t, f.store.SaveProfile(ctx, &types.UserSecurityProfile{
		UserID:            "alice",
		Roles:             []string{},
		DirectPermissions: []types.Permission{{Resource: "report.pdf", Action: "read"}},
	}))

	granted := f.evaluator.CheckPermission(ctx, "alice", "report.pdf", "read", nil)
	assert.True(t, granted)

	events := f.eventsOfType(t, "permission_granted")
	require.Len(t, events, 1)
	assert.Equal(t, "alice", events[0].UserID)
	assert.Equal(t, types.OutcomeAllowed, events[0].Outcome)
	assert.Equal(t, "direct", events[0].Metadata["permissionType"])
	assert.NotContains(t, events[0].Metadata, "roleId")
}

func TestUnknownUserDeniedAndProfileCreated(t *testing.T) {
	ctx := context.Background()
	f := newEvaluatorFixture(t, storage.NewMemoryStore())

	granted := f.evaluator.CheckPermission(ctx, "newcomer", "report.pdf", "read", nil)
	assert.False(t, granted)

	// 画像惰性创建，默认角色 user，无直接授权
	profile, err := f.store.GetProfile(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, profile.Roles)
	assert.Empty(t, profile.DirectPermissions)

	events := f.eventsOfType(t, "permission_denied")
	require.Len(t, events, 1)
	assert.Equal(t, types.OutcomeBlocked, events[0].Outcome)
}

func TestRoleWildcardPermission(t *testing.T) {
	ctx := context.Background()
	f := newEvaluatorFixture(t, storage.NewMemoryStore())

	require.NoError(t, f.store.SaveRole(ctx, &types.Role{
		ID:          "admin",
		Name:        "Administrator",
		Permissions: []types.Permission{{Resource: access.Wildcard, Action: access.Wildcard}},
	}))
	require.NoError(t, f.store.SaveProfile(ctx, &types.UserSecurityProfile{
		UserID: "root",
		Roles:  []string{"admin"},
	}))

	assert.True(t, f.evaluator.CheckPermission(ctx, "root", "anything", "delete", nil))

	events := f.eventsOfType(t, "permission_granted")
	require.Len(t, events, 1)
	assert.Equal(t, "role", events[0].Metadata["permissionType"])
	assert.Equal(t, "admin", events[0].Metadata["roleId"])
}

func TestMissingRoleSkipped(t *testing.T) {
	ctx := context.Background()
	f := newEvaluatorFixture(t, storage.NewMemoryStore())

	require.NoError(t, f.store.SaveProfile(ctx, &types.UserSecurityProfile{
		UserID: "orphan",
		Roles:  []string{"ghost-role"},
	}))

	assert.False(t, f.evaluator.CheckPermission(ctx, "orphan", "report.pdf", "read", nil))
}

func TestMFACondition(t *testing.T) {
	ctx := context.Background()
	f := newEvaluatorFixture(t, storage.NewMemoryStore())

	require.NoError(t, f.store.SaveRole(ctx, &types.Role{
		ID:   "operator",
		Name: "Operator",
		Permissions: []types.Permission{{
			Resource:   "production",
			Action:     "deploy",
			Conditions: []types.PermissionCondition{{Type: types.PermissionConditionMFARequired}},
		}},
	}))
	require.NoError(t, f.store.SaveProfile(ctx, &types.UserSecurityProfile{
		UserID: "deployer",
		Roles:  []string{"operator"},
	}))

	denied := f.evaluator.CheckPermission(ctx, "deployer", "production", "deploy", &types.AccessContext{MFAVerified: false})
	assert.False(t, denied)

	granted := f.evaluator.CheckPermission(ctx, "deployer", "production", "deploy", &types.AccessContext{MFAVerified: true})
	assert.True(t, granted)
}

func TestIPCondition(t *testing.T) {
	ctx := context.Background()
	f := newEvaluatorFixture(t, storage.NewMemoryStore())

	require.NoError(t, f.store.SaveRole(ctx, &types.Role{
		ID:   "intranet",
		Name: "Intranet users",
		Permissions: []types.Permission{{
			Resource: "wiki",
			Action:   "read",
			Conditions: []types.PermissionCondition{{
				Type:       types.PermissionConditionIPBased,
				AllowedIPs: []string{"10.0.0.1", "10.0.0.2"},
			}},
		}},
	}))
	require.NoError(t, f.store.SaveProfile(ctx, &types.UserSecurityProfile{
		UserID: "bob",
		Roles:  []string{"intranet"},
	}))

	assert.True(t, f.evaluator.CheckPermission(ctx, "bob", "wiki", "read", &types.AccessContext{IPAddress: "10.0.0.2"}))
	assert.False(t, f.evaluator.CheckPermission(ctx, "bob", "wiki", "read", &types.AccessContext{IPAddress: "203.0.113.7"}))
	// 无上下文时 IP 条件不满足
	assert.False(t, f.evaluator.CheckPermission(ctx, "bob", "wiki", "read", nil))
}

// failingStore 注入存储故障，验证判定降级为拒绝
type failingStore struct {
	storage.Store
}

func (s *failingStore) GetProfile(_ context.Context, _ string) (*types.UserSecurityProfile, error) {
	return nil, errors.New("storage unavailable")
}

func TestStorageFailureFailsClosed(t *testing.T) {
	ctx := context.Background()
	backing := storage.NewMemoryStore()
	f := newEvaluatorFixture(t, backing)
	f.evaluator = access.NewEvaluator(&failingStore{Store: backing}, f.logger)

	granted := f.evaluator.CheckPermission(ctx, "anyone", "report.pdf", "read", nil)
	assert.False(t, granted)

	events := f.eventsOfType(t, "permission_error")
	require.Len(t, events, 1)
	assert.Equal(t, types.OutcomeBlocked, events[0].Outcome)
}
