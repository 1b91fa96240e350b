package violation_test

import (
	"context"
	"testing"
	"time"

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
	"github.com/kashguard/go-sentinel/internal/security/violation"
)

// recordingExecutor 记录动作分发，替代默认的仅记录执行器
type recordingExecutor struct {
	blocked    int
	warned     int
	approvals  int
	quarantine int
	notified   int
}

func (e *recordingExecutor) Block(_ context.Context, _ *types.SecurityEvent, _ *types.SecurityViolation) error {
	e.blocked++
	return nil
}

func (e *recordingExecutor) Warn(_ context.Context, _ *types.SecurityEvent, _ *types.SecurityViolation) error {
	e.warned++
	return nil
}

func (e *recordingExecutor) RequireApproval(_ context.Context, _ *types.SecurityEvent, _ *types.SecurityViolation, _ []string) error {
	e.approvals++
	return nil
}

func (e *recordingExecutor) Quarantine(_ context.Context, _ *types.SecurityEvent, _ *types.SecurityViolation) error {
	e.quarantine++
	return nil
}

func (e *recordingExecutor) Notify(_ context.Context, _ *types.SecurityEvent, _ *types.SecurityViolation, _ []string) error {
	e.notified++
	return nil
}

type detectorFixture struct {
	store    storage.Store
	policies policy.Store
	logger   audit.Logger
	detector violation.Detector
	executor *recordingExecutor
	notifier *notify.Notifier
}

func newDetectorFixture(t *testing.T) *detectorFixture {
	t.Helper()
	ctx := context.Background()

	store := storage.NewMemoryStore()
	notifier := notify.NewNotifier()
	policies := policy.NewStore(store, notifier)
	keyManager := keys.NewManager(store)
	encryptor := encryption.NewService(keyManager)
	scorer := risk.NewScorer(store)
	logger := audit.NewLogger(store, policies, scorer, encryptor, keyManager, notifier)
	evaluator := access.NewEvaluator(store, logger)
	executor := &recordingExecutor{}
	detector := violation.NewDetector(store, policies, evaluator, executor, notifier)
	logger.SetViolationChecker(detector)

	require.NoError(t, policies.Initialize(ctx, "org-1"))

	return &detectorFixture{
		store:    store,
		policies: policies,
		logger:   logger,
		detector: detector,
		executor: executor,
		notifier: notifier,
	}
}

func TestSensitiveDataAccessDetected(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	event, err := f.logger.LogSecurityEvent(ctx, &audit.EventInput{
		Type:     "auth_failure",
		Severity: types.SeverityMedium,
		UserID:   "alice",
		Resource: "login",
		Action:   "execute",
		Outcome:  types.OutcomeBlocked,
		Metadata: map[string]interface{}{"message": "password reset failed"},
	})
	require.NoError(t, err)

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{})
	require.NoError(t, err)
	require.Len(t, violations, 1)

	v := violations[0]
	assert.Equal(t, policy.RuleSensitiveDataAccess, v.RuleID)
	assert.Equal(t, event.ID, v.EventID)
	assert.Equal(t, types.SeverityCritical, v.Severity)
	assert.Equal(t, types.ViolationStatusOpen, v.Status)
	assert.NotEmpty(t, v.RemediationSteps)
	assert.Equal(t, 1, f.executor.approvals)
}

func TestSensitivityMatchingIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	_, err := f.logger.LogSecurityEvent(ctx, &audit.EventInput{
		Type:     "file_access",
		UserID:   "bob",
		Resource: "projects",
		Action:   "read",
		Outcome:  types.OutcomeAllowed,
		Metadata: map[string]interface{}{"project": "TopSecretProject"},
	})
	require.NoError(t, err)

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{RuleID: policy.RuleSensitiveDataAccess})
	require.NoError(t, err)
	assert.Len(t, violations, 1)
}

func TestDangerousFileOperationBlocked(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	_, err := f.logger.LogSecurityEvent(ctx, &audit.EventInput{
		Type:     "command",
		UserID:   "mallory",
		Resource: "shell",
		Action:   "execute",
		Outcome:  types.OutcomeAllowed,
		Metadata: map[string]interface{}{"command": "rm -rf /var/data"},
	})
	require.NoError(t, err)

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{})
	require.NoError(t, err)
	require.Len(t, violations, 1)

	v := violations[0]
	assert.Equal(t, policy.RuleDangerousFileOperations, v.RuleID)
	assert.Equal(t, types.SeverityHigh, v.Severity)
	assert.Equal(t, 1, f.executor.blocked)
}

func TestBenignEventProducesNoViolations(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	_, err := f.logger.LogSecurityEvent(ctx, &audit.EventInput{
		Type:     "file_access",
		UserID:   "alice",
		Resource: "report.pdf",
		Action:   "read",
		Outcome:  types.OutcomeAllowed,
		Metadata: map[string]interface{}{"note": "routine access"},
	})
	require.NoError(t, err)

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestImpactAssessment(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	_, err := f.logger.LogSecurityEvent(ctx, &audit.EventInput{
		Type:     "data_access",
		UserID:   "alice",
		Resource: "customer-db",
		Action:   "read",
		Outcome:  types.OutcomeAllowed,
		Metadata: map[string]interface{}{"query": "select password from customers"},
	})
	require.NoError(t, err)

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{RuleID: policy.RuleSensitiveDataAccess})
	require.NoError(t, err)
	require.Len(t, violations, 1)

	impact := violations[0].Impact
	assert.True(t, impact.DataCompromised)
	assert.Equal(t, []string{"customer-db"}, impact.SystemsAffected)
	assert.Equal(t, 1, impact.UsersImpacted)
	assert.Equal(t, float64(10000), impact.EstimatedCost)
	assert.Contains(t, impact.ComplianceImplications, "GDPR")
	assert.Contains(t, impact.ComplianceImplications, "SOC2")
}

func TestEvidenceCollection(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	_, err := f.logger.LogSecurityEvent(ctx, &audit.EventInput{
		Type:     "auth_failure",
		UserID:   "alice",
		Resource: "login",
		Action:   "execute",
		Outcome:  types.OutcomeBlocked,
		Metadata: map[string]interface{}{"message": "password reset failed"},
	})
	require.NoError(t, err)

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{})
	require.NoError(t, err)
	require.Len(t, violations, 1)

	require.Len(t, violations[0].Evidence, 1)
	evidence := violations[0].Evidence[0]
	assert.NotEmpty(t, evidence.Data)
	assert.Len(t, evidence.Hash, 64)
	require.Len(t, evidence.ChainOfCustody, 1)
	assert.Equal(t, "violation-detector", evidence.ChainOfCustody[0].Actor)
	assert.Equal(t, "collected", evidence.ChainOfCustody[0].Action)
}

func TestRuleExceptionsExemptActor(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	_, err := f.policies.Create(ctx, &types.SecurityPolicy{
		Name:           "Exception policy",
		OrganizationID: "org-1",
		IsActive:       true,
		Rules: []types.SecurityRule{{
			ID:       "custom-pattern",
			Name:     "Custom pattern",
			Type:     types.RuleTypeDataAccess,
			Severity: types.SeverityMedium,
			Condition: types.Condition{
				Type:     types.ConditionPatternMatch,
				Operator: types.OperatorContains,
				Pattern:  &types.PatternCondition{Patterns: []string{"frobnicate"}},
			},
			Action:     types.Action{Type: types.ActionWarn},
			Exceptions: []string{"svc-backup"},
			IsEnabled:  true,
		}},
	})
	require.NoError(t, err)

	exempt := &types.SecurityEvent{
		ID:       "evt-exempt",
		UserID:   "svc-backup",
		Metadata: map[string]interface{}{"op": "frobnicate"},
	}
	require.NoError(t, f.detector.CheckForViolations(ctx, exempt))

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{RuleID: "custom-pattern"})
	require.NoError(t, err)
	assert.Empty(t, violations)

	covered := &types.SecurityEvent{
		ID:       "evt-covered",
		UserID:   "someone-else",
		Metadata: map[string]interface{}{"op": "frobnicate"},
	}
	require.NoError(t, f.detector.CheckForViolations(ctx, covered))

	violations, err = f.detector.List(ctx, &storage.ViolationFilter{RuleID: "custom-pattern"})
	require.NoError(t, err)
	assert.Len(t, violations, 1)
	assert.Equal(t, 1, f.executor.warned)
}

func TestDisabledRuleIgnored(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	_, err := f.policies.Create(ctx, &types.SecurityPolicy{
		Name:           "Disabled rule policy",
		OrganizationID: "org-1",
		IsActive:       true,
		Rules: []types.SecurityRule{{
			ID:       "disabled-rule",
			Name:     "Disabled",
			Type:     types.RuleTypeDataAccess,
			Severity: types.SeverityMedium,
			Condition: types.Condition{
				Type:     types.ConditionPatternMatch,
				Operator: types.OperatorContains,
				Pattern:  &types.PatternCondition{Patterns: []string{"frobnicate"}},
			},
			Action:    types.Action{Type: types.ActionWarn},
			IsEnabled: false,
		}},
	})
	require.NoError(t, err)

	event := &types.SecurityEvent{
		ID:       "evt-1",
		UserID:   "alice",
		Metadata: map[string]interface{}{"op": "frobnicate"},
	}
	require.NoError(t, f.detector.CheckForViolations(ctx, event))

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{RuleID: "disabled-rule"})
	require.NoError(t, err)
	assert.Empty(t, violations)
}

func TestRiskScoreCondition(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	_, err := f.policies.Create(ctx, &types.SecurityPolicy{
		Name:           "High risk policy",
		OrganizationID: "org-1",
		IsActive:       true,
		Rules: []types.SecurityRule{{
			ID:       "high-risk",
			Name:     "High risk actions",
			Type:     types.RuleTypeAuthorization,
			Severity: types.SeverityHigh,
			Condition: types.Condition{
				Type:     types.ConditionRiskScore,
				Operator: types.OperatorGreaterThan,
				Risk:     &types.RiskCondition{Threshold: 7},
			},
			Action:    types.Action{Type: types.ActionQuarantine},
			IsEnabled: true,
		}},
	})
	require.NoError(t, err)

	lowRisk := &types.SecurityEvent{ID: "evt-low", UserID: "alice", RiskScore: 4}
	require.NoError(t, f.detector.CheckForViolations(ctx, lowRisk))

	highRisk := &types.SecurityEvent{ID: "evt-high", UserID: "alice", RiskScore: 9}
	require.NoError(t, f.detector.CheckForViolations(ctx, highRisk))

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{RuleID: "high-risk"})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "evt-high", violations[0].EventID)
	assert.Equal(t, 1, f.executor.quarantine)
}

func TestTimeWindowCondition(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	_, err := f.policies.Create(ctx, &types.SecurityPolicy{
		Name:           "Night activity policy",
		OrganizationID: "org-1",
		IsActive:       true,
		Rules: []types.SecurityRule{{
			ID:       "night-window",
			Name:     "Night activity",
			Type:     types.RuleTypeAudit,
			Severity: types.SeverityLow,
			Condition: types.Condition{
				Type: types.ConditionTimeBased,
				// 窗口跨午夜
				Time: &types.TimeCondition{StartHour: 23, EndHour: 5},
			},
			Action:    types.Action{Type: types.ActionLog},
			IsEnabled: true,
		}},
	})
	require.NoError(t, err)

	inside := &types.SecurityEvent{
		ID:        "evt-night",
		UserID:    "alice",
		Timestamp: time.Date(2026, 8, 29, 2, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.detector.CheckForViolations(ctx, inside))

	outside := &types.SecurityEvent{
		ID:        "evt-day",
		UserID:    "alice",
		Timestamp: time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.detector.CheckForViolations(ctx, outside))

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{RuleID: "night-window"})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "evt-night", violations[0].EventID)
}

func TestLocationCondition(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	_, err := f.policies.Create(ctx, &types.SecurityPolicy{
		Name:           "Geo policy",
		OrganizationID: "org-1",
		IsActive:       true,
		Rules: []types.SecurityRule{{
			ID:       "geo-fence",
			Name:     "Geo fence",
			Type:     types.RuleTypeNetworkAccess,
			Severity: types.SeverityMedium,
			Condition: types.Condition{
				Type:     types.ConditionLocationBased,
				Location: &types.LocationCondition{AllowedCountries: []string{"DE", "AT"}},
			},
			Action:    types.Action{Type: types.ActionWarn},
			IsEnabled: true,
		}},
	})
	require.NoError(t, err)

	allowed := &types.SecurityEvent{ID: "evt-de", UserID: "alice", Geolocation: &types.Geolocation{Country: "de"}}
	require.NoError(t, f.detector.CheckForViolations(ctx, allowed))

	outside := &types.SecurityEvent{ID: "evt-us", UserID: "alice", Geolocation: &types.Geolocation{Country: "US"}}
	require.NoError(t, f.detector.CheckForViolations(ctx, outside))

	// 无定位信息时不判定
	unknown := &types.SecurityEvent{ID: "evt-unknown", UserID: "alice"}
	require.NoError(t, f.detector.CheckForViolations(ctx, unknown))

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{RuleID: "geo-fence"})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "evt-us", violations[0].EventID)
}

func TestPermissionCheckCondition(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	_, err := f.policies.Create(ctx, &types.SecurityPolicy{
		Name:           "Authorization policy",
		OrganizationID: "org-1",
		IsActive:       true,
		Rules: []types.SecurityRule{{
			ID:       "unauthorized-export",
			Name:     "Unauthorized export",
			Type:     types.RuleTypeAuthorization,
			Severity: types.SeverityHigh,
			Condition: types.Condition{
				Type:       types.ConditionPermissionCheck,
				Permission: &types.PermissionCheckCondition{Resource: "exports", Action: "create"},
			},
			Action:    types.Action{Type: types.ActionWarn},
			IsEnabled: true,
		}},
	})
	require.NoError(t, err)

	// 有授权的行为人不命中
	require.NoError(t, f.store.SaveProfile(ctx, &types.UserSecurityProfile{
		UserID:            "exporter",
		DirectPermissions: []types.Permission{{Resource: "exports", Action: "create"}},
	}))
	authorized := &types.SecurityEvent{ID: "evt-auth", UserID: "exporter"}
	require.NoError(t, f.detector.CheckForViolations(ctx, authorized))

	unauthorized := &types.SecurityEvent{ID: "evt-unauth", UserID: "intruder"}
	require.NoError(t, f.detector.CheckForViolations(ctx, unauthorized))

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{RuleID: "unauthorized-export"})
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "evt-unauth", violations[0].EventID)
}

func TestEscalationAfterThreshold(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	// 默认策略的敏感数据规则：1 小时内 3 次升级为 notify
	for i := 0; i < 3; i++ {
		_, err := f.logger.LogSecurityEvent(ctx, &audit.EventInput{
			Type:     "auth_failure",
			UserID:   "alice",
			Resource: "login",
			Action:   "execute",
			Outcome:  types.OutcomeBlocked,
			Metadata: map[string]interface{}{"message": "password reset failed"},
		})
		require.NoError(t, err)
	}

	assert.Equal(t, 3, f.executor.approvals)
	assert.Equal(t, 1, f.executor.notified)

	violations, err := f.detector.List(ctx, &storage.ViolationFilter{RuleID: policy.RuleSensitiveDataAccess})
	require.NoError(t, err)
	assert.Len(t, violations, 3)
}

func TestViolationsPublishedToNotifier(t *testing.T) {
	ctx := context.Background()
	f := newDetectorFixture(t)

	var topics []notify.Topic
	f.notifier.Subscribe(notify.SubscriberFunc(func(topic notify.Topic, _ interface{}) {
		topics = append(topics, topic)
	}))

	_, err := f.logger.LogSecurityEvent(ctx, &audit.EventInput{
		Type:     "auth_failure",
		UserID:   "alice",
		Resource: "login",
		Action:   "execute",
		Outcome:  types.OutcomeBlocked,
		Metadata: map[string]interface{}{"message": "password reset failed"},
	})
	require.NoError(t, err)

	assert.Contains(t, topics, notify.TopicSecurityViolation)
}
