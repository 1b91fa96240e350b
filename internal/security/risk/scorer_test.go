package risk_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashguard/go-sentinel/internal/security/risk"
	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

// hourAdjustment 评分器使用真实时钟，测试期望值带上当前时刻的工作时间加成
func hourAdjustment() float64 {
	hour := time.Now().Hour()
	if hour < 6 || hour >= 22 {
		return 2
	}
	return 0
}

func clamp(score float64) float64 {
	if score > risk.MaxScore {
		return risk.MaxScore
	}
	if score < 0 {
		return 0
	}
	return score
}

func TestBaseScoresPerAction(t *testing.T) {
	ctx := context.Background()
	scorer := risk.NewScorer(storage.NewMemoryStore())
	adj := hourAdjustment()

	tests := []struct {
		action string
		base   float64
	}{
		{"read", 1},
		{"write", 3},
		{"execute", 5},
		{"delete", 8},
		{"admin", 10},
		{"frobnicate", 5},
		{"READ", 1},
	}

	for _, tc := range tests {
		t.Run(tc.action, func(t *testing.T) {
			score := scorer.CalculateRiskScore(ctx, "alice", tc.action, "plain-file", nil)
			assert.InDelta(t, clamp(tc.base+adj), score, 0.001)
		})
	}
}

func TestSensitiveResourceDoublesBase(t *testing.T) {
	ctx := context.Background()
	scorer := risk.NewScorer(storage.NewMemoryStore())
	adj := hourAdjustment()

	score := scorer.CalculateRiskScore(ctx, "alice", "read", "secret-plans.txt", nil)
	assert.InDelta(t, clamp(2+adj), score, 0.001)

	score = scorer.CalculateRiskScore(ctx, "alice", "read", "Sensitive Records", nil)
	assert.InDelta(t, clamp(2+adj), score, 0.001)
}

func TestProfileBaselineAdded(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	scorer := risk.NewScorer(store)
	adj := hourAdjustment()

	require.NoError(t, store.SaveProfile(ctx, &types.UserSecurityProfile{
		UserID:    "risky",
		RiskScore: 2,
	}))

	withBaseline := scorer.CalculateRiskScore(ctx, "risky", "read", "plain-file", nil)
	assert.InDelta(t, clamp(3+adj), withBaseline, 0.001)

	// 未知用户无基线加成
	withoutBaseline := scorer.CalculateRiskScore(ctx, "unknown", "read", "plain-file", nil)
	assert.InDelta(t, clamp(1+adj), withoutBaseline, 0.001)
}

func TestVPNIncreasesScore(t *testing.T) {
	ctx := context.Background()
	scorer := risk.NewScorer(storage.NewMemoryStore())

	vpnCtx := &types.AccessContext{
		Geolocation: &types.Geolocation{Country: "DE", VPNDetected: true},
	}
	plainCtx := &types.AccessContext{
		Geolocation: &types.Geolocation{Country: "DE"},
	}

	withVPN := scorer.CalculateRiskScore(ctx, "alice", "write", "plain-file", vpnCtx)
	withoutVPN := scorer.CalculateRiskScore(ctx, "alice", "write", "plain-file", plainCtx)
	assert.GreaterOrEqual(t, withVPN, withoutVPN)
	assert.InDelta(t, clamp(withoutVPN+3), withVPN, 0.001)
}

func TestScoreClampedToMax(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	scorer := risk.NewScorer(store)

	require.NoError(t, store.SaveProfile(ctx, &types.UserSecurityProfile{
		UserID:    "risky",
		RiskScore: 5,
	}))

	score := scorer.CalculateRiskScore(ctx, "risky", "admin", "secret-vault", &types.AccessContext{
		Geolocation: &types.Geolocation{VPNDetected: true},
	})
	assert.Equal(t, risk.MaxScore, score)
}
