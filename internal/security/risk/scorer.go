package risk

import (
	"context"
	"strings"
	"time"

	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

const (
	// MaxScore 风险分数上限
	MaxScore = 10.0

	businessHoursStart = 6
	businessHoursEnd   = 22
)

var sensitivityMarkers = []string{"sensitive", "secret"}

// Scorer 风险评分服务接口
type Scorer interface {
	CalculateRiskScore(ctx context.Context, userID, action, resource string, accessCtx *types.AccessContext) float64
}

// scorer 风险评分实现：固定输入与时钟下为纯函数，无副作用
type scorer struct {
	store storage.Store
	now   func() time.Time
}

// NewScorer 创建新的风险评分服务
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewScorer(store storage.Store) Scorer {
	return &scorer{store: store, now: time.Now}
}

// CalculateRiskScore 计算 (actor, action, resource, context) 的风险分数，clamp 到 [0, 10]
func (s *scorer) CalculateRiskScore(ctx context.Context, userID, action, resource string, accessCtx *types.AccessContext) float64 {
	score := baseScore(action)

	if containsSensitivityMarker(resource) {
		score *= 2
	}

	if profile, err := s.store.GetProfile(ctx, userID); err == nil {
		score += profile.RiskScore
	}

	hour := s.now().Hour()
	if hour < businessHoursStart || hour >= businessHoursEnd {
		score += 2
	}

	if accessCtx != nil && accessCtx.Geolocation != nil && accessCtx.Geolocation.VPNDetected {
		score += 3
	}

	if score > MaxScore {
		return MaxScore
	}
	if score < 0 {
		return 0
	}
	return score
}

func baseScore(action string) float64 {
	switch strings.ToLower(action) {
	case "read":
		return 1
	case "write":
		return 3
	case "execute":
		return 5
	case "delete":
		return 8
	case "admin":
		return 10
	default:
		return 5
	}
}

func containsSensitivityMarker(resource string) bool {
	lowered := strings.ToLower(resource)
	for _, marker := range sensitivityMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
