package access

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-sentinel/internal/metrics"
	"github.com/kashguard/go-sentinel/internal/security/audit"
	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

const defaultRole = "user"

// Wildcard 资源/操作通配符
const Wildcard = "*"

// PermissionType 授权来源
type PermissionType string

const (
	PermissionTypeDirect PermissionType = "direct"
	PermissionTypeRole   PermissionType = "role"
)

// Decision 授权判定结果
type Decision struct {
	Granted        bool
	PermissionType PermissionType
	RoleID         string
}

// Evaluator 访问控制服务接口
// CheckPermission 从不向调用方抛错：任何内部失败降级为拒绝（fail-closed）
type Evaluator interface {
	CheckPermission(ctx context.Context, userID, resource, action string, accessCtx *types.AccessContext) bool
	Evaluate(ctx context.Context, userID, resource, action string, accessCtx *types.AccessContext) (*Decision, error)
}

// evaluator 访问控制服务实现
type evaluator struct {
	store  storage.Store
	logger audit.Logger
	now    func() time.Time
}

// NewEvaluator 创建新的访问控制服务
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewEvaluator(store storage.Store, logger audit.Logger) Evaluator {
	return &evaluator{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CheckPermission 判定 (user, resource, action) 并记录每一个结果
func (e *evaluator) CheckPermission(ctx context.Context, userID, resource, action string, accessCtx *types.AccessContext) bool {
	decision, err := e.Evaluate(ctx, userID, resource, action, accessCtx)
	if err != nil {
		e.logOutcome(ctx, userID, resource, action, accessCtx, "permission_error", types.SeverityHigh,
			types.OutcomeBlocked, map[string]interface{}{"error": err.Error()})
		metrics.PermissionDenials.Inc()
		return false
	}

	if decision.Granted {
		metadata := map[string]interface{}{"permissionType": string(decision.PermissionType)}
		if decision.RoleID != "" {
			metadata["roleId"] = decision.RoleID
		}
		e.logOutcome(ctx, userID, resource, action, accessCtx, "permission_granted", types.SeverityLow,
			types.OutcomeAllowed, metadata)
		return true
	}

	e.logOutcome(ctx, userID, resource, action, accessCtx, "permission_denied", types.SeverityMedium,
		types.OutcomeBlocked, nil)
	metrics.PermissionDenials.Inc()
	return false
}

// Evaluate 不记录事件的判定核心：直接授权精确命中即授予，
// 否则逐角色检查 资源+操作 匹配且全部条件满足，首个命中胜出
func (e *evaluator) Evaluate(ctx context.Context, userID, resource, action string, accessCtx *types.AccessContext) (*Decision, error) {
	profile, err := e.resolveProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	for i := range profile.DirectPermissions {
		if matchPermission(&profile.DirectPermissions[i], resource, action) {
			return &Decision{Granted: true, PermissionType: PermissionTypeDirect}, nil
		}
	}

	for _, roleID := range profile.Roles {
		role, err := e.store.GetRole(ctx, roleID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, errors.Wrapf(err, "failed to get role %s", roleID)
		}

		for i := range role.Permissions {
			perm := &role.Permissions[i]
			if !matchPermission(perm, resource, action) {
				continue
			}
			if e.conditionsSatisfied(perm.Conditions, accessCtx) {
				return &Decision{Granted: true, PermissionType: PermissionTypeRole, RoleID: roleID}, nil
			}
		}
	}

	return &Decision{Granted: false}, nil
}

// resolveProfile 获取用户画像，不存在时惰性创建（默认角色 user，无直接授权）
func (e *evaluator) resolveProfile(ctx context.Context, userID string) (*types.UserSecurityProfile, error) {
	profile, err := e.store.GetProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, errors.Wrap(err, "failed to get profile")
	}

	now := e.now()
	profile = &types.UserSecurityProfile{
		UserID:            userID,
		Roles:             []string{defaultRole},
		DirectPermissions: []types.Permission{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.store.SaveProfile(ctx, profile); err != nil {
		return nil, errors.Wrap(err, "failed to create profile")
	}
	return profile, nil
}

// conditionsSatisfied 附加条件按逻辑与判定，未知条件类型视为不满足
func (e *evaluator) conditionsSatisfied(conditions []types.PermissionCondition, accessCtx *types.AccessContext) bool {
	for i := range conditions {
		if !e.conditionSatisfied(&conditions[i], accessCtx) {
			return false
		}
	}
	return true
}

func (e *evaluator) conditionSatisfied(cond *types.PermissionCondition, accessCtx *types.AccessContext) bool {
	switch cond.Type {
	case types.PermissionConditionTimeBased:
		hour := e.now().Hour()
		if cond.StartHour <= cond.EndHour {
			return hour >= cond.StartHour && hour < cond.EndHour
		}
		// 窗口跨午夜
		return hour >= cond.StartHour || hour < cond.EndHour
	case types.PermissionConditionIPBased:
		if accessCtx == nil {
			return false
		}
		for _, ip := range cond.AllowedIPs {
			if ip == accessCtx.IPAddress {
				return true
			}
		}
		return false
	case types.PermissionConditionMFARequired:
		return accessCtx != nil && accessCtx.MFAVerified
	default:
		return false
	}
}

func matchPermission(perm *types.Permission, resource, action string) bool {
	resourceMatch := perm.Resource == resource || perm.Resource == Wildcard
	actionMatch := perm.Action == action || perm.Action == Wildcard
	return resourceMatch && actionMatch
}

func (e *evaluator) logOutcome(
	ctx context.Context,
	userID, resource, action string,
	accessCtx *types.AccessContext,
	eventType string,
	severity types.Severity,
	outcome types.Outcome,
	metadata map[string]interface{},
) {
	if _, err := e.logger.LogSecurityEvent(ctx, &audit.EventInput{
		Type:     eventType,
		Severity: severity,
		UserID:   userID,
		Resource: resource,
		Action:   action,
		Outcome:  outcome,
		Metadata: metadata,
		Context:  accessCtx,
	}); err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("resource", resource).Msg("Failed to log permission outcome")
	}
}
