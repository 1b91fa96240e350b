package violation

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-sentinel/internal/security/types"
)

// ActionExecutor 规则动作能力集，由检测器按动作类型分发
// 具体集成（撤销操作、工单、告警通道）实现此接口；默认实现仅结构化记录
type ActionExecutor interface {
	Block(ctx context.Context, event *types.SecurityEvent, violation *types.SecurityViolation) error
	Warn(ctx context.Context, event *types.SecurityEvent, violation *types.SecurityViolation) error
	RequireApproval(ctx context.Context, event *types.SecurityEvent, violation *types.SecurityViolation, approverRoles []string) error
	Quarantine(ctx context.Context, event *types.SecurityEvent, violation *types.SecurityViolation) error
	Notify(ctx context.Context, event *types.SecurityEvent, violation *types.SecurityViolation, channels []string) error
}

// logExecutor 默认动作执行器
type logExecutor struct{}

// NewLogExecutor 创建仅记录的默认动作执行器
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewLogExecutor() ActionExecutor {
	return &logExecutor{}
}

// Block 阻止/撤销底层操作
func (e *logExecutor) Block(_ context.Context, event *types.SecurityEvent, violation *types.SecurityViolation) error {
	log.Warn().
		Str("violation_id", violation.ID).
		Str("resource", event.Resource).
		Str("action", event.Action).
		Msg("Blocked action")
	return nil
}

// Warn 告知行为人
func (e *logExecutor) Warn(_ context.Context, event *types.SecurityEvent, violation *types.SecurityViolation) error {
	log.Warn().
		Str("violation_id", violation.ID).
		Str("user_id", event.UserID).
		Msg("Warned actor about policy violation")
	return nil
}

// RequireApproval 开启限定审批角色的待审批流程
func (e *logExecutor) RequireApproval(_ context.Context, event *types.SecurityEvent, violation *types.SecurityViolation, approverRoles []string) error {
	log.Warn().
		Str("violation_id", violation.ID).
		Str("resource", event.Resource).
		Strs("approver_roles", approverRoles).
		Msg("Opened pending-approval workflow")
	return nil
}

// Quarantine 将资源标记为受限
func (e *logExecutor) Quarantine(_ context.Context, event *types.SecurityEvent, violation *types.SecurityViolation) error {
	log.Warn().
		Str("violation_id", violation.ID).
		Str("resource", event.Resource).
		Msg("Quarantined resource")
	return nil
}

// Notify 向配置的通道派发告警
func (e *logExecutor) Notify(_ context.Context, _ *types.SecurityEvent, violation *types.SecurityViolation, channels []string) error {
	log.Warn().
		Str("violation_id", violation.ID).
		Strs("channels", channels).
		Msg("Dispatched violation notification")
	return nil
}
