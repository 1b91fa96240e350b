package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-sentinel/internal/security/access"
	"github.com/kashguard/go-sentinel/internal/security/audit"
	"github.com/kashguard/go-sentinel/internal/security/compliance"
	"github.com/kashguard/go-sentinel/internal/security/encryption"
	"github.com/kashguard/go-sentinel/internal/security/keys"
	"github.com/kashguard/go-sentinel/internal/security/notify"
	"github.com/kashguard/go-sentinel/internal/security/policy"
	"github.com/kashguard/go-sentinel/internal/security/risk"
	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/security/types"
	"github.com/kashguard/go-sentinel/internal/security/violation"
)

const (
	defaultMaintenanceInterval = 24 * time.Hour
	defaultKeyRotationDays     = 90
)

// Options 引擎构建选项
type Options struct {
	// OrganizationID 默认基线策略归属组织
	OrganizationID string
	// Store 为空时使用内存存储
	Store storage.Store
	// Executor 为空时使用仅记录的默认动作执行器
	Executor violation.ActionExecutor
	// MaintenanceInterval 维护定时器周期（默认每日）
	MaintenanceInterval time.Duration
}

// Engine 安全引擎：组合策略、访问控制、审计、违规检测、合规与密钥管理
// 请求路径同步执行；维护任务由独立定时器驱动，Shutdown 干净停止
type Engine struct {
	Store      storage.Store
	Policies   policy.Store
	Keys       keys.Manager
	Encryption encryption.Service
	Risk       risk.Scorer
	Audit      audit.Logger
	Access     access.Evaluator
	Violations violation.Detector
	Compliance compliance.Auditor
	Notifier   *notify.Notifier

	maintenanceInterval time.Duration
	stop                chan struct{}
	stopOnce            sync.Once
	wg                  sync.WaitGroup
}

// New 构建并初始化引擎（无任何策略时植入默认基线策略）
func New(ctx context.Context, opts Options) (*Engine, error) {
	store := opts.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	executor := opts.Executor
	if executor == nil {
		executor = violation.NewLogExecutor()
	}
	interval := opts.MaintenanceInterval
	if interval <= 0 {
		interval = defaultMaintenanceInterval
	}

	notifier := notify.NewNotifier()
	policies := policy.NewStore(store, notifier)
	keyManager := keys.NewManager(store)
	encryptor := encryption.NewService(keyManager)
	scorer := risk.NewScorer(store)
	auditLogger := audit.NewLogger(store, policies, scorer, encryptor, keyManager, notifier)
	evaluator := access.NewEvaluator(store, auditLogger)
	detector := violation.NewDetector(store, policies, evaluator, executor, notifier)
	auditLogger.SetViolationChecker(detector)
	complianceAuditor := compliance.NewAuditor(policies, auditLogger)

	if err := policies.Initialize(ctx, opts.OrganizationID); err != nil {
		return nil, errors.Wrap(err, "failed to initialize policies")
	}

	return &Engine{
		Store:               store,
		Policies:            policies,
		Keys:                keyManager,
		Encryption:          encryptor,
		Risk:                scorer,
		Audit:               auditLogger,
		Access:              evaluator,
		Violations:          detector,
		Compliance:          complianceAuditor,
		Notifier:            notifier,
		maintenanceInterval: interval,
		stop:                make(chan struct{}),
	}, nil
}

// CheckPermission 判定 (user, resource, action)，从不抛错，失败即拒绝
func (e *Engine) CheckPermission(ctx context.Context, userID, resource, action string, accessCtx *types.AccessContext) bool {
	return e.Access.CheckPermission(ctx, userID, resource, action, accessCtx)
}

// LogSecurityEvent 记录安全事件并同步完成违规检测
func (e *Engine) LogSecurityEvent(ctx context.Context, input *audit.EventInput) (*types.SecurityEvent, error) {
	return e.Audit.LogSecurityEvent(ctx, input)
}

// RunComplianceCheck 运行合规检查，framework 为空时覆盖全部框架
func (e *Engine) RunComplianceCheck(ctx context.Context, framework types.Framework) (*compliance.Report, error) {
	return e.Compliance.RunComplianceCheck(ctx, framework)
}

// CalculateRiskScore 独立计算风险分数（如 UI 风险展示）
func (e *Engine) CalculateRiskScore(ctx context.Context, userID, action, resource string, accessCtx *types.AccessContext) float64 {
	return e.Risk.CalculateRiskScore(ctx, userID, action, resource, accessCtx)
}

// Subscribe 注册引擎通知订阅者
func (e *Engine) Subscribe(sub notify.Subscriber) {
	e.Notifier.Subscribe(sub)
}

// Start 启动维护定时器：密钥轮换、保留期清理与每日合规报告
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.maintenanceLoop()
}

// Shutdown 干净停止维护任务；请求路径不受影响
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.wg.Wait()
}

func (e *Engine) maintenanceLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.runMaintenance(context.Background())
		}
	}
}

func (e *Engine) runMaintenance(ctx context.Context) {
	if _, err := e.Keys.Rotate(ctx, e.keyRotationWindow(ctx)); err != nil {
		log.Error().Err(err).Msg("Key rotation failed")
	}

	if _, err := e.Audit.SweepRetention(ctx); err != nil {
		log.Error().Err(err).Msg("Retention sweep failed")
	}

	if _, err := e.Compliance.RunComplianceCheck(ctx, ""); err != nil {
		log.Error().Err(err).Msg("Scheduled compliance check failed")
	}
}

// keyRotationWindow 取启用策略中最短的轮换周期，缺省 90 天
func (e *Engine) keyRotationWindow(ctx context.Context) time.Duration {
	days := defaultKeyRotationDays

	policies, err := e.Policies.List(ctx, true)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list policies for rotation window")
		return time.Duration(days) * 24 * time.Hour
	}
	for _, p := range policies {
		if p.AuditSettings.KeyRotationDays > 0 && p.AuditSettings.KeyRotationDays < days {
			days = p.AuditSettings.KeyRotationDays
		}
	}
	return time.Duration(days) * 24 * time.Hour
}
