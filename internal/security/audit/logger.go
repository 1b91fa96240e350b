package audit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-sentinel/internal/metrics"
	"github.com/kashguard/go-sentinel/internal/security/encryption"
	"github.com/kashguard/go-sentinel/internal/security/keys"
	"github.com/kashguard/go-sentinel/internal/security/notify"
	"github.com/kashguard/go-sentinel/internal/security/policy"
	"github.com/kashguard/go-sentinel/internal/security/risk"
	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

// ErrEncryptionFailed 敏感 metadata 加密失败（重试后仍失败，拒绝落盘明文）
var ErrEncryptionFailed = errors.New("failed to encrypt sensitive metadata")

// 命中任一标记（大小写不敏感子串）即认定 metadata 含敏感字段
var sensitivityMarkers = []string{"password", "secret", "key", "token", "ssn", "credit_card"}

const defaultRetentionDays = 2555

// ViolationChecker 由违规检测器实现，在事件落盘后同步调用
type ViolationChecker interface {
	CheckForViolations(ctx context.Context, event *types.SecurityEvent) error
}

// EventInput 记录安全事件的输入
type EventInput struct {
	Type      string
	Severity  types.Severity
	UserID    string
	Resource  string
	Action    string
	Outcome   types.Outcome
	Metadata  map[string]interface{}
	Context   *types.AccessContext
	RiskScore *float64 // nil 时由风险评分器计算
}

// Logger 审计日志服务接口
type Logger interface {
	LogSecurityEvent(ctx context.Context, input *EventInput) (*types.SecurityEvent, error)
	QueryEvents(ctx context.Context, filter *storage.EventFilter) ([]*types.SecurityEvent, error)
	SweepRetention(ctx context.Context) (int, error)
	SetViolationChecker(checker ViolationChecker)
}

// logger 审计日志服务实现
type logger struct {
	store      storage.Store
	policies   policy.Store
	scorer     risk.Scorer
	encryptor  encryption.Service
	keyManager keys.Manager
	notifier   *notify.Notifier
	checker    ViolationChecker
	now        func() time.Time
}

// NewLogger 创建新的审计日志服务
// 违规检测器依赖审计产生的事件，构建后通过 SetViolationChecker 接入
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewLogger(
	store storage.Store,
	policies policy.Store,
	scorer risk.Scorer,
	encryptor encryption.Service,
	keyManager keys.Manager,
	notifier *notify.Notifier,
) Logger {
	return &logger{
		store:      store,
		policies:   policies,
		scorer:     scorer,
		encryptor:  encryptor,
		keyManager: keyManager,
		notifier:   notifier,
		now:        time.Now,
	}
}

// SetViolationChecker 接入违规检测器
func (l *logger) SetViolationChecker(checker ViolationChecker) {
	l.checker = checker
}

// LogSecurityEvent 构建并追加安全事件
// 含敏感字段的 metadata 以认证加密信封替换后才落盘；检测器收到的是
// 加密前的视图，规则的关键字匹配作用于原始 metadata。
// 违规检测在保留期清理之前同步完成，调用返回时审计轨迹已一致
func (l *logger) LogSecurityEvent(ctx context.Context, input *EventInput) (*types.SecurityEvent, error) {
	event := l.buildEvent(ctx, input)

	persisted := event
	if containsSensitiveData(input.Metadata) {
		envelope, err := l.encryptMetadata(ctx, input.Metadata)
		if err != nil {
			return nil, err
		}
		sealed := *event
		sealed.Metadata = nil
		sealed.EncryptedMetadata = envelope
		persisted = &sealed
	}

	if err := l.store.SaveEvent(ctx, persisted); err != nil {
		return nil, errors.Wrap(err, "failed to save event")
	}

	if l.checker != nil {
		if err := l.checker.CheckForViolations(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID).Msg("Violation detection failed")
		}
	}

	if _, err := l.SweepRetention(ctx); err != nil {
		log.Error().Err(err).Msg("Retention sweep failed")
	}

	l.notifier.Publish(notify.TopicSecurityEvent, persisted)
	metrics.EventsLogged.WithLabelValues(persisted.Type, string(persisted.Outcome)).Inc()

	return persisted, nil
}

// QueryEvents 查询审计轨迹
func (l *logger) QueryEvents(ctx context.Context, filter *storage.EventFilter) ([]*types.SecurityEvent, error) {
	events, err := l.store.QueryEvents(ctx, filter)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	return events, nil
}

// SweepRetention 删除早于保留窗口的事件，返回删除数量
// 截止时间取各启用策略保留期的最大值，避免清掉其他策略仍需要的事件；
// 无任何策略配置保留期时回退默认值
func (l *logger) SweepRetention(ctx context.Context) (int, error) {
	policies, err := l.policies.List(ctx, true)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list policies")
	}

	retentionDays := 0
	for _, p := range policies {
		if p.AuditSettings.RetentionDays > retentionDays {
			retentionDays = p.AuditSettings.RetentionDays
		}
	}
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}

	cutoff := l.now().AddDate(0, 0, -retentionDays)
	deleted, err := l.store.DeleteEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired events")
	}
	if deleted > 0 {
		metrics.EventsSweptByRetention.Add(float64(deleted))
		log.Info().Int("deleted", deleted).Time("cutoff", cutoff).Msg("Retention sweep discarded expired events")
	}
	return deleted, nil
}

func (l *logger) buildEvent(ctx context.Context, input *EventInput) *types.SecurityEvent {
	event := &types.SecurityEvent{
		ID:        "evt-" + uuid.New().String(),
		Timestamp: l.now(),
		Type:      input.Type,
		Severity:  input.Severity,
		UserID:    input.UserID,
		Resource:  input.Resource,
		Action:    input.Action,
		Outcome:   input.Outcome,
		Metadata:  input.Metadata,
	}
	if event.Severity == "" {
		event.Severity = types.SeverityLow
	}

	if input.Context != nil {
		event.SessionID = input.Context.SessionID
		event.OrganizationID = input.Context.OrganizationID
		event.Geolocation = input.Context.Geolocation
		event.DeviceFingerprint = input.Context.DeviceFingerprint
	}

	if input.RiskScore != nil {
		event.RiskScore = *input.RiskScore
	} else {
		event.RiskScore = l.scorer.CalculateRiskScore(ctx, input.UserID, input.Action, input.Resource, input.Context)
	}
	return event
}

// encryptMetadata 加密敏感 metadata；首次失败后用新铸密钥重试一次，
// 仍失败则整个调用失败，绝不落盘明文
func (l *logger) encryptMetadata(ctx context.Context, metadata map[string]interface{}) (*types.EncryptedEnvelope, error) {
	envelope, err := l.encryptor.Encrypt(ctx, metadata)
	if err == nil {
		return envelope, nil
	}
	log.Warn().Err(err).Msg("Metadata encryption failed, retrying with a fresh key")

	freshKey, mintErr := l.keyManager.MintKey(ctx)
	if mintErr != nil {
		return nil, errors.Wrap(ErrEncryptionFailed, mintErr.Error())
	}
	envelope, err = l.encryptor.EncryptWithKey(freshKey, metadata)
	if err != nil {
		return nil, errors.Wrap(ErrEncryptionFailed, err.Error())
	}
	return envelope, nil
}

func containsSensitiveData(metadata map[string]interface{}) bool {
	if len(metadata) == 0 {
		return false
	}
	serialized, err := json.Marshal(metadata)
	if err != nil {
		// 无法序列化时按敏感处理，交由加密路径决定成败
		return true
	}
	lowered := strings.ToLower(string(serialized))
	for _, marker := range sensitivityMarkers {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	return false
}
