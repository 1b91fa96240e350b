package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/kashguard/go-sentinel/internal/security/types"
)

// ErrNotFound 请求的对象不存在
var ErrNotFound = errors.New("not found")

// Store 定义引擎状态存储接口
// 所有存储后端实现（内存、PostgreSQL 等）都必须实现此接口
//
//nolint:interfacebloat // Store intentionally has many methods for comprehensive engine state
type Store interface {
	// 策略操作
	SavePolicy(ctx context.Context, policy *types.SecurityPolicy) error
	GetPolicy(ctx context.Context, policyID string) (*types.SecurityPolicy, error)
	ListPolicies(ctx context.Context, activeOnly bool) ([]*types.SecurityPolicy, error)
	UpdatePolicy(ctx context.Context, policyID string, policy *types.SecurityPolicy) error

	// 事件操作（仅追加，受保留期约束）
	SaveEvent(ctx context.Context, event *types.SecurityEvent) error
	GetEvent(ctx context.Context, eventID string) (*types.SecurityEvent, error)
	QueryEvents(ctx context.Context, filter *EventFilter) ([]*types.SecurityEvent, error)
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int, error)

	// 违规操作
	SaveViolation(ctx context.Context, violation *types.SecurityViolation) error
	GetViolation(ctx context.Context, violationID string) (*types.SecurityViolation, error)
	ListViolations(ctx context.Context, filter *ViolationFilter) ([]*types.SecurityViolation, error)
	CountViolationsSince(ctx context.Context, ruleID string, since time.Time) (int, error)

	// 用户画像与角色操作
	SaveProfile(ctx context.Context, profile *types.UserSecurityProfile) error
	GetProfile(ctx context.Context, userID string) (*types.UserSecurityProfile, error)
	SaveRole(ctx context.Context, role *types.Role) error
	GetRole(ctx context.Context, roleID string) (*types.Role, error)

	// 密钥操作（只停用，不删除）
	SaveKey(ctx context.Context, key *types.EncryptionKey) error
	GetKey(ctx context.Context, keyID string) (*types.EncryptionKey, error)
	ListKeys(ctx context.Context) ([]*types.EncryptionKey, error)
	SetKeyActive(ctx context.Context, keyID string, active bool) error
}

// EventFilter 事件查询过滤器
type EventFilter struct {
	StartTime      *time.Time
	EndTime        *time.Time
	UserID         string
	OrganizationID string
	EventType      string
	Outcome        string
	Limit          int
	Offset         int
}

// ViolationFilter 违规查询过滤器
type ViolationFilter struct {
	RuleID   string
	Severity string
	Status   string
	Since    *time.Time
	Limit    int
	Offset   int
}
