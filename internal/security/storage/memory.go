package storage

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/kashguard/go-sentinel/internal/security/types"
)

// memoryStore 实现内存存储后端（嵌入式部署的默认选择）
type memoryStore struct {
	mu         sync.RWMutex
	policies   map[string]*types.SecurityPolicy
	events     []*types.SecurityEvent
	eventIndex map[string]*types.SecurityEvent
	violations map[string]*types.SecurityViolation
	profiles   map[string]*types.UserSecurityProfile
	roles      map[string]*types.Role
	keys       []*types.EncryptionKey
	keyIndex   map[string]*types.EncryptionKey
}

// NewMemoryStore 创建新的内存存储后端
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewMemoryStore() Store {
	return &memoryStore{
		policies:   make(map[string]*types.SecurityPolicy),
		events:     make([]*types.SecurityEvent, 0),
		eventIndex: make(map[string]*types.SecurityEvent),
		violations: make(map[string]*types.SecurityViolation),
		profiles:   make(map[string]*types.UserSecurityProfile),
		roles:      make(map[string]*types.Role),
		keys:       make([]*types.EncryptionKey, 0),
		keyIndex:   make(map[string]*types.EncryptionKey),
	}
}

// SavePolicy 保存策略
func (s *memoryStore) SavePolicy(_ context.Context, policy *types.SecurityPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.policies[policy.ID] = policy
	return nil
}

// GetPolicy 获取策略
func (s *memoryStore) GetPolicy(_ context.Context, policyID string) (*types.SecurityPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policy, ok := s.policies[policyID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "policy %s", policyID)
	}
	return policy, nil
}

// ListPolicies 列出策略
func (s *memoryStore) ListPolicies(_ context.Context, activeOnly bool) ([]*types.SecurityPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	policies := make([]*types.SecurityPolicy, 0, len(s.policies))
	for _, policy := range s.policies {
		if activeOnly && !policy.IsActive {
			continue
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

// UpdatePolicy 更新策略
func (s *memoryStore) UpdatePolicy(_ context.Context, policyID string, policy *types.SecurityPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.policies[policyID]; !ok {
		return errors.Wrapf(ErrNotFound, "policy %s", policyID)
	}
	s.policies[policyID] = policy
	return nil
}

// SaveEvent 追加事件
func (s *memoryStore) SaveEvent(_ context.Context, event *types.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	s.eventIndex[event.ID] = event
	return nil
}

// GetEvent 获取事件
func (s *memoryStore) GetEvent(_ context.Context, eventID string) (*types.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, ok := s.eventIndex[eventID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "event %s", eventID)
	}
	return event, nil
}

// QueryEvents 按过滤器查询事件（追加顺序）
func (s *memoryStore) QueryEvents(_ context.Context, filter *EventFilter) ([]*types.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*types.SecurityEvent, 0)
	for _, event := range s.events {
		if !matchEvent(event, filter) {
			continue
		}
		matched = append(matched, event)
	}

	return paginate(matched, filter.Offset, filter.Limit), nil
}

func matchEvent(event *types.SecurityEvent, filter *EventFilter) bool {
	if filter == nil {
		return true
	}
	if filter.StartTime != nil && event.Timestamp.Before(*filter.StartTime) {
		return false
	}
	if filter.EndTime != nil && event.Timestamp.After(*filter.EndTime) {
		return false
	}
	if filter.UserID != "" && event.UserID != filter.UserID {
		return false
	}
	if filter.OrganizationID != "" && event.OrganizationID != filter.OrganizationID {
		return false
	}
	if filter.EventType != "" && event.Type != filter.EventType {
		return false
	}
	if filter.Outcome != "" && string(event.Outcome) != filter.Outcome {
		return false
	}
	return true
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// DeleteEventsBefore 删除早于截止时间的事件，返回删除数量
func (s *memoryStore) DeleteEventsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]*types.SecurityEvent, 0, len(s.events))
	deleted := 0
	for _, event := range s.events {
		if event.Timestamp.Before(cutoff) {
			delete(s.eventIndex, event.ID)
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	s.events = kept
	return deleted, nil
}

// SaveViolation 保存违规记录
func (s *memoryStore) SaveViolation(_ context.Context, violation *types.SecurityViolation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.violations[violation.ID] = violation
	return nil
}

// GetViolation 获取违规记录
func (s *memoryStore) GetViolation(_ context.Context, violationID string) (*types.SecurityViolation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	violation, ok := s.violations[violationID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "violation %s", violationID)
	}
	return violation, nil
}

// ListViolations 按过滤器列出违规记录
func (s *memoryStore) ListViolations(_ context.Context, filter *ViolationFilter) ([]*types.SecurityViolation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*types.SecurityViolation, 0)
	for _, violation := range s.violations {
		if filter != nil {
			if filter.RuleID != "" && violation.RuleID != filter.RuleID {
				continue
			}
			if filter.Severity != "" && string(violation.Severity) != filter.Severity {
				continue
			}
			if filter.Status != "" && string(violation.Status) != filter.Status {
				continue
			}
			if filter.Since != nil && violation.DetectedAt.Before(*filter.Since) {
				continue
			}
		}
		matched = append(matched, violation)
	}

	offset, limit := 0, 0
	if filter != nil {
		offset, limit = filter.Offset, filter.Limit
	}
	return paginate(matched, offset, limit), nil
}

// CountViolationsSince 统计某规则自给定时刻起的违规次数
func (s *memoryStore) CountViolationsSince(_ context.Context, ruleID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, violation := range s.violations {
		if violation.RuleID == ruleID && !violation.DetectedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// SaveProfile 保存用户画像
func (s *memoryStore) SaveProfile(_ context.Context, profile *types.UserSecurityProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[profile.UserID] = profile
	return nil
}

// GetProfile 获取用户画像
func (s *memoryStore) GetProfile(_ context.Context, userID string) (*types.UserSecurityProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "profile %s", userID)
	}
	return profile, nil
}

// SaveRole 保存角色
func (s *memoryStore) SaveRole(_ context.Context, role *types.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roles[role.ID] = role
	return nil
}

// GetRole 获取角色
func (s *memoryStore) GetRole(_ context.Context, roleID string) (*types.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	role, ok := s.roles[roleID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "role %s", roleID)
	}
	return role, nil
}

// SaveKey 保存密钥（保持创建顺序）
func (s *memoryStore) SaveKey(_ context.Context, key *types.EncryptionKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys = append(s.keys, key)
	s.keyIndex[key.ID] = key
	return nil
}

// GetKey 获取密钥
func (s *memoryStore) GetKey(_ context.Context, keyID string) (*types.EncryptionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keyIndex[keyID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "key %s", keyID)
	}
	return key, nil
}

// ListKeys 按创建顺序列出密钥
func (s *memoryStore) ListKeys(_ context.Context) ([]*types.EncryptionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*types.EncryptionKey, len(s.keys))
	copy(keys, s.keys)
	return keys, nil
}

// SetKeyActive 设置密钥激活状态
func (s *memoryStore) SetKeyActive(_ context.Context, keyID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.keyIndex[keyID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "key %s", keyID)
	}
	key.IsActive = active
	return nil
}
