package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/kashguard/go-sentinel/internal/security/types"
)

// postgresqlStore 实现 PostgreSQL 存储后端
// 索引字段落普通列，嵌套结构落 JSONB data 列
type postgresqlStore struct {
	db *sql.DB
}

// NewPostgreSQLStore 创建新的 PostgreSQL 存储后端
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewPostgreSQLStore(db *sql.DB) Store {
	return &postgresqlStore{db: db}
}

// EnsureSchema 创建所需的表（若不存在）
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS security_policies (
			policy_id       TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			is_active       BOOLEAN NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL,
			data            JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS security_events (
			event_id        TEXT PRIMARY KEY,
			ts              TIMESTAMPTZ NOT NULL,
			event_type      TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			organization_id TEXT NOT NULL,
			outcome         TEXT NOT NULL,
			data            JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_ts ON security_events (ts)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_user ON security_events (user_id, ts)`,
		`CREATE TABLE IF NOT EXISTS security_violations (
			violation_id TEXT PRIMARY KEY,
			rule_id      TEXT NOT NULL,
			severity     TEXT NOT NULL,
			status       TEXT NOT NULL,
			detected_at  TIMESTAMPTZ NOT NULL,
			data         JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_violations_rule ON security_violations (rule_id, detected_at)`,
		`CREATE TABLE IF NOT EXISTS user_security_profiles (
			user_id    TEXT PRIMARY KEY,
			data       JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS security_roles (
			role_id TEXT PRIMARY KEY,
			data    JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS encryption_keys (
			key_id     TEXT PRIMARY KEY,
			material   BYTEA NOT NULL,
			algorithm  TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			is_active  BOOLEAN NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to ensure schema")
		}
	}
	return nil
}

// SavePolicy 保存策略
func (s *postgresqlStore) SavePolicy(ctx context.Context, policy *types.SecurityPolicy) error {
	data, err := json.Marshal(policy)
	if err != nil {
		return errors.Wrap(err, "failed to marshal policy")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO security_policies (policy_id, organization_id, is_active, data, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		policy.ID, policy.OrganizationID, policy.IsActive, data, policy.CreatedAt, policy.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert policy")
	}
	return nil
}

// GetPolicy 获取策略
func (s *postgresqlStore) GetPolicy(ctx context.Context, policyID string) (*types.SecurityPolicy, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM security_policies WHERE policy_id = $1`, policyID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "policy %s", policyID)
		}
		return nil, errors.Wrap(err, "failed to get policy")
	}

	var policy types.SecurityPolicy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal policy")
	}
	return &policy, nil
}

// ListPolicies 列出策略
func (s *postgresqlStore) ListPolicies(ctx context.Context, activeOnly bool) ([]*types.SecurityPolicy, error) {
	query := `SELECT data FROM security_policies ORDER BY created_at`
	if activeOnly {
		query = `SELECT data FROM security_policies WHERE is_active ORDER BY created_at`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list policies")
	}
	defer rows.Close()

	policies := make([]*types.SecurityPolicy, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "failed to scan policy row")
		}
		var policy types.SecurityPolicy
		if err := json.Unmarshal(data, &policy); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal policy")
		}
		policies = append(policies, &policy)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate policy rows")
	}
	return policies, nil
}

// UpdatePolicy 更新策略
func (s *postgresqlStore) UpdatePolicy(ctx context.Context, policyID string, policy *types.SecurityPolicy) error {
	data, err := json.Marshal(policy)
	if err != nil {
		return errors.Wrap(err, "failed to marshal policy")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE security_policies SET organization_id = $2, is_active = $3, data = $4, updated_at = $5
		 WHERE policy_id = $1`,
		policyID, policy.OrganizationID, policy.IsActive, data, policy.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update policy")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return errors.Wrapf(ErrNotFound, "policy %s", policyID)
	}
	return nil
}

// SaveEvent 追加事件
func (s *postgresqlStore) SaveEvent(ctx context.Context, event *types.SecurityEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO security_events (event_id, ts, event_type, user_id, organization_id, outcome, data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, event.Timestamp, event.Type, event.UserID, event.OrganizationID, string(event.Outcome), data,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert event")
	}
	return nil
}

// GetEvent 获取事件
func (s *postgresqlStore) GetEvent(ctx context.Context, eventID string) (*types.SecurityEvent, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM security_events WHERE event_id = $1`, eventID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "event %s", eventID)
		}
		return nil, errors.Wrap(err, "failed to get event")
	}

	var event types.SecurityEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal event")
	}
	return &event, nil
}

// QueryEvents 按过滤器查询事件
func (s *postgresqlStore) QueryEvents(ctx context.Context, filter *EventFilter) ([]*types.SecurityEvent, error) {
	query := `SELECT data FROM security_events WHERE 1=1`
	args := make([]interface{}, 0)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.StartTime != nil {
			query += ` AND ts >= ` + arg(*filter.StartTime)
		}
		if filter.EndTime != nil {
			query += ` AND ts <= ` + arg(*filter.EndTime)
		}
		if filter.UserID != "" {
			query += ` AND user_id = ` + arg(filter.UserID)
		}
		if filter.OrganizationID != "" {
			query += ` AND organization_id = ` + arg(filter.OrganizationID)
		}
		if filter.EventType != "" {
			query += ` AND event_type = ` + arg(filter.EventType)
		}
		if filter.Outcome != "" {
			query += ` AND outcome = ` + arg(filter.Outcome)
		}
	}

	query += ` ORDER BY ts, event_id`
	if filter != nil && filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter != nil && filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	defer rows.Close()

	events := make([]*types.SecurityEvent, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "failed to scan event row")
		}
		var event types.SecurityEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal event")
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate event rows")
	}
	return events, nil
}

// DeleteEventsBefore 删除早于截止时间的事件
func (s *postgresqlStore) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM security_events WHERE ts < $1`, cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired events")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted events")
	}
	return int(affected), nil
}

// SaveViolation 保存违规记录
func (s *postgresqlStore) SaveViolation(ctx context.Context, violation *types.SecurityViolation) error {
	data, err := json.Marshal(violation)
	if err != nil {
		return errors.Wrap(err, "failed to marshal violation")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO security_violations (violation_id, rule_id, severity, status, detected_at, data)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (violation_id) DO UPDATE SET status = $4, data = $6`,
		violation.ID, violation.RuleID, string(violation.Severity), string(violation.Status), violation.DetectedAt, data,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert violation")
	}
	return nil
}

// GetViolation 获取违规记录
func (s *postgresqlStore) GetViolation(ctx context.Context, violationID string) (*types.SecurityViolation, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM security_violations WHERE violation_id = $1`, violationID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "violation %s", violationID)
		}
		return nil, errors.Wrap(err, "failed to get violation")
	}

	var violation types.SecurityViolation
	if err := json.Unmarshal(data, &violation); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal violation")
	}
	return &violation, nil
}

// ListViolations 按过滤器列出违规记录
func (s *postgresqlStore) ListViolations(ctx context.Context, filter *ViolationFilter) ([]*types.SecurityViolation, error) {
	query := `SELECT data FROM security_violations WHERE 1=1`
	args := make([]interface{}, 0)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter != nil {
		if filter.RuleID != "" {
			query += ` AND rule_id = ` + arg(filter.RuleID)
		}
		if filter.Severity != "" {
			query += ` AND severity = ` + arg(filter.Severity)
		}
		if filter.Status != "" {
			query += ` AND status = ` + arg(filter.Status)
		}
		if filter.Since != nil {
			query += ` AND detected_at >= ` + arg(*filter.Since)
		}
	}

	query += ` ORDER BY detected_at`
	if filter != nil && filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter != nil && filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list violations")
	}
	defer rows.Close()

	violations := make([]*types.SecurityViolation, 0)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "failed to scan violation row")
		}
		var violation types.SecurityViolation
		if err := json.Unmarshal(data, &violation); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal violation")
		}
		violations = append(violations, &violation)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate violation rows")
	}
	return violations, nil
}

// CountViolationsSince 统计某规则自给定时刻起的违规次数
func (s *postgresqlStore) CountViolationsSince(ctx context.Context, ruleID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM security_violations WHERE rule_id = $1 AND detected_at >= $2`,
		ruleID, since,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count violations")
	}
	return count, nil
}

// SaveProfile 保存用户画像
func (s *postgresqlStore) SaveProfile(ctx context.Context, profile *types.UserSecurityProfile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return errors.Wrap(err, "failed to marshal profile")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_security_profiles (user_id, data, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET data = $2, updated_at = $3`,
		profile.UserID, data, profile.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert profile")
	}
	return nil
}

// GetProfile 获取用户画像
func (s *postgresqlStore) GetProfile(ctx context.Context, userID string) (*types.UserSecurityProfile, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM user_security_profiles WHERE user_id = $1`, userID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "profile %s", userID)
		}
		return nil, errors.Wrap(err, "failed to get profile")
	}

	var profile types.UserSecurityProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal profile")
	}
	return &profile, nil
}

// SaveRole 保存角色
func (s *postgresqlStore) SaveRole(ctx context.Context, role *types.Role) error {
	data, err := json.Marshal(role)
	if err != nil {
		return errors.Wrap(err, "failed to marshal role")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO security_roles (role_id, data)
		 VALUES ($1, $2)
		 ON CONFLICT (role_id) DO UPDATE SET data = $2`,
		role.ID, data,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert role")
	}
	return nil
}

// GetRole 获取角色
func (s *postgresqlStore) GetRole(ctx context.Context, roleID string) (*types.Role, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM security_roles WHERE role_id = $1`, roleID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "role %s", roleID)
		}
		return nil, errors.Wrap(err, "failed to get role")
	}

	var role types.Role
	if err := json.Unmarshal(data, &role); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal role")
	}
	return &role, nil
}

// SaveKey 保存密钥
func (s *postgresqlStore) SaveKey(ctx context.Context, key *types.EncryptionKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO encryption_keys (key_id, material, algorithm, created_at, expires_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		key.ID, key.Material, key.Algorithm, key.CreatedAt, key.ExpiresAt, key.IsActive,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert key")
	}
	return nil
}

// GetKey 获取密钥
func (s *postgresqlStore) GetKey(ctx context.Context, keyID string) (*types.EncryptionKey, error) {
	key := &types.EncryptionKey{}
	err := s.db.QueryRowContext(ctx,
		`SELECT key_id, material, algorithm, created_at, expires_at, is_active
		 FROM encryption_keys WHERE key_id = $1`, keyID,
	).Scan(&key.ID, &key.Material, &key.Algorithm, &key.CreatedAt, &key.ExpiresAt, &key.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "key %s", keyID)
		}
		return nil, errors.Wrap(err, "failed to get key")
	}
	return key, nil
}

// ListKeys 按创建顺序列出密钥
func (s *postgresqlStore) ListKeys(ctx context.Context) ([]*types.EncryptionKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key_id, material, algorithm, created_at, expires_at, is_active
		 FROM encryption_keys ORDER BY created_at, key_id`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list keys")
	}
	defer rows.Close()

	keys := make([]*types.EncryptionKey, 0)
	for rows.Next() {
		key := &types.EncryptionKey{}
		if err := rows.Scan(&key.ID, &key.Material, &key.Algorithm, &key.CreatedAt, &key.ExpiresAt, &key.IsActive); err != nil {
			return nil, errors.Wrap(err, "failed to scan key row")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate key rows")
	}
	return keys, nil
}

// SetKeyActive 设置密钥激活状态
func (s *postgresqlStore) SetKeyActive(ctx context.Context, keyID string, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE encryption_keys SET is_active = $2 WHERE key_id = $1`,
		keyID, active,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update key state")
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return errors.Wrapf(ErrNotFound, "key %s", keyID)
	}
	return nil
}
