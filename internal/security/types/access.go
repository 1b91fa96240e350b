package types

import (
	"time"
)

// PermissionConditionType 授权条件类型
type PermissionConditionType string

const (
	PermissionConditionTimeBased   PermissionConditionType = "time_based"
	PermissionConditionIPBased     PermissionConditionType = "ip_based"
	PermissionConditionMFARequired PermissionConditionType = "mfa_required"
)

// PermissionCondition 附加在授权上的条件，全部满足才授予
type PermissionCondition struct {
	Type       PermissionConditionType `json:"type"`
	StartHour  int                     `json:"start_hour,omitempty"`
	EndHour    int                     `json:"end_hour,omitempty"`
	AllowedIPs []string                `json:"allowed_ips,omitempty"`
}

// Permission 对某资源上某操作的授权，"*" 为通配
type Permission struct {
	Resource   string                `json:"resource"`
	Action     string                `json:"action"`
	Conditions []PermissionCondition `json:"conditions,omitempty"`
	Scope      string                `json:"scope,omitempty"`
}

// Role 角色及其授权集合
type Role struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}

// UserSecurityProfile 用户安全画像
type UserSecurityProfile struct {
	UserID            string       `json:"user_id"`
	Roles             []string     `json:"roles"`
	DirectPermissions []Permission `json:"direct_permissions"`
	MFAEnabled        bool         `json:"mfa_enabled"`
	RiskScore         float64      `json:"risk_score"`
	AccessPatterns    []string     `json:"access_patterns,omitempty"`
	TrustedDevices    []string     `json:"trusted_devices,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// EncryptionKey 对称加密密钥
type EncryptionKey struct {
	ID        string    `json:"id"`
	Material  []byte    `json:"-"`
	Algorithm string    `json:"algorithm"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsActive  bool      `json:"is_active"`
}

// Expired 判断密钥在给定时刻是否过期
func (k *EncryptionKey) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}
