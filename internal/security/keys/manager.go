package keys

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kashguard/go-sentinel/internal/metrics"
	"github.com/kashguard/go-sentinel/internal/security/storage"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyInactive = errors.New("key is inactive")
)

const (
	// AlgorithmAES256GCM 新密钥的算法标识
	AlgorithmAES256GCM = "AES-256-GCM"

	keyBytes    = 32
	keyValidity = 90 * 24 * time.Hour
)

// Manager 密钥管理服务接口
type Manager interface {
	GetActiveKey(ctx context.Context) (*types.EncryptionKey, error)
	GetKey(ctx context.Context, keyID string) (*types.EncryptionKey, error)
	MintKey(ctx context.Context) (*types.EncryptionKey, error)
	Rotate(ctx context.Context, within time.Duration) (*types.EncryptionKey, error)
	ListKeys(ctx context.Context) ([]*types.EncryptionKey, error)
}

// manager 密钥管理服务实现
type manager struct {
	store storage.Store
	now   func() time.Time

	// 串行化选取与铸造，保证同一时刻只有一个激活密钥
	mu sync.Mutex
}

// NewManager 创建新的密钥管理服务
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewManager(store storage.Store) Manager {
	return &manager{
		store: store,
		now:   time.Now,
	}
}

// GetActiveKey 返回首个激活且未过期的密钥，不存在则铸造新密钥
func (m *manager) GetActiveKey(ctx context.Context) (*types.EncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, err := m.findActiveKey(ctx)
	if err != nil {
		return nil, err
	}
	if key != nil {
		return key, nil
	}

	return m.mintKey(ctx)
}

// GetKey 按 ID 获取密钥（含历史密钥，供解密使用）
func (m *manager) GetKey(ctx context.Context, keyID string) (*types.EncryptionKey, error) {
	key, err := m.store.GetKey(ctx, keyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.Wrapf(ErrKeyNotFound, "%s", keyID)
		}
		return nil, errors.Wrap(err, "failed to get key")
	}
	return key, nil
}

// MintKey 铸造并保存一把新的 AES-256 密钥
func (m *manager) MintKey(ctx context.Context) (*types.EncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.mintKey(ctx)
}

// Rotate 轮换密钥：激活密钥剩余有效期低于 within 时铸造新密钥并停用旧密钥
// 历史密钥保留（仅停用），既有密文仍可解密
// 返回新铸造的密钥；无需轮换时返回 nil
func (m *manager) Rotate(ctx context.Context, within time.Duration) (*types.EncryptionKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active, err := m.findActiveKey(ctx)
	if err != nil {
		return nil, err
	}

	if active != nil && active.ExpiresAt.Sub(m.now()) > within {
		return nil, nil //nolint:nilnil // no rotation needed is not an error
	}

	newKey, err := m.mintKey(ctx)
	if err != nil {
		return nil, err
	}

	metrics.KeyRotations.Inc()
	log.Info().Str("key_id", newKey.ID).Msg("Encryption key rotated")
	return newKey, nil
}

// ListKeys 列出全部密钥
func (m *manager) ListKeys(ctx context.Context) ([]*types.EncryptionKey, error) {
	keys, err := m.store.ListKeys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list keys")
	}
	return keys, nil
}

func (m *manager) findActiveKey(ctx context.Context) (*types.EncryptionKey, error) {
	keys, err := m.store.ListKeys(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list keys")
	}

	now := m.now()
	for _, key := range keys {
		if key.IsActive && !key.Expired(now) {
			return key, nil
		}
	}
	return nil, nil //nolint:nilnil // absence of an active key is not an error
}

// mintKey 铸造新密钥并停用此前的激活密钥，任何铸造路径后都只剩一把可选密钥
func (m *manager) mintKey(ctx context.Context) (*types.EncryptionKey, error) {
	prior, err := m.findActiveKey(ctx)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		if err := m.store.SetKeyActive(ctx, prior.ID, false); err != nil {
			return nil, errors.Wrap(err, "failed to deactivate key")
		}
	}

	material := make([]byte, keyBytes)
	if _, err := rand.Read(material); err != nil {
		return nil, errors.Wrap(err, "failed to generate key material")
	}

	now := m.now()
	key := &types.EncryptionKey{
		ID:        "key-" + uuid.New().String(),
		Material:  material,
		Algorithm: AlgorithmAES256GCM,
		CreatedAt: now,
		ExpiresAt: now.Add(keyValidity),
		IsActive:  true,
	}

	if err := m.store.SaveKey(ctx, key); err != nil {
		return nil, errors.Wrap(err, "failed to save key")
	}
	return key, nil
}
