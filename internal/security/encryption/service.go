package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/kashguard/go-sentinel/internal/security/keys"
	"github.com/kashguard/go-sentinel/internal/security/types"
)

var (
	ErrInvalidEnvelope      = errors.New("invalid encryption envelope")
	ErrUnknownAlgorithm     = errors.New("unknown encryption algorithm")
	ErrAuthenticationFailed = errors.New("ciphertext authentication failed")
)

const gcmTagSize = 16

// Service 认证加密服务接口
// 任意可 JSON 序列化的值加密为信封，用加密时的密钥可解密还原
type Service interface {
	Encrypt(ctx context.Context, value interface{}) (*types.EncryptedEnvelope, error)
	EncryptWithKey(key *types.EncryptionKey, value interface{}) (*types.EncryptedEnvelope, error)
	Decrypt(ctx context.Context, envelope *types.EncryptedEnvelope) (interface{}, error)
}

// service 认证加密服务实现（AES-256-GCM）
type service struct {
	keyManager keys.Manager
}

// NewService 创建新的认证加密服务
//
//nolint:ireturn // returning interface is intentional for abstraction
func NewService(keyManager keys.Manager) Service {
	return &service{keyManager: keyManager}
}

// Encrypt 使用当前激活密钥加密
func (s *service) Encrypt(ctx context.Context, value interface{}) (*types.EncryptedEnvelope, error) {
	key, err := s.keyManager.GetActiveKey(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get active key")
	}
	return s.EncryptWithKey(key, value)
}

// EncryptWithKey 使用指定密钥加密
func (s *service) EncryptWithKey(key *types.EncryptionKey, value interface{}) (*types.EncryptedEnvelope, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal plaintext")
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}

	sealed := aead.Seal(nil, nonce, plaintext, []byte(key.ID))
	ciphertext := sealed[:len(sealed)-gcmTagSize]
	authTag := sealed[len(sealed)-gcmTagSize:]

	return &types.EncryptedEnvelope{
		Ciphertext: base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)),
		AuthTag:    base64.StdEncoding.EncodeToString(authTag),
		KeyID:      key.ID,
		Algorithm:  key.Algorithm,
	}, nil
}

// Decrypt 解密信封（历史密钥仅停用不删除，旧密文始终可解）
func (s *service) Decrypt(ctx context.Context, envelope *types.EncryptedEnvelope) (interface{}, error) {
	if envelope == nil || envelope.Ciphertext == "" || envelope.KeyID == "" {
		return nil, ErrInvalidEnvelope
	}

	key, err := s.keyManager.GetKey(ctx, envelope.KeyID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get decryption key")
	}
	if envelope.Algorithm != key.Algorithm {
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%s", envelope.Algorithm)
	}

	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	raw, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidEnvelope, "failed to decode ciphertext")
	}
	authTag, err := base64.StdEncoding.DecodeString(envelope.AuthTag)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidEnvelope, "failed to decode auth tag")
	}
	if len(raw) < aead.NonceSize() {
		return nil, ErrInvalidEnvelope
	}

	nonce := raw[:aead.NonceSize()]
	sealed := append(raw[aead.NonceSize():], authTag...)

	plaintext, err := aead.Open(nil, nonce, sealed, []byte(key.ID))
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	var value interface{}
	if err := json.Unmarshal(plaintext, &value); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal plaintext")
	}
	return value, nil
}

func newAEAD(key *types.EncryptionKey) (cipher.AEAD, error) {
	if key.Algorithm != keys.AlgorithmAES256GCM {
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%s", key.Algorithm)
	}

	block, err := aes.NewCipher(key.Material)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create GCM")
	}
	return aead, nil
}
