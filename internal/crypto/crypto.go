// Package crypto — шифрование отдельных полей с персональными данными.
//
// Ключ загружается один раз при старте процесса; экземпляр Service
// передаётся потребителям явно, глобального состояния нет.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"

	"ArchiveKeeper/internal/apperr"
)

// keyLen — длина ключа для AES‑256 (в байтах).
const keyLen = 32

// payloadVersion — первый байт шифртекста, формат: version || nonce || ciphertext+tag.
const payloadVersion byte = 0x01

// lookupInfo — контекст HKDF для ключа детерминированного хеша.
const lookupInfo = "archivekeeper/lookup"

// известные заглушки, с которыми сервис запускаться не должен
var placeholderKeys = map[string]struct{}{
	"changeme":                 {},
	"change-me":                {},
	"secret":                   {},
	"dev-secret-key":           {},
	"your-encryption-key-here": {},
	"default":                  {},
}

// Service — симметричное аутентифицированное шифрование AES‑256‑GCM
// и одностороннее хеширование для поиска по зашифрованным полям.
type Service struct {
	aead      cipher.AEAD
	lookupKey []byte
}

// New разбирает ключ (64 hex-символа или base64 от 32 байт) и создаёт сервис.
// Отсутствующий, заглушечный или не 256-битный ключ — ошибка конфигурации.
func New(rawKey string) (*Service, error) {
	key, err := parseKey(rawKey)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeConfiguration, err, "init cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeConfiguration, err, "init gcm")
	}

	lookupKey := make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.New(sha256.New, key, nil, []byte(lookupInfo)), lookupKey); err != nil {
		return nil, apperr.Wrap(apperr.CodeConfiguration, err, "derive lookup key")
	}

	return &Service{aead: gcm, lookupKey: lookupKey}, nil
}

func parseKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.Configuration("ENCRYPTION_KEY is not set")
	}
	if _, bad := placeholderKeys[strings.ToLower(raw)]; bad {
		return nil, apperr.Configuration("ENCRYPTION_KEY is a known placeholder value")
	}

	var key []byte
	if b, err := hex.DecodeString(raw); err == nil {
		key = b
	} else if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		key = b
	} else {
		return nil, apperr.Configuration("ENCRYPTION_KEY must be hex or base64 encoded")
	}

	if len(key) != keyLen {
		return nil, apperr.Configuration("ENCRYPTION_KEY must be exactly 256 bits, got %d", len(key)*8)
	}
	if weakKey(key) {
		return nil, apperr.Configuration("ENCRYPTION_KEY is weak: all bytes are identical")
	}
	return key, nil
}

// weakKey ловит ключи из одного повторяющегося байта (нули, 0xff и т.п.).
func weakKey(key []byte) bool {
	for _, b := range key[1:] {
		if b != key[0] {
			return false
		}
	}
	return true
}

// Encrypt шифрует строку; каждый вызов использует свежий случайный nonce.
func (s *Service) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", apperr.Internal(err, "generate nonce")
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+s.aead.Overhead())
	out = append(out, payloadVersion)
	out = append(out, nonce...)
	out = s.aead.Seal(out, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt расшифровывает payload, созданный Encrypt.
// Любое повреждение или чужой ключ дают INTEGRITY_ERROR, а не мусор.
func (s *Service) Decrypt(payload string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeIntegrity, err, "malformed ciphertext encoding")
	}
	ns := s.aead.NonceSize()
	if len(raw) < 1+ns+s.aead.Overhead() {
		return "", apperr.Integrity("ciphertext too short")
	}
	if raw[0] != payloadVersion {
		return "", apperr.Integrity("unsupported ciphertext version %d", raw[0])
	}

	plain, err := s.aead.Open(nil, raw[1:1+ns], raw[1+ns:], nil)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeIntegrity, err, "ciphertext authentication failed")
	}
	return string(plain), nil
}

// Hash — детерминированный односторонний HMAC-SHA256 для поиска по равенству
// без расшифровки. Значение нормализуется только обрезкой пробелов.
func (s *Service) Hash(plaintext string) string {
	mac := hmac.New(sha256.New, s.lookupKey)
	mac.Write([]byte(strings.TrimSpace(plaintext)))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncryptFields возвращает копию values, где перечисленные строковые поля зашифрованы.
// Отсутствующие, nil и пустые поля пропускаются.
func (s *Service) EncryptFields(values map[string]any, fields ...string) (map[string]any, error) {
	return s.transformFields(values, fields, s.Encrypt)
}

// DecryptFields — обратная операция к EncryptFields.
func (s *Service) DecryptFields(values map[string]any, fields ...string) (map[string]any, error) {
	return s.transformFields(values, fields, s.Decrypt)
}

func (s *Service) transformFields(values map[string]any, fields []string, fn func(string) (string, error)) (map[string]any, error) {
	if values == nil {
		return nil, nil
	}
	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}
	for _, f := range fields {
		v, ok := out[f]
		if !ok || v == nil {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return nil, apperr.Validation("field %q is %T, only strings can be encrypted", f, v)
		}
		if str == "" {
			continue
		}
		res, err := fn(str)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f, err)
		}
		out[f] = res
	}
	return out, nil
}
