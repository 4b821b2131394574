package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/argon2"
)

// VersionAESGCM tags ciphertexts as 0x01 || nonce(12) || AES-256-GCM output.
const VersionAESGCM byte = 0x01

const keySize = 32

var (
	ErrMissingKey     = errors.New("master key is required")
	ErrInvalidKey     = errors.New("master key must decode to 32 bytes or be paired with a key salt")
	ErrUntagged       = errors.New("ciphertext carries no version tag")
	ErrAuthentication = errors.New("ciphertext failed authentication")
)

type Service struct {
	aead cipher.AEAD
}

// New builds the AEAD from an operator key. Hex or base64 encodings of 32 bytes
// are used as-is; any other value is stretched with argon2id and salt.
func New(key, salt string) (*Service, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	decoded, err := decodeKey(key, salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(decoded)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Service{aead: gcm}, nil
}

func (s *Service) Seal(plain, aad []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(nonce)+len(plain)+s.aead.Overhead())
	out = append(out, VersionAESGCM)
	out = append(out, nonce...)
	return s.aead.Seal(out, nonce, plain, aad), nil
}

func (s *Service) Open(ciphertext, aad []byte) ([]byte, error) {
	if !IsTagged(ciphertext) {
		return nil, ErrUntagged
	}
	body := ciphertext[1:]
	nonce := body[:s.aead.NonceSize()]
	plain, err := s.aead.Open(nil, nonce, body[s.aead.NonceSize():], aad)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plain, nil
}

func (s *Service) EncryptString(value string, aad []byte) ([]byte, error) {
	return s.Seal([]byte(value), aad)
}

func (s *Service) DecryptString(value, aad []byte) (string, error) {
	plain, err := s.Open(value, aad)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// IsTagged reports whether b looks like output of Seal: a known version byte and
// room for a nonce and tag. Legacy plaintext rows fail this check.
func IsTagged(b []byte) bool {
	const minLen = 1 + 12 + 16
	return len(b) >= minLen && b[0] == VersionAESGCM
}

func decodeKey(raw, salt string) ([]byte, error) {
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded, nil
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && len(decoded) == keySize {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil && len(decoded) == keySize {
		return decoded, nil
	}
	if salt == "" {
		return nil, ErrInvalidKey
	}
	return argon2.IDKey([]byte(raw), []byte(salt), 1, 64*1024, 4, keySize), nil
}
