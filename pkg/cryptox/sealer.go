package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for deriving sealing keys from a passphrase.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

const sealVersion byte = 1

var (
	ErrEmptyPassphrase = errors.New("cryptox: passphrase must not be empty")
	ErrSealedTooShort  = errors.New("cryptox: sealed data too short")
	ErrSealVersion     = errors.New("cryptox: unsupported sealed data version")
)

// Sealer encrypts small blobs at rest with AES-256-GCM. The key is derived
// from a passphrase with Argon2id; the salt travels with every blob.
//
// Output format: [1-byte version][16-byte salt][12-byte nonce][ciphertext+tag]
type Sealer struct {
	passphrase []byte
	salt       []byte

	mu   sync.Mutex
	keys map[string]cipher.AEAD // salt -> aead
}

func NewSealer(passphrase string) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return &Sealer{
		passphrase: []byte(passphrase),
		salt:       salt,
		keys:       make(map[string]cipher.AEAD),
	}, nil
}

func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gcm, ok := s.keys[string(salt)]; ok {
		return gcm, nil
	}

	key := argon2.IDKey(s.passphrase, salt, iterations, memory, parallelism, keyLength)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	s.keys[string(salt)] = gcm
	return gcm, nil
}

// Seal encrypts and authenticates plaintext.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := s.aead(s.salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, 1+saltLength+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, sealVersion)
	out = append(out, s.salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Open reverses Seal. Blobs sealed under another salt (a previous process)
// are opened as long as the passphrase matches.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < 1+saltLength {
		return nil, ErrSealedTooShort
	}
	if sealed[0] != sealVersion {
		return nil, ErrSealVersion
	}
	salt := sealed[1 : 1+saltLength]

	gcm, err := s.aead(salt)
	if err != nil {
		return nil, err
	}

	rest := sealed[1+saltLength:]
	if len(rest) < gcm.NonceSize() {
		return nil, ErrSealedTooShort
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
