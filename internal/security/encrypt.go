// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Jeffrey0117/meei/internal/util"
	"golang.org/x/crypto/pbkdf2"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// PBKDF2Iterations is the PBKDF2-HMAC-SHA256 work factor.
	PBKDF2Iterations = 480000

	// KeySize is the size of the AES-256 key (32 bytes / 256 bits)
	KeySize = 32

	// SaltSize is the size of the key derivation salt.
	SaltSize = 16

	// NonceSize is the size of the nonce/IV for AES-GCM (12 bytes / 96 bits)
	NonceSize = 12

	// TokenVersion is the first byte of every token.
	TokenVersion byte = 0x01

	// SaltFileName and KeyFileName live directly in the base directory.
	SaltFileName = ".salt"
	KeyFileName  = ".key"

	headerSize = 1 + 8
	tagSize    = 16
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotInitialized is returned when no key or salt has been created yet.
	ErrNotInitialized = errors.New("credential store not initialized: run 'meei init'")

	// ErrAlreadyInitialized is returned by Initialize when a key already exists.
	ErrAlreadyInitialized = errors.New("credential store already initialized")

	// ErrIntegrity is returned when a token was produced under a different
	// key, was modified, or is not a token at all.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrInsecurePermissions is returned when the key file or its directory
	// is readable by other users.
	ErrInsecurePermissions = errors.New("insecure key file permissions")
)

// =============================================================================
// SECURITY HELPER FUNCTIONS
// =============================================================================

// ZeroBytes securely zeros sensitive byte slices to prevent memory disclosure.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// GenerateSalt generates a cryptographically secure random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey derives an encryption key from a passphrase and salt using
// PBKDF2-HMAC-SHA256. The result is deterministic for a given pair.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, PBKDF2Iterations, KeySize, sha256.New)
}

// =============================================================================
// CREDENTIAL STORE
// =============================================================================

// CredentialStore owns the master key material for one base directory.
// It is safe for concurrent use.
type CredentialStore struct {
	dir      string
	saltPath string
	keys     KeyStore

	mu sync.RWMutex
}

// NewCredentialStore returns a store rooted at dir using the platform key store.
func NewCredentialStore(dir string) *CredentialStore {
	return NewCredentialStoreWithKeyStore(dir, NewKeyStore(filepath.Join(dir, KeyFileName)))
}

// NewCredentialStoreWithKeyStore returns a store rooted at dir that keeps the
// derived key in ks.
func NewCredentialStoreWithKeyStore(dir string, ks KeyStore) *CredentialStore {
	return &CredentialStore{
		dir:      dir,
		saltPath: filepath.Join(dir, SaltFileName),
		keys:     ks,
	}
}

// Dir returns the base directory.
func (s *CredentialStore) Dir() string {
	return s.dir
}

// IsInitialized reports whether both the derived key and its salt have been
// persisted.
func (s *CredentialStore) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.keys.Exists() {
		return false
	}
	_, err := os.Stat(s.saltPath)
	return err == nil
}

// Initialize creates a fresh salt, derives the master key from passphrase and
// persists both with owner-only permissions. It refuses to overwrite an
// existing key; use Reinitialize for that.
func (s *CredentialStore) Initialize(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys.Exists() {
		return ErrAlreadyInitialized
	}
	return s.initialize(passphrase)
}

// Reinitialize replaces the salt and key. Tokens produced under the previous
// key can no longer be decrypted.
func (s *CredentialStore) Reinitialize(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialize(passphrase)
}

func (s *CredentialStore) initialize(passphrase string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}
	// MkdirAll leaves an existing directory's mode alone
	if err := os.Chmod(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to restrict base directory: %w", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return err
	}

	key := DeriveKey(passphrase, salt)
	defer ZeroBytes(key)

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFileWithDir(s.saltPath, salt, 0600, 0700); err != nil {
		return fmt.Errorf("failed to save salt: %w", err)
	}

	if err := s.keys.Store(key); err != nil {
		_ = os.Remove(s.saltPath)
		return fmt.Errorf("failed to store master key: %w", err)
	}
	return nil
}

// =============================================================================
// ENCRYPTION
// =============================================================================

// Encrypt seals plaintext under the stored master key.
func (s *CredentialStore) Encrypt(plaintext []byte) (string, error) {
	key, err := s.storedKey()
	if err != nil {
		return "", err
	}
	defer ZeroBytes(key)
	return seal(key, plaintext, time.Now())
}

// EncryptWithPassphrase seals plaintext under a key re-derived from
// passphrase and the stored salt.
func (s *CredentialStore) EncryptWithPassphrase(plaintext []byte, passphrase string) (string, error) {
	key, err := s.passphraseKey(passphrase)
	if err != nil {
		return "", err
	}
	defer ZeroBytes(key)
	return seal(key, plaintext, time.Now())
}

// Decrypt opens a token produced by Encrypt. A token sealed under another key,
// or modified in any way, fails with ErrIntegrity.
func (s *CredentialStore) Decrypt(token string) ([]byte, error) {
	key, err := s.storedKey()
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(key)
	return open(key, token)
}

// DecryptWithPassphrase opens a token using a key re-derived from passphrase
// and the stored salt.
func (s *CredentialStore) DecryptWithPassphrase(token, passphrase string) ([]byte, error) {
	key, err := s.passphraseKey(passphrase)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(key)
	return open(key, token)
}

// TokenIssuedAt returns the creation time embedded in a token. It does not
// verify the token.
func TokenIssuedAt(token string) (time.Time, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(binary.BigEndian.Uint64(raw[1:headerSize])), 0).UTC(), nil
}

func (s *CredentialStore) storedKey() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.keys.Exists() {
		return nil, ErrNotInitialized
	}
	key, err := s.keys.Retrieve()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve master key: %w", err)
	}
	if len(key) != KeySize {
		ZeroBytes(key)
		return nil, fmt.Errorf("master key has invalid length %d", len(key))
	}
	return key, nil
}

func (s *CredentialStore) passphraseKey(passphrase string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	salt, err := os.ReadFile(s.saltPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}
	return DeriveKey(passphrase, salt), nil
}

// =============================================================================
// TOKEN CODEC
// =============================================================================

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

func seal(key, plaintext []byte, issued time.Time) (string, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	header := make([]byte, headerSize)
	header[0] = TokenVersion
	binary.BigEndian.PutUint64(header[1:], uint64(issued.Unix()))

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, headerSize+NonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, plaintext, header)
	return base64.URLEncoding.EncodeToString(out), nil
}

func open(key []byte, token string) ([]byte, error) {
	raw, err := decodeToken(token)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	header := raw[:headerSize]
	nonce := raw[headerSize : headerSize+NonceSize]
	plaintext, err := gcm.Open(nil, nonce, raw[headerSize+NonceSize:], header)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong key or tampered data", ErrIntegrity)
	}
	return plaintext, nil
}

func decodeToken(token string) ([]byte, error) {
	raw, err := base64.URLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: token is not valid base64", ErrIntegrity)
	}
	if len(raw) < headerSize+NonceSize+tagSize {
		return nil, fmt.Errorf("%w: token too short", ErrIntegrity)
	}
	if raw[0] != TokenVersion {
		return nil, fmt.Errorf("%w: unsupported token version %d", ErrIntegrity, raw[0])
	}
	return raw, nil
}
