// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"bytes"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestStore returns an initialized store in a fresh temp directory.
func newTestStore(t *testing.T, passphrase string) *CredentialStore {
	t.Helper()
	store := NewCredentialStore(filepath.Join(t.TempDir(), ".meei"))
	require.NoError(t, store.Initialize(passphrase))
	return store
}

// =============================================================================
// KEY DERIVATION TESTS
// =============================================================================

func TestDeriveKey_Deterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")

	key1 := DeriveKey("passphrase", salt)
	key2 := DeriveKey("passphrase", salt)
	require.Len(t, key1, KeySize)
	require.True(t, bytes.Equal(key1, key2), "same passphrase/salt should derive same key")

	key3 := DeriveKey("passphrase", []byte("fedcba9876543210"))
	require.False(t, bytes.Equal(key1, key3), "different salt should derive different key")
}

func TestGenerateSalt_Unique(t *testing.T) {
	s1, err := GenerateSalt()
	require.NoError(t, err)
	s2, err := GenerateSalt()
	require.NoError(t, err)
	require.Len(t, s1, SaltSize)
	require.False(t, bytes.Equal(s1, s2))
}

// =============================================================================
// INITIALIZATION TESTS
// =============================================================================

func TestInitialize_CreatesOwnerOnlyFiles(t *testing.T) {
	store := newTestStore(t, "hunter2")
	require.True(t, store.IsInitialized())

	salt, err := os.ReadFile(filepath.Join(store.Dir(), SaltFileName))
	require.NoError(t, err)
	require.Len(t, salt, SaltSize)

	if runtime.GOOS == "windows" {
		return
	}

	for _, name := range []string{SaltFileName, KeyFileName} {
		info, err := os.Stat(filepath.Join(store.Dir(), name))
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), info.Mode().Perm(), name)
	}
	info, err := os.Stat(store.Dir())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0700), info.Mode().Perm())
}

func TestInitialize_RefusesOverwrite(t *testing.T) {
	store := newTestStore(t, "first")

	err := store.Initialize("second")
	require.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestReinitialize_InvalidatesOldTokens(t *testing.T) {
	store := newTestStore(t, "first")
	token, err := store.Encrypt([]byte("secret"))
	require.NoError(t, err)

	require.NoError(t, store.Reinitialize("second"))

	_, err = store.Decrypt(token)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestNotInitialized(t *testing.T) {
	store := NewCredentialStore(filepath.Join(t.TempDir(), ".meei"))
	require.False(t, store.IsInitialized())

	_, err := store.Encrypt([]byte("x"))
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = store.Decrypt("anything")
	require.ErrorIs(t, err, ErrNotInitialized)
	require.False(t, errors.Is(err, ErrIntegrity), "missing key must not look like tampering")

	_, err = store.EncryptWithPassphrase([]byte("x"), "pw")
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestIsInitialized_RequiresSalt(t *testing.T) {
	store := newTestStore(t, "pw")
	require.NoError(t, os.Remove(filepath.Join(store.Dir(), SaltFileName)))

	require.False(t, store.IsInitialized())
	_, err := store.EncryptWithPassphrase([]byte("x"), "pw")
	require.ErrorIs(t, err, ErrNotInitialized)
}

// =============================================================================
// ROUND-TRIP TESTS
// =============================================================================

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	store := newTestStore(t, "pw")

	cases := [][]byte{
		[]byte(`{"providers":{}}`),
		[]byte(""),
		[]byte("多語言 🔑"),
		bytes.Repeat([]byte("a"), 64*1024),
	}
	for _, plaintext := range cases {
		token, err := store.Encrypt(plaintext)
		require.NoError(t, err)

		got, err := store.Decrypt(token)
		require.NoError(t, err)
		require.Equal(t, string(plaintext), string(got))
	}
}

func TestEncrypt_NonceUnique(t *testing.T) {
	store := newTestStore(t, "pw")

	t1, err := store.Encrypt([]byte("same"))
	require.NoError(t, err)
	t2, err := store.Encrypt([]byte("same"))
	require.NoError(t, err)
	require.NotEqual(t, t1, t2)
}

func TestPassphrase_MatchesStoredKey(t *testing.T) {
	store := newTestStore(t, "correct horse")

	token, err := store.EncryptWithPassphrase([]byte("payload"), "correct horse")
	require.NoError(t, err)

	// The stored key was derived from the same passphrase and salt
	got, err := store.Decrypt(token)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))

	got, err = store.DecryptWithPassphrase(token, "correct horse")
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestDecrypt_WrongPassphrase(t *testing.T) {
	store := newTestStore(t, "right")
	token, err := store.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = store.DecryptWithPassphrase(token, "wrong")
	require.ErrorIs(t, err, ErrIntegrity)
}

// =============================================================================
// INTEGRITY TESTS
// =============================================================================

func TestDecrypt_Tampered(t *testing.T) {
	store := newTestStore(t, "pw")
	token, err := store.Encrypt([]byte("payload"))
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(token)
	require.NoError(t, err)

	// Flip one bit in each region: timestamp, nonce, ciphertext, tag
	for _, idx := range []int{3, headerSize + 1, headerSize + NonceSize, len(raw) - 1} {
		tampered := append([]byte(nil), raw...)
		tampered[idx] ^= 0x01
		_, err := store.Decrypt(base64.URLEncoding.EncodeToString(tampered))
		require.ErrorIs(t, err, ErrIntegrity, "byte %d", idx)
	}
}

func TestDecrypt_Malformed(t *testing.T) {
	store := newTestStore(t, "pw")

	for _, token := range []string{"", "not base64!!", base64.URLEncoding.EncodeToString([]byte("short"))} {
		_, err := store.Decrypt(token)
		require.ErrorIs(t, err, ErrIntegrity, "token %q", token)
	}
}

func TestTokenIssuedAt(t *testing.T) {
	store := newTestStore(t, "pw")
	before := time.Now().Add(-time.Second)

	token, err := store.Encrypt([]byte("x"))
	require.NoError(t, err)

	issued, err := TokenIssuedAt(token)
	require.NoError(t, err)
	require.False(t, issued.Before(before.Truncate(time.Second)))
	require.False(t, issued.After(time.Now().Add(time.Second)))
}

// =============================================================================
// KEYSTORE TESTS
// =============================================================================

func TestFileKeyStore_RejectsInsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions not supported on Windows")
	}
	dir := filepath.Join(t.TempDir(), "keys")
	ks := NewFileKeyStore(filepath.Join(dir, KeyFileName))
	require.NoError(t, ks.Store(make([]byte, KeySize)))

	require.NoError(t, os.Chmod(ks.Path(), 0644))
	_, err := ks.Retrieve()
	require.ErrorIs(t, err, ErrInsecurePermissions)

	require.NoError(t, os.Chmod(ks.Path(), 0600))
	require.NoError(t, os.Chmod(dir, 0755))
	_, err = ks.Retrieve()
	require.ErrorIs(t, err, ErrInsecurePermissions)
}

func TestFileKeyStore_Delete(t *testing.T) {
	// A fresh subdirectory is created 0700 regardless of umask
	ks := NewFileKeyStore(filepath.Join(t.TempDir(), "keys", KeyFileName))
	require.NoError(t, ks.Store([]byte("0123456789abcdef0123456789abcdef")))
	require.True(t, ks.Exists())

	require.NoError(t, ks.Delete())
	require.False(t, ks.Exists())
	require.NoError(t, ks.Delete(), "deleting a missing key is not an error")
}
