// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package security

import (
	"errors"
	"fmt"
	"os"

	"github.com/Jeffrey0117/meei/internal/util"
)

// =============================================================================
// KEYSTORE INTERFACE
// =============================================================================

// KeyStore persists the derived master key.
// NewKeyStore returns the platform implementation:
//   - Unix: owner-only file (FileKeyStore)
//   - Windows: DPAPI-wrapped file (DPAPIKeyStore)
type KeyStore interface {
	// Store persists the key, replacing any previous one.
	Store(key []byte) error
	// Retrieve returns the stored key.
	Retrieve() ([]byte, error)
	// Delete removes the key. A missing key is not an error.
	Delete() error
	// Exists checks if a key is stored.
	Exists() bool
}

// =============================================================================
// FILE-BASED KEYSTORE
// =============================================================================

// FileKeyStore keeps the raw key in a file with mode 0600 inside a 0700
// directory.
type FileKeyStore struct {
	path string
}

// NewFileKeyStore creates a new file-based key store.
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// Path returns the key file location.
func (f *FileKeyStore) Path() string {
	return f.path
}

// Store writes the key atomically with owner-only permissions.
func (f *FileKeyStore) Store(key []byte) error {
	if err := util.AtomicWriteFileWithDir(f.path, key, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return checkOwnerOnly(f.path)
}

// Retrieve reads the key after verifying that neither the file nor its
// directory is accessible to other users.
func (f *FileKeyStore) Retrieve() ([]byte, error) {
	if err := checkOwnerOnly(f.path); err != nil {
		return nil, err
	}
	key, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return key, nil
}

// Delete overwrites the key file with zeros before removing it.
func (f *FileKeyStore) Delete() error {
	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat key file: %w", err)
	}

	_ = os.WriteFile(f.path, make([]byte, info.Size()), 0600)

	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// Exists checks if the key file exists.
func (f *FileKeyStore) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}
