// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

package security

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/Jeffrey0117/meei/internal/util"
	"golang.org/x/sys/windows"
)

// =============================================================================
// WINDOWS DPAPI KEY STORE
// =============================================================================

// DPAPIKeyStore wraps the derived key with the current user's DPAPI
// credentials before writing it, since POSIX modes do not protect files on
// Windows.
type DPAPIKeyStore struct {
	path string
}

// NewKeyStore returns the DPAPI-backed key store used on Windows.
func NewKeyStore(path string) KeyStore {
	return &DPAPIKeyStore{path: path}
}

// Store protects the key with DPAPI and writes it atomically.
func (w *DPAPIKeyStore) Store(key []byte) error {
	wrapped, err := dpAPIEncrypt(key)
	if err != nil {
		return fmt.Errorf("DPAPI encryption failed: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(w.path, wrapped, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Retrieve reads and unwraps the key.
func (w *DPAPIKeyStore) Retrieve() ([]byte, error) {
	wrapped, err := os.ReadFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := dpAPIDecrypt(wrapped)
	if err != nil {
		return nil, fmt.Errorf("DPAPI decryption failed: %w", err)
	}
	return key, nil
}

// Delete removes the key file.
func (w *DPAPIKeyStore) Delete() error {
	if err := os.Remove(w.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// Exists checks if the key file exists.
func (w *DPAPIKeyStore) Exists() bool {
	_, err := os.Stat(w.path)
	return err == nil
}

// checkOwnerOnly is a no-op on Windows; DPAPI binds the key to the user.
func checkOwnerOnly(string) error {
	return nil
}

// =============================================================================
// DPAPI
// =============================================================================

// dpAPIEncrypt wraps data with DPAPI, bound to the current user.
func dpAPIEncrypt(data []byte) ([]byte, error) {
	return dpapi(data, func(in, out *windows.DataBlob) error {
		return windows.CryptProtectData(in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, out)
	})
}

// dpAPIDecrypt unwraps data produced by dpAPIEncrypt.
func dpAPIDecrypt(data []byte) ([]byte, error) {
	return dpapi(data, func(in, out *windows.DataBlob) error {
		return windows.CryptUnprotectData(in, nil, nil, 0, nil, windows.CRYPTPROTECT_UI_FORBIDDEN, out)
	})
}

func dpapi(data []byte, call func(in, out *windows.DataBlob) error) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty data")
	}

	in := windows.DataBlob{Size: uint32(len(data)), Data: &data[0]}
	var out windows.DataBlob
	if err := call(&in, &out); err != nil {
		return nil, err
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(out.Data)))

	result := make([]byte, out.Size)
	copy(result, unsafe.Slice(out.Data, out.Size))
	return result, nil
}
