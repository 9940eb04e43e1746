// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !windows

package security

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// NewKeyStore returns the owner-only file key store used on Unix.
func NewKeyStore(path string) KeyStore {
	return NewFileKeyStore(path)
}

// checkOwnerOnly verifies that path and its directory belong to the current
// user and grant nothing to group or other.
func checkOwnerOnly(path string) error {
	uid := uint32(unix.Getuid())

	for _, p := range []string{filepath.Dir(path), path} {
		var st unix.Stat_t
		if err := unix.Stat(p, &st); err != nil {
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if st.Uid != uid {
			return fmt.Errorf("%w: %s is owned by uid %d", ErrInsecurePermissions, p, st.Uid)
		}
		if mode := st.Mode & 0777; mode&0077 != 0 {
			return fmt.Errorf("%w: %s has mode %o (fix with: chmod go-rwx %s)",
				ErrInsecurePermissions, p, mode, p)
		}
	}
	return nil
}
