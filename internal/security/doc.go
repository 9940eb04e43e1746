// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package security implements the meei credential store: passphrase-based
// master key derivation and authenticated encryption of the settings file.
//
// # Key Types
//
//   - CredentialStore: owns the salt and key files in the base directory
//   - KeyStore: platform storage for the derived key (0600 file on Unix,
//     DPAPI-wrapped file on Windows)
//
// # Token Format
//
// Encrypt produces a URL-safe base64 token:
//
//	version(1) | issued-at unix seconds(8) | nonce(12) | AES-256-GCM ciphertext+tag
//
// The version and timestamp are authenticated as additional data, so any
// modification fails with ErrIntegrity.
//
// # Usage
//
//	store := security.NewCredentialStore(filepath.Join(home, ".meei"))
//	if err := store.Initialize(passphrase); err != nil {
//	    return err
//	}
//	token, err := store.Encrypt([]byte(`{"providers":{}}`))
//	plain, err := store.Decrypt(token)
package security
