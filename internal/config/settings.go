// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Jeffrey0117/meei/internal/security"
	"github.com/Jeffrey0117/meei/internal/util"
)

// SettingsFileName is the encrypted settings document inside the home directory.
const SettingsFileName = "config.enc"

// providersKey is the top-level section holding one sub-section per provider.
const providersKey = "providers"

var (
	// ErrConfiguration is the root of every settings error.
	ErrConfiguration = errors.New("configuration error")

	// ErrNotInitialized is returned when the credential store has no key.
	// It also matches security.ErrNotInitialized.
	ErrNotInitialized = fmt.Errorf("%w: %w", ErrConfiguration, security.ErrNotInitialized)

	// ErrInvalidKey is returned for empty keys, empty segments, and paths
	// that run through a non-section value.
	ErrInvalidKey = fmt.Errorf("%w: invalid settings key", ErrConfiguration)
)

// Cipher seals and opens the settings document.
// *security.CredentialStore satisfies it.
type Cipher interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(token string) ([]byte, error)
	IsInitialized() bool
}

// Document is the decrypted settings tree.
type Document map[string]any

func newDocument() Document {
	return Document{providersKey: map[string]any{}}
}

// =============================================================================
// SETTINGS STORE
// =============================================================================

// Settings is the encrypted dotted-path settings store. Every call reads the
// file from disk, so changes made by another process are always visible.
type Settings struct {
	cipher Cipher
	path   string

	// Serializes read-modify-write within the process
	mu sync.Mutex
}

// NewSettings returns a store persisting to <dir>/config.enc.
func NewSettings(cipher Cipher, dir string) *Settings {
	return &Settings{
		cipher: cipher,
		path:   filepath.Join(dir, SettingsFileName),
	}
}

// Path returns the encrypted document location.
func (s *Settings) Path() string {
	return s.path
}

// Load decrypts and returns the whole document. A missing file yields an
// empty document.
func (s *Settings) Load() (Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return newDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	plaintext, err := s.cipher.Decrypt(string(data))
	if errors.Is(err, security.ErrNotInitialized) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt settings: %w", err)
	}
	defer security.ZeroBytes(plaintext)

	var doc Document
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return nil, fmt.Errorf("%w: settings document is not valid JSON: %v", ErrConfiguration, err)
	}
	if doc == nil {
		doc = newDocument()
	}
	if _, err := providerRoot(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Settings) save(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	defer security.ZeroBytes(data)

	token, err := s.cipher.Encrypt(data)
	if errors.Is(err, security.ErrNotInitialized) {
		return ErrNotInitialized
	}
	if err != nil {
		return fmt.Errorf("failed to encrypt settings: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFileWithDir(s.path, []byte(token), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// =============================================================================
// DOTTED-PATH ACCESS
// =============================================================================

// Get returns the value at key under the providers section. The boolean is
// false when any segment is missing or passes through a non-section value.
func (s *Settings) Get(key string) (any, bool, error) {
	parts, err := splitKey(key)
	if err != nil {
		return nil, false, err
	}
	doc, err := s.Load()
	if err != nil {
		return nil, false, err
	}
	root, err := providerRoot(doc)
	if err != nil {
		return nil, false, err
	}
	v, ok := lookup(root, parts)
	return v, ok, nil
}

// GetString returns the value at key rendered as a string, or def when the
// key is absent.
func (s *Settings) GetString(key, def string) (string, error) {
	v, ok, err := s.Get(key)
	if err != nil || !ok || v == nil {
		return def, err
	}
	if str, isStr := v.(string); isStr {
		return str, nil
	}
	return fmt.Sprint(v), nil
}

// Set stores value at key, creating intermediate sections, and persists the
// document.
func (s *Settings) Set(key string, value any) error {
	parts, err := splitKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cipher.IsInitialized() {
		return ErrNotInitialized
	}

	doc, err := s.Load()
	if err != nil {
		return err
	}
	section, err := providerRoot(doc)
	if err != nil {
		return err
	}

	for i, part := range parts[:len(parts)-1] {
		next, ok := section[part]
		if !ok || next == nil {
			child := map[string]any{}
			section[part] = child
			section = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %q holds a value, not a section", ErrInvalidKey, strings.Join(parts[:i+1], "."))
		}
		section = child
	}
	section[parts[len(parts)-1]] = value

	return s.save(doc)
}

// Delete removes key and persists the document. It reports whether the key
// existed; a missing key is not an error.
func (s *Settings) Delete(key string) (bool, error) {
	parts, err := splitKey(key)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.Load()
	if err != nil {
		return false, err
	}
	root, err := providerRoot(doc)
	if err != nil {
		return false, err
	}

	parent, ok := lookup(root, parts[:len(parts)-1])
	if !ok {
		return false, nil
	}
	section, ok := parent.(map[string]any)
	if !ok {
		return false, nil
	}
	last := parts[len(parts)-1]
	if _, exists := section[last]; !exists {
		return false, nil
	}
	delete(section, last)

	if err := s.save(doc); err != nil {
		return false, err
	}
	return true, nil
}

// Provider returns the section stored under name, or an empty map.
func (s *Settings) Provider(name string) (map[string]any, error) {
	v, ok, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	if section, isMap := v.(map[string]any); ok && isMap {
		return section, nil
	}
	return map[string]any{}, nil
}

// ListProviders returns the sorted names under the providers section.
func (s *Settings) ListProviders() ([]string, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	root, err := providerRoot(doc)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(root))
	for k := range root {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

// providerRoot returns doc["providers"], adding it when absent. Other
// top-level keys are left as they are.
func providerRoot(doc Document) (map[string]any, error) {
	v, ok := doc[providersKey]
	if !ok || v == nil {
		root := map[string]any{}
		doc[providersKey] = root
		return root, nil
	}
	root, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a section", ErrConfiguration, providersKey)
	}
	return root, nil
}

func splitKey(key string) ([]string, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: %q has an empty segment", ErrInvalidKey, key)
		}
	}
	return parts, nil
}

func lookup(root map[string]any, parts []string) (any, bool) {
	var cur any = root
	for _, p := range parts {
		section, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = section[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}
