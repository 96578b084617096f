package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	KeyGitHubToken = "github_token"
	KeyLLMAPIKey   = "llm_api_key"

	secretFileMode = 0600
)

// ErrNotFound is returned when no credential is stored under a key.
var ErrNotFound = errors.New("credential not found")

// Store keeps secrets in the OS keychain, falling back to files in Dir when
// the keychain is unavailable.
type Store struct {
	Service string
	Dir     string
}

// Set saves secret under key.
func (s Store) Set(key, secret string) error {
	if key == "" || secret == "" {
		return errors.New("key and secret are required")
	}
	if err := keyring.Set(s.Service, key, secret); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return s.setFile(key, secret)
	}

	// a keychain copy supersedes any file written by the fallback
	_ = os.Remove(s.path(key))
	return nil
}

// Get returns the secret for key, migrating file-stored secrets into the keychain.
func (s Store) Get(key string) (string, error) {
	secret, err := keyring.Get(s.Service, key)
	if err == nil && secret != "" {
		return secret, nil
	}

	secret, err = s.getFile(key)
	if err != nil {
		return "", err
	}

	if err := keyring.Set(s.Service, key, secret); err == nil {
		slog.Info("migrated credential from file to OS keychain", "key", key)
		_ = os.Remove(s.path(key))
	}
	return secret, nil
}

// Delete removes key from the keychain and the fallback file.
func (s Store) Delete(key string) error {
	err := keyring.Delete(s.Service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting %s from keychain: %w", key, err)
	}
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting %s file: %w", key, err)
	}
	return nil
}

func (s Store) path(key string) string {
	return filepath.Join(s.Dir, key)
}

func (s Store) setFile(key, secret string) error {
	if s.Dir == "" {
		return errors.New("credential directory required")
	}
	return os.WriteFile(s.path(key), []byte(secret), secretFileMode)
}

func (s Store) getFile(key string) (string, error) {
	if s.Dir == "" {
		return "", ErrNotFound
	}
	b, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading credential file %s: %w", s.path(key), err)
	}
	secret := strings.TrimSpace(string(b))
	if secret == "" {
		return "", ErrNotFound
	}
	return secret, nil
}
