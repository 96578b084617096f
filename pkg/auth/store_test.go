package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestStore_Keychain(t *testing.T) {
	keyring.MockInit()
	s := Store{Service: "permitctl-test", Dir: t.TempDir()}

	require.NoError(t, s.Set(KeyLLMAPIKey, "secret"))
	got, err := s.Get(KeyLLMAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
	assert.NoFileExists(t, filepath.Join(s.Dir, KeyLLMAPIKey))

	require.NoError(t, s.Delete(KeyLLMAPIKey))
	_, err = s.Get(KeyLLMAPIKey)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_FileFallbackMigrates(t *testing.T) {
	keyring.MockInit()
	s := Store{Service: "permitctl-test", Dir: t.TempDir()}
	path := filepath.Join(s.Dir, KeyGitHubToken)
	require.NoError(t, os.WriteFile(path, []byte("gho_file\n"), 0600))

	got, err := s.Get(KeyGitHubToken)
	require.NoError(t, err)
	assert.Equal(t, "gho_file", got)
	assert.NoFileExists(t, path)

	got, err = keyring.Get(s.Service, KeyGitHubToken)
	require.NoError(t, err)
	assert.Equal(t, "gho_file", got)
}

func TestStore_KeychainUnavailable(t *testing.T) {
	keyring.MockInitWithError(assert.AnError)
	s := Store{Service: "permitctl-test", Dir: t.TempDir()}

	require.NoError(t, s.Set(KeyGitHubToken, "gho_x"))
	assert.FileExists(t, filepath.Join(s.Dir, KeyGitHubToken))

	got, err := s.Get(KeyGitHubToken)
	require.NoError(t, err)
	assert.Equal(t, "gho_x", got)
}

func TestStore_SetInvalid(t *testing.T) {
	keyring.MockInit()
	s := Store{Service: "permitctl-test"}
	assert.Error(t, s.Set("", "x"))
	assert.Error(t, s.Set("k", ""))
}

func TestStore_DeleteMissing(t *testing.T) {
	keyring.MockInit()
	s := Store{Service: "permitctl-test", Dir: t.TempDir()}
	assert.NoError(t, s.Delete(KeyGitHubToken))
}
