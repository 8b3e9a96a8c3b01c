package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "review-insights/pkg/errors"
)

func writeTokens(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestServiceTokensResolve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service_tokens.yaml")
	writeTokens(t, path, `tokens:
  "ops-token-1": "11111111-1111-1111-1111-111111111111"
  "ops-token-2": "22222222-2222-2222-2222-222222222222"
`)
	s := NewServiceTokens(path, nil)
	require.True(t, s.IsLoaded())
	assert.Equal(t, 2, s.Len())

	id, err := s.Resolve(context.Background(), "ops-token-2")
	require.NoError(t, err)
	assert.Equal(t, "22222222-2222-2222-2222-222222222222", id.UserID)
	assert.True(t, id.Service)

	_, err = s.Resolve(context.Background(), "ops-token-3")
	assert.True(t, errs.Is(err, errs.ErrAuth))
}

func TestServiceTokensMissingFile(t *testing.T) {
	s := NewServiceTokens(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.False(t, s.IsLoaded())
	_, err := s.Resolve(context.Background(), "anything")
	assert.Error(t, err)

	empty := NewServiceTokens("", nil)
	assert.NoError(t, empty.Reload())
	assert.False(t, empty.IsLoaded())
}

func TestServiceTokensReloadKeepsOldOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service_tokens.yaml")
	writeTokens(t, path, "tokens:\n  \"a\": \"user-a\"\n")
	s := NewServiceTokens(path, nil)

	writeTokens(t, path, "tokens: [not, a, map")
	require.Error(t, s.Reload())
	_, err := s.Resolve(context.Background(), "a")
	assert.NoError(t, err)

	writeTokens(t, path, "tokens:\n  \"b\": \"user-b\"\n")
	require.NoError(t, s.Reload())
	_, err = s.Resolve(context.Background(), "a")
	assert.Error(t, err)
}

func TestServiceTokensWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service_tokens.yaml")
	writeTokens(t, path, "tokens:\n  \"a\": \"user-a\"\n")
	s := NewServiceTokens(path, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Watch(ctx))

	writeTokens(t, path, "tokens:\n  \"a\": \"user-a\"\n  \"b\": \"user-b\"\n")
	require.Eventually(t, func() bool {
		_, err := s.Resolve(context.Background(), "b")
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
}
