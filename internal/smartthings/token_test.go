package smartthings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeCredentials(t *testing.T, path, token string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(`{"default":{"accessToken":"`+token+`"}}`), 0o600))
}

func TestCLITokensReadsCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	writeCredentials(t, path, "tok-1")

	c, err := NewCLITokens(path, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	tok, err := c.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
}

func TestCLITokensRejectsMissingToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"default":{}}`), 0o600))

	_, err := NewCLITokens(path, zap.NewNop())
	assert.Error(t, err)
}

func TestCLITokensRejectsMissingFile(t *testing.T) {
	_, err := NewCLITokens(filepath.Join(t.TempDir(), "nope.json"), zap.NewNop())
	assert.Error(t, err)
}

func TestCLITokensPicksUpExternalUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	writeCredentials(t, path, "tok-1")

	c, err := NewCLITokens(path, zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	writeCredentials(t, path, "tok-2")

	// The watcher delivers asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tok, err := c.Token()
		require.NoError(t, err)
		if tok == "tok-2" {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("credentials update never observed")
}
