package smartthings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/jonguttman/MasterStat/internal/metrics"
)

// ErrUnauthorized marks a request rejected for bad credentials after the
// one-shot refresh-and-retry was exhausted.
var ErrUnauthorized = errors.New("smartthings: unauthorized")

// TokenSource supplies bearer tokens and optionally refreshes them when the
// API rejects one. Refresh happens at most once per request (see Client).
type TokenSource interface {
	Token() (string, error)
	Refresh(ctx context.Context) error
}

// StaticToken is a personal access token passed via flag or environment.
// It cannot be refreshed; a 401 with a PAT is terminal for that call.
type StaticToken string

// Token returns the PAT.
func (t StaticToken) Token() (string, error) { return string(t), nil }

// Refresh always fails: there is nothing to refresh a PAT against.
func (t StaticToken) Refresh(ctx context.Context) error {
	return errors.New("smartthings: personal access token cannot be refreshed")
}

// CLITokens reads the access token maintained by the SmartThings CLI in its
// credentials file. The file is watched so a login performed outside this
// process is picked up immediately, and Refresh shells out to the CLI to
// force an OAuth token renewal.
type CLITokens struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	token string

	watcher *fsnotify.Watcher
}

// NewCLITokens loads the token from the credentials file at path and starts
// watching the file for external updates.
func NewCLITokens(path string, logger *zap.Logger) (*CLITokens, error) {
	c := &CLITokens{path: path, logger: logger}
	if err := c.reload(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("credentials file watch unavailable", zap.Error(err))
		return c, nil
	}
	// Watch the directory: editors and the CLI replace the file on write.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("credentials file watch unavailable", zap.Error(err))
		watcher.Close()
		return c, nil
	}
	c.watcher = watcher
	go c.watch()
	return c, nil
}

// Token returns the most recently loaded access token.
func (c *CLITokens) Token() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token == "" {
		return "", errors.New("smartthings: no access token in credentials file")
	}
	return c.token, nil
}

// Refresh runs a lightweight CLI command to trigger the CLI's own OAuth
// refresh, then re-reads the credentials file.
func (c *CLITokens) Refresh(ctx context.Context) error {
	cliPath, err := exec.LookPath("smartthings")
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		return fmt.Errorf("smartthings CLI not found on PATH: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	c.logger.Info("refreshing token via CLI", zap.String("cli", cliPath))
	cmd := exec.CommandContext(ctx, cliPath, "devices", "-j")
	if out, err := cmd.CombinedOutput(); err != nil {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		return fmt.Errorf("CLI token refresh failed: %w (output: %s)", err, firstLine(out))
	}

	if err := c.reload(); err != nil {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		return err
	}
	metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	c.logger.Info("token refreshed via CLI")
	return nil
}

// Close stops the file watcher.
func (c *CLITokens) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

func (c *CLITokens) reload() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read credentials file: %w", err)
	}
	var creds struct {
		Default struct {
			AccessToken string `json:"accessToken"`
		} `json:"default"`
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return fmt.Errorf("parse credentials file: %w", err)
	}
	if creds.Default.AccessToken == "" {
		return errors.New("credentials file has no default access token")
	}

	c.mu.Lock()
	c.token = creds.Default.AccessToken
	c.mu.Unlock()
	return nil
}

func (c *CLITokens) watch() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Name != c.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.reload(); err != nil {
				c.logger.Warn("credentials file changed but reload failed", zap.Error(err))
				continue
			}
			c.logger.Debug("credentials file reloaded")
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Warn("credentials file watch error", zap.Error(err))
		}
	}
}

func firstLine(b []byte) string {
	for i, c := range b {
		if c == '\n' {
			return string(b[:i])
		}
	}
	return string(b)
}
