package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/javanhut/vers/internal/verr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	root := t.TempDir()

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, "sha256", cfg.Hash)
	assert.Equal(t, DedupPair, cfg.Dedup)
	assert.True(t, cfg.ColorEnabled())

	d, err := cfg.Timeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	root := t.TempDir()

	cfg := DefaultConfig()
	cfg.Root = root
	cfg.Hash = "blake3"
	cfg.Dedup = DedupContent
	off := false
	cfg.Color = &off
	require.NoError(t, cfg.Save())

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "blake3", loaded.Hash)
	assert.Equal(t, DedupContent, loaded.Dedup)
	assert.False(t, loaded.ColorEnabled())

	h, err := loaded.Hasher()
	require.NoError(t, err)
	assert.Equal(t, "blake3", h.Name())
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFile), []byte("dedup: content\n"), 0600))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, DedupContent, cfg.Dedup)
	assert.Equal(t, "sha256", cfg.Hash)
	assert.Equal(t, "10s", cfg.LockTimeout)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	for name, body := range map[string]string{
		"hash":    "hash: md5\n",
		"dedup":   "dedup: sometimes\n",
		"timeout": "lock_timeout: soon\n",
		"yaml":    "hash: [unclosed\n",
	} {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFile), []byte(body), 0600))
			_, err := Load(root)
			assert.ErrorIs(t, err, verr.ErrInvalidInput)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	t.Setenv(EnvRoot, "/tmp/elsewhere")
	assert.Equal(t, "/tmp/elsewhere", ResolveRoot(""))
	assert.Equal(t, "flag", ResolveRoot("flag"))

	t.Setenv(EnvRoot, "")
	assert.Equal(t, DefaultRoot, ResolveRoot(""))
}
