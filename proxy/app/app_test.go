package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/liuran001/SongProxy-Go/proxy/config"
	"github.com/liuran001/SongProxy-Go/proxy/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/liuran001/SongProxy-Go/plugins/fallback"
	_ "github.com/liuran001/SongProxy-Go/plugins/kuwo"
	_ "github.com/liuran001/SongProxy-Go/plugins/netease"
	_ "github.com/liuran001/SongProxy-Go/plugins/qqmusic"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewWiresSourceChain(t *testing.T) {
	path := writeConfig(t, `PORT = 3901
HOST = 127.0.0.1
LOG_FILE =
SOURCE_PRIORITY = qq, bogus, kuwo, netease

[plugins.netease]
enabled = false
`)

	application, err := New(context.Background(), path, BuildInfo{BinVersion: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Shutdown(context.Background()) })

	status := application.Orchestrator.Status()
	assert.Equal(t, []platform.Source{platform.SourceQQ, platform.SourceKuwo}, status.Priority)
	assert.True(t, status.Fallback)
	assert.False(t, status.ForceFallback)
	assert.Equal(t, "127.0.0.1:3901", application.Server.Addr())
}

func TestNewWithoutFallback(t *testing.T) {
	path := writeConfig(t, `LOG_FILE =
FORCE_FALLBACK = true

[plugins.fallback]
enabled = false
`)

	orchestrator, err := NewOrchestrator(mustLoad(t, path), nil)
	require.NoError(t, err)

	status := orchestrator.Status()
	assert.False(t, status.Fallback)
	assert.True(t, status.ForceFallback)

	_, err = orchestrator.Find(context.Background(), "晴天", platform.Bitrate320)
	assert.ErrorIs(t, err, platform.ErrNotFound)
}

func TestUnknownPluginSections(t *testing.T) {
	path := writeConfig(t, `LOG_FILE =

[plugins.kuwo]
enabled = true

[plugins.spotify]
enabled = true
`)
	conf := mustLoad(t, path)

	assert.Equal(t, []string{"spotify"}, unknownPlugins(conf.PluginNames(), []string{"fallback", "kuwo", "netease", "qq"}))
	assert.Empty(t, unknownPlugins(nil, []string{"kuwo"}))

	_, err := NewOrchestrator(conf, nil)
	require.NoError(t, err)
}

func mustLoad(t *testing.T, path string) *config.Config {
	t.Helper()
	conf, err := config.Load(path)
	require.NoError(t, err)
	return conf
}
