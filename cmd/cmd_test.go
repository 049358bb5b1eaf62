package cmd

import (
	"bytes"
	"testing"

	"github.com/liuran001/SongProxy-Go/proxy/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	buildInfo = app.BuildInfo{BinVersion: "v1.2.3", RuntimeVer: "go1.26", BuildArch: "linux/amd64"}
	t.Cleanup(func() { buildInfo = app.BuildInfo{} })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "songproxy v1.2.3")
	assert.Contains(t, out.String(), "commit:  unknown")
	assert.Contains(t, out.String(), "go1.26 linux/amd64")
}

func TestSearchRejectsBadBitrate(t *testing.T) {
	rootCmd.SetArgs([]string{"search", "--br", "999", "-c", "", "晴天"})
	t.Cleanup(func() { searchBitrate = "" })
	assert.Error(t, rootCmd.Execute())
}
