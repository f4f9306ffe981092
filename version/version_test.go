package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfo(t *testing.T) {
	info := Get()
	assert.Equal(t, "1.0.0", info.DocumentVersion)
	assert.NotEmpty(t, info.CommitHash)
	assert.Nil(t, info.Release())
	assert.Contains(t, info.String(), "twin dev")
	assert.Contains(t, info.String(), "document format 1.0.0")
}

func TestInfo_Release(t *testing.T) {
	info := Info{Version: "v0.4.0", CommitHash: "0123456789abcdef", BuildTime: "2024-03-01", DocumentVersion: "1.0.0"}
	require.NotNil(t, info.Release())
	assert.Equal(t, uint64(4), info.Release().Minor())
	assert.Equal(t, "twin v0.4.0 (commit 0123456, built 2024-03-01, document format 1.0.0)", info.String())

	info.Dirty = true
	assert.Contains(t, info.String(), "commit 0123456+dirty")

	info.CommitHash = "abc"
	assert.Equal(t, "abc", info.Short())
}

func TestFromBuildSettings(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "feedfacecafe"},
		{Key: "vcs.time", Value: "2024-03-01T09:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	var stamped Info
	stamped.fromBuildSettings(settings)
	assert.Equal(t, "feedfacecafe", stamped.CommitHash)
	assert.Equal(t, "2024-03-01T09:00:00Z", stamped.BuildTime)
	assert.True(t, stamped.Dirty)

	injected := Info{CommitHash: "0123456789", BuildTime: "today"}
	injected.fromBuildSettings(settings)
	assert.Equal(t, "0123456789", injected.CommitHash)
	assert.Equal(t, "today", injected.BuildTime)
}
