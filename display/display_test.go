package display

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCmd() (*cobra.Command, *cobra.Command) {
	root := &cobra.Command{Use: "twin"}
	root.PersistentFlags().Bool("json", false, "")
	child := &cobra.Command{Use: "get", Run: func(*cobra.Command, []string) {}}
	child.Flags().Bool("json", false, "")
	root.AddCommand(child)
	return root, child
}

func TestShouldOutputJSON(t *testing.T) {
	t.Setenv(CallerEnv, "")

	_, child := newCmd()
	assert.False(t, ShouldOutputJSON(child))

	require.NoError(t, child.Flags().Set("json", "true"))
	assert.True(t, ShouldOutputJSON(child))

	root, child := newCmd()
	require.NoError(t, root.PersistentFlags().Set("json", "true"))
	assert.True(t, ShouldOutputJSON(child))
}

func TestShouldOutputJSON_MachineCaller(t *testing.T) {
	t.Setenv(CallerEnv, "llm")

	_, child := newCmd()
	assert.True(t, ShouldOutputJSON(child))
	assert.True(t, ShouldOutputJSON(nil))

	// An explicit --json=false wins over the caller.
	require.NoError(t, child.Flags().Set("json", "false"))
	assert.False(t, ShouldOutputJSON(child))
}

func TestOutputJSON(t *testing.T) {
	t.Setenv(CallerEnv, "")
	var buf bytes.Buffer
	require.NoError(t, OutputJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", buf.String())

	t.Setenv(CallerEnv, "script")
	buf.Reset()
	require.NoError(t, OutputJSON(&buf, map[string]int{"a": 1}))
	assert.Equal(t, "{\"a\":1}\n", buf.String())
}
