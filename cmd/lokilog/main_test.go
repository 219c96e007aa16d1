package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "1.0.0, Go Version: go1.25", versionString("1.0.0", "", "go1.25"))
	assert.Equal(t, "1.0.0 (2025-01-01), Go Version: go1.25", versionString("1.0.0", "2025-01-01", "go1.25"))
}

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	cmd := rootCmd()
	for _, name := range []string{"send", "pipe", "serve-mock", "version"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	for _, flag := range []string{"config", "url", "job", "env", "tag", "protocol", "no-console"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	cmd := rootCmd()
	cmd.SetOut(out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Go Version:")

	cmd = rootCmd()
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"version", "extra"})
	require.Error(t, cmd.Execute())
}
