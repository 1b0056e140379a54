package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	rootCmd := NewRootCmd()

	for _, name := range []string{"index", "query", "serve", "check", "config", "version"} {
		sub, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, "subcommand %s should resolve", name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	rootCmd := NewRootCmd()

	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("debug"))
}

func TestRootCmd_Help(t *testing.T) {
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"--help"})

	err := rootCmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "hindex")
	assert.Contains(t, output, "index")
	assert.Contains(t, output, "query")
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	rootCmd := NewRootCmd()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"definitely-not-a-command"})

	err := rootCmd.Execute()

	assert.Error(t, err)
}
