package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--version"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		assert.Contains(t, output.String(), "stratus version")
		assert.Contains(t, output.String(), GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "Stratus")
		assert.Contains(t, helpText, "plugin")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)

		metricsFlag := cmd.PersistentFlags().Lookup("metrics-listen")
		require.NotNil(t, metricsFlag)
	})
}

func TestCommandsRegistered(t *testing.T) {
	cmd := GetRootCmd()

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}

	for _, expected := range []string{"deploy", "plan", "diff", "synth", "validate", "plugin", "backup"} {
		assert.True(t, names[expected], "missing command: %s", expected)
	}
}

func TestPluginSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range pluginCmd.Commands() {
		names[c.Name()] = true
	}

	for _, expected := range []string{"list", "install", "enable", "disable", "remove", "reload", "watch"} {
		assert.True(t, names[expected], "missing subcommand: %s", expected)
	}
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}
