package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "worker", "sweep", "status", "generate", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "report-core", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestStatusCommand_Flags(t *testing.T) {
	for _, name := range []string{"user-id", "partner-id", "hospital-id"} {
		assert.NotNil(t, statusCmd.Flags().Lookup(name), "status command should have --%s", name)
	}
}

func TestGenerateCommand_RequiredFlags(t *testing.T) {
	for _, name := range []string{"user-id", "hospital-id"} {
		flag := generateCmd.Flags().Lookup(name)
		require.NotNil(t, flag)
		assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"])
	}
}
