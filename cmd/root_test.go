//go:build !integration

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

	for _, name := range []string{"evaluate", "batch", "extract", "notify", "valuate", "decisions", "serve", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestDecisionsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range decisionsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats", "export"} {
		assert.True(t, names[name], "expected decisions subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "totalloss", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestEvaluateCommand_Flags(t *testing.T) {
	for _, name := range []string{"vin", "policy-type", "loss-type", "policy-value", "salvage-value", "repair-quote", "email", "phone", "prefill", "save", "json"} {
		require.NotNil(t, evaluateCmd.Flags().Lookup(name), "evaluate should have --%s", name)
	}
	assert.Equal(t, "0", evaluateCmd.Flags().Lookup("salvage-value").DefValue)
	assert.Equal(t, "client", evaluateCmd.Flags().Lookup("loss-type").DefValue)
}

func TestDecisionsListCommand_Flags(t *testing.T) {
	flag := decisionsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)

	flag = decisionsExportCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "10000", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}
