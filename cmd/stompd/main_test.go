// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCmd executes a fresh root command and returns its combined output.
func runCmd(ctx context.Context, args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	output, err := runCmd(context.Background(), "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "config", "publish", "subscribe", "bench"} {
		assert.Contains(t, output, sub, "help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"separate value", []string{"--config", "/path/to/stompd.yaml", "config", "schema"}, "/path/to/stompd.yaml"},
		{"with equals", []string{"--config=/etc/stompd.yaml", "config", "schema"}, "/etc/stompd.yaml"},
		{"absent", []string{"config", "schema"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := NewRootCmd()
			root.SetOut(new(bytes.Buffer))
			root.SetArgs(tt.args)

			executed, err := root.ExecuteC()
			require.NoError(t, err)
			assert.Equal(t, tt.want, configPath(executed))
		})
	}
}

func TestRootCommand_Description(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "stompd", cmd.Use)
	assert.Contains(t, cmd.Long, "subscribers")
}

func TestRootCommand_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	cmd.Version = "test-version"
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "test-version")
}

func TestSubcommands_RejectBadArgs(t *testing.T) {
	tests := [][]string{
		{"serve", "1", "2"},
		{"publish", "--topic", "stocks"},
		{"publish", "hello"},
		{"subscribe"},
		{"bench", "extra"},
		{"config", "schema", "extra"},
	}
	for _, args := range tests {
		_, err := runCmd(context.Background(), args...)
		assert.Error(t, err, "args %v", args)
	}
}

func TestSubcommands_AreRunnable(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "publish", "subscribe", "bench"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.True(t, sub.Runnable(), name)
	}
	cfg, _, err := root.Find([]string{"config"})
	require.NoError(t, err)
	assert.Len(t, cfg.Commands(), 2)
}
