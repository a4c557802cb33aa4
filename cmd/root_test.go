package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wakeproxy/manager"
)

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3-test")
	assert.Equal(t, "1.2.3-test", rootCmd.Version)
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "wakeproxy", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)

	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "sweep", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestVersionCommand(t *testing.T) {
	SetVersion("0.4.0")
	cmd := newVersionCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "wakeproxy version 0.4.0\n", buf.String())
}

func TestPrintSweepResults(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	printSweepResults(cmd, []manager.SweepResult{
		{Route: "app", IdleFor: 700 * time.Second, Source: manager.SourceRecord, Stopped: true},
		{Route: "wiki", IdleFor: 90 * time.Second, Source: manager.SourceContainerStart},
		{Route: "grafana", Skipped: true},
		{Route: "docs", IdleFor: time.Hour, Source: manager.SourceNow, Err: errors.New("exit status 1")},
	})

	out := buf.String()
	assert.Contains(t, out, "ROUTE")
	assert.Contains(t, out, "11m40s")
	assert.Contains(t, out, "stopped")
	assert.Contains(t, out, "kept")
	assert.Contains(t, out, "skipped (waking)")
	assert.Contains(t, out, "stop failed: exit status 1")
}

func TestLoadConfigMissingFile(t *testing.T) {
	configPath = t.TempDir() + "/absent.json"
	defer func() { configPath = "" }()

	_, err := loadConfig()
	assert.Error(t, err)
}
