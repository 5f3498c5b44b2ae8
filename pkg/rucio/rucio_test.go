package rucio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pilotx/pilotx/pkg/events"
)

func TestGetDownloadCommand(t *testing.T) {
	c := New(Options{Account: "pilot"})
	name, args := c.getDownloadCommand(DownloadRequest{
		DIDs: []string{"user.alice:file1", "user.alice:file2"},
		Dir:  "/mnt/shared/task-1",
	})
	require.Equal(t, "rucio", name)
	require.Equal(t, []string{
		"-a", "pilot",
		"download", "--dir", "/mnt/shared/task-1",
		"user.alice:file1", "user.alice:file2",
	}, args)
}

func TestGetDownloadCommandNoAccount(t *testing.T) {
	c := New(Options{Binary: "/usr/local/bin/rucio"})
	name, args := c.getDownloadCommand(DownloadRequest{
		DIDs: []string{"user.alice:file1"},
		Dir:  "/tmp",
	})
	require.Equal(t, "/usr/local/bin/rucio", name)
	require.Equal(t, []string{"download", "--dir", "/tmp", "user.alice:file1"}, args)
}

func TestEnsureConfigCopiesTemplate(t *testing.T) {
	dir := t.TempDir()
	template := filepath.Join(dir, "rucio.cfg.template")
	require.NoError(t, os.WriteFile(template, []byte("[client]\n"), 0o644))

	cfg := filepath.Join(dir, "home", "etc", "rucio.cfg")
	c := New(Options{ConfigFile: cfg, TemplateFile: template})

	require.NoError(t, c.EnsureConfig())
	out, err := os.ReadFile(cfg)
	require.NoError(t, err)
	require.Equal(t, "[client]\n", string(out))

	// A second call leaves the existing config alone.
	require.NoError(t, os.WriteFile(cfg, []byte("[client]\nedited = true\n"), 0o644))
	require.NoError(t, c.EnsureConfig())
	out, err = os.ReadFile(cfg)
	require.NoError(t, err)
	require.Equal(t, "[client]\nedited = true\n", string(out))
}

func TestEnsureConfigMissingTemplate(t *testing.T) {
	dir := t.TempDir()
	c := New(Options{
		ConfigFile:   filepath.Join(dir, "rucio.cfg"),
		TemplateFile: filepath.Join(dir, "nope.template"),
	})
	require.Error(t, c.EnsureConfig())
}

func TestEnv(t *testing.T) {
	c := New(Options{Home: "/opt/rucio", ConfigFile: "/opt/rucio/etc/rucio.cfg"})
	require.Equal(t, []string{
		"RUCIO_HOME=/opt/rucio",
		"RUCIO_CONFIG=/opt/rucio/etc/rucio.cfg",
	}, c.Env())
}

func TestDownloadRelaysLongLines(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "rucio.cfg")
	require.NoError(t, os.WriteFile(cfg, []byte("[client]\n"), 0o644))

	// A client that prints a line well past bufio's default token size,
	// followed by a normal one.
	binary := filepath.Join(dir, "rucio")
	require.NoError(t, os.WriteFile(binary, []byte(`#!/bin/sh
printf '%102400s\n' x | tr ' ' 'x'
echo "2021-07-01 12:00:00,123 INFO long line survived"
`), 0o755))

	c := New(Options{Binary: binary, ConfigFile: cfg})

	var lines []string
	pub := events.FuncPublisher[Event](func(_ context.Context, e Event) error {
		if e.Log != nil {
			lines = append(lines, e.Log.Message)
		}
		return nil
	})

	require.NoError(t, c.Download(context.Background(), DownloadRequest{
		DIDs: []string{"user.alice:file1"},
		Dir:  dir,
	}, pub))

	require.Len(t, lines, 2)
	require.Len(t, lines[0], 102400)
	require.Equal(t, "long line survived", lines[1])
}

func TestParseClientLine(t *testing.T) {
	cases := []struct {
		line  string
		level string
		msg   string
	}{
		{
			"2021-07-01 12:00:00,123 INFO Download of user.alice:file1 done",
			"INFO", "Download of user.alice:file1 done",
		},
		{
			"2021-07-01 12:00:01,456 ERROR Cannot authenticate",
			"ERROR", "Cannot authenticate",
		},
		{"plain output without a level", "INFO", "plain output without a level"},
	}
	for _, tc := range cases {
		level, msg := parseClientLine(tc.line)
		require.Equal(t, tc.level, level)
		require.Equal(t, tc.msg, msg)
	}
}
