package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wxaloft/internal/admin"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wxaloft.toml")
	body := "[logging]\nlevel = \"error\"\n\n[database]\ndriver = \"sqlite\"\n\n[database.sqlite]\npath = \"" +
		filepath.ToSlash(filepath.Join(dir, "wx.db")) + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHash(t *testing.T) {
	out, err := run(t, "", "hash", "secret")
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(out), 40)
}

func TestProvisionRotatePurge(t *testing.T) {
	cfg := writeConfig(t)

	out, err := run(t, "", "-c", cfg, "client", "add", "sea1", "--location", "Seattle")
	require.NoError(t, err)
	assert.Contains(t, out, "Client name: sea1\n")

	_, err = run(t, "", "-c", cfg, "channel", "set", "sea1", "3", "129.125")
	require.NoError(t, err)

	_, err = run(t, "", "-c", cfg, "area", "add", "KSEA", "--lat", "47.4502", "--lon", "-122.3088", "--tz", "America/Los_Angeles")
	require.NoError(t, err)
	_, err = run(t, "", "-c", cfg, "area", "add", "YSSY", "--lat", "-33.9461", "--lon", "151.1772", "--tz", "Australia/Sydney")
	require.NoError(t, err)

	out, err = run(t, "n\n", "-c", cfg, "auth", "sea1", "newsecret")
	assert.ErrorIs(t, err, admin.ErrAborted)
	assert.Contains(t, out, "Location: Seattle\n")

	out, err = run(t, "", "-c", cfg, "auth", "--yes", "sea1", "newsecret")
	require.NoError(t, err)
	assert.Contains(t, out, "Authenticator changed.\n")

	out, err = run(t, "", "-c", cfg, "purge", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "0 observations deleted\n")

	out, err = run(t, "", "-c", cfg, "kml", "KSEA", "--since", "PT1H")
	require.NoError(t, err)
	assert.Contains(t, out, "<name>Observations near KSEA</name>")

	_, err = run(t, "", "-c", cfg, "kml", "KSEA", "--since", "soon")
	assert.Error(t, err)
}

func TestArgumentErrors(t *testing.T) {
	cfg := writeConfig(t)
	for _, args := range [][]string{
		{"purge", "0"},
		{"purge", "many"},
		{"channel", "set", "sea1", "x", "129.1"},
		{"area", "add", "KSEA", "--lat", "north", "--lon", "-122"},
		{"area", "add", "KSEA", "--lat", "47.45"},
		{"area", "add", "KSEA", "--lat", "NaN", "--lon", "-122"},
		{"auth"},
	} {
		_, err := run(t, "", append([]string{"-c", cfg}, args...)...)
		assert.Error(t, err, strings.Join(args, " "))
	}
}
