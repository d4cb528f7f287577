package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
on_render_error = "fail"

[var]
root = "photos"

[[ingest]]
name = "photos"
source = '{{ var.root }}/(?P<y>\d{4})/.*\.jpg'
destination = "out/{{ match.y }}/{{ ext }}"
`

func setupWorkspace(t *testing.T) {
	t.Helper()
	color.NoColor = true
	t.Chdir(t.TempDir())

	require.NoError(t, os.WriteFile("ingest.toml", []byte(testConfig), 0o644))
	require.NoError(t, os.MkdirAll("photos/2023", 0o755))
	require.NoError(t, os.WriteFile("photos/2023/img.jpg", []byte("jpeg bytes"), 0o644))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd, o := newRootCmd()

	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--progress=false"}, args...))

	err := cmd.ExecuteContext(context.Background())
	require.NoError(t, o.Close())
	t.Logf("stderr:\n%s", stderr.String())
	return stdout.String(), err
}

func TestRunCommand(t *testing.T) {
	setupWorkspace(t)

	out, err := execute(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "[ingesting photos]")
	assert.Contains(t, out, "1 copied")

	got, err := os.ReadFile(filepath.Join("out", "2023", ".jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(got))

	out, err = execute(t)
	require.NoError(t, err, "the root command runs the pipeline too")
	assert.Contains(t, out, "0 copied", "a second run copies nothing")
	assert.FileExists(t, "ingest.db")
}

func TestRunCommandDryRunFromEnvironment(t *testing.T) {
	setupWorkspace(t)
	t.Setenv("INGEST_DRY_RUN", "true")

	out, err := execute(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "[planning photos]")
	assert.Contains(t, out, "1 planned")
	assert.NoDirExists(t, "out")
}

func TestStatusCommand(t *testing.T) {
	setupWorkspace(t)

	_, err := execute(t, "run")
	require.NoError(t, err)

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "photos (1 files)")
	assert.Contains(t, out, "img.jpg")
	assert.Contains(t, out, filepath.Join("out", "2023", ".jpg"))
	assert.Contains(t, out, "1 files recorded in ingest.db")

	_, err = execute(t, "status", "videos")
	require.Error(t, err)
}

func TestRenderCommand(t *testing.T) {
	setupWorkspace(t)

	out, err := execute(t, "render", "photos", "photos/2023/img.jpg")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "out/2023/.jpg", lines[len(lines)-1])
	assert.NoDirExists(t, "out")

	_, err = execute(t, "render", "photos")
	require.Error(t, err, "render needs a block and a path")
}

func TestDatabaseFlag(t *testing.T) {
	setupWorkspace(t)

	_, err := execute(t, "run", "--db", "state/custom.db")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join("state", "custom.db"))
	assert.NoFileExists(t, "ingest.db")
}

func TestMissingConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}

func TestVersionCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "version")
	require.NoError(t, err, "version needs no config")
	assert.Contains(t, out, "🚀 ingest version info:")
	assert.Contains(t, out, "Go:")
}
