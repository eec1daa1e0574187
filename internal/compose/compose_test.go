package compose

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodrwan/hookd/internal/runner"
	"github.com/rodrwan/hookd/internal/testutil"
)

const sampleCompose = `services:
  web:
    image: nginx:alpine
    env_file: .env
    ports:
      - "3000:80"
  db:
    image: postgres:16
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInspectListsServices(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docker-compose.yml", sampleCompose)

	project, err := Inspect(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "docker-compose.yml"), project.File)
	assert.Equal(t, []string{"db", "web"}, project.Services)
}

func TestInspectPrefersComposeYaml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docker-compose.yml", sampleCompose)
	writeFile(t, dir, "compose.yaml", "services:\n  api:\n    image: busybox\n")

	project, err := Inspect(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"api"}, project.Services)
}

func TestInspectErrors(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := Inspect(t.TempDir())
		require.ErrorIs(t, err, ErrNoComposeFile)
	})

	t.Run("malformed", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "compose.yaml", "services: [\n")
		_, err := Inspect(dir)
		require.ErrorIs(t, err, ErrInvalidComposeFile)
	})

	t.Run("no services", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "compose.yaml", "volumes:\n  data: {}\n")
		_, err := Inspect(dir)
		require.ErrorIs(t, err, ErrInvalidComposeFile)
	})
}

func TestUpRunsComposeInWorkspace(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "compose.yaml", sampleCompose)
	fake := testutil.NewFakeRunner()

	err := NewLauncher(fake, "").Up(context.Background(), logrus.NewEntry(logrus.StandardLogger()), dir)
	require.NoError(t, err)

	cmds := fake.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "docker compose up -d", cmds[0].String())
	assert.Equal(t, dir, cmds[0].Dir)
}

func TestUpWithoutComposeFileDoesNotRun(t *testing.T) {
	fake := testutil.NewFakeRunner()

	err := NewLauncher(fake, "docker").Up(context.Background(), logrus.NewEntry(logrus.StandardLogger()), t.TempDir())
	require.ErrorIs(t, err, ErrNoComposeFile)
	assert.Empty(t, fake.Commands())
}

func TestUpPropagatesExitStatus(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "compose.yaml", sampleCompose)
	fake := testutil.NewFakeRunner().FailOn("docker compose")

	err := NewLauncher(fake, "docker").Up(context.Background(), logrus.NewEntry(logrus.StandardLogger()), dir)
	require.ErrorIs(t, err, runner.ErrExitStatus)
}
