package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rodrwan/hookd/internal/runner"
)

var gitIdentity = []string{
	"GIT_AUTHOR_NAME=hookd", "GIT_AUTHOR_EMAIL=hookd@example.com",
	"GIT_COMMITTER_NAME=hookd", "GIT_COMMITTER_EMAIL=hookd@example.com",
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), gitIdentity...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func commitFile(t *testing.T, repo, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "VERSION"), []byte(content), 0o644))
	gitCmd(t, repo, "add", "VERSION")
	gitCmd(t, repo, "commit", "-q", "-m", content)
}

func newOrigin(t *testing.T) string {
	t.Helper()
	origin := t.TempDir()
	gitCmd(t, origin, "init", "-q")
	gitCmd(t, origin, "symbolic-ref", "HEAD", "refs/heads/main")
	commitFile(t, origin, "v1.0")
	gitCmd(t, origin, "tag", "v1.0")
	commitFile(t, origin, "v2.0")
	gitCmd(t, origin, "tag", "v2.0")
	return origin
}

func readVersion(t *testing.T, dir string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(dir, "VERSION"))
	require.NoError(t, err)
	return string(content)
}

func TestSyncAgainstRealRepository(t *testing.T) {
	requireGit(t)
	origin := newOrigin(t)
	dir := filepath.Join(t.TempDir(), "svc")
	require.NoError(t, os.Mkdir(dir, 0o755))

	sync := NewSynchronizer(runner.NewExecRunner(time.Minute), "git")
	ctx := context.Background()

	require.NoError(t, sync.Sync(ctx, testLog(), dir, origin, "v1.0"))
	assert.Equal(t, "v1.0", readVersion(t, dir))
	assert.Equal(t, gitCmd(t, origin, "rev-parse", "v1.0^{commit}"), gitCmd(t, dir, "rev-parse", "HEAD"))

	// Same request twice in a row lands on the same ref.
	require.NoError(t, sync.Sync(ctx, testLog(), dir, origin, "v1.0"))
	assert.Equal(t, "v1.0", readVersion(t, dir))

	require.NoError(t, sync.Sync(ctx, testLog(), dir, origin, "v2.0"))
	assert.Equal(t, "v2.0", readVersion(t, dir))
}

func TestSyncKeepsUntrackedEnvFile(t *testing.T) {
	requireGit(t)
	origin := newOrigin(t)
	dir := t.TempDir()

	sync := NewSynchronizer(runner.NewExecRunner(time.Minute), "git")
	require.NoError(t, sync.Sync(context.Background(), testLog(), dir, origin, "v1.0"))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("A=1\n"), 0o600))

	require.NoError(t, sync.Sync(context.Background(), testLog(), dir, origin, "v2.0"))
	content, err := os.ReadFile(envFile)
	require.NoError(t, err)
	assert.Equal(t, "A=1\n", string(content))
}

func TestSyncFollowsBranch(t *testing.T) {
	requireGit(t)
	origin := newOrigin(t)
	dir := t.TempDir()

	sync := NewSynchronizer(runner.NewExecRunner(time.Minute), "git")
	require.NoError(t, sync.Sync(context.Background(), testLog(), dir, origin, "main"))
	assert.Equal(t, "v2.0", readVersion(t, dir))

	commitFile(t, origin, "v3.0")

	require.NoError(t, sync.Sync(context.Background(), testLog(), dir, origin, "main"))
	assert.Equal(t, "v3.0", readVersion(t, dir))
}

func TestSyncUnknownTagFails(t *testing.T) {
	requireGit(t)
	origin := newOrigin(t)
	dir := t.TempDir()

	sync := NewSynchronizer(runner.NewExecRunner(time.Minute), "git")
	err := sync.Sync(context.Background(), testLog(), dir, origin, "v9.9")
	require.ErrorIs(t, err, runner.ErrExitStatus)
}

func TestSyncUnreachableRemoteFails(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()

	sync := NewSynchronizer(runner.NewExecRunner(time.Minute), "git")
	err := sync.Sync(context.Background(), testLog(), dir, filepath.Join(t.TempDir(), "missing"), "v1.0")
	require.ErrorIs(t, err, runner.ErrExitStatus)
}
