package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/samber/lo"
)

const (
	EnvFileName = ".env"
	maxNameLen  = 128
	dirPerm     = 0o755
	envFilePerm = 0o600
)

// ErrUnsafeName is returned for deployment names that cannot be used as a single
// path segment under the deployment root.
var ErrUnsafeName = errors.New("unsafe deployment name")

// Names may not start with a dot so they can never collide with hookd's own
// files under the root (.locks, .hookd.db) nor climb out of it.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Resolve returns the workspace directory of name under root without touching the disk.
func Resolve(root, name string) (string, error) {
	if len(name) > maxNameLen || !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}

	cleanRoot := filepath.Clean(root)
	dir := filepath.Join(cleanRoot, name)

	rel, err := filepath.Rel(cleanRoot, dir)
	if err != nil || rel != name || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q escapes %s", ErrUnsafeName, name, cleanRoot)
	}

	return dir, nil
}

// Prepare makes sure the workspace of name exists and returns its path.
// Existing workspaces are reused as they are.
func Prepare(root, name string) (string, error) {
	dir, err := Resolve(root, name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("error creating workspace %s: %w", dir, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("error inspecting workspace %s: %w", dir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("workspace %s is not a directory", dir)
	}

	return dir, nil
}

// RenderEnv serializes env as one KEY=VALUE line per entry, sorted by key.
// Values are written verbatim: a value holding a newline produces extra lines.
func RenderEnv(env map[string]string) string {
	keys := lo.Keys(env)
	slices.Sort(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(env[key])
		b.WriteByte('\n')
	}
	return b.String()
}

// WriteEnvFile replaces dir/.env with the rendered env. The file is written next to
// its destination and renamed into place so readers never see a partial file.
func WriteEnvFile(dir string, env map[string]string) error {
	tmp, err := os.CreateTemp(dir, EnvFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating env file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(RenderEnv(env)); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing env file: %w", err)
	}
	if err := tmp.Chmod(envFilePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("error setting env file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing env file: %w", err)
	}

	if err := os.Rename(tmpName, filepath.Join(dir, EnvFileName)); err != nil {
		return fmt.Errorf("error replacing env file: %w", err)
	}

	return nil
}
