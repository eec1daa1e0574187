package compose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rodrwan/hookd/internal/runner"
)

// FileNames are the compose file names looked up in a workspace, in docker compose's order of preference.
var FileNames = []string{"compose.yaml", "compose.yml", "docker-compose.yaml", "docker-compose.yml"}

var (
	ErrNoComposeFile      = errors.New("no compose file found")
	ErrInvalidComposeFile = errors.New("invalid compose file")
)

// Project is the part of a compose file hookd looks at before launching.
type Project struct {
	File     string
	Services []string
}

type composeFile struct {
	Services map[string]yaml.Node `yaml:"services"`
}

// Inspect finds the compose file of dir and lists the services it declares.
func Inspect(dir string) (*Project, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", name, err)
		}

		var parsed composeFile
		if err := yaml.Unmarshal(content, &parsed); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidComposeFile, name, err)
		}
		if len(parsed.Services) == 0 {
			return nil, fmt.Errorf("%w: %s declares no services", ErrInvalidComposeFile, name)
		}

		services := lo.Keys(parsed.Services)
		slices.Sort(services)
		return &Project{File: path, Services: services}, nil
	}

	return nil, fmt.Errorf("%w in %s", ErrNoComposeFile, dir)
}

// Launcher starts the services of a workspace with docker compose.
type Launcher struct {
	runner runner.Runner
	binary string
}

func NewLauncher(r runner.Runner, binary string) *Launcher {
	if binary == "" {
		binary = "docker"
	}
	return &Launcher{runner: r, binary: binary}
}

// Up checks that dir has a usable compose file and runs `docker compose up -d` in it.
// The launched services are not health checked.
func (l *Launcher) Up(ctx context.Context, log *logrus.Entry, dir string) error {
	project, err := Inspect(dir)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"compose_file": filepath.Base(project.File),
		"services":     project.Services,
	}).Info("starting services")

	cmd := runner.Command{
		Name: l.binary,
		Args: []string{"compose", "up", "-d"},
		Dir:  dir,
	}
	res, err := l.runner.Run(ctx, cmd)
	if err != nil {
		if res != nil && res.Output != "" {
			log.Warnf("docker compose output:\n%s", res.Output)
		}
		return err
	}

	log.WithField("duration", res.Duration).Debug("docker compose up done")
	return nil
}
