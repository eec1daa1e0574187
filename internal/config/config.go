package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

const (
	EnvHost           = "HOST"
	EnvPort           = "PORT"
	EnvSecret         = "SECRET_ACCESS_KEY"
	EnvDeploymentRoot = "DEPLOYMENT_ROOT_FOLDER"
	EnvDatabase       = "HOOKD_DB"
	EnvCommandTimeout = "HOOKD_COMMAND_TIMEOUT"
	EnvLockTimeout    = "HOOKD_LOCK_TIMEOUT"
	EnvGitBinary      = "HOOKD_GIT_BIN"
	EnvDockerBinary   = "HOOKD_DOCKER_BIN"
	EnvRateLimit      = "HOOKD_RATE_LIMIT"
	EnvLogLevel       = "HOOKD_LOG_LEVEL"
	EnvEnvFile        = "HOOKD_ENV_FILE"
)

const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8080
	DefaultCommandTimeout = 10 * time.Minute
	DefaultLockTimeout    = 15 * time.Minute
	DefaultEnvFile        = ".env"
	databaseFileName      = ".hookd.db"
)

var (
	ErrMissingSecret = errors.New("shared secret is required")
	ErrMissingRoot   = errors.New("deployment root folder is required")
)

// Config is the process-wide configuration. It is built once at startup and never mutated.
type Config struct {
	Host           string
	Port           int
	Secret         string
	DeploymentRoot string
	DatabasePath   string
	CommandTimeout time.Duration
	LockTimeout    time.Duration
	GitBinary      string
	DockerBinary   string
	RateLimit      float64
	LogLevel       logrus.Level
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String describes the configuration without the secret.
func (c *Config) String() string {
	return fmt.Sprintf("addr=%s root=%s db=%s command_timeout=%s lock_timeout=%s git=%s docker=%s rate_limit=%g",
		c.Addr(), c.DeploymentRoot, c.DatabasePath, c.CommandTimeout, c.LockTimeout, c.GitBinary, c.DockerBinary, c.RateLimit)
}

// GetEnv gets an environment variable or returns a default value if not present
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Load parses args, loads the dotenv file and resolves every setting. Flags win over
// environment variables, which win over the dotenv file, which wins over defaults.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("hookd", pflag.ContinueOnError)

	envFile := fs.String("env-file", DefaultEnvFile, "dotenv file loaded before reading the environment")
	host := fs.String("host", DefaultHost, "host to listen on")
	port := fs.Int("port", DefaultPort, "port to listen on")
	secret := fs.String("secret", "", "shared secret expected in deployment requests")
	root := fs.String("root", "", "folder under which deployment workspaces are created")
	db := fs.String("db", "", "sqlite database holding the deployment history (default <root>/.hookd.db)")
	commandTimeout := fs.Duration("command-timeout", DefaultCommandTimeout, "maximum duration of a single git or docker invocation")
	lockTimeout := fs.Duration("lock-timeout", DefaultLockTimeout, "maximum time to wait for another deployment of the same name")
	gitBin := fs.String("git", "git", "git executable")
	dockerBin := fs.String("docker", "docker", "docker executable")
	rateLimit := fs.Float64("rate-limit", 0, "maximum webhook requests per second, 0 disables limiting")
	logLevel := fs.String("log-level", logrus.InfoLevel.String(), "log level")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := loadEnvFile(fs.Changed("env-file"), GetEnv(EnvEnvFile, *envFile), *envFile); err != nil {
		return nil, err
	}

	var err error
	cfg := &Config{}

	cfg.Host = stringSetting(fs, "host", *host, EnvHost)
	if cfg.Port, err = intSetting(fs, "port", *port, EnvPort); err != nil {
		return nil, err
	}
	cfg.Secret = stringSetting(fs, "secret", *secret, EnvSecret)
	cfg.DeploymentRoot = stringSetting(fs, "root", *root, EnvDeploymentRoot)
	cfg.DatabasePath = stringSetting(fs, "db", *db, EnvDatabase)
	if cfg.CommandTimeout, err = durationSetting(fs, "command-timeout", *commandTimeout, EnvCommandTimeout); err != nil {
		return nil, err
	}
	if cfg.LockTimeout, err = durationSetting(fs, "lock-timeout", *lockTimeout, EnvLockTimeout); err != nil {
		return nil, err
	}
	cfg.GitBinary = stringSetting(fs, "git", *gitBin, EnvGitBinary)
	cfg.DockerBinary = stringSetting(fs, "docker", *dockerBin, EnvDockerBinary)
	if cfg.RateLimit, err = floatSetting(fs, "rate-limit", *rateLimit, EnvRateLimit); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = logrus.ParseLevel(stringSetting(fs, "log-level", *logLevel, EnvLogLevel)); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Secret == "" {
		return ErrMissingSecret
	}
	if c.DeploymentRoot == "" {
		return ErrMissingRoot
	}

	root, err := filepath.Abs(c.DeploymentRoot)
	if err != nil {
		return fmt.Errorf("error resolving deployment root: %w", err)
	}
	c.DeploymentRoot = root

	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(root, databaseFileName)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be positive, got %s", c.CommandTimeout)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock timeout must be positive, got %s", c.LockTimeout)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative, got %g", c.RateLimit)
	}
	if c.GitBinary == "" || c.DockerBinary == "" {
		return errors.New("git and docker executables must be set")
	}

	return nil
}

// loadEnvFile loads the dotenv file without overriding variables already present.
// A missing file is only an error when it was asked for explicitly.
func loadEnvFile(explicit bool, path, fallback string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	if errors.Is(err, os.ErrNotExist) && !explicit && path == fallback {
		logrus.Debugf("%s not found, using system environment variables", path)
		return nil
	}

	return fmt.Errorf("error loading env file %s: %w", path, err)
}

func stringSetting(fs *pflag.FlagSet, name, value, env string) string {
	if fs.Changed(name) {
		return value
	}
	return GetEnv(env, value)
}

func intSetting(fs *pflag.FlagSet, name string, value int, env string) (int, error) {
	raw, ok := os.LookupEnv(env)
	if fs.Changed(name) || !ok {
		return value, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", env, raw, err)
	}
	return parsed, nil
}

func floatSetting(fs *pflag.FlagSet, name string, value float64, env string) (float64, error) {
	raw, ok := os.LookupEnv(env)
	if fs.Changed(name) || !ok {
		return value, nil
	}

	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", env, raw, err)
	}
	return parsed, nil
}

func durationSetting(fs *pflag.FlagSet, name string, value time.Duration, env string) (time.Duration, error) {
	raw, ok := os.LookupEnv(env)
	if fs.Changed(name) || !ok {
		return value, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", env, raw, err)
	}
	return parsed, nil
}
