package handlers

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rodrwan/hookd/internal/database"
	"github.com/rodrwan/hookd/internal/dto"
	"github.com/rodrwan/hookd/internal/metrics"
	"github.com/rodrwan/hookd/internal/models"
)

const (
	// SecretHeader carries the shared secret on read-only endpoints.
	SecretHeader = "X-Hook-Secret"

	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Deployer runs a validated deployment request.
type Deployer interface {
	Deploy(ctx context.Context, log *logrus.Entry, requestID string, req *models.DeploymentRequest) error
}

// ContainerLister finds the containers of a compose project by its working directory.
type ContainerLister interface {
	ProjectContainers(ctx context.Context, dir string) ([]dto.Container, error)
}

type Options struct {
	Root     string
	Secret   string
	Deployer Deployer
	// Queries, Docker, Limiter and Metrics are optional.
	Queries database.Querier
	Docker  ContainerLister
	Limiter *rate.Limiter
	Metrics *metrics.Recorder
}

// Context holds what the handlers share across requests.
type Context struct {
	root     string
	secret   string
	deployer Deployer
	queries  database.Querier
	docker   ContainerLister
	limiter  *rate.Limiter
	metrics  *metrics.Recorder
}

func NewContext(opts Options) *Context {
	return &Context{
		root:     opts.Root,
		secret:   opts.Secret,
		deployer: opts.Deployer,
		queries:  opts.Queries,
		docker:   opts.Docker,
		limiter:  opts.Limiter,
		metrics:  opts.Metrics,
	}
}
