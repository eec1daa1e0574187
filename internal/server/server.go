package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rodrwan/hookd/internal/compose"
	"github.com/rodrwan/hookd/internal/config"
	"github.com/rodrwan/hookd/internal/database"
	"github.com/rodrwan/hookd/internal/deploy"
	"github.com/rodrwan/hookd/internal/docker"
	"github.com/rodrwan/hookd/internal/git"
	"github.com/rodrwan/hookd/internal/metrics"
	"github.com/rodrwan/hookd/internal/runner"
	"github.com/rodrwan/hookd/internal/server/handlers"
	"github.com/rodrwan/hookd/internal/workspace"
)

const (
	Version = "1.0.0"

	// A deployment runs at most six external commands: clone, fetch, checkout,
	// symbolic-ref, pull and compose up.
	maxCommandsPerDeployment = 6
	writeTimeoutMargin       = 30 * time.Second
)

type Server struct {
	router *mux.Router
	server *http.Server
	db     *sql.DB
	docker *docker.Client
}

// NewServer wires the deployment pipeline to the HTTP routes. db and dockerClient may
// be nil, in which case history and container listings are not available.
func NewServer(cfg *config.Config, db *sql.DB, dockerClient *docker.Client) *Server {
	return newServer(cfg, db, dockerClient, runner.NewExecRunner(cfg.CommandTimeout))
}

func newServer(cfg *config.Config, db *sql.DB, dockerClient *docker.Client, r runner.Runner) *Server {
	router := mux.NewRouter()

	srv := &Server{
		router: router,
		server: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: writeTimeout(cfg),
			IdleTimeout:  120 * time.Second,
		},
		db:     db,
		docker: dockerClient,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)

	var queries database.Querier
	if db != nil {
		queries = database.New(db)
	}

	deployer := deploy.New(deploy.Options{
		Root:     cfg.DeploymentRoot,
		Secret:   cfg.Secret,
		Locker:   workspace.NewLocker(cfg.DeploymentRoot, cfg.LockTimeout),
		Syncer:   git.NewSynchronizer(r, cfg.GitBinary),
		Launcher: compose.NewLauncher(r, cfg.DockerBinary),
		Store:    queries,
		Metrics:  recorder,
	})

	opts := handlers.Options{
		Root:     cfg.DeploymentRoot,
		Secret:   cfg.Secret,
		Deployer: deployer,
		Queries:  queries,
		Metrics:  recorder,
	}
	if dockerClient != nil {
		opts.Docker = dockerClient
	}
	if cfg.RateLimit > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(math.Max(1, math.Ceil(cfg.RateLimit))))
	}

	srv.setupRoutes(handlers.NewContext(opts), registry)
	return srv
}

func (s *Server) setupRoutes(ctx *handlers.Context, registry *prometheus.Registry) {
	s.router.Use(handlers.RequestID)

	// Webhook
	s.router.HandleFunc("/", ctx.ServeHTTP(handlers.DeployHandler)).Methods("POST")
	// Health check
	s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
	s.router.HandleFunc("/deployments/{name}", ctx.ServeHTTP(handlers.DeploymentStatusHandler)).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "ok",
		"message": "hookd running",
		"version": Version,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	logrus.Infof("hookd listening on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// DrainTimeout is how long Shutdown needs to let every in-flight deployment finish.
func (s *Server) DrainTimeout() time.Duration {
	return s.server.WriteTimeout
}

// Shutdown waits for in-flight deployments until ctx expires, then releases the
// Docker client and the database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)

	if s.docker != nil {
		if cerr := s.docker.Close(); cerr != nil {
			logrus.Errorf("error closing Docker client: %v", cerr)
		}
	}
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil {
			logrus.Errorf("error closing database: %v", cerr)
		}
	}

	return err
}

// writeTimeout leaves room for a deployment that waits for its lock and then
// runs every command up to its timeout, since the response is sent at the end.
func writeTimeout(cfg *config.Config) time.Duration {
	return cfg.LockTimeout + maxCommandsPerDeployment*cfg.CommandTimeout + writeTimeoutMargin
}

// IsClosed reports whether err is the expected result of a Shutdown.
func IsClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed)
}
