package deploy

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/rodrwan/hookd/internal/database"
	"github.com/rodrwan/hookd/internal/metrics"
	"github.com/rodrwan/hookd/internal/models"
	"github.com/rodrwan/hookd/internal/workspace"
)

type Locker interface {
	Lock(ctx context.Context, name string) (func(), error)
}

type Syncer interface {
	Sync(ctx context.Context, log *logrus.Entry, dir, url, tag string) error
}

type Launcher interface {
	Up(ctx context.Context, log *logrus.Entry, dir string) error
}

type Options struct {
	Root     string
	Secret   string
	Locker   Locker
	Syncer   Syncer
	Launcher Launcher
	// Store is optional; without it no history is kept.
	Store   database.Querier
	Metrics *metrics.Recorder
}

// Deployer runs the deployment pipeline:
// authorize → lock → workspace → sync → env (optional) → launch.
// Stages run strictly in order and the first failure ends the run; nothing is rolled back.
type Deployer struct {
	root     string
	secret   string
	locker   Locker
	syncer   Syncer
	launcher Launcher
	store    database.Querier
	metrics  *metrics.Recorder
}

func New(opts Options) *Deployer {
	return &Deployer{
		root:     opts.Root,
		secret:   opts.Secret,
		locker:   opts.Locker,
		syncer:   opts.Syncer,
		launcher: opts.Launcher,
		store:    opts.Store,
		metrics:  opts.Metrics,
	}
}

// Authorize compares the provided secret with the configured one in constant time.
func Authorize(provided, configured string) error {
	if configured == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Deploy runs every stage for req, which must already be validated. No side effect
// happens before the secret is checked. requestID identifies the run in the history.
func (d *Deployer) Deploy(ctx context.Context, log *logrus.Entry, requestID string, req *models.DeploymentRequest) error {
	log = log.WithField("deployment", req.Name)

	if err := Authorize(req.Secret, d.secret); err != nil {
		log.Warn("rejected deployment: secret mismatch")
		return &StageError{Stage: StageAuthorize, Kind: ErrUnauthorized, Err: err}
	}

	if _, err := workspace.Resolve(d.root, req.Name); err != nil {
		log.Warnf("rejected deployment: %v", err)
		return &StageError{Stage: StageWorkspace, Kind: ErrWorkspace, Err: err}
	}

	envKeys := lo.Keys(req.Env)
	slices.Sort(envKeys)
	log.WithFields(logrus.Fields{
		"url":      req.URL,
		"tag":      req.Tag,
		"env_keys": envKeys,
	}).Info("deployment authorized")

	run := &run{Deployer: d, ctx: ctx, log: log, id: requestID}
	run.begin(req, envKeys)

	err := run.pipeline(req)
	run.finish(err)
	return err
}

// run carries the state of one deployment through its stages.
type run struct {
	*Deployer
	ctx   context.Context
	log   *logrus.Entry
	id    string
	stage Stage
	// recorded is set once the history row of this run exists; rows of other runs are never touched.
	recorded bool
}

func (r *run) pipeline(req *models.DeploymentRequest) error {
	var unlock func()
	if err := r.step(StageLock, ErrLock, func() (err error) {
		unlock, err = r.locker.Lock(r.ctx, req.Name)
		return err
	}); err != nil {
		return err
	}
	defer unlock()

	var dir string
	if err := r.step(StageWorkspace, ErrWorkspace, func() (err error) {
		dir, err = workspace.Prepare(r.root, req.Name)
		return err
	}); err != nil {
		return err
	}
	r.log.WithField("workspace", dir).Info("workspace ready")

	if err := r.step(StageSync, ErrSync, func() error {
		return r.syncer.Sync(r.ctx, r.log, dir, req.URL, req.Tag)
	}); err != nil {
		return err
	}
	r.log.Info("git repository ready")

	if req.HasEnv() {
		if err := r.step(StageEnv, ErrWorkspace, func() error {
			return workspace.WriteEnvFile(dir, req.Env)
		}); err != nil {
			return err
		}
		r.log.WithField("entries", len(req.Env)).Info("env file written")
	}

	if err := r.step(StageLaunch, ErrLaunch, func() error {
		return r.launcher.Up(r.ctx, r.log, dir)
	}); err != nil {
		return err
	}

	r.stage = StageCompleted
	return nil
}

func (r *run) step(stage Stage, kind error, fn func() error) error {
	r.stage = stage
	if r.recorded {
		if err := r.store.UpdateDeploymentStage(r.ctx, r.id, string(stage)); err != nil {
			r.log.Warnf("error recording stage %s: %v", stage, err)
		}
	}

	start := time.Now()
	err := fn()
	if r.metrics != nil {
		r.metrics.Stage(string(stage), time.Since(start))
	}

	if err != nil {
		return &StageError{Stage: stage, Kind: kind, Err: err}
	}
	return nil
}

func (r *run) begin(req *models.DeploymentRequest, envKeys []string) {
	if r.metrics != nil {
		r.metrics.DeploymentStart()
	}
	if r.store == nil {
		return
	}

	err := r.store.CreateDeployment(r.ctx, database.CreateDeploymentParams{
		ID:        r.id,
		Name:      req.Name,
		Url:       req.URL,
		Tag:       req.Tag,
		EnvKeys:   sql.NullString{String: strings.Join(envKeys, ","), Valid: req.HasEnv()},
		Stage:     string(StageAuthorize),
		StartedAt: time.Now(),
	})
	if err != nil {
		r.log.Warnf("error recording deployment: %v", err)
		return
	}
	r.recorded = true
}

func (r *run) finish(err error) {
	if r.metrics != nil {
		r.metrics.DeploymentEnd(string(r.stage), err)
	}

	params := database.FinishDeploymentParams{
		ID:         r.id,
		Status:     database.StatusSucceeded,
		Stage:      string(r.stage),
		FinishedAt: time.Now(),
	}
	if err != nil {
		params.Status = database.StatusFailed
		params.ErrorMsg = sql.NullString{String: err.Error(), Valid: true}
		r.log.WithField("stage", r.stage).Errorf("deployment failed: %v", err)
	} else {
		r.log.Info("deployment completed")
	}

	if !r.recorded {
		return
	}
	if err := r.store.FinishDeployment(r.ctx, params); err != nil {
		r.log.Warnf("error recording deployment result: %v", err)
	}
}
