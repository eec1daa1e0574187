package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("deployment not found")

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Querier is the deployment history as seen by the pipeline and the HTTP handlers.
type Querier interface {
	CreateDeployment(ctx context.Context, arg CreateDeploymentParams) error
	UpdateDeploymentStage(ctx context.Context, id, stage string) error
	FinishDeployment(ctx context.Context, arg FinishDeploymentParams) error
	GetDeployment(ctx context.Context, id string) (Deployment, error)
	ListDeployments(ctx context.Context, name string, limit int) ([]Deployment, error)
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

var _ Querier = (*Queries)(nil)

type Deployment struct {
	ID         string
	Name       string
	Url        string
	Tag        string
	EnvKeys    sql.NullString
	Status     string
	Stage      string
	ErrorMsg   sql.NullString
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// Keys returns the env keys recorded for the deployment.
func (d Deployment) Keys() []string {
	if !d.EnvKeys.Valid || d.EnvKeys.String == "" {
		return nil
	}
	return strings.Split(d.EnvKeys.String, ",")
}

type CreateDeploymentParams struct {
	ID        string
	Name      string
	Url       string
	Tag       string
	EnvKeys   sql.NullString
	Stage     string
	StartedAt time.Time
}

const createDeployment = `INSERT INTO deployments (id, name, url, tag, env_keys, status, stage, started_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateDeployment(ctx context.Context, arg CreateDeploymentParams) error {
	_, err := q.db.ExecContext(ctx, createDeployment,
		arg.ID, arg.Name, arg.Url, arg.Tag, arg.EnvKeys, StatusRunning, arg.Stage, arg.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("error inserting deployment: %w", err)
	}
	return nil
}

const updateDeploymentStage = `UPDATE deployments SET stage = ? WHERE id = ?`

func (q *Queries) UpdateDeploymentStage(ctx context.Context, id, stage string) error {
	if _, err := q.db.ExecContext(ctx, updateDeploymentStage, stage, id); err != nil {
		return fmt.Errorf("error updating deployment stage: %w", err)
	}
	return nil
}

type FinishDeploymentParams struct {
	ID         string
	Status     string
	Stage      string
	ErrorMsg   sql.NullString
	FinishedAt time.Time
}

const finishDeployment = `UPDATE deployments SET status = ?, stage = ?, error_msg = ?, finished_at = ? WHERE id = ?`

func (q *Queries) FinishDeployment(ctx context.Context, arg FinishDeploymentParams) error {
	res, err := q.db.ExecContext(ctx, finishDeployment, arg.Status, arg.Stage, arg.ErrorMsg, arg.FinishedAt.UTC(), arg.ID)
	if err != nil {
		return fmt.Errorf("error finishing deployment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, arg.ID)
	}
	return nil
}

const deploymentColumns = `id, name, url, tag, env_keys, status, stage, error_msg, started_at, finished_at`

const getDeployment = `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = ?`

func (q *Queries) GetDeployment(ctx context.Context, id string) (Deployment, error) {
	row := q.db.QueryRowContext(ctx, getDeployment, id)
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return d, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return d, err
}

const listDeployments = `SELECT ` + deploymentColumns + ` FROM deployments WHERE name = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`

func (q *Queries) ListDeployments(ctx context.Context, name string, limit int) ([]Deployment, error) {
	rows, err := q.db.QueryContext(ctx, listDeployments, name, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing deployments: %w", err)
	}
	defer rows.Close()

	var items []Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading deployments: %w", err)
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDeployment(s scanner) (Deployment, error) {
	var d Deployment
	err := s.Scan(&d.ID, &d.Name, &d.Url, &d.Tag, &d.EnvKeys, &d.Status, &d.Stage, &d.ErrorMsg, &d.StartedAt, &d.FinishedAt)
	return d, err
}
