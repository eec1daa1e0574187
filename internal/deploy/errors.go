package deploy

import (
	"errors"
	"fmt"
)

// Stage names a step of the deployment pipeline.
type Stage string

const (
	StageAuthorize Stage = "authorize"
	StageLock      Stage = "lock"
	StageWorkspace Stage = "workspace"
	StageSync      Stage = "sync"
	StageEnv       Stage = "env"
	StageLaunch    Stage = "launch"
	StageCompleted Stage = "completed"
)

var (
	ErrUnauthorized = errors.New("secret mismatch")
	ErrLock         = errors.New("deployment lock unavailable")
	ErrWorkspace    = errors.New("workspace preparation failed")
	ErrSync         = errors.New("source synchronization failed")
	ErrLaunch       = errors.New("service launch failed")
)

// StageError reports which stage stopped a deployment. It matches both its
// kind (ErrSync, ErrLaunch, ...) and the underlying cause with errors.Is.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// FailedStage returns the stage carried by err, if any.
func FailedStage(err error) (Stage, bool) {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}
