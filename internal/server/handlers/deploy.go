package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rodrwan/hookd/internal/deploy"
	"github.com/rodrwan/hookd/internal/dto"
	"github.com/rodrwan/hookd/internal/models"
	"github.com/rodrwan/hookd/internal/runner"
	"github.com/rodrwan/hookd/internal/workspace"
)

const (
	maxBodySize = 1 << 20

	stageValidate = "validate"
	stageRequest  = "request"
)

var errRateLimited = errors.New("rate limit exceeded")

// DeployHandler validates the webhook payload and runs the deployment before answering.
// The pipeline keeps running if the client goes away. Only requests carrying the right
// secret count against the rate limit.
func DeployHandler(ctx *Context, w http.ResponseWriter, r *http.Request) (Response, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		err = fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
		return failure(r, http.StatusBadRequest, stageValidate, err), err
	}

	req, err := models.ParseDeploymentRequest(body)
	if err != nil {
		return failure(r, http.StatusBadRequest, stageValidate, err), err
	}

	if ctx.limiter != nil && deploy.Authorize(req.Secret, ctx.secret) == nil && !ctx.limiter.Allow() {
		return failure(r, http.StatusTooManyRequests, stageRequest, errRateLimited), errRateLimited
	}

	err = ctx.deployer.Deploy(context.WithoutCancel(r.Context()), Logger(r), GetRequestID(r), req)
	if err != nil {
		stage, _ := deploy.FailedStage(err)
		return failure(r, StatusCode(err), string(stage), err), err
	}

	return Response{Code: http.StatusNoContent}, nil
}

// StatusCode maps a deployment error to the HTTP status reported to the caller.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidPayload), errors.Is(err, workspace.ErrUnsafeName):
		return http.StatusBadRequest
	case errors.Is(err, deploy.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, workspace.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, runner.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func failure(r *http.Request, code int, stage string, err error) Response {
	message := err.Error()
	if errors.Is(err, deploy.ErrUnauthorized) {
		message = deploy.ErrUnauthorized.Error()
	}

	return Response{
		Code: code,
		Data: dto.StageFailure{
			RequestID: GetRequestID(r),
			Stage:     stage,
			Message:   message,
		},
	}
}
