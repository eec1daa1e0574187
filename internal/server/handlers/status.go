package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/rodrwan/hookd/internal/database"
	"github.com/rodrwan/hookd/internal/deploy"
	"github.com/rodrwan/hookd/internal/dto"
	"github.com/rodrwan/hookd/internal/workspace"
)

// DeploymentStatusHandler returns the recent history of a deployment name and,
// when the Docker API is available, the containers of its compose project.
func DeploymentStatusHandler(ctx *Context, w http.ResponseWriter, r *http.Request) (Response, error) {
	if err := deploy.Authorize(r.Header.Get(SecretHeader), ctx.secret); err != nil {
		return failure(r, http.StatusForbidden, string(deploy.StageAuthorize), err), err
	}

	name := mux.Vars(r)["name"]
	dir, err := workspace.Resolve(ctx.root, name)
	if err != nil {
		return failure(r, http.StatusBadRequest, string(deploy.StageWorkspace), err), err
	}

	status := dto.DeploymentStatus{
		Name:        name,
		Workspace:   dir,
		Deployments: []dto.Deployment{},
	}

	if ctx.queries != nil {
		records, err := ctx.queries.ListDeployments(r.Context(), name, historyLimit(r))
		if err != nil {
			return failure(r, http.StatusInternalServerError, stageRequest, err), err
		}
		status.Deployments = lo.Map(records, func(d database.Deployment, _ int) dto.Deployment {
			return toDeployment(d)
		})
	}

	if ctx.docker != nil {
		containers, err := ctx.docker.ProjectContainers(r.Context(), dir)
		if err != nil {
			Logger(r).Warnf("error listing containers of %s: %v", name, err)
		} else {
			status.Containers = containers
		}
	}

	return Response{Code: http.StatusOK, Data: status}, nil
}

func historyLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	return min(limit, maxHistoryLimit)
}

func toDeployment(d database.Deployment) dto.Deployment {
	out := dto.Deployment{
		ID:        d.ID,
		Name:      d.Name,
		URL:       d.Url,
		Tag:       d.Tag,
		EnvKeys:   d.Keys(),
		Status:    d.Status,
		Stage:     d.Stage,
		Error:     d.ErrorMsg.String,
		StartedAt: d.StartedAt,
	}
	if d.FinishedAt.Valid {
		finished := d.FinishedAt.Time
		out.FinishedAt = &finished
	}
	return out
}
