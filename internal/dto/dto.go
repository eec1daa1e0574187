package dto

import "time"

type Container struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Service string   `json:"service"`
	Image   string   `json:"image"`
	State   string   `json:"state"`
	Status  string   `json:"status"`
	Ports   []string `json:"ports"`
}

type Deployment struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	URL        string     `json:"url"`
	Tag        string     `json:"tag"`
	EnvKeys    []string   `json:"env_keys,omitempty"`
	Status     string     `json:"status"`
	Stage      string     `json:"stage"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type DeploymentStatus struct {
	Name        string       `json:"name"`
	Workspace   string       `json:"workspace"`
	Deployments []Deployment `json:"deployments"`
	// Containers is omitted when the Docker API is not reachable.
	Containers []Container `json:"containers,omitempty"`
}

type StageFailure struct {
	RequestID string `json:"request_id"`
	Stage     string `json:"stage"`
	Message   string `json:"message"`
}
