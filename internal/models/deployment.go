package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPayload is returned when a webhook body does not have the shape of a DeploymentRequest.
var ErrInvalidPayload = errors.New("invalid deployment payload")

// DeploymentRequest describes what to deploy. Env is nil when the payload omits it,
// and a non-nil (possibly empty) map when it is present.
type DeploymentRequest struct {
	Name   string            `json:"name"`
	URL    string            `json:"url"`
	Tag    string            `json:"tag"`
	Secret string            `json:"secret"`
	Env    map[string]string `json:"env,omitempty"`
}

// HasEnv reports whether the request carried an env mapping.
func (r *DeploymentRequest) HasEnv() bool {
	return r.Env != nil
}

// ParseDeploymentRequest checks that body is a JSON object with string name, url, tag and secret
// fields and an optional string to string env object. Values are taken verbatim.
func ParseDeploymentRequest(body []byte) (*DeploymentRequest, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidPayload)
	}

	req := &DeploymentRequest{}
	fields := []struct {
		key string
		dst *string
	}{
		{"name", &req.Name},
		{"url", &req.URL},
		{"tag", &req.Tag},
		{"secret", &req.Secret},
	}
	for _, f := range fields {
		s, ok := obj[f.key].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %q must be a string", ErrInvalidPayload, f.key)
		}
		*f.dst = s
	}

	rawEnv, present := obj["env"]
	if !present || rawEnv == nil {
		return req, nil
	}

	envObj, ok := rawEnv.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: \"env\" must be an object", ErrInvalidPayload)
	}

	req.Env = make(map[string]string, len(envObj))
	for key, value := range envObj {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: env %q must be a string", ErrInvalidPayload, key)
		}
		req.Env[key] = s
	}

	return req, nil
}
