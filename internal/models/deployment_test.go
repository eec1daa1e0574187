package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeploymentRequestRejects(t *testing.T) {
	cases := map[string]string{
		"empty body":        ``,
		"whitespace body":   "  \n",
		"not json":          `{name:`,
		"top level array":   `["not","an","object"]`,
		"top level string":  `"app"`,
		"top level null":    `null`,
		"missing name":      `{"url":"u","tag":"t","secret":"s"}`,
		"missing url":       `{"name":"n","tag":"t","secret":"s"}`,
		"missing tag":       `{"name":"n","url":"u","secret":"s"}`,
		"missing secret":    `{"name":"n","url":"u","tag":"t"}`,
		"null secret":       `{"name":"n","url":"u","tag":"t","secret":null}`,
		"numeric name":      `{"name":1,"url":"u","tag":"t","secret":"s"}`,
		"bool tag":          `{"name":"n","url":"u","tag":true,"secret":"s"}`,
		"object url":        `{"name":"n","url":{},"tag":"t","secret":"s"}`,
		"env array":         `{"name":"n","url":"u","tag":"t","secret":"s","env":["A=1"]}`,
		"env string":        `{"name":"n","url":"u","tag":"t","secret":"s","env":"A=1"}`,
		"env numeric value": `{"name":"n","url":"u","tag":"t","secret":"s","env":{"A":1}}`,
		"env null value":    `{"name":"n","url":"u","tag":"t","secret":"s","env":{"A":null}}`,
		"env nested value":  `{"name":"n","url":"u","tag":"t","secret":"s","env":{"A":{"B":"C"}}}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req, err := ParseDeploymentRequest([]byte(body))
			require.ErrorIs(t, err, ErrInvalidPayload)
			assert.Nil(t, req)
		})
	}
}

func TestParseDeploymentRequestWithoutEnv(t *testing.T) {
	req, err := ParseDeploymentRequest([]byte(`{"name":"app","url":"https://example.com/app.git","tag":"v1.0","secret":"S"}`))
	require.NoError(t, err)

	assert.Equal(t, "app", req.Name)
	assert.Equal(t, "https://example.com/app.git", req.URL)
	assert.Equal(t, "v1.0", req.Tag)
	assert.Equal(t, "S", req.Secret)
	assert.False(t, req.HasEnv())
}

func TestParseDeploymentRequestNullEnvIsAbsent(t *testing.T) {
	req, err := ParseDeploymentRequest([]byte(`{"name":"app","url":"u","tag":"t","secret":"S","env":null}`))
	require.NoError(t, err)
	assert.False(t, req.HasEnv())
}

func TestParseDeploymentRequestEmptyEnvIsPresent(t *testing.T) {
	req, err := ParseDeploymentRequest([]byte(`{"name":"app","url":"u","tag":"t","secret":"S","env":{}}`))
	require.NoError(t, err)
	assert.True(t, req.HasEnv())
	assert.Empty(t, req.Env)
}

func TestParseDeploymentRequestKeepsValuesVerbatim(t *testing.T) {
	req, err := ParseDeploymentRequest([]byte(`{"name":" App ","url":"u","tag":"t","secret":" S ","env":{"PORT":"3000","EXTRA":" a=b "}}`))
	require.NoError(t, err)

	assert.Equal(t, " App ", req.Name)
	assert.Equal(t, " S ", req.Secret)
	assert.Equal(t, map[string]string{"PORT": "3000", "EXTRA": " a=b "}, req.Env)
}
