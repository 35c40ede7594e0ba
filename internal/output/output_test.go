package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("yml")
	require.NoError(t, err)
	require.Equal(t, FormatYAML, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

type yamlSection struct {
	Backend string `yaml:"backend"`
}

type yamlDoc struct {
	RateLimit yamlSection `yaml:"rate_limit"`
}

func TestWriteYAMLUsesTags(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatYAML, yamlDoc{RateLimit: yamlSection{Backend: "redis"}}))
	require.Equal(t, "rate_limit:\n  backend: redis\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, CheckRow{Name: "api_key", Status: StatusOK}))
	require.Contains(t, buf.String(), "\"name\": \"api_key\"")
	require.NotContains(t, buf.String(), "detail")

	require.Error(t, Write(&buf, FormatTable, nil))
}

func TestFormatChecks(t *testing.T) {
	rendered := FormatChecks("Guards", []CheckRow{
		{Name: "api_key", Status: StatusOK, Detail: "header X-API-Key"},
		{Name: "rate_limit_backend", Status: StatusFail, Detail: "redis: connection refused"},
		{Name: "token", Status: StatusOff},
	})

	require.Contains(t, rendered, "Guards")
	require.Contains(t, rendered, "header X-API-Key")
	require.Contains(t, rendered, "2/3 passing")
	require.NotContains(t, rendered, "PASSING")
	require.Contains(t, rendered, "redis: connection refused")
}

func TestFormatKeyValues(t *testing.T) {
	rendered := FormatKeyValues("Rate limit", [][2]string{{"client", "203.0.113.9"}, {"count", "3"}})
	require.Contains(t, rendered, "203.0.113.9")
	require.Contains(t, rendered, "count")
}
