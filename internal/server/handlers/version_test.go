package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionHandlerIncludesBuildMetadata(t *testing.T) {
	original := *buildInfo.Load()
	t.Cleanup(func() { buildInfo.Store(&original) })

	SetBuildInfo(BuildInfo{Name: "civic-archive", Version: "1.2.3", Commit: "abcd123", BuildDate: "2026-10-16T12:00:00Z"})

	rec := httptest.NewRecorder()
	VersionHandler(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp VersionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "civic-archive", resp.App.Name)
	assert.Equal(t, "1.2.3", resp.App.Version)
	assert.Equal(t, "abcd123", resp.App.Commit)
	assert.Equal(t, runtime.Version(), resp.Runtime.GoVersion)
	assert.NotEmpty(t, resp.Dependencies.Gofulmen)
	assert.NotEmpty(t, resp.Dependencies.Crucible)
}

func TestSetBuildInfoKeepsUnsetFields(t *testing.T) {
	original := *buildInfo.Load()
	t.Cleanup(func() { buildInfo.Store(&original) })

	SetBuildInfo(BuildInfo{Name: "civic-archive", Version: "1.0.0", Commit: "c0ffee", BuildDate: "2026-10-01"})
	SetBuildInfo(BuildInfo{Version: "1.0.1"})

	got := *buildInfo.Load()
	assert.Equal(t, "civic-archive", got.Name)
	assert.Equal(t, "1.0.1", got.Version)
	assert.Equal(t, "c0ffee", got.Commit)
}
