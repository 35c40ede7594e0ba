package handlers

import (
	"net/http"
	"runtime"
	"sync/atomic"

	"github.com/fulmenhq/gofulmen/crucible"
)

// BuildInfo identifies the running binary.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
}

var buildInfo atomic.Pointer[BuildInfo]

func init() {
	SetBuildInfo(BuildInfo{Name: "unknown", Version: "dev", Commit: "unknown", BuildDate: "unknown"})
}

// SetBuildInfo sets what /version reports. Empty fields keep their
// previous values.
func SetBuildInfo(info BuildInfo) {
	if current := buildInfo.Load(); current != nil {
		if info.Name == "" {
			info.Name = current.Name
		}
		if info.Version == "" {
			info.Version = current.Version
		}
		if info.Commit == "" {
			info.Commit = current.Commit
		}
		if info.BuildDate == "" {
			info.BuildDate = current.BuildDate
		}
	}
	buildInfo.Store(&info)
}

// VersionResponse is the /version body.
type VersionResponse struct {
	App          BuildInfo   `json:"app"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

// DepInfo carries framework versions.
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// RuntimeInfo describes the Go runtime. Process internals such as
// goroutine counts are left to /metrics.
type RuntimeInfo struct {
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// VersionHandler reports build and dependency versions.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	deps := crucible.GetVersion()
	writeJSON(w, http.StatusOK, VersionResponse{
		App:          *buildInfo.Load(),
		Dependencies: DepInfo{Gofulmen: deps.Gofulmen, Crucible: deps.Crucible},
		Runtime: RuntimeInfo{
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
	})
}
