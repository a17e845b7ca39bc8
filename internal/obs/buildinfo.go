package obs

import (
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const shortRevision = 12

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hometracker_build_info",
			Help: "Version, commit and Go runtime of the running binary.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// InitBuildInfo publishes a single build_info series. An empty commit falls
// back to the VCS revision stamped into the binary.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, resolveCommit(commit, debug.ReadBuildInfo), runtime.Version()).Set(1)
}

func resolveCommit(commit string, read func() (*debug.BuildInfo, bool)) string {
	if commit != "" {
		return commit
	}
	if info, ok := read(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				if len(s.Value) > shortRevision {
					return s.Value[:shortRevision]
				}
				return s.Value
			}
		}
	}
	return "unknown"
}
