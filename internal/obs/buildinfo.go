package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var registerBuildInfo sync.Once

// InitBuildInfo exposes aedile_build_info{version,commit} = 1 so dashboards
// can tell which build is serving traffic. Safe to call more than once; the
// gauge is registered on the first call and relabelled on subsequent ones.
func InitBuildInfo(version, commit string) {
	registerBuildInfo.Do(func() {
		prometheus.MustRegister(buildInfoGauge)
	})
	buildInfoGauge.Reset()
	buildInfoGauge.WithLabelValues(version, commit).Set(1)
}

var buildInfoGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "aedile_build_info",
		Help: "Build version and commit of the running binary.",
	},
	[]string{"version", "commit"},
)
