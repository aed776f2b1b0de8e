package multiharp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// acquisition counters, served by the /metrics endpoint of the host
// process
var (
	mRunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scanhub",
		Subsystem: "multiharp",
		Name:      "runs_started_total",
		Help:      "Acquisition runs started.",
	})
	mRecordsRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scanhub",
		Subsystem: "multiharp",
		Name:      "records_read_total",
		Help:      "TTTR records drained from the hardware FIFO.",
	})
	mPhotonsMapped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scanhub",
		Subsystem: "multiharp",
		Name:      "photons_mapped_total",
		Help:      "Photon events mapped to frame pixels.",
	})
	mFIFOOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "scanhub",
		Subsystem: "multiharp",
		Name:      "fifo_overflows_total",
		Help:      "Runs ended early by a hardware FIFO overflow.",
	})
)
