// Package metrics exposes Prometheus counters, gauges, and histograms
// for the storage core: chunk store put/get traffic, dedup ratio,
// verification outcomes, ingest/reconstruct latency, and garbage
// collection activity.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dits"

var (
	// Registry is a dedicated Prometheus registry for all Dits metrics.
	Registry = prometheus.NewRegistry()

	// ChunkPutTotal counts chunk store Put calls by outcome.
	ChunkPutTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_put_total",
			Help:      "Total chunk store Put calls by outcome",
		},
		[]string{"outcome"}, // inserted | already_present
	)

	// ChunkGetTotal counts chunk store Get calls by outcome.
	ChunkGetTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_get_total",
			Help:      "Total chunk store Get calls by outcome",
		},
		[]string{"outcome"}, // ok | not_found | corruption_detected
	)

	// ChunkDedupRatio reports the ratio of the logical bytes of all
	// reachable manifests to the on-disk bytes of all stored chunks, as
	// last computed by a repository statistics pass.
	ChunkDedupRatio = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunk_dedup_ratio",
			Help:      "Logical bytes of reachable manifests divided by on-disk chunk bytes",
		},
	)

	// VerifyFailuresTotal counts CorruptionDetected outcomes from Get or
	// the background verifier.
	VerifyFailuresTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_failures_total",
			Help:      "Total chunk verification failures",
		},
		[]string{"source"}, // read | background
	)

	// IngestDuration measures end-to-end ingest latency.
	IngestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_ms",
			Help:      "Duration of ingest operations in milliseconds",
			Buckets:   []float64{1, 5, 25, 100, 500, 1000, 5000, 25000, 100000, 500000},
		},
		[]string{"profile"},
	)

	// IngestTotal counts ingest operations by outcome.
	IngestTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Total ingest operations by outcome",
		},
		[]string{"profile", "outcome"}, // ok | failed | cancelled
	)

	// ReconstructDuration measures reconstruct latency.
	ReconstructDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconstruct_duration_ms",
			Help:      "Duration of reconstruct operations in milliseconds",
			Buckets:   []float64{1, 5, 25, 100, 500, 1000, 5000, 25000, 100000, 500000},
		},
	)

	// GCReclaimedTotal counts chunks removed by garbage collection.
	GCReclaimedTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_reclaimed_chunks_total",
			Help:      "Total chunks removed by garbage collection",
		},
	)

	// RepoLogicalBytes and RepoPhysicalBytes expose the repo_stats
	// surface (spec §6) as gauges for scraping.
	RepoLogicalBytes = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "repo_logical_bytes",
			Help:      "Sum of asset sizes across all reachable manifests",
		},
	)
	RepoPhysicalBytes = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "repo_physical_bytes",
			Help:      "On-disk bytes occupied by unique chunks",
		},
	)
	RepoUniqueChunks = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "repo_unique_chunk_count",
			Help:      "Number of distinct chunks in the store",
		},
	)

	// BuildInfo exposes static information about the running process.
	BuildInfo = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Static information about the running dits process",
		},
		[]string{"os", "arch", "version"},
	)

	// Up is a liveness gauge.
	Up = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 if the process is running and healthy",
		},
	)
)

func init() {
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	Registry.MustRegister(prometheus.NewGoCollector())
	Up.Set(1)
}

// SetBuildInfo publishes a single info metric for the running process.
func SetBuildInfo(osName, arch, version string) {
	if osName == "" {
		osName = runtime.GOOS
	}
	if arch == "" {
		arch = runtime.GOARCH
	}
	if version == "" {
		version = "dev"
	}
	BuildInfo.WithLabelValues(osName, arch, version).Set(1)
}

// ObservePut records a chunk store Put outcome.
func ObservePut(outcome string) {
	ChunkPutTotal.WithLabelValues(outcome).Inc()
}

// ObserveGet records a chunk store Get outcome, and a verification
// failure counter when the outcome is corruption.
func ObserveGet(outcome string) {
	ChunkGetTotal.WithLabelValues(outcome).Inc()
	if outcome == "corruption_detected" {
		VerifyFailuresTotal.WithLabelValues("read").Inc()
	}
}

// ObserveBackgroundVerifyFailure records a corruption found by the
// background verifier, distinct from one found on the foreground read
// path.
func ObserveBackgroundVerifyFailure() {
	VerifyFailuresTotal.WithLabelValues("background").Inc()
}

// SetDedupRatio reports the current ratio of logical to physical bytes.
func SetDedupRatio(logicalBytes, physicalBytes int64) {
	if physicalBytes <= 0 {
		return
	}
	ChunkDedupRatio.Set(float64(logicalBytes) / float64(physicalBytes))
}

// ObserveIngest records ingest duration and outcome for one profile.
func ObserveIngest(start time.Time, profile, outcome string) {
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	IngestDuration.WithLabelValues(profile).Observe(elapsed)
	IngestTotal.WithLabelValues(profile, outcome).Inc()
}

// ObserveReconstruct records reconstruct duration.
func ObserveReconstruct(start time.Time) {
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	ReconstructDuration.Observe(elapsed)
}

// AddGCReclaimed increments the GC reclaim counter by count.
func AddGCReclaimed(count int) {
	if count <= 0 {
		return
	}
	GCReclaimedTotal.Add(float64(count))
}

// SetRepoStats publishes the repo_stats surface (spec §6) as gauges.
func SetRepoStats(logicalBytes, physicalBytes int64, uniqueChunks int) {
	RepoLogicalBytes.Set(float64(logicalBytes))
	RepoPhysicalBytes.Set(float64(physicalBytes))
	RepoUniqueChunks.Set(float64(uniqueChunks))
}

// SetUp toggles the liveness gauge.
func SetUp(healthy bool) {
	if healthy {
		Up.Set(1)
		return
	}
	Up.Set(0)
}

// Serve starts the /metrics HTTP endpoint on addr until ctx is
// cancelled.
func Serve(ctx context.Context, addr string, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{Addr: addr, Handler: mux}

	idleClosed := make(chan struct{})
	go func() {
		defer close(idleClosed)
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Printf("[Metrics] Prometheus endpoint listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-idleClosed
		return nil
	}

	return err
}
