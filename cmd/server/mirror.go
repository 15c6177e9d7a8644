package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mechpower.ai/internal/metrics"
	"mechpower.ai/internal/persistence/mirror"
)

// buildSnapshotMirror returns nil unless MP_MIRROR is set.
func buildSnapshotMirror(ctx context.Context, dataDir string, reg *metrics.Registry, logger *zap.Logger) (*mirror.Mirror, error) {
	if !envBool("MP_MIRROR", false) {
		return nil, nil
	}
	c := mirror.S3Config{
		Endpoint:        strings.TrimSpace(os.Getenv("MP_MIRROR_ENDPOINT")),
		Region:          strings.TrimSpace(os.Getenv("MP_MIRROR_REGION")),
		Bucket:          strings.TrimSpace(os.Getenv("MP_MIRROR_BUCKET")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("MP_MIRROR_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("MP_MIRROR_SECRET_ACCESS_KEY")),
	}
	if c.Bucket == "" {
		return nil, fmt.Errorf("MP_MIRROR=true but MP_MIRROR_BUCKET is not set")
	}
	up, err := mirror.NewS3Uploader(ctx, c)
	if err != nil {
		return nil, err
	}
	m := mirror.New(up, mirror.Options{
		DataDir: dataDir,
		Prefix:  strings.TrimSpace(os.Getenv("MP_MIRROR_PREFIX")),
		Workers: envInt("MP_MIRROR_WORKERS", 2),
	}, logger.Named("mirror"))
	registerMirrorMetrics(reg.GetPrometheusRegistry(), m)
	return m, nil
}

func registerMirrorMetrics(r prometheus.Registerer, m *mirror.Mirror) {
	counter := func(name, help string, v func(mirror.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(v(m.Stats())) })
	}
	r.MustRegister(
		counter("mechpower_mirror_uploads_total", "Files uploaded to object storage",
			func(s mirror.Stats) uint64 { return s.UploadSuccessTotal }),
		counter("mechpower_mirror_failures_total", "Uploads that exhausted their retries",
			func(s mirror.Stats) uint64 { return s.UploadFailTotal }),
		counter("mechpower_mirror_dropped_total", "Files dropped on a saturated queue",
			func(s mirror.Stats) uint64 { return s.DroppedTotal }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "mechpower_mirror_queue_depth",
			Help: "Files waiting for upload",
		}, func() float64 { return float64(m.Stats().QueueDepth) }),
	)
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
