package redis

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// MetricsHook records per-command latency and failures. A cache miss
// (redis.Nil) counts as success.
type MetricsHook struct {
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
}

var _ redis.Hook = (*MetricsHook)(nil)

// NewMetricsHook registers on reg; a nil registerer yields a hook that only
// forwards.
func NewMetricsHook(reg prometheus.Registerer) *MetricsHook {
	if reg == nil {
		return &MetricsHook{}
	}
	h := &MetricsHook{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: keyNamespace,
			Subsystem: "redis",
			Name:      "command_duration_seconds",
			Help:      "Redis command round trip time.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1},
		}, []string{"command"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: keyNamespace,
			Subsystem: "redis",
			Name:      "command_errors_total",
			Help:      "Redis commands that returned an error other than a miss.",
		}, []string{"command"}),
	}
	reg.MustRegister(h.duration, h.failures)
	return h
}

func (h *MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.observe("dial", 0, err)
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observe(cmd.Name(), time.Since(start), err)
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.observe("pipeline", time.Since(start), err)
		return err
	}
}

func (h *MetricsHook) observe(command string, took time.Duration, err error) {
	if h == nil || h.duration == nil {
		return
	}
	command = strings.ToLower(command)
	if took > 0 {
		h.duration.WithLabelValues(command).Observe(took.Seconds())
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		h.failures.WithLabelValues(command).Inc()
	}
}
