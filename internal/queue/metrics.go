package queue

import "github.com/prometheus/client_golang/prometheus"

// metricsCollector publishes per-queue depth gauges on the default
// Prometheus registry (served at /metrics). The gauge vector is
// registered by the first Queues in the process; a later Queues (tests
// construct several) gets AlreadyRegisteredError and reuses the
// existing vector.
type metricsCollector struct {
	depth *prometheus.GaugeVec
}

func newMetricsCollector(q *Queues) *metricsCollector {
	depth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bugspotter_queue_jobs",
		Help: "Number of jobs per queue and state.",
	}, []string{"queue", "state"})

	if err := prometheus.Register(depth); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			depth = are.ExistingCollector.(*prometheus.GaugeVec)
		}
	}
	return &metricsCollector{depth: depth}
}

func (c *metricsCollector) observe(queue string, m *QueueMetrics) {
	c.depth.WithLabelValues(queue, string(StateWaiting)).Set(float64(m.Waiting))
	c.depth.WithLabelValues(queue, string(StateActive)).Set(float64(m.Active))
	c.depth.WithLabelValues(queue, string(StateCompleted)).Set(float64(m.Completed))
	c.depth.WithLabelValues(queue, string(StateFailed)).Set(float64(m.Failed))
}
