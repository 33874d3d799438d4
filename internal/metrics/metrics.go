package metrics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"restgraph/internal/runtime"
)

var durationBuckets = []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Collector counts dispatches for Prometheus export. It implements
// runtime.Observer.
type Collector struct {
	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	transportErrors atomic.Int64

	operationRequests map[string]*atomic.Int64
	operationMu       sync.RWMutex

	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	// milliseconds, non-cumulative
	durationCounts []atomic.Int64
	durationSum    atomic.Int64
	durationCount  atomic.Int64

	startTime time.Time
}

func NewCollector() *Collector {
	return &Collector{
		operationRequests: make(map[string]*atomic.Int64),
		statusCodes:       make(map[int]*atomic.Int64),
		durationCounts:    make([]atomic.Int64, len(durationBuckets)),
		startTime:         time.Now(),
	}
}

// Observe records one dispatch.
func (c *Collector) Observe(_ context.Context, e runtime.Event) {
	c.totalRequests.Add(1)
	success := e.Err == nil && e.StatusCode >= 200 && e.StatusCode < 300
	if success {
		c.successRequests.Add(1)
	} else {
		c.failedRequests.Add(1)
	}
	if e.Err != nil && e.StatusCode == 0 {
		c.transportErrors.Add(1)
	}

	counter(&c.operationMu, c.operationRequests, e.Operation).Add(1)
	if e.StatusCode > 0 {
		counter(&c.statusMu, c.statusCodes, e.StatusCode).Add(1)
	}

	ms := e.Duration.Milliseconds()
	c.durationSum.Add(ms)
	c.durationCount.Add(1)
	for i, bucket := range durationBuckets {
		if float64(ms) <= bucket {
			c.durationCounts[i].Add(1)
			break
		}
	}
}

func counter[K comparable](mu *sync.RWMutex, m map[K]*atomic.Int64, key K) *atomic.Int64 {
	mu.RLock()
	n, ok := m[key]
	mu.RUnlock()
	if ok {
		return n
	}
	mu.Lock()
	defer mu.Unlock()
	if n, ok = m[key]; !ok {
		n = &atomic.Int64{}
		m[key] = n
	}
	return n
}

// PrometheusFormat exports metrics in Prometheus text format. Labelled
// series are sorted so the output is stable.
func (c *Collector) PrometheusFormat() string {
	var b strings.Builder

	writeCounter(&b, "restgraph_dispatch_total", "Total number of upstream dispatches", c.totalRequests.Load())
	writeCounter(&b, "restgraph_dispatch_success_total", "Dispatches answered with a 2xx status", c.successRequests.Load())
	writeCounter(&b, "restgraph_dispatch_failed_total", "Dispatches that failed or returned a non-2xx status", c.failedRequests.Load())
	writeCounter(&b, "restgraph_dispatch_transport_errors_total", "Dispatches that never received a response", c.transportErrors.Load())

	b.WriteString("# HELP restgraph_dispatch_by_operation_total Dispatches per operation\n")
	b.WriteString("# TYPE restgraph_dispatch_by_operation_total counter\n")
	for _, kv := range sortedCounts(&c.operationMu, c.operationRequests, func(a, b string) bool { return a < b }) {
		fmt.Fprintf(&b, "restgraph_dispatch_by_operation_total{operation=%q} %d\n", kv.key, kv.value)
	}
	b.WriteString("\n")

	b.WriteString("# HELP restgraph_dispatch_by_status_total Dispatches per upstream status code\n")
	b.WriteString("# TYPE restgraph_dispatch_by_status_total counter\n")
	for _, kv := range sortedCounts(&c.statusMu, c.statusCodes, func(a, b int) bool { return a < b }) {
		fmt.Fprintf(&b, "restgraph_dispatch_by_status_total{code=\"%d\"} %d\n", kv.key, kv.value)
	}
	b.WriteString("\n")

	b.WriteString("# HELP restgraph_dispatch_duration_milliseconds Dispatch duration in milliseconds\n")
	b.WriteString("# TYPE restgraph_dispatch_duration_milliseconds histogram\n")
	cumulative := int64(0)
	for i, bucket := range durationBuckets {
		cumulative += c.durationCounts[i].Load()
		fmt.Fprintf(&b, "restgraph_dispatch_duration_milliseconds_bucket{le=\"%.0f\"} %d\n", bucket, cumulative)
	}
	fmt.Fprintf(&b, "restgraph_dispatch_duration_milliseconds_bucket{le=\"+Inf\"} %d\n", c.durationCount.Load())
	fmt.Fprintf(&b, "restgraph_dispatch_duration_milliseconds_sum %d\n", c.durationSum.Load())
	fmt.Fprintf(&b, "restgraph_dispatch_duration_milliseconds_count %d\n\n", c.durationCount.Load())

	b.WriteString("# HELP restgraph_uptime_seconds Uptime in seconds\n")
	b.WriteString("# TYPE restgraph_uptime_seconds counter\n")
	fmt.Fprintf(&b, "restgraph_uptime_seconds %.0f\n", time.Since(c.startTime).Seconds())

	return b.String()
}

func writeCounter(b *strings.Builder, name, help string, v int64) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s counter\n", name)
	fmt.Fprintf(b, "%s %d\n\n", name, v)
}

type count[K comparable] struct {
	key   K
	value int64
}

func sortedCounts[K comparable](mu *sync.RWMutex, m map[K]*atomic.Int64, less func(a, b K) bool) []count[K] {
	mu.RLock()
	out := make([]count[K], 0, len(m))
	for k, v := range m {
		out = append(out, count[K]{key: k, value: v.Load()})
	}
	mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return less(out[i].key, out[j].key) })
	return out
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	TotalRequests     int64            `json:"total_requests"`
	SuccessRequests   int64            `json:"success_requests"`
	FailedRequests    int64            `json:"failed_requests"`
	TransportErrors   int64            `json:"transport_errors"`
	AvgDurationMs     float64          `json:"avg_duration_ms"`
	OperationRequests map[string]int64 `json:"operation_requests"`
	StatusCodes       map[int]int64    `json:"status_codes"`
	UptimeSeconds     float64          `json:"uptime_seconds"`
}

func (c *Collector) Snapshot() *Snapshot {
	snap := &Snapshot{
		TotalRequests:     c.totalRequests.Load(),
		SuccessRequests:   c.successRequests.Load(),
		FailedRequests:    c.failedRequests.Load(),
		TransportErrors:   c.transportErrors.Load(),
		OperationRequests: make(map[string]int64),
		StatusCodes:       make(map[int]int64),
		UptimeSeconds:     time.Since(c.startTime).Seconds(),
	}
	if n := c.durationCount.Load(); n > 0 {
		snap.AvgDurationMs = float64(c.durationSum.Load()) / float64(n)
	}
	for _, kv := range sortedCounts(&c.operationMu, c.operationRequests, func(a, b string) bool { return a < b }) {
		snap.OperationRequests[kv.key] = kv.value
	}
	for _, kv := range sortedCounts(&c.statusMu, c.statusCodes, func(a, b int) bool { return a < b }) {
		snap.StatusCodes[kv.key] = kv.value
	}
	return snap
}
