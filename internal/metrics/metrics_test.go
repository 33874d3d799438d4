package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"restgraph/internal/runtime"
)

func TestCollectorSnapshot(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()
	c.Observe(ctx, runtime.Event{Operation: "getUser", StatusCode: 200, Duration: 20 * time.Millisecond})
	c.Observe(ctx, runtime.Event{Operation: "getUser", StatusCode: 404, Duration: 40 * time.Millisecond})
	c.Observe(ctx, runtime.Event{Operation: "createUser", Err: errors.New("connection refused")})

	snap := c.Snapshot()
	if snap.TotalRequests != 3 || snap.SuccessRequests != 1 || snap.FailedRequests != 2 {
		t.Fatalf("unexpected counts: %+v", snap)
	}
	if snap.TransportErrors != 1 {
		t.Fatalf("expected 1 transport error, got %d", snap.TransportErrors)
	}
	if snap.OperationRequests["getUser"] != 2 || snap.OperationRequests["createUser"] != 1 {
		t.Fatalf("unexpected per-operation counts: %v", snap.OperationRequests)
	}
	if snap.StatusCodes[200] != 1 || snap.StatusCodes[404] != 1 || len(snap.StatusCodes) != 2 {
		t.Fatalf("unexpected status counts: %v", snap.StatusCodes)
	}
	if snap.AvgDurationMs != 20 {
		t.Fatalf("expected avg 20ms, got %v", snap.AvgDurationMs)
	}
}

func TestPrometheusFormat(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()
	c.Observe(ctx, runtime.Event{Operation: "getUser", StatusCode: 200, Duration: 5 * time.Millisecond})
	c.Observe(ctx, runtime.Event{Operation: "getUser", StatusCode: 200, Duration: 30 * time.Millisecond})
	c.Observe(ctx, runtime.Event{Operation: "listUsers", StatusCode: 500, Duration: 20 * time.Second})

	out := c.PrometheusFormat()
	for _, want := range []string{
		"restgraph_dispatch_total 3\n",
		"restgraph_dispatch_success_total 2\n",
		"restgraph_dispatch_failed_total 1\n",
		`restgraph_dispatch_by_operation_total{operation="getUser"} 2`,
		`restgraph_dispatch_by_status_total{code="500"} 1`,
		`restgraph_dispatch_duration_milliseconds_bucket{le="10"} 1`,
		`restgraph_dispatch_duration_milliseconds_bucket{le="50"} 2`,
		`restgraph_dispatch_duration_milliseconds_bucket{le="10000"} 2`,
		`restgraph_dispatch_duration_milliseconds_bucket{le="+Inf"} 3`,
		"restgraph_dispatch_duration_milliseconds_count 3\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Index(out, `operation="getUser"`) > strings.Index(out, `operation="listUsers"`) {
		t.Error("operation series not sorted")
	}
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Observe(context.Background(), runtime.Event{Operation: "op", StatusCode: 200})
			}
		}()
	}
	wg.Wait()
	if got := c.Snapshot().OperationRequests["op"]; got != 1600 {
		t.Fatalf("expected 1600, got %d", got)
	}
}
