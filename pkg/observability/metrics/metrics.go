package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	scanStatements atomic.Int64
	scanIgnored    atomic.Int64
	scanFailed     atomic.Int64
	flushSent      atomic.Int64
	flushFailed    atomic.Int64
	queuePending   atomic.Int64
	queueErrored   atomic.Int64
)

// ObserveScan records the outcome of a scan cycle.
func ObserveScan(statements, ignored, failed int) {
	scanStatements.Add(int64(statements))
	scanIgnored.Add(int64(ignored))
	scanFailed.Add(int64(failed))
}

// ObserveFlush records the outcome of a flush cycle.
func ObserveFlush(sent, failed int) {
	flushSent.Add(int64(sent))
	flushFailed.Add(int64(failed))
}

// ObserveQueueDepth records the current queue depth.
func ObserveQueueDepth(pending, errored int64) {
	queuePending.Store(pending)
	queueErrored.Store(errored)
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	writeMetric(w, "xapi_agent_scan_statements_total", "counter", "Statements modeled by scan cycles.", scanStatements.Load())
	writeMetric(w, "xapi_agent_scan_ignored_total", "counter", "Records ignored by scan cycles.", scanIgnored.Load())
	writeMetric(w, "xapi_agent_scan_failed_total", "counter", "Records that failed modeling.", scanFailed.Load())
	writeMetric(w, "xapi_agent_flush_sent_total", "counter", "Statements accepted by LRS targets.", flushSent.Load())
	writeMetric(w, "xapi_agent_flush_failed_total", "counter", "Statements in batches rejected by LRS targets.", flushFailed.Load())
	writeMetric(w, "xapi_agent_queue_pending", "gauge", "Queued statements awaiting delivery.", queuePending.Load())
	writeMetric(w, "xapi_agent_queue_errored", "gauge", "Queued statements in an error status.", queueErrored.Load())
}

func writeMetric(w http.ResponseWriter, name, kind, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n", name, help, name, kind, name, value)
}
