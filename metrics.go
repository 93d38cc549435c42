package vecfetch

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    fetchBytes   prometheus.Counter
//	    readLatency  prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordFetch(bytes int64, duration time.Duration, err error) {
//	    p.fetchBytes.Add(float64(bytes))
//	}
type MetricsCollector interface {
	// RecordFetch is called after each transport range fetch.
	// bytes is the requested length, err is nil if successful.
	RecordFetch(bytes int64, duration time.Duration, err error)

	// RecordVerify is called once per downloaded leaf with the outcome of
	// its hash check.
	RecordVerify(ok bool)

	// RecordRead is called after each ReadAt. bytes is the number of bytes
	// copied to the caller.
	RecordRead(bytes int, duration time.Duration, err error)

	// RecordPrebuffer is called when a prebuffer request finishes.
	RecordPrebuffer(leaves int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordFetch(int64, time.Duration, error)   {}
func (NoopMetricsCollector) RecordVerify(bool)                         {}
func (NoopMetricsCollector) RecordRead(int, time.Duration, error)      {}
func (NoopMetricsCollector) RecordPrebuffer(int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	FetchCount        atomic.Int64
	FetchErrors       atomic.Int64
	FetchBytes        atomic.Int64
	FetchTotalNanos   atomic.Int64
	VerifiedLeaves    atomic.Int64
	RejectedLeaves    atomic.Int64
	ReadCount         atomic.Int64
	ReadErrors        atomic.Int64
	ReadBytes         atomic.Int64
	ReadTotalNanos    atomic.Int64
	PrebufferCount    atomic.Int64
	PrebufferErrors   atomic.Int64
	PrebufferedLeaves atomic.Int64
}

// RecordFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetch(bytes int64, duration time.Duration, err error) {
	b.FetchCount.Add(1)
	b.FetchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FetchErrors.Add(1)
		return
	}
	b.FetchBytes.Add(bytes)
}

// RecordVerify implements MetricsCollector.
func (b *BasicMetricsCollector) RecordVerify(ok bool) {
	if ok {
		b.VerifiedLeaves.Add(1)
	} else {
		b.RejectedLeaves.Add(1)
	}
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(bytes int, duration time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadTotalNanos.Add(duration.Nanoseconds())
	b.ReadBytes.Add(int64(bytes))
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordPrebuffer implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPrebuffer(leaves int, duration time.Duration, err error) {
	b.PrebufferCount.Add(1)
	b.PrebufferedLeaves.Add(int64(leaves))
	if err != nil {
		b.PrebufferErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		FetchCount:      b.FetchCount.Load(),
		FetchErrors:     b.FetchErrors.Load(),
		FetchBytes:      b.FetchBytes.Load(),
		FetchAvgNanos:   avg(b.FetchTotalNanos.Load(), b.FetchCount.Load()),
		VerifiedLeaves:  b.VerifiedLeaves.Load(),
		RejectedLeaves:  b.RejectedLeaves.Load(),
		ReadCount:       b.ReadCount.Load(),
		ReadErrors:      b.ReadErrors.Load(),
		ReadBytes:       b.ReadBytes.Load(),
		ReadAvgNanos:    avg(b.ReadTotalNanos.Load(), b.ReadCount.Load()),
		PrebufferCount:  b.PrebufferCount.Load(),
		PrebufferErrors: b.PrebufferErrors.Load(),
		PrebufferLeaves: b.PrebufferedLeaves.Load(),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	FetchCount      int64
	FetchErrors     int64
	FetchBytes      int64
	FetchAvgNanos   int64
	VerifiedLeaves  int64
	RejectedLeaves  int64
	ReadCount       int64
	ReadErrors      int64
	ReadBytes       int64
	ReadAvgNanos    int64
	PrebufferCount  int64
	PrebufferErrors int64
	PrebufferLeaves int64
}
