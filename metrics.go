package embedcache

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordInsert is called after each insert operation.
	// duration is the total time taken, err is nil if successful.
	RecordInsert(duration time.Duration, err error)

	// RecordGet is called after each get operation.
	// cacheHit reports whether the hot cache served the vector.
	RecordGet(duration time.Duration, cacheHit bool, err error)

	// RecordFindSimilar is called after each similarity search.
	// scanned is the number of live vectors compared.
	RecordFindSimilar(scanned int, duration time.Duration, err error)

	// RecordRecovery is called after an index rebuild from the log.
	RecordRecovery(recordsReplayed int, duration time.Duration)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordInsert(time.Duration, error)           {}
func (NoopMetricsCollector) RecordGet(time.Duration, bool, error)        {}
func (NoopMetricsCollector) RecordFindSimilar(int, time.Duration, error) {}
func (NoopMetricsCollector) RecordRecovery(int, time.Duration)           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	InsertCount      atomic.Int64
	InsertErrors     atomic.Int64
	InsertTotalNanos atomic.Int64
	GetCount         atomic.Int64
	GetErrors        atomic.Int64
	GetCacheHits     atomic.Int64
	GetTotalNanos    atomic.Int64
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchScanned    atomic.Int64
	SearchTotalNanos atomic.Int64
	RecoveryCount    atomic.Int64
	RecoveryRecords  atomic.Int64
}

// RecordInsert implements MetricsCollector.
func (b *BasicMetricsCollector) RecordInsert(duration time.Duration, err error) {
	b.InsertCount.Add(1)
	b.InsertTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.InsertErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, cacheHit bool, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if cacheHit {
		b.GetCacheHits.Add(1)
	}
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordFindSimilar implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFindSimilar(scanned int, duration time.Duration, err error) {
	b.SearchCount.Add(1)
	b.SearchScanned.Add(int64(scanned))
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordRecovery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRecovery(recordsReplayed int, _ time.Duration) {
	b.RecoveryCount.Add(1)
	b.RecoveryRecords.Add(int64(recordsReplayed))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		InsertCount:     b.InsertCount.Load(),
		InsertErrors:    b.InsertErrors.Load(),
		InsertAvgNanos:  avgNanos(b.InsertTotalNanos.Load(), b.InsertCount.Load()),
		GetCount:        b.GetCount.Load(),
		GetErrors:       b.GetErrors.Load(),
		GetCacheHits:    b.GetCacheHits.Load(),
		GetAvgNanos:     avgNanos(b.GetTotalNanos.Load(), b.GetCount.Load()),
		SearchCount:     b.SearchCount.Load(),
		SearchErrors:    b.SearchErrors.Load(),
		SearchScanned:   b.SearchScanned.Load(),
		SearchAvgNanos:  avgNanos(b.SearchTotalNanos.Load(), b.SearchCount.Load()),
		RecoveryCount:   b.RecoveryCount.Load(),
		RecoveryRecords: b.RecoveryRecords.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	InsertCount     int64
	InsertErrors    int64
	InsertAvgNanos  int64
	GetCount        int64
	GetErrors       int64
	GetCacheHits    int64
	GetAvgNanos     int64
	SearchCount     int64
	SearchErrors    int64
	SearchScanned   int64
	SearchAvgNanos  int64
	RecoveryCount   int64
	RecoveryRecords int64
}
