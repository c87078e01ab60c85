package embedcache

import (
	"log/slog"

	"github.com/hupe1980/embedcache/internal/fs"
	"github.com/hupe1980/embedcache/reclog"
)

// DefaultCacheCapacity is the hot-cache entry bound used when no
// WithCacheCapacity option is given.
const DefaultCacheCapacity = 1024

type options struct {
	cacheCapacity      int
	memoryLimitBytes   int64
	ioLimitBytesPerSec int64
	compression        reclog.Compression
	metricsCollector   MetricsCollector
	logger             *Logger
	fsys               fs.FileSystem
}

// Option configures Open behavior.
type Option func(*options)

// WithCacheCapacity configures the maximum number of vectors held in the
// hot cache. The capacity is fixed for the lifetime of the store.
//
// If capacity <= 0, the default is used.
func WithCacheCapacity(capacity int) Option {
	return func(o *options) {
		if capacity > 0 {
			o.cacheCapacity = capacity
		}
	}
}

// WithCacheMemoryLimit bounds the hot cache by bytes in addition to the
// entry capacity. Vectors that would exceed the budget are served from
// disk instead of being cached. Zero disables the byte bound.
func WithCacheMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimitBytes = bytes
	}
}

// WithIOLimit throttles archive streaming to the given rate.
// Zero disables throttling. In-process reads and appends are never
// throttled; the limit exists so background archive uploads don't starve
// the caller's disk.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimitBytesPerSec = bytesPerSec
	}
}

// WithSnapshotCompression selects the compression scheme used for the
// index snapshot written on clean close. The default is no compression;
// reading supports all schemes regardless of this setting.
func WithSnapshotCompression(scheme reclog.Compression) Option {
	return func(o *options) {
		o.compression = scheme
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &embedcache.BasicMetricsCollector{}
//	store, _ := embedcache.Open(path, dim, embedcache.WithMetricsCollector(metrics))
//	// ... use store ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithFileSystem overrides the file system used for the record log.
// Intended for tests (fault injection); the default is the local disk.
func WithFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		if fsys != nil {
			o.fsys = fsys
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		cacheCapacity:    DefaultCacheCapacity,
		compression:      reclog.CompressionNone,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		fsys:             fs.Default,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
