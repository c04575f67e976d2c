// Package stats provides a lightweight, allocation-light counter facility
// for the codec's own operation counts, latencies, and error counts —
// complementary to, and coarser-grained than, the OpenTelemetry-backed
// telemetry package, and meant for a caller that just wants an in-process
// snapshot map without standing up an exporter.
package stats

// Provider defines the interface for components that provide statistics.
type Provider interface {
	// GetStats returns all statistics.
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix.
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector defines methods for collecting statistics.
type Collector interface {
	Provider

	// TrackOperation records a single operation.
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency.
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackError increments the counter for the specified error kind.
	TrackError(kind string)

	// TrackBytes adds the specified number of bytes to the read or
	// write counter.
	TrackBytes(isWrite bool, bytes uint64)

	// TrackChunks adds n to the count of chunk entries written or read
	// as part of a split record.
	TrackChunks(n uint64)
}

// Ensure AtomicCollector implements the Collector interface.
var _ Collector = (*AtomicCollector)(nil)
