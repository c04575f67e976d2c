package recordstore

import (
	"bytes"
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/recordsplit/recordsplit/pkg/budget"
	"github.com/recordsplit/recordsplit/pkg/common/log"
	"github.com/recordsplit/recordsplit/pkg/kvs"
	"github.com/recordsplit/recordsplit/pkg/record"
	"github.com/recordsplit/recordsplit/pkg/splitkey"
	"github.com/recordsplit/recordsplit/pkg/stats"
	"github.com/recordsplit/recordsplit/pkg/telemetry"
	"github.com/recordsplit/recordsplit/pkg/tuple"
)

// StreamingReader reassembles a lazy sequence of LogicalRecords from an
// inner cursor, grouping adjacent entries that share a record prefix and
// enforcing a scan budget strictly at record boundaries: a record already
// in progress is always completed in full before the budget is consulted
// again.
type StreamingReader struct {
	tx      kvs.Transaction
	inner   kvs.EntryCursor
	opts    ReaderOptions
	reverse bool
	budget  *budget.Manager

	pending           *kvs.Entry
	pendingContinuation []byte

	recordContinuation []byte
	noNextReason        budget.Reason
	done                 bool
	canAccessContinuation bool

	// Metrics receives operation counts, byte counts, and error counts
	// for every Next call. A nil Metrics disables tracking.
	Metrics stats.Collector

	telemetry telemetry.Telemetry
}

// WithStreamTelemetry attaches tel to s, after which every Next call that
// completes a record wraps it in a span. This is ambient instrumentation:
// it never affects Next's return value.
func (s *StreamingReader) WithStreamTelemetry(tel telemetry.Telemetry) *StreamingReader {
	s.telemetry = tel
	return s
}

// NewStreamingReader builds a StreamingReader pulling from inner. budget
// is owned exclusively by this reader for the lifetime of the scan.
func NewStreamingReader(tx kvs.Transaction, inner kvs.EntryCursor, opts ReaderOptions, reverse bool, bm *budget.Manager) *StreamingReader {
	return &StreamingReader{tx: tx, inner: inner, opts: opts, reverse: reverse, budget: bm}
}

// NewStreamingReaderWithMetrics builds a StreamingReader that reports to
// the given collector.
func NewStreamingReaderWithMetrics(tx kvs.Transaction, inner kvs.EntryCursor, opts ReaderOptions, reverse bool, bm *budget.Manager, metrics stats.Collector) *StreamingReader {
	return &StreamingReader{tx: tx, inner: inner, opts: opts, reverse: reverse, budget: bm, Metrics: metrics}
}

// Next returns the next logical record, or (nil, nil) once the stream has
// no more records to give — either because the inner cursor is
// exhausted or because the budget stopped between records.
func (s *StreamingReader) Next(ctx context.Context) (*record.Record, error) {
	s.canAccessContinuation = false
	if s.done {
		s.canAccessContinuation = true
		return nil, nil
	}

	if s.budget.IsStopped() {
		s.done = true
		s.noNextReason = s.budget.StoppedReason()
		log.Warn("scan stopped mid-budget: reason=%v", s.noNextReason)
		s.canAccessContinuation = true
		return nil, nil
	}

	_, end := s.span(ctx, telemetry.OpTypeStreamNext)
	rec, err := s.accumulateOneRecord(ctx)
	end(err)
	if err != nil {
		if s.Metrics != nil {
			s.Metrics.TrackError(errKind(err))
		}
		return nil, err
	}
	if rec == nil {
		s.done = true
	} else if s.Metrics != nil {
		s.Metrics.TrackOperation(stats.OpStreamNext)
		s.Metrics.TrackBytes(false, uint64(rec.Sizes.TotalBytes()))
	}
	s.canAccessContinuation = true
	return rec, nil
}

// span starts a telemetry span for op when s has telemetry attached,
// returning the (possibly unchanged) context and a func that ends the
// span and records a counter tagged with whether err was nil.
func (s *StreamingReader) span(ctx context.Context, op string) (context.Context, func(err error)) {
	if s.telemetry == nil {
		return ctx, func(error) {}
	}
	spanCtx, span := s.telemetry.StartSpan(ctx, op, attribute.String(telemetry.AttrComponent, telemetry.ComponentStreamingReader))
	return spanCtx, func(err error) {
		status := telemetry.StatusSuccess
		if err != nil {
			status = telemetry.StatusError
		}
		s.telemetry.RecordCounter(spanCtx, op, 1, attribute.String(telemetry.AttrStatus, status))
		span.End()
	}
}

// Continuation returns the token that resumes this scan immediately
// after the last entry consumed by the most recent Next call. It may
// only be called immediately after Next returns.
func (s *StreamingReader) Continuation() ([]byte, error) {
	if !s.canAccessContinuation {
		return nil, errIllegalContinuationAccess()
	}
	return s.recordContinuation, nil
}

// NoNextReason reports why the stream stopped, valid under the same
// access window as Continuation.
func (s *StreamingReader) NoNextReason() (budget.Reason, error) {
	if !s.canAccessContinuation {
		return budget.ReasonNone, errIllegalContinuationAccess()
	}
	return s.noNextReason, nil
}

func (s *StreamingReader) accumulateOneRecord(ctx context.Context) (*record.Record, error) {
	var acc *accumulator

	if s.pending != nil {
		p := s.pending
		s.pending = nil
		prefix := recordPrefix(p.Key)
		acc = newAccumulator(prefix, s.reverse, s.opts.oldVersionFormat())
		index, err := splitkey.ParseIndex(prefix, p.Key)
		if err != nil {
			return nil, errSubkeyShapeViolation(fieldsFor(prefix, 0, s.reverse))
		}
		s.recordContinuation = s.pendingContinuation
		complete, aerr := acc.Append(p.Key, index, p.Value)
		if aerr != nil {
			return nil, aerr
		}
		s.budget.TryRecord(int64(len(p.Key) + len(p.Value)))
		if complete {
			return s.finishRecord(acc)
		}
	}

	for {
		entry, ok, err := s.inner.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			if acc == nil {
				s.noNextReason = budget.ReasonExhausted
				return nil, nil
			}
			if s.reverse && !acc.ReachedSplitStart() {
				return nil, errFoundSplitWithoutStart(acc.lastIndex, true, fieldsFor(acc.prefix, acc.lastIndex, true))
			}
			return s.finishRecord(acc)
		}

		innerCont := s.inner.Continuation()
		prefix := recordPrefix(entry.Key)

		if acc == nil {
			acc = newAccumulator(prefix, s.reverse, s.opts.oldVersionFormat())
		} else if !bytes.Equal(prefix, acc.prefix) {
			if s.reverse && !acc.ReachedSplitStart() {
				return nil, errFoundSplitWithoutStart(acc.lastIndex, true, fieldsFor(acc.prefix, acc.lastIndex, true))
			}
			s.pending = &kvs.Entry{Key: entry.Key, Value: entry.Value}
			s.pendingContinuation = innerCont
			return s.finishRecord(acc)
		}

		index, perr := splitkey.ParseIndex(prefix, entry.Key)
		if perr != nil {
			return nil, errSubkeyShapeViolation(fieldsFor(prefix, 0, s.reverse))
		}
		complete, aerr := acc.Append(entry.Key, index, entry.Value)
		if aerr != nil {
			return nil, aerr
		}
		s.recordContinuation = innerCont
		s.budget.TryRecord(int64(len(entry.Key) + len(entry.Value)))
		if complete {
			return s.finishRecord(acc)
		}
	}
}

func (s *StreamingReader) finishRecord(acc *accumulator) (*record.Record, error) {
	if err := acc.Finalize(); err != nil {
		return nil, err
	}
	injectLocalVersion(s.tx, acc.prefix, acc)
	if err := acc.Finalize(); err != nil {
		return nil, err
	}
	return &record.Record{
		Prefix:  append([]byte{}, acc.prefix...),
		Value:   acc.Payload(),
		Version: acc.Version(),
		Sizes:   acc.Sizes(),
	}, nil
}

// recordPrefix recovers the record prefix from a full physical key by
// dropping its fixed-width int64 suffix. This only works because this
// codec's suffix encoding (package tuple) is fixed-width; a general tuple
// layer would need to parse the suffix from the front to know its width.
func recordPrefix(key []byte) []byte {
	if len(key) < tuple.Int64Width {
		return key
	}
	return key[:len(key)-tuple.Int64Width]
}
