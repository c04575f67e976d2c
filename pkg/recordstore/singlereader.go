package recordstore

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/recordsplit/recordsplit/pkg/kvs"
	"github.com/recordsplit/recordsplit/pkg/record"
	"github.com/recordsplit/recordsplit/pkg/splitkey"
	"github.com/recordsplit/recordsplit/pkg/stats"
	"github.com/recordsplit/recordsplit/pkg/telemetry"
)

// SingleKeyReader reassembles exactly one logical record from a range
// scan restricted to the entries under one prefix.
type SingleKeyReader struct {
	opts ReaderOptions

	// Metrics receives operation counts and byte counts for every Read
	// and Exists call. A nil Metrics disables tracking.
	Metrics stats.Collector

	telemetry telemetry.Telemetry
}

// NewSingleKeyReader builds a SingleKeyReader configured for the given
// on-disk format generation.
func NewSingleKeyReader(opts ReaderOptions) *SingleKeyReader {
	return &SingleKeyReader{opts: opts}
}

// NewSingleKeyReaderWithMetrics builds a SingleKeyReader that reports to
// the given collector.
func NewSingleKeyReaderWithMetrics(opts ReaderOptions, metrics stats.Collector) *SingleKeyReader {
	return &SingleKeyReader{opts: opts, Metrics: metrics}
}

// WithReaderTelemetry attaches tel to r, after which Read and Exists each
// wrap their work in a span. This is ambient instrumentation: it never
// affects either method's return value.
func (r *SingleKeyReader) WithReaderTelemetry(tel telemetry.Telemetry) *SingleKeyReader {
	r.telemetry = tel
	return r
}

// Read reassembles the record stored under prefix, or returns (nil, nil)
// if no such record exists.
func (r *SingleKeyReader) Read(ctx context.Context, tx kvs.Transaction, prefix []byte) (*record.Record, error) {
	ctx, end := r.span(ctx, telemetry.OpTypeRead)
	var rec *record.Record
	var err error
	if r.opts.legacyDirectPath() {
		rec, err = r.readLegacy(ctx, tx, prefix)
	} else {
		rec, err = r.readGeneral(ctx, tx, prefix)
	}
	end(err)
	if r.Metrics != nil {
		if err != nil {
			r.Metrics.TrackError(errKind(err))
		} else {
			r.Metrics.TrackOperation(stats.OpRead)
			if rec != nil {
				r.Metrics.TrackBytes(false, uint64(rec.Sizes.TotalBytes()))
			}
		}
	}
	return rec, err
}

// Exists reports whether a record is stored under prefix, without fully
// reassembling it.
func (r *SingleKeyReader) Exists(ctx context.Context, tx kvs.Transaction, prefix []byte) (bool, error) {
	ctx, end := r.span(ctx, telemetry.OpTypeExists)
	ok, err := r.exists(ctx, tx, prefix)
	end(err)
	if r.Metrics != nil {
		if err != nil {
			r.Metrics.TrackError(errKind(err))
		} else {
			r.Metrics.TrackOperation(stats.OpExists)
		}
	}
	return ok, err
}

// span starts a telemetry span for op when r has telemetry attached,
// returning the (possibly unchanged) context and a func that ends the
// span and records a counter tagged with whether err was nil.
func (r *SingleKeyReader) span(ctx context.Context, op string) (context.Context, func(err error)) {
	if r.telemetry == nil {
		return ctx, func(error) {}
	}
	spanCtx, span := r.telemetry.StartSpan(ctx, op, attribute.String(telemetry.AttrComponent, telemetry.ComponentSingleKeyReader))
	return spanCtx, func(err error) {
		status := telemetry.StatusSuccess
		if err != nil {
			status = telemetry.StatusError
		}
		r.telemetry.RecordCounter(spanCtx, op, 1, attribute.String(telemetry.AttrStatus, status))
		span.End()
	}
}

func (r *SingleKeyReader) exists(ctx context.Context, tx kvs.Transaction, prefix []byte) (bool, error) {
	if r.opts.legacyDirectPath() {
		v, err := tx.Get(ctx, prefix)
		if err != nil {
			return false, err
		}
		return v != nil, nil
	}
	cur := tx.GetRange(ctx, prefix, rangeEnd(prefix), false, 1)
	_, ok, err := cur.Next(ctx)
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (r *SingleKeyReader) readLegacy(ctx context.Context, tx kvs.Transaction, prefix []byte) (*record.Record, error) {
	v, err := tx.Get(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	rec := &record.Record{Prefix: prefix, Value: v}
	rec.Sizes.Set(prefix, v)
	return rec, nil
}

func (r *SingleKeyReader) readGeneral(ctx context.Context, tx kvs.Transaction, prefix []byte) (*record.Record, error) {
	acc := newAccumulator(prefix, false, r.opts.oldVersionFormat())
	cur := tx.GetRange(ctx, prefix, rangeEnd(prefix), false, -1)
	for {
		entry, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		index, perr := splitkey.ParseIndex(prefix, entry.Key)
		if perr != nil {
			return nil, errSubkeyShapeViolation(fieldsFor(prefix, 0, false))
		}
		complete, aerr := acc.Append(entry.Key, index, entry.Value)
		if aerr != nil {
			return nil, aerr
		}
		if complete {
			break
		}
	}
	if err := acc.Finalize(); err != nil {
		return nil, err
	}
	injectLocalVersion(tx, prefix, acc)
	if err := acc.Finalize(); err != nil {
		return nil, err
	}
	if !acc.HasData() {
		return nil, nil
	}
	rec := &record.Record{
		Prefix:  prefix,
		Value:   acc.Payload(),
		Version: acc.Version(),
		Sizes:   acc.Sizes(),
	}
	return rec, nil
}

// RangeEnd computes the exclusive end bound for a range scan over every
// key beginning with prefix. Exported so callers outside this package
// (a server handler issuing its own GetRange to feed a StreamingReader,
// for instance) can compute the same bound this package uses internally.
func RangeEnd(prefix []byte) []byte {
	return rangeEnd(prefix)
}

// rangeEnd computes the exclusive end bound for a range scan over every
// key beginning with prefix: the smallest byte string strictly greater
// than any string beginning with prefix, found by incrementing the
// rightmost byte that is not already 0xff and truncating after it.
func rangeEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	// prefix is empty or all 0xff bytes: there is no finite strict upper
	// bound, so pad past the widest suffix this codec ever appends.
	return append(end, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
}
