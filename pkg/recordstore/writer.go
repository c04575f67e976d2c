package recordstore

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/recordsplit/recordsplit/pkg/kvs"
	"github.com/recordsplit/recordsplit/pkg/record"
	"github.com/recordsplit/recordsplit/pkg/sizes"
	"github.com/recordsplit/recordsplit/pkg/splitkey"
	"github.com/recordsplit/recordsplit/pkg/stats"
	"github.com/recordsplit/recordsplit/pkg/telemetry"
	"github.com/recordsplit/recordsplit/pkg/version"
)

// ChunkSize is the fixed threshold at which a payload is split across
// multiple entries instead of occupying a single one.
const ChunkSize = 100_000

// VersionArg describes the optional version stamp passed to Writer.Save:
// either absent, a fully resolved stamp, or a local ordinal the store
// will resolve into a stamp at commit time.
type VersionArg struct {
	present  bool
	complete bool
	stamp    version.Stamp
	local    uint16
}

// NoVersion is the zero VersionArg: the record carries no version.
var NoVersion = VersionArg{}

// CompleteVersion wraps an already-resolved stamp.
func CompleteVersion(stamp version.Stamp) VersionArg {
	return VersionArg{present: true, complete: true, stamp: stamp}
}

// IncompleteVersion wraps a local ordinal to be resolved by the store at
// commit time via a versionstamped-value mutation.
func IncompleteVersion(local uint16) VersionArg {
	return VersionArg{present: true, complete: false, local: local}
}

// Writer saves and deletes logical records.
type Writer struct {
	// Metrics receives operation counts, byte counts, and chunk counts
	// for every Save and Delete. A nil Metrics disables tracking.
	Metrics stats.Collector

	telemetry telemetry.Telemetry
}

// NewWriter builds a Writer. Writer holds no state of its own besides an
// optional metrics sink; every operation takes the transaction it runs
// against explicitly.
func NewWriter() *Writer {
	return &Writer{}
}

// NewWriterWithMetrics builds a Writer that reports to the given
// collector.
func NewWriterWithMetrics(metrics stats.Collector) *Writer {
	return &Writer{Metrics: metrics}
}

// WriterOption configures optional ambient behavior on a Writer.
type WriterOption func(*Writer)

// WithTelemetry attaches a telemetry.Telemetry that Save and Delete
// record spans and counters against. This is ambient instrumentation:
// it never affects either method's return value.
func WithTelemetry(tel telemetry.Telemetry) WriterOption {
	return func(w *Writer) { w.telemetry = tel }
}

// NewWriterWithOptions builds a Writer applying every opt in order, e.g.
// NewWriterWithOptions(WithTelemetry(tel)).
func NewWriterWithOptions(opts ...WriterOption) *Writer {
	w := &Writer{}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// span starts a telemetry span for op when w has telemetry attached,
// returning the (possibly unchanged) context and a func that ends it and
// records a counter tagged with whether err was nil.
func (w *Writer) span(ctx context.Context, op string) (context.Context, func(err error)) {
	if w.telemetry == nil {
		return ctx, func(error) {}
	}
	spanCtx, span := w.telemetry.StartSpan(ctx, op, attribute.String(telemetry.AttrComponent, telemetry.ComponentWriter))
	return spanCtx, func(err error) {
		status := telemetry.StatusSuccess
		if err != nil {
			status = telemetry.StatusError
		}
		w.telemetry.RecordCounter(spanCtx, op, 1, attribute.String(telemetry.AttrStatus, status))
		span.End()
	}
}

// Save writes payload (and, if present, a version) under prefix,
// following opts. It returns counters describing exactly what was
// written.
func (w *Writer) Save(ctx context.Context, tx kvs.Transaction, prefix, payload []byte, ver VersionArg, opts SaveOptions) (result record.SaveResult, err error) {
	ctx, end := w.span(ctx, telemetry.OpTypeSave)
	defer func() { end(err) }()

	if opts.OmitUnsplitSuffix && (opts.SplitLongRecords || ver.present) {
		if w.Metrics != nil {
			w.Metrics.TrackError(string(KindInvalidArgument))
		}
		return record.SaveResult{}, errInvalidArgument("legacy format cannot be split or carry a version", map[string]any{"prefix": prefix})
	}

	oversize := len(payload) > ChunkSize
	if oversize && !opts.SplitLongRecords {
		if w.Metrics != nil {
			w.Metrics.TrackError(string(KindRecordTooLong))
		}
		return record.SaveResult{}, errRecordTooLong(len(payload), ChunkSize, map[string]any{"prefix": prefix})
	}

	var out sizes.Info
	if oversize {
		clearPrevious(ctx, tx, prefix, opts)
		w.saveChunks(ctx, tx, prefix, payload, &out)
	} else {
		if opts.SplitLongRecords || opts.PreviousSizes == nil || opts.PreviousSizes.VersionedInline {
			clearPrevious(ctx, tx, prefix, opts)
		}
		key := splitkey.PackKey(prefix, splitkey.UnsplitIndex)
		if opts.OmitUnsplitSuffix {
			key = prefix
		}
		tx.Set(ctx, key, payload)
		out.Set(key, payload)
		out.Split = false
	}

	w.saveVersion(ctx, tx, prefix, ver, &out)

	if opts.SizeInfo != nil {
		*opts.SizeInfo = out
	}
	if w.Metrics != nil {
		w.Metrics.TrackOperation(stats.OpSave)
		w.Metrics.TrackBytes(true, uint64(out.TotalBytes()))
		if out.Split {
			w.Metrics.TrackChunks(uint64(out.KeyCount))
		}
	}
	return record.SaveResult{Sizes: out}, nil
}

func (w *Writer) saveChunks(ctx context.Context, tx kvs.Transaction, prefix, payload []byte, out *sizes.Info) {
	index := splitkey.StartSplitIndex
	for offset := 0; offset < len(payload); offset += ChunkSize {
		end := offset + ChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[offset:end]
		key := splitkey.PackKey(prefix, index)
		tx.Set(ctx, key, chunk)
		if offset == 0 {
			out.Set(key, chunk)
			out.Split = true
		} else {
			out.Add(key, chunk)
		}
		index++
	}
}

func (w *Writer) saveVersion(ctx context.Context, tx kvs.Transaction, prefix []byte, ver VersionArg, out *sizes.Info) {
	if !ver.present {
		out.VersionedInline = false
		return
	}
	versionKey := splitkey.PackKey(prefix, splitkey.VersionIndex)
	if ver.complete {
		value := splitkey.PackVersionValue(ver.stamp)
		tx.Set(ctx, versionKey, value)
		out.Add(versionKey, value)
	} else {
		placeholder := version.NewPlaceholder(ver.local)
		value := splitkey.PackVersionPlaceholder(placeholder)
		tx.AddVersionstampedValue(ctx, versionKey, value)
		tx.AddToLocalVersionCache(prefix, ver.local)
		durable := value[:len(value)-4]
		out.Add(versionKey, durable)
	}
	out.VersionedInline = true
}

// clearPrevious implements the minimal-overwrite rule: clear the whole
// prefix range unless ClearBasedOnPreviousSizeInfo is set; otherwise clear
// nothing when there are no previous sizes and only as much of the
// previous record's layout as necessary when there are. It always drops
// any pending incomplete-version mutation registered for this prefix,
// since it is about to be superseded.
func clearPrevious(ctx context.Context, tx kvs.Transaction, prefix []byte, opts SaveOptions) {
	defer tx.RemoveVersionMutation(splitkey.PackKey(prefix, splitkey.VersionIndex))

	ps := opts.PreviousSizes
	switch {
	case !opts.ClearBasedOnPreviousSizeInfo:
		tx.ClearRange(ctx, prefix, rangeEnd(prefix))
	case ps == nil:
		return
	case ps.Split || ps.VersionedInline:
		tx.ClearRange(ctx, prefix, rangeEnd(prefix))
	default:
		tx.Clear(ctx, splitkey.PackKey(prefix, splitkey.UnsplitIndex))
	}
}

// Delete removes whatever record is stored under prefix.
func (w *Writer) Delete(ctx context.Context, tx kvs.Transaction, prefix []byte, opts DeleteOptions) (result record.DeleteResult, err error) {
	ctx, end := w.span(ctx, telemetry.OpTypeDelete)
	defer func() { end(err) }()

	if !opts.SplitLongRecords && opts.MissingUnsplitRecordSuffix {
		v, err := tx.Get(ctx, prefix)
		if err != nil {
			return record.DeleteResult{}, err
		}
		tx.Clear(ctx, prefix)
		var s sizes.Info
		existed := v != nil
		if existed {
			s.Set(prefix, v)
		}
		if opts.SizeInfo != nil {
			*opts.SizeInfo = s
		}
		if w.Metrics != nil {
			w.Metrics.TrackOperation(stats.OpDelete)
		}
		return record.DeleteResult{Sizes: s, Existed: existed}, nil
	}

	saveOpts := SaveOptions{
		SplitLongRecords:             opts.SplitLongRecords,
		ClearBasedOnPreviousSizeInfo: opts.ClearBasedOnPreviousSizeInfo,
		PreviousSizes:                opts.PreviousSizes,
	}
	var s sizes.Info
	cur := tx.GetRange(ctx, prefix, rangeEnd(prefix), false, 0)
	for {
		e, ok, err := cur.Next(ctx)
		if err != nil {
			return record.DeleteResult{}, err
		}
		if !ok {
			break
		}
		if s.KeyCount == 0 {
			s.Set(e.Key, e.Value)
		} else {
			s.Add(e.Key, e.Value)
		}
	}
	clearPrevious(ctx, tx, prefix, saveOpts)
	if opts.SizeInfo != nil {
		*opts.SizeInfo = s
	}
	if w.Metrics != nil {
		w.Metrics.TrackOperation(stats.OpDelete)
	}
	return record.DeleteResult{Sizes: s, Existed: s.KeyCount > 0}, nil
}
