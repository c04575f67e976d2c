package recordstore

import (
	"fmt"

	"github.com/recordsplit/recordsplit/pkg/common/log"
)

// Kind identifies the meaning of an Error, independent of its message
// text, so callers can branch on failure category without string
// matching.
type Kind string

const (
	KindInvalidArgument           Kind = "invalid_argument"
	KindRecordTooLong             Kind = "record_too_long"
	KindSplitSegmentsOutOfOrder   Kind = "split_segments_out_of_order"
	KindFoundSplitWithoutStart    Kind = "found_split_without_start"
	KindMoreThanOneUnsplitValue   Kind = "more_than_one_unsplit_value"
	KindUnsplitFollowedBySplit    Kind = "unsplit_followed_by_split"
	KindSubkeyShapeViolation      Kind = "subkey_shape_violation"
	KindOldVersionFormatViolation Kind = "old_version_format_violation"
	KindIllegalContinuationAccess Kind = "illegal_continuation_access"
)

// Error is the one error type this package returns. Every failure carries
// a Kind for programmatic branching and a Fields payload for structured
// logging instead of a hierarchy of exception subclasses.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

// Is allows errors.Is(err, &Error{Kind: KindX}) to match by Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// newError builds an Error and logs it at Error level before handing it
// back to the caller, which returns it immediately: every structured
// Error this package produces is logged exactly once, here, rather than
// at each of its many call sites.
func newError(kind Kind, fields map[string]any, format string, args ...any) *Error {
	e := &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Fields:  fields,
	}
	log.Error("%s: %v", e.Message, fields)
	return e
}

func errInvalidArgument(reason string, fields map[string]any) *Error {
	return newError(KindInvalidArgument, fields, "invalid argument: %s", reason)
}

func errRecordTooLong(length, chunk int, fields map[string]any) *Error {
	return newError(KindRecordTooLong, fields, "record too long: %d bytes exceeds chunk size %d and splitting is disabled", length, chunk)
}

// errSplitSegmentsOutOfOrder takes the already-computed expected index so
// that the message never reproduces the source's string-concatenation
// off-by-one; callers must compute expected as an integer before calling.
func errSplitSegmentsOutOfOrder(expected, found int64, fields map[string]any) *Error {
	return newError(KindSplitSegmentsOutOfOrder, fields, "split segments out of order: expected suffix %d, found %d", expected, found)
}

func errFoundSplitWithoutStart(index int64, reverse bool, fields map[string]any) *Error {
	return newError(KindFoundSplitWithoutStart, fields, "split record without start: index %d (reverse=%v)", index, reverse)
}

func errMoreThanOneUnsplitValue(fields map[string]any) *Error {
	return newError(KindMoreThanOneUnsplitValue, fields, "more than one unsplit value for record")
}

func errUnsplitFollowedBySplit(fields map[string]any) *Error {
	return newError(KindUnsplitFollowedBySplit, fields, "unsplit entry followed by split entry for record")
}

func errSubkeyShapeViolation(fields map[string]any) *Error {
	return newError(KindSubkeyShapeViolation, fields, "key suffix is not a single tuple integer element")
}

func errOldVersionFormatViolation(fields map[string]any) *Error {
	return newError(KindOldVersionFormatViolation, fields, "version entry observed under legacy (no-version) format")
}

func errIllegalContinuationAccess() *Error {
	return newError(KindIllegalContinuationAccess, nil, "continuation requested outside the permitted window")
}

// errKind extracts the Kind from err for metrics labeling, falling back
// to a generic label for errors this package did not originate (e.g. a
// context cancellation bubbled up from the underlying transaction).
func errKind(err error) string {
	if e, ok := err.(*Error); ok {
		return string(e.Kind)
	}
	return "internal"
}

func fieldsFor(prefix []byte, index int64, reverse bool) map[string]any {
	f := map[string]any{
		"prefix":  prefix,
		"reverse": reverse,
	}
	if index != 0 {
		f["index"] = index
	}
	return f
}
