package recordstore

import (
	"errors"
	"testing"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := errRecordTooLong(200_000, ChunkSize, nil)
	if !errors.Is(err, &Error{Kind: KindRecordTooLong}) {
		t.Errorf("expected errors.Is to match by Kind alone")
	}
	if errors.Is(err, &Error{Kind: KindInvalidArgument}) {
		t.Errorf("expected errors.Is to reject a different Kind")
	}
}

func TestErrKindFallsBackForForeignErrors(t *testing.T) {
	if got := errKind(errors.New("boom")); got != "internal" {
		t.Errorf("errKind(foreign error) = %q, want %q", got, "internal")
	}
	if got := errKind(errRecordTooLong(1, 1, nil)); got != string(KindRecordTooLong) {
		t.Errorf("errKind(*Error) = %q, want %q", got, KindRecordTooLong)
	}
}

func TestFieldsForOmitsZeroIndex(t *testing.T) {
	f := fieldsFor([]byte("p"), 0, false)
	if _, ok := f["index"]; ok {
		t.Errorf("expected fieldsFor to omit a zero index")
	}
	f2 := fieldsFor([]byte("p"), 5, true)
	if f2["index"] != int64(5) {
		t.Errorf("expected fieldsFor to include a non-zero index")
	}
}
