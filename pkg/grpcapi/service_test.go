package grpcapi

import (
	"context"
	"testing"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/recordsplit/recordsplit/pkg/memkv"
	"github.com/recordsplit/recordsplit/pkg/recordstore"
)

func TestServerSaveReadExistsDelete(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	srv := NewServer(store, recordstore.ReaderOptions{SplitLongRecords: true}, 100, 0, nil, nil)

	prefix := []byte("rec/1/")
	payload := []byte("hello grpc")
	saveReq := wrapperspb.Bytes(packFields(prefix, payload))
	saveResp, err := srv.Save(ctx, saveReq)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	fields, err := unpackFields(saveResp.GetValue(), 2)
	if err != nil {
		t.Fatalf("unpacking Save response: %v", err)
	}
	totalBytes, err := unpackInt64(fields[0])
	if err != nil {
		t.Fatalf("unpacking total bytes: %v", err)
	}
	if totalBytes <= 0 {
		t.Errorf("expected positive total bytes, got %d", totalBytes)
	}
	split, err := unpackBool(fields[1])
	if err != nil {
		t.Fatalf("unpacking split flag: %v", err)
	}
	if split {
		t.Errorf("expected a small payload to not be split")
	}

	existsResp, err := srv.Exists(ctx, wrapperspb.Bytes(prefix))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	ok, err := unpackBool(existsResp.GetValue())
	if err != nil || !ok {
		t.Fatalf("Exists = (%v, %v), want (true, nil)", ok, err)
	}

	readResp, err := srv.Read(ctx, wrapperspb.Bytes(prefix))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	readFields, err := unpackFields(readResp.GetValue(), 2)
	if err != nil {
		t.Fatalf("unpacking Read response: %v", err)
	}
	found, err := unpackBool(readFields[0])
	if err != nil || !found {
		t.Fatalf("Read found = (%v, %v), want (true, nil)", found, err)
	}
	if string(readFields[1]) != string(payload) {
		t.Fatalf("Read value = %q, want %q", readFields[1], payload)
	}

	deleteResp, err := srv.Delete(ctx, wrapperspb.Bytes(prefix))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	existed, err := unpackBool(deleteResp.GetValue())
	if err != nil || !existed {
		t.Fatalf("Delete existed = (%v, %v), want (true, nil)", existed, err)
	}

	existsResp2, err := srv.Exists(ctx, wrapperspb.Bytes(prefix))
	if err != nil {
		t.Fatalf("Exists after delete: %v", err)
	}
	ok2, _ := unpackBool(existsResp2.GetValue())
	if ok2 {
		t.Fatalf("expected record gone after delete")
	}
}

func TestServerReadMissing(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	srv := NewServer(store, recordstore.ReaderOptions{SplitLongRecords: true}, 100, 0, nil, nil)

	resp, err := srv.Read(ctx, wrapperspb.Bytes([]byte("rec/missing/")))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	fields, err := unpackFields(resp.GetValue(), 2)
	if err != nil {
		t.Fatalf("unpacking Read response: %v", err)
	}
	found, err := unpackBool(fields[0])
	if err != nil || found {
		t.Fatalf("Read found = (%v, %v), want (false, nil)", found, err)
	}
}
