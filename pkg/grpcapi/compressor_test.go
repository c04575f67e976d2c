package grpcapi

import (
	"bytes"
	"io"
	"testing"
)

func TestZstdCompressorRoundTrip(t *testing.T) {
	c := newZstdCompressor()
	if c.Name() != "zstd" {
		t.Fatalf("Name() = %q, want %q", c.Name(), "zstd")
	}

	var buf bytes.Buffer
	wc, err := c.Compress(&buf)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	payload := []byte("the quick brown fox jumps over the lazy dog, repeated. " +
		"the quick brown fox jumps over the lazy dog, repeated.")
	if _, err := wc.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := wc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := c.Decompress(&buf)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(payload))
	}
}

func TestZstdCompressorReusesPooledEncoder(t *testing.T) {
	c := newZstdCompressor()
	payload := []byte("reused encoder payload")

	for i := 0; i < 3; i++ {
		var buf bytes.Buffer
		wc, err := c.Compress(&buf)
		if err != nil {
			t.Fatalf("Compress (iteration %d): %v", i, err)
		}
		if _, err := wc.Write(payload); err != nil {
			t.Fatalf("Write (iteration %d): %v", i, err)
		}
		if err := wc.Close(); err != nil {
			t.Fatalf("Close (iteration %d): %v", i, err)
		}

		r, err := c.Decompress(&buf)
		if err != nil {
			t.Fatalf("Decompress (iteration %d): %v", i, err)
		}
		got, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("ReadAll (iteration %d): %v", i, err)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("iteration %d: round trip mismatch", i)
		}
	}
}
