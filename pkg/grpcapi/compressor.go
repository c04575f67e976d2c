package grpcapi

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/grpc/encoding"
)

// zstdName is the compressor name negotiated over the wire, passed as
// grpc.UseCompressor(zstdName) by a client that wants it.
const zstdName = "zstd"

// zstdCompressor implements google.golang.org/grpc/encoding.Compressor on
// top of klauspost/compress/zstd, the same codec this module's teacher
// uses for its own wire compression, adapted from a CompressionManager
// wrapping a single shared encoder/decoder pair into grpc's narrower
// Compress(io.Writer)/Decompress(io.Reader) shape.
type zstdCompressor struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
}

func newZstdCompressor() *zstdCompressor {
	c := &zstdCompressor{}
	c.encoderPool.New = func() any {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return err
		}
		return enc
	}
	c.decoderPool.New = func() any {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return err
		}
		return dec
	}
	return c
}

func (c *zstdCompressor) Name() string {
	return zstdName
}

func (c *zstdCompressor) Compress(w io.Writer) (io.WriteCloser, error) {
	pooled := c.encoderPool.Get()
	enc, ok := pooled.(*zstd.Encoder)
	if !ok {
		return nil, pooled.(error)
	}
	enc.Reset(w)
	return &pooledEncoder{Encoder: enc, pool: &c.encoderPool}, nil
}

func (c *zstdCompressor) Decompress(r io.Reader) (io.Reader, error) {
	pooled := c.decoderPool.Get()
	dec, ok := pooled.(*zstd.Decoder)
	if !ok {
		return nil, pooled.(error)
	}
	if err := dec.Reset(r); err != nil {
		return nil, err
	}
	return &pooledDecoder{Decoder: dec, pool: &c.decoderPool}, nil
}

// pooledEncoder flushes and closes the underlying *zstd.Encoder as grpc
// requires, then returns it to the pool rather than discarding it: a
// later Reset(w) reinitializes a closed encoder for a new stream without
// starting its internal goroutines over again.
type pooledEncoder struct {
	*zstd.Encoder
	pool *sync.Pool
}

func (p *pooledEncoder) Close() error {
	err := p.Encoder.Close()
	p.pool.Put(p.Encoder)
	return err
}

type pooledDecoder struct {
	*zstd.Decoder
	pool *sync.Pool
}

func (p *pooledDecoder) Read(b []byte) (int, error) {
	return p.Decoder.Read(b)
}

// RegisterCompressor installs the zstd compressor with grpc's global
// encoding registry, so any server or client in this process that opts
// into "zstd" picks it up.
func RegisterCompressor() {
	encoding.RegisterCompressor(newZstdCompressor())
}
