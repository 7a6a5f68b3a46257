package compressors

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/loged/core"
	"github.com/golang/snappy"
	lz4 "github.com/pierrec/lz4/v4"
)

// maxBlockOutput caps the decoded size of one block. lz4 needs it because
// its block format does not record the uncompressed size.
const maxBlockOutput = 64 * 1024 * 1024

// blockCodec turns a one-shot encode/decode pair into a core.Compressor.
// encode appends to dst, which has at least bound(len(src)) spare capacity.
type blockCodec struct {
	kind   core.CompressionType
	bound  func(n int) int
	encode func(dst, src []byte) ([]byte, error)
	decode func(src []byte) ([]byte, error)
}

var _ core.Compressor = (*blockCodec)(nil)

// None stores blocks as they are.
func None() core.Compressor {
	return &blockCodec{
		kind:   core.CompressionNone,
		bound:  func(n int) int { return n },
		encode: func(dst, src []byte) ([]byte, error) { return append(dst, src...), nil },
		decode: func(src []byte) ([]byte, error) { return src, nil },
	}
}

// Snappy uses the snappy block format, not the framed stream format.
func Snappy() core.Compressor {
	return &blockCodec{
		kind:  core.CompressionSnappy,
		bound: snappy.MaxEncodedLen,
		encode: func(dst, src []byte) ([]byte, error) {
			return snappy.Encode(dst[:cap(dst)], src), nil
		},
		decode: func(src []byte) ([]byte, error) { return snappy.Decode(nil, src) },
	}
}

// LZ4 uses the lz4 block format. An empty input encodes to an empty block.
func LZ4() core.Compressor {
	return &blockCodec{
		kind:   core.CompressionLZ4,
		bound:  lz4.CompressBlockBound,
		encode: lz4Encode,
		decode: lz4Decode,
	}
}

func lz4Encode(dst, src []byte) ([]byte, error) {
	if len(src) == 0 {
		return dst, nil
	}
	n, err := lz4.CompressBlock(src, dst[:cap(dst)], nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errors.New("lz4 produced no output for a non-empty block")
	}
	return dst[:n], nil
}

func lz4Decode(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, nil
	}
	out := make([]byte, max(4*len(src), 4096))
	for {
		n, err := lz4.UncompressBlock(src, out)
		switch {
		case err == nil:
			return out[:n], nil
		case errors.Is(err, lz4.ErrInvalidSourceShortBuffer) && len(out) < maxBlockOutput:
			out = make([]byte, min(2*len(out), maxBlockOutput))
		default:
			return nil, err
		}
	}
}

func (c *blockCodec) Type() core.CompressionType { return c.kind }

func (c *blockCodec) Compress(data []byte) ([]byte, error) {
	out, err := c.encode(make([]byte, 0, c.bound(len(data))), data)
	if err != nil {
		return nil, fmt.Errorf("%s compress: %w", c.kind, err)
	}
	return out, nil
}

// CompressTo encodes straight into dst's spare capacity.
func (c *blockCodec) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	dst.Grow(c.bound(len(src)))
	out, err := c.encode(dst.AvailableBuffer(), src)
	if err != nil {
		return fmt.Errorf("%s compress: %w", c.kind, err)
	}
	dst.Write(out)
	return nil
}

func (c *blockCodec) Decompress(data []byte) (io.ReadCloser, error) {
	raw, err := c.decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", c.kind, err)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}
