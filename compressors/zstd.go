package compressors

import (
	"sync"

	"github.com/INLOpen/loged/core"
	"github.com/klauspost/compress/zstd"
)

// EncodeAll and DecodeAll are safe for concurrent use, so one encoder and
// one decoder serve every Zstd compressor in the process.
var (
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(maxBlockOutput))
	})
)

// Zstd writes each block as a single zstd frame.
func Zstd() core.Compressor {
	return &blockCodec{
		kind: core.CompressionZSTD,
		// Only a capacity hint; EncodeAll grows dst when it must.
		bound: func(n int) int { return n + n>>7 + 64 },
		encode: func(dst, src []byte) ([]byte, error) {
			enc, err := zstdEncoder()
			if err != nil {
				return nil, err
			}
			return enc.EncodeAll(src, dst), nil
		},
		decode: func(src []byte) ([]byte, error) {
			dec, err := zstdDecoder()
			if err != nil {
				return nil, err
			}
			return dec.DecodeAll(src, nil)
		},
	}
}
