// Package compressors implements core.Compressor for the algorithms an
// export stream can use.
package compressors

import (
	"fmt"

	"github.com/INLOpen/loged/core"
)

// New returns the compressor for ct.
func New(ct core.CompressionType) (core.Compressor, error) {
	switch ct {
	case core.CompressionNone:
		return None(), nil
	case core.CompressionSnappy:
		return Snappy(), nil
	case core.CompressionLZ4:
		return LZ4(), nil
	case core.CompressionZSTD:
		return Zstd(), nil
	}
	return nil, fmt.Errorf("unsupported compression type %d", ct)
}

// ForName returns the compressor for a config name such as "zstd".
func ForName(name string) (core.Compressor, error) {
	ct, err := core.ParseCompressionType(name)
	if err != nil {
		return nil, err
	}
	return New(ct)
}
