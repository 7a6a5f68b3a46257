package core

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// CompressionType is the per-block algorithm tag of an export stream.
type CompressionType byte

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionLZ4
	CompressionZSTD
)

var compressionNames = [...]string{
	CompressionNone:   "none",
	CompressionSnappy: "snappy",
	CompressionLZ4:    "lz4",
	CompressionZSTD:   "zstd",
}

// Compressor encodes and decodes whole export blocks.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	// CompressTo replaces the contents of dst with the encoded src.
	CompressTo(dst *bytes.Buffer, src []byte) error
	Decompress(data []byte) (io.ReadCloser, error)
	Type() CompressionType
}

func (ct CompressionType) String() string {
	if int(ct) < len(compressionNames) {
		return compressionNames[ct]
	}
	return "unknown"
}

// ParseCompressionType maps a config name to its CompressionType,
// ignoring case. An empty name means none.
func ParseCompressionType(name string) (CompressionType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return CompressionNone, nil
	}
	for i, n := range compressionNames {
		if n == name {
			return CompressionType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown compression %q", name)
}
