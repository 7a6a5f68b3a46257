package export

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"

	"github.com/INLOpen/loged/compressors"
	"github.com/INLOpen/loged/core"
)

// WriterOptions configures a Writer. The zero value writes uncompressed
// blocks of DefaultBlockSize.
type WriterOptions struct {
	Compressor core.Compressor
	BlockSize  int
	Logger     *slog.Logger
}

// Writer streams entries as NDJSON blocks to an io.Writer. It is not safe
// for concurrent use.
type Writer struct {
	w          io.Writer
	compressor core.Compressor
	blockSize  int
	logger     *slog.Logger

	block   bytes.Buffer
	scratch []byte
	count   uint64
	written int64
	closed  bool
}

// NewWriter writes the stream header to w and returns a Writer.
func NewWriter(w io.Writer, opts WriterOptions) (*Writer, error) {
	if opts.Compressor == nil {
		opts.Compressor = compressors.None()
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.BlockSize > maxBlockSize {
		return nil, fmt.Errorf("block size %d exceeds limit %d", opts.BlockSize, maxBlockSize)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ew := &Writer{
		w:          w,
		compressor: opts.Compressor,
		blockSize:  opts.BlockSize,
		logger:     opts.Logger.With("component", "ExportWriter"),
	}
	var hdr [streamHeaderSize]byte
	copy(hdr[:], magic[:])
	hdr[len(magic)] = formatVersion
	if err := ew.write(hdr[:]); err != nil {
		return nil, err
	}
	return ew, nil
}

// Write appends one entry as a JSON line.
func (ew *Writer) Write(e *core.Entry) error {
	if ew.closed {
		return ErrWriterClosed
	}
	line, err := e.AppendJSON(ew.scratch[:0])
	if err != nil {
		return err
	}
	ew.scratch = line
	ew.block.Write(line)
	ew.block.WriteByte('\n')
	ew.count++
	if ew.block.Len() >= ew.blockSize {
		return ew.flushBlock()
	}
	return nil
}

// Count returns the number of entries written so far.
func (ew *Writer) Count() uint64 { return ew.count }

// BytesWritten returns the number of stream bytes handed to the underlying writer.
func (ew *Writer) BytesWritten() int64 { return ew.written }

// Close flushes the pending block and writes the trailer. It does not close
// the underlying writer.
func (ew *Writer) Close() error {
	if ew.closed {
		return nil
	}
	ew.closed = true
	if err := ew.flushBlock(); err != nil {
		return err
	}
	var trailer [9]byte
	trailer[0] = trailerMarker
	binary.LittleEndian.PutUint64(trailer[1:], ew.count)
	if err := ew.write(trailer[:]); err != nil {
		return err
	}
	ew.logger.Debug("Export stream finished", "entries", ew.count, "bytes", ew.written, "compression", ew.compressor.Type())
	return nil
}

func (ew *Writer) flushBlock() error {
	if ew.block.Len() == 0 {
		return nil
	}
	raw := ew.block.Bytes()

	compressed := core.BufferPool.Get()
	defer core.BufferPool.Put(compressed)
	if err := ew.compressor.CompressTo(compressed, raw); err != nil {
		return fmt.Errorf("failed to compress export block: %w", err)
	}
	data := compressed.Bytes()

	var hdr [blockHeaderSize]byte
	hdr[0] = byte(ew.compressor.Type())
	binary.LittleEndian.PutUint32(hdr[1:5], crc32.ChecksumIEEE(data))
	binary.LittleEndian.PutUint32(hdr[5:9], uint32(len(raw)))
	binary.LittleEndian.PutUint32(hdr[9:13], uint32(len(data)))
	if err := ew.write(hdr[:]); err != nil {
		return err
	}
	if err := ew.write(data); err != nil {
		return err
	}
	ew.logger.Debug("Flushed export block", "raw_len", len(raw), "stored_len", len(data))
	ew.block.Reset()
	return nil
}

func (ew *Writer) write(p []byte) error {
	n, err := ew.w.Write(p)
	ew.written += int64(n)
	if err != nil {
		return &core.IOError{Op: "export write", Err: err}
	}
	return nil
}
