package export

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/INLOpen/loged/compressors"
	"github.com/INLOpen/loged/core"
)

// Reader decodes a stream produced by Writer.
type Reader struct {
	r          *bufio.Reader
	decoders   map[core.CompressionType]core.Compressor
	lines      []byte
	count      uint64
	sawTrailer bool
}

// NewReader validates the stream header of r.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var hdr [streamHeaderSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrBadMagic
		}
		return nil, &core.IOError{Op: "export read", Err: err}
	}
	if !bytes.Equal(hdr[:len(magic)], magic[:]) {
		return nil, ErrBadMagic
	}
	if v := hdr[len(magic)]; v != formatVersion {
		return nil, &core.DecodeError{Target: "export header", Err: fmt.Errorf("%w: %d", core.ErrVersionMismatch, v)}
	}
	return &Reader{r: br, decoders: make(map[core.CompressionType]core.Compressor)}, nil
}

// Next returns the next entry, or io.EOF after the trailer. A stream that
// ends without a trailer yields ErrTruncated.
func (er *Reader) Next() (core.Entry, error) {
	for len(er.lines) == 0 {
		if er.sawTrailer {
			return core.Entry{}, io.EOF
		}
		if err := er.readBlock(); err != nil {
			return core.Entry{}, err
		}
	}
	line := er.lines
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line, er.lines = line[:i], er.lines[i+1:]
	} else {
		er.lines = nil
	}
	e, err := core.ParseEntryJSON(line)
	if err != nil {
		return core.Entry{}, err
	}
	er.count++
	return e, nil
}

// ReadAll returns every remaining entry.
func (er *Reader) ReadAll() ([]core.Entry, error) {
	var out []core.Entry
	for {
		e, err := er.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

func (er *Reader) readBlock() error {
	marker, err := er.r.ReadByte()
	if err != nil {
		return er.eofAsTruncated(err)
	}
	if marker == trailerMarker {
		var n [8]byte
		if _, err := io.ReadFull(er.r, n[:]); err != nil {
			return er.eofAsTruncated(err)
		}
		er.sawTrailer = true
		// Lines are drained before the next block is read, so count is final here.
		if want := binary.LittleEndian.Uint64(n[:]); want != er.count {
			return &core.DecodeError{Target: "export trailer", Err: fmt.Errorf("trailer counts %d entries, stream holds %d", want, er.count)}
		}
		return nil
	}

	var hdr [blockHeaderSize - 1]byte
	if _, err := io.ReadFull(er.r, hdr[:]); err != nil {
		return er.eofAsTruncated(err)
	}
	checksum := binary.LittleEndian.Uint32(hdr[0:4])
	rawLen := binary.LittleEndian.Uint32(hdr[4:8])
	dataLen := binary.LittleEndian.Uint32(hdr[8:12])
	if rawLen > maxBlockSize || dataLen > maxBlockSize {
		return &core.DecodeError{Target: "export block", Err: fmt.Errorf("block lengths %d/%d exceed limit", rawLen, dataLen)}
	}
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(er.r, data); err != nil {
		return er.eofAsTruncated(err)
	}
	if crc32.ChecksumIEEE(data) != checksum {
		return &core.DecodeError{Target: "export block", Err: ErrChecksumMismatch}
	}

	dec, err := er.decoder(core.CompressionType(marker))
	if err != nil {
		return &core.DecodeError{Target: "export block", Err: err}
	}
	rc, err := dec.Decompress(data)
	if err != nil {
		return &core.DecodeError{Target: "export block", Err: err}
	}
	defer rc.Close()
	raw := make([]byte, 0, rawLen)
	buf := bytes.NewBuffer(raw)
	if _, err := buf.ReadFrom(rc); err != nil {
		return &core.DecodeError{Target: "export block", Err: err}
	}
	if uint32(buf.Len()) != rawLen {
		return &core.DecodeError{Target: "export block", Err: fmt.Errorf("block decompressed to %d bytes, header says %d", buf.Len(), rawLen)}
	}
	er.lines = buf.Bytes()
	return nil
}

func (er *Reader) decoder(ct core.CompressionType) (core.Compressor, error) {
	if c, ok := er.decoders[ct]; ok {
		return c, nil
	}
	c, err := compressors.New(ct)
	if err != nil {
		return nil, err
	}
	er.decoders[ct] = c
	return c, nil
}

func (er *Reader) eofAsTruncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return &core.IOError{Op: "export read", Err: err}
}
