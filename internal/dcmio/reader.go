// Package dcmio provides little-endian primitive reads over a DICOM
// source buffer. It is the lowest layer of the engine: everything above
// it (the parser, the pixel-data extractor) slices and reads through a
// Reader rather than touching the buffer directly, the way
// container/mts's packet helpers centralize octet access for the rest of
// that package.
package dcmio

import (
	"encoding/binary"

	"github.com/dcmcore/engine/internal/dcmerr"
)

// Reader is a cursor over a DICOM source buffer. It never copies the
// buffer; every read returns either a fixed-width value or a sub-slice
// view of buf.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for little-endian cursor reads starting at offset
// 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the total length of the underlying buffer.
func (r *Reader) Len() int { return len(r.buf) }

// Pos returns the current cursor offset.
func (r *Reader) Pos() int { return r.pos }

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(off int) { r.pos = off }

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// ensure returns a parse-truncated error if n more bytes aren't
// available from the current cursor.
func (r *Reader) ensure(n int) error {
	if r.pos+n > len(r.buf) {
		return dcmerr.New(dcmerr.ParseTruncated, "buffer shorter than required read")
	}
	return nil
}

// U16 reads a little-endian uint16 and advances the cursor.
func (r *Reader) U16() (uint16, error) {
	if err := r.ensure(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// U32 reads a little-endian uint32 and advances the cursor.
func (r *Reader) U32() (uint32, error) {
	if err := r.ensure(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

// Bytes reads n raw bytes and advances the cursor, returning a view
// (zero-copy) into the source buffer.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.ensure(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// Skip advances the cursor by n bytes without reading, validating the
// bound the same way a read would.
func (r *Reader) Skip(n int) error {
	if err := r.ensure(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// Slice returns a zero-copy view [off, off+length) of the underlying
// buffer without moving the cursor, validating bounds.
func (r *Reader) Slice(off, length int) ([]byte, error) {
	if off < 0 || length < 0 || off+length > len(r.buf) {
		return nil, dcmerr.New(dcmerr.ParseTruncated, "element value exceeds buffer length")
	}
	return r.buf[off : off+length], nil
}
