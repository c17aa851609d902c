// Package packet implements the length-prefixed binary buffers carried by
// routed commands. Fields are written and read back in a fixed order; the
// reader never panics on truncated or corrupted input.
package packet

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrShortBuffer reports a read past the end of the buffer or a corrupt
// length prefix.
var ErrShortBuffer = errors.New("packet: short or corrupt buffer")

// Writer appends typed fields to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteString appends a varint length prefix followed by the UTF-8 bytes.
func (w *Writer) WriteString(v string) *Writer {
	w.buf = protowire.AppendString(w.buf, v)
	return w
}

// WriteBytes appends a varint length prefix followed by the raw bytes.
func (w *Writer) WriteBytes(v []byte) *Writer {
	w.buf = protowire.AppendBytes(w.buf, v)
	return w
}

// WriteUint32 appends a fixed-width little-endian 32-bit value.
func (w *Writer) WriteUint32(v uint32) *Writer {
	w.buf = protowire.AppendFixed32(w.buf, v)
	return w
}

// WriteUint64 appends a fixed-width little-endian 64-bit value.
func (w *Writer) WriteUint64(v uint64) *Writer {
	w.buf = protowire.AppendFixed64(w.buf, v)
	return w
}

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte {
	if w == nil {
		return nil
	}
	return w.buf
}

// Len reports the number of encoded bytes.
func (w *Writer) Len() int {
	if w == nil {
		return 0
	}
	return len(w.buf)
}

// Reader consumes typed fields from a buffer in the order they were written.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps the provided buffer. The buffer is not copied.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// ReadString consumes a length-prefixed string.
func (r *Reader) ReadString() (string, error) {
	v, n := protowire.ConsumeString(r.buf[r.pos:])
	if n < 0 {
		return "", r.fail("string", n)
	}
	r.pos += n
	return v, nil
}

// ReadBytes consumes a length-prefixed byte slice. The returned slice aliases
// the underlying buffer.
func (r *Reader) ReadBytes() ([]byte, error) {
	v, n := protowire.ConsumeBytes(r.buf[r.pos:])
	if n < 0 {
		return nil, r.fail("bytes", n)
	}
	r.pos += n
	return v, nil
}

// ReadUint32 consumes a fixed-width 32-bit value.
func (r *Reader) ReadUint32() (uint32, error) {
	v, n := protowire.ConsumeFixed32(r.buf[r.pos:])
	if n < 0 {
		return 0, r.fail("uint32", n)
	}
	r.pos += n
	return v, nil
}

// ReadUint64 consumes a fixed-width 64-bit value.
func (r *Reader) ReadUint64() (uint64, error) {
	v, n := protowire.ConsumeFixed64(r.buf[r.pos:])
	if n < 0 {
		return 0, r.fail("uint64", n)
	}
	r.pos += n
	return v, nil
}

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) fail(field string, n int) error {
	return fmt.Errorf("%w: reading %s at offset %d: %v", ErrShortBuffer, field, r.pos, protowire.ParseError(n))
}
