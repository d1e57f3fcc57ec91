package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// payloadWriter appends length prefixed fields. The first error is kept
// and every later write is ignored.
type payloadWriter struct {
	buf []byte
	err error
}

func (pw *payloadWriter) fail(err error) {
	if pw.err == nil {
		pw.err = err
	}
}

func (pw *payloadWriter) uint8(v uint8) {
	pw.buf = append(pw.buf, v)
}

func (pw *payloadWriter) uint64(v uint64) {
	pw.buf = binary.BigEndian.AppendUint64(pw.buf, v)
}

// string writes a 2 byte length followed by the bytes of s.
func (pw *payloadWriter) string(s string) {
	if len(s) > math.MaxUint16 {
		pw.fail(fmt.Errorf("string of %d bytes too long", len(s)))
		return
	}

	pw.buf = binary.BigEndian.AppendUint16(pw.buf, uint16(len(s)))
	pw.buf = append(pw.buf, s...)
}

// bytes writes a 4 byte length followed by b.
func (pw *payloadWriter) bytes(b []byte) {
	pw.buf = binary.BigEndian.AppendUint32(pw.buf, uint32(len(b)))
	pw.buf = append(pw.buf, b...)
}

// list writes a 4 byte count followed by every entry as bytes.
func (pw *payloadWriter) list(l [][]byte) {
	pw.buf = binary.BigEndian.AppendUint32(pw.buf, uint32(len(l)))
	for _, b := range l {
		pw.bytes(b)
	}
}

// =============================================================================

// payloadReader consumes length prefixed fields. The first error is kept
// and every later read returns a zero value.
type payloadReader struct {
	buf []byte
	err error
}

func (pr *payloadReader) fail(err error) {
	if pr.err == nil {
		pr.err = err
	}
}

func (pr *payloadReader) take(n int) []byte {
	if pr.err != nil {
		return nil
	}

	if n < 0 || len(pr.buf) < n {
		pr.fail(fmt.Errorf("short payload: need %d bytes, have %d", n, len(pr.buf)))
		return nil
	}

	b := pr.buf[:n:n]
	pr.buf = pr.buf[n:]

	return b
}

func (pr *payloadReader) uint8() uint8 {
	b := pr.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (pr *payloadReader) uint16() uint16 {
	b := pr.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (pr *payloadReader) uint32() uint32 {
	b := pr.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (pr *payloadReader) uint64() uint64 {
	b := pr.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (pr *payloadReader) string() string {
	n := pr.uint16()
	return string(pr.take(int(n)))
}

func (pr *payloadReader) bytes() []byte {
	n := pr.uint32()
	if pr.err != nil {
		return nil
	}

	return append([]byte(nil), pr.take(int(n))...)
}

func (pr *payloadReader) list() [][]byte {
	n := pr.uint32()
	if pr.err != nil {
		return nil
	}

	// Every entry needs at least its 4 byte length.
	if uint64(n)*4 > uint64(len(pr.buf)) {
		pr.fail(fmt.Errorf("list of %d entries does not fit %d bytes", n, len(pr.buf)))
		return nil
	}

	l := make([][]byte, 0, n)
	for i := uint32(0); i < n && pr.err == nil; i++ {
		l = append(l, pr.bytes())
	}

	return l
}
