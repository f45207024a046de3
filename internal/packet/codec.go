package packet

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/kailas-cloud/fastdispatch/internal/domain/hit"
)

const (
	headerLen = 12
	// MaxFrameSize bounds a single frame to keep a corrupt length from
	// allocating unbounded memory.
	MaxFrameSize = 64 << 20
)

// compressible is implemented by packets that may be sent compressed.
type compressible interface {
	compression() (Compression, int)
}

// Encode returns the full frame for p on channel, including the length prefix.
func Encode(p Packet, channel uint32) ([]byte, error) {
	body := p.AppendBody(nil)
	code := uint32(p.Code())

	if c, ok := p.(compressible); ok {
		typ, limit := c.compression()
		if compressed, ok, err := compress(typ, limit, body); err != nil {
			return nil, err
		} else if ok {
			body = compressed
			code |= uint32(typ) << 24
		}
	}

	frame := make([]byte, 0, headerLen+len(body))
	frame = binary.BigEndian.AppendUint32(frame, uint32(8+len(body)))
	frame = binary.BigEndian.AppendUint32(frame, code)
	frame = binary.BigEndian.AppendUint32(frame, channel)
	return append(frame, body...), nil
}

// Decode parses a full frame including the length prefix.
func Decode(frame []byte) (Packet, uint32, error) {
	if len(frame) < headerLen {
		return nil, 0, fmt.Errorf("%w: frame of %d bytes", ErrMalformed, len(frame))
	}
	n := binary.BigEndian.Uint32(frame)
	if int(n) != len(frame)-4 {
		return nil, 0, fmt.Errorf("%w: length %d does not match frame of %d bytes", ErrMalformed, n, len(frame))
	}
	return decodeFrame(frame[4:])
}

// Write frames p and writes it to w.
func Write(w io.Writer, p Packet, channel uint32) error {
	frame, err := Encode(p, channel)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write %s packet: %w", p.Code(), err)
	}
	return nil
}

// Read reads one frame from r and decodes it.
func Read(r io.Reader) (Packet, uint32, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, 0, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n < 8 || n > MaxFrameSize {
		return nil, 0, fmt.Errorf("%w: frame length %d", ErrMalformed, n)
	}
	rest := make([]byte, n)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, 0, err
	}
	return decodeFrame(rest)
}

// EncodedLen returns the size of p's uncompressed frame.
func EncodedLen(p Packet) int {
	return headerLen + len(p.AppendBody(nil))
}

func decodeFrame(b []byte) (Packet, uint32, error) {
	raw := binary.BigEndian.Uint32(b)
	channel := binary.BigEndian.Uint32(b[4:])
	body := b[8:]

	typ := Compression(raw >> 24)
	code := Code(raw & 0x00ffffff)
	if typ != CompressionNone {
		var err error
		body, err = decompress(typ, body)
		if err != nil {
			return nil, 0, err
		}
	}

	p, err := decodeBody(code, body)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s packet: %w", code, err)
	}
	return p, channel, nil
}

// writer appends big-endian primitives.
type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *writer) f64(v float64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, math.Float64bits(v))
}

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) gid(g hit.GlobalID) { w.buf = append(w.buf, g[:]...) }

func (w *writer) strs(ss []string) {
	w.u32(uint32(len(ss)))
	for _, s := range ss {
		w.str(s)
	}
}

// reader consumes big-endian primitives; the first failure sticks.
type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.buf) < n {
		r.err = fmt.Errorf("%w: need %d bytes, have %d", ErrMalformed, n, len(r.buf))
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) u64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

func (r *reader) f64() float64 { return math.Float64frombits(r.u64()) }

func (r *reader) str() string {
	n := r.u32()
	if n > MaxFrameSize {
		r.fail("string of %d bytes", n)
		return ""
	}
	return string(r.take(int(n)))
}

func (r *reader) gid() hit.GlobalID {
	var g hit.GlobalID
	copy(g[:], r.take(hit.GlobalIDLength))
	return g
}

func (r *reader) strs() []string {
	n := r.count(4)
	if n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		out = append(out, r.str())
	}
	return out
}

// count reads an element count and sanity-checks it against the bytes left,
// given that each element needs at least minSize bytes.
func (r *reader) count(minSize int) int {
	n := r.u32()
	if r.err != nil {
		return 0
	}
	if uint64(n)*uint64(minSize) > uint64(len(r.buf)) {
		r.fail("count %d exceeds remaining %d bytes", n, len(r.buf))
		return 0
	}
	return int(n)
}

func (r *reader) rest() []byte {
	b := r.buf
	r.buf = nil
	return b
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
	}
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if len(r.buf) != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(r.buf))
	}
	return nil
}

func lower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
