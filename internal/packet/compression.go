package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Compression is the body compression applied to a packet.
type Compression uint8

// Supported compression types. The values are the wire identifiers.
const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 6
)

// ParseCompression parses "lz4" or "none" (case-insensitive).
func ParseCompression(s string) (Compression, error) {
	switch lower(s) {
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	default:
		return CompressionNone, fmt.Errorf("unsupported compression %q", s)
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// compress returns the compressed body when typ is enabled, the body exceeds
// limit and compression actually shrinks it.
func compress(typ Compression, limit int, body []byte) ([]byte, bool, error) {
	if typ == CompressionNone || limit <= 0 || len(body) <= limit {
		return nil, false, nil
	}
	if typ != CompressionLZ4 {
		return nil, false, fmt.Errorf("compress: unsupported type %s", typ)
	}

	dst := make([]byte, 4+lz4.CompressBlockBound(len(body)))
	binary.BigEndian.PutUint32(dst, uint32(len(body)))
	n, err := lz4.CompressBlock(body, dst[4:], nil)
	if err != nil {
		return nil, false, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || 4+n >= len(body) {
		return nil, false, nil
	}
	return dst[:4+n], true, nil
}

func decompress(typ Compression, body []byte) ([]byte, error) {
	if typ != CompressionLZ4 {
		return nil, fmt.Errorf("%w: unsupported compression %s", ErrMalformed, typ)
	}
	if len(body) < 4 {
		return nil, fmt.Errorf("%w: compressed body of %d bytes", ErrMalformed, len(body))
	}
	size := binary.BigEndian.Uint32(body)
	if size > MaxFrameSize {
		return nil, fmt.Errorf("%w: uncompressed size %d", ErrMalformed, size)
	}
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(body[4:], dst)
	if err != nil {
		return nil, fmt.Errorf("%w: lz4: %v", ErrMalformed, err)
	}
	if n != int(size) {
		return nil, fmt.Errorf("%w: lz4 produced %d of %d bytes", ErrMalformed, n, size)
	}
	return dst, nil
}
