package docsum

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrEmpty signals a summary payload without content.
var ErrEmpty = errors.New("empty document summary")

// Decode parses a summary payload: a class id followed by the fields of that
// class in definition order.
func (d *Database) Decode(payload []byte) (Definition, map[string]any, error) {
	if len(payload) == 0 {
		return Definition{}, nil, ErrEmpty
	}
	if len(payload) < 4 {
		return Definition{}, nil, fmt.Errorf("summary payload too short: %d bytes", len(payload))
	}
	id := binary.BigEndian.Uint32(payload)
	def, ok := d.byID[id]
	if !ok {
		return Definition{}, nil, fmt.Errorf("unknown summary class id %d in %q", id, d.name)
	}

	r := reader{buf: payload[4:]}
	values := make(map[string]any, len(def.Fields))
	for _, f := range def.Fields {
		v, err := r.field(f.Type)
		if err != nil {
			return Definition{}, nil, fmt.Errorf("decode field %q: %w", f.Name, err)
		}
		values[f.Name] = v
	}
	return def, values, nil
}

// Encode builds a summary payload for def. Missing values encode as zero values.
func Encode(def Definition, values map[string]any) ([]byte, error) {
	buf := binary.BigEndian.AppendUint32(nil, def.ID)
	for _, f := range def.Fields {
		var err error
		buf, err = appendField(buf, f, values[f.Name])
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendField(buf []byte, f Field, v any) ([]byte, error) {
	switch f.Type {
	case String, LongString:
		s, _ := v.(string)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
		return append(buf, s...), nil
	case Byte:
		n, _ := v.(int8)
		return append(buf, byte(n)), nil
	case Short:
		n, _ := v.(int16)
		return binary.BigEndian.AppendUint16(buf, uint16(n)), nil
	case Integer:
		n, _ := v.(int32)
		return binary.BigEndian.AppendUint32(buf, uint32(n)), nil
	case Int64:
		n, _ := v.(int64)
		return binary.BigEndian.AppendUint64(buf, uint64(n)), nil
	case Float:
		n, _ := v.(float32)
		return binary.BigEndian.AppendUint32(buf, math.Float32bits(n)), nil
	case Double:
		n, _ := v.(float64)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(n)), nil
	default:
		return nil, fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
	}
}

type reader struct {
	buf []byte
}

func (r *reader) take(n int) ([]byte, error) {
	if len(r.buf) < n {
		return nil, fmt.Errorf("need %d bytes, have %d", n, len(r.buf))
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b, nil
}

func (r *reader) field(t FieldType) (any, error) {
	switch t {
	case String, LongString:
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		s, err := r.take(int(binary.BigEndian.Uint32(b)))
		if err != nil {
			return nil, err
		}
		return string(s), nil
	case Byte:
		b, err := r.take(1)
		if err != nil {
			return nil, err
		}
		return int8(b[0]), nil
	case Short:
		b, err := r.take(2)
		if err != nil {
			return nil, err
		}
		return int16(binary.BigEndian.Uint16(b)), nil
	case Integer:
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		return int32(binary.BigEndian.Uint32(b)), nil
	case Int64:
		b, err := r.take(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	case Float:
		b, err := r.take(4)
		if err != nil {
			return nil, err
		}
		return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
	case Double:
		b, err := r.take(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	default:
		return nil, fmt.Errorf("unknown type %q", t)
	}
}
