// Package packet is the wire codec for the backend search protocol.
//
// Every packet is framed as
//
//	uint32 length | uint32 code | uint32 channel | body
//
// in big-endian byte order, where length counts everything after itself.
// The top byte of code carries the compression applied to body.
package packet

import (
	"errors"
	"fmt"
)

// Code identifies a packet type on the wire.
type Code uint32

// Packet codes.
const (
	CodeEOL         Code = 200
	CodeError       Code = 203
	CodeDocsum      Code = 205
	CodeQueryResult Code = 217
	CodeQuery       Code = 218
	CodeGetDocsums  Code = 219
	CodePing        Code = 220
	CodePong        Code = 221
)

func (c Code) String() string {
	switch c {
	case CodeEOL:
		return "eol"
	case CodeError:
		return "error"
	case CodeDocsum:
		return "docsum"
	case CodeQueryResult:
		return "query-result"
	case CodeQuery:
		return "query"
	case CodeGetDocsums:
		return "get-docsums"
	case CodePing:
		return "ping"
	case CodePong:
		return "pong"
	default:
		return fmt.Sprintf("code(%d)", uint32(c))
	}
}

var (
	// ErrMalformed signals bytes that do not form a valid packet.
	ErrMalformed = errors.New("packet: malformed")
	// ErrUnexpectedType signals a well-formed packet of the wrong type.
	ErrUnexpectedType = errors.New("packet: unexpected type")
)

// Packet is any protocol packet.
type Packet interface {
	Code() Code
	// AppendBody appends the uncompressed body encoding to b.
	AppendBody(b []byte) []byte
}

// As returns p as T, or an ErrUnexpectedType error naming both types.
func As[T Packet](p Packet) (T, error) {
	t, ok := p.(T)
	if !ok {
		var want T
		return want, fmt.Errorf("%w: expected %T, got %T", ErrUnexpectedType, want, p)
	}
	return t, nil
}

// EOL terminates a list of docsum packets.
type EOL struct{}

// Code implements Packet.
func (*EOL) Code() Code { return CodeEOL }

// AppendBody implements Packet.
func (*EOL) AppendBody(b []byte) []byte { return b }

// Error is a backend-reported error.
type Error struct {
	ErrorCode uint32
	Message   string
}

// Code implements Packet.
func (*Error) Code() Code { return CodeError }

// AppendBody implements Packet.
func (p *Error) AppendBody(b []byte) []byte {
	w := writer{buf: b}
	w.u32(p.ErrorCode)
	w.str(p.Message)
	return w.buf
}

func (p *Error) String() string {
	return fmt.Sprintf("backend error %d: %s", p.ErrorCode, p.Message)
}

func decodeError(body []byte) (*Error, error) {
	r := reader{buf: body}
	p := &Error{ErrorCode: r.u32(), Message: r.str()}
	return p, r.done()
}

func decodeBody(code Code, body []byte) (Packet, error) {
	switch code {
	case CodeEOL:
		return &EOL{}, nil
	case CodeError:
		return decodeError(body)
	case CodeDocsum:
		return decodeDocsum(body)
	case CodeQueryResult:
		return decodeQueryResult(body)
	case CodeQuery:
		return decodeQuery(body)
	case CodeGetDocsums:
		return decodeGetDocsums(body)
	case CodePing:
		return decodePing(body)
	case CodePong:
		return decodePong(body)
	default:
		return nil, fmt.Errorf("%w: unknown code %d", ErrMalformed, uint32(code))
	}
}
