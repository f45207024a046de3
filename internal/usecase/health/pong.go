package health

import (
	"strings"

	"github.com/kailas-cloud/fastdispatch/internal/domain/result"
	"github.com/kailas-cloud/fastdispatch/internal/packet"
)

// Pong is the outcome of pinging a backend: the pong packets received and
// any errors met on the way.
type Pong struct {
	errors  []result.ErrorMessage
	packets []*packet.Pong
	info    string
}

// NewPong creates an empty pong described by info.
func NewPong(info string) *Pong {
	return &Pong{info: info}
}

// AddError records an error.
func (p *Pong) AddError(e result.ErrorMessage) { p.errors = append(p.errors, e) }

// AddPacket records a pong packet.
func (p *Pong) AddPacket(pp *packet.Pong) { p.packets = append(p.packets, pp) }

// Errors returns the recorded errors.
func (p *Pong) Errors() []result.ErrorMessage { return p.errors }

// Packets returns the received pong packets.
func (p *Pong) Packets() []*packet.Pong { return p.packets }

// OK reports whether at least one pong arrived and nothing failed.
func (p *Pong) OK() bool { return len(p.errors) == 0 && len(p.packets) > 0 }

// Info returns what was pinged.
func (p *Pong) Info() string { return p.info }

// SetInfo replaces the ping description.
func (p *Pong) SetInfo(info string) { p.info = info }

// Docstamp returns the docstamp of the first pong packet.
func (p *Pong) Docstamp() (uint32, bool) {
	if len(p.packets) == 0 {
		return 0, false
	}
	return p.packets[0].Docstamp, true
}

// Merge appends other's errors and packets to p.
func (p *Pong) Merge(other *Pong) {
	p.errors = append(p.errors, other.errors...)
	p.packets = append(p.packets, other.packets...)
}

func (p *Pong) String() string {
	var b strings.Builder
	b.WriteString("Result of pinging")
	if p.info != "" {
		b.WriteString(" using ")
		b.WriteString(p.info)
	}
	for _, e := range p.errors {
		b.WriteString(" error : ")
		b.WriteString(e.Error())
	}
	return b.String()
}
