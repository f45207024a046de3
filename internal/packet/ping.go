package packet

// Ping feature bits.
const (
	PingFeatureActiveDocs uint32 = 1 << 0
)

// Ping asks a backend for its state.
type Ping struct {
	Features uint32
}

// Code implements Packet.
func (*Ping) Code() Code { return CodePing }

// AppendBody implements Packet.
func (p *Ping) AppendBody(b []byte) []byte {
	w := writer{buf: b}
	w.u32(p.Features)
	return w.buf
}

func decodePing(body []byte) (*Ping, error) {
	r := reader{buf: body}
	p := &Ping{Features: r.u32()}
	return p, r.done()
}

// Pong answers a Ping.
type Pong struct {
	Docstamp          uint32
	ActiveDocs        uint64
	ActiveDocsPresent bool
	Errors            []string
}

// Code implements Packet.
func (*Pong) Code() Code { return CodePong }

// AppendBody implements Packet.
func (p *Pong) AppendBody(b []byte) []byte {
	w := writer{buf: b}
	var features uint32
	if p.ActiveDocsPresent {
		features |= PingFeatureActiveDocs
	}
	w.u32(features)
	w.u32(p.Docstamp)
	if p.ActiveDocsPresent {
		w.u64(p.ActiveDocs)
	}
	w.strs(p.Errors)
	return w.buf
}

func decodePong(body []byte) (*Pong, error) {
	r := reader{buf: body}
	features := r.u32()
	p := &Pong{Docstamp: r.u32()}
	if features&PingFeatureActiveDocs != 0 {
		p.ActiveDocsPresent = true
		p.ActiveDocs = r.u64()
	}
	p.Errors = r.strs()
	return p, r.done()
}
