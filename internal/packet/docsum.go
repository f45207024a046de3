package packet

import (
	"github.com/kailas-cloud/fastdispatch/internal/domain/hit"
	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
)

// DocKey addresses one document on a backend.
type DocKey struct {
	GlobalID hit.GlobalID
	PartID   uint32
}

// GetDocsums is the second-phase request for document summaries.
type GetDocsums struct {
	RankProfile  string
	Flags        uint32
	SummaryClass string
	Properties   []PropertyMap
	Stack        []string // set only when the backend needs the query again
	Docs         []DocKey

	// Outgoing compression settings; not part of the body.
	CompressionLimit int
	CompressionType  Compression
}

// NewGetDocsums builds a docsum request for docs. resendQuery attaches the
// query stack for summaries that depend on the query. Compression is taken
// from the query's packetcompressionlimit and packetcompressiontype properties.
func NewGetDocsums(q *query.Query, class string, resendQuery bool, docs []DocKey) *GetDocsums {
	qp := NewQuery(q)
	p := &GetDocsums{
		RankProfile:      qp.RankProfile,
		Flags:            qp.Flags,
		SummaryClass:     class,
		Properties:       qp.Properties,
		Docs:             docs,
		CompressionLimit: q.Properties.Int(query.PropCompressionLimit, 0),
		CompressionType:  CompressionLZ4,
	}
	if s, ok := q.Properties.Lookup(query.PropCompressionType); ok {
		if c, err := ParseCompression(s); err == nil {
			p.CompressionType = c
		}
	}
	if resendQuery {
		p.Stack = qp.Stack
	}
	return p
}

// NumDocsums returns how many docsum packets the backend should answer with.
func (p *GetDocsums) NumDocsums() int { return len(p.Docs) }

// Code implements Packet.
func (*GetDocsums) Code() Code { return CodeGetDocsums }

func (p *GetDocsums) compression() (Compression, int) {
	return p.CompressionType, p.CompressionLimit
}

// AppendBody implements Packet.
func (p *GetDocsums) AppendBody(b []byte) []byte {
	w := writer{buf: b}
	var features uint32
	if len(p.Properties) > 0 {
		features |= FeatureProperties
	}
	if len(p.Stack) > 0 {
		features |= FeatureStack
	}
	w.u32(features)
	w.str(p.RankProfile)
	w.u32(p.Flags)
	w.str(p.SummaryClass)
	if len(p.Properties) > 0 {
		appendPropertyMaps(&w, p.Properties, false)
	}
	if len(p.Stack) > 0 {
		w.strs(p.Stack)
	}
	w.u32(uint32(len(p.Docs)))
	for _, d := range p.Docs {
		w.gid(d.GlobalID)
		w.u32(d.PartID)
	}
	return w.buf
}

func decodeGetDocsums(body []byte) (*GetDocsums, error) {
	r := reader{buf: body}
	features := r.u32()
	p := &GetDocsums{RankProfile: r.str(), Flags: r.u32(), SummaryClass: r.str()}
	if features&FeatureProperties != 0 {
		p.Properties = readPropertyMaps(&r)
	}
	if features&FeatureStack != 0 {
		p.Stack = r.strs()
	}
	n := r.count(hit.GlobalIDLength + 4)
	for i := 0; i < n && r.err == nil; i++ {
		p.Docs = append(p.Docs, DocKey{GlobalID: r.gid(), PartID: r.u32()})
	}
	return p, r.done()
}

// Docsum carries the encoded summary of one document.
type Docsum struct {
	GlobalID hit.GlobalID
	Payload  []byte
}

// Code implements Packet.
func (*Docsum) Code() Code { return CodeDocsum }

// AppendBody implements Packet.
func (p *Docsum) AppendBody(b []byte) []byte {
	w := writer{buf: b}
	w.gid(p.GlobalID)
	w.buf = append(w.buf, p.Payload...)
	return w.buf
}

func decodeDocsum(body []byte) (*Docsum, error) {
	r := reader{buf: body}
	p := &Docsum{GlobalID: r.gid()}
	if r.err != nil {
		return nil, r.err
	}
	p.Payload = append([]byte(nil), r.rest()...)
	return p, nil
}
