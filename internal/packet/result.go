package packet

import (
	"github.com/kailas-cloud/fastdispatch/internal/domain/hit"
)

// Query-result feature bits.
const (
	ResultFeatureCoverage uint32 = 1 << 0
)

// Document is one ranked hit in a query-result packet.
type Document struct {
	GlobalID        hit.GlobalID
	Relevance       float64
	PartID          uint32
	DistributionKey uint32
}

// QueryResult is the first-phase answer: ranked ids without field data.
type QueryResult struct {
	Offset    uint32
	TotalDocs uint64
	MaxRank   float64
	Docstamp  uint32

	CoveragePresent bool
	CoverageDocs    uint64
	ActiveDocs      uint64
	CoverageFull    bool

	Documents []Document
}

// Code implements Packet.
func (*QueryResult) Code() Code { return CodeQueryResult }

// AppendBody implements Packet.
func (p *QueryResult) AppendBody(b []byte) []byte {
	w := writer{buf: b}
	var features uint32
	if p.CoveragePresent {
		features |= ResultFeatureCoverage
	}
	w.u32(features)
	w.u32(p.Offset)
	w.u32(uint32(len(p.Documents)))
	w.u64(p.TotalDocs)
	w.f64(p.MaxRank)
	w.u32(p.Docstamp)
	if p.CoveragePresent {
		w.u64(p.CoverageDocs)
		w.u64(p.ActiveDocs)
		if p.CoverageFull {
			w.u8(1)
		} else {
			w.u8(0)
		}
	}
	for _, d := range p.Documents {
		w.gid(d.GlobalID)
		w.f64(d.Relevance)
		w.u32(d.PartID)
		w.u32(d.DistributionKey)
	}
	return w.buf
}

// FullCoverage reports whether the backend searched all its documents. A
// result without coverage information counts as full.
func (p *QueryResult) FullCoverage() bool {
	return !p.CoveragePresent || p.CoverageFull
}

const documentLen = hit.GlobalIDLength + 8 + 4 + 4

func decodeQueryResult(body []byte) (*QueryResult, error) {
	r := reader{buf: body}
	features := r.u32()
	p := &QueryResult{Offset: r.u32()}
	n := r.u32()
	p.TotalDocs = r.u64()
	p.MaxRank = r.f64()
	p.Docstamp = r.u32()
	if features&ResultFeatureCoverage != 0 {
		p.CoveragePresent = true
		p.CoverageDocs = r.u64()
		p.ActiveDocs = r.u64()
		p.CoverageFull = r.u8() != 0
	}
	if r.err == nil && uint64(n)*documentLen != uint64(len(r.buf)) {
		r.fail("%d documents in %d bytes", n, len(r.buf))
	}
	if r.err != nil {
		return nil, r.err
	}
	p.Documents = make([]Document, 0, n)
	for i := uint32(0); i < n; i++ {
		p.Documents = append(p.Documents, Document{
			GlobalID:        r.gid(),
			Relevance:       r.f64(),
			PartID:          r.u32(),
			DistributionKey: r.u32(),
		})
	}
	return p, r.done()
}
