package backendtest

import (
	"fmt"

	"github.com/kailas-cloud/fastdispatch/internal/domain/hit"
	"github.com/kailas-cloud/fastdispatch/internal/packet"
)

// Doc is one document served by a Corpus.
type Doc struct {
	GlobalID  hit.GlobalID
	Relevance float64
	PartID    uint32
	Payload   []byte // docsum payload
}

// Corpus answers queries, docsum requests and pings from a fixed document
// list, ranked in list order.
type Corpus struct {
	Docs     []Doc
	Docstamp uint32
	// Partial marks query results as covering only part of the corpus.
	Partial bool
	// Missing lists gids whose docsums are never returned.
	Missing map[hit.GlobalID]bool
}

// Respond implements Responder.
func (c *Corpus) Respond(p packet.Packet) ([]packet.Packet, error) {
	switch p := p.(type) {
	case *packet.Query:
		return []packet.Packet{c.result(int(p.Offset), int(p.Hits))}, nil
	case *packet.GetDocsums:
		return c.docsums(p), nil
	case *packet.Ping:
		return []packet.Packet{&packet.Pong{Docstamp: c.Docstamp}}, nil
	default:
		return nil, fmt.Errorf("corpus: unexpected %s packet", p.Code())
	}
}

func (c *Corpus) result(offset, hits int) *packet.QueryResult {
	r := &packet.QueryResult{
		Offset:          uint32(offset),
		TotalDocs:       uint64(len(c.Docs)),
		Docstamp:        c.Docstamp,
		CoveragePresent: true,
		CoverageDocs:    uint64(len(c.Docs)),
		ActiveDocs:      uint64(len(c.Docs)),
		CoverageFull:    !c.Partial,
	}
	for i := offset; i < offset+hits && i < len(c.Docs); i++ {
		d := c.Docs[i]
		if r.MaxRank < d.Relevance {
			r.MaxRank = d.Relevance
		}
		r.Documents = append(r.Documents, packet.Document{
			GlobalID:  d.GlobalID,
			Relevance: d.Relevance,
			PartID:    d.PartID,
		})
	}
	return r
}

func (c *Corpus) docsums(req *packet.GetDocsums) []packet.Packet {
	var out []packet.Packet
	for _, k := range req.Docs {
		if c.Missing[k.GlobalID] {
			continue
		}
		for _, d := range c.Docs {
			if d.GlobalID == k.GlobalID {
				out = append(out, &packet.Docsum{GlobalID: d.GlobalID, Payload: d.Payload})
				break
			}
		}
	}
	return append(out, &packet.EOL{})
}
