package packet

import (
	"sort"
	"time"

	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
)

// Feature bits announcing optional sections of query and get-docsums bodies.
const (
	FeatureProperties uint32 = 1 << 0
	FeatureStack      uint32 = 1 << 1
)

// Query flags.
const (
	FlagDumpFeatures uint32 = 0x00040000
)

// Property map names.
const (
	MapRank    = "rank"
	MapFeature = "feature"
	MapMatch   = "match"
	MapCaches  = "caches"
)

// rankSessionKey is excluded from the query's cache identity.
const rankSessionKey = "sessionId"

// Property is a single key/value entry of a PropertyMap.
type Property struct {
	Key, Value string
}

// PropertyMap is a named list of properties.
type PropertyMap struct {
	Name    string
	Entries []Property
}

// Lookup returns the value for key.
func (m PropertyMap) Lookup(key string) (string, bool) {
	for _, e := range m.Entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Query is the first-phase search request.
type Query struct {
	Offset      uint32
	Hits        uint32
	Timeout     time.Duration
	Flags       uint32
	RankProfile string
	Properties  []PropertyMap
	Stack       []string
}

// NewQuery encodes q into a request packet. Property maps and their entries
// are sorted so equal queries produce equal bytes.
func NewQuery(q *query.Query) *Query {
	timeout := q.TimeLeft()
	if timeout < 0 {
		timeout = 0
	}
	p := &Query{
		Offset:      uint32(max(q.Offset, 0)),
		Hits:        uint32(max(q.Hits, 0)),
		Timeout:     timeout,
		RankProfile: q.Ranking.Profile,
		Properties:  propertyMaps(q),
		Stack:       append([]string(nil), q.Terms...),
	}
	if q.Ranking.ListFeatures {
		p.Flags |= FlagDumpFeatures
	}
	return p
}

func propertyMaps(q *query.Query) []PropertyMap {
	maps := map[string]map[string]string{}
	put := func(m, k, v string) {
		if maps[m] == nil {
			maps[m] = map[string]string{}
		}
		maps[m][k] = v
	}
	if q.Ranking.QueryCache {
		put(MapRank, rankSessionKey, q.SessionID())
		put(MapCaches, "query", "true")
	}
	for k, v := range q.Ranking.Features {
		put(MapFeature, k, v)
	}
	if len(q.Restrict) == 1 {
		put(MapMatch, "documentdb.searchdoctype", q.Restrict[0])
	}
	return sortedMaps(maps)
}

func sortedMaps(maps map[string]map[string]string) []PropertyMap {
	out := make([]PropertyMap, 0, len(maps))
	for name, entries := range maps {
		m := PropertyMap{Name: name, Entries: make([]Property, 0, len(entries))}
		for k, v := range entries {
			m.Entries = append(m.Entries, Property{Key: k, Value: v})
		}
		sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Key < m.Entries[j].Key })
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Code implements Packet.
func (*Query) Code() Code { return CodeQuery }

// AppendBody implements Packet.
func (p *Query) AppendBody(b []byte) []byte {
	w := writer{buf: b}
	w.u32(p.features())
	w.u32(p.Offset)
	w.u32(p.Hits)
	w.u32(uint32(p.Timeout / time.Millisecond))
	p.appendIdentity(&w, false)
	return w.buf
}

// KeyBytes returns the encoding of everything that determines the answer set:
// offset, hits, timeout and the rank session id are left out, so requests for
// different windows of the same query share a key.
func (p *Query) KeyBytes() []byte {
	w := writer{}
	w.u32(p.features())
	p.appendIdentity(&w, true)
	return w.buf
}

// Property returns the value of key in the named property map.
func (p *Query) Property(mapName, key string) (string, bool) {
	for _, m := range p.Properties {
		if m.Name == mapName {
			return m.Lookup(key)
		}
	}
	return "", false
}

func (p *Query) features() uint32 {
	var f uint32
	if len(p.Properties) > 0 {
		f |= FeatureProperties
	}
	if len(p.Stack) > 0 {
		f |= FeatureStack
	}
	return f
}

func (p *Query) appendIdentity(w *writer, forKey bool) {
	w.u32(p.Flags)
	w.str(p.RankProfile)
	if len(p.Properties) > 0 {
		appendPropertyMaps(w, p.Properties, forKey)
	}
	if len(p.Stack) > 0 {
		w.strs(p.Stack)
	}
}

func appendPropertyMaps(w *writer, maps []PropertyMap, forKey bool) {
	w.u32(uint32(len(maps)))
	for _, m := range maps {
		entries := m.Entries
		if forKey && m.Name == MapRank {
			entries = withoutKey(entries, rankSessionKey)
		}
		w.str(m.Name)
		w.u32(uint32(len(entries)))
		for _, e := range entries {
			w.str(e.Key)
			w.str(e.Value)
		}
	}
}

func withoutKey(entries []Property, key string) []Property {
	out := make([]Property, 0, len(entries))
	for _, e := range entries {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

func readPropertyMaps(r *reader) []PropertyMap {
	n := r.count(8)
	maps := make([]PropertyMap, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		m := PropertyMap{Name: r.str()}
		entries := r.count(8)
		for j := 0; j < entries && r.err == nil; j++ {
			m.Entries = append(m.Entries, Property{Key: r.str(), Value: r.str()})
		}
		maps = append(maps, m)
	}
	return maps
}

func decodeQuery(body []byte) (*Query, error) {
	r := reader{buf: body}
	features := r.u32()
	p := &Query{
		Offset:  r.u32(),
		Hits:    r.u32(),
		Timeout: time.Duration(r.u32()) * time.Millisecond,
		Flags:   r.u32(),
	}
	p.RankProfile = r.str()
	if features&FeatureProperties != 0 {
		p.Properties = readPropertyMaps(&r)
	}
	if features&FeatureStack != 0 {
		p.Stack = r.strs()
	}
	return p, r.done()
}
