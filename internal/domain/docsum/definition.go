// Package docsum describes document databases, their summary classes and
// rank profiles, and decodes summary payloads returned by backends.
package docsum

import (
	"fmt"

	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
)

// FieldType is the wire type of a summary field.
type FieldType string

// Supported summary field types.
const (
	String     FieldType = "string"
	LongString FieldType = "longstring"
	Byte       FieldType = "byte"
	Short      FieldType = "short"
	Integer    FieldType = "integer"
	Int64      FieldType = "int64"
	Float      FieldType = "float"
	Double     FieldType = "double"
)

// ParseFieldType validates a field type name.
func ParseFieldType(s string) (FieldType, error) {
	switch t := FieldType(s); t {
	case String, LongString, Byte, Short, Integer, Int64, Float, Double:
		return t, nil
	default:
		return "", fmt.Errorf("unknown summary field type %q", s)
	}
}

// Field is one named field of a summary class.
type Field struct {
	Name string
	Type FieldType
}

// Definition is a summary class.
type Definition struct {
	ID      uint32
	Name    string
	Dynamic bool // generated per query (e.g. snippets)
	Fields  []Field
}

// RankProfile is the part of a ranking profile the dispatch layer cares about.
type RankProfile struct {
	Name               string
	HasSummaryFeatures bool
}

// Database is one document database known to the backends.
type Database struct {
	name     string
	classes  map[string]Definition
	byID     map[uint32]Definition
	profiles map[string]RankProfile
}

// NewDatabase creates a database description.
func NewDatabase(name string, defs []Definition, profiles []RankProfile) *Database {
	d := &Database{
		name:     name,
		classes:  make(map[string]Definition, len(defs)),
		byID:     make(map[uint32]Definition, len(defs)),
		profiles: make(map[string]RankProfile, len(profiles)),
	}
	for _, def := range defs {
		d.classes[def.Name] = def
		d.byID[def.ID] = def
	}
	for _, p := range profiles {
		d.profiles[p.Name] = p
	}
	return d
}

// Name returns the document type name.
func (d *Database) Name() string { return d.name }

// Definition returns the summary class named class.
func (d *Database) Definition(class string) (Definition, bool) {
	def, ok := d.classes[class]
	return def, ok
}

// DefinitionByID returns the summary class with the given id.
func (d *Database) DefinitionByID(id uint32) (Definition, bool) {
	def, ok := d.byID[id]
	return def, ok
}

// RankProfile returns the rank profile named name.
func (d *Database) RankProfile(name string) (RankProfile, bool) {
	p, ok := d.profiles[name]
	return p, ok
}

// Set is every document database served by a cluster.
type Set struct {
	dbs    []*Database
	byName map[string]*Database
}

// NewSet creates a set. The first database is the default one.
func NewSet(dbs ...*Database) *Set {
	s := &Set{dbs: dbs, byName: make(map[string]*Database, len(dbs))}
	for _, d := range dbs {
		s.byName[d.Name()] = d
	}
	return s
}

// ForQuery picks the database a query targets: the restricted type when the
// query is restricted to exactly one known type, otherwise the default.
func (s *Set) ForQuery(q *query.Query) *Database {
	if len(q.Restrict) == 1 {
		if d, ok := s.byName[q.Restrict[0]]; ok {
			return d
		}
	}
	if len(s.dbs) > 0 {
		return s.dbs[0]
	}
	return NewDatabase("", nil, nil)
}
