package query

import (
	"strconv"
	"strings"
)

// Property names consumed by the dispatch layer.
const (
	PropDispatchDirect      = "dispatch.direct"
	PropDispatchSummaries   = "dispatch.summaries"
	PropDispatchCompression = "dispatch.compression"
	PropCompressionLimit    = "packetcompressionlimit"
	PropCompressionType     = "packetcompressiontype"
	PropRankFeatures        = "rankfeatures"
	PropNoCache             = "nocache"
)

// Properties is the free-form property bag of a query.
type Properties map[string]string

// Set stores a property value.
func (p Properties) Set(name, value string) {
	p[name] = value
}

// Lookup returns the raw value and whether it was present.
func (p Properties) Lookup(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

// String returns the property value or def when absent.
func (p Properties) String(name, def string) string {
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Bool returns the property as a boolean. Absent or unparsable values give def.
func (p Properties) Bool(name string, def bool) bool {
	v, ok := p[name]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

// Int returns the property as an integer. Absent or unparsable values give def.
func (p Properties) Int(name string, def int) int {
	v, ok := p[name]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}
