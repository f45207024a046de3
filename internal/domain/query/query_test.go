package query

import (
	"strings"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	q := New("foo", "bar")
	if q.Hits != DefaultHits {
		t.Errorf("expected hits %d, got %d", DefaultHits, q.Hits)
	}
	if q.Timeout != DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", DefaultTimeout, q.Timeout)
	}
	if q.Ranking.Profile != DefaultRankProfile {
		t.Errorf("expected profile %q, got %q", DefaultRankProfile, q.Ranking.Profile)
	}
	if q.IsNull() {
		t.Error("query with terms must not be null")
	}
	if !New().IsNull() {
		t.Error("query without terms must be null")
	}
}

func TestTimeLeft(t *testing.T) {
	q := New("foo")
	q.Timeout = 0
	if q.TimeLeft() > 0 {
		t.Errorf("expected expired budget, got %v", q.TimeLeft())
	}
	q.Timeout = time.Hour
	if q.TimeLeft() <= 59*time.Minute {
		t.Errorf("expected nearly an hour left, got %v", q.TimeLeft())
	}
}

func TestSessionID_Stable(t *testing.T) {
	q := New("foo")
	id := q.SessionID()
	if !strings.HasPrefix(id, "qrserver.") {
		t.Errorf("unexpected session id %q", id)
	}
	if q.SessionID() != id {
		t.Error("session id must be stable for one query")
	}
	if New("foo").SessionID() == id {
		t.Error("session ids must differ between queries")
	}
}

func TestTrace_RespectsLevel(t *testing.T) {
	q := New("foo")
	q.TraceLevel = 2
	q.Trace(1, "one")
	q.Trace(2, "two ", 2)
	q.Trace(3, "three")

	log := q.TraceLog()
	if len(log) != 2 {
		t.Fatalf("expected 2 trace entries, got %d: %v", len(log), log)
	}
	if log[1] != "two 2" {
		t.Errorf("unexpected trace entry %q", log[1])
	}
}

func TestProperties(t *testing.T) {
	p := Properties{}
	p.Set(PropDispatchDirect, "true")
	p.Set(PropCompressionLimit, " 128 ")
	p.Set("broken", "maybe")

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"bool set", p.Bool(PropDispatchDirect, false), true},
		{"bool default", p.Bool(PropDispatchSummaries, false), false},
		{"bool unparsable", p.Bool("broken", true), true},
		{"int", p.Int(PropCompressionLimit, 0), 128},
		{"int default", p.Int("missing", 7), 7},
		{"string default", p.String(PropDispatchCompression, "lz4"), "lz4"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %v, want %v", tc.got, tc.want)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2016, 8, 16, 12, 30, 0, 0, time.UTC)
	if got := FormatTimestamp(ts, time.FixedZone("GMT", 0)); got != "2016-08-16 12:30:00 GMT" {
		t.Errorf("unexpected timestamp %q", got)
	}
	if got := FormatTimestamp(ts, nil); got != "2016-08-16 12:30:00 UTC" {
		t.Errorf("unexpected timestamp %q", got)
	}
}
