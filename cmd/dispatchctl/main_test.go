package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/fastdispatch/internal/domain/hit"
	"github.com/kailas-cloud/fastdispatch/internal/domain/query"
	"github.com/kailas-cloud/fastdispatch/internal/domain/result"
)

const staticConfig = `
http:
  port: 8090
dispatch:
  backend:
    host: localhost
    port: 19100
topology:
  source: static
  nodes:
    - { host: search1, port: 19110 }
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(staticConfig), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "fastdispatch dev (commit unknown, built unknown)\n", out)

	out, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "dev\n", out)
}

func TestSearch_RequiresTerms(t *testing.T) {
	_, err := execute(t, "search")
	require.Error(t, err)
}

func TestNodeAdd_InvalidPort(t *testing.T) {
	_, err := execute(t, "node", "add", "search3", "http")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid port "http"`)
}

func TestNodeAdd_StaticTopology(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "--env", "local", "node", "add", "search3", "19110")
	require.ErrorIs(t, err, errStaticTopology)
}

func TestNodeList_Static(t *testing.T) {
	out, err := execute(t, "--config", writeConfig(t), "--env", "local", "node", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "HOST")
	assert.Contains(t, out, "search1")
	assert.Contains(t, out, "19110")
}

func TestSearchOptions_Query(t *testing.T) {
	so := &searchOptions{
		offset:     20,
		hits:       5,
		timeout:    300 * time.Millisecond,
		summary:    "snippets",
		profile:    "features",
		restrict:   []string{"music"},
		properties: map[string]string{"dispatch.compression": "none"},
		traceLevel: 3,
		noCache:    true,
	}
	q := so.query([]string{"kind", "of", "blue"})

	assert.Equal(t, []string{"kind", "of", "blue"}, q.Terms)
	assert.Equal(t, 20, q.Offset)
	assert.Equal(t, 5, q.Hits)
	assert.Equal(t, 300*time.Millisecond, q.Timeout)
	assert.Equal(t, "snippets", q.Presentation.Summary)
	assert.Equal(t, "features", q.Ranking.Profile)
	assert.Equal(t, []string{"music"}, q.Restrict)
	assert.Equal(t, "none", q.Properties.String("dispatch.compression", ""))
	assert.Equal(t, 3, q.TraceLevel)
	assert.True(t, q.NoCache)
}

func sampleResult() (*result.Result, *query.Query) {
	q := query.New("blue")
	q.Offset = 10
	r := result.New(q)
	r.SetTotalHitCount(42)
	h := hit.New(hit.GlobalID{7}, 0, 1, 12.5, "dispatch")
	h.SetField("title", "Blue in Green")
	h.SetField("year", int32(1959))
	r.Add(h)
	r.AddError(result.NewEmptyDocsums("Missing hit data for summary 'default' for 1 hits"))
	return r, q
}

func TestPrintResult_Table(t *testing.T) {
	r, q := sampleResult()
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, r, q, false))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "total hits: 42 (cached: false)\n"), out)
	assert.Contains(t, out, "title=Blue in Green year=1959")
	assert.Contains(t, out, "12.500")
	assert.Contains(t, out, "\n11 ")
	assert.Contains(t, out, "error: ")
}

func TestPrintResult_JSON(t *testing.T) {
	r, q := sampleResult()
	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, r, q, true))

	var v resultView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &v))
	require.Len(t, v.Hits, 1)
	assert.Equal(t, uint64(42), v.TotalHits)
	assert.Equal(t, 11, v.Hits[0].Rank)
	assert.Equal(t, "Blue in Green", v.Hits[0].Fields["title"])
	assert.Len(t, v.Errors, 1)
}

func TestFormatFields_Empty(t *testing.T) {
	assert.Equal(t, "-", formatFields(nil))
}
