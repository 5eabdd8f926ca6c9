package mockserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	dec := json.NewDecoder(rec.Body)
	dec.UseNumber()
	require.NoError(t, dec.Decode(&out))
	return out
}

func lines(rec *httptest.ResponseRecorder) []string {
	var out []string
	for _, l := range strings.Split(rec.Body.String(), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func TestPutGetDelete(t *testing.T) {
	s := New(Options{FlushEvery: 1})

	rec := do(t, s, http.MethodPost, "/1.0/events/put",
		`{"namespace":null,"events":{"clicks":[{"@time":30,"v":3},{"@time":10,"v":1},{"@time":20,"v":2}]}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeJSON(t, rec)
	assert.Equal(t, true, body["@success"])
	assert.Equal(t, json.Number("3"), body["clicks"].(map[string]any)["memory"].(map[string]any)["num_inserted"])

	rec = do(t, s, http.MethodPost, "/1.0/events/get",
		`{"namespace":null,"stream":"clicks","start_time":10,"end_time":20,"order":"ascending"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := lines(rec)
	require.Len(t, got, 2, "time range is inclusive on both ends")
	assert.Contains(t, got[0], `"v":1`)
	assert.Contains(t, got[1], `"v":2`)

	rec = do(t, s, http.MethodPost, "/1.0/events/get",
		`{"stream":"clicks","start_time":0,"end_time":100,"order":"descending","limit":2}`)
	got = lines(rec)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], `"v":3`)
	assert.Contains(t, got[1], `"v":2`)

	rec = do(t, s, http.MethodPost, "/1.0/events/delete",
		`{"namespace":"kronos","stream":"clicks","start_time":0,"end_time":15}`)
	body = decodeJSON(t, rec)
	assert.Equal(t, json.Number("1"), body["clicks"].(map[string]any)["memory"].(map[string]any)["num_deleted"])
	assert.Len(t, s.Store().Retrieve(DefaultNamespace, "clicks", Query{EndTime: 100}), 2)
}

func TestStartIDIsExclusive(t *testing.T) {
	s := New(Options{})
	for i := 1; i <= 4; i++ {
		n, errs := s.Store().Insert("ns", "ids", []map[string]any{{"@time": json.Number(strings.Repeat("1", i))}})
		require.Equal(t, 1, n)
		require.Empty(t, errs)
	}
	all := s.Store().Retrieve("ns", "ids", Query{EndTime: maxTicks})
	require.Len(t, all, 4)
	cursor := all[1]["@id"].(string)

	rest := s.Store().Retrieve("ns", "ids", Query{StartID: cursor, EndTime: maxTicks})
	require.Len(t, rest, 2)
	assert.Equal(t, all[2]["@id"], rest[0]["@id"])

	// The cursor bounds descending reads too.
	desc := s.Store().Retrieve("ns", "ids", Query{StartID: cursor, EndTime: maxTicks, Descending: true})
	require.Len(t, desc, 2)
	assert.Equal(t, all[3]["@id"], desc[0]["@id"])
}

func TestPutRejectsMissingTime(t *testing.T) {
	s := New(Options{})
	rec := do(t, s, http.MethodPost, "/1.0/events/put", `{"events":{"x":[{"v":1}]}}`)
	body := decodeJSON(t, rec)
	assert.Equal(t, false, body["@success"])
	assert.NotEmpty(t, body["@errors"])
}

func TestStreamsListing(t *testing.T) {
	s := New(Options{})
	s.Store().Insert(DefaultNamespace, "b", []map[string]any{{"@time": 1}})
	s.Store().Insert(DefaultNamespace, "a", []map[string]any{{"@time": 1}})
	s.Store().Insert("other", "c", []map[string]any{{"@time": 1}})

	rec := do(t, s, http.MethodPost, "/1.0/streams", `{"namespace":null}`)
	assert.Equal(t, "a\r\nb\r\n", rec.Body.String())
}

func TestBadRequests(t *testing.T) {
	s := New(Options{})
	for _, body := range []string{
		`{"stream":"x","start_time":0}`,
		`{"end_time":1,"start_time":0}`,
		`{"stream":"x","end_time":1}`,
		`{"stream":"x","end_time":1,"start_time":0,"order":"sideways"}`,
		`not json`,
	} {
		rec := do(t, s, http.MethodPost, "/1.0/events/get", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestFailNext(t *testing.T) {
	s := New(Options{})
	s.Faults().FailNext("/1.0/index", 2, http.StatusServiceUnavailable)

	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/1.0/index", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, s, http.MethodGet, "/1.0/index", "").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/1.0/index", "").Code)
	assert.Equal(t, 3, s.Faults().Requests("/1.0/index"))
}

func TestCorruptStream(t *testing.T) {
	s := New(Options{})
	s.Store().Insert(DefaultNamespace, "bad", []map[string]any{{"@time": 1}, {"@time": 2}})
	s.Faults().CorruptStream("bad", 1)

	rec := do(t, s, http.MethodPost, "/1.0/events/get", `{"stream":"bad","start_time":0,"end_time":10}`)
	got := lines(rec)
	require.Len(t, got, 2)
	assert.Equal(t, `{"@id": corrupted`, got[1])
}

func TestCorruptNextWearsOff(t *testing.T) {
	s := New(Options{})
	s.Store().Insert(DefaultNamespace, "flaky", []map[string]any{{"@time": 1}, {"@time": 2}})
	s.Faults().CorruptNext("flaky", 0, 1)

	body := `{"stream":"flaky","start_time":0,"end_time":10}`
	first := lines(do(t, s, http.MethodPost, "/1.0/events/get", body))
	require.Len(t, first, 1)
	assert.Equal(t, `{"@id": corrupted`, first[0])

	second := lines(do(t, s, http.MethodPost, "/1.0/events/get", body))
	assert.Len(t, second, 2)
	assert.Equal(t, 2, s.Faults().Requests("/1.0/events/get"))
}

func TestInferSchemaEndpoint(t *testing.T) {
	s := New(Options{})
	s.Store().Insert(DefaultNamespace, "schema", []map[string]any{
		{"@time": json.Number("1"), "a": json.Number("1")},
		{"@time": json.Number("2"), "a": json.Number("2.3"), "optional": false},
	})
	rec := do(t, s, http.MethodPost, "/1.0/streams/infer_schema", `{"stream":"schema","namespace":null}`)
	body := decodeJSON(t, rec)
	assert.Equal(t, "schema", body["stream"])

	schema := body["schema"].(map[string]any)
	assert.Equal(t, SchemaDraft, schema["$schema"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "string", props["@id"].(map[string]any)["type"])
	assert.Equal(t, "integer", props["@time"].(map[string]any)["type"])
	assert.Equal(t, "number", props["a"].(map[string]any)["type"])
	assert.Equal(t, "boolean", props["optional"].(map[string]any)["type"])
	assert.ElementsMatch(t, []any{"@id", "@time", "a"}, schema["required"])
}
