package encoding

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegotiateContentType(t *testing.T) {
	tests := []struct {
		name         string
		acceptHeader string
		expectedType string
	}{
		{name: "empty accept defaults to JSON", acceptHeader: "", expectedType: ContentTypeJSON},
		{name: "explicit msgpack", acceptHeader: "application/msgpack", expectedType: ContentTypeMsgpack},
		{name: "x-msgpack alias", acceptHeader: "application/x-msgpack", expectedType: ContentTypeMsgpack},
		{name: "explicit JSON", acceptHeader: "application/json", expectedType: ContentTypeJSON},
		{name: "wildcard defaults to JSON", acceptHeader: "*/*", expectedType: ContentTypeJSON},
		{name: "both at equal quality", acceptHeader: "application/json, application/msgpack", expectedType: ContentTypeMsgpack},
		{name: "msgpack preferred by quality", acceptHeader: "application/json;q=0.9, application/msgpack;q=1.0", expectedType: ContentTypeMsgpack},
		{name: "JSON preferred by quality", acceptHeader: "application/json, application/msgpack;q=0.5", expectedType: ContentTypeJSON},
		{name: "msgpack refused", acceptHeader: "application/msgpack;q=0", expectedType: ContentTypeJSON},
		{name: "unknown type defaults to JSON", acceptHeader: "application/xml", expectedType: ContentTypeJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.acceptHeader != "" {
				req.Header.Set("Accept", tt.acceptHeader)
			}
			assert.Equal(t, tt.expectedType, NegotiateContentType(req))
		})
	}
}

type sample struct {
	Name   string    `json:"name"`
	Score  float64   `json:"score"`
	Tags   []string  `json:"tags,omitempty"`
	Nested *sample   `json:"nested,omitempty"`
	Vector []float32 `json:"-"`
}

func TestWriteMsgpack_SetsHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteMsgpack(w, http.StatusAccepted, sample{Name: "a"}))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, ContentTypeMsgpack, w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())
}

func TestEncodeDecode_UsesJSONTags(t *testing.T) {
	in := sample{
		Name:   "lighthouse at dusk",
		Score:  0.82,
		Tags:   []string{"refined"},
		Nested: &sample{Name: "inner"},
		Vector: []float32{1, 2},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, in))

	var generic map[string]any
	require.NoError(t, Decode(bytes.NewReader(buf.Bytes()), &generic))
	assert.Contains(t, generic, "name")
	assert.Contains(t, generic, "score")
	assert.NotContains(t, generic, "Vector")

	var out sample
	require.NoError(t, Decode(bytes.NewReader(buf.Bytes()), &out))
	assert.Equal(t, in.Name, out.Name)
	assert.InDelta(t, in.Score, out.Score, 1e-9)
	assert.Equal(t, in.Tags, out.Tags)
	require.NotNil(t, out.Nested)
	assert.Equal(t, "inner", out.Nested.Name)
	assert.Nil(t, out.Vector)
}

func TestReadMsgpack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sample{Name: "test", Score: 1}))

	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Type", ContentTypeMsgpack)

	var out sample
	require.NoError(t, ReadMsgpack(req, &out))
	assert.Equal(t, "test", out.Name)
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"}))

	assert.Equal(t, ContentTypeJSON, w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
