// Package encoding negotiates and writes JSON or MessagePack bodies.
package encoding

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const ContentTypeMsgpack = "application/msgpack"
const ContentTypeJSON = "application/json"

// NegotiateContentType returns the preferred response type from the
// Accept header. MessagePack wins only when it is listed with a quality at
// least as high as JSON.
func NegotiateContentType(r *http.Request) string {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return ContentTypeJSON
	}

	packQ, jsonQ := -1.0, -1.0
	for _, part := range strings.Split(accept, ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		q := 1.0
		if v, ok := params["q"]; ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				q = parsed
			}
		}
		switch mediaType {
		case ContentTypeMsgpack, "application/x-msgpack":
			packQ = max(packQ, q)
		case ContentTypeJSON, "*/*", "application/*":
			jsonQ = max(jsonQ, q)
		}
	}

	if packQ > 0 && packQ >= jsonQ {
		return ContentTypeMsgpack
	}
	return ContentTypeJSON
}

// Encode writes v as MessagePack to w. Struct fields use their json tags so
// both encodings share one field naming.
func Encode(w io.Writer, v any) error {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	return enc.Encode(v)
}

// Decode reads MessagePack from r into v using json tags.
func Decode(r io.Reader, v any) error {
	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

// WriteMsgpack writes a MessagePack response with the given status code
func WriteMsgpack(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", ContentTypeMsgpack)
	w.WriteHeader(status)
	return Encode(w, data)
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ReadMsgpack reads MessagePack data from the request body
func ReadMsgpack(r *http.Request, target any) error {
	return Decode(r.Body, target)
}
