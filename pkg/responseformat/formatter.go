// Package responseformat encodes API responses and exports as JSON or
// MessagePack.
package responseformat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/vmihailenco/msgpack/v5"
)

// Format names an output encoding.
type Format string

const (
	JSON    Format = "json"
	MsgPack Format = "msgpack"
)

// ParseFormat maps a format name to a Format. The empty string is JSON.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json or msgpack)", s)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == MsgPack {
		return "application/x-msgpack"
	}
	return "application/json"
}

// Encode writes data to w in format f. MessagePack output uses the json
// struct tags so both encodings share field names.
func Encode(w io.Writer, f Format, data any) error {
	if f == MsgPack {
		encoder := msgpack.NewEncoder(w)
		encoder.SetCustomStructTag("json")
		return encoder.Encode(data)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// Formatter handles encoding and writing responses in JSON or MessagePack format
type Formatter struct{}

// NewFormatter creates a new response formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// RequestFormat picks the format from the request's format query parameter.
// Unknown values fall back to JSON.
func RequestFormat(req *http.Request) Format {
	if req.URL.Query().Get("format") == "msgpack" {
		return MsgPack
	}
	return JSON
}

// WriteResponse writes data with status 200 in the format the request asks for.
func (f *Formatter) WriteResponse(w http.ResponseWriter, req *http.Request, data any, headers map[string]string) error {
	return f.WriteStatus(w, req, http.StatusOK, data, headers)
}

// WriteStatus writes data with the given status code.
func (f *Formatter) WriteStatus(w http.ResponseWriter, req *http.Request, status int, data any, headers map[string]string) error {
	for k, v := range headers {
		w.Header().Set(k, v)
	}
	format := RequestFormat(req)
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(status)
	return Encode(w, format, data)
}

// ErrorBody is the payload of an error response.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteError writes an error payload with the given status code.
func (f *Formatter) WriteError(w http.ResponseWriter, req *http.Request, status int, msg string) error {
	return f.WriteStatus(w, req, status, ErrorBody{Error: msg}, nil)
}
