package remotesync

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Response status values.
const (
	StatusOK = "ok"
	StatusKO = "ko"
)

// ErrFieldMissing is returned by Decode when the payload has no such field.
var ErrFieldMissing = errors.New("remotesync: field missing")

// Response is the structured body returned for a serialized location.
//
// Status, Callback and RespMsg are the envelope; every other top-level key
// is kept raw in Fields for the handler that consumes it.
type Response struct {
	Status   string
	Callback string
	RespMsg  string
	Fields   map[string]json.RawMessage
}

// OK reports whether the server accepted the request.
func (r *Response) OK() bool {
	return r != nil && r.Status == StatusOK
}

// Has reports whether the payload carries field.
func (r *Response) Has(field string) bool {
	_, ok := r.Fields[field]
	return ok
}

// Decode unmarshals a payload field into dest.
func (r *Response) Decode(field string, dest any) error {
	raw, ok := r.Fields[field]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFieldMissing, field)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("remotesync: decode %s: %w", field, err)
	}
	return nil
}

// String returns a payload field as a string, or "" when absent or not a
// JSON string.
func (r *Response) String(field string) string {
	var s string
	if err := r.Decode(field, &s); err != nil {
		return ""
	}
	return s
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	envelope := map[string]*string{
		"status":   &r.Status,
		"callback": &r.Callback,
		"respmsg":  &r.RespMsg,
	}
	r.Fields = make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		dst, ok := envelope[k]
		if !ok {
			r.Fields[k] = v
			continue
		}
		if string(v) == "null" {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("envelope field %s: %w", k, err)
		}
	}
	return nil
}

func (r Response) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+3)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["status"] = r.Status
	if r.Callback != "" {
		out["callback"] = r.Callback
	}
	if r.RespMsg != "" {
		out["respmsg"] = r.RespMsg
	}
	return json.Marshal(out)
}
