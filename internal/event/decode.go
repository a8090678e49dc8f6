package event

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// payloadKey holds interactive-callback data as stringified JSON on the
// wire; the decoder unwraps it in place.
const payloadKey = "payload"

// DecodeError reports input that could not be normalized into a Record:
// a body that is neither JSON nor form-encoded, or a payload field whose
// nested JSON does not parse. Decoding fails hard rather than passing
// unparsed text downstream.
type DecodeError struct {
	Stage string // "body" or "payload"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("event: decode %s: %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode turns raw inbound bytes into a Record. JSON is tried first; on
// failure the body is parsed as application/x-www-form-urlencoded. A body
// that is neither is a *DecodeError. Decoding is pure: no dispatch
// happens here.
func Decode(raw []byte) (Record, error) {
	body := strings.TrimSpace(string(raw))

	var m map[string]any
	jsonErr := json.Unmarshal([]byte(body), &m)
	if jsonErr == nil {
		return Canonicalize(m)
	}

	// Require at least one k=v pair before accepting the form
	// interpretation; url.ParseQuery happily "parses" arbitrary prose
	// into a single valueless key.
	if !strings.Contains(body, "=") {
		return nil, &DecodeError{Stage: "body", Err: jsonErr}
	}
	values, err := url.ParseQuery(body)
	if err != nil {
		return nil, &DecodeError{Stage: "body", Err: err}
	}

	m = make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			m[k] = vs[0]
		}
	}
	return Canonicalize(m)
}

// Canonicalize applies the payload-unwrap rule to an already structured
// message: a string "payload" field is replaced by its parsed JSON
// object. The input map is not mutated; when a replacement is needed the
// returned Record is a shallow copy.
func Canonicalize(m map[string]any) (Record, error) {
	s, ok := m[payloadKey].(string)
	if !ok {
		return Record(m), nil
	}

	var nested map[string]any
	if err := json.Unmarshal([]byte(s), &nested); err != nil {
		return nil, &DecodeError{Stage: "payload", Err: err}
	}

	out := make(Record, len(m))
	for k, v := range m {
		out[k] = v
	}
	out[payloadKey] = nested
	return out, nil
}
