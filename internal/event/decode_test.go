package event

import (
	"errors"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	t.Parallel()
	rec, err := Decode([]byte(`{"type":"message","text":"hi","event_ts":"123.45"}`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if rec.String("type") != "message" {
		t.Fatalf("type = %q, want message", rec.String("type"))
	}
	if rec.String("text") != "hi" {
		t.Fatalf("text = %q, want hi", rec.String("text"))
	}
	if rec.String("event_ts") != "123.45" {
		t.Fatalf("event_ts = %q, want 123.45", rec.String("event_ts"))
	}
}

func TestDecodeForm(t *testing.T) {
	t.Parallel()
	rec, err := Decode([]byte(`command=%2Fdeploy&text=prod&trigger_word=deploy`))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if rec.String("command") != "/deploy" {
		t.Fatalf("command = %q, want /deploy", rec.String("command"))
	}
	if rec.String("trigger_word") != "deploy" {
		t.Fatalf("trigger_word = %q, want deploy", rec.String("trigger_word"))
	}
}

func TestDecodePayloadUnwrap(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
	}{
		{name: "json body", raw: `{"payload":"{\"callback_id\":\"order_confirm\",\"value\":7}"}`},
		{name: "form body", raw: `payload=%7B%22callback_id%22%3A%22order_confirm%22%2C%22value%22%3A7%7D`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Decode([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			p, ok := rec.Object("payload")
			if !ok {
				t.Fatalf("payload is %T, want object", rec["payload"])
			}
			if p.String("callback_id") != "order_confirm" {
				t.Fatalf("callback_id = %q", p.String("callback_id"))
			}
		})
	}
}

func TestDecodeMalformedPayloadFailsHard(t *testing.T) {
	t.Parallel()
	_, err := Decode([]byte(`{"payload":"{not json"}`))
	if err == nil {
		t.Fatal("expected error for malformed payload")
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error type = %T, want *DecodeError", err)
	}
	if de.Stage != "payload" {
		t.Fatalf("stage = %q, want payload", de.Stage)
	}
}

func TestDecodeUnparseableBody(t *testing.T) {
	t.Parallel()
	_, err := Decode([]byte(`this is not json and not a form`))
	if err == nil {
		t.Fatal("expected error for unparseable body")
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("error type = %T, want *DecodeError", err)
	}
	if de.Stage != "body" {
		t.Fatalf("stage = %q, want body", de.Stage)
	}
}

func TestCanonicalizePassThrough(t *testing.T) {
	t.Parallel()
	in := map[string]any{"type": "message", "channel": "C1", "n": 3.0}
	rec, err := Canonicalize(in)
	if err != nil {
		t.Fatalf("Canonicalize error: %v", err)
	}
	if len(rec) != len(in) {
		t.Fatalf("len = %d, want %d", len(rec), len(in))
	}
	for k, v := range in {
		if rec[k] != v {
			t.Fatalf("key %q = %v, want %v", k, rec[k], v)
		}
	}
}

func TestCanonicalizeDoesNotMutateInput(t *testing.T) {
	t.Parallel()
	in := map[string]any{"payload": `{"callback_id":"x"}`}
	rec, err := Canonicalize(in)
	if err != nil {
		t.Fatalf("Canonicalize error: %v", err)
	}
	if _, stillString := in["payload"].(string); !stillString {
		t.Fatal("input map was mutated")
	}
	if _, ok := rec.Object("payload"); !ok {
		t.Fatal("returned record did not unwrap payload")
	}
}

func TestCanonicalizeNonObjectPayload(t *testing.T) {
	t.Parallel()
	// A payload that parses as JSON but not as an object is still a
	// decode failure: downstream classification needs payload.callback_id.
	_, err := Canonicalize(map[string]any{"payload": `42`})
	if err == nil {
		t.Fatal("expected error for non-object payload")
	}
}
