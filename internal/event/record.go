// Package event defines the canonical record produced by decoding an
// inbound notification, and the decoder that produces it.
package event

// Record is the normalized form of one inbound notification. Keys the
// dispatcher classifies on: "type", "command", "trigger_word",
// "event" (object with a "type" field) and "payload" (object with a
// "callback_id" field). Everything else passes through untouched.
type Record map[string]any

// String returns the value under key if it is a string, else "".
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Object returns the value under key if it is a JSON object.
func (r Record) Object(key string) (Record, bool) {
	switch v := r[key].(type) {
	case Record:
		return v, true
	case map[string]any:
		return Record(v), true
	default:
		return nil, false
	}
}

// Has reports whether key is present at all.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}
