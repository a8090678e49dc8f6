package dispatch

import (
	"sync"
	"testing"

	"slackwire/internal/event"
	logx "slackwire/pkg/logx"
)

func newTestDispatcher() *Dispatcher {
	return New(NewRegistry(), logx.Nop(), nil)
}

func TestDigestReturnsRecordWithoutListeners(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()
	rec, err := d.Digest([]byte(`{"type":"presence_change"}`))
	if err != nil {
		t.Fatalf("Digest error: %v", err)
	}
	if rec.String("type") != "presence_change" {
		t.Fatalf("type = %q", rec.String("type"))
	}
}

func TestIndependentKeysAllFire(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	counts := map[string]int{}
	var mu sync.Mutex
	count := func(name string) Handler {
		return func(event.Record) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		}
	}

	d.Registry().Add(count("command"), "/foo")
	d.Registry().Add(count("event"), "bar")
	d.Registry().Add(count("wildcard"), Wildcard)

	if _, err := d.Digest([]byte(`{"command":"/foo","event":{"type":"bar"}}`)); err != nil {
		t.Fatalf("Digest error: %v", err)
	}

	for _, name := range []string{"command", "event", "wildcard"} {
		if counts[name] != 1 {
			t.Fatalf("%s fired %d times, want 1", name, counts[name])
		}
	}
}

func TestMultiKeyRegistration(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	fired := 0
	d.Registry().Add(func(event.Record) { fired++ }, "a", "b")

	// "type":"a" matches only key a.
	if _, err := d.Digest([]byte(`{"type":"a"}`)); err != nil {
		t.Fatal(err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d after first digest, want 1", fired)
	}

	// command b matches only key b.
	if _, err := d.Digest([]byte(`{"command":"b"}`)); err != nil {
		t.Fatal(err)
	}
	if fired != 2 {
		t.Fatalf("fired = %d after second digest, want 2", fired)
	}

	// One record matching both keys fires the handler twice.
	if _, err := d.Digest([]byte(`{"type":"a","command":"b"}`)); err != nil {
		t.Fatal(err)
	}
	if fired != 4 {
		t.Fatalf("fired = %d after third digest, want 4", fired)
	}
}

func TestCallbackIDClassification(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	var got event.Record
	d.Registry().Add(func(rec event.Record) { got = rec }, "order_confirm")

	rec, err := d.Digest([]byte(`{"payload":"{\"callback_id\":\"order_confirm\",\"actions\":[]}"}`))
	if err != nil {
		t.Fatalf("Digest error: %v", err)
	}
	if got == nil {
		t.Fatal("callback listener did not fire")
	}
	// The listener sees the entire record, not the payload sub-field.
	if _, ok := got.Object("payload"); !ok {
		t.Fatal("listener did not receive the full record")
	}
	if len(got) != len(rec) {
		t.Fatalf("listener record len = %d, digest result len = %d", len(got), len(rec))
	}
}

func TestTriggerWordClassification(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	fired := false
	d.Registry().Add(func(event.Record) { fired = true }, "deploy")

	if _, err := d.Digest([]byte(`{"trigger_word":"deploy","text":"deploy now"}`)); err != nil {
		t.Fatal(err)
	}
	if !fired {
		t.Fatal("trigger_word listener did not fire")
	}
}

func TestRegistrationOrderPreserved(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	var order []int
	for i := 0; i < 5; i++ {
		i := i
		d.Registry().Add(func(event.Record) { order = append(order, i) }, "message")
	}

	if _, err := d.Digest([]byte(`{"type":"message"}`)); err != nil {
		t.Fatal(err)
	}
	for i, got := range order {
		if got != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	fired := false
	d.Registry().Add(func(event.Record) { panic("listener bug") }, "message")
	d.Registry().Add(func(event.Record) { fired = true }, "message")

	if _, err := d.Digest([]byte(`{"type":"message"}`)); err != nil {
		t.Fatalf("Digest error: %v", err)
	}
	if !fired {
		t.Fatal("listener after the panicking one did not fire")
	}
}

func TestDecodeFailureNotifiesNobody(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	fired := false
	d.Registry().Add(func(event.Record) { fired = true }, Wildcard)

	if _, err := d.Digest([]byte(`{"payload":"{broken"}`)); err == nil {
		t.Fatal("expected decode error")
	}
	if fired {
		t.Fatal("wildcard listener fired for an undecodable message")
	}
}

func TestDigestRecordStructuredInput(t *testing.T) {
	t.Parallel()
	d := newTestDispatcher()

	fired := false
	d.Registry().Add(func(event.Record) { fired = true }, "slash_command")

	rec, err := d.DigestRecord(map[string]any{"type": "slash_command", "user": "U1"})
	if err != nil {
		t.Fatalf("DigestRecord error: %v", err)
	}
	if !fired {
		t.Fatal("listener did not fire for structured input")
	}
	if rec.String("user") != "U1" {
		t.Fatal("record fields were not passed through")
	}
}
