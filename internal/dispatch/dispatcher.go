package dispatch

import (
	"sync"

	logx "slackwire/pkg/logx"

	"slackwire/internal/event"
	"slackwire/internal/metrics"
)

// Dispatcher decodes inbound messages and notifies every listener group
// whose key the record matches. Classification keys are independent:
// a record carrying both a command and an event notifies both groups,
// each with the full record.
type Dispatcher struct {
	reg *Registry
	log logx.Logger
	met *metrics.Set

	// mu serializes fan-out so two digests never interleave their
	// listener invocations.
	mu sync.Mutex
}

func New(reg *Registry, log logx.Logger, met *metrics.Set) *Dispatcher {
	if reg == nil {
		reg = NewRegistry()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{reg: reg, log: log, met: met}
}

// Registry exposes the dispatcher's listener registry for registration.
func (d *Dispatcher) Registry() *Registry { return d.reg }

// Digest decodes raw bytes and fans the record out. The decoded record
// is returned whether or not any listener matched; a decode failure
// returns the error without notifying anyone.
func (d *Dispatcher) Digest(raw []byte) (event.Record, error) {
	rec, err := event.Decode(raw)
	if err != nil {
		d.met.DecodeFailure()
		return nil, err
	}
	d.fanOut(rec)
	return rec, nil
}

// DigestRecord is Digest for input that is already structured. The
// payload-unwrap rule still applies.
func (d *Dispatcher) DigestRecord(m map[string]any) (event.Record, error) {
	rec, err := event.Canonicalize(m)
	if err != nil {
		d.met.DecodeFailure()
		return nil, err
	}
	d.fanOut(rec)
	return rec, nil
}

// fanOut runs every classification check; all that match fire. This is
// not an exclusive switch.
func (d *Dispatcher) fanOut(rec event.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.notify(Wildcard, "wildcard", rec)

	if p, ok := rec.Object("payload"); ok {
		if id := p.String("callback_id"); id != "" {
			d.notify(id, "callback", rec)
		}
	}
	if t := rec.String("type"); t != "" {
		d.notify(t, "type", rec)
	}
	if c := rec.String("command"); c != "" {
		d.notify(c, "command", rec)
	}
	if ev, ok := rec.Object("event"); ok {
		if t := ev.String("type"); t != "" {
			d.notify(t, "event", rec)
		}
	}
	if w := rec.String("trigger_word"); w != "" {
		d.notify(w, "trigger", rec)
	}
}

func (d *Dispatcher) notify(key, kind string, rec event.Record) {
	hs := d.reg.handlersFor(key)
	if len(hs) == 0 {
		return
	}
	d.met.DigestedKind(kind)
	for _, h := range hs {
		d.invoke(key, h, rec)
	}
}

// invoke isolates one listener call: a panicking listener is logged and
// counted, and the remaining listeners still fire.
func (d *Dispatcher) invoke(key string, h Handler, rec event.Record) {
	defer func() {
		if r := recover(); r != nil {
			d.met.ListenerPanic()
			d.log.Error("listener panicked",
				logx.String("key", key),
				logx.Any("panic", r),
				logx.Stack(logx.StackTrace(3, 16)),
			)
		}
	}()
	h(rec)
}
