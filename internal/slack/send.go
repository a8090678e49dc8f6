package slack

import (
	"context"
	"encoding/json"
	"net/url"

	logx "slackwire/pkg/logx"
)

// typeMessage is the discriminator value for a plain chat message — the
// only kind the streaming transport carries.
const typeMessage = "message"

// Send routes one outbound message. Adapter defaults are merged in
// first (payload fields win), then the transport is chosen by strict
// precedence: the streaming connection carries the message iff it is
// open, the payload is a plain message, and there are no attachments.
// Everything else goes through the Web API, with attachments serialized
// to their string form because the form-encoded call cannot carry
// nested structure natively.
//
// On the streaming path the returned map is the frame that was written,
// including its assigned id. On the Web API path it is the decoded API
// response.
func (b *Bot) Send(ctx context.Context, endpoint string, payload map[string]any) (map[string]any, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	merged := b.mergeDefaults(payload)
	if _, ok := merged["type"]; !ok {
		merged["type"] = typeMessage
	}

	_, hasAttachments := merged["attachments"]
	conn := b.connection()

	if conn != nil && conn.Open() && merged["type"] == typeMessage && !hasAttachments {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		frame := make(map[string]any, len(merged)+1)
		for k, v := range merged {
			frame[k] = v
		}
		frame["id"] = conn.NextID()
		if err := conn.SendJSON(ctx, frame); err != nil {
			b.met.SendFailed("rtm")
			return nil, err
		}
		b.met.Sent("rtm")
		b.log.Debug("sent via rtm", logx.Any("id", frame["id"]))
		return frame, nil
	}

	resp, err := b.api.Call(ctx, endpoint, b.encodeForm(merged))
	if err != nil {
		b.met.SendFailed("api")
		return nil, err
	}
	b.met.Sent("api")
	return resp, nil
}

// Write is the plain-chat convenience: it wraps text into a message
// payload and delegates to Send. With a live streaming connection this
// is the low-latency path.
func (b *Bot) Write(ctx context.Context, text string) (map[string]any, error) {
	return b.Send(ctx, "chat.postMessage", map[string]any{
		"text": text,
		"type": typeMessage,
	})
}

// mergeDefaults copies the configured defaults and lays the payload on
// top. Neither input map is mutated.
func (b *Bot) mergeDefaults(payload map[string]any) map[string]any {
	merged := make(map[string]any, len(b.cfg.Defaults)+len(payload))
	for k, v := range b.cfg.Defaults {
		merged[k] = v
	}
	for k, v := range payload {
		merged[k] = v
	}
	return merged
}

// encodeForm flattens a payload for the form-encoded call: strings pass
// through, everything else (attachments included) is JSON-serialized.
// The token is added unless the payload already carries one.
func (b *Bot) encodeForm(payload map[string]any) url.Values {
	form := url.Values{}
	for k, v := range payload {
		switch s := v.(type) {
		case string:
			form.Set(k, s)
		default:
			enc, err := json.Marshal(v)
			if err != nil {
				// Unencodable values (channels, funcs) should never
				// reach a payload; drop the field rather than the call.
				b.log.Warn("dropping unencodable payload field", logx.String("key", k), logx.Err(err))
				continue
			}
			form.Set(k, string(enc))
		}
	}
	if form.Get("token") == "" && b.cfg.Token != "" {
		form.Set("token", b.cfg.Token)
	}
	return form
}
