// Package slack is the adapter core: it owns the listener registry, the
// dispatch pipeline, the session/connection lifecycle, and the
// dual-transport send policy.
package slack

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"

	"slackwire/internal/dispatch"
	"slackwire/internal/event"
	"slackwire/internal/eventbus"
	"slackwire/internal/metrics"
	"slackwire/internal/slack/api"
	"slackwire/internal/slack/rtm"
	logx "slackwire/pkg/logx"
)

type Config struct {
	// Token authenticates every API call and the session bootstrap.
	Token string
	// BaseURL overrides the Web API root (tests, proxies). Empty means
	// the public API.
	BaseURL string
	// Defaults are merged into every outbound payload; explicit payload
	// fields win on conflict.
	Defaults map[string]any
	// RTM tunes the streaming connection.
	RTM rtm.Config
	// MessagesPerSec paces outbound streaming sends. Zero means 1,
	// which is what Slack tolerates sustained.
	MessagesPerSec float64
}

// Identity is the cached snapshot of who the session authenticated as.
type Identity struct {
	ID   string
	Name string
}

// Team is the cached workspace snapshot from the session bootstrap.
type Team struct {
	ID     string
	Name   string
	Domain string
}

// Bot is one adapter instance. Each instance carries its own listener
// registry, defaults, and connection state; two Bots share nothing.
type Bot struct {
	cfg Config
	log logx.Logger

	api  *api.Client
	disp *dispatch.Dispatcher
	bus  eventbus.Bus
	met  *metrics.Set

	limiter *rate.Limiter

	// mu guards the connection reference and the identity snapshot.
	// The session lifecycle writes them; everything else only reads.
	mu   sync.RWMutex
	conn *rtm.Conn
	self Identity
	team Team
}

type Option func(*Bot)

// WithBus publishes lifecycle events (connected, disconnected, session
// started) to b.
func WithBus(b eventbus.Bus) Option {
	return func(bot *Bot) { bot.bus = b }
}

func WithMetrics(m *metrics.Set) Option {
	return func(bot *Bot) { bot.met = m }
}

func New(cfg Config, log logx.Logger, opts ...Option) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{cfg: cfg, log: log}
	for _, o := range opts {
		o(b)
	}

	apiOpts := []api.Option{api.WithLogger(log.With(logx.String("comp", "api")))}
	if cfg.BaseURL != "" {
		apiOpts = append(apiOpts, api.WithBaseURL(cfg.BaseURL))
	}
	b.api = api.New(apiOpts...)

	b.disp = dispatch.New(dispatch.NewRegistry(), log.With(logx.String("comp", "dispatch")), b.met)

	perSec := cfg.MessagesPerSec
	if perSec <= 0 {
		perSec = 1
	}
	b.limiter = rate.NewLimiter(rate.Limit(perSec), 1)

	return b
}

// On binds one handler under every given key; the wildcard key
// dispatch.Wildcard receives every digested record. Returns the Bot for
// chaining:
//
//	bot.On(onMessage, "message").On(onDeploy, "/deploy", "deploy_hook")
func (b *Bot) On(h dispatch.Handler, keys ...string) *Bot {
	b.disp.Registry().Add(h, keys...)
	return b
}

// Digest normalizes raw inbound bytes and fans the record out to every
// matching listener. The decoded record is returned either way.
func (b *Bot) Digest(raw []byte) (event.Record, error) {
	return b.disp.Digest(raw)
}

// DigestRecord is Digest for already structured input.
func (b *Bot) DigestRecord(m map[string]any) (event.Record, error) {
	return b.disp.DigestRecord(m)
}

// API exposes the request/response client for calls outside the send
// policy (channel lookups, user info, ...).
func (b *Bot) API() *api.Client { return b.api }

// Self returns the identity snapshot cached by StartSession.
func (b *Bot) Self() Identity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.self
}

// Team returns the workspace snapshot cached by StartSession.
func (b *Bot) Team() Team {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.team
}

// ConnState reports the streaming connection state; StateAbsent when no
// session has been started (or the last one is gone).
func (b *Bot) ConnState() rtm.State {
	if c := b.connection(); c != nil {
		return c.State()
	}
	return rtm.StateAbsent
}

func (b *Bot) connection() *rtm.Conn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn
}

// StartSession issues the rtm.start bootstrap call, caches the identity
// snapshot, and opens the streaming connection to the returned URL.
// It returns only once the socket is open; inbound frames flow into
// Digest from that point on. There is no automatic reconnect: when the
// connection dies the caller decides whether to start a new session.
func (b *Bot) StartSession(ctx context.Context) error {
	resp, err := b.api.Call(ctx, "rtm.start", url.Values{"token": {b.cfg.Token}})
	if err != nil {
		return fmt.Errorf("slack: session bootstrap: %w", err)
	}
	if ok, _ := resp["ok"].(bool); !ok {
		reason, _ := resp["error"].(string)
		if reason == "" {
			reason = "unknown error"
		}
		return fmt.Errorf("slack: rtm.start refused: %s", reason)
	}
	wsURL, _ := resp["url"].(string)
	if wsURL == "" {
		return fmt.Errorf("slack: rtm.start returned no connection URL")
	}

	self := identityFrom(resp["self"])
	team := teamFrom(resp["team"])

	conn, err := rtm.Dial(ctx, wsURL, b.cfg.RTM, rtm.Handlers{
		OnFrame: b.onFrame,
		OnClose: b.onConnClose,
	}, b.log)
	if err != nil {
		return err
	}

	// Replace the connection wholesale; a previous one, if any, is shut
	// down after the swap.
	b.mu.Lock()
	prev := b.conn
	b.conn = conn
	b.self = self
	b.team = team
	b.mu.Unlock()

	if prev != nil {
		_ = prev.Close(context.Background())
	}

	b.publish(eventbus.KindSessionStarted, self)
	b.publish(eventbus.KindConnected, nil)
	b.log.Info("session started",
		logx.String("self", self.Name),
		logx.String("team", team.Name),
	)
	return nil
}

// Close tears down the streaming connection, if any. Clearing the
// reference is left to onConnClose, which the shutdown fires.
func (b *Bot) Close(ctx context.Context) error {
	conn := b.connection()
	if conn == nil {
		return nil
	}
	return conn.Close(ctx)
}

func (b *Bot) onFrame(data []byte) {
	if _, err := b.disp.Digest(data); err != nil {
		b.log.Warn("inbound frame rejected", logx.Err(err))
	}
}

// onConnClose clears the connection reference only if the closed
// connection is still the current one. A session restarted over a live
// session closes the replaced connection after the swap; its close must
// not null out the replacement.
func (b *Bot) onConnClose(c *rtm.Conn, err error) {
	b.mu.Lock()
	current := b.conn == c
	if current {
		b.conn = nil
	}
	b.mu.Unlock()

	if current {
		b.publish(eventbus.KindDisconnected, err)
	}
}

func (b *Bot) publish(kind eventbus.Kind, data any) {
	if b.bus != nil {
		b.bus.Publish(eventbus.Event{Kind: kind, Data: data})
	}
}

func identityFrom(v any) Identity {
	m, _ := v.(map[string]any)
	id, _ := m["id"].(string)
	name, _ := m["name"].(string)
	return Identity{ID: id, Name: name}
}

func teamFrom(v any) Team {
	m, _ := v.(map[string]any)
	id, _ := m["id"].(string)
	name, _ := m["name"].(string)
	domain, _ := m["domain"].(string)
	return Team{ID: id, Name: name, Domain: domain}
}
