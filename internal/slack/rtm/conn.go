// Package rtm owns the persistent streaming connection: a websocket
// dialed from the URL returned by the session bootstrap call, with an
// explicit open/closed state machine readable by the sender.
package rtm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"slackwire/internal/runtime/supervisor"
	logx "slackwire/pkg/logx"
)

// State tracks the connection through its lifecycle. Transitions only
// move forward: connecting -> open -> closed.
type State int32

const (
	StateAbsent State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrNotOpen is returned by SendJSON when the connection is not open.
var ErrNotOpen = errors.New("rtm: connection not open")

type Config struct {
	// PingInterval paces keepalive pings. Zero means 15s.
	PingInterval time.Duration
	// SendTimeout bounds each outbound frame write. Zero means 10s.
	// A send that never completes would otherwise hang forever.
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	return c
}

// Handlers receive connection events. OnFrame gets every inbound text
// frame; OnClose fires exactly once when the connection dies and is
// handed the connection itself, so an owner juggling a replacement can
// tell whether the closed one is still current.
type Handlers struct {
	OnFrame func(data []byte)
	OnClose func(c *Conn, err error)
}

// Conn is one streaming connection. It is replaced wholesale on
// reconnect, never reused.
type Conn struct {
	cfg Config
	log logx.Logger
	h   Handlers

	ws    *websocket.Conn
	state atomic.Int32
	msgID atomic.Uint64

	writeMu sync.Mutex

	sup       *supervisor.Supervisor
	closeOnce sync.Once
}

// Dial connects to wsURL and starts the read and ping loops. It returns
// only after the websocket handshake has completed, so a successful
// return means the connection is open and sendable — callers never race
// against a pending "open" signal.
func Dial(ctx context.Context, wsURL string, cfg Config, h Handlers, log logx.Logger) (*Conn, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Conn{cfg: cfg.withDefaults(), log: log, h: h}
	c.state.Store(int32(StateConnecting))

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.state.Store(int32(StateClosed))
		return nil, fmt.Errorf("rtm: dial: %w", err)
	}
	c.ws = ws
	c.state.Store(int32(StateOpen))

	c.sup = supervisor.New(context.Background(),
		supervisor.WithLogger(log.With(logx.String("comp", "rtm"))),
	)
	c.sup.Go0("rtm.read", c.readLoop)
	c.sup.Go0("rtm.ping", c.pingLoop)

	log.Debug("rtm connected", logx.String("url", wsURL))
	return c, nil
}

func (c *Conn) State() State { return State(c.state.Load()) }

// Open reports whether frames can currently be sent.
func (c *Conn) Open() bool { return c.State() == StateOpen }

// NextID hands out frame ids; the RTM protocol wants a unique positive
// id per outbound message.
func (c *Conn) NextID() uint64 { return c.msgID.Add(1) }

// SendJSON writes v as one JSON text frame. The write is bounded by the
// configured send timeout.
func (c *Conn) SendJSON(ctx context.Context, v any) error {
	if !c.Open() {
		return ErrNotOpen
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.SendTimeout)
	if ctx != nil {
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("rtm: send: %w", err)
	}
	return nil
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			// Reads fail after Close() too; report the real cause only
			// for an unexpected death.
			if ctx.Err() != nil {
				c.died(nil)
			} else {
				c.died(err)
			}
			return
		}
		if kind != websocket.TextMessage || c.h.OnFrame == nil {
			continue
		}
		c.h.OnFrame(data)
	}
}

func (c *Conn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.SendTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug("rtm ping failed", logx.Err(err))
				return
			}
		}
	}
}

// died marks the connection closed and fires OnClose once.
func (c *Conn) died(err error) {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		if c.sup != nil {
			c.sup.Cancel()
		}
		_ = c.ws.Close()
		if err != nil {
			c.log.Warn("rtm connection lost", logx.Err(err))
		}
		if c.h.OnClose != nil {
			c.h.OnClose(c, err)
		}
	})
}

// Close shuts the connection down gracefully: best-effort close frame,
// then wait for the loops to exit within ctx.
func (c *Conn) Close(ctx context.Context) error {
	if c.Open() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
	}
	c.died(nil)

	if c.sup == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
	}
	if err := c.sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
