// Package config loads the adapter configuration from a JSON or YAML
// file, decoded strictly so typos fail fast instead of being ignored.
package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Slack   SlackConfig   `json:"slack"`
	Webhook WebhookConfig `json:"webhook,omitempty"`
	Logging LoggingConfig `json:"logging"`
}

type SlackConfig struct {
	Token   string `json:"token"`
	BaseURL string `json:"base_url,omitempty"`

	// Defaults are merged into every outbound payload (channel,
	// username, icon_emoji, ...). Explicit payload fields win.
	Defaults map[string]any `json:"defaults,omitempty"`

	// Durations are Go duration strings (e.g. "500ms", "15s").
	PingInterval string `json:"ping_interval,omitempty"`
	SendTimeout  string `json:"send_timeout,omitempty"`

	MessagesPerSec float64 `json:"messages_per_sec,omitempty"`
}

type WebhookConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":8080"
	Path    string `json:"path,omitempty"` // default "/slack/events"
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console"`
	File    string `json:"file,omitempty"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Slack.Token) == "" {
		return fmt.Errorf("slack.token is required")
	}
	if _, err := ParseDurationField("slack.ping_interval", c.Slack.PingInterval); err != nil {
		return err
	}
	if _, err := ParseDurationField("slack.send_timeout", c.Slack.SendTimeout); err != nil {
		return err
	}
	if c.Slack.MessagesPerSec < 0 {
		return fmt.Errorf("slack.messages_per_sec must be >= 0")
	}
	if c.Webhook.Enabled && !strings.HasPrefix(webhookPath(c.Webhook.Path), "/") {
		return fmt.Errorf("webhook.path must start with /")
	}
	return nil
}

// WebhookAddr returns the listen address with the default applied.
func (c *Config) WebhookAddr() string {
	if strings.TrimSpace(c.Webhook.Addr) == "" {
		return ":8080"
	}
	return c.Webhook.Addr
}

// WebhookPath returns the delivery path with the default applied.
func (c *Config) WebhookPath() string {
	return webhookPath(c.Webhook.Path)
}

func webhookPath(p string) string {
	if strings.TrimSpace(p) == "" {
		return "/slack/events"
	}
	return p
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
