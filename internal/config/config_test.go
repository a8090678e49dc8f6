package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
slack:
  token: xoxb-123
  ping_interval: 20s
  defaults:
    channel: C-general
    username: butler
webhook:
  enabled: true
  addr: ":9090"
logging:
  level: debug
  console: true
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Slack.Token != "xoxb-123" {
		t.Fatalf("token = %q", cfg.Slack.Token)
	}
	if cfg.Slack.Defaults["channel"] != "C-general" {
		t.Fatalf("defaults.channel = %v", cfg.Slack.Defaults["channel"])
	}
	if got := cfg.WebhookAddr(); got != ":9090" {
		t.Fatalf("WebhookAddr = %q", got)
	}
	if got := cfg.WebhookPath(); got != "/slack/events" {
		t.Fatalf("WebhookPath default = %q", got)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"slack":{"token":"xoxb-9"},"logging":{"console":true}}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Slack.Token != "xoxb-9" {
		t.Fatalf("token = %q", cfg.Slack.Token)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"slack":{"token":"x","tokn_typo":"y"}}`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadRejectsMissingToken(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"slack":{"token":"  "}}`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"slack":{"token":"x","send_timeout":"fast"}}`)

	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for bad duration")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{raw: "", wantErr: false},
		{raw: "15s", wantErr: false},
		{raw: "500ms", wantErr: false},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		_, err := ParseDurationField("test", tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseDurationField(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
	}
}
