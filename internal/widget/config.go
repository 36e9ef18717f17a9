package widget

import (
	"context"
	"fmt"
	"strings"
)

const (
	DefaultBotName   = "Assistant"
	DefaultAutoYesMs = 10000
)

// RuntimeConfig is replaced as a whole, never mutated in place.
type RuntimeConfig struct {
	BotName    string
	AutoYesMs  int64
	LLMBackend string
}

// DefaultRuntimeConfig is what the widget uses until the health endpoint answers.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		BotName:   DefaultBotName,
		AutoYesMs: DefaultAutoYesMs,
	}
}

// CountdownSeconds is the whole number of seconds shown on a new feedback prompt.
// Zero means no countdown and no auto-Yes.
func (c RuntimeConfig) CountdownSeconds() int {
	if c.AutoYesMs <= 0 {
		return 0
	}
	secs := int(c.AutoYesMs / 1000)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// HealthState drives the ready/unreachable indicator.
type HealthState int

const (
	HealthChecking HealthState = iota
	HealthReady
	HealthUnreachable
)

func (h HealthState) String() string {
	switch h {
	case HealthReady:
		return "ready"
	case HealthUnreachable:
		return "unreachable"
	default:
		return "checking"
	}
}

// Config returns the current runtime configuration.
func (w *Widget) Config() RuntimeConfig {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

// SetConfig replaces the runtime configuration. Prompts already counting down keep
// their own deadline.
func (w *Widget) SetConfig(cfg RuntimeConfig) {
	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()
	w.notify()
}

// LoadConfig fetches bot name and auto-Yes timeout from the health endpoint. On
// failure the current configuration is kept and the health indicator flips to
// unreachable; the error is returned for logging only.
func (w *Widget) LoadConfig(ctx context.Context) error {
	h, err := w.backend.Health(ctx)

	w.mu.Lock()
	if err != nil {
		w.health = HealthUnreachable
		w.mu.Unlock()
		w.notify()
		return fmt.Errorf("load runtime config: %w", err)
	}

	cfg := w.cfg
	cfg.BotName = strings.TrimSpace(h.BotName)
	if cfg.BotName == "" {
		cfg.BotName = DefaultBotName
	}
	if h.AutoYesMs != nil {
		cfg.AutoYesMs = *h.AutoYesMs
	}
	cfg.LLMBackend = h.LLMBackend
	w.cfg = cfg
	w.health = HealthReady
	w.mu.Unlock()

	w.notify()
	return nil
}
