package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Settings select the model behind a Caller. A change in any field makes the
// Provider build a new Caller.
type Settings struct {
	Model       string
	Temperature float32
	APIKey      string
}

// Factory builds a Caller for the given settings.
type Factory func(ctx context.Context, s Settings) (Caller, error)

// Provider holds the process-wide agent. The Caller is created on first use,
// reused while the settings are unchanged and only dropped by Reset or by
// UpdateSettings with different settings.
type Provider struct {
	mu       sync.Mutex
	factory  Factory
	settings Settings
	caller   Caller
	logger   *slog.Logger
}

// NewProvider creates a Provider. No Caller is built until Get.
func NewProvider(factory Factory, settings Settings, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		factory:  factory,
		settings: settings,
		logger:   logger.With("component", "agent_provider"),
	}
}

// Get returns the cached Caller, creating it if needed.
func (p *Provider) Get(ctx context.Context) (Caller, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.caller != nil {
		return p.caller, nil
	}
	if p.factory == nil {
		return nil, ErrNoCaller
	}

	p.logger.InfoContext(ctx, "creating agent instance", "model", p.settings.Model)
	c, err := p.factory(ctx, p.settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent: %w", err)
	}
	if c == nil {
		return nil, ErrNoCaller
	}
	p.caller = c
	return c, nil
}

// Reset drops the cached Caller. The next Get creates a new one.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.caller = nil
	p.logger.Info("agent cache reset")
}

// UpdateSettings replaces the settings and drops the cached Caller when they
// differ from the current ones. It reports whether anything changed.
func (p *Provider) UpdateSettings(s Settings) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s == p.settings {
		return false
	}
	p.settings = s
	p.caller = nil
	p.logger.Info("agent settings changed, instance will be recreated", "model", s.Model)
	return true
}

// Initialized reports whether a Caller is cached.
func (p *Provider) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.caller != nil
}

// Current returns the active settings.
func (p *Provider) Current() Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}
