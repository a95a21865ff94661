package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"palette/internal/config"
	"palette/internal/domain"
)

// ProviderConstructor creates a provider from a config entry.
type ProviderConstructor func(name string, pc config.ProviderConfig, logger *slog.Logger) domain.Provider

// Factory creates and caches providers from config and resolves the model
// names a run carries (OpenAI, Bedrock, ...) to them.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	constructors map[string]ProviderConstructor
	cache        map[string]domain.Provider
	mu           sync.RWMutex
}

func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]ProviderConstructor),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a provider constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor ProviderConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
	delete(f.cache, name)
}

func (f *Factory) registerDefaults() {
	f.constructors["openai"] = func(name string, pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOpenAI(OpenAIConfig{Name: name, APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Logger: logger})
	}
	f.constructors["claude"] = func(_ string, pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewClaude(ClaudeConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, MaxTokens: pc.MaxTokens, Logger: logger})
	}
	f.constructors["bedrock"] = func(_ string, pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewBedrock(BedrockConfig{Region: pc.Region, Model: pc.DefaultModel, MaxTokens: pc.MaxTokens, Logger: logger})
	}
}

// Get returns the provider with the given name, or the default if name is empty.
func (f *Factory) Get(name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}

	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	var p domain.Provider
	switch ctor, found := f.constructors[name]; {
	case found:
		p = ctor(name, pc, f.logger)
	case pc.Mode == string(domain.ModeManaged):
		p = f.constructors["bedrock"](name, pc, f.logger)
	case pc.APIBase != "":
		// Unknown API-mode providers are treated as OpenAI-compatible.
		p = f.constructors["openai"](name, pc, f.logger)
	default:
		return nil, fmt.Errorf("provider %s: no constructor registered and no API base configured", name)
	}

	f.cache[name] = p
	return p, nil
}

// ForModel resolves a run's model name through palette.modelProviders. When
// a failover chain is configured the resolved provider is tried first and
// the remaining chain members follow in order (see ModelChain).
func (f *Factory) ForModel(model string) (domain.Provider, error) {
	name, ok := f.cfg.Palette.ModelProviders[model]
	if !ok {
		return nil, fmt.Errorf("model %q: %w (no palette.modelProviders entry)", model, config.ErrMissing)
	}
	primary, err := f.Get(name)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", model, err)
	}
	if len(f.cfg.General.FailoverChain) == 0 {
		return primary, nil
	}

	chain := []domain.Provider{primary}
	for _, n := range f.cfg.General.FailoverChain {
		if n == name {
			continue
		}
		p, err := f.Get(n)
		if err != nil {
			f.logger.Warn("skipping failover provider", "provider", n, "err", err)
			continue
		}
		chain = append(chain, p)
	}
	if len(chain) == 1 {
		return primary, nil
	}
	return NewModelChain(model, chain, f.logger), nil
}

// DefaultProvider returns the configured default provider.
func (f *Factory) DefaultProvider() (domain.Provider, error) {
	return f.Get("")
}

// HealthyProvider returns the first enabled provider that passes a health check, or nil.
func (f *Factory) HealthyProvider(ctx context.Context) domain.Provider {
	for name, pc := range f.cfg.Providers {
		if !pc.Enabled {
			continue
		}
		p, err := f.Get(name)
		if err != nil {
			continue
		}
		if p.Healthy(ctx) == nil {
			return p
		}
	}
	return nil
}

// ImageGenerator returns the configured image backend, or nil when image
// generation is disabled.
func (f *Factory) ImageGenerator() domain.ImageGenerator {
	ic := f.cfg.Images
	if !ic.Enabled {
		return nil
	}
	key := ic.APIKey
	if key == "" {
		key = f.cfg.Providers["openai"].APIKey
	}
	return NewImageGen(ImageGenConfig{APIKey: key, APIBase: ic.APIBase, Model: ic.Model, Size: ic.Size, Logger: f.logger})
}
