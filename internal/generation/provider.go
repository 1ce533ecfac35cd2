package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"oficiogen/backend/pkg/logger"
	"oficiogen/backend/pkg/resilience"
	"oficiogen/backend/pkg/secrets"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProviderConfig configures a Provider
type ProviderConfig struct {
	BaseURL       string
	Model         string
	Timeout       time.Duration
	CredentialKey string
	HTTPClient    *http.Client
}

// Provider owns the lazily built Gemini client. The credential is resolved on
// first use; a failed construction is retried on the next call.
type Provider struct {
	cfg     ProviderConfig
	secrets secrets.Manager
	breaker *resilience.CircuitBreaker
	tracer  trace.Tracer
	log     *logger.Logger

	mu     sync.Mutex
	client Generator
}

// NewProvider creates a Provider. No credential is read here.
func NewProvider(cfg ProviderConfig, sm secrets.Manager, log *logger.Logger) *Provider {
	if cfg.CredentialKey == "" {
		cfg.CredentialKey = "gemini_api_key"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig("generation")
	breakerCfg.IsFailure = func(err error) bool {
		return err != nil && !IsCredentialError(err) && !errors.Is(err, context.Canceled)
	}

	return &Provider{
		cfg:     cfg,
		secrets: sm,
		breaker: resilience.NewCircuitBreaker(breakerCfg, log),
		tracer:  otel.Tracer("oficiogen/backend/internal/generation"),
		log:     log,
	}
}

// Generate implements Generator
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "generation.Generate",
		trace.WithAttributes(attribute.String("generation.model", p.cfg.Model)))
	defer span.End()

	text, err := p.generate(ctx, prompt)

	span.SetAttributes(attribute.String("generation.outcome", Outcome(text, err)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return text, err
}

func (p *Provider) generate(ctx context.Context, prompt string) (string, error) {
	client, err := p.get(ctx)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var text string
	err = p.breaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		text, callErr = client.Generate(ctx, prompt)
		return callErr
	})

	if errors.Is(err, ErrInvalidCredential) {
		p.log.Warn("Generation credential rejected, client will be rebuilt", "error", err.Error())
		p.reset()
	}
	return text, err
}

// get returns the client, building it on first use
func (p *Provider) get(ctx context.Context) (Generator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	apiKey, err := p.secrets.GetSecret(ctx, p.cfg.CredentialKey)
	if errors.Is(err, secrets.ErrSecretNotFound) {
		p.log.Error("Generation credential missing", "key", p.cfg.CredentialKey)
		return nil, fmt.Errorf("%w: %s", ErrMissingCredential, p.cfg.CredentialKey)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve generation credential: %w", err)
	}

	client, err := NewGeminiClient(ctx, GeminiConfig{
		BaseURL:    p.cfg.BaseURL,
		Model:      p.cfg.Model,
		APIKey:     apiKey,
		HTTPClient: p.cfg.HTTPClient,
	})
	if err != nil {
		return nil, err
	}

	p.client = client
	return client, nil
}

func (p *Provider) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = nil
}

// Ready reports whether a credential can be resolved, without building the client
func (p *Provider) Ready(ctx context.Context) error {
	if _, err := p.secrets.GetSecret(ctx, p.cfg.CredentialKey); err != nil {
		return fmt.Errorf("%w: %s", ErrMissingCredential, p.cfg.CredentialKey)
	}
	return nil
}
