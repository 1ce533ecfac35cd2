package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures a GeminiClient
type GeminiConfig struct {
	BaseURL    string
	Model      string
	APIKey     string
	HTTPClient *http.Client
}

// GeminiClient calls generateContent through the genai SDK
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a client. An empty API key is a configuration error.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingCredential
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiClient{client: client, model: cfg.Model}, nil
}

// Generate sends the system instruction and the wrapped prompt as two user
// turns and returns the text of the first candidate.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	turn, err := RenderUserTurn(prompt)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromText(SystemInstruction, genai.RoleUser),
		genai.NewContentFromText(turn, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", classifyError(err)
	}
	return resp.Text(), nil
}

// classifyError separates a rejected API key from every other failure
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiError(apiErr.Code, apiErr.Message, err)
	}

	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiError(apiErrPtr.Code, apiErrPtr.Message, err)
	}

	return fmt.Errorf("gemini request failed: %w", err)
}

func apiError(code int, message string, err error) error {
	switch code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrInvalidCredential, message)
	case http.StatusBadRequest, http.StatusForbidden:
		if strings.Contains(strings.ToLower(message), "api key") {
			return fmt.Errorf("%w: %s", ErrInvalidCredential, message)
		}
	}
	return fmt.Errorf("gemini returned status %d: %w", code, err)
}
