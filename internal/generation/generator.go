// Package generation talks to the language-model service that drafts the
// official documents.
package generation

import (
	"context"
	"errors"

	"oficiogen/backend/pkg/observability"
)

var (
	// ErrMissingCredential means no API key could be resolved
	ErrMissingCredential = errors.New("generation credential not configured")
	// ErrInvalidCredential means the service rejected the API key
	ErrInvalidCredential = errors.New("generation credential rejected")
)

// User-visible replies substituted for a failed generation
const (
	EmptyReplyText   = "Erro ao gerar o texto. Tente novamente."
	ConfigErrorText  = "Erro de Configuração: Chave de API não encontrada. Por favor, configure a variável GEMINI_API_KEY."
	GenericErrorText = "Ocorreu um erro ao conectar com a IA. Tente novamente mais tarde."
)

// Generator drafts a document from a user prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// IsCredentialError reports whether err is a configuration problem
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrMissingCredential) || errors.Is(err, ErrInvalidCredential)
}

// ReplyText maps a generation outcome to the text shown as the assistant reply.
// Only an empty string counts as an empty reply.
func ReplyText(text string, err error) string {
	switch {
	case err == nil && text != "":
		return text
	case err == nil:
		return EmptyReplyText
	case IsCredentialError(err):
		return ConfigErrorText
	default:
		return GenericErrorText
	}
}

// Outcome classifies a generation result for metrics
func Outcome(text string, err error) string {
	switch {
	case err == nil && text != "":
		return observability.OutcomeSuccess
	case err == nil:
		return observability.OutcomeEmpty
	case IsCredentialError(err):
		return observability.OutcomeCredential
	default:
		return observability.OutcomeFailure
	}
}
