// Package openai provides a chat completion adapter using the OpenAI API.
// Any OpenAI-compatible server works through the BaseURL override.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cairn-works/cairn/internal/core/domain"
	"github.com/cairn-works/cairn/internal/core/ports/driven"
)

// Ensure CompletionService implements the interface.
var _ driven.CompletionService = (*CompletionService)(nil)

// Default configuration values.
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.2
)

// Config holds configuration for the OpenAI completion service.
type Config struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL. Empty uses the OpenAI default;
	// set it for Azure OpenAI or compatible inference servers.
	BaseURL string

	// Model is the chat model to use (default: gpt-4o-mini).
	Model string

	// MaxTokens caps the response length (default: 1024).
	MaxTokens int

	// Temperature controls sampling randomness (default: 0.2).
	// Grounded answers want low temperatures.
	Temperature float32
}

// CompletionService produces text using the OpenAI chat completions API.
type CompletionService struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewCompletionService creates a new OpenAI completion service.
func NewCompletionService(cfg Config) (*CompletionService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &CompletionService{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// Complete returns the full response for a prompt in one call.
func (s *CompletionService) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, s.request(prompt))
	if err != nil {
		return "", wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.Join(domain.ErrCompletionService, errors.New("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream returns the response as a fragment channel. The
// channel closes when the response ends; a terminal failure arrives as
// the last fragment's Err.
func (s *CompletionService) CompleteStream(ctx context.Context, prompt string) (<-chan domain.Fragment, error) {
	req := s.request(prompt)
	req.Stream = true

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, wrapError(err)
	}

	out := make(chan domain.Fragment)
	go func() {
		defer close(out)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				select {
				case out <- domain.Fragment{Err: wrapError(err)}:
				case <-ctx.Done():
				}
				return
			}

			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}

			select {
			case out <- domain.Fragment{Text: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// ModelName returns the name of the completion model being used.
func (s *CompletionService) ModelName() string {
	return s.model
}

// Ping validates the service is reachable by listing models.
func (s *CompletionService) Ping(ctx context.Context) error {
	if _, err := s.client.ListModels(ctx); err != nil {
		return wrapError(err)
	}
	return nil
}

// Close releases resources.
func (s *CompletionService) Close() error {
	return nil
}

// request builds the chat request for a single-turn user prompt.
func (s *CompletionService) request(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	}
}

// wrapError maps an API error onto the domain error taxonomy so the
// retry layer can tell transient failures from permanent rejections.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return errors.Join(domain.ErrRateLimited, err)
		case http.StatusBadRequest, http.StatusUnauthorized,
			http.StatusForbidden, http.StatusNotFound,
			http.StatusUnprocessableEntity:
			return errors.Join(domain.ErrCompletionService, domain.ErrInvalidInput, err)
		}
	}

	// Network failures and 5xx responses are worth retrying
	return errors.Join(domain.ErrCompletionService, err)
}
