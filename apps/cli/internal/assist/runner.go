// Package assist answers ask-for-help prompts with Claude.
package assist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/handleui/buildlens/quickfix"
	"github.com/handleui/buildlens/retry"
)

const (
	defaultMaxTokens = 1024

	systemPrompt = "You help Android developers fix Gradle build failures. " +
		"Answer with the most likely cause and a concrete fix. Keep it short."
)

// ErrNoAPIKey is returned by New without a key.
var ErrNoAPIKey = errors.New("no API key: set ANTHROPIC_API_KEY or run 'buildlens config set api-key'")

// Runner sends prompts to the Messages API and writes the answer.
type Runner struct {
	api       anthropic.Client
	model     anthropic.Model
	maxTokens int64
	out       io.Writer
	retry     []retry.Option
}

// Option configures a Runner.
type Option func(*runnerConfig)

type runnerConfig struct {
	client []option.RequestOption
	retry  []retry.Option
}

// WithClientOptions adds SDK request options, e.g. a base URL.
func WithClientOptions(opts ...option.RequestOption) Option {
	return func(c *runnerConfig) { c.client = append(c.client, opts...) }
}

// WithRetry adds retry options on top of the defaults.
func WithRetry(opts ...retry.Option) Option {
	return func(c *runnerConfig) { c.retry = append(c.retry, opts...) }
}

// New creates a runner writing answers to out.
func New(apiKey, model string, timeout time.Duration, out io.Writer, opts ...Option) (*Runner, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	var cfg runnerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	// Retries are ours so only transient statuses are repeated.
	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}, cfg.client...)

	return &Runner{
		api:       anthropic.NewClient(clientOpts...),
		model:     anthropic.Model(model),
		maxTokens: defaultMaxTokens,
		out:       out,
		retry:     append([]retry.Option{retry.WithRetryCondition(retryable)}, cfg.retry...),
	}, nil
}

// Ask implements quickfix.Runner.
func (r *Runner) Ask(ctx context.Context, prompt string) error {
	answer, err := r.Answer(ctx, prompt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(r.out, answer)
	return err
}

// Answer returns the model's reply to prompt.
func (r *Runner) Answer(ctx context.Context, prompt string) (string, error) {
	var msg *anthropic.Message
	err := retry.Do(ctx, func(ctx context.Context) error {
		var reqErr error
		msg, reqErr = r.api.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     r.model,
			MaxTokens: r.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		return reqErr
	}, r.retry...)
	if err != nil {
		return "", formatAPIError(err)
	}

	var b strings.Builder
	for i := range msg.Content {
		if text, ok := msg.Content[i].AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no text response from Claude")
	}
	return b.String(), nil
}

// retryable reports whether err is a rate limit or server-side failure.
// Other API errors are final; transport errors are retried.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, 529:
			return true
		}
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

func formatAPIError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid API key: check ANTHROPIC_API_KEY or 'buildlens config show'")
		case http.StatusForbidden:
			return fmt.Errorf("API key lacks permission: %w", err)
		case http.StatusTooManyRequests:
			return errors.New("rate limited: too many requests, try again later")
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
			return fmt.Errorf("anthropic API unavailable (status %d): try again later", apiErr.StatusCode)
		case 529:
			return errors.New("anthropic API overloaded: try again later")
		default:
			return fmt.Errorf("API error (status %d): %w", apiErr.StatusCode, err)
		}
	}
	return fmt.Errorf("API request failed: %w", err)
}

var _ quickfix.Runner = (*Runner)(nil)
