package llmcollab

import (
	"context"
	"fmt"
	"time"

	"github.com/teilomillet/gollm"
	"go.uber.org/zap"
)

// Client is a thin wrapper over gollm.LLM shared by the collaborator
// implementations. It owns retry and error classification so the
// collaborators stay one-call simple.
type Client struct {
	provider string
	llm      gollm.LLM
	policy   RetryPolicy
	log      *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	model       string
	maxTokens   int
	temperature float64
	policy      RetryPolicy
	logger      *zap.Logger
	extraOpts   []gollm.ConfigOption
}

// WithModel sets the model for the client.
func WithModel(model string) ClientOption {
	return func(c *clientConfig) {
		c.model = model
	}
}

// WithMaxTokens sets the response token cap.
func WithMaxTokens(n int) ClientOption {
	return func(c *clientConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(c *clientConfig) {
		c.temperature = t
	}
}

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *clientConfig) {
		c.policy = p
	}
}

// WithLogger sets the client logger.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = log
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) ClientOption {
	return func(c *clientConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewClient creates a Client for the given provider. If apiKey is empty,
// gollm reads it from the provider's environment variable.
func NewClient(provider, apiKey string, opts ...ClientOption) (*Client, error) {
	cfg := &clientConfig{
		maxTokens:   4096,
		temperature: 0.7,
		policy:      DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	model := cfg.model
	if model == "" {
		switch provider {
		case "anthropic":
			model = "claude-sonnet-4-5-20250514"
		default:
			model = "gpt-4o-mini"
		}
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0), // We handle retries ourselves.
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gollm LLM for provider %s: %w", provider, err)
	}

	log := cfg.logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{provider: provider, llm: llm, policy: cfg.policy, log: log}, nil
}

// NewClientFromLLM wraps an existing gollm.LLM instance.
func NewClientFromLLM(provider string, llm gollm.LLM) *Client {
	return &Client{provider: provider, llm: llm, policy: DefaultRetryPolicy(), log: zap.NewNop()}
}

// Provider returns the provider identifier.
func (c *Client) Provider() string {
	return c.provider
}

// complete sends a single prompt and returns the response text, retrying
// retryable provider failures per the client policy.
func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	promptOpts := []gollm.PromptOption{}
	if systemPrompt != "" {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(systemPrompt, gollm.CacheTypeEphemeral))
	}
	prompt := gollm.NewPrompt(userPrompt, promptOpts...)

	policy := c.policy
	userOnRetry := policy.OnRetry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		c.log.Warn("llm call retrying",
			zap.String("provider", c.provider),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if userOnRetry != nil {
			userOnRetry(err, attempt, delay)
		}
	}

	return Retry(ctx, policy, func(ctx context.Context) (string, error) {
		text, err := c.llm.Generate(ctx, prompt)
		if err != nil {
			return "", classifyError(c.provider, err)
		}
		return text, nil
	})
}
