package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/classify-cli/internal/resilience"
)

// Client defines the LLM completion operation used by the classification
// pipeline: one system prompt, one user prompt, one structured answer.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// CompletionRequest is a single completion call.
type CompletionRequest struct {
	System string
	User   string
	// CacheSystem marks the system prompt as a prompt-cache breakpoint.
	// Classification sends the same category list to every batch in a
	// level, so caching it pays for itself after the first call.
	CacheSystem bool
}

// Completion is the model's answer plus its token cost.
type Completion struct {
	Content string
	Usage   Usage
}

// Usage reports token consumption for one call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Option configures the client.
type Option func(*sdkClient)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(c *sdkClient) {
		c.model = model
	}
}

// WithMaxTokens overrides the response token budget.
func WithMaxTokens(n int64) Option {
	return func(c *sdkClient) {
		c.maxTokens = n
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *sdkClient) {
		c.timeout = d
	}
}

// WithRateLimit caps outbound requests per second across all callers of
// this client. Zero disables the limiter.
func WithRateLimit(rps float64) Option {
	return func(c *sdkClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type sdkClient struct {
	client    sdk.Client
	model     string
	maxTokens int64
	timeout   time.Duration
	limiter   *rate.Limiter
}

// NewClient creates an Anthropic completion client backed by the SDK.
func NewClient(apiKey string, opts ...Option) Client {
	c := &sdkClient{
		client:    sdk.NewClient(option.WithAPIKey(apiKey)),
		model:     "claude-haiku-4-5-20251001",
		maxTokens: 2048,
		timeout:   60 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *sdkClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "anthropic: rate limiter")
		}
	}

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.User)),
		},
	}
	if req.System != "" {
		block := sdk.TextBlockParam{Text: req.System}
		if req.CacheSystem {
			block.CacheControl = sdk.NewCacheControlEphemeralParam()
		}
		params.System = []sdk.TextBlockParam{block}
	}

	msg, err := c.client.Messages.New(callCtx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	var parts []string
	for _, b := range msg.Content {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}

	return &Completion{
		Content: strings.Join(parts, "\n"),
		Usage: Usage{
			PromptTokens:     msg.Usage.InputTokens,
			CompletionTokens: msg.Usage.OutputTokens,
		},
	}, nil
}

// classifyError wraps SDK failures so the retry layer can tell transient
// server-side trouble (429, 5xx, timeouts) from hard auth/request errors.
func classifyError(err error) error {
	var apierr *sdk.Error
	if errors.As(err, &apierr) && resilience.IsTransientHTTPStatus(apierr.StatusCode) {
		return resilience.NewTransientError(eris.Wrap(err, "anthropic: create message"), apierr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.NewTransientError(eris.Wrap(err, "anthropic: create message timeout"), 0)
	}
	return eris.Wrap(err, "anthropic: create message")
}
