package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"renopilot/internal/apperr"
	"renopilot/internal/config"
	"renopilot/internal/logger"
)

type Tier string

const (
	TierFast Tier = "fast"
	TierPro  Tier = "pro"
)

// Result is a classified model reply: either plain text or a single tool
// call. Cached is set when the result came out of the blob store.
type Result struct {
	Text   string    `json:"text"`
	Tool   *ToolCall `json:"tool,omitempty"`
	Tier   Tier      `json:"tier"`
	Cached bool      `json:"-"`
}

// Options tune one generation call. Validate is the structural-validity
// check that drives fast->pro escalation under the auto policy; Fallback is
// the deterministic payload returned when both tiers fail. A nil Fallback
// means the call site has none and gets a typed error instead.
type Options struct {
	Tools     bool
	MaxTokens int
	Validate  func(*Result) bool
	Fallback  *Result
}

// Cache is the content-addressed response store. Implemented by the
// generation cache repositories.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, blob []byte) error
}

type Client struct {
	apiKey     string
	baseURL    string
	fastModel  string
	proModel   string
	policy     string
	timeout    time.Duration
	cache      Cache
	httpClient *http.Client
	logger     *logger.Logger
}

func NewClient(cfg *config.Config, cache Cache, logger *logger.Logger) *Client {
	return &Client{
		apiKey:     cfg.AIKey,
		baseURL:    "https://api.openai.com/v1",
		fastModel:  cfg.FastModel,
		proModel:   cfg.ProModel,
		policy:     cfg.QualityPolicy,
		timeout:    time.Duration(cfg.GenerationTimeout) * time.Second,
		cache:      cache,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Generate resolves a prompt spec to a result. Identical normalized requests
// hit the cache and return byte-identical results; the model is invoked at
// most once per key and tier. Under the auto policy a result that fails the
// structural check escalates to the pro tier exactly once.
func (c *Client) Generate(ctx context.Context, spec PromptSpec, opts Options) (*Result, error) {
	key := spec.CacheKey()

	if blob, err := c.cache.Get(ctx, key); err == nil {
		var cached Result
		if jsonErr := json.Unmarshal(blob, &cached); jsonErr == nil {
			cached.Cached = true
			return &cached, nil
		}
		c.logger.Warn("Discarding unreadable cache entry:", key)
	}

	firstTier := TierFast
	if c.policy == "pro" {
		firstTier = TierPro
	}

	result, err := c.generateTier(ctx, spec, opts, firstTier)
	valid := err == nil && c.structurallyValid(result, opts)

	if !valid && c.policy == "auto" && firstTier == TierFast {
		c.logger.Info("Escalating generation to pro tier for task:", spec.Task)
		proResult, proErr := c.generateTier(ctx, spec, opts, TierPro)
		if proErr == nil && c.structurallyValid(proResult, opts) {
			result, err, valid = proResult, nil, true
		}
	}

	if !valid {
		if opts.Fallback != nil {
			c.logger.Warn("Generation failed for task", spec.Task, "- using fallback:", err)
			fallback := *opts.Fallback
			return &fallback, nil
		}
		if err != nil {
			return nil, err
		}
		return nil, apperr.Parse(spec.Task, errors.New("result failed structural validation"))
	}

	if blob, jsonErr := json.Marshal(result); jsonErr == nil {
		if putErr := c.cache.Put(ctx, key, blob); putErr != nil {
			c.logger.Warn("Failed to cache generation result:", putErr)
		}
	}

	return result, nil
}

func (c *Client) structurallyValid(result *Result, opts Options) bool {
	if result == nil {
		return false
	}
	if opts.Validate == nil {
		return true
	}
	return opts.Validate(result)
}

func (c *Client) modelFor(tier Tier) string {
	if tier == TierPro {
		return c.proModel
	}
	return c.fastModel
}

// generateTier performs one bounded model call at the given tier.
func (c *Client) generateTier(ctx context.Context, spec PromptSpec, opts Options, tier Tier) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var messages []message
	if spec.System != "" {
		messages = append(messages, message{Role: "system", Content: spec.System})
	}
	messages = append(messages, message{Role: "user", Content: spec.Prompt})

	request := chatCompletionRequest{
		Model:     c.modelFor(tier),
		Messages:  messages,
		MaxTokens: opts.MaxTokens,
	}
	if opts.Tools {
		request.Tools = agentTools
	}

	resp, err := c.makeRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, apperr.Parse(spec.Task, errors.New("no choices returned from model"))
	}

	choice := resp.Choices[0].Message
	if len(choice.ToolCalls) > 0 {
		call := choice.ToolCalls[0]
		args := make(map[string]interface{})
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				return nil, apperr.Parse(spec.Task, fmt.Errorf("malformed tool arguments: %w", err))
			}
		}
		return &Result{Tool: &ToolCall{Name: call.Function.Name, Args: args}, Tier: tier}, nil
	}

	return &Result{Text: choice.Content, Tier: tier}, nil
}

// Chat-completions request/response structures
type chatCompletionRequest struct {
	Model     string           `json:"model"`
	Messages  []message        `json:"messages"`
	MaxTokens int              `json:"max_tokens,omitempty"`
	Tools     []toolDefinition `json:"tools,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
}

type choice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type responseMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []toolCallResp `json:"tool_calls"`
}

type toolCallResp struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// makeRequest makes an HTTP request to the chat completions API
func (c *Client) makeRequest(ctx context.Context, request chatCompletionRequest) (*chatCompletionResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Transient("generation", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperr.Transient("generation", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, apperr.Parse("generation", fmt.Errorf("failed to decode response: %w", err))
	}

	return &chatResp, nil
}

// SetBaseURL points the client at a different API host. Used by tests.
func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}
