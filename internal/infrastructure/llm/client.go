package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"offerwatch/internal/config"
	"offerwatch/internal/domain"
	"offerwatch/internal/ports"
)

// Client talks to an OpenAI-compatible chat-completions API for offer
// extraction, similarity judgment, and snapshot evaluation. Every call
// applies a bounded retry count with a fixed inter-attempt delay; a 429
// response rotates to another credential before the next attempt.
type Client struct {
	endpoint   string
	model      string
	maxRetries int
	retryDelay time.Duration

	extractTimeout time.Duration
	judgeTimeout   time.Duration
	evalTimeout    time.Duration

	httpClient *http.Client
	logger     *slog.Logger

	mu   sync.Mutex
	keys []string
	rng  *rand.Rand
}

var _ ports.OfferExtractor = (*Client)(nil)
var _ ports.SimilarityJudge = (*Client)(nil)
var _ ports.EvaluationWriter = (*Client)(nil)

// ErrExhausted is returned when every attempt (and credential) failed.
var ErrExhausted = errors.New("llm: attempts exhausted")

// NewClient builds a client from configuration. The credential pool is safe
// for concurrent use; selection is a random read-only pick.
func NewClient(cfg config.LLMConfig, logger *slog.Logger) *Client {
	return &Client{
		endpoint:       cfg.Endpoint,
		model:          cfg.Model,
		maxRetries:     cfg.MaxRetries,
		retryDelay:     cfg.RetryDelay,
		extractTimeout: cfg.ExtractTimeout,
		judgeTimeout:   cfg.JudgeTimeout,
		evalTimeout:    cfg.EvalTimeout,
		httpClient:     &http.Client{},
		logger:         logger,
		keys:           cfg.APIKeys,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ExtractOffers asks the model to pull structured offers out of page content.
// When the model cannot find listings but spots a link to a listing page, the
// result carries that link as SuggestedURL instead.
func (c *Client) ExtractOffers(ctx context.Context, content, instruction string) (ports.ExtractResult, error) {
	if strings.TrimSpace(content) == "" {
		return ports.ExtractResult{}, nil
	}

	var result ports.ExtractResult
	err := c.chat(ctx, extractPrompt(content, instruction), 4000, 0.1, c.extractTimeout, func(raw string) error {
		parsed, perr := parseExtraction(raw)
		if perr != nil {
			return perr
		}
		result = parsed
		return nil
	})
	if err != nil {
		return ports.ExtractResult{}, err
	}
	return result, nil
}

func parseExtraction(raw string) (ports.ExtractResult, error) {
	payload := extractJSON(raw)

	var suggestion struct {
		SuggestedURL string `json:"suggested_url"`
	}
	if err := json.Unmarshal([]byte(payload), &suggestion); err == nil && suggestion.SuggestedURL != "" {
		if _, uerr := url.ParseRequestURI(suggestion.SuggestedURL); uerr == nil {
			return ports.ExtractResult{SuggestedURL: suggestion.SuggestedURL}, nil
		}
	}

	var wire []wireOffer
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return ports.ExtractResult{}, fmt.Errorf("decode extracted offers: %w", err)
	}

	offers := make([]domain.Offer, 0, len(wire))
	for _, w := range wire {
		offers = append(offers, w.toDomain())
	}
	// Stable order keeps snapshot comparisons deterministic across calls.
	sort.Slice(offers, func(i, j int) bool {
		return offerSortKey(offers[i]) < offerSortKey(offers[j])
	})

	return ports.ExtractResult{Offers: offers}, nil
}

// JudgeSimilar asks the model whether two offers denote the same product.
// The error on exhaustion lets the caller fall back to a local heuristic.
func (c *Client) JudgeSimilar(ctx context.Context, a, b domain.Offer) (bool, error) {
	var similar bool
	err := c.chat(ctx, judgePrompt(a, b), 100, 0.1, c.judgeTimeout, func(raw string) error {
		var verdict struct {
			Similar *bool `json:"similar"`
		}
		if perr := json.Unmarshal([]byte(extractJSON(raw)), &verdict); perr != nil || verdict.Similar == nil {
			return fmt.Errorf("malformed similarity verdict: %q", raw)
		}
		similar = *verdict.Similar
		return nil
	})
	if err != nil {
		return false, err
	}
	return similar, nil
}

// WriteEvaluation generates a short commentary on the current snapshot.
func (c *Client) WriteEvaluation(ctx context.Context, current, previous []domain.Offer) (string, error) {
	if len(current) == 0 {
		return "", nil
	}
	var text string
	err := c.chat(ctx, evalPrompt(current, previous), 200, 0.7, c.evalTimeout, func(raw string) error {
		text = strings.TrimSpace(raw)
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chat runs the bounded retry loop shared by all calls. A reply whose content
// fails the caller's parse func counts as a failed attempt and is retried like
// a transport error: models return garbage transiently.
func (c *Client) chat(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration, parse func(content string) error) error {
	if c.endpoint == "" || c.model == "" {
		return fmt.Errorf("llm client misconfigured")
	}
	key := c.pickKey("")
	if key == "" {
		return fmt.Errorf("no llm api keys configured")
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return fmt.Errorf("marshal chat payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.debug("retrying llm call", "attempt", attempt+1)
			time.Sleep(c.retryDelay)
		}

		content, status, err := c.doChat(ctx, key, body, timeout)
		if err == nil {
			if err = parse(content); err == nil {
				return nil
			}
			c.debug("unusable llm reply", "error", err)
		}
		lastErr = err

		if status == http.StatusTooManyRequests {
			rotated := c.pickKey(key)
			if rotated == "" || rotated == key {
				c.debug("rate limited with no alternate credential")
			} else {
				c.debug("rate limited, rotating credential")
				key = rotated
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrExhausted, c.maxRetries+1, lastErr)
}

func (c *Client) doChat(ctx context.Context, key string, body []byte, timeout time.Duration) (string, int, error) {
	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", resp.StatusCode, fmt.Errorf("llm error %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", resp.StatusCode, fmt.Errorf("empty choices in response")
	}
	return decoded.Choices[0].Message.Content, resp.StatusCode, nil
}

// pickKey returns a random credential, preferring one different from exclude.
// A pool of duplicates yields exclude itself rather than looping.
func (c *Client) pickKey(exclude string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.keys) == 0 {
		return ""
	}

	start := c.rng.Intn(len(c.keys))
	for i := 0; i < len(c.keys); i++ {
		key := c.keys[(start+i)%len(c.keys)]
		if key != exclude {
			return key
		}
	}
	return c.keys[start]
}

func (c *Client) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

// extractJSON unwraps the JSON document from a model reply that may carry
// surrounding prose or markdown fences. Arrays win over objects.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	if s := sliceBetween(text, '[', ']'); s != "" {
		return s
	}
	if s := sliceBetween(text, '{', '}'); s != "" {
		return s
	}
	return strings.TrimSpace(text)
}

func sliceBetween(text string, opening, closing byte) string {
	first := strings.IndexByte(text, opening)
	last := strings.LastIndexByte(text, closing)
	if first < 0 || last <= first {
		return ""
	}
	return strings.TrimSpace(text[first : last+1])
}

func offerSortKey(o domain.Offer) string {
	return o.CostName + o.CPU + o.RAM + o.Storage + o.Price
}
