// Package chat talks to the Gemini generateContent API on behalf of the
// in-app security assistant.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cyberguard/cyberguard/internal/credential"
	"github.com/cyberguard/cyberguard/internal/logger"
	"github.com/cyberguard/cyberguard/internal/model"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultModel   = "gemini-1.5-flash-latest"
	defaultTimeout = 60 * time.Second

	// KeyringAPIKey is the keyring entry holding the Gemini API key.
	KeyringAPIKey = "gemini-api-key"

	// FallbackReply is shown when no answer could be generated.
	FallbackReply = "I'm sorry, I'm having trouble connecting to my knowledge base right now. Please try again later."

	systemInstruction = "Answer the user's question in paragraph form. Do not add any extra symbols or formatting. " +
		"Earlier turns of the conversation are included for context; if there are none, the conversation has just started."
)

var (
	// ErrNoAPIKey is returned when no API key is configured.
	ErrNoAPIKey = errors.New("chat: no API key configured")

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("chat: question is empty")

	// ErrEmptyResponse is returned when the API answers without any text.
	ErrEmptyResponse = errors.New("chat: response contained no text")
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat API error (status %d %s): %s", e.StatusCode, e.Status, e.Message)
}

// Client calls the generateContent endpoint of a single model.
type Client struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a chat client from the chat section of the configuration.
func New(cfg model.ChatConfig, apiKey string, l *zap.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		baseURL: baseURL,
		model:   modelName,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.OrNop(l),
	}
}

// ResolveAPIKey returns the configured key, or the one stored in the
// system keyring under KeyringAPIKey. lookup defaults to credential.Get.
func ResolveAPIKey(cfg model.ChatConfig, lookup func(key string) (string, error)) (string, error) {
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		return key, nil
	}
	if lookup == nil {
		lookup = credential.Get
	}

	key, err := lookup(KeyringAPIKey)
	if err != nil || strings.TrimSpace(key) == "" {
		return "", ErrNoAPIKey
	}
	return strings.TrimSpace(key), nil
}

// Generate sends the conversation plus question and returns the model's
// answer. The question and the answer are appended to history only on
// success; history may be nil for a one-off question.
func (c *Client) Generate(ctx context.Context, history *History, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	var turns []Turn
	if history != nil {
		turns = history.Turns()
	}
	turns = append(turns, Turn{Role: RoleUser, Text: question})

	resp, err := c.callAPI(ctx, buildRequest(turns))
	if err != nil {
		return "", err
	}

	answer := resp.text()
	if answer == "" {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: blocked (%s)", ErrEmptyResponse, resp.PromptFeedback.BlockReason)
		}
		return "", ErrEmptyResponse
	}

	if history != nil {
		history.Add(
			Turn{Role: RoleUser, Text: question},
			Turn{Role: RoleModel, Text: answer},
		)
	}

	return answer, nil
}

// Reply is Generate that never fails: errors are logged and FallbackReply
// is returned instead.
func (c *Client) Reply(ctx context.Context, history *History, question string) string {
	answer, err := c.Generate(ctx, history, question)
	if err != nil {
		c.logger.Warn("chat request failed", zap.String("model", c.model), zap.Error(err))
		return FallbackReply
	}
	return answer
}

// callAPI makes a single request to the generateContent endpoint.
func (c *Client) callAPI(ctx context.Context, reqBody apiRequest) (*apiResponse, error) {
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?%s",
		c.baseURL, url.PathEscape(c.model), url.Values{"key": {c.apiKey}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		// The URL carries the key; keep it out of the error.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	c.logger.Debug("chat request",
		zap.String("model", c.model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var payload apiErrorResponse
		if json.Unmarshal(respBody, &payload) == nil && payload.Error.Message != "" {
			apiErr.Message = payload.Error.Message
			apiErr.Status = payload.Error.Status
		}
		return nil, apiErr
	}

	var result apiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return &result, nil
}

func buildRequest(turns []Turn) apiRequest {
	contents := make([]apiContent, 0, len(turns))
	for _, t := range turns {
		contents = append(contents, apiContent{
			Role:  string(t.Role),
			Parts: []apiPart{{Text: t.Text}},
		})
	}

	return apiRequest{
		SystemInstruction: &apiContent{Parts: []apiPart{{Text: systemInstruction}}},
		Contents:          contents,
		SafetySettings: []apiSafetySetting{
			{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
			{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
			{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_ONLY_HIGH"},
		},
		GenerationConfig: apiGenerationConfig{
			Temperature: 0.7,
			TopP:        0.95,
			TopK:        40,
		},
	}
}
