package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	// DefaultEndpoint is the Groq OpenAI-compatible chat completions URL.
	DefaultEndpoint = "https://api.groq.com/openai/v1/chat/completions"

	// DefaultModel is the completion model the assistant runs on.
	DefaultModel = "llama-3.3-70b-versatile"

	// NoReplyFallback is substituted when a successful completion carries
	// no text content.
	NoReplyFallback = "No response from model."

	// GenericFailureMessage replaces upstream error bodies that cannot be
	// parsed into a human-readable message.
	GenericFailureMessage = "Failed to get response from AI service"

	systemPrompt = "You are Tree Whisperer, an assistant that helps people care for trees. " +
		"Be concise and practical. Provide helpful advice about tree planting, watering, health, and maintenance."
)

// ChatClient forwards a user prompt to the completion service and returns
// the assistant's reply text.
type ChatClient interface {
	ChatComplete(ctx context.Context, apiKey, prompt string) (string, error)
}

// APIError is a normalized upstream rejection: the service answered with a
// non-OK status. Message is safe to surface to the caller; the raw body
// never leaves the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("groq api error (status %d): %s", e.StatusCode, e.Message)
}

// Client calls the Groq chat completions API over HTTP.
type Client struct {
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewClient creates a Client against the default endpoint and model.
func NewClient() *Client {
	return &Client{
		endpoint:   DefaultEndpoint,
		model:      DefaultModel,
		httpClient: &http.Client{},
	}
}

// NewClientWithEndpoint creates a Client against a custom endpoint, used by
// tests to point at a stubbed upstream.
func NewClientWithEndpoint(endpoint string) *Client {
	c := NewClient()
	c.endpoint = endpoint
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ChatComplete sends the prompt with the fixed persona instruction and
// returns the first completion's text, substituting NoReplyFallback when
// the completion is empty.
func (c *Client) ChatComplete(ctx context.Context, apiKey, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to serialize chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Message:    parseUpstreamError(resp.Body),
		}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return NoReplyFallback, nil
	}
	return parsed.Choices[0].Message.Content, nil
}

// parseUpstreamError extracts a human-readable message from an upstream
// error body, falling back to the generic message when the body does not
// carry one.
func parseUpstreamError(body io.Reader) string {
	raw, err := io.ReadAll(body)
	if err != nil {
		return GenericFailureMessage
	}

	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Error.Message == "" {
		return GenericFailureMessage
	}
	return parsed.Error.Message
}
