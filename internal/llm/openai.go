package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProviderOpenAI identifies the OpenAI-compatible chat completions client.
const ProviderOpenAI = "openai"

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint (Perplexity, Groq,
// OpenAI). Inline images are sent as data URLs; file parts are not supported.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float32
	maxTokens   int32
	httpClient  *http.Client
}

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	Timeout         time.Duration
}

// NewOpenAIClient creates a chat completions client.
func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &OpenAIClient{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxOutputTokens,
		httpClient:  &http.Client{Timeout: opts.Timeout},
	}
}

// Provider returns "openai".
func (c *OpenAIClient) Provider() string { return ProviderOpenAI }

// Model returns the model name.
func (c *OpenAIClient) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature"`
	MaxTokens      int32           `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string  `json:"name"`
	Schema *Schema `json:"schema"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate posts a chat completion and returns the first choice's content.
func (c *OpenAIClient) Generate(ctx context.Context, req *Request) (string, error) {
	user, err := c.userContent(req.Parts)
	if err != nil {
		return "", err
	}
	body := chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if req.Temperature != nil {
		body.Temperature = *req.Temperature
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: user})
	if req.Schema != nil {
		body.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchema{Name: "response", Schema: req.Schema},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send chat request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat completions error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// userContent returns a plain string for text-only turns and a parts array otherwise.
func (c *OpenAIClient) userContent(parts []Part) (any, error) {
	textOnly := true
	for _, p := range parts {
		if p.FilePath != "" {
			return nil, fmt.Errorf("%w: file upload on %s", ErrUnsupportedPart, ProviderOpenAI)
		}
		if p.Data != nil {
			if !strings.HasPrefix(p.MIMEType, "image/") {
				return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedPart, p.MIMEType, ProviderOpenAI)
			}
			textOnly = false
		}
	}
	if textOnly {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			texts = append(texts, p.Text)
		}
		return strings.Join(texts, "\n\n"), nil
	}
	out := make([]contentPart, 0, len(parts))
	for _, p := range parts {
		if p.Data != nil {
			url := "data:" + p.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(p.Data)
			out = append(out, contentPart{Type: "image_url", ImageURL: &imageURL{URL: url}})
			continue
		}
		out = append(out, contentPart{Type: "text", Text: p.Text})
	}
	return out, nil
}
