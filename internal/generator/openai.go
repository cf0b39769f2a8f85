// Package generator writes outreach emails with an OpenAI-compatible chat model.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/unclebandit/outreach-backend/internal/config/configs"
	"github.com/unclebandit/outreach-backend/internal/model"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("openai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client generates a subject and body per contact.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	sender      configs.Sender
	httpClient  *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(cfg configs.OpenAI, sender configs.Sender, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		apiKey:      cfg.APIKey,
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		sender:      sender,
		httpClient:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Name() string { return "ai_generated" }

// Generate asks for the body first and then a short subject for it.
func (c *Client) Generate(ctx context.Context, contact model.Contact) (string, string, error) {
	body, err := c.chat(ctx, []chatMessage{
		{Role: "system", Content: "Du bist Experte für deutsche B2B Enterprise Sales Emails im Mittelstand."},
		{Role: "user", Content: bodyPrompt(contact, c.sender)},
	}, 800)
	if err != nil {
		return "", "", err
	}

	subject, err := c.chat(ctx, []chatMessage{
		{Role: "user", Content: subjectPrompt(contact)},
	}, 50)
	if err != nil {
		return "", "", err
	}
	return strings.Trim(subject, "\" "), body, nil
}

func bodyPrompt(contact model.Contact, sender configs.Sender) string {
	attr := func(k, def string) string {
		if v, ok := contact.Get(k); ok {
			return v
		}
		return def
	}
	var b strings.Builder
	b.WriteString("Erstelle eine professionelle B2B Cold Email.\n\nEMPFÄNGER:\n")
	fmt.Fprintf(&b, "- Name: %s %s\n", attr("first_name", ""), attr("last_name", ""))
	fmt.Fprintf(&b, "- Position: %s\n", attr("job_title", attr("role", "")))
	fmt.Fprintf(&b, "- Unternehmen: %s\n", attr("company_name", ""))
	fmt.Fprintf(&b, "- Branche: %s\n\n", attr("industry", "Maschinenbau"))
	b.WriteString("SENDER:\n")
	fmt.Fprintf(&b, "- Name: %s\n- Position: %s\n- Unternehmen: %s\n\n", sender.Name, sender.Title, sender.Company)
	b.WriteString("STIL: Professionell, konkret, 250-350 Wörter.\n")
	b.WriteString("Schreibe NUR die Email, keine Metakommentare.")
	return b.String()
}

func subjectPrompt(contact model.Contact) string {
	first, _ := contact.Get("first_name")
	last, _ := contact.Get("last_name")
	return fmt.Sprintf("Erstelle einen professionellen Email-Betreff für %s %s bei %s. Max 60 Zeichen, Deutsch.",
		first, last, contact.Company())
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

func (c *Client) chat(ctx context.Context, messages []chatMessage, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{StatusCode: res.StatusCode, URL: url, Body: string(buf)}
	}

	var payload chatResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&payload); err != nil {
		return "", fmt.Errorf("openai: decode response: %w", err)
	}
	if len(payload.Choices) == 0 {
		return "", errors.New("openai: no choices in response")
	}
	content := strings.TrimSpace(payload.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("openai: empty completion")
	}
	return content, nil
}
