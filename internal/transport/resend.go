package transport

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

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

const defaultResendBaseURL = "https://api.resend.com"

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
	ReplyTo string   `json:"reply_to,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

// HTTPStatusError captures non-2xx responses from the provider.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("resend: unexpected status %d: %s", e.StatusCode, e.Body)
}

// ResendTransport posts messages to the Resend transactional API.
type ResendTransport struct {
	apiKey     string
	from       string
	replyTo    string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

type ResendOption func(*ResendTransport)

func WithBaseURL(baseURL string) ResendOption {
	return func(t *ResendTransport) {
		t.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

func WithHTTPClient(c *http.Client) ResendOption {
	return func(t *ResendTransport) {
		t.httpClient = c
	}
}

func WithTimeout(d time.Duration) ResendOption {
	return func(t *ResendTransport) {
		t.httpClient = &http.Client{Timeout: d}
	}
}

func WithReplyTo(addr string) ResendOption {
	return func(t *ResendTransport) {
		t.replyTo = addr
	}
}

// NewResendTransport requires an API key and a from address.
func NewResendTransport(apiKey, from string, logger *zap.Logger, opts ...ResendOption) (*ResendTransport, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("resend: api key must not be empty")
	}
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("resend: from address must not be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &ResendTransport{
		apiKey:     apiKey,
		from:       from,
		baseURL:    defaultResendBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *ResendTransport) Name() string { return "resend" }

// Send calls the API exactly once.
func (t *ResendTransport) Send(ctx context.Context, to, subject, body string) Outcome {
	id, err := t.post(ctx, resendRequest{
		From:    t.from,
		To:      []string{to},
		Subject: subject,
		HTML:    ToHTML(body),
		Text:    body,
		ReplyTo: t.replyTo,
	})
	if err != nil {
		err = appErrors.NewSendError(t.Name(), to, err)
		t.logger.Error("send failed", zap.String("transport", t.Name()), zap.String("to", to), zap.Error(err))
		return rejected(err)
	}
	t.logger.Info("email accepted", zap.String("transport", t.Name()), zap.String("to", to), zap.String("id", id))
	return Outcome{Accepted: true, MessageID: id}
}

func (t *ResendTransport) post(ctx context.Context, payload resendRequest) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	res, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{StatusCode: res.StatusCode, Body: string(buf)}
	}

	var out resendResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.ID == "" {
		return "", errors.New("response carried no message id")
	}
	return out.ID, nil
}
