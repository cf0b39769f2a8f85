package transport

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-backend/internal/config"
)

// New builds the transport named by CAMPAIGN_TRANSPORT.
func New(cfg config.Config, logger *zap.Logger) (Transport, error) {
	switch strings.ToLower(cfg.Campaign.Transport) {
	case "resend":
		return NewResendTransport(cfg.Resend.APIKey, cfg.Sender.From(), logger,
			WithBaseURL(cfg.Resend.BaseURL),
			WithTimeout(cfg.Resend.Timeout),
			WithReplyTo(cfg.Sender.Email))
	case "smtp":
		return NewSMTPTransport(cfg.SMTP, cfg.Sender, logger), nil
	case "log":
		return NewLogTransport(logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Campaign.Transport)
	}
}
