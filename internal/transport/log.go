package transport

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogTransport accepts every message without delivering it. It is selected
// when no provider credentials are configured.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) Send(_ context.Context, to, subject, body string) Outcome {
	id := "dry-run-" + uuid.NewString()
	t.logger.Info("dry-run send",
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
		zap.String("id", id))
	return Outcome{Accepted: true, MessageID: id}
}
