// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCircuitOpen is returned when a run halts after too many consecutive failures
var ErrCircuitOpen = errors.New("campaign halted: consecutive failure threshold reached")

// ErrRunStarted is returned when a run header shows the run already began,
// e.g. for a redelivered job
var ErrRunStarted = errors.New("campaign run already started")

// ErrInvalidContact marks a contact without a usable email address
var ErrInvalidContact = errors.New("invalid contact")

// ConfigError is fatal: it must surface before any send happens.
type ConfigError struct {
	Source string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error in %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("config error in %s: %s", e.Source, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Helper constructor
func NewConfigError(source, reason string, err error) error {
	return &ConfigError{Source: source, Reason: reason, Err: err}
}

// SendError describes a single failed delivery attempt.
type SendError struct {
	Recipient string
	Transport string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s send to %s failed: %v", e.Transport, e.Recipient, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

func NewSendError(transport, recipient string, err error) error {
	return &SendError{Recipient: recipient, Transport: transport, Err: err}
}

// PersonalizationError lists placeholders that were left unresolved.
type PersonalizationError struct {
	Keys []string
}

func (e *PersonalizationError) Error() string {
	return fmt.Sprintf("unresolved placeholders: %s", strings.Join(e.Keys, ", "))
}

// ErrRunNotFound is returned when a campaign run id is unknown
type ErrRunNotFound struct {
	RunID string
}

func (e *ErrRunNotFound) Error() string {
	return fmt.Sprintf("campaign run %s not found", e.RunID)
}

func NewRunNotFound(id string) error {
	return &ErrRunNotFound{RunID: id}
}
