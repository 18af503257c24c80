package webhook_engine

import (
	"errors"
	"time"
)

// ProviderElevenLabs is the provider name written to every audit row.
const ProviderElevenLabs = "elevenlabs"

var (
	ErrSecretNotConfigured = errors.New("webhook secret not configured")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrMalformedPayload    = errors.New("malformed payload")
	ErrSessionNotFound     = errors.New("session not found")
	ErrBodyTooLarge        = errors.New("body too large")
)

// Config tunes the webhook pipeline.
//
// Provider:           provider name recorded in the audit log.
// SignatureTolerance: max age of a timestamped signature (t=...,v0=...). Zero disables the age check.
// AuditTimeout:       budget for the audit insert; it runs detached from request cancellation.
type Config struct {
	Provider           string
	SignatureTolerance time.Duration
	AuditTimeout       time.Duration
}

// DefaultConfig returns the values used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Provider:           ProviderElevenLabs,
		SignatureTolerance: 30 * time.Minute,
		AuditTimeout:       10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Provider == "" {
		c.Provider = def.Provider
	}
	if c.AuditTimeout <= 0 {
		c.AuditTimeout = def.AuditTimeout
	}
	return c
}
