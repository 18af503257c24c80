package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// SettingsSchemaVersion is bumped whenever a section gains or renames a field.
const SettingsSchemaVersion = 1

// Keys of the rows backing each settings section.
const (
	SettingsKeyBranding   = "branding"
	SettingsKeyLanding    = "landing"
	SettingsKeyEmail      = "email"
	SettingsKeyElevenLabs = "elevenlabs"
)

var ErrUnknownSettingsKey = errors.New("unknown settings key")

type BrandingSettings struct {
	LogoPath     *string `json:"logo_path"`
	PrimaryColor string  `json:"primary_color"`
}

type LandingSettings struct {
	ServiceName string `json:"serviceName"`
	Headline    string `json:"headline"`
	SubClaim    string `json:"subClaim"`
	Lead        string `json:"lead"`
	CTALogin    string `json:"cta_login"`
	CTARegister string `json:"cta_register"`
}

type EmailSettings struct {
	Enabled    bool   `json:"enabled"`
	SenderName string `json:"sender_name"`
}

type ElevenLabsSettings struct {
	Secret string `json:"secret,omitempty"`
}

// Settings is the typed view over the key/value settings table.
type Settings struct {
	Version    int                `json:"version"`
	Branding   BrandingSettings   `json:"branding"`
	Landing    LandingSettings    `json:"landing"`
	Email      EmailSettings      `json:"email"`
	ElevenLabs ElevenLabsSettings `json:"elevenlabs"`
}

// DefaultSettings returns the values used when a section has never been saved.
func DefaultSettings() Settings {
	return Settings{
		Version: SettingsSchemaVersion,
		Branding: BrandingSettings{
			PrimaryColor: "#0BA37F",
		},
		Landing: LandingSettings{
			ServiceName: "Parley",
			Headline:    "Trenuj rozmowy, które liczą się naprawdę",
			SubClaim:    "Ćwicz z agentami AI i otrzymuj szczegółowy feedback",
			Lead:        "Rozpocznij swoją podróż do perfekcji komunikacji",
			CTALogin:    "Zaloguj się",
			CTARegister: "Utwórz konto",
		},
		Email: EmailSettings{
			Enabled:    false,
			SenderName: "Parley",
		},
	}
}

// ParseSettings overlays stored rows on top of the defaults. Unknown keys are
// skipped; a row that does not decode is reported so a bad admin write is visible.
func ParseSettings(rows []Setting) (Settings, error) {
	s := DefaultSettings()
	var errs []error
	for _, row := range rows {
		if len(row.Value) == 0 || string(row.Value) == "null" {
			continue
		}
		target, ok := s.section(row.Key)
		if !ok {
			continue
		}
		if err := json.Unmarshal(row.Value, target); err != nil {
			errs = append(errs, fmt.Errorf("settings %q: %w", row.Key, err))
		}
	}
	s.ElevenLabs.Secret = strings.TrimSpace(s.ElevenLabs.Secret)
	return s, errors.Join(errs...)
}

// DecodeSection validates a single section write and returns its canonical JSON.
// Fields missing from value keep their current values.
func (s Settings) DecodeSection(key string, value json.RawMessage) (json.RawMessage, error) {
	target, ok := s.section(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSettingsKey, key)
	}
	if err := json.Unmarshal(value, target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(target)
}

var hexColor = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

func (s Settings) Validate() error {
	if !hexColor.MatchString(s.Branding.PrimaryColor) {
		return fmt.Errorf("branding.primary_color %q is not a hex color", s.Branding.PrimaryColor)
	}
	if strings.TrimSpace(s.Landing.ServiceName) == "" {
		return errors.New("landing.serviceName is required")
	}
	return nil
}

// Public strips everything that must not reach unauthenticated clients.
func (s Settings) Public() map[string]any {
	return map[string]any{
		"version":  s.Version,
		"branding": s.Branding,
		"landing":  s.Landing,
	}
}

// Masked is the admin view: the webhook secret is reduced to a presence flag.
func (s Settings) Masked() map[string]any {
	return map[string]any{
		"version":  s.Version,
		"branding": s.Branding,
		"landing":  s.Landing,
		"email":    s.Email,
		"elevenlabs": map[string]any{
			"has_secret": s.ElevenLabs.Secret != "",
		},
	}
}

// section returns a pointer into s so Unmarshal overlays on the current values.
func (s *Settings) section(key string) (any, bool) {
	switch key {
	case SettingsKeyBranding:
		return &s.Branding, true
	case SettingsKeyLanding:
		return &s.Landing, true
	case SettingsKeyEmail:
		return &s.Email, true
	case SettingsKeyElevenLabs:
		return &s.ElevenLabs, true
	default:
		return nil, false
	}
}
