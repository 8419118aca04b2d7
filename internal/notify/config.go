package notify

import (
	"fmt"
	"time"
)

// DefaultRecipient receives notifications when no "to" address is
// configured.
const DefaultRecipient = "basithabdul2608@gmail.com"

// Config holds the SMTP relay settings. It is embedded in the top-level
// Envoy config under the "notify" YAML key.
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// From is the sender address. Defaults to Username.
	From string `yaml:"from"`

	// To overrides DefaultRecipient.
	To string `yaml:"to"`

	// StartTLS upgrades a plain connection with STARTTLS. When false
	// the connection uses implicit TLS (port 465 convention).
	StartTLS bool `yaml:"starttls"`

	// Plaintext disables TLS entirely. Only for local relays.
	Plaintext bool `yaml:"plaintext"`

	// Timeout bounds the dial and the whole SMTP transaction.
	Timeout time.Duration `yaml:"timeout"`
}

// Configured reports whether the relay host and credentials are all set.
// Without them no connection is ever attempted.
func (c Config) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != ""
}

// Recipient returns the notification destination.
func (c Config) Recipient() string {
	if c.To != "" {
		return c.To
	}
	return DefaultRecipient
}

// Sender returns the From address.
func (c Config) Sender() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}

// ApplyDefaults fills zero-value fields with sensible defaults.
// Called by the parent config's applyDefaults method.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 587
	}
	// STARTTLS defaults to true except on the implicit-TLS port.
	if !c.StartTLS && !c.Plaintext && c.Port != 465 {
		c.StartTLS = true
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// Validate checks that the notification configuration is internally
// consistent.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("notify.port %d out of range (1-65535)", c.Port)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("notify.timeout must not be negative")
	}
	if c.StartTLS && c.Plaintext {
		return fmt.Errorf("notify.starttls and notify.plaintext are mutually exclusive")
	}
	return nil
}
