package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// PartnerDirectory holds the credentials and enablement flag for one
// environment of the partner-integration directory.
type PartnerDirectory struct {
	Enabled            bool   `env:"ENABLED" envDefault:"false"`
	BaseURL            string `env:"BASE_URL"`
	ClientID           string `env:"CLIENT_ID"`
	ClientSecret       string `env:"CLIENT_SECRET"`
	AccessClientID     string `env:"ACCESS_CLIENT_ID"`
	AccessClientSecret string `env:"ACCESS_CLIENT_SECRET"`
}

// Config holds all application configuration.
type Config struct {
	Addr          string `env:"WARDEN_ADDR" envDefault:":8080"`
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`

	// Scope sets required by the authorization policy. A caller must hold
	// every scope in the relevant set.
	ManageDeviceScopes      []string `env:"SCOPES_MANAGE_DEVICE" envSeparator:"," envDefault:"partner:device:manage"`
	ManageCertificateScopes []string `env:"SCOPES_MANAGE_CERTIFICATE" envSeparator:"," envDefault:"partner:certificate:manage"`

	PKIEndpoint       string `env:"PKI_CERT_ENDPOINT"`
	PKIRevokeEndpoint string `env:"PKI_CERT_REVOKE_ENDPOINT"`
	PKIToken          string `env:"PKI_SECRET"`
	PKITemplateID     string `env:"PKI_TEMPLATE_ID"`
	PKICAID           string `env:"PKI_CA_ID"`
	PKICAName         string `env:"PKI_CA_NAME"`

	// ExpiryMonths is added to the activation time to compute device expiry.
	ExpiryMonths int `env:"DEVICE_EXPIRY_MONTHS" envDefault:"24"`

	PartnerProd PartnerDirectory `envPrefix:"PARTNER_DIR_PROD_"`
	PartnerTest PartnerDirectory `envPrefix:"PARTNER_DIR_TEST_"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would fail mid-transition rather than
// at startup.
func (c *Config) Validate() error {
	required := map[string]string{
		"PKI_CERT_ENDPOINT":        c.PKIEndpoint,
		"PKI_CERT_REVOKE_ENDPOINT": c.PKIRevokeEndpoint,
		"PKI_SECRET":               c.PKIToken,
		"PKI_TEMPLATE_ID":          c.PKITemplateID,
		"PKI_CA_ID":                c.PKICAID,
		"PKI_CA_NAME":              c.PKICAName,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("missing required PKI configuration: %s", name)
		}
	}
	if c.ExpiryMonths <= 0 {
		return fmt.Errorf("DEVICE_EXPIRY_MONTHS must be a positive integer, got %d", c.ExpiryMonths)
	}
	if err := c.PartnerProd.validate("PARTNER_DIR_PROD"); err != nil {
		return err
	}
	return c.PartnerTest.validate("PARTNER_DIR_TEST")
}

func (p *PartnerDirectory) validate(prefix string) error {
	if !p.Enabled {
		return nil
	}
	if p.BaseURL == "" || p.ClientID == "" || p.ClientSecret == "" {
		return fmt.Errorf("%s integration is enabled but credentials are incomplete", prefix)
	}
	return nil
}
