// Package config resolves the credential set a check needs before it may
// touch the network. Flags win over the conventional OS_* environment
// variables; a check with an unresolved credential set reports UNKNOWN
// without ever attempting the service call.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// DefaultTimeout bounds the probe's service call when --timeout is absent.
const DefaultTimeout = 10 * time.Second

// Config carries everything one check invocation needs. It is resolved once
// per process and read-only afterwards; there is no cached session state.
type Config struct {
	AuthURL     string `envconfig:"AUTH_URL"`
	Username    string `envconfig:"USERNAME"`
	Password    string `envconfig:"PASSWORD"`
	TenantName  string `envconfig:"TENANT_NAME"`
	ProjectName string `envconfig:"PROJECT_NAME"`
	DomainName  string `envconfig:"USER_DOMAIN_NAME" default:"Default"`
	RegionName  string `envconfig:"REGION_NAME"`
	CACert      string `envconfig:"CACERT"`

	Timeout time.Duration `ignored:"true"`
}

// FromEnv reads the conventional OS_* variables as the fallback credential
// source.
func FromEnv() (Config, error) {
	cfg := Config{Timeout: DefaultTimeout}
	if err := envconfig.Process("os", &cfg); err != nil {
		return Config{}, errors.Wrap(err, "reading OS_* environment")
	}
	return cfg, nil
}

// Project returns the project scope, honoring the older tenant spelling.
func (c Config) Project() string {
	if c.ProjectName != "" {
		return c.ProjectName
	}
	return c.TenantName
}

// Validate reports every missing required credential in a single message.
func (c Config) Validate() error {
	var missing []string
	if c.AuthURL == "" {
		missing = append(missing, "auth URL")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing credentials: %s", strings.Join(missing, ", "))
	}
	return c.ValidateTimeout()
}

// ValidateTimeout checks only the execution bound. Checks that carry their
// own credentials (broker URI, resolver address) validate with this alone.
func (c Config) ValidateTimeout() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return nil
}
