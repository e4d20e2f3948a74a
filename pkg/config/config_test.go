package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvReadsConventionalVariables(t *testing.T) {
	t.Setenv("OS_AUTH_URL", "https://keystone.example.com:5000/v3")
	t.Setenv("OS_USERNAME", "monitoring")
	t.Setenv("OS_PASSWORD", "hunter2")
	t.Setenv("OS_TENANT_NAME", "ops")
	t.Setenv("OS_REGION_NAME", "regionOne")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://keystone.example.com:5000/v3", cfg.AuthURL)
	assert.Equal(t, "monitoring", cfg.Username)
	assert.Equal(t, "hunter2", cfg.Password)
	assert.Equal(t, "ops", cfg.TenantName)
	assert.Equal(t, "regionOne", cfg.RegionName)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, "Default", cfg.DomainName)
}

func TestProjectPrefersProjectName(t *testing.T) {
	cfg := Config{TenantName: "old", ProjectName: "new"}
	assert.Equal(t, "new", cfg.Project())

	cfg.ProjectName = ""
	assert.Equal(t, "old", cfg.Project())
}

func TestValidateReportsAllMissingCredentials(t *testing.T) {
	cfg := Config{Timeout: time.Second}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth URL")
	assert.Contains(t, err.Error(), "username")
	assert.Contains(t, err.Error(), "password")
}

func TestValidateAcceptsResolvedConfig(t *testing.T) {
	cfg := Config{
		AuthURL:  "https://keystone.example.com:5000/v3",
		Username: "monitoring",
		Password: "hunter2",
		Timeout:  time.Second,
	}
	assert.NoError(t, cfg.Validate())
}

func TestValidateTimeout(t *testing.T) {
	assert.Error(t, Config{}.ValidateTimeout())
	assert.Error(t, Config{Timeout: -time.Second}.ValidateTimeout())
	assert.NoError(t, Config{Timeout: time.Second}.ValidateTimeout())
}
