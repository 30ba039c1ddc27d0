package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 8000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, "0948BB5B1200532", config.Printer.Serial)
	assert.Equal(t, "https://api.bambulab.com", config.Cloud.BaseURL)
	assert.Equal(t, 30*time.Second, config.Cloud.RequestTimeout)
	assert.Equal(t, "bambu-printer", config.MCP.ServerName)
	assert.Equal(t, 45*time.Second, config.Tools.CallTimeout)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Empty(t, config.Account.Token)
	assert.Empty(t, config.Setup.Key)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bambucloud.toml")

	content := `
environment = "production"

[server]
port = 9000

[account]
email = "operator@example.com"
token = "  seeded-token  "

[printer]
serial = "01P00A123456789"

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "operator@example.com", config.Account.Email)
	assert.Equal(t, "01P00A123456789", config.Printer.Serial)
	assert.Equal(t, "debug", config.Logging.Level)

	// Values not present in the file keep their defaults
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, "https://api.bambulab.com", config.Cloud.BaseURL)

	// Seeded token is trimmed
	assert.Equal(t, "seeded-token", config.Account.Token)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadFromFilesLaterOverridesEarlier(t *testing.T) {
	dir := t.TempDir()

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte("[server]\nport = 9000\nhost = \"127.0.0.1\"\n"), 0644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte("[server]\nport = 9100\n"), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, 9100, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		assert func(t *testing.T, c *Config)
	}{
		{
			name: "namespaced variables",
			env: map[string]string{
				"BAMBUCLOUD_SERVER_PORT":    "9200",
				"BAMBUCLOUD_ACCOUNT_EMAIL":  "env@example.com",
				"BAMBUCLOUD_PRINTER_SERIAL": "ENVSERIAL001",
				"BAMBUCLOUD_LOG_LEVEL":      "warn",
			},
			assert: func(t *testing.T, c *Config) {
				assert.Equal(t, 9200, c.Server.Port)
				assert.Equal(t, "env@example.com", c.Account.Email)
				assert.Equal(t, "ENVSERIAL001", c.Printer.Serial)
				assert.Equal(t, "warn", c.Logging.Level)
			},
		},
		{
			name: "legacy deployment variables",
			env: map[string]string{
				"BAMBU_EMAIL":     "legacy@example.com",
				"BAMBU_PASSWORD":  "legacy-pass",
				"BAMBU_TOKEN":     "legacy-token",
				"BAMBU_DEVICE_ID": "LEGACY001",
				"PORT":            "7777",
				"SETUP_KEY":       "sk-legacy",
			},
			assert: func(t *testing.T, c *Config) {
				assert.Equal(t, "legacy@example.com", c.Account.Email)
				assert.Equal(t, "legacy-pass", c.Account.Password)
				assert.Equal(t, "legacy-token", c.Account.Token)
				assert.Equal(t, "LEGACY001", c.Printer.Serial)
				assert.Equal(t, 7777, c.Server.Port)
				assert.Equal(t, "sk-legacy", c.Setup.Key)
			},
		},
		{
			name: "namespaced beats legacy",
			env: map[string]string{
				"BAMBUCLOUD_ACCOUNT_EMAIL": "new@example.com",
				"BAMBU_EMAIL":              "old@example.com",
				"BAMBUCLOUD_SERVER_PORT":   "9300",
				"PORT":                     "7777",
			},
			assert: func(t *testing.T, c *Config) {
				assert.Equal(t, "new@example.com", c.Account.Email)
				assert.Equal(t, 9300, c.Server.Port)
			},
		},
		{
			name: "durations and output list",
			env: map[string]string{
				"BAMBUCLOUD_TOOLS_CALL_TIMEOUT":    "90s",
				"BAMBUCLOUD_CLOUD_REQUEST_TIMEOUT": "10s",
				"BAMBUCLOUD_LOG_OUTPUT":            "stdout, file",
			},
			assert: func(t *testing.T, c *Config) {
				assert.Equal(t, 90*time.Second, c.Tools.CallTimeout)
				assert.Equal(t, 10*time.Second, c.Cloud.RequestTimeout)
				assert.Equal(t, []string{"stdout", "file"}, c.Logging.Output)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			config := NewDefaultConfig()
			applyEnvOverrides(config)
			tt.assert(t, config)
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, 9400, "localhost")
	assert.Equal(t, 9400, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)

	// Zero values leave the config untouched
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 9400, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
}

func TestConfigValidate(t *testing.T) {
	config := NewDefaultConfig()
	assert.NoError(t, config.Validate())

	config.Account.Email = "not-an-email"
	assert.Error(t, config.Validate())

	config.Account.Email = "ok@example.com"
	assert.NoError(t, config.Validate())

	config.Server.Port = 70000
	assert.Error(t, config.Validate())
}

func TestIsProduction(t *testing.T) {
	config := NewDefaultConfig()
	assert.False(t, config.IsProduction())

	config.Environment = "production"
	assert.True(t, config.IsProduction())

	config.Environment = " PROD "
	assert.True(t, config.IsProduction())
}

func TestHasCredentials(t *testing.T) {
	config := NewDefaultConfig()
	assert.False(t, config.HasCredentials())
	assert.False(t, config.HasSeededToken())

	config.Account.Email = "a@b.com"
	assert.False(t, config.HasCredentials())

	config.Account.Password = "pw"
	assert.True(t, config.HasCredentials())

	config.Account.Token = "tok"
	assert.True(t, config.HasSeededToken())
}
