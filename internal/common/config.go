package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Account     AccountConfig `toml:"account"`
	Printer     PrinterConfig `toml:"printer"`
	Cloud       CloudConfig   `toml:"cloud"`
	Setup       SetupConfig   `toml:"setup"`
	MCP         MCPConfig     `toml:"mcp"`
	Tools       ToolsConfig   `toml:"tools"`
	Logging     LoggingConfig `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

// AccountConfig holds the Bambu cloud account credentials.
// Token is optional: when set, it seeds the session so no login is needed.
type AccountConfig struct {
	Email    string `toml:"email" validate:"omitempty,email"`
	Password string `toml:"password"`
	Token    string `toml:"token"` // Pre-seeded access token (whitespace is trimmed)
}

// PrinterConfig identifies the single configured device
type PrinterConfig struct {
	Serial string `toml:"serial"` // Device serial, e.g. "0948BB5B1200532"
}

// CloudConfig contains Bambu cloud API client settings
type CloudConfig struct {
	BaseURL        string        `toml:"base_url" validate:"omitempty,url"`
	RequestTimeout time.Duration `toml:"request_timeout"` // Per-request HTTP timeout
	RateLimit      int           `toml:"rate_limit"`      // Max requests per second to the vendor API
	UserAgent      string        `toml:"user_agent"`      // Override the default client user agent
	UploadMaxBytes int64         `toml:"upload_max_bytes"`
}

// SetupConfig guards the operator setup endpoints
type SetupConfig struct {
	Key string `toml:"key"` // When set, /setup/* requires this value in X-Setup-Key
}

// MCPConfig contains MCP server identification
type MCPConfig struct {
	ServerName string `toml:"server_name"`
}

// ToolsConfig contains tool dispatch settings
type ToolsConfig struct {
	CallTimeout time.Duration `toml:"call_timeout"` // Upper bound for a single tool invocation
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in bambucloud.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development", // Default to development mode
		Server: ServerConfig{
			Port: 8000,
			Host: "0.0.0.0", // Bind all interfaces - service typically runs in a container
		},
		Account: AccountConfig{},
		Printer: PrinterConfig{
			Serial: "0948BB5B1200532", // Default device serial, override per deployment
		},
		Cloud: CloudConfig{
			BaseURL:        "https://api.bambulab.com",
			RequestTimeout: 30 * time.Second,
			RateLimit:      5,                 // Vendor API is rate-sensitive, stay polite
			UploadMaxBytes: 100 * 1024 * 1024, // 100 MB cap, matches vendor-side limit
		},
		Setup: SetupConfig{
			Key: "", // Empty = setup endpoints are open (local development)
		},
		MCP: MCPConfig{
			ServerName: "bambu-printer",
		},
		Tools: ToolsConfig{
			CallTimeout: 45 * time.Second, // Covers auth round trip plus one refresh-and-retry
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. Priority system: Environment variables > Last config file > ... > First config file > Defaults
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	// Seeded tokens often arrive via copy-paste with stray whitespace
	config.Account.Token = strings.TrimSpace(config.Account.Token)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: BAMBUCLOUD_ENV, fallback: RAILWAY_ENVIRONMENT)
	if env := os.Getenv("BAMBUCLOUD_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("RAILWAY_ENVIRONMENT"); env != "" {
		config.Environment = env
	}

	// Server configuration (PORT is what Railway/Heroku style platforms inject)
	if port := os.Getenv("BAMBUCLOUD_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	} else if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("BAMBUCLOUD_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Account configuration
	// New names first, then the legacy deployment names for backward compatibility
	if email := os.Getenv("BAMBUCLOUD_ACCOUNT_EMAIL"); email != "" {
		config.Account.Email = email
	} else if email := os.Getenv("BAMBU_EMAIL"); email != "" {
		config.Account.Email = email // Deprecated: backward compatibility
	}
	if password := os.Getenv("BAMBUCLOUD_ACCOUNT_PASSWORD"); password != "" {
		config.Account.Password = password
	} else if password := os.Getenv("BAMBU_PASSWORD"); password != "" {
		config.Account.Password = password // Deprecated: backward compatibility
	}
	if token := os.Getenv("BAMBUCLOUD_ACCOUNT_TOKEN"); token != "" {
		config.Account.Token = token
	} else if token := os.Getenv("BAMBU_TOKEN"); token != "" {
		config.Account.Token = token // Deprecated: backward compatibility
	}

	// Printer configuration
	if serial := os.Getenv("BAMBUCLOUD_PRINTER_SERIAL"); serial != "" {
		config.Printer.Serial = serial
	} else if serial := os.Getenv("BAMBU_DEVICE_ID"); serial != "" {
		config.Printer.Serial = serial // Deprecated: backward compatibility
	}

	// Cloud configuration
	if baseURL := os.Getenv("BAMBUCLOUD_CLOUD_BASE_URL"); baseURL != "" {
		config.Cloud.BaseURL = baseURL
	}
	if requestTimeout := os.Getenv("BAMBUCLOUD_CLOUD_REQUEST_TIMEOUT"); requestTimeout != "" {
		if rt, err := time.ParseDuration(requestTimeout); err == nil {
			config.Cloud.RequestTimeout = rt
		}
	}
	if rateLimit := os.Getenv("BAMBUCLOUD_CLOUD_RATE_LIMIT"); rateLimit != "" {
		if rl, err := strconv.Atoi(rateLimit); err == nil {
			config.Cloud.RateLimit = rl
		}
	}
	if userAgent := os.Getenv("BAMBUCLOUD_CLOUD_USER_AGENT"); userAgent != "" {
		config.Cloud.UserAgent = userAgent
	}
	if uploadMax := os.Getenv("BAMBUCLOUD_CLOUD_UPLOAD_MAX_BYTES"); uploadMax != "" {
		if um, err := strconv.ParseInt(uploadMax, 10, 64); err == nil {
			config.Cloud.UploadMaxBytes = um
		}
	}

	// Setup configuration
	if key := os.Getenv("BAMBUCLOUD_SETUP_KEY"); key != "" {
		config.Setup.Key = key
	} else if key := os.Getenv("SETUP_KEY"); key != "" {
		config.Setup.Key = key // Deprecated: backward compatibility
	}

	// MCP configuration
	if serverName := os.Getenv("BAMBUCLOUD_MCP_SERVER_NAME"); serverName != "" {
		config.MCP.ServerName = serverName
	}

	// Tools configuration
	if callTimeout := os.Getenv("BAMBUCLOUD_TOOLS_CALL_TIMEOUT"); callTimeout != "" {
		if ct, err := time.ParseDuration(callTimeout); err == nil {
			config.Tools.CallTimeout = ct
		}
	}

	// Logging configuration
	if level := os.Getenv("BAMBUCLOUD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("BAMBUCLOUD_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("BAMBUCLOUD_LOG_OUTPUT"); output != "" {
		// Split comma-separated output types
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration using go-playground/validator tags
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HasCredentials returns true if a password login is possible
func (c *Config) HasCredentials() bool {
	return c.Account.Email != "" && c.Account.Password != ""
}

// HasSeededToken returns true if a pre-seeded access token is configured
func (c *Config) HasSeededToken() bool {
	return c.Account.Token != ""
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
