package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration. Values resolve in
// three layers: built-in defaults, then the first TOML file found, then
// ISSUEFLOW_* environment variables. A double underscore separates
// sections in environment keys, so ISSUEFLOW_GITHUB__APP_ID sets
// github.app_id.
type Config struct {
	Server struct {
		Port int `koanf:"port"`
	} `koanf:"server"`

	GitHub struct {
		AppID          string `koanf:"app_id"`
		PrivateKeyPath string `koanf:"private_key_path"`
		WebhookSecret  string `koanf:"webhook_secret"`
		APIBaseURL     string `koanf:"api_base_url"`
	} `koanf:"github"`

	Agent struct {
		Provider     string  `koanf:"provider"`
		APIKey       string  `koanf:"api_key"`
		Model        string  `koanf:"model"`
		Temperature  float64 `koanf:"temperature"`
		MaxTokens    int     `koanf:"max_tokens"`
		YandexFolder string  `koanf:"yandex_folder"`
	} `koanf:"agent"`

	Workflow struct {
		MaxIterations  int `koanf:"max_iterations"`
		TimeoutSeconds int `koanf:"timeout_seconds"`
	} `koanf:"workflow"`

	Database struct {
		URL string `koanf:"url"`
	} `koanf:"database"`
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"server.port":              8080,
		"github.api_base_url":      "https://api.github.com",
		"agent.provider":           "openrouter",
		"agent.temperature":        0.2,
		"agent.max_tokens":         4096,
		"workflow.max_iterations":  5,
		"workflow.timeout_seconds": 300,
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations
		defaultPaths := []string{"./issueflow.toml", "$HOME/.issueflow.toml", "/etc/issueflow/issueflow.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix ISSUEFLOW_
	k.Load(env.Provider("ISSUEFLOW_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "ISSUEFLOW_")
		return strings.Replace(strings.ToLower(s), "__", ".", -1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	// Create sample configuration
	sampleConfig := `# IssueFlow Configuration

[server]
port = 8080

[github]
app_id = ""
private_key_path = "private-key.pem"
webhook_secret = ""
api_base_url = "https://api.github.com"

[agent]
provider = "openrouter"
api_key = ""
model = "openai/gpt-4o-mini"
temperature = 0.2
max_tokens = 4096
yandex_folder = ""

[workflow]
max_iterations = 5
timeout_seconds = 300

[database]
url = ""
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if config.GitHub.AppID == "" {
		return fmt.Errorf("github app_id is required")
	}
	if config.GitHub.PrivateKeyPath == "" {
		return fmt.Errorf("github private_key_path is required")
	}
	if config.GitHub.WebhookSecret == "" {
		return fmt.Errorf("github webhook_secret is required")
	}

	if config.Agent.APIKey == "" {
		return fmt.Errorf("agent api_key is required")
	}
	if config.Agent.Model == "" {
		return fmt.Errorf("agent model is required")
	}
	switch config.Agent.Provider {
	case "openrouter":
	case "yandexgpt":
		if config.Agent.YandexFolder == "" {
			return fmt.Errorf("agent yandex_folder is required for the yandexgpt provider")
		}
	default:
		return fmt.Errorf("unsupported agent provider: %s", config.Agent.Provider)
	}

	if config.Workflow.MaxIterations <= 0 {
		return fmt.Errorf("workflow max_iterations must be positive")
	}

	return nil
}
