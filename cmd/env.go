package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/issueflow/internal/config"
)

// ConfigCheckResult holds the result of configuration validation
type ConfigCheckResult struct {
	Missing  []string          // Required values that are missing
	Present  map[string]string // Values that are set (secrets masked)
	Warnings []string          // Non-fatal warnings
	Provider string            // Configured agent provider
}

// CheckRequiredConfig reports which of the resolved configuration values
// the service cannot start without.
func CheckRequiredConfig(cfg *config.Config) *ConfigCheckResult {
	result := &ConfigCheckResult{
		Missing:  []string{},
		Present:  make(map[string]string),
		Warnings: []string{},
		Provider: cfg.Agent.Provider,
	}

	required := map[string]struct {
		value  string
		secret bool
	}{
		"github.app_id":           {value: cfg.GitHub.AppID},
		"github.private_key_path": {value: cfg.GitHub.PrivateKeyPath},
		"github.webhook_secret":   {value: cfg.GitHub.WebhookSecret, secret: true},
		"agent.api_key":           {value: cfg.Agent.APIKey, secret: true},
		"agent.model":             {value: cfg.Agent.Model},
	}

	for key, entry := range required {
		if entry.value == "" {
			result.Missing = append(result.Missing, key)
			continue
		}
		if entry.secret {
			result.Present[key] = maskSecret(entry.value)
		} else {
			result.Present[key] = entry.value
		}
	}

	if cfg.Agent.Provider == "yandexgpt" && cfg.Agent.YandexFolder == "" {
		result.Missing = append(result.Missing, "agent.yandex_folder")
	}

	if cfg.Database.URL == "" {
		result.Warnings = append(result.Warnings, "database.url is not set; the audit trail is disabled")
	} else {
		result.Present["database.url"] = maskSecret(cfg.Database.URL)
	}

	return result
}

// PrintConfigCheck prints the configuration check results
func PrintConfigCheck(result *ConfigCheckResult) {
	fmt.Println("=== Configuration Check ===")
	fmt.Printf("Provider: %s\n", result.Provider)
	fmt.Println("")

	if len(result.Missing) > 0 {
		fmt.Println("❌ Missing required values:")
		for _, v := range result.Missing {
			fmt.Printf("   - %s\n", v)
		}
		fmt.Println("")
	}

	if len(result.Present) > 0 {
		fmt.Println("✓ Configured values:")
		for k, v := range result.Present {
			fmt.Printf("   - %s = %s\n", k, v)
		}
		fmt.Println("")
	}

	for _, w := range result.Warnings {
		fmt.Printf("⚠ Warning: %s\n", w)
	}

	if len(result.Missing) == 0 {
		fmt.Println("✓ All required configuration is present")
	}

	fmt.Println("============================")
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

// LoadEnvFile loads environment variables from a file, overwriting existing ones.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 && ((value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'')) {
			value = value[1 : len(value)-1]
		}

		// Overwrite environment variable
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}
