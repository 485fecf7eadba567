package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const Name = "agora"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

// AppConfig is the process configuration, read from config.yaml with
// AGORA_* environment overrides on top.
type AppConfig struct {
	Conf struct {
		Host       string `yaml:"host"`
		HttpPort   int    `yaml:"httpPort"`
		Domain     string `yaml:"domain"`
		DbPath     string `yaml:"dbPath"`
		Federation struct {
			Enabled          bool     `yaml:"enabled"`
			AllowedInstances []string `yaml:"allowedInstances"`
			BlockedInstances []string `yaml:"blockedInstances"`
			StrictAllowlist  bool     `yaml:"strictAllowlist"`
			RequestBudget    int      `yaml:"requestBudget"`
		} `yaml:"federation"`
	} `yaml:"conf"`
}

// BaseURL returns the canonical https origin of this instance, used as
// the prefix of every locally minted actor and activity id.
func (c *AppConfig) BaseURL() string {
	return fmt.Sprintf("https://%s", c.Conf.Domain)
}

// HostAllowed applies the instance block and allow lists to a remote
// host. The blocklist always wins, and with strictAllowlist enabled a
// host must appear on the allowlist explicitly.
func (c *AppConfig) HostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, blocked := range c.Conf.Federation.BlockedInstances {
		if strings.EqualFold(blocked, host) {
			return false
		}
	}
	if c.Conf.Federation.StrictAllowlist && len(c.Conf.Federation.AllowedInstances) > 0 {
		for _, allowed := range c.Conf.Federation.AllowedInstances {
			if strings.EqualFold(allowed, host) {
				return true
			}
		}
		return false
	}
	return true
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	// Try to resolve config file path (local first, then user dir)
	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			_ = os.WriteFile(userConfigPath, embeddedConfig, 0644)
		}
	}

	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnvOverrides(c)

	if c.Conf.Federation.RequestBudget <= 0 {
		c.Conf.Federation.RequestBudget = 25
	}

	return c, nil
}

func applyEnvOverrides(c *AppConfig) {
	if v := os.Getenv("AGORA_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("AGORA_HTTPPORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err == nil {
			c.Conf.HttpPort = port
		}
	}
	if v := os.Getenv("AGORA_DOMAIN"); v != "" {
		c.Conf.Domain = v
	}
	if v := os.Getenv("AGORA_DBPATH"); v != "" {
		c.Conf.DbPath = v
	}
	if os.Getenv("AGORA_FEDERATION") == "true" {
		c.Conf.Federation.Enabled = true
	}
	if v := os.Getenv("AGORA_ALLOWED_INSTANCES"); v != "" {
		c.Conf.Federation.AllowedInstances = splitInstances(v)
	}
	if v := os.Getenv("AGORA_BLOCKED_INSTANCES"); v != "" {
		c.Conf.Federation.BlockedInstances = splitInstances(v)
	}
	if v := os.Getenv("AGORA_REQUEST_BUDGET"); v != "" {
		budget, err := strconv.Atoi(v)
		if err == nil {
			c.Conf.Federation.RequestBudget = budget
		}
	}
}

func splitInstances(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
