package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// Config represents the wadigest configuration file
type Config struct {
	file *ini.File
}

// DefaultPath returns ~/.wadigest/config
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".wadigest", "config")
	}
	return filepath.Join(home, ".wadigest", "config")
}

// Load reads the configuration file from ~/.wadigest/config
func Load() (*Config, error) {
	return LoadFile(DefaultPath())
}

// LoadFile reads the configuration from path. A missing file yields an empty
// config, not an error.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{file: ini.Empty()}, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	return &Config{file: file}, nil
}

// Parse builds a config from in-memory INI data
func Parse(data []byte) (*Config, error) {
	file, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &Config{file: file}, nil
}

// GetString retrieves a string value from the config
// section.key format (e.g., "gateway.instance_id")
func (c *Config) GetString(key string) string {
	section, keyName := c.parseKey(key)
	if section == "" {
		return ""
	}

	sec := c.file.Section(section)
	if sec == nil {
		return ""
	}

	return strings.TrimSpace(sec.Key(keyName).String())
}

// GetInt retrieves an integer value from the config
func (c *Config) GetInt(key string) (int, error) {
	val := c.GetString(key)
	if val == "" {
		return 0, nil
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %w", key, err)
	}

	return intVal, nil
}

// GetFloat retrieves a float value from the config
func (c *Config) GetFloat(key string) (float64, error) {
	val := c.GetString(key)
	if val == "" {
		return 0, nil
	}

	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number for %s: %w", key, err)
	}

	return f, nil
}

// GetBool retrieves a boolean value from the config
func (c *Config) GetBool(key string) bool {
	return parseBool(c.GetString(key))
}

// HasKey checks if a key exists in the config
func (c *Config) HasKey(key string) bool {
	section, keyName := c.parseKey(key)
	if section == "" {
		return false
	}

	if !c.file.HasSection(section) {
		return false
	}

	return c.file.Section(section).HasKey(keyName)
}

// parseKey splits a dotted key into section and key name
// e.g., "llm.openai.model" -> ("llm.openai", "model")
func (c *Config) parseKey(key string) (string, string) {
	lastDot := strings.LastIndex(key, ".")
	if lastDot == -1 {
		return "", ""
	}

	return key[:lastDot], key[lastDot+1:]
}

// GetStringWithFallback retrieves a string value with a fallback default
func (c *Config) GetStringWithFallback(key, fallback string) string {
	if c.HasKey(key) {
		return c.GetString(key)
	}
	return fallback
}

// GetIntWithFallback retrieves an int value with a fallback default
func (c *Config) GetIntWithFallback(key string, fallback int) int {
	if c.HasKey(key) {
		val, err := c.GetInt(key)
		if err == nil {
			return val
		}
	}
	return fallback
}

// GetFloatWithFallback retrieves a float value with a fallback default
func (c *Config) GetFloatWithFallback(key string, fallback float64) float64 {
	if c.HasKey(key) {
		val, err := c.GetFloat(key)
		if err == nil {
			return val
		}
	}
	return fallback
}

// GetBoolWithFallback retrieves a bool value with a fallback default
func (c *Config) GetBoolWithFallback(key string, fallback bool) bool {
	if c.HasKey(key) {
		return c.GetBool(key)
	}
	return fallback
}

func parseBool(val string) bool {
	val = strings.ToLower(strings.TrimSpace(val))
	return val == "true" || val == "yes" || val == "1" || val == "on"
}
