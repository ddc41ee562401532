// SPDX-License-Identifier: Apache-2.0

// Package config loads gateway connection settings from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the connection settings the CLI reads from conbus.yaml.
// Exactly one transport is used per invocation: serial_port wins over url,
// which wins over host/port.
type Config struct {
	Host       string
	Port       int
	Timeout    time.Duration
	SerialPort string
	BaudRate   int
	URL        string
}

// UnmarshalYAML overlays only the keys present in the document, so file
// values layer over the defaults. The timeout uses Go duration syntax
// ("500ms", "2s").
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		Host       *string `yaml:"host"`
		Port       *int    `yaml:"port"`
		Timeout    *string `yaml:"timeout"`
		SerialPort *string `yaml:"serial_port"`
		BaudRate   *int    `yaml:"baud_rate"`
		URL        *string `yaml:"url"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	if aux.Host != nil {
		c.Host = *aux.Host
	}
	if aux.Port != nil {
		c.Port = *aux.Port
	}
	if aux.Timeout != nil {
		d, err := time.ParseDuration(*aux.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	if aux.SerialPort != nil {
		c.SerialPort = *aux.SerialPort
	}
	if aux.BaudRate != nil {
		c.BaudRate = *aux.BaudRate
	}
	if aux.URL != nil {
		c.URL = *aux.URL
	}
	return nil
}

// Default returns the settings used when no file and no flags are given.
func Default() Config {
	return Config{
		Host:     "192.168.1.100",
		Port:     10001,
		Timeout:  2 * time.Second,
		BaudRate: 115200,
	}
}

// Load reads path and overlays it on the defaults. A missing file is not
// an error; flags still apply on top of what Load returns.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.BaudRate < 0 {
		return fmt.Errorf("baud rate %d out of range", c.BaudRate)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("negative timeout %s", c.Timeout)
	}
	return nil
}
