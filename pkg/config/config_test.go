// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conbus.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, "host: 10.0.0.7\ntimeout: 500ms\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "10.0.0.7" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.Timeout != 500*time.Millisecond {
		t.Errorf("Timeout = %s", cfg.Timeout)
	}
	// Untouched keys keep their defaults.
	if cfg.Port != 10001 || cfg.BaudRate != 115200 {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
host: gateway.local
port: 10002
timeout: 3s
serial_port: /dev/ttyUSB0
baud_rate: 9600
url: ws://gateway.local:8080/bus
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Config{
		Host:       "gateway.local",
		Port:       10002,
		Timeout:    3 * time.Second,
		SerialPort: "/dev/ttyUSB0",
		BaudRate:   9600,
		URL:        "ws://gateway.local:8080/bus",
	}
	if cfg != want {
		t.Fatalf("cfg = %+v, want %+v", cfg, want)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "host: [unclosed"},
		{"port out of range", "port: 70000"},
		{"negative timeout", "timeout: -1s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Fatal("want error")
			}
		})
	}
}
