// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	// Config file
	configPath string

	// TCP connection flags
	gatewayHost string
	gatewayPort int
	busTimeout  time.Duration

	// Serial connection flags
	serialPort string
	baudRate   int

	// WebSocket connection flags
	wsURL         string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "conbus",
	Short: "Conbus building automation bus tool",
	Long: `Conbus - A CLI tool for commissioning and diagnosing Conbus module networks.

Provides commands for module discovery, datapoint reads, action table
transfer, live bus monitoring, and a standalone bus emulator for bench work.

Connection modes:
  TCP (default): --host 192.168.1.100 [--port 10001]
  Serial:        --serial-port /dev/ttyUSB0 [--baud 115200]
  WebSocket:     --url ws://host/bus

Settings can also come from a YAML config file (--config, default
conbus.yaml); command line flags win over the file.`,
	Version: "1.2.0",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "conbus.yaml", "Path to config file")

	// TCP connection flags
	rootCmd.PersistentFlags().StringVar(&gatewayHost, "host", "", "Gateway host")
	rootCmd.PersistentFlags().IntVar(&gatewayPort, "port", 0, "Gateway TCP port")
	rootCmd.PersistentFlags().DurationVar(&busTimeout, "timeout", 0, "Bus reply timeout")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&serialPort, "serial-port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
