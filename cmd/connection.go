// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/xpbus/conbus/pkg/config"
	"github.com/xpbus/conbus/pkg/gateway"
)

// resolveConfig loads the config file and overlays the command line flags.
func resolveConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if gatewayHost != "" {
		cfg.Host = gatewayHost
	}
	if gatewayPort != 0 {
		cfg.Port = gatewayPort
	}
	if busTimeout != 0 {
		cfg.Timeout = busTimeout
	}
	if serialPort != "" {
		cfg.SerialPort = serialPort
	}
	if baudRate != 0 {
		cfg.BaudRate = baudRate
	}
	if wsURL != "" {
		cfg.URL = wsURL
	}
	return cfg, nil
}

// openClient connects to the bus using whichever transport the flags and
// config select: serial wins over WebSocket, which wins over TCP. The
// returned string describes the connection for status output.
func openClient() (*gateway.Client, string, error) {
	cfg, err := resolveConfig()
	if err != nil {
		return nil, "", err
	}
	opts := gateway.Options{ReadTimeout: cfg.Timeout}

	switch {
	case cfg.SerialPort != "":
		conn, err := gateway.OpenSerial(cfg.SerialPort, cfg.BaudRate)
		if err != nil {
			return nil, "", err
		}
		return gateway.NewClientConn(conn, opts),
			fmt.Sprintf("serial %s @ %d baud", cfg.SerialPort, cfg.BaudRate), nil

	case cfg.URL != "":
		conn, err := gateway.DialWebSocket(cfg.URL, wsNoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return gateway.NewClientConn(conn, opts), cfg.URL, nil

	default:
		client := gateway.NewClient(cfg.Host, cfg.Port, opts)
		if err := client.Connect(); err != nil {
			return nil, "", err
		}
		return client, fmt.Sprintf("tcp %s:%d", cfg.Host, cfg.Port), nil
	}
}
