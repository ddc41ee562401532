// SPDX-License-Identifier: Apache-2.0
//
// Conbus - Building Automation Bus Tool
//
// A CLI tool for commissioning, monitoring and diagnosing Conbus module
// networks over TCP, serial, or WebSocket gateways.

package main

import (
	"os"

	"github.com/xpbus/conbus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
