// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xpbus/conbus/pkg/conbus"
	"github.com/xpbus/conbus/pkg/gateway"
)

var readCmd = &cobra.Command{
	Use:   "read <serial> [datapoint...]",
	Short: "Read datapoints from a module",
	Long: `Read one or more datapoints from the addressed module.

Datapoints are two-digit codes; without arguments the identification set
(module type, hardware version, software version) is read. Repeated reads
of the same datapoint are coalesced into a single bus frame.

Examples:
  conbus read 0012345678
  conbus read 0012345678 18 19`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
}

func runRead(cmd *cobra.Command, args []string) error {
	client, connInfo, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	serial := args[0]
	datapoints := args[1:]
	if len(datapoints) == 0 {
		datapoints = []string{
			conbus.DatapointModuleType,
			conbus.DatapointHWVersion,
			conbus.DatapointSWVersion,
		}
	}

	fmt.Printf("Conbus - Datapoint Read\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	deb := gateway.NewDebouncer(client, 20*time.Millisecond)
	defer deb.Close()

	type result struct {
		datapoint string
		value     string
	}
	results := make(chan result, len(datapoints))
	for _, dp := range datapoints {
		dp := dp
		deb.RequestRead(serial, dp, func(reply *conbus.Telegram) {
			results <- result{datapoint: dp, value: reply.Reply.Value}
		})
	}

	timeout := time.After(3 * time.Second)
	for range datapoints {
		select {
		case r := <-results:
			raw, err := conbus.Denibble(r.value)
			if err != nil {
				fmt.Printf("  %s (%s): raw %q\n", conbus.FormatDatapoint(r.datapoint), r.datapoint, r.value)
				continue
			}
			fmt.Printf("  %s (%s): % X\n", conbus.FormatDatapoint(r.datapoint), r.datapoint, raw)
		case <-timeout:
			return fmt.Errorf("timed out waiting for replies from %s", serial)
		}
	}
	return nil
}
