// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/xpbus/conbus/pkg/conbus"
	"github.com/xpbus/conbus/pkg/gateway"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover modules on the bus",
	Long: `Send a broadcast discovery request and list every module that answers.

Each responding module is then asked for its module type datapoint, so the
listing shows the hardware model next to the serial number.

Exit codes:
  0 - At least one module found
  1 - No modules answered within the timeout
  2 - Connection error`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().DurationVar(&discoverTimeout, "wait", 3*time.Second, "How long to collect discovery replies")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	client, connInfo, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	fmt.Printf("Conbus - Module Discovery\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	var mu sync.Mutex
	serials := map[string]bool{}
	id := client.Subscribe(func(ev gateway.Event) {
		if ev.Kind != gateway.EventReceived || !ev.Valid {
			return
		}
		if ev.Telegram.IsDiscoveryResponse() {
			mu.Lock()
			serials[ev.Telegram.Reply.SerialNumber] = true
			mu.Unlock()
		}
	})
	defer client.Unsubscribe(id)

	if err := client.Send(conbus.NewDiscoveryRequest()); err != nil {
		return err
	}
	time.Sleep(discoverTimeout)

	mu.Lock()
	found := make([]string, 0, len(serials))
	for s := range serials {
		found = append(found, s)
	}
	mu.Unlock()
	sort.Strings(found)

	if len(found) == 0 {
		fmt.Println("No modules answered.")
		os.Exit(1)
	}

	fmt.Printf("%-12s %-8s %s\n", "SERIAL", "MODEL", "DESCRIPTION")
	for _, serial := range found {
		model, desc := "?", ""
		if mt, ok := readModuleType(client, serial); ok {
			model = conbus.ModuleName(mt)
			desc = conbus.ModuleDescription(mt)
		}
		fmt.Printf("%-12s %-8s %s\n", serial, model, desc)
	}
	fmt.Printf("\n%d module(s) found\n", len(found))
	return nil
}

// readModuleType asks one module for its type datapoint and waits for the
// reply.
func readModuleType(client *gateway.Client, serial string) (int, bool) {
	got := make(chan int, 1)
	id := client.Subscribe(func(ev gateway.Event) {
		if ev.Kind != gateway.EventReceived || !ev.Valid || ev.Telegram.Kind != conbus.KindReply {
			return
		}
		r := ev.Telegram.Reply
		if r.SerialNumber != serial || r.Function != conbus.FuncReadDatapoint {
			return
		}
		raw, err := conbus.Denibble(r.Value)
		if err != nil || len(raw) == 0 {
			return
		}
		select {
		case got <- int(raw[0]):
		default:
		}
	})
	defer client.Unsubscribe(id)

	req, err := conbus.NewReadDatapointRequest(serial, conbus.DatapointModuleType)
	if err != nil {
		return 0, false
	}
	if err := client.Send(req); err != nil {
		return 0, false
	}
	select {
	case mt := <-got:
		return mt, true
	case <-time.After(time.Second):
		return 0, false
	}
}
