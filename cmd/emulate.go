// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xpbus/conbus/pkg/conbus"
	"github.com/xpbus/conbus/pkg/emulator"
)

var (
	emulateListen  string
	emulateMetrics string
	emulateModules []string
	emulateEvents  time.Duration
)

var emulateCmd = &cobra.Command{
	Use:   "emulate",
	Short: "Run a bus emulator for bench work",
	Long: `Serve an emulated Conbus network over TCP so the other commands (and
anything else speaking the protocol) can be exercised without hardware.

Modules are given as serial=model pairs, e.g.:
  conbus emulate --module 0012345678=XP24 --module 0023456789=XP33

With --events the emulator injects a push button press/release pair at the
given interval, which is handy for testing monitor and watch.

Prometheus metrics (frame counters, open connections) are served on
--metrics-listen at /metrics.`,
	RunE: runEmulate,
}

func init() {
	rootCmd.AddCommand(emulateCmd)
	emulateCmd.Flags().StringVar(&emulateListen, "listen", ":10001", "host:port to serve the bus on")
	emulateCmd.Flags().StringVar(&emulateMetrics, "metrics-listen", "", "host:port to serve /metrics on (empty = disabled)")
	emulateCmd.Flags().StringArrayVar(&emulateModules, "module", nil, "Module as serial=model (repeatable)")
	emulateCmd.Flags().DurationVar(&emulateEvents, "events", 0, "Inject a button press at this interval (0 = off)")
}

// modelCodes maps the model names accepted on the command line.
var modelCodes = map[string]int{
	"CP20":  conbus.ModuleTypeCP20,
	"XP130": conbus.ModuleTypeXP130,
	"XP20":  conbus.ModuleTypeXP20,
	"XP230": conbus.ModuleTypeXP230,
	"XP24":  conbus.ModuleTypeXP24,
	"XP33":  conbus.ModuleTypeXP33,
}

func parseModuleFlags(flags []string) ([]*emulator.Module, error) {
	if len(flags) == 0 {
		// A sensible demo bus.
		return []*emulator.Module{
			emulator.NewModule("0012345678", conbus.ModuleTypeXP24),
			emulator.NewModule("0023456789", conbus.ModuleTypeXP33),
			emulator.NewModule("0034567890", conbus.ModuleTypeXP20),
		}, nil
	}
	modules := make([]*emulator.Module, 0, len(flags))
	for _, spec := range flags {
		serial, model, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --module %q, want serial=model", spec)
		}
		code, ok := modelCodes[strings.ToUpper(model)]
		if !ok {
			return nil, fmt.Errorf("unknown model %q in --module %q", model, spec)
		}
		if len(serial) != conbus.SerialNumberLength {
			return nil, fmt.Errorf("serial %q must be %d digits", serial, conbus.SerialNumberLength)
		}
		modules = append(modules, emulator.NewModule(serial, code))
	}
	return modules, nil
}

func runEmulate(cmd *cobra.Command, args []string) error {
	modules, err := parseModuleFlags(emulateModules)
	if err != nil {
		return err
	}

	srv := emulator.NewServer(modules...)
	addr, err := srv.Listen(emulateListen)
	if err != nil {
		return err
	}
	defer srv.Close()

	fmt.Printf("Conbus - Bus Emulator\n")
	fmt.Printf("Serving on %s\n", addr)
	for _, m := range modules {
		fmt.Printf("  %s  %-6s %s\n", m.Serial, conbus.ModuleName(m.Type), conbus.ModuleDescription(m.Type))
	}

	if emulateMetrics != "" {
		fmt.Printf("Metrics on http://%s/metrics\n", emulateMetrics)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", emulator.MetricsHandler())
			if err := http.ListenAndServe(emulateMetrics, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
	}

	stopEvents := make(chan struct{})
	if emulateEvents > 0 {
		fmt.Printf("Injecting button events every %s\n", emulateEvents)
		go func() {
			ticker := time.NewTicker(emulateEvents)
			defer ticker.Stop()
			input := 0
			for {
				select {
				case <-ticker.C:
					press, err := conbus.BuildEvent(conbus.ModuleTypeCP20, 1, input, conbus.EventButtonPress)
					if err != nil {
						continue
					}
					release, _ := conbus.BuildEvent(conbus.ModuleTypeCP20, 1, input, conbus.EventButtonRelease)
					srv.Inject(press)
					srv.Inject(release)
					input = (input + 1) % 10
				case <-stopEvents:
					return
				}
			}
		}()
	}

	fmt.Printf("Press Ctrl+C to exit\n")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	close(stopEvents)
	fmt.Println("\nBye.")
	return nil
}
