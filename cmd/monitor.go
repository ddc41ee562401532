// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/xpbus/conbus/pkg/capture"
	"github.com/xpbus/conbus/pkg/conbus"
	"github.com/xpbus/conbus/pkg/gateway"
)

var monitorRecord string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display live bus traffic in human-readable format",
	Long: `Continuously decode and display Conbus telegrams as they arrive.

Each telegram is shown with a timestamp, its kind, and a decoded one-line
summary. Corrupted frames are shown too, flagged instead of dropped, since
they are usually the interesting ones.

With --record the raw traffic is also appended to a CBOR capture file for
later replay with the replay command.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorRecord, "record", "", "Append traffic to a capture file")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	client, connInfo, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	var rec *capture.Writer
	if monitorRecord != "" {
		f, err := os.OpenFile(monitorRecord, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		rec = capture.NewWriter(f)
	}

	fmt.Printf("Conbus - Bus Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	if rec != nil {
		fmt.Printf("Recording: %s\n", monitorRecord)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	// Color only when stdout is a real terminal.
	colored := term.IsTerminal(int(os.Stdout.Fd()))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	id := client.Subscribe(func(ev gateway.Event) {
		now := time.Now().Format("15:04:05.000")
		switch ev.Kind {
		case gateway.EventReceived:
			line := fmt.Sprintf("[%s] << %s", now, conbus.FormatTelegram(ev.Telegram))
			if !ev.Valid {
				line += "  [BAD CHECKSUM]"
				if colored {
					line = errStyle.Render(line)
				}
			}
			fmt.Println(line)
			if rec != nil {
				if err := rec.WriteTelegram(capture.DirectionIn, ev.Telegram); err != nil {
					fmt.Fprintf(os.Stderr, "record: %v\n", err)
				}
			}
		case gateway.EventSent:
			fmt.Printf("[%s] >> %s\n", now, conbus.FormatTelegram(ev.Telegram))
			if rec != nil {
				if err := rec.WriteTelegram(capture.DirectionOut, ev.Telegram); err != nil {
					fmt.Fprintf(os.Stderr, "record: %v\n", err)
				}
			}
		case gateway.EventTimeout:
			line := fmt.Sprintf("[%s] -- bus quiet", now)
			if colored {
				line = dimStyle.Render(line)
			}
			fmt.Println(line)
		case gateway.EventFailed:
			fmt.Fprintf(os.Stderr, "[%s] connection failed: %v\n", now, ev.Err)
		}
	})
	defer client.Unsubscribe(id)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Println("\nBye.")
	return nil
}
