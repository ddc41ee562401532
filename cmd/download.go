// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xpbus/conbus/pkg/transfer"
)

var (
	downloadOutput  string
	downloadRetries int
	downloadDecode  bool
)

var downloadCmd = &cobra.Command{
	Use:   "download <serial>",
	Short: "Download a module's action table",
	Long: `Pull the action table off the addressed module chunk by chunk and write
the blob to a file, or decode and print it with --decode.

The transfer waits for the line to go quiet before each round and retries
on timeouts, so it is safe to run on a live bus.`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "table.bin", "Output file for the table blob")
	downloadCmd.Flags().IntVar(&downloadRetries, "retries", 3, "Timeout retry budget")
	downloadCmd.Flags().BoolVar(&downloadDecode, "decode", false, "Print the decoded table instead of writing a file")
}

func runDownload(cmd *cobra.Command, args []string) error {
	client, connInfo, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	serial := args[0]
	cfg, _ := resolveConfig()

	fmt.Printf("Conbus - Table Download\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Module: %s\n\n", serial)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(">> Receiving table:"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("bytes"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	down := transfer.NewDownload(client, cfg.Timeout, downloadRetries)
	done := make(chan error, 1)
	down.OnProgress = func(received int) { _ = bar.Set(received) }
	down.OnError = func(err error) { done <- err }
	down.OnFinish = func([]byte) { done <- nil }

	if err := down.Start(serial, transfer.TableAction); err != nil {
		return err
	}
	select {
	case err := <-done:
		bar.Finish()
		fmt.Println()
		if err != nil {
			return err
		}
	case <-time.After(5 * time.Minute):
		down.Abort()
		return fmt.Errorf("download did not finish")
	}

	blob := down.Payload()
	if downloadDecode {
		entries, err := transfer.DecodeTable(blob)
		if err != nil {
			return err
		}
		fmt.Printf("%-6s %-5s %-6s %-7s %-9s %-8s %s\n",
			"TYPE", "LINK", "INPUT", "OUTPUT", "INVERTED", "COMMAND", "PARAM")
		for _, e := range entries {
			fmt.Printf("%-6d %-5d %-6d %-7d %-9v %-8d %d\n",
				e.ModuleType, e.Link, e.Input, e.Output, e.Inverted, e.Command, e.Parameter)
		}
		fmt.Printf("\n%d entries (%d bytes)\n", len(entries), len(blob))
		return nil
	}

	if err := os.WriteFile(downloadOutput, blob, 0o644); err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes to %s\n", len(blob), downloadOutput)
	return nil
}
