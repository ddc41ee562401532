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

var uploadInput string

var uploadCmd = &cobra.Command{
	Use:   "upload <serial>",
	Short: "Upload an action table to a module",
	Long: `Push an action table blob onto the addressed module.

The blob must be a multiple of the six-byte entry size; it is validated
before anything touches the bus. A failed upload leaves the module's old
table in place, since the module only commits on end-of-table.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVarP(&uploadInput, "input", "i", "table.bin", "Table blob file to upload")
}

func runUpload(cmd *cobra.Command, args []string) error {
	blob, err := os.ReadFile(uploadInput)
	if err != nil {
		return err
	}
	entries, err := transfer.DecodeTable(blob)
	if err != nil {
		return fmt.Errorf("%s is not a valid table blob: %w", uploadInput, err)
	}

	client, connInfo, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	serial := args[0]
	cfg, _ := resolveConfig()

	fmt.Printf("Conbus - Table Upload\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Module: %s\n", serial)
	fmt.Printf("Table: %d entries (%d bytes)\n\n", len(entries), len(blob))

	bar := progressbar.NewOptions(len(blob),
		progressbar.OptionSetDescription(">> Sending table:"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("bytes"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	up := transfer.NewUpload(client, cfg.Timeout)
	done := make(chan error, 1)
	up.OnProgress = func(sent int) { _ = bar.Set(sent) }
	up.OnError = func(err error) { done <- err }
	up.OnFinish = func() { done <- nil }

	if err := up.Start(serial, transfer.TableAction, blob); err != nil {
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
		up.Abort()
		return fmt.Errorf("upload did not finish")
	}

	fmt.Printf("Uploaded %d entries to %s\n", len(entries), serial)
	return nil
}
