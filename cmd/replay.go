// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xpbus/conbus/pkg/capture"
	"github.com/xpbus/conbus/pkg/conbus"
)

var replaySpeed float64

var replayCmd = &cobra.Command{
	Use:   "replay <capture-file>",
	Short: "Replay a recorded capture file",
	Long: `Print a capture file recorded with 'monitor --record', reproducing the
original timing. --speed scales the recorded gaps: 2 plays twice as fast,
0 dumps the file without any delays.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed factor (0 = no delays)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var frames, bad int
	err = capture.Replay(capture.NewReader(f), replaySpeed, func(rec capture.Record) error {
		frames++
		dir := "<<"
		if rec.Direction == capture.DirectionOut {
			dir = ">>"
		}
		line := fmt.Sprintf("[%s] %s ", rec.Time.Format("15:04:05.000"), dir)
		if t, perr := conbus.ParseTelegram(rec.Raw); perr == nil {
			line += conbus.FormatTelegram(t)
			if !t.ChecksumValid {
				line += "  [BAD CHECKSUM]"
				bad++
			}
		} else {
			line += fmt.Sprintf("unparseable %q", rec.Raw)
			bad++
		}
		fmt.Println(line)
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n%d frames, %d bad\n", frames, bad)
	return nil
}
