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

var blinkOff bool

var blinkCmd = &cobra.Command{
	Use:   "blink <serial>",
	Short: "Blink a module's identification LED",
	Long: `Make the addressed module blink its LED so it can be located in the
cabinet, or stop it with --off.`,
	Args: cobra.ExactArgs(1),
	RunE: runBlink,
}

func init() {
	rootCmd.AddCommand(blinkCmd)
	blinkCmd.Flags().BoolVar(&blinkOff, "off", false, "Stop blinking instead of starting")
}

func runBlink(cmd *cobra.Command, args []string) error {
	client, connInfo, err := openClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer client.Close()

	serial := args[0]
	acked := make(chan bool, 1)
	id := client.Subscribe(func(ev gateway.Event) {
		if ev.Kind != gateway.EventReceived || !ev.Valid || ev.Telegram.Kind != conbus.KindReply {
			return
		}
		r := ev.Telegram.Reply
		if r.SerialNumber != serial {
			return
		}
		switch r.Function {
		case conbus.FuncAck:
			acked <- true
		case conbus.FuncNak:
			acked <- false
		}
	})
	defer client.Unsubscribe(id)

	command, err := conbus.NewBlinkCommand(serial, !blinkOff)
	if err != nil {
		return err
	}
	if err := client.Send(command); err != nil {
		return err
	}

	select {
	case ok := <-acked:
		if !ok {
			return fmt.Errorf("module %s rejected the command", serial)
		}
	case <-time.After(2 * time.Second):
		return fmt.Errorf("no answer from %s (%s)", serial, connInfo)
	}

	if blinkOff {
		fmt.Printf("Module %s stopped blinking\n", serial)
	} else {
		fmt.Printf("Module %s is blinking\n", serial)
	}
	return nil
}
