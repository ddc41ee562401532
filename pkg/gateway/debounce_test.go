// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xpbus/conbus/pkg/conbus"
)

// drainWire collects everything the gateway side sees for the given span.
func drainWire(peer net.Conn, span time.Duration) string {
	var sb strings.Builder
	buf := make([]byte, 256)
	deadline := time.Now().Add(span)
	for time.Now().Before(deadline) {
		peer.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
		n, err := peer.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err != nil && !isTimeout(err) {
			break
		}
	}
	return sb.String()
}

func TestDebouncer_CoalescesDuplicateKeys(t *testing.T) {
	c, peer := testClient(t, Options{})
	d := NewDebouncer(c, 30*time.Millisecond)
	defer d.Close()

	for i := 0; i < 4; i++ {
		d.RequestRead("0012345678", "12", nil)
	}

	wire := drainWire(peer, 200*time.Millisecond)
	want := "<S0012345678F02D12FI>"
	if n := strings.Count(wire, want); n != 1 {
		t.Errorf("expected exactly 1 coalesced frame, wire saw %d in %q", n, wire)
	}
}

func TestDebouncer_DistinctKeysEachGetAFrame(t *testing.T) {
	c, peer := testClient(t, Options{})
	d := NewDebouncer(c, 30*time.Millisecond)
	defer d.Close()

	d.RequestRead("0012345678", "12", nil)
	d.RequestRead("0012345678", "18", nil)
	d.RequestRead("0012345678", "12", nil)

	wire := drainWire(peer, 200*time.Millisecond)
	if n := strings.Count(wire, "<S0012345678F02D12"); n != 1 {
		t.Errorf("key 12: expected 1 frame, got %d in %q", n, wire)
	}
	if n := strings.Count(wire, "<S0012345678F02D18"); n != 1 {
		t.Errorf("key 18: expected 1 frame, got %d in %q", n, wire)
	}
}

func TestDebouncer_BurstKeepsDeferring(t *testing.T) {
	c, peer := testClient(t, Options{})
	d := NewDebouncer(c, 60*time.Millisecond)
	defer d.Close()

	// Keep re-arming inside the window; nothing may hit the wire yet.
	for i := 0; i < 3; i++ {
		d.RequestRead("0012345678", "12", nil)
		time.Sleep(30 * time.Millisecond)
	}
	// 90ms in, the window has restarted each time.
	if wire := drainWire(peer, 10*time.Millisecond); wire != "" {
		t.Errorf("burst flushed early: %q", wire)
	}

	wire := drainWire(peer, 200*time.Millisecond)
	if n := strings.Count(wire, "<S0012345678F02D12"); n != 1 {
		t.Errorf("expected 1 frame after burst went quiet, got %d", n)
	}
}

func TestDebouncer_ReplyFansOutToAllHandles(t *testing.T) {
	c, peer := testClient(t, Options{})
	d := NewDebouncer(c, 20*time.Millisecond)
	defer d.Close()

	var completions int32
	done := make(chan *conbus.Telegram, 4)
	handle := func(reply *conbus.Telegram) {
		atomic.AddInt32(&completions, 1)
		done <- reply
	}
	for i := 0; i < 3; i++ {
		d.RequestRead("0012345678", "12", handle)
	}

	// Swallow the coalesced request, then answer it.
	drainWire(peer, 100*time.Millisecond)
	reply, err := conbus.BuildReply("0012345678", conbus.FuncReadDatapoint, "12", "07")
	if err != nil {
		t.Fatalf("build reply: %v", err)
	}
	peer.Write([]byte(reply.Raw))

	for i := 0; i < 3; i++ {
		select {
		case got := <-done:
			if got.Reply.Value != "07" {
				t.Errorf("reply value = %q", got.Reply.Value)
			}
		case <-time.After(time.Second):
			t.Fatalf("only %d of 3 handles completed", atomic.LoadInt32(&completions))
		}
	}
}

func TestDebouncer_RequestReadNeverBlocks(t *testing.T) {
	c, _ := testClient(t, Options{})
	d := NewDebouncer(c, 10*time.Millisecond)
	defer d.Close()

	start := time.Now()
	for i := 0; i < 100; i++ {
		d.RequestRead("0012345678", "12", nil)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("RequestRead took %v for 100 calls", elapsed)
	}
}
