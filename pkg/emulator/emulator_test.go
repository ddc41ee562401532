// SPDX-License-Identifier: Apache-2.0

package emulator

import (
	"bytes"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xpbus/conbus/pkg/conbus"
	"github.com/xpbus/conbus/pkg/gateway"
	"github.com/xpbus/conbus/pkg/transfer"
)

const (
	relaySerial  = "0012345678"
	dimmerSerial = "0023456789"
)

// startBus brings up an emulated bus with a relay and a dimmer module and
// a connected gateway client.
func startBus(t *testing.T) (*Server, *gateway.Client) {
	t.Helper()

	srv := NewServer(
		NewModule(relaySerial, conbus.ModuleTypeXP24),
		NewModule(dimmerSerial, conbus.ModuleTypeXP33),
	)
	addr, err := srv.Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	tcp := addr.(*net.TCPAddr)
	client := gateway.NewClient("127.0.0.1", tcp.Port, gateway.Options{
		ReadTimeout:  200 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	})
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return srv, client
}

// awaitReply subscribes before send() runs and returns the first received
// Reply matching pred.
func awaitReply(t *testing.T, client *gateway.Client, send func(), pred func(*conbus.ReplyTelegram) bool) *conbus.ReplyTelegram {
	t.Helper()

	found := make(chan *conbus.ReplyTelegram, 16)
	id := client.Subscribe(func(ev gateway.Event) {
		if ev.Kind != gateway.EventReceived || ev.Telegram.Kind != conbus.KindReply {
			return
		}
		if pred(ev.Telegram.Reply) {
			select {
			case found <- ev.Telegram.Reply:
			default:
			}
		}
	})
	defer client.Unsubscribe(id)

	send()
	select {
	case r := <-found:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no matching reply")
		return nil
	}
}

// ============================================================
// Discovery and datapoints
// ============================================================

func TestEmulator_BroadcastDiscovery(t *testing.T) {
	_, client := startBus(t)

	var mu sync.Mutex
	seen := map[string]bool{}
	id := client.Subscribe(func(ev gateway.Event) {
		if ev.Kind == gateway.EventReceived && ev.Telegram.Kind == conbus.KindReply &&
			ev.Telegram.Reply.Function == conbus.FuncDiscovery {
			mu.Lock()
			seen[ev.Telegram.Reply.SerialNumber] = true
			mu.Unlock()
		}
	})
	defer client.Unsubscribe(id)

	if err := client.Send(conbus.NewDiscoveryRequest()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if !seen[relaySerial] || !seen[dimmerSerial] {
		t.Fatalf("discovered %v, want both modules", seen)
	}
}

func TestEmulator_ReadModuleType(t *testing.T) {
	_, client := startBus(t)

	r := awaitReply(t, client,
		func() {
			req, err := conbus.NewReadDatapointRequest(relaySerial, conbus.DatapointModuleType)
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			if err := client.Send(req); err != nil {
				t.Fatalf("Send: %v", err)
			}
		},
		func(r *conbus.ReplyTelegram) bool {
			return r.SerialNumber == relaySerial && r.Function == conbus.FuncReadDatapoint
		})

	raw, err := conbus.Denibble(r.Value)
	if err != nil {
		t.Fatalf("Denibble: %v", err)
	}
	if len(raw) != 1 || int(raw[0]) != conbus.ModuleTypeXP24 {
		t.Fatalf("module type payload = %v", raw)
	}
}

func TestEmulator_DebouncedReadsAnswerEveryCaller(t *testing.T) {
	_, client := startBus(t)
	deb := gateway.NewDebouncer(client, 10*time.Millisecond)
	defer deb.Close()

	results := make(chan string, 3)
	handle := func(reply *conbus.Telegram) { results <- reply.Reply.Value }
	for i := 0; i < 3; i++ {
		deb.RequestRead(dimmerSerial, conbus.DatapointModuleType, handle)
	}

	want := conbus.NibbleEncode([]byte{conbus.ModuleTypeXP33})
	for i := 0; i < 3; i++ {
		select {
		case v := <-results:
			if v != want {
				t.Fatalf("reply value = %q, want %q", v, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("caller %d never got the reply", i)
		}
	}
}

func TestEmulator_BlinkTracksState(t *testing.T) {
	srv, client := startBus(t)

	awaitReply(t, client,
		func() {
			cmd, _ := conbus.NewBlinkCommand(relaySerial, true)
			if err := client.Send(cmd); err != nil {
				t.Fatalf("Send: %v", err)
			}
		},
		func(r *conbus.ReplyTelegram) bool {
			return r.SerialNumber == relaySerial && r.Function == conbus.FuncAck
		})

	if !srv.Module(relaySerial).Blinking() {
		t.Fatal("module should be blinking")
	}
}

func TestEmulator_UnknownSerialStaysSilent(t *testing.T) {
	_, client := startBus(t)

	got := make(chan struct{}, 1)
	id := client.Subscribe(func(ev gateway.Event) {
		if ev.Kind == gateway.EventReceived {
			select {
			case got <- struct{}{}:
			default:
			}
		}
	})
	defer client.Unsubscribe(id)

	req, _ := conbus.NewReadDatapointRequest("9999999999", conbus.DatapointModuleType)
	if err := client.Send(req); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case <-got:
		t.Fatal("nobody should answer for an absent module")
	case <-time.After(100 * time.Millisecond):
	}
}

// ============================================================
// Table transfer round trip
// ============================================================

func TestEmulator_UploadThenDownloadRoundTrip(t *testing.T) {
	srv, client := startBus(t)

	entries := []transfer.Entry{
		{ModuleType: conbus.ModuleTypeCP20, Link: 1, Input: 0, Output: 0, Command: 1},
		{ModuleType: conbus.ModuleTypeCP20, Link: 1, Input: 1, Output: 1, Inverted: true, Command: 1},
		{ModuleType: conbus.ModuleTypeCP20, Link: 2, Input: 0, Output: 2, Command: 3, Parameter: 50},
	}
	blob, err := transfer.EncodeTable(entries)
	if err != nil {
		t.Fatalf("EncodeTable: %v", err)
	}

	up := transfer.NewUpload(client, 500*time.Millisecond)
	uploaded := make(chan struct{})
	up.OnFinish = func() { close(uploaded) }
	up.OnError = func(err error) { t.Errorf("upload: %v", err) }
	if err := up.Start(relaySerial, transfer.TableAction, blob); err != nil {
		t.Fatalf("upload Start: %v", err)
	}
	select {
	case <-uploaded:
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not finish")
	}
	if !bytes.Equal(srv.Module(relaySerial).Table(), blob) {
		t.Fatalf("stored table = %v, want %v", srv.Module(relaySerial).Table(), blob)
	}

	down := transfer.NewDownload(client, 50*time.Millisecond, 3)
	downloaded := make(chan []byte, 1)
	down.OnFinish = func(p []byte) { downloaded <- p }
	down.OnError = func(err error) { t.Errorf("download: %v", err) }
	if err := down.Start(relaySerial, transfer.TableAction); err != nil {
		t.Fatalf("download Start: %v", err)
	}
	var payload []byte
	select {
	case payload = <-downloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("download did not finish")
	}
	if !bytes.Equal(payload, blob) {
		t.Fatalf("downloaded = %v, want %v", payload, blob)
	}

	decoded, err := transfer.DecodeTable(payload)
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	if len(decoded) != len(entries) {
		t.Fatalf("decoded %d entries, want %d", len(decoded), len(entries))
	}
}

func TestEmulator_DownloadOfEmptyTableIsRejected(t *testing.T) {
	_, client := startBus(t)

	down := transfer.NewDownload(client, 50*time.Millisecond, 1)
	failed := make(chan error, 1)
	down.OnError = func(err error) { failed <- err }
	if err := down.Start(dimmerSerial, transfer.TableAction); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-failed:
	case <-time.After(5 * time.Second):
		t.Fatal("download of an empty table should fail")
	}
}

// ============================================================
// Events and metrics
// ============================================================

func TestEmulator_InjectDeliversEvents(t *testing.T) {
	srv, client := startBus(t)

	got := make(chan *conbus.EventTelegram, 1)
	id := client.Subscribe(func(ev gateway.Event) {
		if ev.Kind == gateway.EventReceived && ev.Telegram.Kind == conbus.KindEvent {
			select {
			case got <- ev.Telegram.Event:
			default:
			}
		}
	})
	defer client.Unsubscribe(id)

	press, err := conbus.BuildEvent(conbus.ModuleTypeCP20, 1, 3, conbus.EventButtonPress)
	if err != nil {
		t.Fatalf("BuildEvent: %v", err)
	}
	srv.Inject(press)

	select {
	case e := <-got:
		if e.Input != 3 || e.Type != conbus.EventButtonPress {
			t.Fatalf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("injected event never arrived")
	}
}

func TestEmulator_MetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "conbus_EmulatorConnectionsOpen") {
		t.Fatal("metrics output is missing the emulator gauge")
	}
}
