package emulator

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/escpos-sim/internal/escpos"
	"github.com/nerrad567/escpos-sim/internal/netsim"
	"github.com/nerrad567/escpos-sim/internal/printer"
)

func startEmulator(t *testing.T, cfg Config, opts ...Option) *Emulator {
	t.Helper()
	e := New(cfg, opts...)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(e.Stop)
	return e
}

func dial(t *testing.T, e *Emulator) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", e.Addr(), time.Second)
	if err != nil {
		t.Fatalf("dial %s: %v", e.Addr(), err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStart_SecondStartFails(t *testing.T) {
	e := startEmulator(t, Config{})
	if err := e.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start err = %v, want ErrAlreadyRunning", err)
	}
	if e.Addr() == "" {
		t.Fatal("Addr empty after Start")
	}
}

func TestStop_Idempotent(t *testing.T) {
	e := New(Config{})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.Stop()
	e.Stop()
	if e.Running() {
		t.Fatal("still running after Stop")
	}
}

func TestBasicPrintFlow(t *testing.T) {
	e := startEmulator(t, Config{})
	conn := dial(t, e)

	payload := append([]byte{0x1B, 0x40}, []byte("Hello World\n")...)
	payload = append(payload, 0x1B, 0x69)
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return len(e.GetCommandLog()) >= 3 },
		"commands never recorded")

	cmds := e.GetCommandLog()
	wantKinds := []escpos.Kind{escpos.KindInit, escpos.KindText, escpos.KindCut}
	for i, want := range wantKinds {
		if cmds[i].Command == nil || cmds[i].Command.Kind != want {
			t.Fatalf("command %d kind = %v, want %v", i, cmds[i].Command, want)
		}
	}

	jobs := e.GetPrintHistory()
	if len(jobs) != 1 {
		t.Fatalf("print jobs = %d, want 1", len(jobs))
	}
	if jobs[0].Content != "Hello World\n" {
		t.Fatalf("job content = %q", jobs[0].Content)
	}
}

func TestFragmentedClientWrites_DecodeOnce(t *testing.T) {
	e := startEmulator(t, Config{})
	conn := dial(t, e)

	// Barcode split across writes must decode exactly once on completion.
	msg := []byte{0x1D, 0x6B, 0x49, 0x05, 'A', 'B', 'C', 'D', 'E'}
	for _, b := range msg {
		if _, err := conn.Write([]byte{b}); err != nil {
			t.Fatalf("write: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool { return len(e.GetCommandLog()) >= 1 },
		"barcode never recorded")
	cmds := e.GetCommandLog()
	if len(cmds) != 1 {
		t.Fatalf("entries = %d, want exactly 1", len(cmds))
	}
	bp, ok := cmds[0].Command.Payload.(escpos.BarcodePayload)
	if !ok || bp.Data != "ABCDE" {
		t.Fatalf("payload = %#v, want barcode ABCDE", cmds[0].Command.Payload)
	}
}

func TestOffline_RejectsNewConnections(t *testing.T) {
	e := startEmulator(t, Config{})
	if err := e.SimulateError(printer.ErrorOffline); err != nil {
		t.Fatalf("SimulateError: %v", err)
	}

	conn := dial(t, e)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("read succeeded on a rejected connection")
	}

	waitFor(t, 2*time.Second, func() bool {
		for _, entry := range e.GetCommandLog() {
			if entry.Failure != nil && entry.Failure.Reason == failureRejectedOffline {
				return true
			}
		}
		return false
	}, "rejection never recorded")

	e.Reset()
	if !e.GetStatus().Online() {
		t.Fatal("not online after Reset")
	}
	conn2 := dial(t, e)
	if _, err := conn2.Write([]byte{0x1B, 0x40}); err != nil {
		t.Fatalf("write after recovery: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return commandCount(e) >= 1 },
		"command not processed after recovery")
}

func commandCount(e *Emulator) int {
	n := 0
	for _, entry := range e.GetCommandLog() {
		if entry.Command != nil {
			n++
		}
	}
	return n
}

func TestStatusRequest_ReflectsState(t *testing.T) {
	e := startEmulator(t, Config{})
	conn := dial(t, e)

	if _, err := conn.Write([]byte{0x10, 0x04, 0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if buf[0] != 0x00 {
		t.Fatalf("online status byte = %#x, want 0x00", buf[0])
	}

	if err := e.SimulateError(printer.ErrorPaperOut); err != nil {
		t.Fatalf("SimulateError: %v", err)
	}
	if _, err := conn.Write([]byte{0x10, 0x04, 0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if buf[0]&0x20 == 0 || buf[0]&0x08 == 0 {
		t.Fatalf("paper-out status byte = %#x, want offline and paper bits", buf[0])
	}
}

func TestOffline_BuffersAndDrainsOnRecovery(t *testing.T) {
	e := startEmulator(t, Config{})
	conn := dial(t, e)

	// Establish the connection before going offline.
	if _, err := conn.Write([]byte{0x1B, 0x40}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return commandCount(e) >= 1 }, "init never recorded")

	if err := e.SimulateError(printer.ErrorOffline); err != nil {
		t.Fatalf("SimulateError: %v", err)
	}
	if _, err := conn.Write([]byte("queued text")); err != nil {
		t.Fatalf("write while offline: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := commandCount(e); n != 1 {
		t.Fatalf("commands while offline = %d, want still 1", n)
	}

	e.Reset()
	waitFor(t, 2*time.Second, func() bool { return commandCount(e) >= 2 },
		"buffered bytes never drained after recovery")
	cmds := e.GetPrintHistory()
	if len(cmds) != 1 || cmds[0].Content != "queued text" {
		t.Fatalf("print history = %+v, want queued text job", cmds)
	}
}

func TestBufferFull_ClosesConnection(t *testing.T) {
	e := startEmulator(t, Config{BufferCapacity: 64})
	conn := dial(t, e)

	// A length-prefixed barcode that never completes pins the buffer.
	payload := append([]byte{0x1D, 0x6B, 0x49, 0xFF}, make([]byte, 200)...)
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		st := e.GetStatus()
		return st.Status == printer.StatusError && st.Error == printer.ErrorBufferFull
	}, "buffer_full error never raised")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("connection survived buffer overflow")
	}
}

func TestBufferFull_SubsequentConnectionServiced(t *testing.T) {
	e := startEmulator(t, Config{BufferCapacity: 64, OfflinePolicy: OfflineReject})
	conn := dial(t, e)

	payload := append([]byte{0x1D, 0x6B, 0x49, 0xFF}, make([]byte, 200)...)
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		st := e.GetStatus()
		return st.Status == printer.StatusError && st.Error == printer.ErrorBufferFull
	}, "buffer_full error never raised")
	waitFor(t, 2*time.Second, func() bool { return e.ClientCount() == 0 },
		"overflowing connection never torn down")

	// Only the offending connection dies; a fresh client is accepted and
	// its commands are processed while the error persists until Reset.
	conn2 := dial(t, e)
	if _, err := conn2.Write([]byte{0x1B, 0x40}); err != nil {
		t.Fatalf("write on fresh connection: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return commandCount(e) >= 1 },
		"command on fresh connection never processed")
	st := e.GetStatus()
	if st.Status != printer.StatusError || st.Error != printer.ErrorBufferFull {
		t.Fatalf("status = %s/%s, want error/buffer_full until reset", st.Status, st.Error)
	}
}

func TestNetworkDisconnect_DropsAndRefuses(t *testing.T) {
	e := startEmulator(t, Config{})
	conn := dial(t, e)
	if _, err := conn.Write([]byte{0x1B, 0x40}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return commandCount(e) >= 1 }, "init never recorded")

	h, err := e.Network().SetCondition(netsim.KindDisconnect, netsim.Params{})
	if err != nil {
		t.Fatalf("SetCondition: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("connection survived disconnect window")
	}
	waitFor(t, 2*time.Second, func() bool { return e.ClientCount() == 0 },
		"connection still tracked")

	if err := e.Network().ClearCondition(h); err != nil {
		t.Fatalf("ClearCondition: %v", err)
	}
	conn2 := dial(t, e)
	if _, err := conn2.Write([]byte{0x1B, 0x69}); err != nil {
		t.Fatalf("write after window cleared: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return commandCount(e) >= 2 },
		"command not processed after window cleared")
}

func TestNetworkDisconnect_TogglesPrinterOffline(t *testing.T) {
	e := startEmulator(t, Config{})
	if _, err := e.Network().SetCondition(netsim.KindDisconnect, netsim.Params{Duration: 300 * time.Millisecond}); err != nil {
		t.Fatalf("SetCondition: %v", err)
	}
	waitFor(t, time.Second, func() bool { return e.GetStatus().Status == printer.StatusOffline },
		"printer never went offline for the disconnect window")
	waitFor(t, 2*time.Second, func() bool { return e.GetStatus().Status == printer.StatusOnline },
		"printer never came back after the window expired")
}

func TestLatencyJitter_PreservesCommandOrder(t *testing.T) {
	e := startEmulator(t, Config{}, WithSeed(11))
	if _, err := e.Network().SetCondition(netsim.KindLatency, netsim.Params{
		Latency: 40 * time.Millisecond,
		Jitter:  30 * time.Millisecond,
	}); err != nil {
		t.Fatalf("SetCondition: %v", err)
	}
	conn := dial(t, e)

	lines := []string{"order-0", "order-1", "order-2", "order-3", "order-4"}
	for _, l := range lines {
		if _, err := conn.Write([]byte(l + "\n")); err != nil {
			t.Fatalf("write %q: %v", l, err)
		}
	}

	// Jittered delays must not reorder a single client's stream.
	want := strings.Join(lines, "")
	waitFor(t, 5*time.Second, func() bool {
		return strings.Join(loggedText(e), "") == want
	}, "delayed commands never arrived in send order")
}

// loggedText collects text payloads from the command log in append order.
func loggedText(e *Emulator) []string {
	var out []string
	for _, entry := range e.GetCommandLog() {
		if entry.Command == nil {
			continue
		}
		if p, ok := entry.Command.Payload.(escpos.TextPayload); ok {
			out = append(out, p.Text)
		}
	}
	return out
}

func TestPacketLoss_FullLossSwallowsCommands(t *testing.T) {
	e := startEmulator(t, Config{}, WithSeed(5))
	if _, err := e.Network().SetCondition(netsim.KindPacketLoss, netsim.Params{Percentage: 100}); err != nil {
		t.Fatalf("SetCondition: %v", err)
	}
	conn := dial(t, e)
	if _, err := conn.Write([]byte{0x1B, 0x40}); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := len(e.GetCommandLog()); n != 0 {
		t.Fatalf("entries = %d under total loss, want 0", n)
	}
}

func TestCommandDelay(t *testing.T) {
	e := startEmulator(t, Config{})
	e.SetCommandDelay(20 * time.Millisecond)
	if got := e.CommandDelay(); got != 20*time.Millisecond {
		t.Fatalf("CommandDelay = %v", got)
	}
	e.SetCommandDelay(-time.Second)
	if got := e.CommandDelay(); got != 0 {
		t.Fatalf("negative delay stored as %v, want 0", got)
	}

	e.SetCommandDelay(20 * time.Millisecond)
	conn := dial(t, e)
	if _, err := conn.Write([]byte{0x1B, 0x40}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return commandCount(e) >= 1 },
		"delayed command never recorded")
}

func TestIdleTimeout_RecordsAndCloses(t *testing.T) {
	e := startEmulator(t, Config{IdleTimeout: 200 * time.Millisecond})
	conn := dial(t, e)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("idle connection never closed")
	}
	waitFor(t, 2*time.Second, func() bool {
		for _, entry := range e.GetCommandLog() {
			if entry.Failure != nil && entry.Failure.Reason == failureIdleTimeout {
				return true
			}
		}
		return false
	}, "idle timeout never recorded")
}

func TestClearHistory_KeepsState(t *testing.T) {
	e := startEmulator(t, Config{})
	conn := dial(t, e)
	if _, err := conn.Write([]byte{0x1B, 0x40}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return commandCount(e) >= 1 }, "init never recorded")

	if err := e.SimulateError(printer.ErrorPaperOut); err != nil {
		t.Fatalf("SimulateError: %v", err)
	}
	e.ClearHistory()
	if n := len(e.GetCommandLog()); n != 0 {
		t.Fatalf("entries after clear = %d", n)
	}
	if st := e.GetStatus(); st.Status != printer.StatusError {
		t.Fatalf("clearing history changed printer state to %v", st.Status)
	}
}

func TestConcurrentClients(t *testing.T) {
	e := startEmulator(t, Config{})
	const clients = 8

	done := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func() {
			conn, err := net.DialTimeout("tcp", e.Addr(), time.Second)
			if err != nil {
				done <- err
				return
			}
			defer conn.Close()
			_, err = conn.Write([]byte{0x1B, 0x40, 0x1B, 0x69})
			done <- err
		}()
	}
	for i := 0; i < clients; i++ {
		if err := <-done; err != nil {
			t.Fatalf("client %d: %v", i, err)
		}
	}

	waitFor(t, 3*time.Second, func() bool { return commandCount(e) >= clients*2 },
		"not all commands recorded")

	// Per-connection ordering must hold: init before cut for every client.
	seen := map[string]escpos.Kind{}
	for _, entry := range e.GetCommandLog() {
		if entry.Command == nil {
			continue
		}
		if entry.Command.Kind == escpos.KindCut && seen[entry.ConnID] != escpos.KindInit {
			t.Fatalf("cut before init on connection %s", entry.ConnID)
		}
		seen[entry.ConnID] = entry.Command.Kind
	}
}
