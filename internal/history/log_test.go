package history

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/escpos-sim/internal/escpos"
)

func textCmd(s string) escpos.Command {
	return escpos.Command{
		Kind:       escpos.KindText,
		Raw:        []byte(s),
		ReceivedAt: time.Now(),
		Payload:    escpos.TextPayload{Text: s},
	}
}

func TestLog_AppendAndOrder(t *testing.T) {
	l := NewLog()
	l.AppendCommand("c1", escpos.Command{Kind: escpos.KindInit, ReceivedAt: time.Now()})
	l.AppendCommand("c1", textCmd("Hello"))
	l.AppendFailure("c1", "buffer_overflow", "9000 bytes into 8192")

	entries := l.Entries()
	if len(entries) != 3 {
		t.Fatalf("Entries() length = %d, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			t.Errorf("entry %d Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
	if entries[2].Failure == nil || entries[2].Failure.Reason != "buffer_overflow" {
		t.Errorf("failure entry = %+v, want buffer_overflow marker", entries[2])
	}

	cmds := l.Commands()
	if len(cmds) != 2 {
		t.Fatalf("Commands() length = %d, want 2 (failure excluded)", len(cmds))
	}
	if cmds[0].Kind != escpos.KindInit || cmds[1].Kind != escpos.KindText {
		t.Errorf("command kinds = %q, %q; want init, text", cmds[0].Kind, cmds[1].Kind)
	}
}

func TestLog_PrintHistoryMergesTextRuns(t *testing.T) {
	l := NewLog()
	l.AppendCommand("c1", textCmd("Hello "))
	l.AppendCommand("c1", textCmd("World"))
	l.AppendCommand("c1", escpos.Command{
		Kind: escpos.KindCut, ReceivedAt: time.Now(),
		Payload: escpos.CutPayload{Mode: escpos.CutPartial},
	})
	l.AppendCommand("c1", textCmd("Next receipt"))

	jobs := l.PrintHistory()
	if len(jobs) != 2 {
		t.Fatalf("PrintHistory() length = %d, want 2", len(jobs))
	}
	if jobs[0].Type != JobText || jobs[0].Content != "Hello World" {
		t.Errorf("job[0] = %+v, want merged text %q", jobs[0], "Hello World")
	}
	if jobs[1].Content != "Next receipt" {
		t.Errorf("job[1].Content = %q, want %q", jobs[1].Content, "Next receipt")
	}
}

func TestLog_PrintHistoryContentKinds(t *testing.T) {
	l := NewLog()
	l.AppendCommand("c1", escpos.Command{
		Kind: escpos.KindBarcode, ReceivedAt: time.Now(),
		Payload: escpos.BarcodePayload{Symbology: 65, Data: "1234"},
	})
	l.AppendCommand("c1", escpos.Command{
		Kind: escpos.KindQR, ReceivedAt: time.Now(),
		Payload: escpos.QRPayload{Function: escpos.QRFuncStore, Data: []byte("qr-data")},
	})
	// QR parameter functions carry no content.
	l.AppendCommand("c1", escpos.Command{
		Kind: escpos.KindQR, ReceivedAt: time.Now(),
		Payload: escpos.QRPayload{Function: escpos.QRFuncSize, Value: 4},
	})
	l.AppendCommand("c1", escpos.Command{
		Kind: escpos.KindImage, ReceivedAt: time.Now(),
		Payload: escpos.ImagePayload{Width: 8, Height: 1, Data: []byte{0xFF}},
	})
	l.AppendCommand("c1", escpos.Command{
		Kind: escpos.KindBeep, ReceivedAt: time.Now(),
		Payload: escpos.BeepPayload{Times: 1, Duration: 1},
	})

	jobs := l.PrintHistory()
	want := []JobType{JobBarcode, JobQR, JobImage}
	if len(jobs) != len(want) {
		t.Fatalf("PrintHistory() length = %d, want %d", len(jobs), len(want))
	}
	for i, w := range want {
		if jobs[i].Type != w {
			t.Errorf("job[%d].Type = %q, want %q", i, jobs[i].Type, w)
		}
	}
}

func TestLog_ClearKeepsSequence(t *testing.T) {
	l := NewLog()
	l.AppendCommand("c1", textCmd("a"))
	l.Clear()
	if l.Len() != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", l.Len())
	}
	e := l.AppendCommand("c1", textCmd("b"))
	if e.Seq != 2 {
		t.Errorf("Seq after Clear = %d, want 2 (counter keeps counting)", e.Seq)
	}
}

func TestLog_ConcurrentReadersAndWriters(t *testing.T) {
	l := NewLog()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.AppendCommand("c", textCmd("x"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = l.Commands()
				_ = l.PrintHistory()
			}
		}()
	}
	wg.Wait()

	if got := l.Len(); got != 800 {
		t.Errorf("Len() = %d, want 800", got)
	}
	entries := l.Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq != entries[i-1].Seq+1 {
			t.Fatalf("sequence gap at %d: %d -> %d", i, entries[i-1].Seq, entries[i].Seq)
		}
	}
}

func TestLog_NotifyCallback(t *testing.T) {
	l := NewLog()
	var mu sync.Mutex
	var seen []int64
	l.AddNotify(func(e Entry) {
		mu.Lock()
		seen = append(seen, e.Seq)
		mu.Unlock()
	})

	l.AppendCommand("c1", textCmd("a"))
	l.AppendFailure("c1", "idle_timeout", "")

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("notify sequence = %v, want [1 2]", seen)
	}
}
