package history

import (
	"time"

	"github.com/nerrad567/escpos-sim/internal/escpos"
)

// JobType classifies reconstructed print content.
type JobType string

const (
	JobText    JobType = "text"
	JobBarcode JobType = "barcode"
	JobQR      JobType = "qr"
	JobImage   JobType = "image"
)

// PrintJob is one piece of renderable content reconstructed from the
// command log: a run of text, or a single barcode, QR code or image.
type PrintJob struct {
	Type    JobType   `json:"type"`
	Content string    `json:"content,omitempty"` // decoded text for text/barcode jobs
	Data    []byte    `json:"data,omitempty"`    // raw payload for qr/image jobs
	At      time.Time `json:"at"`                // time of the first contributing command
}

// PrintHistory reconstructs renderable content from the command log.
//
// Consecutive text commands merge into a single text job, so content split
// by fragmentation or multiple writes reads back as one run; any other
// command ends the run. Barcode, image and QR-store commands each yield
// one job. Styling, feeds, cuts and status traffic carry no content and
// produce nothing.
func (l *Log) PrintHistory() []PrintJob {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var jobs []PrintJob
	textOpen := false
	for _, e := range l.entries {
		if e.Command == nil {
			textOpen = false
			continue
		}
		cmd := e.Command
		switch p := cmd.Payload.(type) {
		case escpos.TextPayload:
			if textOpen {
				jobs[len(jobs)-1].Content += p.Text
				continue
			}
			jobs = append(jobs, PrintJob{Type: JobText, Content: p.Text, At: cmd.ReceivedAt})
			textOpen = true
			continue
		case escpos.BarcodePayload:
			jobs = append(jobs, PrintJob{Type: JobBarcode, Content: p.Data, At: cmd.ReceivedAt})
		case escpos.QRPayload:
			if p.Function == escpos.QRFuncStore {
				jobs = append(jobs, PrintJob{
					Type: JobQR,
					Data: append([]byte(nil), p.Data...),
					At:   cmd.ReceivedAt,
				})
			}
		case escpos.ImagePayload:
			jobs = append(jobs, PrintJob{
				Type: JobImage,
				Data: append([]byte(nil), p.Data...),
				At:   cmd.ReceivedAt,
			})
		}
		textOpen = false
	}
	return jobs
}
