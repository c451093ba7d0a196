package escpos

import (
	"sync"
	"time"
)

// Protocol control bytes.
const (
	esc = 0x1B
	gs  = 0x1D
	dle = 0x10
	eot = 0x04
	lf  = 0x0A
	cr  = 0x0D
)

// Decoder turns a contiguous byte buffer into complete Commands.
//
// Decoding is prefix-driven: fixed-length commands consume a known byte
// count, variable-length commands consume until a terminator or a declared
// length field is satisfied. If the buffer ends mid-command, Decode reports
// zero consumption for that command so the caller can retry once more bytes
// arrive; a command is therefore delivered exactly once.
//
// The only decoder-level state is the active codepage, set by ESC t and
// used to interpret text and barcode payloads. It never affects command
// boundary detection. A Decoder is safe for concurrent use; one instance
// is typically shared by all connections of an emulator so that the active
// codepage is device-wide, as on real hardware.
type Decoder struct {
	mu       sync.RWMutex
	codepage codepageEntry
}

// NewDecoder creates a decoder with the power-on codepage (cp437).
func NewDecoder() *Decoder {
	return &Decoder{codepage: codepages[0]}
}

// Codepage returns the name of the active character code table.
func (d *Decoder) Codepage() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.codepage.name
}

// Decode extracts as many complete commands as the buffer holds, returning
// them in stream order together with the number of bytes consumed. Bytes
// forming a partial command are not consumed.
func (d *Decoder) Decode(buf []byte) ([]Command, int) {
	var cmds []Command
	consumed := 0
	for consumed < len(buf) {
		cmd, n := d.decodeOne(buf[consumed:])
		if n == 0 {
			break
		}
		cmds = append(cmds, cmd)
		consumed += n
	}
	return cmds, consumed
}

// decodeOne parses a single command from the front of buf. A returned
// length of zero means the buffer ends mid-command.
func (d *Decoder) decodeOne(buf []byte) (Command, int) {
	switch buf[0] {
	case esc:
		return d.decodeESC(buf)
	case gs:
		return d.decodeGS(buf)
	case dle:
		return d.decodeDLE(buf)
	case lf:
		return d.command(KindFeed, buf[:1], FeedPayload{Lines: 1}), 1
	case cr:
		return d.command(KindFeed, buf[:1], FeedPayload{Lines: 0}), 1
	default:
		return d.decodeText(buf)
	}
}

func (d *Decoder) decodeESC(buf []byte) (Command, int) {
	if len(buf) < 2 {
		return Command{}, 0
	}
	switch buf[1] {
	case '@': // ESC @ - initialize
		return d.command(KindInit, buf[:2], nil), 2
	case '!': // ESC ! n - select print mode
		if len(buf) < 3 {
			return Command{}, 0
		}
		n := buf[2]
		mode := PrintMode{
			Bold:         n&0x08 != 0,
			DoubleHeight: n&0x10 != 0,
			DoubleWidth:  n&0x20 != 0,
			Underline:    n&0x80 != 0,
		}
		return d.command(KindStyle, buf[:3], StylePayload{Mode: &mode}), 3
	case '-': // ESC - n - underline mode
		if len(buf) < 3 {
			return Command{}, 0
		}
		m := UnderlineNone
		switch buf[2] {
		case 1, '1':
			m = UnderlineSingle
		case 2, '2':
			m = UnderlineDouble
		}
		return d.command(KindStyle, buf[:3], StylePayload{Underline: &m}), 3
	case 'a': // ESC a n - justification
		if len(buf) < 3 {
			return Command{}, 0
		}
		a := AlignLeft
		switch buf[2] {
		case 1, '1':
			a = AlignCenter
		case 2, '2':
			a = AlignRight
		}
		return d.command(KindAlign, buf[:3], AlignPayload{Alignment: a}), 3
	case 'd': // ESC d n - print and feed n lines
		if len(buf) < 3 {
			return Command{}, 0
		}
		return d.command(KindFeed, buf[:3], FeedPayload{Lines: int(buf[2])}), 3
	case 'i': // ESC i - partial cut
		return d.command(KindCut, buf[:2], CutPayload{Mode: CutPartial}), 2
	case 'm': // ESC m - full cut
		return d.command(KindCut, buf[:2], CutPayload{Mode: CutFull}), 2
	case 't': // ESC t n - select character code table
		if len(buf) < 3 {
			return Command{}, 0
		}
		entry := lookupCodepage(int(buf[2]))
		d.mu.Lock()
		d.codepage = entry
		d.mu.Unlock()
		p := CodepagePayload{Table: int(buf[2]), Encoding: entry.name}
		return d.command(KindCodepage, buf[:3], p), 3
	case 'B': // ESC B n t - beep
		if len(buf) < 4 {
			return Command{}, 0
		}
		p := BeepPayload{Times: int(buf[2]), Duration: int(buf[3])}
		return d.command(KindBeep, buf[:4], p), 4
	case 'p': // ESC p m t1 t2 - drawer kick
		if len(buf) < 5 {
			return Command{}, 0
		}
		p := DrawerPayload{Pin: buf[2], OnTime: int(buf[3]), OffTime: int(buf[4])}
		return d.command(KindDrawer, buf[:5], p), 5
	default:
		// Unknown ESC opcode: consume prefix and opcode, keep the stream alive.
		return d.command(KindUnknown, buf[:2], nil), 2
	}
}

func (d *Decoder) decodeGS(buf []byte) (Command, int) {
	if len(buf) < 2 {
		return Command{}, 0
	}
	switch buf[1] {
	case 'V': // GS V m - cut paper
		if len(buf) < 3 {
			return Command{}, 0
		}
		mode := CutFull
		if buf[2] == 65 {
			mode = CutPartial
		}
		return d.command(KindCut, buf[:3], CutPayload{Mode: mode}), 3
	case 'k':
		return d.decodeBarcode(buf)
	case '(':
		if len(buf) < 3 {
			return Command{}, 0
		}
		switch buf[2] {
		case 'L':
			return d.decodeImageFn(buf)
		case 'k':
			return d.decodeQR(buf)
		default:
			return d.command(KindUnknown, buf[:3], nil), 3
		}
	case 'v': // GS v 0 - obsolete raster bit image
		return d.decodeRaster(buf)
	case 'H': // GS H n - HRI position
		if len(buf) < 3 {
			return Command{}, 0
		}
		pos := HRIBelow
		switch buf[2] {
		case 0:
			pos = HRINotPrinted
		case 1:
			pos = HRIAbove
		case 3:
			pos = HRIBoth
		}
		return d.command(KindStyle, buf[:3], StylePayload{HRIPosition: &pos}), 3
	case 'f': // GS f n - HRI font
		if len(buf) < 3 {
			return Command{}, 0
		}
		font := HRIFontA
		if buf[2] == 1 {
			font = HRIFontB
		}
		return d.command(KindStyle, buf[:3], StylePayload{HRIFont: &font}), 3
	case 'w': // GS w n - barcode width
		if len(buf) < 3 {
			return Command{}, 0
		}
		w := clamp(int(buf[2]), 2, 6)
		return d.command(KindStyle, buf[:3], StylePayload{BarcodeWidth: &w}), 3
	case 'h': // GS h n - barcode height
		if len(buf) < 3 {
			return Command{}, 0
		}
		h := clamp(int(buf[2]), 1, 255)
		return d.command(KindStyle, buf[:3], StylePayload{BarcodeHeight: &h}), 3
	default:
		return d.command(KindUnknown, buf[:2], nil), 2
	}
}

// decodeBarcode handles GS k. Symbologies 0-6 take a NUL-terminated payload;
// symbologies 65 and above declare a one-byte length.
func (d *Decoder) decodeBarcode(buf []byte) (Command, int) {
	if len(buf) < 3 {
		return Command{}, 0
	}
	m := buf[2]
	if m >= 65 {
		if len(buf) < 4 {
			return Command{}, 0
		}
		k := int(buf[3])
		total := 4 + k
		if len(buf) < total {
			return Command{}, 0
		}
		p := BarcodePayload{Symbology: m, Data: d.text(buf[4:total])}
		return d.command(KindBarcode, buf[:total], p), total
	}
	// Terminator-delimited form.
	for i := 3; i < len(buf); i++ {
		if buf[i] == 0x00 {
			p := BarcodePayload{Symbology: m, Data: d.text(buf[3:i])}
			return d.command(KindBarcode, buf[:i+1], p), i + 1
		}
	}
	return Command{}, 0
}

// decodeImageFn handles GS ( L: pL pH declare the length of the m and fn
// bytes plus the data that follows them.
func (d *Decoder) decodeImageFn(buf []byte) (Command, int) {
	if len(buf) < 7 {
		return Command{}, 0
	}
	plen := int(buf[3]) + int(buf[4])*256
	total := 5 + plen
	if plen < 2 {
		return d.command(KindUnknown, buf[:5], nil), 5
	}
	if len(buf) < total {
		return Command{}, 0
	}
	p := ImagePayload{Function: buf[6], Data: append([]byte(nil), buf[7:total]...)}
	return d.command(KindImage, buf[:total], p), total
}

// decodeQR handles GS ( k for symbol type 49 (QR Code). Other symbol types
// are consumed by length and reported as unknown.
func (d *Decoder) decodeQR(buf []byte) (Command, int) {
	if len(buf) < 7 {
		return Command{}, 0
	}
	plen := int(buf[3]) + int(buf[4])*256
	total := 5 + plen
	if plen < 2 {
		return d.command(KindUnknown, buf[:5], nil), 5
	}
	if len(buf) < total {
		return Command{}, 0
	}
	cn, fn := buf[5], buf[6]
	if cn != 49 {
		return d.command(KindUnknown, buf[:total], nil), total
	}
	p := QRPayload{Function: fn}
	switch fn {
	case QRFuncStore:
		p.Data = append([]byte(nil), buf[7:total]...)
	default:
		if total > 7 {
			p.Value = buf[7]
		}
	}
	return d.command(KindQR, buf[:total], p), total
}

// decodeRaster handles the obsolete GS v 0 raster image command.
func (d *Decoder) decodeRaster(buf []byte) (Command, int) {
	if len(buf) < 3 {
		return Command{}, 0
	}
	if buf[2] != '0' && buf[2] != 0 {
		return d.command(KindUnknown, buf[:3], nil), 3
	}
	if len(buf) < 8 {
		return Command{}, 0
	}
	bytesPerRow := int(buf[4]) + int(buf[5])*256
	rows := int(buf[6]) + int(buf[7])*256
	dataLen := bytesPerRow * rows
	total := 8 + dataLen
	if len(buf) < total {
		return Command{}, 0
	}
	p := ImagePayload{
		Width:  bytesPerRow * 8,
		Height: rows,
		Data:   append([]byte(nil), buf[8:total]...),
	}
	return d.command(KindImage, buf[:total], p), total
}

func (d *Decoder) decodeDLE(buf []byte) (Command, int) {
	if len(buf) < 2 {
		return Command{}, 0
	}
	if buf[1] != eot {
		return d.command(KindUnknown, buf[:2], nil), 2
	}
	if len(buf) < 3 {
		return Command{}, 0
	}
	return d.command(KindStatus, buf[:3], StatusPayload{Request: buf[2]}), 3
}

// decodeText consumes printable bytes up to the next control prefix.
func (d *Decoder) decodeText(buf []byte) (Command, int) {
	end := len(buf)
	for i, b := range buf {
		if b == esc || b == gs || b == lf || b == cr || b == dle {
			end = i
			break
		}
	}
	return d.command(KindText, buf[:end], TextPayload{Text: d.text(buf[:end])}), end
}

// text decodes payload bytes using the active codepage.
func (d *Decoder) text(data []byte) string {
	d.mu.RLock()
	enc := d.codepage.enc
	d.mu.RUnlock()
	return decodeText(data, enc)
}

// command builds a Command with a private copy of the raw bytes.
func (d *Decoder) command(kind Kind, raw []byte, p Payload) Command {
	return Command{
		Kind:       kind,
		Raw:        append([]byte(nil), raw...),
		ReceivedAt: time.Now(),
		Payload:    p,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
