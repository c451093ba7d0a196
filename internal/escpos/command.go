package escpos

import "time"

// Kind identifies a decoded command family.
type Kind string

// Command kinds produced by the Decoder. Every byte sequence the decoder
// consumes maps onto exactly one of these; opcodes outside the table come
// out as KindUnknown rather than failing the stream.
const (
	KindInit     Kind = "init"
	KindText     Kind = "text"
	KindFeed     Kind = "feed"
	KindCut      Kind = "cut"
	KindAlign    Kind = "align"
	KindStyle    Kind = "style"
	KindBarcode  Kind = "barcode"
	KindQR       Kind = "qr"
	KindImage    Kind = "image"
	KindBeep     Kind = "beep"
	KindDrawer   Kind = "drawer"
	KindCodepage Kind = "codepage"
	KindStatus   Kind = "status"
	KindUnknown  Kind = "unknown"
)

// Command is one decoded, semantically complete instruction extracted from
// the protocol stream. Commands are immutable once appended to the history
// log; Raw holds the exact bytes that produced the command.
type Command struct {
	Kind       Kind
	Raw        []byte
	ReceivedAt time.Time
	Payload    Payload // nil for KindInit and KindUnknown
}

// Payload is the kind-specific structured content of a Command.
// The set of implementations is closed; consumers type-switch over it.
type Payload interface {
	payload()
}

// TextPayload carries a run of printable text decoded with the active codepage.
type TextPayload struct {
	Text string
}

// FeedPayload carries paper feed information. Lines is 1 for a bare LF,
// n for ESC d n, and 0 for a carriage return.
type FeedPayload struct {
	Lines int
}

// CutMode distinguishes partial from full paper cuts.
type CutMode string

const (
	CutPartial CutMode = "partial"
	CutFull    CutMode = "full"
)

// CutPayload carries the cut mode for ESC i, ESC m and GS V m.
type CutPayload struct {
	Mode CutMode
}

// Alignment is a horizontal justification setting.
type Alignment string

const (
	AlignLeft   Alignment = "left"
	AlignCenter Alignment = "center"
	AlignRight  Alignment = "right"
)

// AlignPayload carries the justification selected by ESC a n.
type AlignPayload struct {
	Alignment Alignment
}

// UnderlineMode is the underline thickness selected by ESC - n.
type UnderlineMode string

const (
	UnderlineNone   UnderlineMode = "none"
	UnderlineSingle UnderlineMode = "single"
	UnderlineDouble UnderlineMode = "double"
)

// PrintMode holds the style bits of ESC ! n.
type PrintMode struct {
	Bold         bool
	DoubleHeight bool
	DoubleWidth  bool
	Underline    bool
}

// HRIPosition selects where human-readable barcode text is printed (GS H n).
type HRIPosition string

const (
	HRINotPrinted HRIPosition = "not_printed"
	HRIAbove      HRIPosition = "above"
	HRIBelow      HRIPosition = "below"
	HRIBoth       HRIPosition = "both"
)

// HRIFont selects the font for human-readable barcode text (GS f n).
type HRIFont string

const (
	HRIFontA HRIFont = "A"
	HRIFontB HRIFont = "B"
)

// StylePayload carries one styling change. Exactly one field is non-nil,
// identifying which styling command was received.
type StylePayload struct {
	Mode          *PrintMode     // ESC ! n
	Underline     *UnderlineMode // ESC - n
	HRIPosition   *HRIPosition   // GS H n
	HRIFont       *HRIFont       // GS f n
	BarcodeWidth  *int           // GS w n, clamped to 2..6
	BarcodeHeight *int           // GS h n, clamped to 1..255
}

// BarcodePayload carries a barcode print request (GS k m k d1..dk).
type BarcodePayload struct {
	Symbology byte
	Data      string
}

// QR function codes within GS ( k for symbol type 49 (QR Code).
const (
	QRFuncModel = 65
	QRFuncSize  = 67
	QRFuncEC    = 69
	QRFuncStore = 80
	QRFuncPrint = 81
)

// QRPayload carries one GS ( k QR Code function. Data is populated for the
// store function; parameter functions carry their settings in Value.
type QRPayload struct {
	Function byte
	Value    byte
	Data     []byte
}

// ImagePayload carries raster image data from GS ( L or GS v 0.
type ImagePayload struct {
	Function byte // GS ( L function byte; 0 for GS v 0
	Width    int  // dots per row, 0 when not encoded in the command
	Height   int  // rows, 0 when not encoded in the command
	Data     []byte
}

// BeepPayload carries the buzzer command ESC B n t.
type BeepPayload struct {
	Times    int
	Duration int
}

// DrawerPayload carries the cash drawer kick command ESC p m t1 t2.
type DrawerPayload struct {
	Pin     byte
	OnTime  int
	OffTime int
}

// CodepagePayload carries a character code table selection (ESC t n).
type CodepagePayload struct {
	Table    int
	Encoding string
}

// StatusPayload carries a real-time status request (DLE EOT n).
type StatusPayload struct {
	Request byte
}

func (TextPayload) payload()     {}
func (FeedPayload) payload()     {}
func (CutPayload) payload()      {}
func (AlignPayload) payload()    {}
func (StylePayload) payload()    {}
func (BarcodePayload) payload()  {}
func (QRPayload) payload()       {}
func (ImagePayload) payload()    {}
func (BeepPayload) payload()     {}
func (DrawerPayload) payload()   {}
func (CodepagePayload) payload() {}
func (StatusPayload) payload()   {}
