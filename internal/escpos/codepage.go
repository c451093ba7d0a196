package escpos

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
)

// DefaultCodepage is the code table active after power-on. ESC @ does not
// reset the selection; it persists until the next ESC t, matching TM-series
// firmware.
const DefaultCodepage = "cp437"

// codepageEntry pairs an encoding name with its decoder.
type codepageEntry struct {
	name string
	enc  encoding.Encoding
}

// codepages maps ESC t table numbers to character encodings. The table
// numbers follow the Epson TM series; unlisted numbers fall back to cp437.
var codepages = map[int]codepageEntry{
	0:  {"cp437", charmap.CodePage437},
	1:  {"cp932", japanese.ShiftJIS},
	2:  {"cp850", charmap.CodePage850},
	3:  {"cp860", charmap.CodePage860},
	4:  {"cp863", charmap.CodePage863},
	5:  {"cp865", charmap.CodePage865},
	16: {"cp1252", charmap.Windows1252},
	17: {"cp866", charmap.CodePage866},
	18: {"cp852", charmap.CodePage852},
	19: {"cp858", charmap.CodePage858},
}

// lookupCodepage resolves an ESC t table number. Unknown tables select the
// default, matching real devices which ignore unsupported selections.
func lookupCodepage(table int) codepageEntry {
	if e, ok := codepages[table]; ok {
		return e
	}
	return codepages[0]
}

// decodeText converts payload bytes to a string using the given encoding.
// Undecodable bytes fall back to a Latin-1 interpretation so that text is
// never lost, only possibly misrendered, mirroring device behaviour.
func decodeText(data []byte, enc encoding.Encoding) string {
	out, err := enc.NewDecoder().Bytes(data)
	if err == nil {
		return string(out)
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
