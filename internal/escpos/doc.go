// Package escpos decodes the ESC/POS binary wire protocol into structured
// commands.
//
// The decoder is the first consumer of bytes arriving from a printer
// client. It understands the opcode families a TM-series thermal printer
// accepts (initialize, feed, cut, alignment, styling, barcode, QR, raster
// image, beep, drawer kick, codepage select, real-time status) and reports
// anything else as an unknown command instead of failing the stream.
//
// # Streaming model
//
// Callers accumulate received bytes in a reassembly buffer and hand the
// whole buffer to Decode. The decoder returns every complete command plus
// the byte count it consumed; a trailing partial command is left in place
// and consumes nothing, so fragmentation at arbitrary boundaries is
// transparent:
//
//	cmds, n := dec.Decode(buf)
//	buf = buf[n:]
//
// # Codepage
//
// ESC t selects the character code table used to interpret text and
// barcode payloads. The active table is decoder-level configuration,
// readable via Codepage() for byte-accurate verification; it has no effect
// on command boundary detection.
package escpos
