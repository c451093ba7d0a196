package emulator

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/escpos-sim/internal/escpos"
	"github.com/nerrad567/escpos-sim/internal/netsim"
	"github.com/nerrad567/escpos-sim/internal/printer"
)

// connState is the per-connection receive state: the reassembly buffer
// holding bytes that have arrived but not yet formed a complete command,
// and the amount of printer buffer reserved for it.
type connState struct {
	id       string
	conn     net.Conn
	assembly []byte
	reserved int
}

// handleConn runs the read loop for one client until it disconnects, the
// emulator stops, or a fault closes it.
func (e *Emulator) handleConn(ctx context.Context, conn net.Conn) {
	cs := &connState{id: uuid.NewString(), conn: conn}
	e.trackConn(cs.id, conn)
	e.logger.Info("client connected", "conn_id", cs.id, "remote", conn.RemoteAddr().String())

	defer func() {
		if cs.reserved > 0 {
			e.machine.ReleaseBuffer(cs.reserved)
		}
		e.untrackConn(cs.id)
		conn.Close()
		e.logger.Info("client disconnected", "conn_id", cs.id)
	}()

	buf := make([]byte, readBufSize)
	lastActivity := time.Now()

	for {
		if ctx.Err() != nil {
			return
		}

		// Short deadlines keep the loop responsive to shutdown, idle
		// timeouts and printer recovery without a writer present.
		conn.SetReadDeadline(time.Now().Add(connPollInterval))
		n, err := conn.Read(buf)

		if n > 0 {
			lastActivity = time.Now()
			chunk := append([]byte(nil), buf[:n]...)
			if aerr := e.network.Apply(ctx, chunk, func(frag []byte) error {
				return e.ingest(cs, frag)
			}); aerr != nil {
				e.failConn(cs, aerr)
				return
			}
		}

		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				// Poll tick. Drain bytes buffered during an offline spell
				// now that the printer may be back.
				if len(cs.assembly) > 0 && e.machine.Snapshot().Status != printer.StatusOffline {
					if derr := e.drain(cs); derr != nil {
						e.failConn(cs, derr)
						return
					}
				}
				if e.cfg.IdleTimeout > 0 && time.Since(lastActivity) > e.cfg.IdleTimeout {
					e.log.AppendFailure(cs.id, failureIdleTimeout, ErrConnectionTimeout.Error())
					e.logger.Info("closing idle connection", "conn_id", cs.id)
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				e.logger.Debug("read failed", "conn_id", cs.id, "error", err)
			}
			return
		}
	}
}

// failConn records how a connection died before it is torn down.
func (e *Emulator) failConn(cs *connState, err error) {
	switch {
	case errors.Is(err, netsim.ErrForcedDisconnect):
		e.log.AppendFailure(cs.id, failureForcedDrop, err.Error())
	case errors.Is(err, printer.ErrBufferFull):
		e.log.AppendFailure(cs.id, failureBufferFull, err.Error())
		e.machine.SimulateError(printer.ErrorBufferFull)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Shutdown or cancelled injected delay, nothing to record.
	default:
		e.logger.Warn("connection failed", "conn_id", cs.id, "error", err)
	}
}

// ingest appends one delivered fragment to the reassembly buffer and
// decodes whatever complete commands it now holds.
func (e *Emulator) ingest(cs *connState, frag []byte) error {
	if err := e.machine.ReserveBuffer(len(frag)); err != nil {
		return err
	}
	cs.reserved += len(frag)
	cs.assembly = append(cs.assembly, frag...)
	return e.drain(cs)
}

// drain decodes complete commands out of the reassembly buffer. While the
// printer is offline the bytes stay buffered; the poll tick retries after
// recovery. Status requests are answered even then, so clients can see
// the offline bit. Error states keep decoding: the fault is visible in
// DLE EOT responses while the command stream continues to be logged.
func (e *Emulator) drain(cs *connState) error {
	if e.machine.Snapshot().Status == printer.StatusOffline {
		e.answerBufferedStatus(cs)
		return nil
	}

	cmds, consumed := e.decoder.Decode(cs.assembly)
	if consumed > 0 {
		cs.assembly = append(cs.assembly[:0:0], cs.assembly[consumed:]...)
		e.machine.ReleaseBuffer(consumed)
		cs.reserved -= consumed
	}

	delay := e.CommandDelay()
	for _, cmd := range cmds {
		if delay > 0 {
			time.Sleep(delay)
		}
		e.log.AppendCommand(cs.id, cmd)
		e.faults.CommandProcessed()
		if cmd.Kind == escpos.KindStatus {
			e.writeStatus(cs)
		}
	}
	return nil
}

// answerBufferedStatus responds to a status request sitting at the head
// of the buffer while offline, without consuming any other commands.
func (e *Emulator) answerBufferedStatus(cs *connState) {
	for len(cs.assembly) >= 3 && cs.assembly[0] == 0x10 && cs.assembly[1] == 0x04 {
		cmd := escpos.Command{
			Kind:       escpos.KindStatus,
			Raw:        append([]byte(nil), cs.assembly[:3]...),
			ReceivedAt: time.Now(),
			Payload:    escpos.StatusPayload{Request: cs.assembly[2]},
		}
		cs.assembly = append(cs.assembly[:0:0], cs.assembly[3:]...)
		e.machine.ReleaseBuffer(3)
		cs.reserved -= 3
		e.log.AppendCommand(cs.id, cmd)
		e.writeStatus(cs)
	}
}

// writeStatus sends the real-time status byte for the current state.
func (e *Emulator) writeStatus(cs *connState) {
	st := e.machine.Snapshot()
	if _, err := cs.conn.Write([]byte{statusByte(st)}); err != nil {
		e.logger.Debug("status write failed", "conn_id", cs.id, "error", err)
	}
}

// statusByte encodes printer state into the single DLE EOT response byte:
// bit 3 set when offline, bit 5 set on any paper problem.
func statusByte(st printer.State) byte {
	var b byte
	if !st.Online() {
		b |= 0x08
	}
	if st.Paper != printer.PaperOK {
		b |= 0x20
	}
	return b
}
