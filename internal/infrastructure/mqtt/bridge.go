package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/escpos-sim/internal/history"
	"github.com/nerrad567/escpos-sim/internal/printer"
)

// bridgeEventBuffer sizes the state-event subscription. A slow broker must
// not block printer transitions, so overflow drops events.
const bridgeEventBuffer = 64

// Bridge republishes printer activity onto MQTT: a retained status topic
// plus per-event topics for errors, recoveries and decoded commands. It is
// optional; test fleets that poll a shared emulator over MQTT enable it in
// config.
type Bridge struct {
	client  *Client
	machine *printer.Machine
	log     *history.Log
	qos     byte
	logger  Logger

	hookOnce sync.Once
	running  atomic.Bool
}

// NewBridge wires a bridge to the given machine and history log. Run must
// be called to start forwarding.
func NewBridge(client *Client, machine *printer.Machine, log *history.Log, qos byte) *Bridge {
	return &Bridge{client: client, machine: machine, log: log, qos: qos}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// Run forwards printer events until ctx is cancelled. It publishes the
// current status retained on startup and after every transition.
func (b *Bridge) Run(ctx context.Context) {
	sub := b.machine.Subscribe(bridgeEventBuffer)
	defer sub.Cancel()

	b.hookOnce.Do(func() { b.log.AddNotify(b.publishEntry) })
	b.running.Store(true)
	defer b.running.Store(false)

	b.publishStatus()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			b.publishTransition(ev)
			b.publishStatus()
		}
	}
}

// publishStatus publishes the retained status snapshot.
func (b *Bridge) publishStatus() {
	st := b.machine.Snapshot()
	payload, err := json.Marshal(st)
	if err != nil {
		return
	}
	if err := b.client.Publish(Topics{}.PrinterStatus(), payload, b.qos, true); err != nil {
		b.warn("status publish failed", "error", err)
	}
}

// publishTransition publishes one error or recovery event.
func (b *Bridge) publishTransition(ev printer.Event) {
	topic := Topics{}.PrinterError()
	if ev.Type == printer.EventRecovery {
		topic = Topics{}.PrinterRecovery()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := b.client.Publish(topic, payload, b.qos, false); err != nil {
		b.warn("event publish failed", "topic", topic, "error", err)
	}
}

// commandEvent is the wire shape for decoded command announcements.
type commandEvent struct {
	Seq    int64     `json:"seq"`
	ConnID string    `json:"conn_id"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
}

// publishEntry forwards a history append. Failure markers are skipped;
// they surface through the error topic already.
func (b *Bridge) publishEntry(e history.Entry) {
	if !b.running.Load() || e.Command == nil {
		return
	}
	payload, err := json.Marshal(commandEvent{
		Seq:    e.Seq,
		ConnID: e.ConnID,
		Kind:   string(e.Command.Kind),
		At:     e.At,
	})
	if err != nil {
		return
	}
	if err := b.client.Publish(Topics{}.PrinterCommand(), payload, 0, false); err != nil {
		b.warn("command publish failed", "error", err)
	}
}

func (b *Bridge) warn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
