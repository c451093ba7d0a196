package netsim

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Logger defines the logging interface used by the Pipeline.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Kind identifies a network condition.
type Kind string

const (
	KindDisconnect    Kind = "disconnect"
	KindLatency       Kind = "latency"
	KindPacketLoss    Kind = "packet_loss"
	KindCorruption    Kind = "corruption"
	KindFragmentation Kind = "fragmentation"
	KindDropPattern   Kind = "drop_pattern"
)

// composeOrder is the fixed composition order applied to every delivery.
// Multiple active conditions always compose in this sequence regardless of
// activation order, keeping fault interactions deterministic.
var composeOrder = []Kind{
	KindDisconnect,
	KindDropPattern,
	KindPacketLoss,
	KindCorruption,
	KindFragmentation,
	KindLatency,
}

// Params carries kind-specific condition parameters. Duration doubles as
// the disconnect window and as an optional time-to-live for any other
// condition kind; zero means active until cleared.
type Params struct {
	Duration   time.Duration `json:"duration,omitempty"`
	Latency    time.Duration `json:"latency,omitempty"`
	Jitter     time.Duration `json:"jitter,omitempty"`
	Percentage float64       `json:"percentage,omitempty"` // 0..100
	MaxSize    int           `json:"max_size,omitempty"`
	Pattern    []bool        `json:"pattern,omitempty"` // repeating drop mask
}

// Handle identifies an activated condition for later clearing.
type Handle string

// ConditionInfo is a read-only view of one active condition.
type ConditionInfo struct {
	Handle    Handle     `json:"handle"`
	Kind      Kind       `json:"kind"`
	Params    Params     `json:"params"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// condition is the internal activation record.
type condition struct {
	handle    Handle
	kind      Kind
	params    Params
	expiresAt *time.Time
	// patternIdx is the next position in a drop_pattern mask.
	patternIdx int
}

// Pipeline applies active network conditions to inbound traffic before it
// reaches the connection manager. There is exactly one pipeline per
// emulator; conditions are independently activatable and clearable and
// compose in a fixed order (see composeOrder).
//
// Randomised conditions (packet_loss, corruption) draw from a seedable
// source so trials can be made deterministic. All methods are safe for
// concurrent use.
type Pipeline struct {
	mu     sync.Mutex
	conds  []*condition // insertion order preserved within a kind
	timers map[Handle]*time.Timer
	rng    *rand.Rand

	onDisconnect func(active bool)
	logger       Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSeed makes packet loss and corruption draws deterministic.
func WithSeed(seed uint64) Option {
	return func(p *Pipeline) {
		p.rng = rand.New(rand.NewPCG(seed, seed^0xDEADBEEF))
	}
}

// NewPipeline creates a pipeline with no active conditions.
func NewPipeline(opts ...Option) *Pipeline {
	p := &Pipeline{
		timers: make(map[Handle]*time.Timer),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetLogger sets the logger for the pipeline.
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// OnDisconnect registers the hook invoked when a disconnect condition
// activates (true) or clears (false). The emulator uses it to move the
// printer state machine between Offline and Online and to drop open
// connections.
func (p *Pipeline) OnDisconnect(fn func(active bool)) {
	p.mu.Lock()
	p.onDisconnect = fn
	p.mu.Unlock()
}

// SetCondition validates params, activates the condition and returns a
// handle for clearing it. Conditions with a Duration auto-clear when it
// elapses.
func (p *Pipeline) SetCondition(kind Kind, params Params) (Handle, error) {
	if err := validate(kind, params); err != nil {
		return "", err
	}

	c := &condition{handle: Handle(uuid.NewString()), kind: kind, params: params}
	var hook func(bool)

	p.mu.Lock()
	if params.Duration > 0 {
		t := time.Now().Add(params.Duration)
		c.expiresAt = &t
		p.timers[c.handle] = time.AfterFunc(params.Duration, func() {
			p.expire(c.handle)
		})
	}
	p.conds = append(p.conds, c)
	if kind == KindDisconnect {
		hook = p.onDisconnect
	}
	p.mu.Unlock()

	if hook != nil {
		hook(true)
	}
	p.logger.Info("network condition set", "kind", kind, "handle", c.handle)
	return c.handle, nil
}

// ClearCondition deactivates a condition. Bytes already transformed and
// in flight are unaffected.
func (p *Pipeline) ClearCondition(h Handle) error {
	return p.remove(h, "cleared")
}

// expire is the timer path for timed conditions.
func (p *Pipeline) expire(h Handle) {
	// The timer may race a manual clear; a missing handle is fine.
	_ = p.remove(h, "expired")
}

func (p *Pipeline) remove(h Handle, cause string) error {
	p.mu.Lock()
	idx := -1
	for i, c := range p.conds {
		if c.handle == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrConditionNotFound, h)
	}
	c := p.conds[idx]
	p.conds = append(p.conds[:idx], p.conds[idx+1:]...)
	if t, ok := p.timers[h]; ok {
		t.Stop()
		delete(p.timers, h)
	}
	var hook func(bool)
	if c.kind == KindDisconnect && !p.kindActiveLocked(KindDisconnect) {
		hook = p.onDisconnect
	}
	p.mu.Unlock()

	if hook != nil {
		hook(false)
	}
	p.logger.Info("network condition removed", "kind", c.kind, "handle", h, "cause", cause)
	return nil
}

// ClearAll deactivates every condition.
func (p *Pipeline) ClearAll() {
	p.mu.Lock()
	conds := p.conds
	p.conds = nil
	for h, t := range p.timers {
		t.Stop()
		delete(p.timers, h)
	}
	var hook func(bool)
	for _, c := range conds {
		if c.kind == KindDisconnect {
			hook = p.onDisconnect
		}
	}
	p.mu.Unlock()

	if hook != nil {
		hook(false)
	}
	if len(conds) > 0 {
		p.logger.Info("all network conditions cleared", "count", len(conds))
	}
}

// Conditions returns a snapshot of the active conditions.
func (p *Pipeline) Conditions() []ConditionInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	infos := make([]ConditionInfo, len(p.conds))
	for i, c := range p.conds {
		infos[i] = ConditionInfo{Handle: c.handle, Kind: c.kind, Params: c.params, ExpiresAt: c.expiresAt}
	}
	return infos
}

// DisconnectActive reports whether a disconnect window is open.
func (p *Pipeline) DisconnectActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kindActiveLocked(KindDisconnect)
}

func (p *Pipeline) kindActiveLocked(k Kind) bool {
	for _, c := range p.conds {
		if c.kind == k {
			return true
		}
	}
	return false
}

// Apply runs one logical write through the active conditions and hands
// the surviving fragments to deliver, in order.
//
// Returned errors: ErrForcedDisconnect while a disconnect window is open,
// ctx.Err() if cancelled during an injected delay, or the deliver error.
// A dropped write returns nil; the bytes are simply gone, as on a lossy
// network.
func (p *Pipeline) Apply(ctx context.Context, chunk []byte, deliver func([]byte) error) error {
	fragments, delay, err := p.transform(chunk)
	if err != nil {
		return err
	}
	if fragments == nil {
		return nil // dropped
	}

	// The injected delay runs on the calling connection's goroutine, which
	// serialises delayed deliveries per connection and preserves FIFO order
	// even under jitter.
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	for _, frag := range fragments {
		if err := deliver(frag); err != nil {
			return err
		}
	}
	return nil
}

// transform applies the loss, corruption and fragmentation stages under
// the pipeline lock and computes the latency delay. A nil fragment slice
// with nil error means the write was dropped.
func (p *Pipeline) transform(chunk []byte) ([][]byte, time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data := chunk
	var delay time.Duration

	for _, kind := range composeOrder {
		for _, c := range p.conds {
			if c.kind != kind {
				continue
			}
			switch kind {
			case KindDisconnect:
				return nil, 0, ErrForcedDisconnect

			case KindDropPattern:
				drop := c.params.Pattern[c.patternIdx]
				c.patternIdx = (c.patternIdx + 1) % len(c.params.Pattern)
				if drop {
					return nil, 0, nil
				}

			case KindPacketLoss:
				if p.rng.Float64()*100 < c.params.Percentage {
					return nil, 0, nil
				}

			case KindCorruption:
				// Zero percent is the identity: bytes pass untouched.
				if c.params.Percentage <= 0 {
					continue
				}
				corrupted := append([]byte(nil), data...)
				for i := range corrupted {
					if p.rng.Float64()*100 < c.params.Percentage {
						corrupted[i] ^= 1 << p.rng.IntN(8)
					}
				}
				data = corrupted

			case KindLatency:
				delay += jitteredDelay(p.rng, c.params.Latency, c.params.Jitter)

			case KindFragmentation:
				// Handled below so later corruption conditions in the
				// compose order never straddle fragment copies.
			}
		}
	}

	fragments := [][]byte{data}
	for _, c := range p.conds {
		if c.kind == KindFragmentation {
			fragments = refragment(fragments, c.params.MaxSize)
		}
	}
	return fragments, delay, nil
}

// jitteredDelay returns latency +/- uniform(0, jitter), floored at zero.
func jitteredDelay(rng *rand.Rand, latency, jitter time.Duration) time.Duration {
	d := latency
	if jitter > 0 {
		d += time.Duration(rng.Int64N(int64(2*jitter))) - jitter
	}
	if d < 0 {
		return 0
	}
	return d
}

// refragment splits every fragment into chunks of at most maxSize bytes.
func refragment(fragments [][]byte, maxSize int) [][]byte {
	var out [][]byte
	for _, f := range fragments {
		for len(f) > maxSize {
			out = append(out, f[:maxSize])
			f = f[maxSize:]
		}
		if len(f) > 0 {
			out = append(out, f)
		}
	}
	return out
}

// validate checks kind-specific parameter ranges.
func validate(kind Kind, params Params) error {
	switch kind {
	case KindDisconnect:
		if params.Duration < 0 {
			return fmt.Errorf("%w: negative disconnect duration", ErrValidation)
		}
	case KindLatency:
		if params.Latency < 0 || params.Jitter < 0 {
			return fmt.Errorf("%w: latency and jitter must be >= 0", ErrValidation)
		}
	case KindPacketLoss, KindCorruption:
		if params.Percentage < 0 || params.Percentage > 100 {
			return fmt.Errorf("%w: percentage %v outside 0..100", ErrValidation, params.Percentage)
		}
	case KindFragmentation:
		if params.MaxSize < 1 {
			return fmt.Errorf("%w: fragment max_size must be >= 1", ErrValidation)
		}
	case KindDropPattern:
		if len(params.Pattern) == 0 {
			return fmt.Errorf("%w: drop pattern must not be empty", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown condition kind %q", ErrValidation, kind)
	}
	return nil
}
