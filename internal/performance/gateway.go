package performance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// DeviceErrorKind classifies a gateway call failure.
type DeviceErrorKind string

const (
	// DeviceUnreachable means the transport itself is down. Observed on a
	// channel's first dispatch it drives the fallback cascade.
	DeviceUnreachable DeviceErrorKind = "unreachable"
	// DeviceRejected means the device refused the specific command.
	DeviceRejected DeviceErrorKind = "rejected"
	// DeviceTimeout means the acknowledgement deadline passed.
	DeviceTimeout DeviceErrorKind = "timeout"
)

// DeviceError is the failure a gateway call reports.
type DeviceError struct {
	Kind DeviceErrorKind
	Op   string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %s", e.Op, e.Kind)
}

// IsUnreachable reports whether err carries a connectivity-loss kind.
func IsUnreachable(err error) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Kind == DeviceUnreachable
}

// Capability names an optional gateway feature, resolved once at gateway
// construction and never re-probed per call.
type Capability string

// CapSynchronized is the ability to accept concurrent commands on
// independent channels over one connection.
const CapSynchronized Capability = "synchronized_multi_channel"

// Gateway is the capability contract through which commands reach the
// physical device. The transport and command correlation live behind it;
// the scheduler only sees per-call success or DeviceError.
type Gateway interface {
	// StartDance starts a long-running dance behavior; it returns once the
	// device accepted the start, not when the dance ends.
	StartDance(ctx context.Context, name string) error
	// StopDance stops whatever behavior is running.
	StopDance(ctx context.Context) error
	// PlayAction runs a discrete body move to completion.
	PlayAction(ctx context.Context, name string) error
	// ShowExpression plays a facial animation.
	ShowExpression(ctx context.Context, name string) error
	// SetLight sets the indicator light color and mode for duration.
	SetLight(ctx context.Context, color, mode string, duration, breathPeriod time.Duration) error
	// Supports reports a capability resolved at construction time.
	Supports(c Capability) bool
}

// SerialGateway wraps a Gateway with a single critical section around every
// send, for transports that require exclusive access per physical command.
// Whether to use it is a property of the transport, not of the scheduler.
type SerialGateway struct {
	mu   sync.Mutex
	next Gateway
}

// NewSerialGateway returns a Gateway that serializes all calls to next.
func NewSerialGateway(next Gateway) *SerialGateway {
	return &SerialGateway{next: next}
}

func (g *SerialGateway) StartDance(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next.StartDance(ctx, name)
}

func (g *SerialGateway) StopDance(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next.StopDance(ctx)
}

func (g *SerialGateway) PlayAction(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next.PlayAction(ctx, name)
}

func (g *SerialGateway) ShowExpression(ctx context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next.ShowExpression(ctx, name)
}

func (g *SerialGateway) SetLight(ctx context.Context, color, mode string, duration, breathPeriod time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next.SetLight(ctx, color, mode, duration, breathPeriod)
}

func (g *SerialGateway) Supports(c Capability) bool {
	return g.next.Supports(c)
}

// SimCall records one command the simulated device received.
type SimCall struct {
	Op   string
	Name string
	At   time.Time
}

// SimGateway is an always-acknowledging simulated device. It stands in
// when no physical performer is attached and backs the scheduler tests.
type SimGateway struct {
	mu      sync.Mutex
	calls   []SimCall
	latency time.Duration
}

// NewSimGateway returns a simulated gateway with no call latency.
func NewSimGateway() *SimGateway {
	return &SimGateway{}
}

// SetLatency makes every call take d before acknowledging.
func (g *SimGateway) SetLatency(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latency = d
}

func (g *SimGateway) record(ctx context.Context, op, name string) error {
	g.mu.Lock()
	lat := g.latency
	g.mu.Unlock()
	if lat > 0 {
		t := time.NewTimer(lat)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	g.mu.Lock()
	g.calls = append(g.calls, SimCall{Op: op, Name: name, At: time.Now()})
	g.mu.Unlock()
	return nil
}

func (g *SimGateway) StartDance(ctx context.Context, name string) error {
	return g.record(ctx, "start_dance", name)
}

func (g *SimGateway) StopDance(ctx context.Context) error {
	return g.record(ctx, "stop_dance", "")
}

func (g *SimGateway) PlayAction(ctx context.Context, name string) error {
	return g.record(ctx, "play_action", name)
}

func (g *SimGateway) ShowExpression(ctx context.Context, name string) error {
	return g.record(ctx, "show_expression", name)
}

func (g *SimGateway) SetLight(ctx context.Context, color, mode string, duration, breathPeriod time.Duration) error {
	return g.record(ctx, "set_light", color+"/"+mode)
}

func (g *SimGateway) Supports(Capability) bool { return true }

// Calls returns a copy of everything the simulated device received.
func (g *SimGateway) Calls() []SimCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]SimCall, len(g.calls))
	copy(out, g.calls)
	return out
}
