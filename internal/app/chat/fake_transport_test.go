package chat

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Frame is a decoded outbound event as a client sees it.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Text returns the message text of a "new message" frame.
func (f Frame) Text() string {
	var msg struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(f.Data, &msg)
	return msg.Text
}

// Online returns the ids carried by an "online users" frame.
func (f Frame) Online() []string {
	var set []struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(f.Data, &set)

	ids := make([]string, 0, len(set))
	for _, i := range set {
		ids = append(ids, i.ID)
	}
	return ids
}

// FakeTransport records frames in memory.
type FakeTransport struct {
	mu      sync.Mutex
	frames  [][]byte
	reasons []string
	sendErr error

	// block, when set, makes Send wait until it is closed or ctx is done.
	block chan struct{}

	gone     chan struct{}
	goneOnce sync.Once
}

// NewFakeTransport returns a transport that accepts every frame.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{gone: make(chan struct{})}
}

// NewBlockingTransport returns a transport whose sends hang until the connection is terminated.
func NewBlockingTransport() *FakeTransport {
	ft := NewFakeTransport()
	ft.block = make(chan struct{})
	return ft
}

// FailSends makes every later send fail with err.
func (ft *FakeTransport) FailSends(err error) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.sendErr = err
}

func (ft *FakeTransport) Send(ctx context.Context, payload []byte) error {
	if ft.block != nil {
		select {
		case <-ft.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.sendErr != nil {
		return ft.sendErr
	}
	ft.frames = append(ft.frames, payload)
	return nil
}

func (ft *FakeTransport) Closed() <-chan struct{} {
	return ft.gone
}

func (ft *FakeTransport) Close(reason string) error {
	ft.mu.Lock()
	ft.reasons = append(ft.reasons, reason)
	ft.mu.Unlock()

	ft.HangUp()
	return nil
}

// HangUp simulates the client going away.
func (ft *FakeTransport) HangUp() {
	ft.goneOnce.Do(func() { close(ft.gone) })
}

// Frames returns the decoded frames sent so far.
func (ft *FakeTransport) Frames() []Frame {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	frames := make([]Frame, 0, len(ft.frames))
	for _, raw := range ft.frames {
		var f Frame
		_ = json.Unmarshal(raw, &f)
		frames = append(frames, f)
	}
	return frames
}

// FramesOf returns the sent frames of one event kind.
func (ft *FakeTransport) FramesOf(kind EventKind) []Frame {
	var out []Frame
	for _, f := range ft.Frames() {
		if f.Event == string(kind) {
			out = append(out, f)
		}
	}
	return out
}

// CloseReasons returns the reasons Close was called with.
func (ft *FakeTransport) CloseReasons() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]string(nil), ft.reasons...)
}

// PingingTransport is a FakeTransport that also answers pings.
type PingingTransport struct {
	*FakeTransport
	pings atomic.Int32
}

// NewPingingTransport returns a transport implementing Pinger.
func NewPingingTransport() *PingingTransport {
	return &PingingTransport{FakeTransport: NewFakeTransport()}
}

func (pt *PingingTransport) Ping(context.Context) error {
	pt.pings.Add(1)
	return nil
}

// Pings returns how many pings were sent.
func (pt *PingingTransport) Pings() int {
	return int(pt.pings.Load())
}
