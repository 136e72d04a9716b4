package chat

import "context"

// Transport is the bidirectional channel to one client.
// Send is only ever called from the connection's own delivery goroutine.
type Transport interface {
	// Send writes one frame. It must give up when ctx is done.
	Send(ctx context.Context, payload []byte) error

	// Closed is closed once the client side of the channel has gone away.
	Closed() <-chan struct{}

	// Close releases the channel. It may be called more than once.
	Close(reason string) error
}

// Pinger is implemented by transports that can send a liveness ping.
// A successful ping counts as a successful send for the idle timeout.
type Pinger interface {
	Ping(ctx context.Context) error
}
