/*
Package chat contains the presence-aware broadcast core.

This file defines the Service facade. Transport handlers and REST handlers only talk to the
Service; it drives the gate, the registry, the presence tracker and the hub.
*/
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"fullchat/internal/app/user"
	"fullchat/internal/pkg/logx"
)

// Options configures a Service.
type Options struct {
	SendQueueSize   int
	IdleTimeout     time.Duration
	WriteTimeout    time.Duration
	AnonymousPolicy AnonymousPolicy
}

// Service is the chat facade: connect, disconnect, submit, history and presence.
type Service struct {
	registry *Registry
	tracker  *PresenceTracker
	hub      *Hub
	gate     *SessionGate
	store    Store
	policy   AnonymousPolicy
	logger   zerolog.Logger
}

// NewService wires the core components around the given collaborators.
func NewService(verifier AuthVerifier, store Store, opts Options) *Service {
	registry := NewRegistry()
	hub := NewHub(registry, HubOptions{
		QueueSize:    opts.SendQueueSize,
		IdleTimeout:  opts.IdleTimeout,
		WriteTimeout: opts.WriteTimeout,
	})

	policy := opts.AnonymousPolicy
	if policy == "" {
		policy = AnonymousObserve
	}

	return &Service{
		registry: registry,
		tracker:  NewPresenceTracker(registry, hub),
		hub:      hub,
		gate:     NewSessionGate(verifier),
		store:    store,
		policy:   policy,
		logger:   logx.Component("Service"),
	}
}

// OnConnect authenticates the request and starts delivering to it. The first frame a new
// connection receives is the current online list.
//
// Unauthenticated requests are attached as anonymous observers under AnonymousObserve and
// refused with ErrUnauthenticated under AnonymousReject. Verifier failures are always refused.
func (s *Service) OnConnect(ctx context.Context, req ConnectRequest) (*Connection, error) {
	if req.Transport == nil {
		return nil, errors.New("connect: nil transport")
	}

	identity, err := s.gate.Authenticate(ctx, req)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) && s.policy == AnonymousObserve {
			return s.observe(req)
		}

		if closeErr := req.Transport.Close("unauthenticated"); closeErr != nil {
			s.logger.Debug().Err(closeErr).Msg("Transport close error.")
		}
		return nil, err
	}

	conn := s.hub.NewConnection(req.Transport)

	// Registering notifies the tracker, which publishes the new set if this identity just
	// came online. Greet covers the case where nothing changed.
	s.registry.Register(identity, conn)
	s.tracker.Greet(conn)

	if err := s.hub.Start(conn); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("connection_id", string(conn.ID())).
		Str("user_id", identity.ID).
		Str("remote_addr", req.RemoteAddr).
		Msg("Client connected.")

	return conn, nil
}

func (s *Service) observe(req ConnectRequest) (*Connection, error) {
	conn := s.hub.NewConnection(req.Transport)
	if err := s.hub.Observe(conn); err != nil {
		return nil, err
	}
	s.tracker.Greet(conn)

	s.logger.Info().
		Str("connection_id", string(conn.ID())).
		Str("remote_addr", req.RemoteAddr).
		Msg("Anonymous client connected.")

	return conn, nil
}

// OnDisconnect terminates and unregisters the connection. Repeated calls are no-ops.
func (s *Service) OnDisconnect(id ConnectionID) {
	s.hub.Disconnect(id)
}

// SubmitMessage persists text as a message by identity and broadcasts it. Nothing is
// broadcast when the store rejects or fails to persist the message.
func (s *Service) SubmitMessage(ctx context.Context, identity user.Identity, text string) (Message, error) {
	if identity.IsZero() {
		return Message{}, ErrUnauthenticated
	}

	msg, err := s.store.CreateMessage(ctx, identity.ID, text)
	if err != nil {
		err = asStoreError("create message", err)
		s.logger.Warn().Err(err).Str("user_id", identity.ID).Msg("Message submission failed.")
		return Message{}, err
	}

	if msg.Author.IsZero() {
		msg.Author = identity
	}

	s.hub.Publish(MessageCreated(msg))

	return msg, nil
}

// FetchHistory returns the most recent HISTORY_LIMIT messages, oldest first.
func (s *Service) FetchHistory(ctx context.Context) ([]Message, error) {
	messages, err := s.store.ListMessages(ctx)
	if err != nil {
		return nil, asStoreError("list messages", err)
	}
	return messages, nil
}

// FetchPresence returns the current online set.
func (s *Service) FetchPresence() PresenceSet {
	return s.tracker.CurrentSet()
}

// Notify sends evt to a single connection, in order with broadcasts.
func (s *Service) Notify(conn *Connection, evt Event) bool {
	return s.hub.SendTo(conn, evt)
}

// inboundFrame is a client frame in the same envelope as outbound events.
type inboundFrame struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// HandleFrame processes one frame received from conn. The returned error concerns conn
// alone; the caller reports it back to that connection only.
func (s *Service) HandleFrame(ctx context.Context, conn *Connection, raw []byte) error {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return &ValidationError{Field: "frame", Reason: ReasonMalformed}
	}

	switch frame.Event {
	case EventMessageCreated:
		var data struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return &ValidationError{Field: "data", Reason: ReasonMalformed}
		}
		if conn.Anonymous() {
			return ErrUnauthenticated
		}

		_, err := s.SubmitMessage(ctx, conn.Identity(), data.Text)
		return err

	default:
		return &ValidationError{Field: "event", Reason: ReasonUnknown}
	}
}

// ConnectionCount returns the number of registered connections and anonymous observers.
func (s *Service) ConnectionCount() (registered, observers int) {
	return s.registry.Count(), s.hub.Observers()
}

// Shutdown closes every connection. Later connects fail with ErrServiceClosed.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.hub.Shutdown(ctx)
}

// asStoreError keeps typed store errors and wraps anything else in a StoreError.
func asStoreError(op string, err error) error {
	var validationErr *ValidationError
	var storeErr *StoreError
	if errors.As(err, &validationErr) || errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
