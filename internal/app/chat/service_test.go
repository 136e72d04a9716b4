package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"fullchat/internal/app/chat"
	"fullchat/internal/app/user"
	"fullchat/internal/mocks"
)

const eventually = 2 * time.Second

var (
	alice = user.Identity{ID: "u-alice", Username: "alice"}
	bob   = user.Identity{ID: "u-bob", Username: "bob"}
	carol = user.Identity{ID: "u-carol", Username: "carol"}

	tokens = map[string]user.Identity{
		"token-alice": alice,
		"token-bob":   bob,
		"token-carol": carol,
	}
)

type fixture struct {
	service  *chat.Service
	verifier *mocks.MockAuthVerifier
	store    *mocks.MockStore
}

func newFixture(t *testing.T, policy chat.AnonymousPolicy) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockAuthVerifier(ctrl)
	store := mocks.NewMockStore(ctrl)

	verifier.EXPECT().Verify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, token string) (user.Identity, bool, error) {
			identity, ok := tokens[token]
			return identity, ok, nil
		}).AnyTimes()

	service := chat.NewService(verifier, store, chat.Options{AnonymousPolicy: policy})
	t.Cleanup(func() { _ = service.Shutdown(context.Background()) })

	return &fixture{service: service, verifier: verifier, store: store}
}

// persistAll makes the store accept every non-blank message.
func (f *fixture) persistAll() {
	f.store.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, authorID, text string) (chat.Message, error) {
			if text == "" {
				return chat.Message{}, &chat.ValidationError{Field: "text", Reason: chat.ReasonEmpty}
			}
			author := user.Identity{ID: authorID}
			for _, identity := range tokens {
				if identity.ID == authorID {
					author = identity
				}
			}
			return chat.Message{ID: uuid.NewString(), Author: author, Text: text, CreatedAt: time.Now()}, nil
		}).AnyTimes()
}

func (f *fixture) connect(t *testing.T, token string) (*chat.Connection, *chat.FakeTransport) {
	t.Helper()

	ft := chat.NewFakeTransport()
	conn, err := f.service.OnConnect(context.Background(), chat.ConnectRequest{
		SessionToken: token,
		RemoteAddr:   "127.0.0.1:5555",
		Transport:    ft,
	})
	require.NoError(t, err)

	return conn, ft
}

// waitForText blocks until ft received a "new message" frame with text.
func waitForText(t *testing.T, ft *chat.FakeTransport, text string) {
	t.Helper()

	require.Eventually(t, func() bool {
		for _, f := range ft.FramesOf(chat.EventMessageCreated) {
			if f.Text() == text {
				return true
			}
		}
		return false
	}, eventually, time.Millisecond)
}

func countText(ft *chat.FakeTransport, text string) int {
	n := 0
	for _, f := range ft.FramesOf(chat.EventMessageCreated) {
		if f.Text() == text {
			n++
		}
	}
	return n
}

func TestService_OnConnectGreetsWithOnlineUsers(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousReject)

	_, bobTransport := f.connect(t, "token-bob")
	conn, aliceTransport := f.connect(t, "token-alice")

	req.Equal(alice, conn.Identity())
	req.Eventually(func() bool { return len(aliceTransport.Frames()) > 0 }, eventually, time.Millisecond)

	first := aliceTransport.Frames()[0]
	req.Equal(string(chat.EventPresenceChanged), first.Event)
	req.Equal([]string{alice.ID, bob.ID}, first.Online())

	// bob saw himself come online, then alice
	req.Eventually(func() bool { return len(bobTransport.FramesOf(chat.EventPresenceChanged)) == 2 }, eventually, time.Millisecond)
	req.Equal([]string{alice.ID, bob.ID}, f.service.FetchPresence().IDs())
}

func TestService_SecondDeviceScenario(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousObserve)
	f.persistAll()

	// Given an anonymous observer watching every broadcast
	_, watcher := f.connect(t, "")

	// When alice connects conn1
	conn1, _ := f.connect(t, "token-alice")
	req.Equal([]string{alice.ID}, f.service.FetchPresence().IDs())

	// And a second device
	conn2, second := f.connect(t, "token-alice")
	req.Equal([]string{alice.ID}, f.service.FetchPresence().IDs())

	// Then the second device is greeted with the list it joined, before anything disconnects
	req.Eventually(func() bool {
		return len(second.FramesOf(chat.EventPresenceChanged)) == 1
	}, eventually, time.Millisecond)
	req.Equal([]string{alice.ID}, second.FramesOf(chat.EventPresenceChanged)[0].Online())

	// And conn1 disconnects
	f.service.OnDisconnect(conn1.ID())
	req.Equal([]string{alice.ID}, f.service.FetchPresence().IDs())

	// And conn2 disconnects
	f.service.OnDisconnect(conn2.ID())
	req.Empty(f.service.FetchPresence())

	// Then, once a later broadcast has arrived, the observer saw: its greeting, alice online, nobody online
	_, err := f.service.SubmitMessage(context.Background(), bob, "sentinel")
	req.NoError(err)
	waitForText(t, watcher, "sentinel")

	presence := watcher.FramesOf(chat.EventPresenceChanged)
	req.Len(presence, 3)
	req.Empty(presence[0].Online())
	req.Equal([]string{alice.ID}, presence[1].Online())
	req.Empty(presence[2].Online())
}

func TestService_SubmitMessageReachesEveryConnectionOnce(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousReject)
	f.persistAll()

	// Given B and C connected
	_, b := f.connect(t, "token-bob")
	_, c := f.connect(t, "token-carol")

	// When A submits "hi"
	msg, err := f.service.SubmitMessage(context.Background(), alice, "hi")
	req.NoError(err)
	req.Equal(alice, msg.Author)

	// Then B and C each receive it exactly once
	_, err = f.service.SubmitMessage(context.Background(), alice, "done")
	req.NoError(err)
	waitForText(t, b, "done")
	waitForText(t, c, "done")

	req.Equal(1, countText(b, "hi"))
	req.Equal(1, countText(c, "hi"))
}

func TestService_EmptyMessageIsNotBroadcast(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousReject)
	f.persistAll()

	_, b := f.connect(t, "token-bob")

	// When alice submits an empty message
	_, err := f.service.SubmitMessage(context.Background(), alice, "")

	// Then it fails validation
	var validationErr *chat.ValidationError
	req.ErrorAs(err, &validationErr)
	req.Equal(chat.ReasonEmpty, validationErr.Reason)

	// And nothing was broadcast ahead of the next message
	_, err = f.service.SubmitMessage(context.Background(), alice, "after")
	req.NoError(err)
	waitForText(t, b, "after")
	req.Len(b.FramesOf(chat.EventMessageCreated), 1)
}

func TestService_StoreFailureIsNotBroadcast(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousReject)

	f.store.EXPECT().CreateMessage(gomock.Any(), alice.ID, "lost").
		Return(chat.Message{}, errors.New("connection refused")).Times(1)

	_, b := f.connect(t, "token-bob")

	_, err := f.service.SubmitMessage(context.Background(), alice, "lost")

	var storeErr *chat.StoreError
	req.ErrorAs(err, &storeErr)
	req.Equal("create message", storeErr.Op)

	time.Sleep(20 * time.Millisecond)
	req.Empty(b.FramesOf(chat.EventMessageCreated))
}

func TestService_SubmitRequiresIdentity(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousReject)

	_, err := f.service.SubmitMessage(context.Background(), user.Identity{}, "hi")

	req.ErrorIs(err, chat.ErrUnauthenticated)
}

func TestService_RejectPolicyClosesAnonymousConnections(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousReject)

	for _, token := range []string{"", "token-unknown"} {
		ft := chat.NewFakeTransport()
		conn, err := f.service.OnConnect(context.Background(), chat.ConnectRequest{SessionToken: token, Transport: ft})

		req.ErrorIs(err, chat.ErrUnauthenticated)
		req.Nil(conn)
		req.Equal([]string{"unauthenticated"}, ft.CloseReasons())
	}

	registered, observers := f.service.ConnectionCount()
	req.Zero(registered)
	req.Zero(observers)
	req.Empty(f.service.FetchPresence())
}

func TestService_ObservePolicyKeepsAnonymousOutOfPresence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousObserve)

	conn, ft := f.connect(t, "token-unknown")

	req.True(conn.Anonymous())
	req.Empty(f.service.FetchPresence())

	registered, observers := f.service.ConnectionCount()
	req.Zero(registered)
	req.Equal(1, observers)

	req.Eventually(func() bool { return len(ft.Frames()) == 1 }, eventually, time.Millisecond)
	req.Equal(string(chat.EventPresenceChanged), ft.Frames()[0].Event)
}

func TestService_VerifierFailureIsRefused(t *testing.T) {
	req := require.New(t)

	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockAuthVerifier(ctrl)
	verifier.EXPECT().Verify(gomock.Any(), "token-alice").
		Return(user.Identity{}, false, errors.New("database unavailable"))

	service := chat.NewService(verifier, mocks.NewMockStore(ctrl), chat.Options{AnonymousPolicy: chat.AnonymousObserve})
	defer service.Shutdown(context.Background())

	ft := chat.NewFakeTransport()
	_, err := service.OnConnect(context.Background(), chat.ConnectRequest{SessionToken: "token-alice", Transport: ft})

	req.Error(err)
	req.NotErrorIs(err, chat.ErrUnauthenticated)
	req.Contains(err.Error(), "database unavailable")
	req.Equal([]string{"unauthenticated"}, ft.CloseReasons())
}

func TestService_HandleFrame(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousObserve)
	f.persistAll()

	conn, ft := f.connect(t, "token-alice")
	observer, _ := f.connect(t, "")

	frame, err := json.Marshal(map[string]any{"event": "new message", "data": map[string]string{"text": "over the socket"}})
	req.NoError(err)

	// a client frame is submitted and broadcast back
	req.NoError(f.service.HandleFrame(context.Background(), conn, frame))
	waitForText(t, ft, "over the socket")

	// anonymous observers may not post
	req.ErrorIs(f.service.HandleFrame(context.Background(), observer, frame), chat.ErrUnauthenticated)

	var validationErr *chat.ValidationError
	req.ErrorAs(f.service.HandleFrame(context.Background(), conn, []byte("{not json")), &validationErr)
	req.Equal(chat.ReasonMalformed, validationErr.Reason)

	req.ErrorAs(f.service.HandleFrame(context.Background(), conn, []byte(`{"event":"typing"}`)), &validationErr)
	req.Equal(chat.ReasonUnknown, validationErr.Reason)
}

func TestService_FetchHistory(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousReject)

	history := []chat.Message{
		{ID: uuid.NewString(), Author: bob, Text: "Hello World!", CreatedAt: time.Now()},
	}

	gomock.InOrder(
		f.store.EXPECT().ListMessages(gomock.Any()).Return(history, nil),
		f.store.EXPECT().ListMessages(gomock.Any()).Return(nil, errors.New("timeout")),
	)

	got, err := f.service.FetchHistory(context.Background())
	req.NoError(err)
	req.Equal(history, got)

	_, err = f.service.FetchHistory(context.Background())
	var storeErr *chat.StoreError
	req.ErrorAs(err, &storeErr)
}

func TestService_NotifyTargetsOneConnection(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousReject)

	conn, target := f.connect(t, "token-alice")
	_, other := f.connect(t, "token-bob")

	req.True(f.service.Notify(conn, chat.Failure(2201, "Message cannot be empty.")))

	req.Eventually(func() bool { return len(target.FramesOf(chat.EventError)) == 1 }, eventually, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	req.Empty(other.FramesOf(chat.EventError))
}

func TestService_ConnectAfterShutdown(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, chat.AnonymousReject)

	_, ft := f.connect(t, "token-alice")

	req.NoError(f.service.Shutdown(context.Background()))
	req.Equal([]string{"server shutting down"}, ft.CloseReasons())

	_, err := f.service.OnConnect(context.Background(), chat.ConnectRequest{SessionToken: "token-bob", Transport: chat.NewFakeTransport()})
	req.ErrorIs(err, chat.ErrServiceClosed)
	req.Empty(f.service.FetchPresence())
}
