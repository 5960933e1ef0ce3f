package chat

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"dmchat/internal/app/boltdb"
	"dmchat/internal/app/message"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	closed bool
	full   bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Deliver(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.full {
		return false
	}
	c.frames = append(c.frames, frame)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// received returns the decoded frames of type t, in arrival order.
func (c *fakeConn) received(t *testing.T, typ EventType) []Frame {
	t.Helper()

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Frame
	for _, raw := range c.frames {
		f, err := DecodeFrame(raw)
		if err != nil {
			t.Fatalf("undecodable frame %q: %v", raw, err)
		}
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	router     *Router
	presence   *Presence
	sessions   *Sessions
	dispatcher *Dispatcher
	db         *boltdb.DB
	clock      *testClock
	nextID     int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &testClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}

	db, err := boltdb.Open(filepath.Join(t.TempDir(), "chat.db"), boltdb.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("boltdb.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	router := NewRouter()
	presence := NewPresence()

	return &testEnv{
		router:     router,
		presence:   presence,
		sessions:   NewSessions(router, presence, db.Users(), router, WithSessionClock(clock.Now)),
		dispatcher: NewDispatcher(db.Messages(), db.Users(), router, WithDispatcherClock(clock.Now)),
		db:         db,
		clock:      clock,
	}
}

// join opens a connection and binds it to username.
func (e *testEnv) join(username string) *fakeConn {
	e.nextID++
	conn := newFakeConn(fmt.Sprintf("conn-%d", e.nextID))
	e.sessions.Connect(conn)
	e.sessions.Bind(context.Background(), conn, username)
	return conn
}

func (e *testEnv) send(from, to, text string) {
	e.dispatcher.Send(context.Background(), from, SendPayload{Sender: from, Receiver: to, Message: text})
}

func (e *testEnv) history(t *testing.T, a, b string) []message.Message {
	t.Helper()

	msgs, err := e.db.Messages().FindConversation(context.Background(), a, b)
	if err != nil {
		t.Fatalf("FindConversation: %v", err)
	}
	return msgs
}

func decodePayload[T any](t *testing.T, f Frame) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(f.Payload, &v); err != nil {
		t.Fatalf("decode %s payload %s: %v", f.Type, f.Payload, err)
	}
	return v
}
