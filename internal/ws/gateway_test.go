package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"dm-chat/internal/domain"
	"dm-chat/internal/presence"
	"dm-chat/internal/repository"
	"dm-chat/internal/service"
)

// fakeConn alimenta frames por un canal y graba todo lo escrito.
type fakeConn struct {
	in chan []byte

	mu     sync.Mutex
	writes [][]byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.in
	if !ok {
		return 0, nil, fmt.Errorf("connection closed")
	}
	return websocket.TextMessage, data, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(t *testing.T, frame domain.Frame) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	c.in <- data
}

func (c *fakeConn) events(t *testing.T) []domain.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, 0, len(c.writes))
	for _, data := range c.writes {
		var ev domain.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		out = append(out, ev)
	}
	return out
}

func (c *fakeConn) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-c.closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("connection never closed")
	}
}

// fakeStore es un MessageStore mínimo en memoria para el gateway.
type fakeStore struct {
	mu       sync.Mutex
	seq      int
	messages map[string]*domain.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[string]*domain.Message)}
}

func (s *fakeStore) Append(_ context.Context, msg domain.Message) (domain.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	msg.ID = fmt.Sprintf("m%d", s.seq)
	msg.CreatedAt = time.Now().UTC()
	stored := msg
	s.messages[msg.ID] = &stored
	return domain.StoredMessage{Message: msg}, nil
}

func (s *fakeStore) Transition(_ context.Context, messageID string, target domain.DeliveryState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return false, repository.ErrMessageNotFound
	}
	return msg.Advance(target), nil
}

func (s *fakeStore) ListConversation(context.Context, string, string) ([]domain.StoredMessage, error) {
	return nil, nil
}

func (s *fakeStore) FindUnseenFrom(_ context.Context, senderID, receiverID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, m := range s.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID && !m.Seen {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeStore) SenderOf(_ context.Context, messageID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[messageID]
	if !ok {
		return "", repository.ErrMessageNotFound
	}
	return msg.SenderID, nil
}

func (s *fakeStore) PurgeAll(context.Context) error { return nil }

func newTestGateway() (*Gateway, *Hub, *presence.Registry, *fakeStore) {
	logger := zap.NewNop()
	store := newFakeStore()
	registry := presence.NewRegistry()
	hub := NewHub(logger)
	chat := service.NewChatService(logger, store, registry, hub, nil)
	return NewGateway(logger, chat, hub), hub, registry, store
}

func runConnection(g *Gateway, conn *fakeConn, userID string, done chan<- struct{}) {
	go func() {
		g.HandleConnection(context.Background(), conn, userID)
		done <- struct{}{}
	}()
}

// waitFor sondea hasta que la condición se cumpla; los read pumps corren en
// goroutines propias y los tests necesitan un punto de sincronización.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition never met")
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func TestGatewayRejectsFramesBeforeJoin(t *testing.T) {
	g, _, _, store := newTestGateway()
	conn := newFakeConn()
	done := make(chan struct{}, 1)
	runConnection(g, conn, "alice", done)

	conn.push(t, domain.Frame{Type: domain.FrameSend, ReceiverID: "bob", Content: "hi"})
	close(conn.in)
	<-done
	conn.waitClosed(t)

	events := conn.events(t)
	if len(events) != 1 || events[0].Type != domain.EventError {
		t.Fatalf("expected single error event, got %+v", events)
	}
	if len(store.messages) != 0 {
		t.Fatalf("send before join must not persist anything")
	}
}

func TestGatewayJoinSendDisconnect(t *testing.T) {
	g, _, registry, store := newTestGateway()
	conn := newFakeConn()
	done := make(chan struct{}, 1)
	runConnection(g, conn, "alice", done)

	conn.push(t, domain.Frame{Type: domain.FrameJoin})
	conn.push(t, domain.Frame{Type: domain.FrameSend, ReceiverID: "bob", Content: "hi"})
	close(conn.in)
	<-done
	conn.waitClosed(t)

	if registry.IsOnline("alice") {
		t.Fatalf("expected presence removed after disconnect")
	}
	if len(store.messages) != 1 {
		t.Fatalf("expected persisted message, got %d", len(store.messages))
	}

	events := conn.events(t)
	// join -> snapshot de presencia; send -> eco del registro canónico.
	if len(events) != 2 {
		t.Fatalf("expected presence and message events, got %+v", events)
	}
	if events[0].Type != domain.EventPresence || len(events[0].UserIDs) != 1 || events[0].UserIDs[0] != "alice" {
		t.Fatalf("unexpected presence event: %+v", events[0])
	}
	if events[1].Type != domain.EventMessage || events[1].Message == nil || events[1].Message.Content != "hi" {
		t.Fatalf("unexpected message event: %+v", events[1])
	}
	if events[1].Message.SenderID != "alice" {
		t.Fatalf("sender identity must come from the session, got %q", events[1].Message.SenderID)
	}
}

func TestGatewaySendDeliversToOnlineReceiver(t *testing.T) {
	g, _, registry, _ := newTestGateway()

	bobConn := newFakeConn()
	bobDone := make(chan struct{}, 1)
	runConnection(g, bobConn, "bob", bobDone)
	bobConn.push(t, domain.Frame{Type: domain.FrameJoin})
	waitFor(t, func() bool { return registry.IsOnline("bob") })

	aliceConn := newFakeConn()
	aliceDone := make(chan struct{}, 1)
	runConnection(g, aliceConn, "alice", aliceDone)
	aliceConn.push(t, domain.Frame{Type: domain.FrameJoin})
	aliceConn.push(t, domain.Frame{Type: domain.FrameSend, ReceiverID: "bob", Content: "hi"})

	close(aliceConn.in)
	<-aliceDone
	aliceConn.waitClosed(t)
	close(bobConn.in)
	<-bobDone
	bobConn.waitClosed(t)

	var aliceMessages, aliceDelivered int
	for _, ev := range aliceConn.events(t) {
		switch ev.Type {
		case domain.EventMessage:
			aliceMessages++
		case domain.EventDelivered:
			aliceDelivered++
		}
	}
	if aliceMessages != 1 || aliceDelivered != 1 {
		t.Fatalf("expected alice to get message+delivered, got messages=%d delivered=%d", aliceMessages, aliceDelivered)
	}

	var bobMessages int
	for _, ev := range bobConn.events(t) {
		if ev.Type == domain.EventMessage {
			bobMessages++
		}
	}
	if bobMessages != 1 {
		t.Fatalf("expected bob to get exactly one message event, got %d", bobMessages)
	}
}

func TestGatewayDeliveryAckNotifiesSender(t *testing.T) {
	g, _, _, store := newTestGateway()

	aliceConn := newFakeConn()
	aliceDone := make(chan struct{}, 1)
	runConnection(g, aliceConn, "alice", aliceDone)
	aliceConn.push(t, domain.Frame{Type: domain.FrameJoin})
	aliceConn.push(t, domain.Frame{Type: domain.FrameSend, ReceiverID: "bob", Content: "hi"})
	waitFor(t, func() bool { return store.count() == 1 })

	// Bob entra y confirma la recepción solo con el id del mensaje; el
	// emisor original se resuelve desde el registro persistido.
	bobConn := newFakeConn()
	bobDone := make(chan struct{}, 1)
	runConnection(g, bobConn, "bob", bobDone)
	bobConn.push(t, domain.Frame{Type: domain.FrameJoin})
	bobConn.push(t, domain.Frame{Type: domain.FrameDeliveryAck, MessageID: "m1"})

	close(bobConn.in)
	<-bobDone
	bobConn.waitClosed(t)
	close(aliceConn.in)
	<-aliceDone
	aliceConn.waitClosed(t)

	msg := store.messages["m1"]
	if msg == nil || !msg.Delivered {
		t.Fatalf("expected m1 delivered, got %+v", msg)
	}

	var delivered []string
	for _, ev := range aliceConn.events(t) {
		if ev.Type == domain.EventDelivered {
			delivered = append(delivered, ev.MessageID)
		}
	}
	if len(delivered) != 1 || delivered[0] != "m1" {
		t.Fatalf("expected alice to receive the delivered event for m1, got %v", delivered)
	}
}

func TestGatewaySeenAckFlow(t *testing.T) {
	g, _, _, store := newTestGateway()

	aliceConn := newFakeConn()
	aliceDone := make(chan struct{}, 1)
	runConnection(g, aliceConn, "alice", aliceDone)
	aliceConn.push(t, domain.Frame{Type: domain.FrameJoin})
	aliceConn.push(t, domain.Frame{Type: domain.FrameSend, ReceiverID: "bob", Content: "hi"})
	waitFor(t, func() bool { return store.count() == 1 })

	// Bob no estaba: el mensaje queda en sent. Luego entra y marca visto.
	bobConn := newFakeConn()
	bobDone := make(chan struct{}, 1)
	runConnection(g, bobConn, "bob", bobDone)
	bobConn.push(t, domain.Frame{Type: domain.FrameJoin})
	bobConn.push(t, domain.Frame{Type: domain.FrameSeenAck, CounterpartID: "alice"})

	close(bobConn.in)
	<-bobDone
	bobConn.waitClosed(t)
	close(aliceConn.in)
	<-aliceDone
	aliceConn.waitClosed(t)

	msg := store.messages["m1"]
	if msg == nil || !msg.Seen || !msg.Delivered {
		t.Fatalf("expected m1 seen with delivered coerced, got %+v", msg)
	}

	var seen []string
	for _, ev := range aliceConn.events(t) {
		if ev.Type == domain.EventSeen {
			seen = ev.MessageIDs
		}
	}
	if len(seen) != 1 || seen[0] != "m1" {
		t.Fatalf("expected alice to receive seen batch [m1], got %v", seen)
	}
}

func TestGatewayUnknownFrameType(t *testing.T) {
	g, _, _, _ := newTestGateway()
	conn := newFakeConn()
	done := make(chan struct{}, 1)
	runConnection(g, conn, "alice", done)

	conn.push(t, domain.Frame{Type: domain.FrameJoin})
	conn.push(t, domain.Frame{Type: "dance"})
	close(conn.in)
	<-done
	conn.waitClosed(t)

	var errs int
	for _, ev := range conn.events(t) {
		if ev.Type == domain.EventError {
			errs++
		}
	}
	if errs != 1 {
		t.Fatalf("expected one error event for unknown type, got %d", errs)
	}
}

func TestGatewayMalformedFrame(t *testing.T) {
	g, _, _, _ := newTestGateway()
	conn := newFakeConn()
	done := make(chan struct{}, 1)
	runConnection(g, conn, "alice", done)

	conn.in <- []byte("{not json")
	close(conn.in)
	<-done
	conn.waitClosed(t)

	events := conn.events(t)
	if len(events) != 1 || events[0].Type != domain.EventError {
		t.Fatalf("expected malformed frame error, got %+v", events)
	}
}

func TestGatewayReconnectReplacesSession(t *testing.T) {
	g, _, registry, _ := newTestGateway()

	first := newFakeConn()
	firstDone := make(chan struct{}, 1)
	runConnection(g, first, "alice", firstDone)
	first.push(t, domain.Frame{Type: domain.FrameJoin})
	waitFor(t, func() bool { return registry.IsOnline("alice") })

	second := newFakeConn()
	secondDone := make(chan struct{}, 1)
	runConnection(g, second, "alice", secondDone)
	second.push(t, domain.Frame{Type: domain.FrameJoin})

	// El join nuevo cierra la sesión anterior; su disconnect tardío no debe
	// desalojar la presencia de la nueva.
	first.waitClosed(t)
	close(first.in)
	<-firstDone

	if !registry.IsOnline("alice") {
		t.Fatalf("stale disconnect evicted the newer session")
	}

	close(second.in)
	<-secondDone
	second.waitClosed(t)
	if registry.IsOnline("alice") {
		t.Fatalf("expected alice offline after the active session closed")
	}
}
