package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubOrderingAndReconnect(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := ProjectChannel(uuid.New())

	clientA := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientA, channel)

	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventJobCreated, Data: map[string]any{"seq": 1}})
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventJobProgress, Data: map[string]any{"seq": 2}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventJobCreated {
		t.Fatalf("first event: want=%s got=%s", SSEEventJobCreated, got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != SSEEventJobProgress {
		t.Fatalf("second event: want=%s got=%s", SSEEventJobProgress, got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("clientA outbound should be closed after disconnect")
	}
	if n := hub.SubscriberCount(channel); n != 0 {
		t.Fatalf("closed client still subscribed: %d", n)
	}

	clientB := hub.NewSSEClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventJobDone})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != SSEEventJobDone {
		t.Fatalf("reconnect event: want=%s got=%s", SSEEventJobDone, got.Event)
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := UserChannel(uuid.New())
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, channel)

	for i := 0; i < outboundBuffer+5; i++ {
		hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventJobProgress, Data: i})
	}
	if got := len(client.Outbound); got != outboundBuffer {
		t.Fatalf("outbound len: want=%d got=%d", outboundBuffer, got)
	}
}

func TestSSEHubRemoveUserFromChannel(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	channel := ProjectChannel(uuid.New())
	leaving := uuid.New()

	c1 := hub.NewSSEClient(leaving)
	c2 := hub.NewSSEClient(leaving)
	stay := hub.NewSSEClient(uuid.New())
	for _, c := range []*SSEClient{c1, c2, stay} {
		hub.AddChannel(c, channel)
	}

	hub.RemoveUserFromChannel(leaving, channel)
	if n := hub.SubscriberCount(channel); n != 1 {
		t.Fatalf("subscribers after removal: %d", n)
	}
	hub.RemoveChannelForAll(channel)
	if n := hub.SubscriberCount(channel); n != 0 || stay.Channels[channel] {
		t.Fatalf("channel not cleared: n=%d", n)
	}
}

func TestSSEHubServeHTTPWritesEvents(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := NewSSEHub(mustTestLogger(t))
	userID := uuid.New()
	client := hub.NewSSEClient(userID)
	hub.AddChannel(client, UserChannel(userID))

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/sse/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.ServeHTTP(rec, req, client)
	}()

	hub.Broadcast(SSEMessage{Channel: UserChannel(userID), Event: SSEEventSubscriptionChanged, Data: map[string]any{"plan": "creator"}})
	deadline := time.Now().Add(time.Second)
	for len(client.Outbound) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done
	hub.CloseClient(client)

	body := rec.Body.String()
	if !strings.Contains(body, "event: SubscriptionChanged") || !strings.Contains(body, `"plan":"creator"`) {
		t.Fatalf("stream body missing event: %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}
}
