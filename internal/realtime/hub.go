package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

type SSEEvent string

const (
	SSEEventJobCreated           SSEEvent = "JobCreated"
	SSEEventJobProgress          SSEEvent = "JobProgress"
	SSEEventJobFailed            SSEEvent = "JobFailed"
	SSEEventJobDone              SSEEvent = "JobDone"
	SSEEventProjectMemberJoined  SSEEvent = "ProjectMemberJoined"
	SSEEventProjectMemberRemoved SSEEvent = "ProjectMemberRemoved"
	SSEEventProjectAssetAdded    SSEEvent = "ProjectAssetAdded"
	SSEEventSubscriptionChanged  SSEEvent = "SubscriptionChanged"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}

const outboundBuffer = 32

type SSEHub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	subscriptions map[string]map[*SSEClient]bool
	heartbeat     time.Duration
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		logger:        log.With("component", "SSEHub"),
		subscriptions: make(map[string]map[*SSEClient]bool),
		heartbeat:     15 * time.Second,
	}
}

func (hub *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	id := uuid.New()
	return &SSEClient{
		ID:       id,
		UserID:   userID,
		Channels: make(map[string]bool),
		Outbound: make(chan SSEMessage, outboundBuffer),
		done:     make(chan struct{}),
		Logger:   hub.logger.With("client_id", id),
	}
}

func (hub *SSEHub) AddChannel(client *SSEClient, channel string) {
	channel = strings.TrimSpace(channel)
	if client == nil || channel == "" {
		return
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()

	client.Channels[channel] = true
	clients, ok := hub.subscriptions[channel]
	if !ok {
		clients = make(map[*SSEClient]bool)
		hub.subscriptions[channel] = clients
	}
	clients[client] = true
	hub.logger.Debug("SSE client subscribed", "client_id", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveChannel(client *SSEClient, channel string) {
	channel = strings.TrimSpace(channel)
	if client == nil || channel == "" {
		return
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	delete(client.Channels, channel)
	hub.unsubscribeLocked(client, channel)
}

// RemoveChannelForAll drops every subscriber of channel, e.g. when a project
// is deleted.
func (hub *SSEHub) RemoveChannelForAll(channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for c := range hub.subscriptions[channel] {
		delete(c.Channels, channel)
	}
	delete(hub.subscriptions, channel)
}

// RemoveUserFromChannel unsubscribes every stream opened by userID.
func (hub *SSEHub) RemoveUserFromChannel(userID uuid.UUID, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for c := range hub.subscriptions[channel] {
		if c.UserID == userID {
			delete(c.Channels, channel)
			hub.unsubscribeLocked(c, channel)
		}
	}
}

func (hub *SSEHub) unsubscribeLocked(client *SSEClient, channel string) {
	if subs, ok := hub.subscriptions[channel]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(hub.subscriptions, channel)
		}
	}
}

// Broadcast never blocks: a client whose buffer is full misses the message.
func (hub *SSEHub) Broadcast(msg SSEMessage) {
	if msg.Channel == "" {
		return
	}
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for c := range hub.subscriptions[msg.Channel] {
		select {
		case c.Outbound <- msg:
		default:
			hub.logger.Warn("dropping SSE message; outbound buffer full", "client_id", c.ID, "event", msg.Event)
		}
	}
}

func (hub *SSEHub) SubscriberCount(channel string) int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.subscriptions[channel])
}

func (hub *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *SSEClient) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(hub.heartbeat)
	defer heartbeat.Stop()

	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			hub.logger.Debug("SSE client context done", "client_id", client.ID, "error", ctx.Err())
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-client.Outbound:
			if !ok {
				return
			}
			raw, err := json.Marshal(msg)
			if err != nil {
				hub.logger.Warn("failed to marshal SSE message", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, raw)
			flusher.Flush()
		}
	}
}

// CloseClient unsubscribes client and closes its outbound queue. Safe to call
// more than once.
func (hub *SSEHub) CloseClient(client *SSEClient) {
	hub.mu.Lock()
	select {
	case <-client.done:
		hub.mu.Unlock()
		return
	default:
	}
	close(client.done)
	for ch := range client.Channels {
		hub.unsubscribeLocked(client, ch)
	}
	client.Channels = make(map[string]bool)
	close(client.Outbound)
	hub.mu.Unlock()
}
