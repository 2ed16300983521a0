package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"

	"github.com/npezzotti/campus-connect/internal/database"
	"github.com/npezzotti/campus-connect/internal/stats"
	"github.com/npezzotti/campus-connect/internal/types"
)

const (
	DefaultHistoryCount = 50

	metricConnectedClients = "connected_clients"
	metricMessagesSent     = "messages_sent_total"
)

var (
	ErrUnauthenticated = errors.New("connection has no authenticated identity")
	ErrEmptyMessage    = errors.New("message content is empty")
	ErrHubClosed       = errors.New("hub is shut down")
	ErrNotOpen         = errors.New("connection is not open")
)

// HistoryCache is a bounded copy of the newest chat messages.
type HistoryCache interface {
	Push(ctx context.Context, msg types.ChatMessage) error
	Recent(ctx context.Context, n int) ([]types.ChatMessage, bool, error)
	Warm(ctx context.Context, msgs []types.ChatMessage) error
}

// Hub tracks live connections and delivers every sent chat message to all
// of them. Messages are persisted before anyone sees them.
type Hub struct {
	log       *log.Logger
	store     database.ChatMessageRepository
	cache     HistoryCache
	stats     stats.StatsProvider
	cacheSize int

	clients     map[*Client]struct{}
	clientsLock sync.RWMutex
	closed      bool
	drained     chan struct{}
	drainOnce   sync.Once

	// fanoutLock keeps the broadcast order identical for every client.
	fanoutLock sync.Mutex
}

// NewHub creates a hub. cache may be nil, in which case history is always
// read from the store.
func NewHub(logger *log.Logger, store database.ChatMessageRepository, cache HistoryCache, su stats.StatsProvider, cacheSize int) *Hub {
	su.RegisterMetric(metricConnectedClients)
	su.RegisterMetric(metricMessagesSent)

	return &Hub{
		log:       logger,
		store:     store,
		cache:     cache,
		stats:     su,
		cacheSize: cacheSize,
		clients:   make(map[*Client]struct{}),
		drained:   make(chan struct{}),
	}
}

func (h *Hub) Register(c *Client) error {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	h.clients[c] = struct{}{}
	h.stats.Incr(metricConnectedClients)
	h.log.Printf("registered connection %s for %q", c.id, c.identity.Username)
	return nil
}

// Unregister removes c from the live set and stops it. Calling it more
// than once is harmless.
func (h *Hub) Unregister(c *Client) {
	h.clientsLock.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.stats.Decr(metricConnectedClients)
		h.log.Printf("unregistered connection %s for %q", c.id, c.identity.Username)
	}
	empty := len(h.clients) == 0
	closed := h.closed
	h.clientsLock.Unlock()

	c.stopClient()

	if closed && empty {
		h.drainOnce.Do(func() { close(h.drained) })
	}
}

func (h *Hub) snapshot() []*Client {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// Broadcast queues msg for every open client. A client whose send buffer is
// full is evicted rather than blocking the others.
func (h *Hub) Broadcast(msg *ServerMessage) {
	for _, c := range h.snapshot() {
		if !c.queueMessage(msg) {
			h.log.Printf("evicting slow connection %s for %q", c.id, c.identity.Username)
			h.Unregister(c)
		}
	}
}

func (h *Hub) isOpen(c *Client) bool {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()

	_, ok := h.clients[c]
	return ok && !h.closed
}

// SendMessage persists content as a message from c and then delivers it to
// every open client. c must be registered. Nothing is delivered when
// persistence fails.
func (h *Hub) SendMessage(ctx context.Context, c *Client, content string) (types.ChatMessage, error) {
	if c == nil || c.identity.UserId <= 0 {
		return types.ChatMessage{}, ErrUnauthenticated
	}
	if strings.TrimSpace(content) == "" {
		return types.ChatMessage{}, ErrEmptyMessage
	}
	if !h.isOpen(c) {
		return types.ChatMessage{}, ErrNotOpen
	}

	saved, err := h.store.CreateChatMessage(ctx, database.CreateChatMessageParams{
		UserId:  c.identity.UserId,
		Content: content,
		SentAt:  Now(),
	})
	if err != nil {
		return types.ChatMessage{}, fmt.Errorf("persist message: %w", err)
	}

	msg := types.ChatMessage{
		Id:       saved.Id,
		Content:  saved.Content,
		SentAt:   saved.SentAt,
		Username: c.identity.Username,
	}

	h.fanoutLock.Lock()
	defer h.fanoutLock.Unlock()

	if h.cache != nil {
		if err := h.cache.Push(ctx, msg); err != nil {
			h.log.Printf("history cache: %v", err)
		}
	}
	h.Broadcast(receiveMessage(msg))
	h.stats.Incr(metricMessagesSent)

	return msg, nil
}

// RecentMessages returns the newest limit messages, oldest first. A
// non-positive limit means DefaultHistoryCount.
func (h *Hub) RecentMessages(ctx context.Context, limit int) ([]types.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryCount
	}

	if h.cache != nil && limit <= h.cacheSize {
		msgs, ok, err := h.cache.Recent(ctx, limit)
		if err != nil {
			h.log.Printf("history cache: %v", err)
		} else if ok {
			return msgs, nil
		}
	}

	return h.loadRecent(ctx, limit)
}

func (h *Hub) loadRecent(ctx context.Context, limit int) ([]types.ChatMessage, error) {
	rows, err := h.store.GetRecentChatMessages(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}

	msgs := make([]types.ChatMessage, 0, len(rows))
	for _, r := range rows {
		msgs = append(msgs, types.ChatMessage{
			Id:       r.Id,
			Content:  r.Content,
			SentAt:   r.SentAt,
			Username: r.Username,
		})
	}
	slices.Reverse(msgs)

	return msgs, nil
}

// WarmHistory fills the history cache from the store.
func (h *Hub) WarmHistory(ctx context.Context) error {
	if h.cache == nil || h.cacheSize <= 0 {
		return nil
	}

	h.fanoutLock.Lock()
	defer h.fanoutLock.Unlock()

	msgs, err := h.loadRecent(ctx, h.cacheSize)
	if err != nil {
		return err
	}

	if err := h.cache.Warm(ctx, msgs); err != nil {
		return fmt.Errorf("warm history cache: %w", err)
	}

	h.log.Printf("history cache warmed with %d messages", len(msgs))
	return nil
}

// Shutdown stops accepting connections, closes every open client and
// waits for the live set to drain.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Println("shutting down hub")

	h.clientsLock.Lock()
	h.closed = true
	empty := len(h.clients) == 0
	h.clientsLock.Unlock()

	if empty {
		h.drainOnce.Do(func() { close(h.drained) })
	}

	for _, c := range h.snapshot() {
		h.Unregister(c)
	}

	select {
	case <-h.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) ClientCount() int {
	h.clientsLock.RLock()
	defer h.clientsLock.RUnlock()
	return len(h.clients)
}
