// Package realtime implements C8: the duplex WebSocket channel that hands
// off refresh/access tokens on connect and fans out EventToClient events
// thereafter (SPEC_FULL.md §4.8). Adapted from the teacher's
// internal/websocket/{hub.go,client.go} Hub/Client pair, generalized from a
// social-network event set to the dating spec's event union.
package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jutuon/afrodite-backend-sub001/internal/observability"
)

// Authenticator is the subset of C1 the realtime layer needs: validating a
// refresh token and minting the next (refresh, access) pair, plus binding
// the resulting channel handle to the account.
type Authenticator interface {
	RefreshForChannel(ctx context.Context, refreshToken string) (accessToken, nextRefreshToken string, internalID int64, err error)
	BindChannel(ctx context.Context, accessToken, handle string) error
}

// Hub owns every live channel, keyed by its opaque handle, and the
// per-account index used for direct delivery (SPEC_FULL.md §4.9's
// in-process fast path).
type Hub struct {
	mu         sync.RWMutex
	byHandle   map[string]*Client
	byAccount  map[int64]*Client
	auth       Authenticator
	bootID     string
}

func NewHub(auth Authenticator, bootID string) *Hub {
	return &Hub{
		byHandle:  make(map[string]*Client),
		byAccount: make(map[int64]*Client),
		auth:      auth,
		bootID:    bootID,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byHandle[c.handle] = c
	h.byAccount[int64(c.accountID)] = c
	observability.RecordChannelBound()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.byHandle[c.handle]; ok && existing == c {
		delete(h.byHandle, c.handle)
	}
	if existing, ok := h.byAccount[int64(c.accountID)]; ok && existing == c {
		delete(h.byAccount, int64(c.accountID))
	}
	observability.RecordChannelUnbound()
}

// CloseChannel implements identity.ChannelCloser: forcibly closes a channel
// by handle with the given close code/reason (session-taken-over, banned,
// logout, restarting).
func (h *Hub) CloseChannel(handle, code, reason string) {
	h.mu.RLock()
	c, ok := h.byHandle[handle]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.closeWithCode(code, reason)
}

// DeliverLocal enqueues an event for account's live channel if one exists
// on this process. Returns false if no local channel is bound (the caller,
// C9, then falls back to cross-instance fan-out).
func (h *Hub) DeliverLocal(account int64, event EventToClient) bool {
	h.mu.RLock()
	c, ok := h.byAccount[account]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	return c.enqueue(event)
}

// Broadcast enqueues event on every live channel bound to this instance,
// used for account-agnostic fan-out (news publication) rather than the
// single-account DeliverLocal path.
func (h *Hub) Broadcast(event EventToClient) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.byHandle))
	for _, c := range h.byHandle {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.enqueue(event)
	}
}

// Shutdown closes every live channel with code "restarting" (SPEC_FULL.md
// §5). Events still waiting in a channel's send queue are not flushed first.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.byHandle))
	for _, c := range h.byHandle {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.closeWithCode("restarting", "server shutting down")
	}
	slog.Info("realtime hub drained", "channels", len(clients))
}

func (h *Hub) LiveChannelCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byHandle)
}
