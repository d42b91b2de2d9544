package ws

import (
	"log/slog"
	"sync"

	"newsroom/internal/constants"
)

type revokeRequest struct {
	userID string
	reason string
}

type dispatchRequest struct {
	userID    string
	eventType string
	data      any
}

type registerRequest struct {
	client *Client
	result chan bool
}

// Hub tracks live session-channel connections per user. All sends to a
// client's queue happen on the Run goroutine.
type Hub struct {
	clients map[string]map[*Client]struct{}

	register   chan registerRequest
	unregister chan *Client
	revoke     chan revokeRequest
	dispatch   chan dispatchRequest

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan registerRequest),
		unregister: make(chan *Client, 64),
		revoke:     make(chan revokeRequest, 64),
		dispatch:   make(chan dispatchRequest, 64),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case req := <-h.register:
			req.result <- h.handleRegister(req.client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case req := <-h.revoke:
			h.handleRevoke(req.userID, req.reason)

		case req := <-h.dispatch:
			h.handleDispatch(req)

		case <-h.shutdown:
			h.closeAll()
			return
		}
	}
}

// Shutdown tells every client the server is going away and stops Run.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
	<-h.done
}

// Register adds client to the hub and queues READY. It reports false when the
// hub is shutting down or the user is over the connection cap; over the cap
// the client gets INVALID_SESSION instead of READY.
func (h *Hub) Register(client *Client) bool {
	result := make(chan bool, 1)
	select {
	case h.register <- registerRequest{client: client, result: result}:
		return <-result
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// RevokeUser sends INVALID_SESSION to every connection of userID and closes them.
func (h *Hub) RevokeUser(userID, reason string) {
	select {
	case h.revoke <- revokeRequest{userID: userID, reason: reason}:
	case <-h.done:
	}
}

// RoleChanged dispatches ROLE_CHANGED to every connection of userID.
func (h *Hub) RoleChanged(userID, role string) {
	h.Dispatch(userID, EventRoleChanged, RoleChangedPayload{Role: role})
}

func (h *Hub) Dispatch(userID, eventType string, data any) {
	select {
	case h.dispatch <- dispatchRequest{userID: userID, eventType: eventType, data: data}:
	case <-h.done:
	}
}

// ConnectionCount returns the number of live connections for userID.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// TotalConnections returns the number of live connections across all users.
func (h *Hub) TotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, set := range h.clients {
		total += len(set)
	}
	return total
}

func (h *Hub) handleRegister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[client.userID]
	if len(set) >= constants.WSMaxConnectionsPerUser {
		slog.Warn("rejecting websocket connection over per-user cap", "component", "ws", "user_id", client.userID)
		h.trySend(client, &WSMessage{Op: OpInvalidSession, Data: InvalidSessionPayload{Reason: ReasonTooManySessions, Resumable: true}})
		return false
	}
	if set == nil {
		set = make(map[*Client]struct{})
		h.clients[client.userID] = set
	}
	set[client] = struct{}{}
	h.trySend(client, &WSMessage{Op: OpReady, Data: ReadyPayload{
		ProtocolVersion: ProtocolVersion,
		SessionID:       client.sessionID,
		UserID:          client.userID,
		Role:            client.role,
	}})

	slog.Debug("websocket client registered", "component", "ws", "user_id", client.userID, "session_id", client.sessionID)
	return true
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
	client.CloseSend()
}

func (h *Hub) handleRevoke(userID, reason string) {
	h.mu.Lock()
	set := h.clients[userID]
	delete(h.clients, userID)
	h.mu.Unlock()

	if len(set) == 0 {
		return
	}

	msg := &WSMessage{Op: OpInvalidSession, Data: InvalidSessionPayload{Reason: reason}}
	for client := range set {
		h.trySend(client, msg)
		client.CloseSend()
	}

	slog.Info("revoked websocket sessions", "component", "ws", "user_id", userID, "reason", reason, "connections", len(set))
}

func (h *Hub) handleDispatch(req dispatchRequest) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := &WSMessage{Op: OpDispatch, Type: req.eventType, Data: req.data}
	for client := range h.clients[req.userID] {
		h.trySend(client, msg)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := &WSMessage{Op: OpInvalidSession, Data: InvalidSessionPayload{Reason: ReasonShutdown, Resumable: true}}
	for userID, set := range h.clients {
		for client := range set {
			h.trySend(client, msg)
			client.CloseSend()
		}
		delete(h.clients, userID)
	}
}

// trySend queues msg without blocking; a full queue drops the frame.
func (h *Hub) trySend(client *Client, msg *WSMessage) {
	select {
	case client.send <- msg:
	default:
		slog.Debug("websocket send queue full, dropping frame", "component", "ws", "user_id", client.userID, "op", msg.Op)
	}
}
