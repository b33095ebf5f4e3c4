package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"renopilot/internal/logger"
)

// Manager tracks Server-Sent Event connections per user and pushes ingestion
// events to them: new messages, extracted offers, resolved actions.
type Manager struct {
	clients    map[string]map[chan []byte]bool // userID -> connection channels
	clientsMux sync.RWMutex

	logger *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(logger *logger.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		clients: make(map[string]map[chan []byte]bool),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddClient registers a new connection for a user and returns its channel.
func (m *Manager) AddClient(userID string) chan []byte {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()

	if m.clients[userID] == nil {
		m.clients[userID] = make(map[chan []byte]bool)
	}

	channel := make(chan []byte, 10)
	m.clients[userID][channel] = true

	m.logger.Info("Added SSE client for user:", userID, "total clients:", len(m.clients[userID]))
	return channel
}

// RemoveClient drops a connection and closes its channel.
func (m *Manager) RemoveClient(userID string, channel chan []byte) {
	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()

	if userClients, exists := m.clients[userID]; exists {
		delete(userClients, channel)
		close(channel)

		if len(userClients) == 0 {
			delete(m.clients, userID)
		}
	}
}

// BroadcastToUser sends a typed event to every connection of one user. A
// connection that cannot accept within the timeout is assumed gone.
func (m *Manager) BroadcastToUser(userID string, eventType string, data interface{}) {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()

	userClients, exists := m.clients[userID]
	if !exists {
		return
	}

	event := map[string]interface{}{
		"type": eventType,
		"data": data,
		"time": time.Now().Unix(),
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("Failed to marshal broadcast event:", err)
		return
	}

	for channel := range userClients {
		select {
		case channel <- jsonData:
		case <-time.After(5 * time.Second):
			m.logger.Warn("Timeout sending broadcast to user:", userID)
		}
	}
}

// HasUserConnection reports whether a user has any open connection.
func (m *Manager) HasUserConnection(userID string) bool {
	m.clientsMux.RLock()
	defer m.clientsMux.RUnlock()
	return len(m.clients[userID]) > 0
}

// Close shuts down the manager and every client channel.
func (m *Manager) Close() {
	m.cancel()

	m.clientsMux.Lock()
	defer m.clientsMux.Unlock()

	for userID, userClients := range m.clients {
		for channel := range userClients {
			close(channel)
		}
		delete(m.clients, userID)
	}
}
