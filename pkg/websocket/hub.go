package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"medidispatch/pkg/logger"
)

// Room names used by the dispatch console feed.
const (
	RoomDispatch = "dispatch"
	RoomDrivers  = "drivers"
)

func CallRoom(entityID string) string   { return "entity_" + entityID }
func DriverRoom(driverID string) string { return "driver_" + driverID }
func UserRoom(userID string) string     { return "user_" + userID }

type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	rooms      map[string]map[*Client]bool
	mutex      sync.RWMutex
	logger     *logger.Logger
}

type Message struct {
	Type      string                 `json:"type"`
	RoomID    string                 `json:"room_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
		logger:     log.WithComponent("websocket_hub"),
	}
}

// Run processes registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// Publish queues a message for delivery. It never blocks the caller; when
// the broadcast buffer is full the message is dropped and logged.
func (h *Hub) Publish(msg Message) {
	if msg.Timestamp == 0 {
		msg.Timestamp = getCurrentTimestamp()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal websocket message")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.WithField("type", msg.Type).Warn("Websocket broadcast buffer full, message dropped")
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	h.logger.WithFields(map[string]interface{}{
		"user_id": client.UserID,
		"role":    client.Role,
	}).Info("Client registered")

	h.joinRoom(client, UserRoom(client.UserID))

	switch client.Role {
	case RoleOperator, RoleSupervisor:
		h.joinRoom(client, RoomDispatch)
	case RoleDriver:
		h.joinRoom(client, RoomDrivers)
		h.joinRoom(client, DriverRoom(client.UserID))
	}

	welcomeMsg := Message{
		Type:      "welcome",
		UserID:    client.UserID,
		Timestamp: getCurrentTimestamp(),
		Data: map[string]interface{}{
			"message": "Connected successfully",
		},
	}

	h.sendToClient(client, welcomeMsg)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.dropClient(client)
}

// dropClient must be called with the write lock held.
func (h *Hub) dropClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	for roomID, room := range h.rooms {
		if _, exists := room[client]; exists {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}

	h.logger.WithField("user_id", client.UserID).Info("Client unregistered")
}

func (h *Hub) closeAll() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		h.dropClient(client)
	}
}

func (h *Hub) broadcastMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		h.logger.WithError(err).Warn("Error unmarshaling message")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if msg.RoomID != "" {
		h.sendToRoom(msg.RoomID, message)
	} else {
		h.sendToAll(message)
	}
}

func (h *Hub) sendToAll(data []byte) {
	for client := range h.clients {
		h.deliver(client, data)
	}
}

func (h *Hub) sendToRoom(roomID string, data []byte) {
	room, exists := h.rooms[roomID]
	if !exists {
		return
	}
	for client := range room {
		h.deliver(client, data)
	}
}

func (h *Hub) sendToClient(client *Client, message Message) {
	data, _ := json.Marshal(message)
	h.deliver(client, data)
}

// deliver drops slow clients whose send buffer is full.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.dropClient(client)
	}
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (h *Hub) JoinRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; ok {
		h.joinRoom(client, roomID)
	}
}

func (h *Hub) LeaveRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if room, exists := h.rooms[roomID]; exists {
		delete(room, client)
		delete(client.rooms, roomID)

		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func getCurrentTimestamp() int64 {
	return time.Now().Unix()
}
