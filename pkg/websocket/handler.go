package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	hub *Hub
}

func NewHandler(hub *Hub) *Handler {
	return &Handler{
		hub: hub,
	}
}

// HandleWebSocket upgrades a console or driver connection. Identity comes
// from the user_id and role query parameters.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	role := c.DefaultQuery("role", RoleOperator)
	switch role {
	case RoleOperator, RoleSupervisor, RoleDriver:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, userID, role)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// SendEntityUpdate pushes a call or transport event to the dispatch room and
// to anyone following that entity.
func (h *Handler) SendEntityUpdate(entityID, updateType string, data map[string]interface{}) {
	h.hub.Publish(Message{Type: updateType, RoomID: RoomDispatch, Data: data})
	h.hub.Publish(Message{Type: updateType, RoomID: CallRoom(entityID), Data: data})
}

func (h *Handler) SendDriverNotification(driverID, notificationType string, data map[string]interface{}) {
	h.hub.Publish(Message{
		Type:   notificationType,
		RoomID: DriverRoom(driverID),
		UserID: driverID,
		Data:   data,
	})
}

func (h *Handler) GetHub() *Hub {
	return h.hub
}
