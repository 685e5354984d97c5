package ws

import (
	"sync"

	"go.uber.org/zap"

	"dm-chat/internal/domain"
)

// Hub enruta eventos a las sesiones conectadas. Mantiene a lo sumo una
// sesión por usuario: un join nuevo reemplaza al anterior.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*Client // userID -> sesión activa
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// Bind registra al cliente como la sesión activa del usuario y devuelve la
// sesión reemplazada, si la había, para que el llamador la cierre.
func (h *Hub) Bind(userID string, c *Client) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	replaced := h.clients[userID]
	h.clients[userID] = c
	if replaced != nil {
		h.logger.Info("session replaced", zap.String("user_id", userID))
	}
	return replaced
}

// Unbind retira al cliente solo si sigue siendo la sesión activa de su
// usuario; el unbind tardío de una sesión reemplazada no toca la nueva.
func (h *Hub) Unbind(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[c.userID]; ok && current == c {
		delete(h.clients, c.userID)
	}
}

// Publish entrega el evento a cada usuario destino con sesión activa,
// best-effort: sin sesión no hay cola ni reintento.
func (h *Hub) Publish(event domain.Event, userIDs ...string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	seen := make(map[string]bool, len(userIDs))
	for _, userID := range userIDs {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		if c, ok := h.clients[userID]; ok {
			c.enqueue(event)
		}
	}
}

// Broadcast entrega el evento a todas las sesiones conectadas.
func (h *Hub) Broadcast(event domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.enqueue(event)
	}
}
