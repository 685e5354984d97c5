package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dm-chat/internal/domain"
)

// Conn cubre lo que el gateway necesita de una conexión WebSocket; permite
// probar los pumps sin red.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client es una conexión viva ligada a una identidad autenticada. La sesión
// empieza anónima a efectos de presencia: hasta el frame join no participa
// del fan-out.
type Client struct {
	conn      Conn
	userID    string
	sessionID string
	joined    bool
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

const sendBuffer = 64

func NewClient(conn Conn, userID string) *Client {
	return &Client{
		conn:      conn,
		userID:    userID,
		sessionID: uuid.NewString(),
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
	}
}

// enqueue serializa y encola un evento sin bloquear: si el buffer del
// cliente está lleno el evento se descarta, el cliente resincroniza por
// historial al reconectar. El canal de salida nunca se cierra, así un
// publish concurrente con el shutdown no puede entrar en pánico.
func (c *Client) enqueue(event domain.Event) {
	select {
	case <-c.done:
		return
	default:
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// shutdown señala el fin de la sesión una sola vez; el write pump drena lo
// pendiente y cierra la conexión.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// WritePump drena el canal de salida hacia la conexión.
func (c *Client) WritePump() {
	defer c.conn.Close()
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			// Vacía lo ya encolado antes de cerrar.
			for {
				select {
				case data := <-c.send:
					if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
