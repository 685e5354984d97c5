package domain

import "time"

// DeliveryState representa el ciclo de vida de entrega de un mensaje.
type DeliveryState int

const (
	StateSent DeliveryState = iota
	StateDelivered
	StateSeen
)

func (s DeliveryState) String() string {
	switch s {
	case StateDelivered:
		return "delivered"
	case StateSeen:
		return "seen"
	default:
		return "sent"
	}
}

// Message es el registro persistido de un mensaje directo entre dos usuarios.
// Los flags delivered/seen son los únicos campos mutables después de crearlo.
type Message struct {
	ID              string    `json:"id"`
	SenderID        string    `json:"sender_id"`
	ReceiverID      string    `json:"receiver_id"`
	Content         string    `json:"content,omitempty"`
	FileURL         string    `json:"file_url,omitempty"`
	QuotedMessageID string    `json:"quoted_message_id,omitempty"`
	Delivered       bool      `json:"delivered"`
	Seen            bool      `json:"seen"`
	CreatedAt       time.Time `json:"created_at"`
}

// State deriva el estado de entrega desde los flags persistidos.
func (m *Message) State() DeliveryState {
	if m.Seen {
		return StateSeen
	}
	if m.Delivered {
		return StateDelivered
	}
	return StateSent
}

// Advance aplica una transición de estado si el destino es estrictamente
// mayor que el estado actual. Marcar seen fuerza también delivered. Acks
// duplicados o fuera de orden no cambian nada y devuelven false.
func (m *Message) Advance(target DeliveryState) bool {
	if target <= m.State() {
		return false
	}
	if target >= StateDelivered {
		m.Delivered = true
	}
	if target == StateSeen {
		m.Seen = true
	}
	return true
}

// QuotedPreview es la resolución a un nivel del mensaje citado, solo para
// contexto de presentación. No se siguen cadenas de citas.
type QuotedPreview struct {
	ID             string `json:"id"`
	Content        string `json:"content,omitempty"`
	FileURL        string `json:"file_url,omitempty"`
	SenderUsername string `json:"sender_username"`
}

// StoredMessage es el registro canónico que viaja a los clientes: el mensaje
// persistido con el username del emisor y la cita resuelta.
type StoredMessage struct {
	Message
	SenderUsername string         `json:"sender_username"`
	QuotedMessage  *QuotedPreview `json:"quoted_message,omitempty"`
}
