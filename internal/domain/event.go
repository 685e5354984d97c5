package domain

// EventType etiqueta cada frame del protocolo WebSocket. El conjunto es
// cerrado: el gateway rechaza cualquier tipo fuera de esta lista.
type EventType string

// Cliente -> servidor.
const (
	FrameJoin        EventType = "join"
	FrameSend        EventType = "send"
	FrameDeliveryAck EventType = "delivery_ack"
	FrameSeenAck     EventType = "seen_ack"
	FrameTyping      EventType = "typing"
	FrameStopTyping  EventType = "stop_typing"
)

// Servidor -> cliente.
const (
	EventMessage       EventType = "message"
	EventPresence      EventType = "presence"
	EventDelivered     EventType = "delivered"
	EventSeen          EventType = "seen"
	EventTypingStarted EventType = "typing_started"
	EventTypingStopped EventType = "typing_stopped"
	EventError         EventType = "error"
)

// Frame es un comando entrante ya decodificado. Qué campos aplican depende
// del tipo; la identidad del emisor nunca viene del payload, se toma de la
// sesión autenticada.
type Frame struct {
	Type            EventType `json:"type"`
	ReceiverID      string    `json:"receiver_id,omitempty"`
	Content         string    `json:"content,omitempty"`
	FileURL         string    `json:"file_url,omitempty"`
	QuotedMessageID string    `json:"quoted_message_id,omitempty"`
	MessageID       string    `json:"message_id,omitempty"`
	CounterpartID   string    `json:"counterpart_id,omitempty"`
}

// Event es un evento saliente. Se construye solo con los constructores de
// abajo para que cada tipo lleve un payload fijo.
type Event struct {
	Type       EventType      `json:"type"`
	Message    *StoredMessage `json:"message,omitempty"`
	UserIDs    []string       `json:"user_ids,omitempty"`
	MessageID  string         `json:"message_id,omitempty"`
	MessageIDs []string       `json:"message_ids,omitempty"`
	SenderID   string         `json:"sender_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

func NewMessageEvent(msg StoredMessage) Event {
	return Event{Type: EventMessage, Message: &msg}
}

func NewPresenceEvent(userIDs []string) Event {
	return Event{Type: EventPresence, UserIDs: userIDs}
}

func NewDeliveredEvent(messageID string) Event {
	return Event{Type: EventDelivered, MessageID: messageID}
}

func NewSeenEvent(messageIDs []string) Event {
	return Event{Type: EventSeen, MessageIDs: messageIDs}
}

func NewTypingStartedEvent(senderID string) Event {
	return Event{Type: EventTypingStarted, SenderID: senderID}
}

func NewTypingStoppedEvent(senderID string) Event {
	return Event{Type: EventTypingStopped, SenderID: senderID}
}

func NewErrorEvent(reason string) Event {
	return Event{Type: EventError, Reason: reason}
}
