package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"dm-chat/internal/domain"
	"dm-chat/internal/presence"
	"dm-chat/internal/repository"
)

// Publisher entrega un evento a las sesiones activas de los usuarios
// destino, best-effort: un usuario sin sesión simplemente no recibe el
// evento, el MessageStore es la fuente durable para resincronizar.
type Publisher interface {
	Publish(event domain.Event, userIDs ...string)
	Broadcast(event domain.Event)
}

// ChatService es el núcleo de entrega: persiste mensajes, hace avanzar su
// estado de entrega y decide qué sesiones ven cada evento. Siempre persiste
// primero y publica después, para que todo evento publicado corresponda a
// estado durable.
type ChatService struct {
	logger    *zap.Logger
	store     repository.MessageStore
	presence  *presence.Registry
	publisher Publisher
	limiter   SendRateLimiter
}

var (
	ErrEmptyMessage    = errors.New("empty message")
	ErrMissingReceiver = errors.New("missing receiver")
	ErrSendRateLimited = errors.New("send rate limited")
)

func NewChatService(
	logger *zap.Logger,
	store repository.MessageStore,
	registry *presence.Registry,
	publisher Publisher,
	limiter SendRateLimiter,
) *ChatService {
	return &ChatService{
		logger:    logger,
		store:     store,
		presence:  registry,
		publisher: publisher,
		limiter:   limiter,
	}
}

// Join marca al usuario como alcanzable y difunde el snapshot de presencia
// a todas las sesiones.
func (s *ChatService) Join(userID, sessionID string) {
	s.presence.MarkOnline(userID, sessionID)
	s.publisher.Broadcast(domain.NewPresenceEvent(s.presence.Snapshot()))
}

// Leave retira la presencia solo si sessionID sigue siendo la sesión activa
// del usuario; un disconnect tardío de una sesión reemplazada no difunde
// nada.
func (s *ChatService) Leave(userID, sessionID string) {
	if s.presence.MarkOffline(userID, sessionID) {
		s.publisher.Broadcast(domain.NewPresenceEvent(s.presence.Snapshot()))
	}
}

// Send persiste un mensaje nuevo y lo reparte al emisor y al receptor. Si el
// receptor está alcanzable el mensaje pasa a delivered y el emisor recibe el
// ack. No se valida que el receptor exista: un mensaje a una identidad
// desconocida queda persistido y sin entregar hasta que esa identidad haga
// join.
func (s *ChatService) Send(ctx context.Context, senderID, receiverID, content, fileURL, quotedID string) (domain.StoredMessage, error) {
	receiverID = strings.TrimSpace(receiverID)
	if receiverID == "" {
		return domain.StoredMessage{}, ErrMissingReceiver
	}
	content = strings.TrimSpace(content)
	if content == "" && fileURL == "" {
		return domain.StoredMessage{}, ErrEmptyMessage
	}
	if s.limiter != nil && !s.limiter.Allow(senderID) {
		return domain.StoredMessage{}, ErrSendRateLimited
	}

	stored, err := s.store.Append(ctx, domain.Message{
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Content:         content,
		FileURL:         fileURL,
		QuotedMessageID: strings.TrimSpace(quotedID),
	})
	if err != nil {
		return domain.StoredMessage{}, err
	}

	// El emisor también recibe el registro canónico para que su UI refleje
	// lo persistido.
	s.publisher.Publish(domain.NewMessageEvent(stored), stored.SenderID, stored.ReceiverID)

	if s.presence.IsOnline(receiverID) {
		changed, err := s.store.Transition(ctx, stored.ID, domain.StateDelivered)
		if err != nil {
			s.logger.Warn("mark delivered failed", zap.String("message_id", stored.ID), zap.Error(err))
			return stored, nil
		}
		if changed {
			s.publisher.Publish(domain.NewDeliveredEvent(stored.ID), stored.SenderID)
		}
	}

	return stored, nil
}

// AcknowledgeDelivered procesa el ack de recepción del receptor. El emisor
// original se resuelve desde el registro persistido, nunca del payload. Un
// id desconocido o un ack duplicado son no-ops silenciosos.
func (s *ChatService) AcknowledgeDelivered(ctx context.Context, messageID string) error {
	changed, err := s.store.Transition(ctx, messageID, domain.StateDelivered)
	if errors.Is(err, repository.ErrMessageNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	senderID, err := s.store.SenderOf(ctx, messageID)
	if err != nil {
		s.logger.Warn("resolve ack sender failed", zap.String("message_id", messageID), zap.Error(err))
		return nil
	}
	s.publisher.Publish(domain.NewDeliveredEvent(messageID), senderID)
	return nil
}

// AcknowledgeSeen marca como vistos todos los mensajes pendientes que
// counterpartID le envió a selfID y le notifica el lote. Sin pendientes no
// hay transición ni evento.
func (s *ChatService) AcknowledgeSeen(ctx context.Context, counterpartID, selfID string) error {
	ids, err := s.store.FindUnseenFrom(ctx, counterpartID, selfID)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	for _, id := range ids {
		if _, err := s.store.Transition(ctx, id, domain.StateSeen); err != nil {
			if errors.Is(err, repository.ErrMessageNotFound) {
				continue
			}
			return err
		}
	}

	s.publisher.Publish(domain.NewSeenEvent(ids), counterpartID)
	return nil
}

// Typing y StopTyping son fan-out puro, sin estado.
func (s *ChatService) Typing(senderID, receiverID string) {
	s.publisher.Publish(domain.NewTypingStartedEvent(senderID), receiverID)
}

func (s *ChatService) StopTyping(senderID, receiverID string) {
	s.publisher.Publish(domain.NewTypingStoppedEvent(senderID), receiverID)
}

// History devuelve la conversación completa entre dos usuarios, ordenada y
// con citas resueltas a un nivel.
func (s *ChatService) History(ctx context.Context, selfID, counterpartID string) ([]domain.StoredMessage, error) {
	return s.store.ListConversation(ctx, selfID, counterpartID)
}

// Purge borra todos los mensajes. Operación administrativa.
func (s *ChatService) Purge(ctx context.Context) error {
	if err := s.store.PurgeAll(ctx); err != nil {
		return err
	}
	s.logger.Warn("message store purged")
	return nil
}
