package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dm-chat/internal/domain"
)

// MessageStore es el registro durable y ordenado de mensajes entre pares de
// usuarios. Es la fuente de verdad para resincronizar clientes que vuelven.
type MessageStore interface {
	// Append asigna id y created_at, persiste con estado sent y devuelve el
	// registro resuelto. Hasta que Append devuelve nil el mensaje no es
	// visible para nadie.
	Append(ctx context.Context, msg domain.Message) (domain.StoredMessage, error)
	// Transition avanza el estado de entrega solo si target es estrictamente
	// mayor que el actual; devuelve si hubo cambio. Un id inexistente es
	// ErrMessageNotFound.
	Transition(ctx context.Context, messageID string, target domain.DeliveryState) (bool, error)
	// ListConversation devuelve todos los mensajes del par {userA,userB}
	// ordenados por created_at ascendente, con la cita resuelta a un nivel.
	ListConversation(ctx context.Context, userA, userB string) ([]domain.StoredMessage, error)
	// FindUnseenFrom devuelve los ids de mensajes sender -> receiver que aún
	// no están en seen.
	FindUnseenFrom(ctx context.Context, senderID, receiverID string) ([]string, error)
	// SenderOf devuelve el emisor original de un mensaje. Un id inexistente
	// es ErrMessageNotFound.
	SenderOf(ctx context.Context, messageID string) (string, error)
	// PurgeAll borra todos los mensajes. Operación administrativa.
	PurgeAll(ctx context.Context) error
}

var ErrMessageNotFound = errors.New("message not found")

// PgMessageStore implementa MessageStore sobre Postgres.
type PgMessageStore struct {
	pool *pgxpool.Pool
}

func NewPgMessageStore(pool *pgxpool.Pool) *PgMessageStore {
	return &PgMessageStore{pool: pool}
}

const storedMessageColumns = `
	m.id, m.sender_id, su.username, m.receiver_id, m.content, m.file_url,
	m.quoted_message_id, q.content, q.file_url, qu.username,
	m.delivered, m.seen, m.created_at
`

const storedMessageJoins = `
	FROM messages m
	JOIN users su ON su.id = m.sender_id
	LEFT JOIN messages q ON q.id = m.quoted_message_id
	LEFT JOIN users qu ON qu.id = q.sender_id
`

func (s *PgMessageStore) Append(ctx context.Context, msg domain.Message) (domain.StoredMessage, error) {
	const query = `
		INSERT INTO messages (id, sender_id, receiver_id, content, file_url,
			quoted_message_id, delivered, seen, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, false, $7)
	`

	msg.ID = uuid.NewString()
	msg.CreatedAt = time.Now().UTC()
	msg.Delivered = false
	msg.Seen = false

	var quotedID any
	if msg.QuotedMessageID != "" {
		quotedID = msg.QuotedMessageID
	}

	_, err := s.pool.Exec(ctx, query,
		msg.ID,
		msg.SenderID,
		msg.ReceiverID,
		msg.Content,
		msg.FileURL,
		quotedID,
		msg.CreatedAt,
	)
	if err != nil {
		return domain.StoredMessage{}, fmt.Errorf("append message: %w", err)
	}

	return s.getStored(ctx, msg.ID)
}

func (s *PgMessageStore) Transition(ctx context.Context, messageID string, target domain.DeliveryState) (bool, error) {
	// Un solo UPDATE condicionado: los flags solo pueden pasar a true, así la
	// transición es atómica y monótona aunque lleguen acks concurrentes.
	const query = `
		UPDATE messages
		SET delivered = delivered OR $2,
		    seen = seen OR $3
		WHERE id = $1
		  AND (($2 AND NOT delivered) OR ($3 AND NOT seen))
	`

	wantDelivered := target >= domain.StateDelivered
	wantSeen := target == domain.StateSeen
	if !wantDelivered && !wantSeen {
		return false, nil
	}

	tag, err := s.pool.Exec(ctx, query, messageID, wantDelivered, wantSeen)
	if err != nil {
		return false, fmt.Errorf("transition message: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	// Cero filas: o el mensaje ya está en (o más allá de) target, o no existe.
	const existsQuery = `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1)`
	var exists bool
	if err := s.pool.QueryRow(ctx, existsQuery, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("transition message: %w", err)
	}
	if !exists {
		return false, ErrMessageNotFound
	}
	return false, nil
}

func (s *PgMessageStore) ListConversation(ctx context.Context, userA, userB string) ([]domain.StoredMessage, error) {
	query := `SELECT ` + storedMessageColumns + storedMessageJoins + `
		WHERE (m.sender_id = $1 AND m.receiver_id = $2)
		   OR (m.sender_id = $2 AND m.receiver_id = $1)
		ORDER BY m.created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()

	var messages []domain.StoredMessage
	for rows.Next() {
		msg, err := scanStored(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *PgMessageStore) FindUnseenFrom(ctx context.Context, senderID, receiverID string) ([]string, error) {
	const query = `
		SELECT id
		FROM messages
		WHERE sender_id = $1 AND receiver_id = $2 AND NOT seen
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("find unseen: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PgMessageStore) SenderOf(ctx context.Context, messageID string) (string, error) {
	const query = `SELECT sender_id FROM messages WHERE id = $1`
	var senderID string
	err := s.pool.QueryRow(ctx, query, messageID).Scan(&senderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrMessageNotFound
	}
	return senderID, err
}

func (s *PgMessageStore) PurgeAll(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM messages`)
	return err
}

func (s *PgMessageStore) getStored(ctx context.Context, messageID string) (domain.StoredMessage, error) {
	query := `SELECT ` + storedMessageColumns + storedMessageJoins + `
		WHERE m.id = $1
	`
	row := s.pool.QueryRow(ctx, query, messageID)
	msg, err := scanStored(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StoredMessage{}, ErrMessageNotFound
	}
	return msg, err
}

func scanStored(row pgx.Row) (domain.StoredMessage, error) {
	var (
		msg            domain.StoredMessage
		quotedID       *string
		quotedContent  *string
		quotedFileURL  *string
		quotedUsername *string
	)
	err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.SenderUsername,
		&msg.ReceiverID,
		&msg.Content,
		&msg.FileURL,
		&quotedID,
		&quotedContent,
		&quotedFileURL,
		&quotedUsername,
		&msg.Delivered,
		&msg.Seen,
		&msg.CreatedAt,
	)
	if err != nil {
		return domain.StoredMessage{}, err
	}
	if quotedID != nil {
		msg.QuotedMessageID = *quotedID
		preview := &domain.QuotedPreview{ID: *quotedID}
		if quotedContent != nil {
			preview.Content = *quotedContent
		}
		if quotedFileURL != nil {
			preview.FileURL = *quotedFileURL
		}
		if quotedUsername != nil {
			preview.SenderUsername = *quotedUsername
		}
		msg.QuotedMessage = preview
	}
	return msg, nil
}
