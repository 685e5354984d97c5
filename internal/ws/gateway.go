package ws

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"dm-chat/internal/domain"
	"dm-chat/internal/service"
)

// Gateway liga cada conexión a su identidad, gobierna su ciclo de vida y
// despacha el vocabulario cerrado de frames hacia el núcleo. La identidad
// del emisor siempre sale de la sesión autenticada, nunca del payload.
type Gateway struct {
	logger *zap.Logger
	chat   *service.ChatService
	hub    *Hub
}

func NewGateway(logger *zap.Logger, chat *service.ChatService, hub *Hub) *Gateway {
	return &Gateway{logger: logger, chat: chat, hub: hub}
}

// HandleConnection atiende la conexión hasta que se corta. Arranca el write
// pump y consume frames en la goroutine del llamador.
func (g *Gateway) HandleConnection(ctx context.Context, conn Conn, userID string) {
	client := NewClient(conn, userID)
	go client.WritePump()
	g.readPump(ctx, client)
	g.disconnect(client)
}

func (g *Gateway) readPump(ctx context.Context, c *Client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame domain.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(domain.NewErrorEvent("malformed frame"))
			continue
		}
		g.handleFrame(ctx, c, frame)
	}
}

// handleFrame es el único punto de despacho del protocolo.
func (g *Gateway) handleFrame(ctx context.Context, c *Client, frame domain.Frame) {
	if frame.Type == domain.FrameJoin {
		g.handleJoin(c)
		return
	}

	// Todo lo demás exige una sesión con join hecho. Violación de protocolo:
	// se rechaza la operación, la conexión sigue abierta.
	if !c.joined {
		c.enqueue(domain.NewErrorEvent("join required"))
		return
	}

	switch frame.Type {
	case domain.FrameSend:
		g.handleSend(ctx, c, frame)

	case domain.FrameDeliveryAck:
		if err := g.chat.AcknowledgeDelivered(ctx, frame.MessageID); err != nil {
			g.logger.Warn("delivery ack failed", zap.String("message_id", frame.MessageID), zap.Error(err))
		}

	case domain.FrameSeenAck:
		if err := g.chat.AcknowledgeSeen(ctx, frame.CounterpartID, c.userID); err != nil {
			g.logger.Warn("seen ack failed", zap.String("counterpart_id", frame.CounterpartID), zap.Error(err))
		}

	case domain.FrameTyping:
		g.chat.Typing(c.userID, frame.ReceiverID)

	case domain.FrameStopTyping:
		g.chat.StopTyping(c.userID, frame.ReceiverID)

	default:
		c.enqueue(domain.NewErrorEvent("unknown event type"))
	}
}

func (g *Gateway) handleJoin(c *Client) {
	if c.joined {
		return
	}
	c.joined = true

	// Gana el último join: la sesión previa del mismo usuario se cierra.
	if replaced := g.hub.Bind(c.userID, c); replaced != nil {
		replaced.shutdown()
	}
	g.chat.Join(c.userID, c.sessionID)
	g.logger.Info("session joined", zap.String("user_id", c.userID))
}

func (g *Gateway) handleSend(ctx context.Context, c *Client, frame domain.Frame) {
	_, err := g.chat.Send(ctx, c.userID, frame.ReceiverID, frame.Content, frame.FileURL, frame.QuotedMessageID)
	switch {
	case err == nil:
	case errors.Is(err, service.ErrMissingReceiver):
		c.enqueue(domain.NewErrorEvent("missing receiver"))
	case errors.Is(err, service.ErrEmptyMessage):
		c.enqueue(domain.NewErrorEvent("empty message"))
	case errors.Is(err, service.ErrSendRateLimited):
		c.enqueue(domain.NewErrorEvent("too many messages"))
	default:
		// Fallo de persistencia: se reporta solo al iniciador, no hubo
		// fan-out de un mensaje no durable.
		g.logger.Error("send failed", zap.String("user_id", c.userID), zap.Error(err))
		c.enqueue(domain.NewErrorEvent("could not send message"))
	}
}

func (g *Gateway) disconnect(c *Client) {
	g.hub.Unbind(c)
	if c.joined {
		g.chat.Leave(c.userID, c.sessionID)
	}
	c.shutdown()
	g.logger.Info("session closed", zap.String("user_id", c.userID))
}
