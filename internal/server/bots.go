package server

import (
	"github.com/charmbracelet/log"

	"github.com/lox/nothanks/internal/arena"
	"github.com/lox/nothanks/protocol"
)

// botHandler speaks the arena protocol for one bot connection.
type botHandler struct {
	arena  *arena.Arena
	logger *log.Logger
	botID  string
}

func (h *botHandler) handle(c *Connection, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeRegisterBot:
		var data protocol.RegisterBot
		if err := msg.Decode(&data); err != nil {
			c.sendError(protocol.CodeInvalidMessage, "Failed to parse registration")
			return
		}
		h.register(c, msg.RequestID, data)

	case protocol.TypeEnqueue:
		if h.botID == "" {
			c.sendError(protocol.CodeNotJoined, "Register before queueing")
			return
		}
		h.arena.Enqueue(h.botID)

	case protocol.TypeBotAction:
		var data protocol.BotAction
		if err := msg.Decode(&data); err != nil {
			c.sendError(protocol.CodeInvalidMessage, "Failed to parse action")
			return
		}
		if h.botID == "" {
			c.sendError(protocol.CodeNotJoined, "Register before acting")
			return
		}
		if err := h.arena.Act(h.botID, data.MatchID, data.Action); err != nil {
			h.logger.Debug("Action rejected", "bot", h.botID, "action", data.Action, "error", err)
			c.sendError(protocol.CodeRejected, err.Error())
		}

	default:
		c.sendError(protocol.CodeUnknownType, "Unknown message type: "+msg.Type.String())
	}
}

func (h *botHandler) register(c *Connection, requestID string, data protocol.RegisterBot) {
	if h.botID != "" {
		_ = c.Reply(requestID, protocol.RegisterAck{Ack: protocol.Ack{Error: "already registered"}})
		return
	}

	profile, err := h.arena.Register(data.Name, c)
	if err != nil {
		_ = c.Reply(requestID, protocol.RegisterAck{Ack: protocol.Ack{Error: err.Error()}})
		_ = c.Close()
		return
	}
	h.botID = profile.ID

	stats := profile.Stats()
	_ = c.Reply(requestID, protocol.RegisterAck{
		Ack:    protocol.Ack{OK: true},
		BotID:  profile.ID,
		Rating: stats.Rating,
		Stats:  &stats,
	})
	_ = c.Send(protocol.TypeRegistered, protocol.Registered{
		BotID:  profile.ID,
		Rating: stats.Rating,
		Stats:  stats,
	})
	h.arena.Activate(profile.ID)
}

func (h *botHandler) closed(c *Connection) {
	if h.botID != "" {
		h.arena.Disconnect(h.botID, c)
	}
}
