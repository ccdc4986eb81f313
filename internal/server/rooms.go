package server

import (
	"github.com/charmbracelet/log"

	"github.com/lox/nothanks/internal/room"
	"github.com/lox/nothanks/protocol"
)

// roomHandler speaks the room protocol for one player connection.
type roomHandler struct {
	rooms    *room.Directory
	logger   *log.Logger
	room     *room.Room
	playerID string
}

func (h *roomHandler) handle(c *Connection, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeJoinRoom:
		var data protocol.JoinRoom
		if err := msg.Decode(&data); err != nil {
			c.sendError(protocol.CodeInvalidMessage, "Failed to parse join request")
			return
		}
		h.join(c, msg.RequestID, data)

	case protocol.TypeStartGame:
		if h.room == nil {
			c.sendError(protocol.CodeNotJoined, "Join a room before starting a game")
			return
		}
		if err := h.room.Start(h.playerID); err != nil {
			c.sendError(protocol.CodeRejected, err.Error())
		}

	case protocol.TypePlayerAction:
		var data protocol.PlayerAction
		if err := msg.Decode(&data); err != nil {
			c.sendError(protocol.CodeInvalidMessage, "Failed to parse action")
			return
		}
		if h.room == nil {
			c.sendError(protocol.CodeNotJoined, "Join a room first")
			return
		}
		if err := h.room.Act(h.playerID, c, data.Action); err != nil {
			h.logger.Debug("Action rejected", "room", h.room.ID(), "player", h.playerID, "error", err)
			c.sendError(protocol.CodeRejected, err.Error())
		}

	default:
		c.sendError(protocol.CodeUnknownType, "Unknown message type: "+msg.Type.String())
	}
}

func (h *roomHandler) join(c *Connection, requestID string, data protocol.JoinRoom) {
	r, playerID, state, err := h.rooms.Join(data.RoomID, data.Name, c)
	if err != nil {
		_ = c.Reply(requestID, protocol.JoinAck{Ack: protocol.Ack{Error: err.Error()}})
		return
	}
	if h.room != nil && (h.room != r || h.playerID != playerID) {
		h.rooms.Leave(h.room, h.playerID, c)
	}
	h.room, h.playerID = r, playerID

	_ = c.Reply(requestID, protocol.JoinAck{
		Ack:      protocol.Ack{OK: true},
		PlayerID: playerID,
		RoomID:   r.ID(),
		State:    &state,
	})
}

func (h *roomHandler) closed(c *Connection) {
	if h.room != nil {
		h.rooms.Leave(h.room, h.playerID, c)
	}
}
