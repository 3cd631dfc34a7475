package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/mcdev12/gavel/go/internal/apperr"
	"github.com/rs/zerolog/log"
)

// handleClientMessage runs one command sent by the client. Unknown or
// malformed commands are answered with an error event and otherwise ignored.
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendEvent(EventError, ErrorPayload{Message: "malformed message"})
		return
	}

	id, err := uuid.Parse(msg.Data)
	if err != nil {
		c.sendEvent(EventError, ErrorPayload{Command: msg.Event, Message: "data must be an id"})
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("user_id", c.UserID.String()).
		Str("command", msg.Event).
		Str("target_id", id.String()).
		Msg("received client command")

	cm := c.Manager
	ctx, cancel := context.WithTimeout(context.Background(), cm.config.CommandTimeout)
	defer cancel()

	switch msg.Event {
	case CommandJoinAuction:
		cm.JoinRoom(c, AuctionRoom(id))
		state, err := cm.state.JoinState(ctx, id)
		if err != nil {
			cm.LeaveRoom(c, AuctionRoom(id))
			c.replyError(msg.Event, err)
			return
		}
		c.sendEvent(EventAuctionState, state)

	case CommandLeaveAuction:
		cm.LeaveRoom(c, AuctionRoom(id))

	case CommandJoinItem:
		cm.JoinRoom(c, ItemRoom(id))
		bids, err := cm.state.ItemBids(ctx, id)
		if err != nil {
			cm.LeaveRoom(c, ItemRoom(id))
			c.replyError(msg.Event, err)
			return
		}
		c.sendEvent(EventItemBids, bids)

	case CommandLeaveItem:
		cm.LeaveRoom(c, ItemRoom(id))

	default:
		c.sendEvent(EventError, ErrorPayload{Command: msg.Event, Message: "unknown command"})
	}
}

func (c *Connection) replyError(command string, err error) {
	log.Warn().Err(err).Str("connection_id", c.ID).Str("command", command).Msg("client command failed")
	c.sendEvent(EventError, ErrorPayload{Command: command, Message: apperr.PublicMessage(err)})
}
