package transport

import (
	"palace/internal/lobby"
	"palace/internal/protocol"
)

// dispatch routes one decoded inbound message to the registry and
// writes back whatever response (and, for a handful of message types,
// broadcast) it produces. msg is the concrete pointer type
// protocol.DecodeInbound returned for msgType.
func (c *Conn) dispatch(msgType string, msg interface{}) {
	switch msgType {
	case protocol.TypeNewLobby:
		c.handleNewLobby(msg.(*protocol.NewLobbyMessage))
	case protocol.TypeJoinLobby:
		c.handleJoinLobby(msg.(*protocol.JoinLobbyMessage))
	case protocol.TypeListLobbies:
		c.handleListLobbies(msg.(*protocol.ListLobbiesMessage))
	case protocol.TypeSpectateLobby:
		c.handleSpectateLobby(msg.(*protocol.SpectateLobbyMessage))
	case protocol.TypeStartGame:
		c.handleStartGame(msg.(*protocol.StartGameMessage))
	case protocol.TypeChooseFaceup:
		c.handleChooseFaceup(msg.(*protocol.ChooseFaceupMessage))
	case protocol.TypeMakePlay:
		c.handleMakePlay(msg.(*protocol.MakePlayMessage))
	case protocol.TypeReconnect:
		c.handleReconnect(msg.(*protocol.ReconnectMessage))
	case protocol.TypeRequestAi:
		c.handleRequestAi(msg.(*protocol.RequestAiMessage))
	case protocol.TypeKickPlayer:
		c.handleKickPlayer(msg.(*protocol.KickPlayerMessage))
	}
}

func (c *Conn) handleNewLobby(msg *protocol.NewLobbyMessage) {
	resp, apiErr := c.registry.NewLobby(*msg, c)
	if apiErr != "" {
		c.Send(protocol.Out(protocol.TypeNewLobbyResponse, apiErr))
		return
	}
	c.role = rolePlayer
	c.lobbyID = resp.LobbyId
	c.playerID = resp.PlayerId
	c.Send(protocol.Out(protocol.TypeNewLobbyResponse, resp))
}

func (c *Conn) handleJoinLobby(msg *protocol.JoinLobbyMessage) {
	resp, event, lobbyID, apiErr := c.registry.JoinLobby(*msg, c)
	if apiErr != "" {
		c.Send(protocol.Out(protocol.TypeJoinLobbyResponse, apiErr))
		return
	}
	c.role = rolePlayer
	c.lobbyID = lobbyID
	c.playerID = resp.PlayerId

	// Response first, then the broadcast to everyone else — the
	// joining connection must never learn about itself via the
	// broadcast path.
	c.Send(protocol.Out(protocol.TypeJoinLobbyResponse, resp))
	c.registry.Broadcast(lobbyID, protocol.Out(protocol.TypePlayerJoinEvent, event), c.playerID)
}

func (c *Conn) handleListLobbies(msg *protocol.ListLobbiesMessage) {
	c.Send(protocol.Out(protocol.TypeListLobbiesResponse, c.registry.List(msg.Page)))
}

func (c *Conn) handleSpectateLobby(msg *protocol.SpectateLobbyMessage) {
	resp, apiErr := c.registry.SpectateLobby(msg.LobbyId, c)
	if apiErr != "" {
		c.Send(protocol.Out(protocol.TypeSpectateLobbyResponse, apiErr))
		return
	}
	c.role = roleSpectator
	c.lobbyID = msg.LobbyId
	c.Send(protocol.Out(protocol.TypeSpectateLobbyResponse, resp))

	if l, ok := c.registry.Get(msg.LobbyId); ok && l.Game != nil {
		players := make(map[int]string, len(l.Players))
		for _, p := range l.Players {
			players[p.TurnNumber] = p.Name
		}
		c.Send(protocol.Out(protocol.TypeSpectateGameStartEvent, protocol.SpectateGameStartEvent{Players: players}))
		c.Send(protocol.Out(protocol.TypePublicGameStateEvent, l.Game.PublicView()))
	}
}

func (c *Conn) handleStartGame(msg *protocol.StartGameMessage) {
	apiErr := c.registry.StartGame(*msg)
	if apiErr != "" {
		c.Send(protocol.Out(protocol.TypeStartGameResponse, apiErr))
		return
	}
	c.Send(protocol.Out(protocol.TypeStartGameResponse, struct{}{}))
	c.registry.BroadcastGameStart(msg.LobbyId)
	c.registry.BroadcastGameState(msg.LobbyId)
}

func (c *Conn) handleChooseFaceup(msg *protocol.ChooseFaceupMessage) {
	if err := c.registry.ChooseFaceup(*msg); err != nil {
		c.Send(protocol.Out(protocol.TypeChooseFaceupResponse, errPayload(err)))
		return
	}
	c.Send(protocol.Out(protocol.TypeChooseFaceupResponse, struct{}{}))
	c.registry.SendHand(msg.LobbyId, msg.PlayerId)
	c.registry.BroadcastGameState(msg.LobbyId)
}

func (c *Conn) handleMakePlay(msg *protocol.MakePlayMessage) {
	_, err := c.registry.MakePlay(*msg)
	if err != nil {
		c.Send(protocol.Out(protocol.TypeMakePlayResponse, errPayload(err)))
		return
	}
	c.Send(protocol.Out(protocol.TypeMakePlayResponse, struct{}{}))
	c.registry.SendHand(msg.LobbyId, msg.PlayerId)
	c.registry.BroadcastGameState(msg.LobbyId)
}

func (c *Conn) handleReconnect(msg *protocol.ReconnectMessage) {
	resp, apiErr := c.registry.Reconnect(*msg, c)
	if apiErr != "" {
		c.Send(protocol.Out(protocol.TypeReconnectResponse, apiErr))
		return
	}
	c.role = rolePlayer
	c.lobbyID = msg.LobbyId
	c.playerID = msg.PlayerId
	c.Send(protocol.Out(protocol.TypeReconnectResponse, resp))

	if l, ok := c.registry.Get(msg.LobbyId); ok && l.Game != nil {
		c.Send(protocol.Out(protocol.TypePublicGameStateEvent, l.Game.PublicView()))
		c.registry.SendHand(msg.LobbyId, msg.PlayerId)
	}
}

func (c *Conn) handleRequestAi(msg *protocol.RequestAiMessage) {
	apiErr := c.registry.RequestAi(*msg)
	c.Send(protocol.Out(protocol.TypeRequestAiResponse, apiErr))
	if apiErr == "" {
		c.registry.Broadcast(msg.LobbyId, protocol.Out(protocol.TypePlayerJoinEvent, struct{}{}), protocol.PlayerId{})
	}
}

func (c *Conn) handleKickPlayer(msg *protocol.KickPlayerMessage) {
	apiErr := c.registry.KickPlayer(*msg)
	c.Send(protocol.Out(protocol.TypeKickPlayerResponse, apiErr))
	if apiErr == "" {
		c.registry.Broadcast(msg.LobbyId, protocol.Out(protocol.TypePlayerLeaveEvent, protocol.PlayerLeaveEvent{
			Slot: msg.Slot,
		}), protocol.PlayerId{})
	}
}

var _ lobby.Sender = (*Conn)(nil)
