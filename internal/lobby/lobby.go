// Package lobby implements the pre-game and in-game room manager: a
// process-wide registry of lobbies, each holding a roster of players
// (human, disconnected, or AI-controlled), optional spectators, and at
// most one in-progress game.
package lobby

import (
	"time"

	"palace/internal/ai"
	"palace/internal/domain"
	"palace/internal/protocol"
)

const (
	EmptyLobbyPruneThreshold = 30 * time.Second
	PlayerNameLimit          = 20
	LobbyNameLimit           = 20
	PasswordLimit            = 20
	DefaultTurnTimerSecs     = 50
)

// Sender delivers an outbound frame to one connection. Implemented by
// the transport layer; the lobby manager never touches a raw socket.
type Sender interface {
	Send(env protocol.OutEnvelope) error
}

// ConnectionKind distinguishes a live human connection from a
// disconnected placeholder or a bot.
type ConnectionKind int

const (
	ConnConnected ConnectionKind = iota
	ConnDisconnected
	ConnAi
)

// DisconnectedReason records why a human seat went quiet.
type DisconnectedReason int

const (
	DisconnectedLeft DisconnectedReason = iota
	DisconnectedKicked
	DisconnectedTimedOut
)

// Connection is a player's current transport state.
type Connection struct {
	Kind ConnectionKind

	Sender Sender // ConnConnected

	DisconnectedAt     time.Time          // ConnDisconnected
	DisconnectedReason DisconnectedReason // ConnDisconnected

	Strategy      ai.Strategy // ConnAi
	IsClandestine bool        // ConnAi
}

// Player is one seat in a Lobby.
type Player struct {
	Name       string
	Connection Connection
	TurnNumber int
}

func (p *Player) isRequestedAi() bool {
	return p.Connection.Kind == ConnAi && !p.Connection.IsClandestine
}

func (p *Player) isAi() bool {
	return p.Connection.Kind == ConnAi
}

// Lobby is one game room: a roster, optional spectators, and at most
// one game in progress.
type Lobby struct {
	Players           map[protocol.PlayerId]*Player
	PlayersByTurnNum   map[int]protocol.PlayerId
	Spectators         []Sender
	MaxPlayers         int
	Password           string
	Game               *domain.Game
	Owner              protocol.PlayerId
	Name               string
	CreationTime       time.Time
	TurnTimer          time.Duration
	GamesCompleted     uint64
}

// Display projects a Lobby into the read-only summary shown in a
// lobby list. Only requested AI seats (not clandestine fillers) count
// toward AiPlayers.
func (l *Lobby) Display(id protocol.LobbyId) protocol.LobbyDisplay {
	aiPlayers := 0
	for _, p := range l.Players {
		if p.isRequestedAi() {
			aiPlayers++
		}
	}
	owner := ""
	if p, ok := l.Players[l.Owner]; ok {
		owner = p.Name
	}
	return protocol.LobbyDisplay{
		LobbyId:        id,
		Name:           l.Name,
		Owner:          owner,
		NumPlayers:     len(l.Players),
		MaxPlayers:     l.MaxPlayers,
		AiPlayers:      aiPlayers,
		HasPassword:    l.Password != "",
		GameInProgress: l.Game != nil,
		AgeSecs:        int64(time.Since(l.CreationTime).Seconds()),
		CurSpectators:  len(l.Spectators),
		TurnTimer:      int(l.TurnTimer.Seconds()),
		GamesCompleted: l.GamesCompleted,
	}
}

func nextTurnNumber(byTurnNum map[int]protocol.PlayerId) int {
	n := 0
	for {
		if _, taken := byTurnNum[n]; !taken {
			return n
		}
		n++
	}
}

// addPlayer slots a new player into the lowest free turn-number seat.
func (l *Lobby) addPlayer(id protocol.PlayerId, p *Player) {
	p.TurnNumber = nextTurnNumber(l.PlayersByTurnNum)
	l.Players[id] = p
	l.PlayersByTurnNum[p.TurnNumber] = id
}

func (l *Lobby) removePlayer(id protocol.PlayerId) {
	if p, ok := l.Players[id]; ok {
		delete(l.PlayersByTurnNum, p.TurnNumber)
		delete(l.Players, id)
	}
}

// AddClandestineAi seats an unrequested filler bot under name using
// strategy, counted in Display only as a player, never as an AiPlayer.
func (l *Lobby) AddClandestineAi(name string, strategy ai.Strategy) {
	l.addPlayer(protocol.NewPlayerId(), &Player{
		Name: name,
		Connection: Connection{
			Kind:          ConnAi,
			Strategy:      strategy,
			IsClandestine: true,
		},
	})
}

// playerIDAtSeat looks up which player currently occupies turn number n.
func (l *Lobby) playerIDAtSeat(n int) (protocol.PlayerId, bool) {
	id, ok := l.PlayersByTurnNum[n]
	return id, ok
}

