package scheduler

import (
	"testing"
	"time"

	"palace/internal/lobby"
	"palace/internal/protocol"
)

type fakeSender struct {
	received []protocol.OutEnvelope
}

func (f *fakeSender) Send(env protocol.OutEnvelope) error {
	f.received = append(f.received, env)
	return nil
}

func newStartedGame(t *testing.T) (*lobby.Registry, protocol.LobbyId, protocol.PlayerId, *fakeSender) {
	t.Helper()
	r := lobby.NewRegistry()
	sender := &fakeSender{}
	newResp, apiErr := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 2, LobbyName: "t", PlayerName: "alice"}, sender)
	if apiErr != "" {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if _, _, _, apiErr := r.JoinLobby(protocol.JoinLobbyMessage{LobbyId: newResp.LobbyId, PlayerName: "bob"}, &fakeSender{}); apiErr != "" {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if apiErr := r.StartGame(protocol.StartGameMessage{LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId}); apiErr != "" {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	return r, newResp.LobbyId, newResp.PlayerId, sender
}

func TestEnforceTurnTimers_ConnectedSeatTimesOutAndMovesTheGameAlong(t *testing.T) {
	r, lobbyID, activePlayerID, sender := newStartedGame(t)
	l, _ := r.Get(lobbyID)
	l.TurnTimer = time.Second
	l.Game.LastTurnStart = time.Now().Add(-time.Hour)

	enforceTurnTimers(r)

	p := l.Players[activePlayerID]
	if p.Connection.Kind != lobby.ConnDisconnected || p.Connection.DisconnectedReason != lobby.DisconnectedTimedOut {
		t.Fatalf("expected the AFK seat to be marked timed out, got %+v", p.Connection)
	}
	if len(sender.received) == 0 {
		t.Fatalf("expected a LobbyCloseEvent(Afk) to be sent to the AFK player")
	}
	if l.Game.ActivePlayer == 0 {
		t.Fatalf("expected the turn-timer fallback move to advance the game off player 0")
	}
}

func TestEnforceTurnTimers_SkipsZeroTimerLobbies(t *testing.T) {
	r, lobbyID, activePlayerID, _ := newStartedGame(t)
	l, _ := r.Get(lobbyID)
	l.TurnTimer = 0
	l.Game.LastTurnStart = time.Now().Add(-time.Hour)

	enforceTurnTimers(r)

	p := l.Players[activePlayerID]
	if p.Connection.Kind != lobby.ConnConnected {
		t.Fatalf("expected a disabled turn timer to leave the seat untouched, got %+v", p.Connection)
	}
}

func TestEnforceTurnTimers_LeavesAiSeatsToTheAiLoop(t *testing.T) {
	r := lobby.NewRegistry()
	sender := &fakeSender{}
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 2, LobbyName: "t", PlayerName: "alice"}, sender)
	if apiErr := r.RequestAi(protocol.RequestAiMessage{LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId, NumAi: 1}); apiErr != "" {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if apiErr := r.StartGame(protocol.StartGameMessage{LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId}); apiErr != "" {
		t.Fatalf("unexpected error: %v", apiErr)
	}

	l, _ := r.Get(newResp.LobbyId)
	l.TurnTimer = time.Second
	l.Game.LastTurnStart = time.Now().Add(-time.Hour)
	l.Game.ActivePlayer = 1 // force the bot's seat to be active

	enforceTurnTimers(r)

	botID := l.PlayersByTurnNum[1]
	bot := l.Players[botID]
	if bot.Connection.Kind != lobby.ConnAi {
		t.Fatalf("expected the ai seat to be left alone for the ai loop, got %+v", bot.Connection)
	}
}
