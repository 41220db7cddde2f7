package lobby

import (
	"testing"
	"time"

	"palace/internal/domain"
	"palace/internal/protocol"
)

// fakeSender collects every envelope sent to it, for assertions.
type fakeSender struct {
	received []protocol.OutEnvelope
}

func (f *fakeSender) Send(env protocol.OutEnvelope) error {
	f.received = append(f.received, env)
	return nil
}

func TestNewLobby_ValidatesInputs(t *testing.T) {
	r := NewRegistry()

	if _, apiErr := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 1, LobbyName: "x", PlayerName: "y"}, &fakeSender{}); apiErr != protocol.ErrLessThanTwoMaxPlayers {
		t.Fatalf("expected ErrLessThanTwoMaxPlayers, got %v", apiErr)
	}
	if _, apiErr := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "", PlayerName: "y"}, &fakeSender{}); apiErr != protocol.ErrEmptyLobbyName {
		t.Fatalf("expected ErrEmptyLobbyName, got %v", apiErr)
	}
	if _, apiErr := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "x", PlayerName: ""}, &fakeSender{}); apiErr != protocol.ErrEmptyPlayerName {
		t.Fatalf("expected ErrEmptyPlayerName, got %v", apiErr)
	}

	resp, apiErr := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "table", PlayerName: "alice"}, &fakeSender{})
	if apiErr != "" {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if resp.MaxPlayers != 4 {
		t.Fatalf("expected MaxPlayers 4, got %d", resp.MaxPlayers)
	}
	l, ok := r.Get(resp.LobbyId)
	if !ok {
		t.Fatalf("expected lobby to exist")
	}
	if l.TurnTimer != DefaultTurnTimerSecs*time.Second {
		t.Fatalf("expected default turn timer, got %v", l.TurnTimer)
	}
}

func TestJoinLobby_RejectsFullAndBadPassword(t *testing.T) {
	r := NewRegistry()
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 2, LobbyName: "t", PlayerName: "alice", Password: "secret"}, &fakeSender{})

	if _, _, _, apiErr := r.JoinLobby(protocol.JoinLobbyMessage{LobbyId: newResp.LobbyId, PlayerName: "bob", Password: "wrong"}, &fakeSender{}); apiErr != protocol.ErrBadPassword {
		t.Fatalf("expected ErrBadPassword, got %v", apiErr)
	}

	joinResp, event, _, apiErr := r.JoinLobby(protocol.JoinLobbyMessage{LobbyId: newResp.LobbyId, PlayerName: "bob", Password: "secret"}, &fakeSender{})
	if apiErr != "" {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if event.NewPlayerName != "bob" || event.Slot != 1 {
		t.Fatalf("unexpected join event: %+v", event)
	}
	if len(joinResp.LobbyPlayers) != 2 {
		t.Fatalf("expected 2 lobby players, got %d", len(joinResp.LobbyPlayers))
	}

	if _, _, _, apiErr := r.JoinLobby(protocol.JoinLobbyMessage{LobbyId: newResp.LobbyId, PlayerName: "carol", Password: "secret"}, &fakeSender{}); apiErr != protocol.ErrLobbyFull {
		t.Fatalf("expected ErrLobbyFull, got %v", apiErr)
	}
}

func TestStartGame_RequiresOwnerAndMinPlayers(t *testing.T) {
	r := NewRegistry()
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "t", PlayerName: "alice"}, &fakeSender{})

	if apiErr := r.StartGame(protocol.StartGameMessage{LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId}); apiErr != protocol.ErrLessThanTwoPlayers {
		t.Fatalf("expected ErrLessThanTwoPlayers, got %v", apiErr)
	}

	joinResp, _, _, _ := r.JoinLobby(protocol.JoinLobbyMessage{LobbyId: newResp.LobbyId, PlayerName: "bob"}, &fakeSender{})

	if apiErr := r.StartGame(protocol.StartGameMessage{LobbyId: newResp.LobbyId, PlayerId: joinResp.PlayerId}); apiErr != protocol.ErrNotLobbyOwner {
		t.Fatalf("expected ErrNotLobbyOwner, got %v", apiErr)
	}

	if apiErr := r.StartGame(protocol.StartGameMessage{LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId}); apiErr != "" {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	l, _ := r.Get(newResp.LobbyId)
	if l.Game == nil {
		t.Fatalf("expected a game to have started")
	}
	if apiErr := r.StartGame(protocol.StartGameMessage{LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId}); apiErr != protocol.ErrGameInProgress {
		t.Fatalf("expected ErrGameInProgress, got %v", apiErr)
	}
}

func TestChooseFaceup_EnforcesTurnOrderAndSurfacesRuleErrors(t *testing.T) {
	r := NewRegistry()
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 2, LobbyName: "t", PlayerName: "alice"}, &fakeSender{})
	joinResp, _, _, _ := r.JoinLobby(protocol.JoinLobbyMessage{LobbyId: newResp.LobbyId, PlayerName: "bob"}, &fakeSender{})
	r.StartGame(protocol.StartGameMessage{LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId})

	l, _ := r.Get(newResp.LobbyId)
	// Turn 0 is whoever created the lobby (alice); attempting the move
	// as bob (turn 1) must be rejected before the engine ever sees it.
	if err := r.ChooseFaceup(protocol.ChooseFaceupMessage{
		LobbyId: newResp.LobbyId, PlayerId: joinResp.PlayerId,
		CardOne: l.Game.Hands[1][0], CardTwo: l.Game.Hands[1][1], CardThree: l.Game.Hands[1][2],
	}); err != protocol.ErrNotYourTurn {
		t.Fatalf("expected ErrNotYourTurn, got %v", err)
	}

	// A duplicate card is a domain.RuleError, not a protocol.APIError.
	err := r.ChooseFaceup(protocol.ChooseFaceupMessage{
		LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId,
		CardOne: l.Game.Hands[0][0], CardTwo: l.Game.Hands[0][0], CardThree: l.Game.Hands[0][1],
	})
	if _, ok := err.(domain.RuleError); !ok {
		t.Fatalf("expected a domain.RuleError, got %T: %v", err, err)
	}

	if err := r.ChooseFaceup(protocol.ChooseFaceupMessage{
		LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId,
		CardOne: l.Game.Hands[0][0], CardTwo: l.Game.Hands[0][1], CardThree: l.Game.Hands[0][2],
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Game.ActivePlayer != 1 {
		t.Fatalf("expected turn to advance to player 1, got %d", l.Game.ActivePlayer)
	}
}

func TestKickPlayer_OwnerOnlyAndCannotKickOwner(t *testing.T) {
	r := NewRegistry()
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "t", PlayerName: "alice"}, &fakeSender{})
	joinResp, _, _, _ := r.JoinLobby(protocol.JoinLobbyMessage{LobbyId: newResp.LobbyId, PlayerName: "bob"}, &fakeSender{})

	if apiErr := r.KickPlayer(protocol.KickPlayerMessage{LobbyId: newResp.LobbyId, PlayerId: joinResp.PlayerId, Slot: 0}); apiErr != protocol.ErrNotLobbyOwner {
		t.Fatalf("expected ErrNotLobbyOwner, got %v", apiErr)
	}
	if apiErr := r.KickPlayer(protocol.KickPlayerMessage{LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId, Slot: 0}); apiErr != protocol.ErrCantKickLobbyOwner {
		t.Fatalf("expected ErrCantKickLobbyOwner, got %v", apiErr)
	}
	if apiErr := r.KickPlayer(protocol.KickPlayerMessage{LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId, Slot: 1}); apiErr != "" {
		t.Fatalf("unexpected error: %v", apiErr)
	}

	l, _ := r.Get(newResp.LobbyId)
	p := l.Players[joinResp.PlayerId]
	if p.Connection.Kind != ConnDisconnected || p.Connection.DisconnectedReason != DisconnectedKicked {
		t.Fatalf("expected bob to be marked kicked, got %+v", p.Connection)
	}

	if _, apiErr := r.Reconnect(protocol.ReconnectMessage{LobbyId: newResp.LobbyId, PlayerId: joinResp.PlayerId}, &fakeSender{}); apiErr != protocol.ErrPlayerKicked {
		t.Fatalf("expected ErrPlayerKicked, got %v", apiErr)
	}
}

func TestRequestAi_AddsSeatsUpToCapacity(t *testing.T) {
	r := NewRegistry()
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 2, LobbyName: "t", PlayerName: "alice"}, &fakeSender{})

	if apiErr := r.RequestAi(protocol.RequestAiMessage{LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId, NumAi: 2}); apiErr != protocol.ErrLobbyTooSmall {
		t.Fatalf("expected ErrLobbyTooSmall, got %v", apiErr)
	}
	if apiErr := r.RequestAi(protocol.RequestAiMessage{LobbyId: newResp.LobbyId, PlayerId: newResp.PlayerId, NumAi: 1}); apiErr != "" {
		t.Fatalf("unexpected error: %v", apiErr)
	}

	l, _ := r.Get(newResp.LobbyId)
	if len(l.Players) != 2 {
		t.Fatalf("expected 2 players after requesting 1 ai, got %d", len(l.Players))
	}
	display := l.Display(newResp.LobbyId)
	if display.AiPlayers != 1 {
		t.Fatalf("expected 1 requested ai counted in Display, got %d", display.AiPlayers)
	}
}

func TestDisconnect_OwnerLeavingClosesLobby(t *testing.T) {
	r := NewRegistry()
	ownerConn := &fakeSender{}
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "t", PlayerName: "alice"}, ownerConn)
	guestConn := &fakeSender{}
	r.JoinLobby(protocol.JoinLobbyMessage{LobbyId: newResp.LobbyId, PlayerName: "bob"}, guestConn)

	r.Disconnect(newResp.LobbyId, newResp.PlayerId)

	if _, ok := r.Get(newResp.LobbyId); ok {
		t.Fatalf("expected lobby to be closed once its owner disconnects")
	}
	if len(guestConn.received) == 0 {
		t.Fatalf("expected the remaining player to be notified of the lobby close")
	}
}

func TestDisconnect_NonOwnerMarksSeatDisconnected(t *testing.T) {
	r := NewRegistry()
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "t", PlayerName: "alice"}, &fakeSender{})
	joinResp, _, _, _ := r.JoinLobby(protocol.JoinLobbyMessage{LobbyId: newResp.LobbyId, PlayerName: "bob"}, &fakeSender{})

	r.Disconnect(newResp.LobbyId, joinResp.PlayerId)

	l, ok := r.Get(newResp.LobbyId)
	if !ok {
		t.Fatalf("expected lobby to remain open")
	}
	p := l.Players[joinResp.PlayerId]
	if p.Connection.Kind != ConnDisconnected || p.Connection.DisconnectedReason != DisconnectedLeft {
		t.Fatalf("expected bob to be marked disconnected-left, got %+v", p.Connection)
	}
}

func TestPruneEmpty_RespectsThresholdAndOccupancy(t *testing.T) {
	r := NewRegistry()
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "t", PlayerName: "alice"}, &fakeSender{})
	r.Disconnect(newResp.LobbyId, newResp.PlayerId) // owner leaving closes it immediately

	newResp2, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "t2", PlayerName: "carol"}, &fakeSender{})
	l, _ := r.Get(newResp2.LobbyId)
	disconnectedAt := time.Now()
	l.Players[l.Owner].Connection = Connection{Kind: ConnDisconnected, DisconnectedAt: disconnectedAt, DisconnectedReason: DisconnectedLeft}

	if pruned := r.PruneEmpty(disconnectedAt.Add(10*time.Second), 30*time.Second); len(pruned) != 0 {
		t.Fatalf("expected nothing pruned before the grace period, got %v", pruned)
	}
	pruned := r.PruneEmpty(disconnectedAt.Add(time.Minute), 30*time.Second)
	if len(pruned) != 1 || pruned[0] != newResp2.LobbyId {
		t.Fatalf("expected only the empty lobby pruned, got %v", pruned)
	}
}

func TestPruneEmpty_ClandestineAiKeepsLobbyAlive(t *testing.T) {
	r := NewRegistry()
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "t", PlayerName: "alice"}, &fakeSender{})
	l, _ := r.Get(newResp.LobbyId)
	disconnectedAt := time.Now()
	l.Players[l.Owner].Connection = Connection{Kind: ConnDisconnected, DisconnectedAt: disconnectedAt, DisconnectedReason: DisconnectedLeft}
	l.AddClandestineAi("filler", nil)

	pruned := r.PruneEmpty(disconnectedAt.Add(time.Minute), 30*time.Second)
	if len(pruned) != 0 {
		t.Fatalf("expected a lobby with a clandestine ai to survive pruning, got %v", pruned)
	}
	if _, ok := r.Get(newResp.LobbyId); !ok {
		t.Fatalf("expected lobby to still exist")
	}
}

func TestTimeoutPlayer_ConnectedSeatSendsAfkAndTransitions(t *testing.T) {
	r := NewRegistry()
	sender := &fakeSender{}
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "t", PlayerName: "alice"}, sender)

	r.TimeoutPlayer(newResp.LobbyId, newResp.PlayerId)

	l, _ := r.Get(newResp.LobbyId)
	p := l.Players[newResp.PlayerId]
	if p.Connection.Kind != ConnDisconnected || p.Connection.DisconnectedReason != DisconnectedTimedOut {
		t.Fatalf("expected the seat to be marked timed out, got %+v", p.Connection)
	}
	if len(sender.received) != 1 {
		t.Fatalf("expected exactly one LobbyCloseEvent(Afk) sent, got %d", len(sender.received))
	}
	if payload, ok := sender.received[0].Payload.(protocol.LobbyCloseReason); !ok || payload != protocol.LobbyCloseAfk {
		t.Fatalf("expected a LobbyCloseEvent(Afk), got %+v", sender.received[0])
	}
}

func TestTimeoutPlayer_ElevatesLeftToTimedOut(t *testing.T) {
	r := NewRegistry()
	newResp, _ := r.NewLobby(protocol.NewLobbyMessage{MaxPlayers: 4, LobbyName: "t", PlayerName: "alice"}, &fakeSender{})
	l, _ := r.Get(newResp.LobbyId)
	l.Players[newResp.PlayerId].Connection = Connection{Kind: ConnDisconnected, DisconnectedReason: DisconnectedLeft}

	r.TimeoutPlayer(newResp.LobbyId, newResp.PlayerId)

	p := l.Players[newResp.PlayerId]
	if p.Connection.Kind != ConnDisconnected || p.Connection.DisconnectedReason != DisconnectedTimedOut {
		t.Fatalf("expected Left to be elevated to TimedOut, got %+v", p.Connection)
	}
}
