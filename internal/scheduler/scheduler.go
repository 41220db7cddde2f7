// Package scheduler runs the background goroutines that animate a
// running server: AI turns, turn-timer enforcement, empty-lobby
// pruning, and clandestine-AI backfill, each on its own tick.
package scheduler

import (
	"context"
	"math/rand"
	"time"

	"palace/internal/ai"
	"palace/internal/domain"
	"palace/internal/lobby"
	"palace/internal/logging"
	"palace/internal/protocol"
)

const (
	aiTickInterval        = 100 * time.Millisecond
	turnTimerTickInterval = 100 * time.Millisecond
	pruneTickInterval     = 30 * time.Second

	clandestineMinInterval = 100 * time.Millisecond
	clandestineMaxInterval = 10 * time.Second
)

// Run starts every background loop and blocks until ctx is canceled.
// pruneThreshold is how long an empty lobby may sit idle before
// pruneLoop removes it; zero falls back to lobby.EmptyLobbyPruneThreshold.
func Run(ctx context.Context, registry *lobby.Registry, pruneThreshold time.Duration) {
	if pruneThreshold <= 0 {
		pruneThreshold = lobby.EmptyLobbyPruneThreshold
	}
	go aiLoop(ctx, registry)
	go turnTimerLoop(ctx, registry)
	go pruneLoop(ctx, registry, pruneThreshold)
	go clandestineLoop(ctx, registry)
	<-ctx.Done()
}

// aiLoop lets every AI-controlled seat whose turn it is act once per
// tick, mirroring a human's single-move-per-message cadence.
func aiLoop(ctx context.Context, registry *lobby.Registry) {
	ticker := time.NewTicker(aiTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			playAiTurns(registry)
		}
	}
}

func playAiTurns(registry *lobby.Registry) {
	var ready []protocol.LobbyId
	registry.ForEachLobby(func(id protocol.LobbyId, l *lobby.Lobby) {
		if l.Game == nil {
			return
		}
		ready = append(ready, id)
	})

	for _, id := range ready {
		l, ok := registry.Get(id)
		if !ok || l.Game == nil {
			continue
		}
		active, ok := l.PlayersByTurnNum[l.Game.ActivePlayer]
		if !ok {
			continue
		}
		p := l.Players[active]
		if p.Connection.Kind != lobby.ConnAi {
			continue
		}
		takeAiTurn(registry, id, active, p)
	}
}

func takeAiTurn(registry *lobby.Registry, lobbyID protocol.LobbyId, playerID protocol.PlayerId, p *lobby.Player) {
	strategy := p.Connection.Strategy
	l, ok := registry.Get(lobbyID)
	if !ok || l.Game == nil {
		return
	}

	var err error
	if l.Game.Phase == domain.PhaseSetup {
		cards := strategy.ChooseThreeFaceup()
		if len(cards) != 3 {
			return
		}
		err = registry.ChooseFaceup(protocol.ChooseFaceupMessage{
			LobbyId: lobbyID, PlayerId: playerID,
			CardOne: cards[0], CardTwo: cards[1], CardThree: cards[2],
		})
	} else {
		cards := strategy.MakePlay()
		_, err = registry.MakePlay(protocol.MakePlayMessage{LobbyId: lobbyID, PlayerId: playerID, Cards: cards})
	}
	if err != nil {
		logging.L().WithError(err).WithField("player", playerID.String()).Warn("ai move rejected")
		return
	}
	registry.SendHand(lobbyID, playerID)
	registry.BroadcastGameState(lobbyID)
}

// turnTimerLoop kicks an AFK human's seat by substituting a random
// legal move once their turn has run past the lobby's configured
// timer.
func turnTimerLoop(ctx context.Context, registry *lobby.Registry) {
	ticker := time.NewTicker(turnTimerTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			enforceTurnTimers(registry)
		}
	}
}

func enforceTurnTimers(registry *lobby.Registry) {
	now := time.Now()
	var expired []protocol.LobbyId
	registry.ForEachLobby(func(id protocol.LobbyId, l *lobby.Lobby) {
		if l.Game == nil || l.TurnTimer <= 0 {
			return
		}
		active, ok := l.PlayersByTurnNum[l.Game.ActivePlayer]
		if !ok {
			return
		}
		p := l.Players[active]
		timedOutOrKicked := p.Connection.Kind == lobby.ConnDisconnected &&
			(p.Connection.DisconnectedReason == lobby.DisconnectedKicked ||
				p.Connection.DisconnectedReason == lobby.DisconnectedTimedOut)
		if now.Sub(l.Game.LastTurnStart) < l.TurnTimer && !timedOutOrKicked {
			return
		}
		expired = append(expired, id)
	})

	for _, id := range expired {
		l, ok := registry.Get(id)
		if !ok || l.Game == nil {
			continue
		}
		active, ok := l.PlayersByTurnNum[l.Game.ActivePlayer]
		if !ok {
			continue
		}
		p := l.Players[active]
		if p.Connection.Kind == lobby.ConnAi {
			continue // the AI loop already handles this seat
		}

		// Connected seats are kicked to Disconnected(TimedOut) with an
		// LobbyCloseEvent(Afk); a seat that already left is elevated
		// from Left to TimedOut so this loop keeps acting on it
		// without waiting for a reconnect attempt.
		registry.TimeoutPlayer(id, active)

		// An AFK human is treated exactly like a bot for one move:
		// pick uniformly among its legal plays so the game keeps
		// moving, without changing seat ownership or kicking anyone.
		timeoutMove(registry, id, active, p)
	}
}

func timeoutMove(registry *lobby.Registry, lobbyID protocol.LobbyId, playerID protocol.PlayerId, p *lobby.Player) {
	fallback := ai.NewRandom()
	l, ok := registry.Get(lobbyID)
	if !ok || l.Game == nil {
		return
	}
	var err error
	if l.Game.Phase == domain.PhaseSetup {
		hand := append([]domain.Card(nil), l.Game.Hands[p.TurnNumber]...)
		faceUp := l.Game.FaceUp[p.TurnNumber]
		pool := append(append([]domain.Card(nil), hand...), faceUp...)
		if len(pool) < 3 {
			return
		}
		idx := rand.Perm(len(pool))[:3]
		err = registry.ChooseFaceup(protocol.ChooseFaceupMessage{
			LobbyId: lobbyID, PlayerId: playerID,
			CardOne: pool[idx[0]], CardTwo: pool[idx[1]], CardThree: pool[idx[2]],
		})
	} else {
		fallback.OnGameStart(ai.GameStartEvent{
			TurnNumber: p.TurnNumber,
			NumPlayers: l.Game.NumPlayers,
			Hand:       l.Game.Hands[p.TurnNumber],
		})
		fallback.OnGameStateUpdate(l.Game.PublicView())
		cards := fallback.MakePlay()
		_, err = registry.MakePlay(protocol.MakePlayMessage{LobbyId: lobbyID, PlayerId: playerID, Cards: cards})
	}
	if err != nil {
		logging.L().WithError(err).WithField("player", playerID.String()).Debug("turn-timer fallback move rejected")
		return
	}
	registry.SendHand(lobbyID, playerID)
	registry.BroadcastGameState(lobbyID)
}

// pruneLoop removes lobbies that have sat empty past the grace period.
func pruneLoop(ctx context.Context, registry *lobby.Registry, threshold time.Duration) {
	ticker := time.NewTicker(pruneTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned := registry.PruneEmpty(time.Now(), threshold)
			for _, id := range pruned {
				logging.L().WithField("lobby_id", id.String()).Info("pruned empty lobby")
			}
		}
	}
}

// clandestineLoop periodically backfills open seats in lobbies with
// unrequested, human-named AI players, at a randomized interval so their arrival
// doesn't look scripted.
func clandestineLoop(ctx context.Context, registry *lobby.Registry) {
	for {
		wait := clandestineMinInterval + time.Duration(rand.Int63n(int64(clandestineMaxInterval-clandestineMinInterval)))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			backfillClandestineAi(registry)
		}
	}
}

func backfillClandestineAi(registry *lobby.Registry) {
	registry.ForEachLobby(func(id protocol.LobbyId, l *lobby.Lobby) {
		if l.Game != nil {
			return
		}
		if len(l.Players) >= l.MaxPlayers {
			return
		}
		if rand.Intn(4) != 0 {
			return
		}
		l.AddClandestineAi(ai.ClandestineName(), ai.NewRandom())
	})
}
