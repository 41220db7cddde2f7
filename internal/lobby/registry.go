package lobby

import (
	"sync"
	"time"

	"palace/internal/ai"
	"palace/internal/domain"
	"palace/internal/logging"
	"palace/internal/protocol"
)

// Registry is the process-wide set of lobbies, guarded by a single
// reader/writer lock. Every operation that mutates lobby state takes
// the write lock for its whole duration. Broadcasts are separate
// calls: they collect recipients under the read lock and send after
// releasing it, so a state change and the broadcast describing it are
// not one atomic step, and another operation can run between them.
type Registry struct {
	mu      sync.RWMutex
	lobbies map[protocol.LobbyId]*Lobby

	defaultTurnTimer time.Duration
}

// NewRegistry builds an empty registry using the package default turn
// timer for any lobby that doesn't request its own.
func NewRegistry() *Registry {
	return NewRegistryWithDefaults(DefaultTurnTimerSecs * time.Second)
}

// NewRegistryWithDefaults builds an empty registry, letting the
// caller (cmd/palaced, wired from a flag/env var) override the
// fallback turn timer.
func NewRegistryWithDefaults(defaultTurnTimer time.Duration) *Registry {
	if defaultTurnTimer <= 0 {
		defaultTurnTimer = DefaultTurnTimerSecs * time.Second
	}
	return &Registry{
		lobbies:          make(map[protocol.LobbyId]*Lobby),
		defaultTurnTimer: defaultTurnTimer,
	}
}

// NewLobby creates a lobby and seats its creator as the owner.
func (r *Registry) NewLobby(msg protocol.NewLobbyMessage, sender Sender) (protocol.NewLobbyResponse, protocol.APIError) {
	switch {
	case msg.MaxPlayers < domain.MinPlayers:
		return protocol.NewLobbyResponse{}, protocol.ErrLessThanTwoMaxPlayers
	case msg.LobbyName == "":
		return protocol.NewLobbyResponse{}, protocol.ErrEmptyLobbyName
	case msg.PlayerName == "":
		return protocol.NewLobbyResponse{}, protocol.ErrEmptyPlayerName
	}

	turnTimer := r.defaultTurnTimer
	if msg.TurnTimer > 0 {
		turnTimer = time.Duration(msg.TurnTimer) * time.Second
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	lobbyID := protocol.NewLobbyId()
	playerID := protocol.NewPlayerId()

	l := &Lobby{
		Players:          map[protocol.PlayerId]*Player{},
		PlayersByTurnNum: map[int]protocol.PlayerId{},
		MaxPlayers:       msg.MaxPlayers,
		Password:         msg.Password,
		Owner:            playerID,
		Name:             msg.LobbyName,
		CreationTime:     time.Now(),
		TurnTimer:        turnTimer,
	}
	l.addPlayer(playerID, &Player{
		Name:       msg.PlayerName,
		Connection: Connection{Kind: ConnConnected, Sender: sender},
	})
	r.lobbies[lobbyID] = l

	logging.L().WithField("lobby_id", lobbyID.String()).Info("lobby created")

	return protocol.NewLobbyResponse{
		PlayerId:   playerID,
		LobbyId:    lobbyID,
		MaxPlayers: msg.MaxPlayers,
	}, ""
}

// JoinLobby seats a new player in an existing, not-yet-started lobby.
// It returns the response to send back to the joining connection and,
// separately, the broadcast event every other participant should
// receive — the caller must send the response before broadcasting, to
// preserve response-before-broadcast ordering.
func (r *Registry) JoinLobby(msg protocol.JoinLobbyMessage, sender Sender) (protocol.JoinLobbyResponse, protocol.PlayerJoinEvent, protocol.LobbyId, protocol.APIError) {
	if msg.PlayerName == "" {
		return protocol.JoinLobbyResponse{}, protocol.PlayerJoinEvent{}, protocol.LobbyId{}, protocol.ErrEmptyPlayerName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[msg.LobbyId]
	if !ok {
		return protocol.JoinLobbyResponse{}, protocol.PlayerJoinEvent{}, protocol.LobbyId{}, protocol.ErrLobbyNotFound
	}
	if l.Game != nil {
		return protocol.JoinLobbyResponse{}, protocol.PlayerJoinEvent{}, protocol.LobbyId{}, protocol.ErrGameInProgress
	}
	if len(l.Players) >= l.MaxPlayers {
		return protocol.JoinLobbyResponse{}, protocol.PlayerJoinEvent{}, protocol.LobbyId{}, protocol.ErrLobbyFull
	}
	if l.Password != "" && l.Password != msg.Password {
		return protocol.JoinLobbyResponse{}, protocol.PlayerJoinEvent{}, protocol.LobbyId{}, protocol.ErrBadPassword
	}

	playerID := protocol.NewPlayerId()
	l.addPlayer(playerID, &Player{
		Name:       msg.PlayerName,
		Connection: Connection{Kind: ConnConnected, Sender: sender},
	})

	names := playerNames(l)
	return protocol.JoinLobbyResponse{
			PlayerId:      playerID,
			LobbyPlayers:  names,
			MaxPlayers:    l.MaxPlayers,
			NumSpectators: len(l.Spectators),
			TurnTimer:     int(l.TurnTimer.Seconds()),
		}, protocol.PlayerJoinEvent{
			TotalNumPlayers: len(l.Players),
			NewPlayerName:   msg.PlayerName,
			Slot:            l.Players[playerID].TurnNumber,
		}, msg.LobbyId, ""
}

// SpectateLobby registers a spectator connection against a lobby.
func (r *Registry) SpectateLobby(id protocol.LobbyId, sender Sender) (protocol.SpectateLobbyResponse, protocol.APIError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[id]
	if !ok {
		return protocol.SpectateLobbyResponse{}, protocol.ErrLobbyNotFound
	}

	l.Spectators = append(l.Spectators, sender)
	return protocol.SpectateLobbyResponse{
		LobbyPlayers:  playerNames(l),
		MaxPlayers:    l.MaxPlayers,
		NumSpectators: len(l.Spectators),
		TurnTimer:     int(l.TurnTimer.Seconds()),
	}, ""
}

// RequestAi adds num requested-AI seats to a lobby, owner-only.
func (r *Registry) RequestAi(msg protocol.RequestAiMessage) protocol.APIError {
	if msg.NumAi < 1 {
		return protocol.ErrLessThanOneAiRequested
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[msg.LobbyId]
	if !ok {
		return protocol.ErrLobbyNotFound
	}
	if l.Owner != msg.PlayerId {
		return protocol.ErrNotLobbyOwner
	}
	if len(l.Players)+msg.NumAi > l.MaxPlayers {
		return protocol.ErrLobbyTooSmall
	}
	if l.Game != nil {
		return protocol.ErrGameInProgress
	}

	for i := 0; i < msg.NumAi; i++ {
		l.addPlayer(protocol.NewPlayerId(), &Player{
			Name: ai.RequestedName(),
			Connection: Connection{
				Kind:     ConnAi,
				Strategy: ai.NewRandom(),
			},
		})
	}
	return ""
}

// KickPlayer kicks a seat, owner-only; the owner cannot be kicked,
// nor can an AI seat be kicked mid-game. A kicked AI seat is removed
// from the roster. A kicked human seat is not removed, in or out of a
// game: it stays in the roster marked Disconnected(Kicked), keeps its
// turn number, and cannot reconnect.
func (r *Registry) KickPlayer(msg protocol.KickPlayerMessage) protocol.APIError {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[msg.LobbyId]
	if !ok {
		return protocol.ErrLobbyNotFound
	}
	if l.Owner != msg.PlayerId {
		return protocol.ErrNotLobbyOwner
	}
	targetID, ok := l.playerIDAtSeat(msg.Slot)
	if !ok {
		return protocol.ErrTargetPlayerNotFound
	}
	if targetID == l.Owner {
		return protocol.ErrCantKickLobbyOwner
	}
	target := l.Players[targetID]
	if target.isAi() && l.Game != nil {
		return protocol.ErrCantKickAiDuringGame
	}

	if target.isAi() {
		l.removePlayer(targetID)
	} else {
		target.Connection = Connection{
			Kind:               ConnDisconnected,
			DisconnectedAt:     time.Now(),
			DisconnectedReason: DisconnectedKicked,
		}
	}
	return ""
}

// Reconnect restores a previously disconnected human seat.
func (r *Registry) Reconnect(msg protocol.ReconnectMessage, sender Sender) (protocol.ReconnectResponse, protocol.APIError) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[msg.LobbyId]
	if !ok {
		return protocol.ReconnectResponse{}, protocol.ErrLobbyNotFound
	}
	p, ok := l.Players[msg.PlayerId]
	if !ok {
		return protocol.ReconnectResponse{}, protocol.ErrPlayerNotFound
	}
	if p.Connection.Kind == ConnDisconnected && p.Connection.DisconnectedReason == DisconnectedKicked {
		return protocol.ReconnectResponse{}, protocol.ErrPlayerKicked
	}

	p.Connection = Connection{Kind: ConnConnected, Sender: sender}
	return protocol.ReconnectResponse{
		MaxPlayers:    l.MaxPlayers,
		NumSpectators: len(l.Spectators),
		TurnTimer:     int(l.TurnTimer.Seconds()),
	}, ""
}

// StartGame deals a fresh game into the lobby, owner-only.
func (r *Registry) StartGame(msg protocol.StartGameMessage) protocol.APIError {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[msg.LobbyId]
	if !ok {
		return protocol.ErrLobbyNotFound
	}
	if l.Owner != msg.PlayerId {
		return protocol.ErrNotLobbyOwner
	}
	if len(l.Players) < domain.MinPlayers {
		return protocol.ErrLessThanTwoPlayers
	}
	if l.Game != nil {
		return protocol.ErrGameInProgress
	}

	l.Game = domain.NewGame(len(l.Players), nil)
	return ""
}

// ChooseFaceup applies a setup-phase move, validating it's the
// caller's turn. The returned error is either a protocol.APIError (a
// taxonomy code) or a domain.RuleError (a rejected move) — the
// transport layer distinguishes them when framing the response.
func (r *Registry) ChooseFaceup(msg protocol.ChooseFaceupMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[msg.LobbyId]
	if !ok {
		return protocol.ErrLobbyNotFound
	}
	if l.Game == nil {
		return protocol.ErrGameNotStarted
	}
	p, ok := l.Players[msg.PlayerId]
	if !ok {
		return protocol.ErrPlayerNotFound
	}
	if p.TurnNumber != l.Game.ActivePlayer {
		return protocol.ErrNotYourTurn
	}
	if err := l.Game.SetupOp(msg.CardOne, msg.CardTwo, msg.CardThree); err != nil {
		return err
	}
	return nil
}

// MakePlay applies a play-phase move, validating it's the caller's
// turn, and tears the game down if it just completed.
func (r *Registry) MakePlay(msg protocol.MakePlayMessage) (complete bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.lobbies[msg.LobbyId]
	if !ok {
		return false, protocol.ErrLobbyNotFound
	}
	if l.Game == nil {
		return false, protocol.ErrGameNotStarted
	}
	p, ok := l.Players[msg.PlayerId]
	if !ok {
		return false, protocol.ErrPlayerNotFound
	}
	if p.TurnNumber != l.Game.ActivePlayer {
		return false, protocol.ErrNotYourTurn
	}

	done, playErr := l.Game.PlayOp(msg.Cards)
	if playErr != nil {
		return false, playErr
	}
	if done {
		l.Game = nil
		l.GamesCompleted++
	}
	return done, nil
}

// Broadcast sends env to every connected player and spectator in a
// lobby, skipping excludePlayerID (pass the zero PlayerId to exclude
// no one).
func (r *Registry) Broadcast(id protocol.LobbyId, env protocol.OutEnvelope, excludePlayerID protocol.PlayerId) {
	r.mu.RLock()
	l, ok := r.lobbies[id]
	if !ok {
		r.mu.RUnlock()
		return
	}
	recipients := collectRecipients(l, excludePlayerID)
	r.mu.RUnlock()
	sendAll(recipients, env)
}

// BroadcastGameStart sends every connected player their own hand and
// seat assignment, and every spectator the seat list alone. Call
// after StartGame succeeds.
func (r *Registry) BroadcastGameStart(id protocol.LobbyId) {
	r.mu.RLock()
	l, ok := r.lobbies[id]
	if !ok || l.Game == nil {
		r.mu.RUnlock()
		return
	}
	players := make(map[int]string, len(l.Players))
	for _, p := range l.Players {
		players[p.TurnNumber] = p.Name
	}
	type send struct {
		sender Sender
		env    protocol.OutEnvelope
	}
	var sends []send
	for _, p := range l.Players {
		if p.Connection.Kind != ConnConnected {
			continue
		}
		sends = append(sends, send{p.Connection.Sender, protocol.Out(protocol.TypeGameStartEvent, protocol.GameStartEvent{
			Hand:       append([]domain.Card(nil), l.Game.Hands[p.TurnNumber]...),
			TurnNumber: p.TurnNumber,
			Players:    players,
		})})
	}
	spectatorEnv := protocol.Out(protocol.TypeSpectateGameStartEvent, protocol.SpectateGameStartEvent{Players: players})
	spectators := append([]Sender(nil), l.Spectators...)
	r.mu.RUnlock()

	for _, s := range sends {
		s.sender.Send(s.env)
	}
	sendAll(spectators, spectatorEnv)
}

// BroadcastGameState sends the lobby's current public game view to
// every connected player and spectator. Call after any successful
// ChooseFaceup or MakePlay.
func (r *Registry) BroadcastGameState(id protocol.LobbyId) {
	r.mu.RLock()
	l, ok := r.lobbies[id]
	if !ok || l.Game == nil {
		r.mu.RUnlock()
		return
	}
	view := l.Game.PublicView()
	recipients := collectRecipients(l, protocol.PlayerId{})
	r.mu.RUnlock()
	sendAll(recipients, protocol.Out(protocol.TypePublicGameStateEvent, view))
}

// SendHand pushes playerID's current hand to them alone, if they're
// connected. Call after any successful ChooseFaceup or MakePlay so the
// acting player (and anyone whose zone changed, e.g. a pickup) sees
// their new hand.
func (r *Registry) SendHand(id protocol.LobbyId, playerID protocol.PlayerId) {
	r.mu.RLock()
	l, ok := r.lobbies[id]
	if !ok || l.Game == nil {
		r.mu.RUnlock()
		return
	}
	p, ok := l.Players[playerID]
	if !ok || p.Connection.Kind != ConnConnected {
		r.mu.RUnlock()
		return
	}
	sender := p.Connection.Sender
	hand := append([]domain.Card(nil), l.Game.Hands[p.TurnNumber]...)
	r.mu.RUnlock()
	sender.Send(protocol.Out(protocol.TypeHandEvent, hand))
}

// Disconnect marks playerID's seat as no longer connected. If the
// disconnecting player owned the lobby, the whole lobby closes instead
// — there is no ownership transfer.
func (r *Registry) Disconnect(id protocol.LobbyId, playerID protocol.PlayerId) {
	r.mu.Lock()
	l, ok := r.lobbies[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	p, ok := l.Players[playerID]
	if !ok {
		r.mu.Unlock()
		return
	}

	if playerID == l.Owner {
		recipients := collectRecipients(l, playerID)
		delete(r.lobbies, id)
		r.mu.Unlock()
		sendAll(recipients, protocol.Out(protocol.TypeLobbyCloseEvent, protocol.LobbyCloseOwnerLeft))
		return
	}

	p.Connection = Connection{Kind: ConnDisconnected, DisconnectedAt: time.Now(), DisconnectedReason: DisconnectedLeft}
	slot := p.TurnNumber
	totalNumPlayers := len(l.Players)
	recipients := collectRecipients(l, playerID)
	r.mu.Unlock()
	sendAll(recipients, protocol.Out(protocol.TypePlayerLeaveEvent, protocol.PlayerLeaveEvent{
		TotalNumPlayers: totalNumPlayers,
		Slot:            slot,
	}))
}

// TimeoutPlayer transitions playerID's connection state once its turn
// has run past the lobby's timer: a Connected seat is sent
// LobbyCloseEvent(Afk) and marked Disconnected(TimedOut); a
// Disconnected(Left) seat is elevated to TimedOut so later ticks act
// on it immediately. An AI, kicked, or already-timed-out seat is left
// untouched.
func (r *Registry) TimeoutPlayer(id protocol.LobbyId, playerID protocol.PlayerId) {
	r.mu.Lock()
	l, ok := r.lobbies[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	p, ok := l.Players[playerID]
	if !ok {
		r.mu.Unlock()
		return
	}

	switch {
	case p.Connection.Kind == ConnConnected:
		sender := p.Connection.Sender
		p.Connection = Connection{Kind: ConnDisconnected, DisconnectedAt: time.Now(), DisconnectedReason: DisconnectedTimedOut}
		r.mu.Unlock()
		sender.Send(protocol.Out(protocol.TypeLobbyCloseEvent, protocol.LobbyCloseAfk))
	case p.Connection.Kind == ConnDisconnected && p.Connection.DisconnectedReason == DisconnectedLeft:
		p.Connection.DisconnectedReason = DisconnectedTimedOut
		r.mu.Unlock()
	default:
		r.mu.Unlock()
	}
}

// RemoveSpectator drops sender from a lobby's spectator list, matched
// by identity.
func (r *Registry) RemoveSpectator(id protocol.LobbyId, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[id]
	if !ok {
		return
	}
	for i, s := range l.Spectators {
		if s == sender {
			l.Spectators = append(l.Spectators[:i], l.Spectators[i+1:]...)
			return
		}
	}
}

func collectRecipients(l *Lobby, excludePlayerID protocol.PlayerId) []Sender {
	var recipients []Sender
	for pid, p := range l.Players {
		if pid == excludePlayerID {
			continue
		}
		if p.Connection.Kind == ConnConnected {
			recipients = append(recipients, p.Connection.Sender)
		}
	}
	recipients = append(recipients, l.Spectators...)
	return recipients
}

func sendAll(recipients []Sender, env protocol.OutEnvelope) {
	for _, s := range recipients {
		s.Send(env)
	}
}

// Get returns the lobby for id, if any.
func (r *Registry) Get(id protocol.LobbyId) (*Lobby, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.lobbies[id]
	return l, ok
}

const listPageSize = 50

// List returns the requested page (0-indexed, 50 rows per page) of
// every lobby's display row.
func (r *Registry) List(page uint64) protocol.ListLobbiesResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]protocol.LobbyDisplay, 0, len(r.lobbies))
	for id, l := range r.lobbies {
		all = append(all, l.Display(id))
	}

	start := page * listPageSize
	if start >= uint64(len(all)) {
		return protocol.ListLobbiesResponse{}
	}
	end := start + listPageSize
	if end > uint64(len(all)) {
		end = uint64(len(all))
	}
	return protocol.ListLobbiesResponse{
		Lobbies:     all[start:end],
		HasNextPage: uint64(len(all)) > (page+1)*listPageSize,
	}
}

// PruneEmpty removes every lobby that has no Connected player, no
// Disconnected player younger than threshold, no spectators, and no
// clandestine AI.
func (r *Registry) PruneEmpty(now time.Time, threshold time.Duration) []protocol.LobbyId {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pruned []protocol.LobbyId
	for id, l := range r.lobbies {
		if !lobbyIsEmpty(l, now, threshold) {
			continue
		}
		delete(r.lobbies, id)
		pruned = append(pruned, id)
	}
	return pruned
}

func lobbyIsEmpty(l *Lobby, now time.Time, threshold time.Duration) bool {
	if len(l.Spectators) != 0 {
		return false
	}
	for _, p := range l.Players {
		switch p.Connection.Kind {
		case ConnConnected:
			return false
		case ConnDisconnected:
			if now.Sub(p.Connection.DisconnectedAt) < threshold {
				return false
			}
		case ConnAi:
			if p.Connection.IsClandestine {
				return false
			}
		}
	}
	return true
}

// ForEachLobby runs fn against every lobby under the write lock, for
// the background scheduler's periodic passes (AI turns, AFK
// enforcement). fn must not retain the *Lobby past its call.
func (r *Registry) ForEachLobby(fn func(id protocol.LobbyId, l *Lobby)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, l := range r.lobbies {
		fn(id, l)
	}
}

func playerNames(l *Lobby) []string {
	names := make([]string, len(l.PlayersByTurnNum))
	for n, id := range l.PlayersByTurnNum {
		if n < len(names) {
			names[n] = l.Players[id].Name
		}
	}
	return names
}
