// Package ai implements the built-in bot strategies that can fill an
// empty lobby seat: Random, LowAndSteady, and Monty (an information-set
// Monte Carlo tree search player).
package ai

import "palace/internal/domain"

// GameStartEvent is delivered once, when a strategy is attached to a
// seat at the start of a game, carrying the information only that
// seat is privy to.
type GameStartEvent struct {
	TurnNumber int
	NumPlayers int
	Hand       []domain.Card
}

// Strategy decides what a bot-controlled seat does. Every method that
// isn't a decision point has a no-op default so a strategy only needs
// to implement what it actually uses.
type Strategy interface {
	Name() string

	// ChooseThreeFaceup is called during Setup and must return exactly
	// three cards drawn from the seat's current hand+faceup union.
	ChooseThreeFaceup() []domain.Card

	// MakePlay is called during Play. An empty slice means "play from
	// face down" (the caller pops a card on the strategy's behalf).
	MakePlay() []domain.Card

	OnGameStart(event GameStartEvent)
	OnGameStateUpdate(state domain.PublicGameState)
	OnHandUpdate(hand []domain.Card)
}

// BaseStrategy gives every concrete strategy no-op defaults so it
// only needs to override what it cares about.
type BaseStrategy struct{}

func (BaseStrategy) OnGameStart(GameStartEvent)                  {}
func (BaseStrategy) OnGameStateUpdate(domain.PublicGameState)     {}
func (BaseStrategy) OnHandUpdate([]domain.Card)                   {}
