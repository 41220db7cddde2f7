package ai

import (
	"sort"

	"palace/internal/domain"
)

// LowAndSteady plays the lowest contiguous same-rank run it can
// legally play, holding back specials (Two, Four, Ten) until nothing
// else works.
type LowAndSteady struct {
	BaseStrategy

	hand       []domain.Card
	faceUp     []domain.Card
	turnNumber int
	pile       []domain.Card
}

func NewLowAndSteady() *LowAndSteady { return &LowAndSteady{} }

func (l *LowAndSteady) Name() string { return "Low and Steady" }

func (l *LowAndSteady) ChooseThreeFaceup() []domain.Card {
	return append([]domain.Card(nil), l.faceUp...)
}

func (l *LowAndSteady) MakePlay() []domain.Card {
	if len(l.hand) > 0 {
		return lowestPlayableRun(l.hand, l.pile)
	}
	sortLowToHighSpecialsLast(l.faceUp)
	return lowestPlayableRun(l.faceUp, l.pile)
}

func (l *LowAndSteady) OnGameStart(event GameStartEvent) {
	l.hand = append([]domain.Card(nil), event.Hand...)
	l.turnNumber = event.TurnNumber
}

func (l *LowAndSteady) OnGameStateUpdate(state domain.PublicGameState) {
	l.faceUp = append([]domain.Card(nil), state.FaceUp[l.turnNumber]...)
	if state.PileSize == 0 {
		l.pile = nil
	} else {
		l.pile = append(l.pile, state.LastCardsPlayed...)
	}
}

func (l *LowAndSteady) OnHandUpdate(hand []domain.Card) {
	l.hand = append([]domain.Card(nil), hand...)
	sortLowToHighSpecialsLast(l.hand)
}

// lowestPlayableRun returns the first contiguous same-rank run in
// zone (zone must be sorted ascending) that is playable atop pile,
// falling back to the lowest single card if nothing is playable (the
// caller is expected to trigger the pickup path).
func lowestPlayableRun(zone []domain.Card, pile []domain.Card) []domain.Card {
	top := domain.EffectiveTop(pile)
	for i := 0; i < len(zone); i++ {
		if !domain.IsPlayable(zone[i].Value, top) {
			continue
		}
		j := i + 1
		for j < len(zone) && zone[j].Value == zone[i].Value {
			j++
		}
		return append([]domain.Card(nil), zone[i:j]...)
	}
	if len(zone) == 0 {
		return nil
	}
	return []domain.Card{zone[0]}
}

// sortLowToHighSpecialsLast orders zone ascending by rank, except
// Two, Four, and Ten are pushed to the very back: Two and Four are
// always playable and Ten is playable on anything but a Seven, so
// holding them is rarely a liability.
func sortLowToHighSpecialsLast(zone []domain.Card) {
	special := func(v domain.Value) bool {
		return v == domain.Two || v == domain.Four || v == domain.Ten
	}
	sort.SliceStable(zone, func(i, j int) bool {
		xi, xj := special(zone[i].Value), special(zone[j].Value)
		if xi != xj {
			return xj
		}
		if xi && xj {
			return false
		}
		return zone[i].Value < zone[j].Value
	})
}
