package domain

import (
	"math/rand"
	"sort"
)

// MinPlayers and MaxPlayers bound the size of a Palace game.
const (
	MinPlayers = 2
	MaxPlayers = 4

	// FaceUpSize and FaceDownSize are the number of cards dealt face up
	// and face down to each player before the hand is filled.
	FaceUpSize   = 3
	FaceDownSize = 3
)

// NewDeck builds the multiset for an n-player game: the full rank
// list paired cyclically with the first n suits. Because 13 (the
// number of ranks) and n share no common factor for n in {2,3,4},
// this cyclic pairing visits every (rank, suit) combination for the
// first n suits exactly once — so for n=4 it is a standard 52-card
// deck, and for n=2 or n=3 it is a proportionally smaller deck using
// only the first n suits, as required by the card-conservation
// invariant (every dealt card must come from somewhere, and nothing
// is left over).
func NewDeck(n int) []Card {
	size := NumValues * n
	deck := make([]Card, size)
	for i := range deck {
		deck[i] = Card{Value: Value(i % NumValues), Suit: Suit(i % n)}
	}
	return deck
}

// Shuffle returns a shuffled copy of deck using rng. A nil rng uses
// the package-level source.
func Shuffle(deck []Card, rng *rand.Rand) []Card {
	out := make([]Card, len(deck))
	copy(out, deck)
	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// SortCards orders cards ascending in place.
func SortCards(cards []Card) {
	sort.Slice(cards, func(i, j int) bool { return cards[i].Less(cards[j]) })
}

// Sorted returns a sorted copy of cards.
func Sorted(cards []Card) []Card {
	out := append([]Card(nil), cards...)
	SortCards(out)
	return out
}
