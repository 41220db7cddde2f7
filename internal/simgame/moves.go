package simgame

import "palace/internal/domain"

// AllMoves enumerates every legal move the active player can choose
// from in g. During Setup a move is an unordered 3-card combination
// drawn from hand+faceup; during Play a move is every contiguous
// same-rank run within the player's active zone (relies on the zone
// already being sorted by rank), and an empty move stands for the
// single implicit face-down play.
func AllMoves(g *GameState) [][]domain.Card {
	active := g.ActivePlayer

	if g.Phase == domain.PhaseSetup {
		all := append(append([]domain.Card(nil), g.Hands[active]...), g.FaceUp[active]...)
		return tripleCombinations(all)
	}

	if g.Complete() {
		return nil
	}

	hand := g.Hands[active]
	faceUp := g.FaceUp[active]
	switch {
	case len(hand) > 0:
		return movesFromZone(hand)
	case len(faceUp) > 0:
		return movesFromZone(faceUp)
	default:
		return [][]domain.Card{{}}
	}
}

// movesFromZone returns every window of contiguous equal-rank cards
// in zone (zone must already be sorted), for window sizes 1..n.
func movesFromZone(zone []domain.Card) [][]domain.Card {
	var moves [][]domain.Card
	for size := 1; size <= len(zone); size++ {
		found := false
		for start := 0; start+size <= len(zone); start++ {
			window := zone[start : start+size]
			uniform := true
			for _, card := range window {
				if card.Value != window[0].Value {
					uniform = false
					break
				}
			}
			if !uniform {
				continue
			}
			moves = append(moves, append([]domain.Card(nil), window...))
			found = true
		}
		if !found {
			break
		}
	}
	return moves
}

func tripleCombinations(cards []domain.Card) [][]domain.Card {
	var moves [][]domain.Card
	n := len(cards)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				moves = append(moves, []domain.Card{cards[i], cards[j], cards[k]})
			}
		}
	}
	return moves
}
