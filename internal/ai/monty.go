package ai

import (
	"math"
	"math/rand"

	"palace/internal/domain"
	"palace/internal/simgame"
)

// montyCard is either a card Monty has seen (in its own hand, in a
// faceup pile, or played to the visible pile) or a card it knows
// exists somewhere but can't identify yet.
type montyCard struct {
	known bool
	card  domain.Card
}

func known(c domain.Card) montyCard { return montyCard{known: true, card: c} }

var unknownCard = montyCard{}

// informationSet is everything Monty believes about the game from its
// own seat: its own hand is fully known, everyone's faceup piles are
// public, and everything else (opponent hands, facedown piles) is a
// mix of known cards (inferred from play) and unknown slots.
type informationSet struct {
	everyoneHands    [][]montyCard
	everyoneFaceUp   [][]domain.Card
	everyoneFaceDown []int
	pile             []domain.Card
	turnNumber       int
	phase            domain.Phase
}

// determinize resolves every unknown slot in the information set to
// an actual card, drawn from a shuffled copy of the unseen bag, hands
// filled before facedown piles (matching the order cards were hidden
// from the observer).
func (is *informationSet) determinize(unseen []domain.Card) *simgame.GameState {
	pool := append([]domain.Card(nil), unseen...)
	rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	cursor := 0

	n := len(is.everyoneHands)
	hands := make([][]domain.Card, n)
	for p, known := range is.everyoneHands {
		hand := make([]domain.Card, len(known))
		for i, mc := range known {
			if mc.known {
				hand[i] = mc.card
			} else {
				hand[i] = pool[cursor]
				cursor++
			}
		}
		domain.SortCards(hand)
		hands[p] = hand
	}

	faceDown := make([][]domain.Card, n)
	for p, count := range is.everyoneFaceDown {
		fd := make([]domain.Card, count)
		for i := range fd {
			fd[i] = pool[cursor]
			cursor++
		}
		faceDown[p] = fd
	}

	faceUp := make([][]domain.Card, n)
	for p := range faceUp {
		faceUp[p] = append([]domain.Card(nil), is.everyoneFaceUp[p]...)
	}

	return &simgame.GameState{
		NumPlayers:   n,
		Hands:        hands,
		FaceUp:       faceUp,
		FaceDown:     faceDown,
		Pile:         append([]domain.Card(nil), is.pile...),
		Phase:        is.phase,
		ActivePlayer: is.turnNumber,
	}
}

// node is one entry in the ISMCTS search tree.
type node struct {
	lastMove   []domain.Card
	lastPlayer int
	parent     int
	wins       int
	simulations int
	children   []int
}

func ucb1(explorationVal float64, n *node, parentSimulations int) float64 {
	if n.simulations == 0 {
		return math.Inf(1)
	}
	exploit := float64(n.wins) / float64(n.simulations)
	explore := explorationVal * math.Sqrt(math.Log(float64(parentSimulations))/float64(n.simulations))
	return exploit + explore
}

// Monty is an information-set Monte Carlo tree search strategy: it
// tracks what it actually knows about hidden cards and runs repeated
// determinized playouts to pick a move, rather than following fixed
// heuristics.
type Monty struct {
	BaseStrategy

	informationSet informationSet
	lastPlayer     int
	setupSeen      bool
	unseenCards    map[domain.Card]int
	explorationVal float64
	numSims        int
}

// NewMonty builds a Monty strategy with the original tuning: 1000
// simulations per decision (doubled for Setup) and a 0.7 UCB1
// exploration constant.
func NewMonty() *Monty {
	return &Monty{unseenCards: map[domain.Card]int{}, explorationVal: 0.7, numSims: 1000}
}

// NewMontyTuned builds a Monty strategy with custom search parameters,
// useful for benchmarking strategies against each other at reduced cost.
func NewMontyTuned(explorationVal float64, numSims int) *Monty {
	return &Monty{unseenCards: map[domain.Card]int{}, explorationVal: explorationVal, numSims: numSims}
}

func (m *Monty) Name() string { return "Monty" }

func (m *Monty) unseenAsSlice() []domain.Card {
	var out []domain.Card
	for card, count := range m.unseenCards {
		for i := 0; i < count; i++ {
			out = append(out, card)
		}
	}
	return out
}

func (m *Monty) ChooseThreeFaceup() []domain.Card {
	return ismcts(m.numSims*2, m.explorationVal, &m.informationSet, m.unseenAsSlice())
}

func (m *Monty) MakePlay() []domain.Card {
	return ismcts(m.numSims, m.explorationVal, &m.informationSet, m.unseenAsSlice())
}

func (m *Monty) OnGameStart(event GameStartEvent) {
	for _, c := range domain.NewDeck(deckPlayerCountFor(event.NumPlayers)) {
		m.unseenCards[c]++
	}
	for _, c := range event.Hand {
		m.unseenCards[c]--
	}

	handSize := domain.NumValues - domain.FaceUpSize - domain.FaceDownSize
	m.informationSet.everyoneHands = make([][]montyCard, event.NumPlayers)
	m.informationSet.everyoneFaceUp = make([][]domain.Card, event.NumPlayers)
	for p := range m.informationSet.everyoneHands {
		m.informationSet.everyoneHands[p] = make([]montyCard, handSize)
		for i := range m.informationSet.everyoneHands[p] {
			m.informationSet.everyoneHands[p][i] = unknownCard
		}
	}
	m.informationSet.turnNumber = event.TurnNumber
	m.informationSet.everyoneHands[event.TurnNumber] = knownSlice(event.Hand)
	m.lastPlayer = 0
}

// deckPlayerCountFor recovers the suit-count a NumPlayers-sized deck
// was built with; Palace always pairs them 1:1.
func deckPlayerCountFor(numPlayers int) int { return numPlayers }

func knownSlice(cards []domain.Card) []montyCard {
	out := make([]montyCard, len(cards))
	for i, c := range cards {
		out[i] = known(c)
	}
	return out
}

func (m *Monty) OnGameStateUpdate(state domain.PublicGameState) {
	is := &m.informationSet
	is.everyoneFaceDown = append([]int(nil), state.FaceDownCounts...)

	if !m.setupSeen {
		for p, faceUp := range state.FaceUp {
			for _, c := range faceUp {
				is.everyoneHands[p] = append(is.everyoneHands[p], known(c))
				m.unseenCards[c]--
			}
		}
		is.phase = domain.PhaseSetup
		m.setupSeen = true
	} else if is.phase == domain.PhaseSetup {
		p := m.lastPlayer
		newFaceUp := state.FaceUp[p]
		is.everyoneFaceUp[p] = append(is.everyoneFaceUp[p], newFaceUp...)
		for _, c := range newFaceUp {
			removeMontyCard(&is.everyoneHands[p], known(c))
		}
		if state.Phase == domain.PhasePlay {
			is.phase = domain.PhasePlay
		}
	}

	is.pile = append(is.pile, state.LastCardsPlayed...)

	lastHand := &is.everyoneHands[m.lastPlayer]
	switch state.LastPlayedZone {
	case domain.ZoneHand:
		for _, c := range state.LastCardsPlayed {
			if !removeMontyCard(lastHand, known(c)) {
				removeMontyCard(lastHand, unknownCard)
				m.unseenCards[c]--
			}
		}
	case domain.ZoneFaceUp:
		faceUp := &is.everyoneFaceUp[m.lastPlayer]
		for _, c := range state.LastCardsPlayed {
			removeCard(faceUp, c)
		}
	case domain.ZoneFaceDown:
		for _, c := range state.LastCardsPlayed {
			m.unseenCards[c]--
		}
	}

	if state.PileSize == 0 {
		if m.lastPlayer != state.ActivePlayer {
			for _, c := range is.pile {
				*lastHand = append(*lastHand, known(c))
			}
		}
		is.pile = nil
	}

	m.lastPlayer = state.ActivePlayer
}

func (m *Monty) OnHandUpdate(hand []domain.Card) {
	// Monty derives its own hand from game-start/state-update events;
	// it never needs to look at a directly pushed hand snapshot.
	_ = hand
}

func removeMontyCard(slice *[]montyCard, target montyCard) bool {
	for i, mc := range *slice {
		if mc.known == target.known && (!mc.known || mc.card == target.card) {
			*slice = append((*slice)[:i], (*slice)[i+1:]...)
			return true
		}
	}
	return false
}

func removeCard(slice *[]domain.Card, target domain.Card) bool {
	for i, c := range *slice {
		if c == target {
			*slice = append((*slice)[:i], (*slice)[i+1:]...)
			return true
		}
	}
	return false
}

// ismcts runs numSims determinized playouts from root and returns the
// move with the most visits at the root.
func ismcts(numSims int, explorationVal float64, root *informationSet, unseen []domain.Card) []domain.Card {
	tree := []node{{parent: 0}}

	for i := 0; i < numSims; i++ {
		g := root.determinize(unseen)

		cur := 0
		for tree[cur].simulations > 0 {
			moves := simgame.AllMoves(g)
			if len(moves) == 0 {
				break
			}

			expanded := false
			for _, move := range moves {
				if !hasChildWithMove(tree, cur, move) {
					tree = append(tree, node{lastMove: move, parent: cur, lastPlayer: g.ActivePlayer})
					tree[cur].children = append(tree[cur].children, len(tree)-1)
					cur = len(tree) - 1
					g.TakeTurn(move)
					expanded = true
					break
				}
			}
			if expanded {
				break
			}

			best := -1
			bestScore := math.Inf(-1)
			for _, childIdx := range tree[cur].children {
				if !containsMove(moves, tree[childIdx].lastMove) {
					continue
				}
				score := ucb1(explorationVal, &tree[childIdx], tree[cur].simulations)
				if score > bestScore {
					bestScore = score
					best = childIdx
				}
			}
			if best == -1 {
				break
			}
			cur = best
			g.TakeTurn(tree[cur].lastMove)
			if len(tree[cur].children) == 0 {
				break
			}
		}

		winner := tree[cur].lastPlayer
		for !g.Complete() {
			moves := simgame.AllMoves(g)
			if len(moves) == 0 {
				break
			}
			move := moves[rand.Intn(len(moves))]
			winner = g.ActivePlayer
			g.TakeTurn(move)
		}

		for {
			if tree[cur].lastPlayer == winner {
				tree[cur].wins++
			}
			tree[cur].simulations++
			if cur == 0 {
				break
			}
			cur = tree[cur].parent
		}
	}

	best := -1
	bestSims := -1
	for _, childIdx := range tree[0].children {
		if tree[childIdx].simulations > bestSims {
			bestSims = tree[childIdx].simulations
			best = childIdx
		}
	}
	if best == -1 {
		return nil
	}
	return tree[best].lastMove
}

func hasChildWithMove(tree []node, parent int, move []domain.Card) bool {
	for _, childIdx := range tree[parent].children {
		if cardsEqual(tree[childIdx].lastMove, move) {
			return true
		}
	}
	return false
}

func containsMove(moves [][]domain.Card, move []domain.Card) bool {
	for _, m := range moves {
		if cardsEqual(m, move) {
			return true
		}
	}
	return false
}

func cardsEqual(a, b []domain.Card) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
