package game

import (
	"fmt"
	"math/rand/v2"
)

type CardKind string

const (
	PriceCard    CardKind = "price"
	WindfallCard CardKind = "windfall"
)

type Windfall string

const (
	Loan      Windfall = "LOAN"
	Debenture Windfall = "DEBENTURE"
	Rights    Windfall = "RIGHTS"
)

var windfallKinds = []Windfall{Loan, Debenture, Rights}

// Card is either a price card moving one instrument or a windfall card.
// Only Played changes after the card is dealt.
type Card struct {
	ID         int      `json:"id"`
	Kind       CardKind `json:"kind"`
	Instrument string   `json:"instrument,omitempty"`
	Change     int      `json:"change,omitempty"`
	Windfall   Windfall `json:"windfall,omitempty"`
	Played     bool     `json:"played"`
}

func (c Card) String() string {
	if c.Kind == WindfallCard {
		return string(c.Windfall)
	}
	return fmt.Sprintf("%s %+d", c.Instrument, c.Change)
}

const goldenRatio64 = 0x9e3779b97f4a7c15

// NewRand returns a generator whose sequence is fully determined by seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^goldenRatio64))
}

// unitDeckSize is the number of cards in one copy of the full taxonomy.
func unitDeckSize(rules Rules) int {
	n := 0
	for _, in := range rules.Instruments {
		n += len(in.Moves) * rules.PriceCardCopies
	}
	return n + len(windfallKinds)*rules.WindfallCardCopies
}

// deckMultiplier is how many unit decks are needed so that dealing a full hand
// to every player still leaves MinReserve cards behind.
func deckMultiplier(rules Rules, playerCount int) int {
	unit := unitDeckSize(rules)
	if unit == 0 {
		return 1
	}
	need := playerCount*rules.HandSize + rules.MinReserve
	n := (need + unit - 1) / unit
	return max(1, n)
}

// BuildDeck produces a shuffled deck sized for playerCount players. Card IDs
// are sequential from 1 in build order; callers may renumber them.
func BuildDeck(rules Rules, playerCount int, rng *rand.Rand) []Card {
	n := deckMultiplier(rules, playerCount)
	cards := make([]Card, 0, n*unitDeckSize(rules))
	for _, in := range rules.Instruments {
		for _, move := range in.Moves {
			for range rules.PriceCardCopies * n {
				cards = append(cards, Card{
					ID:         len(cards) + 1,
					Kind:       PriceCard,
					Instrument: in.Code,
					Change:     move,
				})
			}
		}
	}
	for _, kind := range windfallKinds {
		for range rules.WindfallCardCopies * n {
			cards = append(cards, Card{ID: len(cards) + 1, Kind: WindfallCard, Windfall: kind})
		}
	}
	shuffle(cards, rng)
	return cards
}

// shuffle is a Fisher-Yates shuffle driven by rng.
func shuffle(cards []Card, rng *rand.Rand) {
	for i := len(cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		cards[i], cards[j] = cards[j], cards[i]
	}
}
