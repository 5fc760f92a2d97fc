package game

import (
	"fmt"
	"sort"
	"time"
)

// requireAdmin rejects non-admin actors and ended games, in that order.
func (r *Room) requireAdmin(actor PlayerID) error {
	if !r.IsAdmin(actor) {
		return ErrNotAdmin
	}
	if r.Ended {
		return ErrGameAlreadyEnded
	}
	return nil
}

func (r *Room) requireStarted() error {
	if r.Ended {
		return ErrGameAlreadyEnded
	}
	if !r.Started {
		return ErrGameNotStarted
	}
	return nil
}

// requireTurn returns the acting player if they may take a turn action now.
func (r *Room) requireTurn(actor PlayerID) (*Player, error) {
	if err := r.requireStarted(); err != nil {
		return nil, err
	}
	p, ok := r.Player(actor)
	if !ok {
		return nil, ErrPlayerNotFound
	}
	if r.AwaitingAdminDecision {
		return nil, ErrAwaitingAdminDecision
	}
	if cur := r.CurrentPlayer(); cur == nil || cur.ID != p.ID {
		return nil, ErrNotYourTurn
	}
	return p, nil
}

// openPeriod rotates the opening seat by one per period.
func (r *Room) openPeriod() {
	r.Opener = 0
	if len(r.Players) > 0 {
		r.Opener = (r.Period - 1) % len(r.Players)
	}
	r.CurrentTurn = r.Opener
}

// Start deals the first period.
func (r *Room) Start(actor PlayerID) error {
	if err := r.requireAdmin(actor); err != nil {
		return err
	}
	if r.Started {
		return ErrGameAlreadyStarted
	}
	if len(r.Players) < r.Rules.MinPlayersToStart {
		return fmt.Errorf("%w: have %d, need %d", ErrNotEnoughPlayers, len(r.Players), r.Rules.MinPlayersToStart)
	}
	r.Started = true
	r.Period = 1
	r.RoundInPeriod = 1
	r.openPeriod()
	r.deal()
	r.resetTransactions()
	r.logf("Game started with %d players; %s opens period 1", len(r.Players), r.CurrentPlayer().Name)
	return nil
}

// Pass gives up the rest of the turn.
func (r *Room) Pass(actor PlayerID) error { return r.finishTurn(actor, "passed") }

// EndTurn hands the turn to the next player.
func (r *Room) EndTurn(actor PlayerID) error { return r.finishTurn(actor, "ended their turn") }

func (r *Room) finishTurn(actor PlayerID, verb string) error {
	p, err := r.requireTurn(actor)
	if err != nil {
		return err
	}
	p.useTransaction()
	r.logf("%s %s", p.Name, verb)
	r.CurrentTurn = (r.CurrentTurn + 1) % len(r.Players)
	if r.CurrentTurn == r.Opener {
		r.completeRound()
	}
	return nil
}

func (r *Room) completeRound() {
	clear(r.RightsOffers)
	if r.RoundInPeriod%r.Rules.MaxRoundsPerPeriod == 0 {
		if !r.AwaitingAdminDecision {
			r.AwaitingAdminDecision = true
			r.logf("Round %d complete; waiting for the admin to resolve period %d", r.RoundInPeriod, r.Period)
		}
		return
	}
	r.RoundInPeriod++
	r.resetTransactions()
	r.logf("Round %d begins; %s to play", r.RoundInPeriod, r.CurrentPlayer().Name)
}

func (r *Room) resetTransactions() {
	for _, p := range r.Players {
		p.TransactionsRemaining = r.Rules.TransactionsPerRound
	}
}

// deal rebuilds the deck and replaces every hand.
func (r *Room) deal() {
	deck := BuildDeck(r.Rules, len(r.Players), r.rng)
	for i := range deck {
		r.cardSeq++
		deck[i].ID = r.cardSeq
	}
	r.Discard = nil
	for _, p := range r.Players {
		n := min(r.Rules.HandSize, len(deck))
		p.Hand = append([]Card(nil), deck[:n]...)
		deck = deck[n:]
	}
	r.Deck = deck
}

// AdvancePeriod opens the next period after prices have been resolved.
func (r *Room) AdvancePeriod(actor PlayerID) error {
	if err := r.requireAdmin(actor); err != nil {
		return err
	}
	if err := r.requireStarted(); err != nil {
		return err
	}
	if !r.PricesResolvedThisCycle {
		return ErrPricesNotResolved
	}
	r.Period++
	r.RoundInPeriod = 1
	r.deal()
	r.resetTransactions()
	r.openPeriod()
	r.AwaitingAdminDecision = false
	r.PricesResolvedThisCycle = false
	clear(r.RightsOffers)
	r.logf("Period %d begins; fresh cards dealt; %s opens", r.Period, r.CurrentPlayer().Name)
	return nil
}

// ResolveAndAdvance runs both admin sub-actions in one step. Prices already
// resolved this cycle are not resolved again.
func (r *Room) ResolveAndAdvance(actor PlayerID) (*Resolution, error) {
	if err := r.requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := r.requireStarted(); err != nil {
		return nil, err
	}
	var res *Resolution
	if !r.PricesResolvedThisCycle {
		var err error
		if res, err = r.ResolvePrices(actor); err != nil {
			return nil, err
		}
	}
	if err := r.AdvancePeriod(actor); err != nil {
		return nil, err
	}
	return res, nil
}

// Standing is one player's final position.
type Standing struct {
	Rank     int      `json:"rank"`
	PlayerID PlayerID `json:"playerId"`
	Name     string   `json:"name"`
	Cash     int      `json:"cash"`
	Holdings int      `json:"holdings"`
	Worth    int      `json:"worth"`
}

// Summary is the outcome of a finished game.
type Summary struct {
	RoomCode        string          `json:"roomCode"`
	Periods         int             `json:"periods"`
	EndedAt         time.Time       `json:"endedAt"`
	Standings       []Standing      `json:"standings"`
	FinalPrices     map[string]int  `json:"finalPrices"`
	PriceLog        []PriceLogEntry `json:"priceLog"`
	HistoricalWorth []WorthEntry    `json:"historicalWorth"`
}

// EndGame closes the room to further play. It is valid from any phase; open
// shorts are settled at current prices before worth is computed.
func (r *Room) EndGame(actor PlayerID) (*Summary, error) {
	if err := r.requireAdmin(actor); err != nil {
		return nil, err
	}
	for _, p := range r.Players {
		r.coverAll(p)
	}
	r.Ended = true
	r.AwaitingAdminDecision = false
	r.PricesResolvedThisCycle = false
	clear(r.RightsOffers)

	s := &Summary{
		RoomCode:        r.Code,
		Periods:         r.Period,
		EndedAt:         r.clock.Now(),
		FinalPrices:     copyPrices(r.Prices),
		PriceLog:        copyPriceLog(r.PriceLog),
		HistoricalWorth: append([]WorthEntry(nil), r.HistoricalWorth...),
	}
	for _, p := range r.Players {
		holdings := p.HoldingsValue(r.Prices)
		s.Standings = append(s.Standings, Standing{
			PlayerID: p.ID,
			Name:     p.Name,
			Cash:     p.Cash,
			Holdings: holdings,
			Worth:    p.Cash + holdings,
		})
	}
	sort.SliceStable(s.Standings, func(i, j int) bool {
		return s.Standings[i].Worth > s.Standings[j].Worth
	})
	for i := range s.Standings {
		s.Standings[i].Rank = i + 1
		if i > 0 && s.Standings[i].Worth == s.Standings[i-1].Worth {
			s.Standings[i].Rank = s.Standings[i-1].Rank
		}
	}
	if len(s.Standings) > 0 {
		r.logf("Game over; %s finishes first with %d", s.Standings[0].Name, s.Standings[0].Worth)
	} else {
		r.logf("Game over")
	}
	return s, nil
}

// KickPlayer removes another player. The turn stays with the same logical
// player, or passes to the next one if the kicked player held it.
func (r *Room) KickPlayer(actor PlayerID, name string) (*Player, error) {
	if err := r.requireAdmin(actor); err != nil {
		return nil, err
	}
	target, ok := r.PlayerByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPlayerNotFound, name)
	}
	if target.ID == actor {
		return nil, ErrCannotKickSelf
	}
	idx := r.seat(target.ID)
	heldTurn := r.Started && !r.AwaitingAdminDecision && idx == r.CurrentTurn
	wasOpener := idx == r.Opener
	r.removeSeat(idx)
	for code, offer := range r.RightsOffers {
		if offer.Originator == target.ID {
			delete(r.RightsOffers, code)
		}
	}
	r.logf("%s was removed from the room", target.Name)
	// The turn moved on to the next seat; if that seat opens the round,
	// everyone else has already played it.
	if heldTurn && !wasOpener && r.CurrentTurn == r.Opener && !r.Ended {
		r.completeRound()
	}
	return target, nil
}

// TransferAdmin hands the admin role to another player.
func (r *Room) TransferAdmin(actor PlayerID, name string) error {
	if err := r.requireAdmin(actor); err != nil {
		return err
	}
	target, ok := r.PlayerByName(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrPlayerNotFound, name)
	}
	if target.ID == actor {
		return nil
	}
	from, _ := r.Player(actor)
	r.AdminID = target.ID
	r.AdminConn = target.ConnID
	r.logf("%s handed admin to %s", from.Name, target.Name)
	return nil
}

func copyPrices(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyPriceLog(log []PriceLogEntry) []PriceLogEntry {
	out := make([]PriceLogEntry, len(log))
	for i, e := range log {
		out[i] = PriceLogEntry{Period: e.Period, Round: e.Round, Prices: copyPrices(e.Prices)}
	}
	return out
}
