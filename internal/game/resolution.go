package game

const (
	NegatedByChairman  = "negated_by_chairman"
	NegatedByPresident = "negated_by_president"
)

// Effect is one unplayed price card counted at resolution.
type Effect struct {
	Player     PlayerID `json:"playerId"`
	Name       string   `json:"name"`
	CardID     int      `json:"cardId"`
	Instrument string   `json:"instrument"`
	Change     int      `json:"change"`
	Negated    string   `json:"negated,omitempty"`
}

// Resolution describes what a ResolvePrices call did.
type Resolution struct {
	Period    int            `json:"period"`
	Round     int            `json:"round"`
	Effects   []Effect       `json:"effects"`
	Deltas    map[string]int `json:"deltas"`
	OldPrices map[string]int `json:"oldPrices"`
	NewPrices map[string]int `json:"newPrices"`
	Covers    []Cover        `json:"covers"`
}

// Negated returns the effect cancelled by a chairman or president, if any.
func (res *Resolution) Negated() (Effect, bool) {
	for _, e := range res.Effects {
		if e.Negated != "" {
			return e, true
		}
	}
	return Effect{}, false
}

// ResolvePrices nets every unplayed price card into new prices, settles all
// shorts and spends the cards. It runs once per admin-decision checkpoint.
func (r *Room) ResolvePrices(actor PlayerID) (*Resolution, error) {
	if err := r.requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := r.requireStarted(); err != nil {
		return nil, err
	}
	if !r.AwaitingAdminDecision {
		return nil, ErrNotAwaitingDecision
	}
	if r.PricesResolvedThisCycle {
		return nil, ErrPricesAlreadyResolved
	}

	res := &Resolution{
		Period:    r.Period,
		Round:     r.RoundInPeriod,
		Effects:   r.collectEffects(),
		Deltas:    map[string]int{},
		OldPrices: copyPrices(r.Prices),
	}
	if i := r.worstEffect(res.Effects); i >= 0 {
		e := &res.Effects[i]
		switch {
		case r.hasChairman(e.Instrument):
			e.Negated = NegatedByChairman
		case r.isPresident(e.Instrument, e.Player):
			e.Negated = NegatedByPresident
		}
		if e.Negated != "" {
			r.logf("%s %+d on %s was negated (%s)", e.Name, e.Change, e.Instrument, e.Negated)
		}
	}
	for _, e := range res.Effects {
		if e.Negated == "" {
			res.Deltas[e.Instrument] += e.Change
		}
	}
	for _, in := range r.Rules.Instruments {
		if d := res.Deltas[in.Code]; d != 0 {
			r.Prices[in.Code] = max(0, r.Prices[in.Code]+d)
			r.logf("%s moves %+d to %d", in.Code, d, r.Prices[in.Code])
		}
	}
	res.NewPrices = copyPrices(r.Prices)

	if !r.hasPriceLog(r.Period, r.RoundInPeriod) {
		r.PriceLog = append(r.PriceLog, PriceLogEntry{
			Period: r.Period,
			Round:  r.RoundInPeriod,
			Prices: copyPrices(r.Prices),
		})
	}
	for _, p := range r.Players {
		res.Covers = append(res.Covers, r.coverAll(p)...)
	}
	for _, p := range r.Players {
		r.HistoricalWorth = append(r.HistoricalWorth, WorthEntry{
			Period: r.Period,
			Player: p.ID,
			Name:   p.Name,
			Worth:  p.Worth(r.Prices),
		})
	}
	for _, p := range r.Players {
		for i := range p.Hand {
			if p.Hand[i].Kind == PriceCard && !p.Hand[i].Played {
				p.Hand[i].Played = true
				r.Discard = append(r.Discard, p.Hand[i])
			}
		}
	}
	r.PricesResolvedThisCycle = true
	r.logf("Prices resolved for period %d", r.Period)
	return res, nil
}

// collectEffects gathers unplayed price cards in seat order, then hand order.
func (r *Room) collectEffects() []Effect {
	var effects []Effect
	for _, p := range r.Players {
		for _, c := range p.Hand {
			if c.Kind != PriceCard || c.Played {
				continue
			}
			effects = append(effects, Effect{
				Player:     p.ID,
				Name:       p.Name,
				CardID:     c.ID,
				Instrument: c.Instrument,
				Change:     c.Change,
			})
		}
	}
	return effects
}

// worstEffect returns the index of the most negative effect, or -1 when no
// effect is negative. Ties go to the instrument listed first in the rules,
// then to collection order.
func (r *Room) worstEffect(effects []Effect) int {
	best := -1
	for i, e := range effects {
		if e.Change >= 0 {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := effects[best]
		if e.Change < b.Change ||
			(e.Change == b.Change && r.Rules.instrumentRank(e.Instrument) < r.Rules.instrumentRank(b.Instrument)) {
			best = i
		}
	}
	return best
}

func (r *Room) hasPriceLog(period, round int) bool {
	for _, e := range r.PriceLog {
		if e.Period == period && e.Round == round {
			return true
		}
	}
	return false
}
