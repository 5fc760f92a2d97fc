package game

import "fmt"

// Cover is the settlement of one short position.
type Cover struct {
	Player      PlayerID `json:"playerId"`
	Name        string   `json:"name"`
	Instrument  string   `json:"instrument"`
	Quantity    int      `json:"quantity"`
	PriceOpened int      `json:"priceOpened"`
	PriceClosed int      `json:"priceClosed"`
	Profit      int      `json:"profit"`
}

// tradeable runs the checks shared by every turn-consuming trade.
func (r *Room) tradeable(actor PlayerID, code string, quantity int) (*Player, error) {
	p, err := r.requireTurn(actor)
	if err != nil {
		return nil, err
	}
	if _, err := r.instrument(code); err != nil {
		return nil, err
	}
	if err := r.checkLot(quantity); err != nil {
		return nil, err
	}
	if p.TransactionsRemaining <= 0 {
		return nil, ErrNoTransactionsLeft
	}
	return p, nil
}

func (r *Room) checkLot(quantity int) error {
	if quantity <= 0 || quantity%r.Rules.ShareLot != 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	return nil
}

// Buy purchases quantity shares of code at the current price.
func (r *Room) Buy(actor PlayerID, code string, quantity int) error {
	p, err := r.tradeable(actor, code, quantity)
	if err != nil {
		return err
	}
	price := r.Prices[code]
	if price == 0 {
		return fmt.Errorf("%w: %s", ErrNotTrading, code)
	}
	if owned := p.Portfolio[code]; quantity > r.Rules.MaxSharesPerInstrument-owned {
		return fmt.Errorf("%w: holding %d, cap %d", ErrShareLimitExceeded, owned, r.Rules.MaxSharesPerInstrument)
	}
	if quantity > p.Cash/price {
		return fmt.Errorf("%w: %d %s at %d, have %d", ErrInsufficientFunds, quantity, code, price, p.Cash)
	}
	cost := price * quantity
	p.Cash -= cost
	p.setShares(code, p.Portfolio[code]+quantity)
	p.useTransaction()
	r.logf("%s bought %d %s at %d", p.Name, quantity, code, price)
	r.refreshStatus(p, code)
	return nil
}

// Sell disposes of quantity shares of code at the current price.
func (r *Room) Sell(actor PlayerID, code string, quantity int) error {
	p, err := r.tradeable(actor, code, quantity)
	if err != nil {
		return err
	}
	if owned := p.Portfolio[code]; owned < quantity {
		return fmt.Errorf("%w: own %d %s", ErrInsufficientShares, owned, code)
	}
	price := r.Prices[code]
	p.Cash += price * quantity
	p.setShares(code, p.Portfolio[code]-quantity)
	p.useTransaction()
	r.logf("%s sold %d %s at %d", p.Name, quantity, code, price)
	r.refreshStatus(p, code)
	return nil
}

// ShortInitiate opens or adds to a short position, withholding the
// collateral from cash.
func (r *Room) ShortInitiate(actor PlayerID, code string, quantity int) error {
	p, err := r.tradeable(actor, code, quantity)
	if err != nil {
		return err
	}
	price := r.Prices[code]
	if price == 0 {
		return fmt.Errorf("%w: %s", ErrNotTrading, code)
	}
	if open := p.Shorts[code].Quantity; quantity > r.Rules.MaxSharesPerInstrument-open {
		return fmt.Errorf("%w: short %d, cap %d", ErrShareLimitExceeded, open, r.Rules.MaxSharesPerInstrument)
	}
	if quantity > p.Cash/price {
		return fmt.Errorf("%w: need %d collateral per share, have %d", ErrInsufficientFunds, price, p.Cash)
	}
	collateral := price * quantity
	p.Cash -= collateral
	pos := p.Shorts[code]
	pos.Quantity += quantity
	pos.Collateral += collateral
	pos.PriceOpened = pos.Collateral / pos.Quantity
	p.Shorts[code] = pos
	p.useTransaction()
	r.logf("%s shorted %d %s at %d", p.Name, quantity, code, price)
	return nil
}

// ShortCover closes the actor's short on code at the current price.
func (r *Room) ShortCover(actor PlayerID, code string) (Cover, error) {
	p, err := r.requireTurn(actor)
	if err != nil {
		return Cover{}, err
	}
	if _, err := r.instrument(code); err != nil {
		return Cover{}, err
	}
	if _, ok := p.Shorts[code]; !ok {
		return Cover{}, fmt.Errorf("%w: %s", ErrNoOpenShort, code)
	}
	if p.TransactionsRemaining <= 0 {
		return Cover{}, ErrNoTransactionsLeft
	}
	p.useTransaction()
	return r.cover(p, code), nil
}

// cover settles one short: the collateral comes back adjusted by the price move.
func (r *Room) cover(p *Player, code string) Cover {
	pos := p.Shorts[code]
	price := r.Prices[code]
	adj := 2*pos.Collateral - price*pos.Quantity
	delete(p.Shorts, code)

	p.Cash += adj
	c := Cover{
		Player:      p.ID,
		Name:        p.Name,
		Instrument:  code,
		Quantity:    pos.Quantity,
		PriceOpened: pos.PriceOpened,
		PriceClosed: price,
		Profit:      adj - pos.Collateral,
	}
	if c.Profit >= 0 {
		r.logf("%s covered %d %s at %d for a profit of %d", p.Name, pos.Quantity, code, price, c.Profit)
	} else {
		r.logf("%s covered %d %s at %d for a loss of %d", p.Name, pos.Quantity, code, price, -c.Profit)
	}
	if p.Cash < 0 {
		r.logf("%s could not cover a shortfall of %d", p.Name, -p.Cash)
		p.Cash = 0
	}
	return c
}

// coverAll settles every open short of p in instrument order.
func (r *Room) coverAll(p *Player) []Cover {
	var covers []Cover
	for _, in := range r.Rules.Instruments {
		if _, ok := p.Shorts[in.Code]; ok {
			covers = append(covers, r.cover(p, in.Code))
		}
	}
	return covers
}

// rightsPrice is half the initial price, rounded up.
func rightsPrice(initial int) int { return (initial + 1) / 2 }

// quoteRights validates a rights purchase and returns the granted share
// count and its cost without changing anything.
func (r *Room) quoteRights(p *Player, code string, desired, pricePerShare int) (int, int, error) {
	if desired <= 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidQuantity, desired)
	}
	owned := p.Portfolio[code]
	if eligible := owned / 2; desired > eligible {
		return 0, 0, fmt.Errorf("%w: own %d %s, eligible for %d", ErrRightsIneligible, owned, code, eligible)
	}
	granted := desired / r.Rules.ShareLot * r.Rules.ShareLot
	if granted == 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrRightsRoundingToZero, desired)
	}
	if owned+granted > r.Rules.MaxSharesPerInstrument {
		return 0, 0, fmt.Errorf("%w: holding %d, cap %d", ErrShareLimitExceeded, owned, r.Rules.MaxSharesPerInstrument)
	}
	cost := granted * pricePerShare
	if p.Cash < cost {
		return 0, 0, fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, cost, p.Cash)
	}
	return granted, cost, nil
}

func (r *Room) grantRights(p *Player, code string, granted, cost int) {
	p.Cash -= cost
	p.setShares(code, p.Portfolio[code]+granted)
	r.refreshStatus(p, code)
}

// PlayWindfall plays a LOAN, DEBENTURE or RIGHTS card from the actor's hand.
// target and desired are only read for RIGHTS.
func (r *Room) PlayWindfall(actor PlayerID, cardID int, target string, desired int) error {
	p, err := r.requireTurn(actor)
	if err != nil {
		return err
	}
	idx := p.cardIndex(cardID)
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrCardNotInHand, cardID)
	}
	card := &p.Hand[idx]
	switch {
	case card.Played:
		return fmt.Errorf("%w: %d", ErrCardAlreadyPlayed, cardID)
	case card.Kind != WindfallCard:
		return fmt.Errorf("%w: %s", ErrNotAWindfall, card)
	}

	switch card.Windfall {
	case Loan:
		p.Cash += r.Rules.LoanAmount
		r.logf("%s took a loan of %d", p.Name, r.Rules.LoanAmount)
	case Debenture:
		paid := 0
		for _, in := range r.Rules.Instruments {
			shares := p.Portfolio[in.Code]
			if shares == 0 || r.Prices[in.Code] != 0 {
				continue
			}
			p.Cash += shares * in.InitialPrice
			paid += shares * in.InitialPrice
			p.setShares(in.Code, 0)
			r.refreshStatus(p, in.Code)
			r.logf("%s redeemed %d %s at %d", p.Name, shares, in.Code, in.InitialPrice)
		}
		if paid == 0 {
			r.logf("%s played a debenture with nothing to redeem", p.Name)
		}
	case Rights:
		in, err := r.instrument(target)
		if err != nil {
			return err
		}
		perShare := rightsPrice(in.InitialPrice)
		granted, cost, err := r.quoteRights(p, in.Code, desired, perShare)
		if err != nil {
			return err
		}
		r.grantRights(p, in.Code, granted, cost)
		r.logf("%s took %d %s in a rights issue at %d", p.Name, granted, in.Code, perShare)
		if _, ok := r.RightsOffers[in.Code]; !ok {
			r.RightsOffers[in.Code] = &RightsOffer{
				Instrument:    in.Code,
				InitialPrice:  in.InitialPrice,
				PricePerShare: perShare,
				Period:        r.Period,
				Round:         r.RoundInPeriod,
				Originator:    p.ID,
				ExercisedBy:   map[PlayerID]int{},
			}
			r.logf("Rights offer open on %s at %d per share until the end of round %d", in.Code, perShare, r.RoundInPeriod)
		}
	}
	card.Played = true
	r.Discard = append(r.Discard, *card)
	return nil
}

// ExerciseGeneralRights buys into another player's rights offer on code.
func (r *Room) ExerciseGeneralRights(actor PlayerID, code string, desired int) error {
	p, err := r.requireTurn(actor)
	if err != nil {
		return err
	}
	if _, err := r.instrument(code); err != nil {
		return err
	}
	offer, ok := r.RightsOffers[code]
	if !ok || offer.Period != r.Period || offer.Round != r.RoundInPeriod {
		return fmt.Errorf("%w: %s", ErrNoActiveOffer, code)
	}
	if offer.Originator == p.ID {
		return fmt.Errorf("%w: offer on %s is your own", ErrRightsIneligible, code)
	}
	if _, done := offer.ExercisedBy[p.ID]; done {
		return fmt.Errorf("%w: %s", ErrRightsAlreadyExercised, code)
	}
	granted, cost, err := r.quoteRights(p, code, desired, offer.PricePerShare)
	if err != nil {
		return err
	}
	r.grantRights(p, code, granted, cost)
	offer.ExercisedBy[p.ID] = granted
	r.logf("%s exercised rights for %d %s at %d", p.Name, granted, code, offer.PricePerShare)
	return nil
}
