package game

type PlayerID string

// ShortPosition tracks an open short. Collateral is the exact cash withheld
// across every addition; PriceOpened is the quantity-weighted average open price.
type ShortPosition struct {
	Quantity    int `json:"quantity"`
	PriceOpened int `json:"priceOpened"`
	Collateral  int `json:"collateral"`
}

type Player struct {
	ID                    PlayerID
	Name                  string
	ConnID                string
	Cash                  int
	Portfolio             map[string]int
	Shorts                map[string]ShortPosition
	Hand                  []Card
	TransactionsRemaining int
}

func newPlayer(id PlayerID, name, connID string, cash int) *Player {
	return &Player{
		ID:        id,
		Name:      name,
		ConnID:    connID,
		Cash:      cash,
		Portfolio: map[string]int{},
		Shorts:    map[string]ShortPosition{},
	}
}

// Connected reports whether the player currently has a transport handle.
func (p *Player) Connected() bool { return p.ConnID != "" }

// HoldingsValue is the market value of the portfolio at prices.
func (p *Player) HoldingsValue(prices map[string]int) int {
	total := 0
	for code, shares := range p.Portfolio {
		total += shares * prices[code]
	}
	return total
}

// Worth is cash plus portfolio value.
func (p *Player) Worth(prices map[string]int) int {
	return p.Cash + p.HoldingsValue(prices)
}

func (p *Player) cardIndex(id int) int {
	for i, c := range p.Hand {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// setShares writes a holding, removing the entry when it reaches zero.
func (p *Player) setShares(code string, shares int) {
	if shares <= 0 {
		delete(p.Portfolio, code)
		return
	}
	p.Portfolio[code] = shares
}

func (p *Player) useTransaction() {
	if p.TransactionsRemaining > 0 {
		p.TransactionsRemaining--
	}
}
