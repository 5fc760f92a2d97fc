package game

import "time"

// InstrumentView lists chairmen and presidents by display name.
type InstrumentView struct {
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	Price        int      `json:"price"`
	InitialPrice int      `json:"initialPrice"`
	Chairmen     []string `json:"chairmen"`
	Presidents   []string `json:"presidents"`
}

type PlayerSummary struct {
	Name                  string         `json:"name"`
	Cash                  int            `json:"cash"`
	Portfolio             map[string]int `json:"portfolio"`
	Worth                 int            `json:"worth"`
	TransactionsRemaining int            `json:"transactionsRemaining"`
	Connected             bool           `json:"connected"`
	IsAdmin               bool           `json:"isAdmin"`
}

// RoomView is the part of a room every participant may see.
type RoomView struct {
	Code                    string           `json:"code"`
	Phase                   Phase            `json:"phase"`
	Period                  int              `json:"period"`
	Round                   int              `json:"round"`
	MaxRounds               int              `json:"maxRounds"`
	CurrentTurn             string           `json:"currentTurn,omitempty"`
	Admin                   string           `json:"admin,omitempty"`
	AwaitingAdminDecision   bool             `json:"awaitingAdminDecision"`
	PricesResolvedThisCycle bool             `json:"pricesResolvedThisCycle"`
	Instruments             []InstrumentView `json:"instruments"`
	RightsOffers            []RightsOffer    `json:"rightsOffers"`
	PriceLog                []PriceLogEntry  `json:"priceLog"`
	Players                 []PlayerSummary  `json:"players"`
	DeckRemaining           int              `json:"deckRemaining"`
	CreatedAt               time.Time        `json:"createdAt"`
}

// PrivateView is one player's own ledger, hand included.
type PrivateView struct {
	ID                    PlayerID                 `json:"id"`
	Name                  string                   `json:"name"`
	Cash                  int                      `json:"cash"`
	Portfolio             map[string]int           `json:"portfolio"`
	Shorts                map[string]ShortPosition `json:"shorts"`
	Hand                  []Card                   `json:"hand"`
	TransactionsRemaining int                      `json:"transactionsRemaining"`
}

// GameState is what a single participant receives after every change.
type GameState struct {
	Room       RoomView    `json:"room"`
	You        PrivateView `json:"you"`
	IsAdmin    bool        `json:"isAdmin"`
	IsYourTurn bool        `json:"isYourTurn"`
}

// View snapshots the public state. The result shares no memory with r.
func (r *Room) View() RoomView {
	v := RoomView{
		Code:                    r.Code,
		Phase:                   r.Phase(),
		Period:                  r.Period,
		Round:                   r.RoundInPeriod,
		MaxRounds:               r.Rules.MaxRoundsPerPeriod,
		AwaitingAdminDecision:   r.AwaitingAdminDecision,
		PricesResolvedThisCycle: r.PricesResolvedThisCycle,
		PriceLog:                copyPriceLog(r.PriceLog),
		DeckRemaining:           len(r.Deck),
		CreatedAt:               r.CreatedAt,
		Instruments:             make([]InstrumentView, 0, len(r.Rules.Instruments)),
		RightsOffers:            []RightsOffer{},
		Players:                 make([]PlayerSummary, 0, len(r.Players)),
	}
	if cur := r.CurrentPlayer(); cur != nil && !r.Ended {
		v.CurrentTurn = cur.Name
	}
	if admin, ok := r.Player(r.AdminID); ok {
		v.Admin = admin.Name
	}
	for _, in := range r.Rules.Instruments {
		v.Instruments = append(v.Instruments, InstrumentView{
			Code:         in.Code,
			Name:         in.Name,
			Price:        r.Prices[in.Code],
			InitialPrice: r.InitialPrices[in.Code],
			Chairmen:     r.namesIn(r.Chairmen[in.Code]),
			Presidents:   r.namesIn(r.Presidents[in.Code]),
		})
		if offer, ok := r.RightsOffers[in.Code]; ok {
			o := *offer
			o.ExercisedBy = make(map[PlayerID]int, len(offer.ExercisedBy))
			for id, n := range offer.ExercisedBy {
				o.ExercisedBy[id] = n
			}
			v.RightsOffers = append(v.RightsOffers, o)
		}
	}
	for _, p := range r.Players {
		v.Players = append(v.Players, PlayerSummary{
			Name:                  p.Name,
			Cash:                  p.Cash,
			Portfolio:             copyPrices(p.Portfolio),
			Worth:                 p.Worth(r.Prices),
			TransactionsRemaining: p.TransactionsRemaining,
			Connected:             p.Connected(),
			IsAdmin:               r.IsAdmin(p.ID),
		})
	}
	return v
}

// StateFor builds the view sent to player id.
func (r *Room) StateFor(id PlayerID) (GameState, bool) {
	p, ok := r.Player(id)
	if !ok {
		return GameState{}, false
	}
	shorts := make(map[string]ShortPosition, len(p.Shorts))
	for code, pos := range p.Shorts {
		shorts[code] = pos
	}
	cur := r.CurrentPlayer()
	return GameState{
		Room: r.View(),
		You: PrivateView{
			ID:                    p.ID,
			Name:                  p.Name,
			Cash:                  p.Cash,
			Portfolio:             copyPrices(p.Portfolio),
			Shorts:                shorts,
			Hand:                  append([]Card{}, p.Hand...),
			TransactionsRemaining: p.TransactionsRemaining,
		},
		IsAdmin:    r.IsAdmin(p.ID),
		IsYourTurn: cur != nil && cur.ID == p.ID && !r.AwaitingAdminDecision && !r.Ended,
	}, true
}

// namesIn lists the members of set in seat order.
func (r *Room) namesIn(set map[PlayerID]struct{}) []string {
	names := []string{}
	for _, p := range r.Players {
		if _, ok := set[p.ID]; ok {
			names = append(names, p.Name)
		}
	}
	return names
}
