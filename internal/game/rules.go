package game

import (
	"errors"
	"fmt"
	"strings"
)

// Instrument is one tradable company.
type Instrument struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	InitialPrice int    `json:"initialPrice"`
	// Moves lists the signed price changes printed on this company's cards.
	Moves []int `json:"-"`
}

// Rules holds every tunable constant of a room.
type Rules struct {
	StartingCash           int
	MaxPlayers             int
	MinPlayersToStart      int
	HandSize               int
	MinReserve             int
	MaxRoundsPerPeriod     int
	TransactionsPerRound   int
	ShareLot               int
	MaxSharesPerInstrument int
	ChairmanThreshold      int
	PresidentThreshold     int
	LoanAmount             int
	PriceCardCopies        int
	WindfallCardCopies     int
	Instruments            []Instrument
}

func DefaultRules() Rules {
	return Rules{
		StartingCash:           600_000,
		MaxPlayers:             12,
		MinPlayersToStart:      2,
		HandSize:               10,
		MinReserve:             50,
		MaxRoundsPerPeriod:     3,
		TransactionsPerRound:   3,
		ShareLot:               1_000,
		MaxSharesPerInstrument: 200_000,
		ChairmanThreshold:      100_000,
		PresidentThreshold:     50_000,
		LoanAmount:             200_000,
		PriceCardCopies:        3,
		WindfallCardCopies:     2,
		Instruments: []Instrument{
			{Code: "ATLS", Name: "Atlas Steel", InitialPrice: 25, Moves: []int{-10, -5, 5, 10, 15}},
			{Code: "BRDG", Name: "Bridgewater Pharma", InitialPrice: 30, Moves: []int{-15, -10, -5, 5, 10, 15}},
			{Code: "CRWN", Name: "Crown Motors", InitialPrice: 40, Moves: []int{-20, -10, -5, 5, 10, 20}},
			{Code: "DLTA", Name: "Delta Energy", InitialPrice: 55, Moves: []int{-25, -15, -5, 5, 15, 25}},
			{Code: "EMRL", Name: "Emerald Bank", InitialPrice: 75, Moves: []int{-30, -20, -10, 10, 20, 30}},
			{Code: "FRGE", Name: "Forge Infotech", InitialPrice: 80, Moves: []int{-35, -25, -15, 15, 25, 35}},
		},
	}
}

// Instrument looks up an instrument by code.
func (r Rules) Instrument(code string) (Instrument, bool) {
	for _, in := range r.Instruments {
		if in.Code == code {
			return in, true
		}
	}
	return Instrument{}, false
}

// instrumentRank orders instruments by their position in the rules; unknown codes sort last.
func (r Rules) instrumentRank(code string) int {
	for i, in := range r.Instruments {
		if in.Code == code {
			return i
		}
	}
	return len(r.Instruments)
}

// Validate checks that the rules describe a playable game.
func (r Rules) Validate() error {
	var errs []error
	positive := map[string]int{
		"starting cash":             r.StartingCash,
		"max players":               r.MaxPlayers,
		"min players to start":      r.MinPlayersToStart,
		"hand size":                 r.HandSize,
		"max rounds per period":     r.MaxRoundsPerPeriod,
		"transactions per round":    r.TransactionsPerRound,
		"share lot":                 r.ShareLot,
		"max shares per instrument": r.MaxSharesPerInstrument,
		"chairman threshold":        r.ChairmanThreshold,
		"president threshold":       r.PresidentThreshold,
		"price card copies":         r.PriceCardCopies,
		"windfall card copies":      r.WindfallCardCopies,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	if r.MinReserve < 0 {
		errs = append(errs, fmt.Errorf("min reserve must not be negative, got %d", r.MinReserve))
	}
	if r.LoanAmount < 0 {
		errs = append(errs, fmt.Errorf("loan amount must not be negative, got %d", r.LoanAmount))
	}
	if r.MinPlayersToStart > r.MaxPlayers {
		errs = append(errs, fmt.Errorf("min players to start (%d) exceeds max players (%d)", r.MinPlayersToStart, r.MaxPlayers))
	}
	if r.ChairmanThreshold > r.MaxSharesPerInstrument || r.PresidentThreshold > r.MaxSharesPerInstrument {
		errs = append(errs, fmt.Errorf("status thresholds must not exceed the per-instrument cap of %d", r.MaxSharesPerInstrument))
	}
	if r.PresidentThreshold > r.ChairmanThreshold {
		errs = append(errs, fmt.Errorf("president threshold (%d) exceeds chairman threshold (%d)", r.PresidentThreshold, r.ChairmanThreshold))
	}
	if len(r.Instruments) == 0 {
		errs = append(errs, errors.New("at least one instrument is required"))
	}
	seen := map[string]bool{}
	for _, in := range r.Instruments {
		code := strings.TrimSpace(in.Code)
		switch {
		case code == "":
			errs = append(errs, errors.New("instrument code must not be empty"))
		case seen[code]:
			errs = append(errs, fmt.Errorf("duplicate instrument %q", code))
		}
		seen[code] = true
		if in.InitialPrice <= 0 {
			errs = append(errs, fmt.Errorf("instrument %q needs a positive initial price", code))
		}
		if len(in.Moves) == 0 {
			errs = append(errs, fmt.Errorf("instrument %q has no price moves", code))
		}
		for _, m := range in.Moves {
			if m == 0 {
				errs = append(errs, fmt.Errorf("instrument %q has a zero price move", code))
			}
		}
	}
	return errors.Join(errs...)
}
