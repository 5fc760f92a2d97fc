package game

// Command is one inbound player intent against a room.
type Command interface {
	apply(r *Room, actor PlayerID) (Result, error)
}

// Result describes what a successful command changed beyond the room view.
type Result struct {
	// Dealt is set when fresh hands went out.
	Dealt      bool
	Resolution *Resolution
	Cover      *Cover
	Kicked     *Player
	Summary    *Summary
	// Activity holds the log entries the command appended.
	Activity []ActivityEntry
}

// Execute applies cmd for actor. A rejected command leaves the room unchanged.
func (r *Room) Execute(actor PlayerID, cmd Command) (Result, error) {
	seq := len(r.Activity)
	res, err := cmd.apply(r, actor)
	if err != nil {
		return Result{}, err
	}
	res.Activity = r.ActivitySince(seq)
	r.Touch()
	return res, nil
}

type StartGame struct{}

func (StartGame) apply(r *Room, actor PlayerID) (Result, error) {
	return Result{Dealt: true}, r.Start(actor)
}

type Buy struct {
	Instrument string `json:"instrument"`
	Quantity   int    `json:"quantity"`
}

func (c Buy) apply(r *Room, actor PlayerID) (Result, error) {
	return Result{}, r.Buy(actor, c.Instrument, c.Quantity)
}

type Sell struct {
	Instrument string `json:"instrument"`
	Quantity   int    `json:"quantity"`
}

func (c Sell) apply(r *Room, actor PlayerID) (Result, error) {
	return Result{}, r.Sell(actor, c.Instrument, c.Quantity)
}

type Pass struct{}

func (Pass) apply(r *Room, actor PlayerID) (Result, error) { return Result{}, r.Pass(actor) }

type EndTurn struct{}

func (EndTurn) apply(r *Room, actor PlayerID) (Result, error) { return Result{}, r.EndTurn(actor) }

type PlayWindfall struct {
	Card             int    `json:"card"`
	TargetInstrument string `json:"targetInstrument,omitempty"`
	DesiredShares    int    `json:"desiredShares,omitempty"`
}

func (c PlayWindfall) apply(r *Room, actor PlayerID) (Result, error) {
	return Result{}, r.PlayWindfall(actor, c.Card, c.TargetInstrument, c.DesiredShares)
}

type ExerciseGeneralRights struct {
	Instrument    string `json:"instrument"`
	DesiredShares int    `json:"desiredShares"`
}

func (c ExerciseGeneralRights) apply(r *Room, actor PlayerID) (Result, error) {
	return Result{}, r.ExerciseGeneralRights(actor, c.Instrument, c.DesiredShares)
}

type InitiateShort struct {
	Instrument string `json:"instrument"`
	Quantity   int    `json:"quantity"`
}

func (c InitiateShort) apply(r *Room, actor PlayerID) (Result, error) {
	return Result{}, r.ShortInitiate(actor, c.Instrument, c.Quantity)
}

type CoverShort struct {
	Instrument string `json:"instrument"`
}

func (c CoverShort) apply(r *Room, actor PlayerID) (Result, error) {
	cover, err := r.ShortCover(actor, c.Instrument)
	if err != nil {
		return Result{}, err
	}
	return Result{Cover: &cover}, nil
}

type ResolvePrices struct{}

func (ResolvePrices) apply(r *Room, actor PlayerID) (Result, error) {
	res, err := r.ResolvePrices(actor)
	if err != nil {
		return Result{}, err
	}
	return Result{Resolution: res}, nil
}

type AdvancePeriod struct{}

func (AdvancePeriod) apply(r *Room, actor PlayerID) (Result, error) {
	return Result{Dealt: true}, r.AdvancePeriod(actor)
}

type ResolveAndAdvance struct{}

func (ResolveAndAdvance) apply(r *Room, actor PlayerID) (Result, error) {
	res, err := r.ResolveAndAdvance(actor)
	if err != nil {
		return Result{}, err
	}
	return Result{Dealt: true, Resolution: res}, nil
}

type EndGame struct{}

func (EndGame) apply(r *Room, actor PlayerID) (Result, error) {
	s, err := r.EndGame(actor)
	if err != nil {
		return Result{}, err
	}
	return Result{Summary: s}, nil
}

type KickPlayer struct {
	DisplayName string `json:"displayName"`
}

func (c KickPlayer) apply(r *Room, actor PlayerID) (Result, error) {
	p, err := r.KickPlayer(actor, c.DisplayName)
	if err != nil {
		return Result{}, err
	}
	return Result{Kicked: p}, nil
}

type TransferAdmin struct {
	DisplayName string `json:"displayName"`
}

func (c TransferAdmin) apply(r *Room, actor PlayerID) (Result, error) {
	return Result{}, r.TransferAdmin(actor, c.DisplayName)
}
