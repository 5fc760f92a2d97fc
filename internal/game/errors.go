package game

import "errors"

var (
	ErrNotYourTurn            = errors.New("not your turn")
	ErrNotAdmin               = errors.New("only the room admin can do that")
	ErrRoomNotFound           = errors.New("room not found")
	ErrRoomFull               = errors.New("room is full")
	ErrNameTaken              = errors.New("display name already taken in this room")
	ErrInvalidName            = errors.New("display name must not be empty")
	ErrInvalidQuantity        = errors.New("quantity must be a positive multiple of the share lot")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientShares     = errors.New("insufficient shares")
	ErrShareLimitExceeded     = errors.New("share limit exceeded")
	ErrInvalidInstrument      = errors.New("unknown instrument")
	ErrNotTrading             = errors.New("instrument is not trading")
	ErrCardNotInHand          = errors.New("card not in hand")
	ErrCardAlreadyPlayed      = errors.New("card already played")
	ErrNotAWindfall           = errors.New("card is not a windfall card")
	ErrRightsIneligible       = errors.New("not eligible for that many rights shares")
	ErrRightsRoundingToZero   = errors.New("rights request rounds down to zero shares")
	ErrRightsAlreadyExercised = errors.New("rights offer already exercised")
	ErrNoActiveOffer          = errors.New("no active rights offer for that instrument")
	ErrNoOpenShort            = errors.New("no open short position")
	ErrInvalidSessionToken    = errors.New("invalid session token")
	ErrGameAlreadyEnded       = errors.New("game already ended")
	ErrGameNotStarted         = errors.New("game has not started")
	ErrGameAlreadyStarted     = errors.New("game already started")
	ErrNotEnoughPlayers       = errors.New("not enough players to start")
	ErrAwaitingAdminDecision  = errors.New("waiting for the admin to resolve the period")
	ErrNotAwaitingDecision    = errors.New("the period checkpoint has not been reached")
	ErrPricesAlreadyResolved  = errors.New("prices already resolved for this period")
	ErrPricesNotResolved      = errors.New("prices must be resolved before advancing")
	ErrNoTransactionsLeft     = errors.New("no transactions left this round")
	ErrPlayerNotFound         = errors.New("player not found")
	ErrCannotKickSelf         = errors.New("admin cannot kick themselves")
	ErrNotInRoom              = errors.New("not joined to a room")
	ErrUnknownCommand         = errors.New("unknown command")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotYourTurn, "not_your_turn"},
	{ErrNotAdmin, "not_admin"},
	{ErrRoomNotFound, "room_not_found"},
	{ErrRoomFull, "room_full"},
	{ErrNameTaken, "name_taken"},
	{ErrInvalidName, "invalid_name"},
	{ErrInvalidQuantity, "invalid_quantity"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrInsufficientShares, "insufficient_shares"},
	{ErrShareLimitExceeded, "share_limit_exceeded"},
	{ErrInvalidInstrument, "invalid_instrument"},
	{ErrNotTrading, "not_trading"},
	{ErrCardNotInHand, "card_not_in_hand"},
	{ErrCardAlreadyPlayed, "card_already_played"},
	{ErrNotAWindfall, "not_a_windfall"},
	{ErrRightsIneligible, "rights_ineligible"},
	{ErrRightsRoundingToZero, "rights_rounding_to_zero"},
	{ErrRightsAlreadyExercised, "rights_already_exercised"},
	{ErrNoActiveOffer, "no_active_offer"},
	{ErrNoOpenShort, "no_open_short"},
	{ErrInvalidSessionToken, "invalid_session_token"},
	{ErrGameAlreadyEnded, "game_already_ended"},
	{ErrGameNotStarted, "game_not_started"},
	{ErrGameAlreadyStarted, "game_already_started"},
	{ErrNotEnoughPlayers, "not_enough_players"},
	{ErrAwaitingAdminDecision, "awaiting_admin_decision"},
	{ErrNotAwaitingDecision, "not_awaiting_decision"},
	{ErrPricesAlreadyResolved, "prices_already_resolved"},
	{ErrPricesNotResolved, "prices_not_resolved"},
	{ErrNoTransactionsLeft, "no_transactions_left"},
	{ErrPlayerNotFound, "player_not_found"},
	{ErrCannotKickSelf, "cannot_kick_self"},
	{ErrNotInRoom, "not_in_room"},
	{ErrUnknownCommand, "unknown_command"},
}

// ErrorCode maps an error returned by the engine to a stable wire code.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}
