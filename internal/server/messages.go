package server

import (
	"encoding/json"
	"fmt"

	"github.com/example/stock-exchange/internal/game"
)

// Message is one inbound event from a participant.
type Message struct {
	Type     string          `json:"type"`
	RoomCode string          `json:"roomCode,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// WSOut is one outbound event.
type WSOut struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Inbound event types.
const (
	MsgCreateRoom            = "createRoom"
	MsgJoinRoom              = "joinRoom"
	MsgRejoinWithToken       = "rejoinWithToken"
	MsgStartGame             = "startGame"
	MsgKickPlayer            = "kickPlayer"
	MsgTransferAdmin         = "transferAdmin"
	MsgBuy                   = "buy"
	MsgSell                  = "sell"
	MsgPass                  = "pass"
	MsgEndTurn               = "endTurn"
	MsgWindfall              = "windfall"
	MsgExerciseGeneralRights = "exerciseGeneralRights"
	MsgInitiateShortSell     = "initiateShortSell"
	MsgCoverShortPosition    = "coverShortPosition"
	MsgResolvePrices         = "adminResolvePeriodAndDeal"
	MsgAdvancePeriod         = "adminAdvanceToNewPeriod_DealCards"
	MsgResolveAndAdvance     = "adminResolveAndAdvance"
	MsgEndGame               = "adminEndGameRequest"
)

// Outbound event types.
const (
	EventRoomCreated  = "roomCreated"
	EventJoinedRoom   = "joinedRoom"
	EventRejoinedRoom = "rejoinedRoom"
	EventPlayerList   = "playerList"
	EventGameState    = "gameState"
	EventDealCards    = "dealCards"
	EventActivityLog  = "activityLog"
	EventKicked       = "kicked"
	EventError        = "error"
	EventInfo         = "info"
	EventGameSummary  = "gameSummaryReceived"
)

type joinPayload struct {
	DisplayName string `json:"displayName"`
}

type rejoinPayload struct {
	Token string `json:"token"`
}

type roomCreatedPayload struct {
	RoomCode string `json:"roomCode"`
}

type joinedPayload struct {
	RoomCode      string `json:"roomCode"`
	DisplayName   string `json:"displayName"`
	Token         string `json:"token"`
	IsFirstPlayer bool   `json:"isFirstPlayer"`
	IsAdmin       bool   `json:"isAdmin"`
}

type rejoinedPayload struct {
	RoomCode    string `json:"roomCode"`
	DisplayName string `json:"displayName"`
	IsAdmin     bool   `json:"isAdmin"`
}

type playerListPayload struct {
	RoomCode string               `json:"roomCode"`
	Players  []game.PlayerSummary `json:"players"`
}

type dealCardsPayload struct {
	Period int         `json:"period"`
	Hand   []game.Card `json:"hand"`
}

type activityPayload struct {
	Entries []game.ActivityEntry `json:"entries"`
	// Full is set when Entries is the whole log rather than a delta.
	Full bool `json:"full,omitempty"`
}

type kickedPayload struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type infoPayload struct {
	Message string `json:"message"`
}

type summaryPayload struct {
	Summary *game.Summary `json:"summary"`
}

// decodeAs builds a command decoder for payload type T. An empty payload
// decodes to the zero value.
func decodeAs[T game.Command]() func(json.RawMessage) (game.Command, error) {
	return func(raw json.RawMessage) (game.Command, error) {
		var cmd T
		if len(raw) == 0 {
			return cmd, nil
		}
		if err := json.Unmarshal(raw, &cmd); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return cmd, nil
	}
}

var commandDecoders = map[string]func(json.RawMessage) (game.Command, error){
	MsgStartGame:             decodeAs[game.StartGame](),
	MsgKickPlayer:            decodeAs[game.KickPlayer](),
	MsgTransferAdmin:         decodeAs[game.TransferAdmin](),
	MsgBuy:                   decodeAs[game.Buy](),
	MsgSell:                  decodeAs[game.Sell](),
	MsgPass:                  decodeAs[game.Pass](),
	MsgEndTurn:               decodeAs[game.EndTurn](),
	MsgWindfall:              decodeAs[game.PlayWindfall](),
	MsgExerciseGeneralRights: decodeAs[game.ExerciseGeneralRights](),
	MsgInitiateShortSell:     decodeAs[game.InitiateShort](),
	MsgCoverShortPosition:    decodeAs[game.CoverShort](),
	MsgResolvePrices:         decodeAs[game.ResolvePrices](),
	MsgAdvancePeriod:         decodeAs[game.AdvancePeriod](),
	MsgResolveAndAdvance:     decodeAs[game.ResolveAndAdvance](),
	MsgEndGame:               decodeAs[game.EndGame](),
}
