package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/stock-exchange/internal/game"
)

type roomListing struct {
	Code       string     `json:"code"`
	Phase      game.Phase `json:"phase"`
	Started    bool       `json:"started"`
	Ended      bool       `json:"ended"`
	Players    int        `json:"players"`
	Period     int        `json:"period"`
	Round      int        `json:"round"`
	LastActive time.Time  `json:"lastActive"`
}

// RegisterAPI mounts the room endpoints. Authentication is the caller's job.
func (gs *GameServer) RegisterAPI(api *mux.Router) {
	api.HandleFunc("/rooms", gs.HandleListRooms).Methods(http.MethodGet)
	api.HandleFunc("/rooms", gs.HandleCreateRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{code}", gs.HandleGetRoom).Methods(http.MethodGet)
}

// HandleWS upgrades the request and attaches a new participant.
func (gs *GameServer) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := gs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		gs.logger.Warn("WebSocket upgrade", "remote", r.RemoteAddr, "err", err)
		return
	}
	newWSClient(conn, gs).Start()
}

func (gs *GameServer) HandleListRooms(w http.ResponseWriter, r *http.Request) {
	gs.roomsMu.RLock()
	resp := make([]roomListing, 0, len(gs.rooms))
	for _, entry := range gs.rooms {
		entry.mu.Lock()
		room := entry.game
		resp = append(resp, roomListing{
			Code:       room.Code,
			Phase:      room.Phase(),
			Started:    room.Started,
			Ended:      room.Ended,
			Players:    len(room.Players),
			Period:     room.Period,
			Round:      room.RoundInPeriod,
			LastActive: room.LastActive,
		})
		entry.mu.Unlock()
	}
	gs.roomsMu.RUnlock()
	// sort for stable output
	sort.Slice(resp, func(i, j int) bool { return resp[i].Code < resp[j].Code })
	writeJSON(w, http.StatusOK, resp)
}

func (gs *GameServer) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	code := gs.CreateRoom()
	writeJSON(w, http.StatusCreated, roomCreatedPayload{RoomCode: code})
}

func (gs *GameServer) HandleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	entry := gs.getRoom(code)
	if entry == nil {
		writeJSON(w, http.StatusNotFound, errorPayload{Code: game.ErrorCode(game.ErrRoomNotFound), Message: "room not found"})
		return
	}
	entry.mu.Lock()
	view := entry.game.View()
	entry.mu.Unlock()
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
