package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

type createRoomRequest struct {
	Nickname string `json:"nickname"`
}

type joinRoomRequest struct {
	Nickname string `json:"nickname"`
}

type startGameRequest struct {
	PlayerID string `json:"playerId"`
}

type addQuestionRequest struct {
	Text string `json:"text"`
}

type submitAnswerRequest struct {
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type submitGuessRequest struct {
	PlayerID       string `json:"playerId"`
	TargetPlayerID string `json:"targetPlayerId"`
	QuestionID     string `json:"questionId"`
	GuessedAnswer  string `json:"guessedAnswer"`
}

type roomResponse struct {
	Room   *Room   `json:"room"`
	Player *Player `json:"player,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps engine errors onto HTTP statuses. Everything in
// errors.go is recoverable by the caller, never fatal to the process.
func writeError(cfg *Config, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, ErrRoomNotFound), errors.Is(err, ErrPlayerNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrRoomNotJoinable),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrNotEnoughPlayers),
		errors.Is(err, ErrGameNotPlaying),
		errors.Is(err, ErrNotCurrentAnswerer),
		errors.Is(err, ErrAlreadyGuessed),
		errors.Is(err, ErrChoicesNotReady),
		errors.Is(err, ErrAnswerNotFound),
		errors.Is(err, ErrDuplicateAnswer),
		errors.Is(err, ErrNoActivePlayers):
		status = http.StatusConflict
	case errors.Is(err, ErrDistractorGeneration):
		status = http.StatusBadGateway
	case errors.Is(err, ErrStoreConflict):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		logf(cfg, "ERROR: %v", err)
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

func createRoomHandler(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createRoomRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Nickname) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "nickname is required"})
			return
		}

		room, owner, err := engine.CreateRoom(strings.TrimSpace(req.Nickname))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(w, http.StatusCreated, roomResponse{Room: room, Player: owner})
	}
}

func joinRoomHandler(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req joinRoomRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Nickname) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "nickname is required"})
			return
		}

		room, player, err := engine.JoinRoom(ps.ByName("roomid"), strings.TrimSpace(req.Nickname))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(w, http.StatusOK, roomResponse{Room: room, Player: player})
	}
}

func getRoomHandler(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := engine.GetRoom(ps.ByName("roomid"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(w, http.StatusOK, roomResponse{Room: room})
	}
}

func getPlayersHandler(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := engine.GetRoom(ps.ByName("roomid"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(w, http.StatusOK, room.Players)
	}
}

func getGameStateHandler(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room, err := engine.GetRoom(ps.ByName("roomid"))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(w, http.StatusOK, room.GameState)
	}
}

func startGameHandler(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req startGameRequest
		if !decodeBody(w, r, &req) {
			return
		}

		room, err := engine.StartGame(ps.ByName("roomid"), req.PlayerID)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(w, http.StatusOK, roomResponse{Room: room})
	}
}

func addQuestionHandler(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req addQuestionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question text is required"})
			return
		}

		question, err := engine.AddQuestion(ps.ByName("roomid"), strings.TrimSpace(req.Text))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(w, http.StatusCreated, question)
	}
}

func submitAnswerHandler(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req submitAnswerRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Answer) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "answer is required"})
			return
		}

		room, err := engine.SubmitAnswer(r.Context(), ps.ByName("roomid"), req.PlayerID, req.QuestionID, strings.TrimSpace(req.Answer))
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(w, http.StatusOK, roomResponse{Room: room})
	}
}

func submitGuessHandler(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		var req submitGuessRequest
		if !decodeBody(w, r, &req) {
			return
		}

		result, _, err := engine.SubmitGuess(ps.ByName("roomid"), req.PlayerID, req.TargetPlayerID, req.QuestionID, req.GuessedAnswer)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func leaveRoomHandler(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if err := engine.LeaveRoom(ps.ByName("roomid"), ps.ByName("playerid")); err != nil {
			writeError(cfg, w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// qrHandler generates a PNG QR code pointing at the room's join URL,
// respecting TLS and X-Forwarded-Proto behind a proxy.
func qrHandler(cfg *Config, engine *Engine) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		startTime := time.Now()

		roomID := ps.ByName("roomid")
		if _, err := engine.GetRoom(roomID); err != nil {
			writeError(cfg, w, err)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		url := scheme + "://" + r.Host + cfg.prefix + "/rooms/" + roomID

		const qrSize = 320
		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			writeError(cfg, w, err)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)

		logf(cfg, "SERVE: QR code (%s) for room %s to %s in %s",
			humanReadableSize(int64(len(png))),
			roomID,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// registerGameRoutes sets up the room/game API:
//   - POST   /api/rooms                             → create room
//   - GET    /api/rooms/:roomid                     → room snapshot
//   - POST   /api/rooms/:roomid/join                → join room
//   - GET    /api/rooms/:roomid/players             → player listing
//   - GET    /api/rooms/:roomid/game                → game state
//   - POST   /api/rooms/:roomid/start               → start game
//   - POST   /api/rooms/:roomid/questions           → add question
//   - POST   /api/rooms/:roomid/answers             → submit true answer
//   - POST   /api/rooms/:roomid/guesses             → submit guess
//   - DELETE /api/rooms/:roomid/players/:playerid   → leave room
//   - GET    /rooms/:roomid/ws                      → change notifications
//   - GET    /rooms/:roomid/qr                      → join URL QR code
func registerGameRoutes(cfg *Config, mux *httprouter.Router, engine *Engine, hubs *hubManager) {
	mux.POST(cfg.prefix+"/api/rooms", createRoomHandler(cfg, engine))
	mux.GET(cfg.prefix+"/api/rooms/:roomid", getRoomHandler(cfg, engine))
	mux.POST(cfg.prefix+"/api/rooms/:roomid/join", joinRoomHandler(cfg, engine))
	mux.GET(cfg.prefix+"/api/rooms/:roomid/players", getPlayersHandler(cfg, engine))
	mux.GET(cfg.prefix+"/api/rooms/:roomid/game", getGameStateHandler(cfg, engine))
	mux.POST(cfg.prefix+"/api/rooms/:roomid/start", startGameHandler(cfg, engine))
	mux.POST(cfg.prefix+"/api/rooms/:roomid/questions", addQuestionHandler(cfg, engine))
	mux.POST(cfg.prefix+"/api/rooms/:roomid/answers", submitAnswerHandler(cfg, engine))
	mux.POST(cfg.prefix+"/api/rooms/:roomid/guesses", submitGuessHandler(cfg, engine))
	mux.DELETE(cfg.prefix+"/api/rooms/:roomid/players/:playerid", leaveRoomHandler(cfg, engine))

	mux.GET(cfg.prefix+"/rooms/:roomid/ws", serveRoomWS(cfg, hubs))
	mux.GET(cfg.prefix+"/rooms/:roomid/qr", qrHandler(cfg, engine))
}
