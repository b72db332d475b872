/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

// Routes for authoring quizzes and running games:
//   - /api/admin/quiz[/:id]         → quiz CRUD
//   - /api/game/start|join|answer   → session lifecycle and scoring
//   - /api/game/:code[/...]         → session state, players, leaderboard, QR
//   - /ws/:code/:name[?ticket=...]  → realtime channel for one participant

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Seednode/quizbox/games/quiz"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

const (
	maxBodySize = 1 << 20
	qrSize      = 320
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type startRequest struct {
	QuizID uint `json:"quiz_id"`
}

type joinRequest struct {
	Code string `json:"game_code"`
	Name string `json:"player_name"`
}

// apiFunc returns the status and body of a successful call. A nil body
// is sent as an empty response.
type apiFunc func(r *http.Request, p httprouter.Params) (int, any, error)

func badRequest(format string, args ...any) error {
	return &quiz.Error{Kind: quiz.KindValidationFailed, Reason: fmt.Sprintf(format, args...)}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	if body == nil {
		w.WriteHeader(status)

		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return badRequest("request body exceeds %s", humanReadableSize(tooLarge.Limit))
		}

		return badRequest("malformed request body: %v", err)
	}

	return nil
}

func parseID(p httprouter.Params, name string) (uint, error) {
	id, err := strconv.ParseUint(p.ByName(name), 10, 64)
	if err != nil || id == 0 {
		return 0, badRequest("invalid %s %q", name, p.ByName(name))
	}

	return uint(id), nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}

	return n, nil
}

func serveAPI(cfg *Config, h apiFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("X-Request-Id", uuid.NewString())
		securityHeaders(cfg, w)

		cw := &countingWriter{ResponseWriter: w}

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		}

		status, body, err := h(r, p)
		if err != nil {
			writeError(cfg, cw, r, err)

			return
		}

		writeJSON(cw, status, body)

		logf(cfg, "SERVE: %s %s (%s) to %s in %s",
			r.Method,
			r.URL.Path,
			humanReadableSize(cw.written),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func createQuiz(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, _ httprouter.Params) (int, any, error) {
		var in quiz.QuizInput
		if err := decodeBody(r, &in); err != nil {
			return 0, nil, err
		}

		q, err := co.Store().CreateQuiz(r.Context(), in)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusCreated, q, nil
	}
}

func listQuizzes(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, _ httprouter.Params) (int, any, error) {
		offset, err := queryInt(r, "offset", 0)
		if err != nil {
			return 0, nil, err
		}

		limit, err := queryInt(r, "limit", 20)
		if err != nil {
			return 0, nil, err
		}

		quizzes, err := co.Store().ListQuizzes(r.Context(), offset, limit)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, quizzes, nil
	}
}

func getQuiz(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, p httprouter.Params) (int, any, error) {
		id, err := parseID(p, "id")
		if err != nil {
			return 0, nil, err
		}

		q, err := co.Store().Quiz(r.Context(), id)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, q, nil
	}
}

func updateQuiz(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, p httprouter.Params) (int, any, error) {
		id, err := parseID(p, "id")
		if err != nil {
			return 0, nil, err
		}

		var in quiz.QuizInput
		if err := decodeBody(r, &in); err != nil {
			return 0, nil, err
		}

		q, err := co.Store().UpdateQuiz(r.Context(), id, in)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, q, nil
	}
}

func deleteQuiz(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, p httprouter.Params) (int, any, error) {
		id, err := parseID(p, "id")
		if err != nil {
			return 0, nil, err
		}

		if err := co.Store().DeleteQuiz(r.Context(), id); err != nil {
			return 0, nil, err
		}

		return http.StatusNoContent, nil, nil
	}
}

func startGame(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, _ httprouter.Params) (int, any, error) {
		var req startRequest
		if err := decodeBody(r, &req); err != nil {
			return 0, nil, err
		}
		if req.QuizID == 0 {
			return 0, nil, badRequest("quiz_id is required")
		}

		ticket, err := co.StartSession(r.Context(), req.QuizID)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusCreated, ticket, nil
	}
}

func joinGame(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, _ httprouter.Params) (int, any, error) {
		var req joinRequest
		if err := decodeBody(r, &req); err != nil {
			return 0, nil, err
		}

		player, err := co.Join(r.Context(), req.Code, req.Name)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusCreated, player, nil
	}
}

func submitAnswer(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, _ httprouter.Params) (int, any, error) {
		var sub quiz.Submission
		if err := decodeBody(r, &sub); err != nil {
			return 0, nil, err
		}

		score, err := co.Submit(r.Context(), sub)
		if err != nil {
			return 0, nil, err
		}

		return http.StatusCreated, score, nil
	}
}

func getGame(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, p httprouter.Params) (int, any, error) {
		session, err := co.Session(r.Context(), p.ByName("code"))
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, session, nil
	}
}

func getPlayers(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, p httprouter.Params) (int, any, error) {
		players, err := co.Players(r.Context(), p.ByName("code"))
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, players, nil
	}
}

func getLeaderboard(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, p httprouter.Params) (int, any, error) {
		lb, err := co.Leaderboard(r.Context(), p.ByName("code"))
		if err != nil {
			return 0, nil, err
		}

		return http.StatusOK, lb, nil
	}
}

func deleteGame(co *quiz.Coordinator) apiFunc {
	return func(r *http.Request, p httprouter.Params) (int, any, error) {
		if err := co.DeleteSession(r.Context(), p.ByName("code")); err != nil {
			return 0, nil, err
		}

		return http.StatusNoContent, nil, nil
	}
}

func requestScheme(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme
}

// serveQR renders a PNG QR code of the game's join URL.
func serveQR(cfg *Config, co *quiz.Coordinator) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		securityHeaders(cfg, w)

		code := p.ByName("code")
		if _, err := co.Session(r.Context(), code); err != nil {
			writeError(cfg, w, r, err)

			return
		}

		url := requestScheme(r) + "://" + r.Host + cfg.prefix + "/?game=" + code

		png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
		if err != nil {
			writeError(cfg, w, r, err)

			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		_, _ = w.Write(png)

		logf(cfg, "SERVE: QR code for %s (%s) to %s", code, humanReadableSize(int64(len(png))), realIP(r))
	}
}

func serveWS(cfg *Config, co *quiz.Coordinator) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code, name := p.ByName("code"), p.ByName("name")
		if strings.TrimSpace(name) == "" {
			http.Error(w, "missing participant name", http.StatusBadRequest)

			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "SERVE: Websocket upgrade from %s failed: %v", realIP(r), err)

			return
		}

		client := quiz.NewClient(conn, cfg.sendBuffer)

		logf(cfg, "SERVE: Channel %s opened for %s/%s from %s", client.ID(), code, name, realIP(r))

		client.Serve(r.Context(), co, code, name, r.URL.Query().Get("ticket"))
	}
}

func registerQuizGame(cfg *Config, co *quiz.Coordinator, mux *httprouter.Router) {
	admin := cfg.prefix + "/api/admin/quiz"

	mux.POST(admin, serveAPI(cfg, createQuiz(co)))
	mux.GET(admin, serveAPI(cfg, listQuizzes(co)))
	mux.GET(admin+"/:id", serveAPI(cfg, getQuiz(co)))
	mux.PUT(admin+"/:id", serveAPI(cfg, updateQuiz(co)))
	mux.DELETE(admin+"/:id", serveAPI(cfg, deleteQuiz(co)))

	game := cfg.prefix + "/api/game"

	mux.POST(game+"/start", serveAPI(cfg, startGame(co)))
	mux.POST(game+"/join", serveAPI(cfg, joinGame(co)))
	mux.POST(game+"/answer", serveAPI(cfg, submitAnswer(co)))

	mux.GET(game+"/:code", serveAPI(cfg, getGame(co)))
	mux.DELETE(game+"/:code", serveAPI(cfg, deleteGame(co)))
	mux.GET(game+"/:code/players", serveAPI(cfg, getPlayers(co)))
	mux.GET(game+"/:code/leaderboard", serveAPI(cfg, getLeaderboard(co)))
	mux.GET(game+"/:code/qr", serveQR(cfg, co))

	mux.GET(cfg.prefix+"/ws/:code/:name", serveWS(cfg, co))
}
