// Package httpapi exposes the auction over HTTP: account endpoints,
// room management, and the command surface of a live session. State
// flows back to clients over the websocket feed; the JSON responses
// here only confirm or reject commands.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/gavelhq/gavel/internal/auction"
	"github.com/gavelhq/gavel/internal/auth"
	"github.com/gavelhq/gavel/internal/catalog"
	"github.com/gavelhq/gavel/internal/hub"
	"github.com/gavelhq/gavel/internal/lobby"
	"github.com/gavelhq/gavel/internal/store"
)

type ctxKey int

const userKey ctxKey = 0

// Server wires the handlers to their collaborators.
type Server struct {
	auth    *auth.Service
	lobby   *lobby.Manager
	catalog *catalog.Catalog
	hub     *hub.Hub
	logger  *slog.Logger
}

// New returns a Server.
func New(authSvc *auth.Service, lobbyMgr *lobby.Manager, cat *catalog.Catalog, h *hub.Hub, logger *slog.Logger) *Server {
	return &Server{auth: authSvc, lobby: lobbyMgr, catalog: cat, hub: h, logger: logger}
}

// Routes registers every endpoint on the mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("GET /api/auth/me", s.withUser(s.handleMe))

	mux.Handle("GET /api/players", s.withUser(s.handlePlayers))
	mux.Handle("GET /api/teams", s.withUser(s.handleTeams))

	mux.Handle("GET /api/rooms", s.withUser(s.handleListRooms))
	mux.Handle("POST /api/rooms", s.withUser(s.handleCreateRoom))
	mux.Handle("GET /api/rooms/{id}", s.withUser(s.handleGetRoom))
	mux.Handle("POST /api/rooms/{id}/join", s.withUser(s.handleJoinRoom))
	mux.Handle("POST /api/rooms/{id}/leave", s.withUser(s.handleLeaveRoom))
	mux.Handle("POST /api/rooms/{id}/start", s.withUser(s.handleStartRoom))
	mux.Handle("GET /api/rooms/{id}/results", s.withUser(s.handleResults))

	mux.Handle("GET /api/rooms/{id}/state", s.withUser(s.handleState))
	mux.Handle("POST /api/rooms/{id}/select-team", s.withUser(s.handleSelectTeam))
	mux.Handle("POST /api/rooms/{id}/category-order", s.withUser(s.handleCategoryOrder))
	mux.Handle("POST /api/rooms/{id}/start-category", s.withUser(s.handleStartCategory))
	mux.Handle("POST /api/rooms/{id}/bid", s.withUser(s.handleBid))
	mux.Handle("POST /api/rooms/{id}/pool", s.withUser(s.handlePool))
	mux.Handle("POST /api/rooms/{id}/squads/open", s.withUser(s.handleOpenSquads))
	mux.Handle("POST /api/rooms/{id}/squads/close", s.withUser(s.handleCloseSquads))
	mux.Handle("POST /api/rooms/{id}/reset", s.withUser(s.handleReset))

	mux.Handle("GET /ws/{id}", s.withUser(s.handleWS))
}

// --- auth ---

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if !s.decode(w, r, &creds) {
		return
	}
	u, err := s.auth.Register(r.Context(), creds.Username, creds.Password)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusCreated, map[string]string{"id": u.ID, "username": u.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if !s.decode(w, r, &creds) {
		return
	}
	token, u, err := s.auth.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, map[string]string{"token": token, "id": u.ID, "username": u.Username})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	s.json(w, http.StatusOK, map[string]string{"id": u.ID, "username": u.Username})
}

// withUser authenticates the bearer token and stores the user on the
// request context.
func (s *Server) withUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			// The browser websocket API cannot set headers.
			token = r.URL.Query().Get("token")
		}
		u, err := s.auth.Verify(r.Context(), token)
		if err != nil {
			s.error(w, r, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey, u)))
	})
}

func userFrom(r *http.Request) *store.User {
	u, _ := r.Context().Value(userKey).(*store.User)
	return u
}

// --- catalog ---

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, s.catalog.Players)
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	s.json(w, http.StatusOK, s.catalog.Teams)
}

// --- rooms ---

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.lobby.ListRooms(r.Context())
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, rooms)
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	room, err := s.lobby.CreateRoom(r.Context(), userFrom(r).ID, req.Name)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusCreated, room)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, parts, err := s.lobby.GetRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, map[string]any{"room": room, "participants": parts})
}

func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TeamID string `json:"teamId"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.lobby.JoinRoom(r.Context(), r.PathValue("id"), userFrom(r).ID, req.TeamID); err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, map[string]string{"status": "joined"})
}

func (s *Server) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.lobby.LeaveRoom(r.Context(), r.PathValue("id"), userFrom(r).ID); err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, map[string]string{"status": "left"})
}

func (s *Server) handleStartRoom(w http.ResponseWriter, r *http.Request) {
	sess, err := s.lobby.StartRoom(r.Context(), r.PathValue("id"), userFrom(r).ID)
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.lobby.Results(r.Context(), r.PathValue("id"))
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, results)
}

// --- session commands ---

func (s *Server) session(w http.ResponseWriter, r *http.Request) *auction.Session {
	sess, err := s.lobby.Session(r.PathValue("id"))
	if err != nil {
		s.error(w, r, err)
		return nil
	}
	return sess
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if sess := s.session(w, r); sess != nil {
		s.json(w, http.StatusOK, sess.Snapshot())
	}
}

func (s *Server) handleSelectTeam(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		TeamID string `json:"teamId"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := sess.SelectTeam(r.Context(), userFrom(r).ID, req.TeamID); err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCategoryOrder(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		Order []catalog.Category `json:"order"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := sess.SetCategoryOrder(req.Order); err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleStartCategory(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		Category catalog.Category `json:"category"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if err := sess.StartCategory(r.Context(), req.Category); err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	var req struct {
		TeamID string `json:"teamId"`
		// Amount is optional; zero means "the next legal amount".
		Amount int `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	u := userFrom(r)
	snap := sess.Snapshot()
	if owner, ok := snap.HumanTeams[req.TeamID]; !ok || owner != u.ID {
		s.errorStatus(w, http.StatusForbidden, "you do not control this team")
		return
	}

	var err error
	if req.Amount == 0 {
		err = sess.Bid(r.Context(), req.TeamID)
	} else {
		err = sess.PlaceBid(r.Context(), req.TeamID, req.Amount)
	}
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	if err := sess.ReturnToPool(r.Context()); err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleOpenSquads(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	if err := sess.OpenSquads(r.Context()); err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleCloseSquads(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	if sess == nil {
		return
	}
	if err := sess.CloseSquads(r.Context()); err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	// Goes through the lobby so a completed room's ticker is re-armed.
	sess, err := s.lobby.ResetRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		s.error(w, r, err)
		return
	}
	s.json(w, http.StatusOK, sess.Snapshot())
}

// --- websocket ---

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	if _, _, err := s.lobby.GetRoom(r.Context(), roomID); err != nil {
		s.error(w, r, err)
		return
	}
	if err := s.hub.Subscribe(w, r, roomID); err != nil {
		s.logger.ErrorContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
	}
}

// --- helpers ---

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(v); err != nil {
		s.errorStatus(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func (s *Server) json(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", slog.Any("error", err))
	}
}

func (s *Server) errorStatus(w http.ResponseWriter, status int, msg string) {
	s.json(w, status, map[string]string{"error": msg})
}

// error maps domain errors onto HTTP statuses.
func (s *Server) error(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, lobby.ErrRoomNotFound), errors.Is(err, lobby.ErrRoomNotLive):
		status = http.StatusNotFound
	case errors.Is(err, lobby.ErrNotHost):
		status = http.StatusForbidden
	case errors.Is(err, lobby.ErrRoomNotOpen), errors.Is(err, lobby.ErrTeamTaken):
		status = http.StatusConflict
	case errors.Is(err, auction.ErrInvalidPhase),
		errors.Is(err, auction.ErrNoLotOpen),
		errors.Is(err, auction.ErrLotAlreadyOpen),
		errors.Is(err, auction.ErrIllegalBidAmount),
		errors.Is(err, auction.ErrInsufficientFunds),
		errors.Is(err, auction.ErrUnknownCategory),
		errors.Is(err, auction.ErrUnknownTeam):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	s.errorStatus(w, status, err.Error())
}
