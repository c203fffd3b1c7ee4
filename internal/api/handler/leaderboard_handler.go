package handler

import (
	"net/http"
	"strconv"
	"time"

	"contest_judge/internal/api/middleware"
	"contest_judge/internal/app/broadcast"
	"contest_judge/internal/app/service"
	"contest_judge/internal/common"
	"contest_judge/internal/platform/logging"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

type LeaderboardHandler struct {
	leaderboardService *service.LeaderboardService
	hub                *broadcast.Hub
	upgrader           websocket.Upgrader
}

func NewLeaderboardHandler(ls *service.LeaderboardService, hub *broadcast.Hub) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService: ls,
		hub:                hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts under /contests/{contestID}. The websocket route
// sits outside the request timeout.
func (h *LeaderboardHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/ws", h.subscribe)
	r.Group(func(rest chi.Router) {
		rest.Use(chiMiddleware.Timeout(60 * time.Second))
		rest.Get("/leaderboard", h.getLeaderboard)
		rest.Get("/leaderboard/live", h.getLiveLeaderboard)
		rest.With(middleware.AdminOnly).Post("/leaderboard/rebuild", h.rebuild)
	})
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func (h *LeaderboardHandler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	snap, err := h.leaderboardService.GetLeaderboard(r.Context(), chi.URLParam(r, "contestID"), userID, limitParam(r))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, snap)
}

func (h *LeaderboardHandler) getLiveLeaderboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	live, err := h.leaderboardService.GetLiveLeaderboard(r.Context(), chi.URLParam(r, "contestID"), userID, limitParam(r))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, live)
}

func (h *LeaderboardHandler) rebuild(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "contestID")
	ranks, err := h.leaderboardService.Rebuild(r.Context(), contestID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"contest_id":   contestID,
		"participants": len(ranks),
	})
}

func (h *LeaderboardHandler) subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	contestID := chi.URLParam(r, "contestID")
	if err := h.leaderboardService.EnsureContest(r.Context(), contestID); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.HTTPLog.WithError(err).Error("Upgrade() for websocket error")
		return
	}
	broadcast.NewClient(h.hub, conn, contestID, userID).Serve()
}
