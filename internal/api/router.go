package api

import (
	"log"
	"net/http"
	"time"

	"contest_judge/internal/api/handler"
	"contest_judge/internal/api/middleware"
	"contest_judge/internal/app/broadcast"
	"contest_judge/internal/app/judge"
	"contest_judge/internal/app/service"
	"contest_judge/internal/common/security"
	"contest_judge/internal/platform/logging"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

func NewRouter(
	submissionService *service.SubmissionService,
	leaderboardService *service.LeaderboardService,
	languages *judge.Catalog,
	hub *broadcast.Hub,
	systemHandler *handler.SystemHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.RequestLogger(&chiMiddleware.DefaultLogFormatter{
		Logger:  log.New(logging.Writer(), "", 0),
		NoColor: true,
	}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Verifier(security.TokenAuth))

	systemHandler.RegisterRoutes(r)

	submissionHandler := handler.NewSubmissionHandler(submissionService)
	leaderboardHandler := handler.NewLeaderboardHandler(leaderboardService, hub)
	languageHandler := handler.NewLanguageHandler(languages)

	r.Route("/api/v1", func(v1 chi.Router) {
		v1.Group(func(rest chi.Router) {
			rest.Use(chiMiddleware.Timeout(60 * time.Second))
			rest.Route("/submissions", submissionHandler.RegisterRoutes)
			rest.Route("/languages", languageHandler.RegisterRoutes)
		})
		v1.Route("/contests/{contestID}", leaderboardHandler.RegisterRoutes)
	})

	return r
}
