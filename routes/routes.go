package routes

import (
	"net/http"
	"time"

	_ "github.com/Dosada05/dinor-predictions/docs"
	"github.com/Dosada05/dinor-predictions/handlers"
	"github.com/Dosada05/dinor-predictions/middleware"
	"github.com/Dosada05/dinor-predictions/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

const requestTimeout = 30 * time.Second

// Handlers собирает все HTTP-обработчики приложения.
type Handlers struct {
	Auth        *handlers.AuthHandler
	Tournament  *handlers.TournamentHandler
	Match       *handlers.MatchHandler
	Prediction  *handlers.PredictionHandler
	Leaderboard *handlers.LeaderboardHandler
	Team        *handlers.TeamHandler
	WebSocket   *handlers.WebSocketHandler
	Health      *handlers.HealthHandler
	AdminUsers  *handlers.AdminUserHandler
}

// Options описывает общие middleware и служебные маршруты.
type Options struct {
	Authenticator      *middleware.Authenticator
	CORSAllowedOrigins []string
	// Metrics отдаётся на /metrics; nil отключает маршрут.
	Metrics http.Handler
}

func SetupRoutes(router chi.Router, h Handlers, opts Options) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", h.Health.HealthzHandler)
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	router.Route("/api/v1", func(r chi.Router) {
		// Websocket-соединения живут дольше таймаута запроса.
		r.Route("/ws", func(r chi.Router) {
			r.Get("/leaderboard", h.WebSocket.ServeLeaderboard)
			r.Get("/tournaments/{tournamentID}", h.WebSocket.ServeTournament)
		})

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))
			apiRoutes(r, h, opts.Authenticator)
		})
	})
}

func apiRoutes(r chi.Router, h Handlers, auth *middleware.Authenticator) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
	})

	r.Route("/tournaments", func(r chi.Router) {
		r.Get("/featured", h.Tournament.FeaturedHandler)

		r.Route("/{tournamentID}", func(r chi.Router) {
			r.Get("/", h.Tournament.GetByIDHandler)
			r.Get("/leaderboard", h.Tournament.LeaderboardHandler)
			r.With(auth.OptionalAuthenticate).Get("/matches", h.Tournament.MatchesHandler)
			r.With(auth.Authenticate).Post("/register", h.Tournament.RegisterHandler)
		})
	})

	r.Get("/teams/{teamID}", h.Team.GetByIDHandler)
	r.Get("/matches/{matchID}", h.Match.GetByIDHandler)
	r.Get("/leaderboard/top", h.Leaderboard.TopHandler)

	// Защищенные маршруты
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate)

		r.Patch("/predictions/upsert", h.Prediction.UpsertHandler)
		r.Get("/predictions/mine", h.Prediction.MineHandler)

		r.Get("/leaderboard/my-stats", h.Leaderboard.MyStatsHandler)
		r.Get("/leaderboard/my-history", h.Leaderboard.MyHistoryHandler)
		r.Post("/leaderboard/refresh", h.Leaderboard.RefreshHandler)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.Use(middleware.RequireRole(models.RoleAdmin))

		r.Post("/matches", h.Match.CreateHandler)
		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Put("/result", h.Match.RecordResultHandler)
			r.Put("/closure", h.Match.SetClosureHandler)
			r.Post("/calculate", h.Match.CalculateHandler)
		})
		r.Patch("/tournaments/{tournamentID}/status", h.Tournament.SetStatusHandler)
		r.Post("/teams/{teamID}/logo", h.Team.UploadLogoHandler)
		r.Get("/users", h.AdminUsers.ListUsers)
	})
}
