package handler

import (
	"net/http"
	"sync"

	"github.com/freeeve/vendetta/api/internal/auth"
	"github.com/freeeve/vendetta/api/internal/middleware"
)

// Routes groups everything the HTTP surface is built from.
type Routes struct {
	State    *StateHandler
	Actions  *ActionHandler
	Reports  *ReportHandler
	Cron     *CronHandler
	Simulate *SimulateHandler
	WS       *WSHandler
	Health   http.Handler

	JWT        *auth.JWTManager
	CronSecret string
	// Limiter throttles player commands. Nil disables it.
	Limiter *middleware.RateLimiter
	// Users registers players on their first authenticated request. Nil
	// leaves registration to whoever issues the tokens.
	Users UserRegistrar
}

// registerUsers upserts the user row once per process, so players whose
// token came from the identity service show up in the sweep.
func registerUsers(users UserRegistrar) func(http.Handler) http.Handler {
	var seen sync.Map
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserIDFromContext(r.Context())
			if _, ok := seen.Load(userID); !ok {
				if _, err := users.Upsert(r.Context(), userID, ""); err != nil {
					writeServiceError(w, r, err)
					return
				}
				seen.Store(userID, struct{}{})
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Mux registers every route. Global middleware is applied by the caller.
func (rt *Routes) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	authMw := auth.Middleware(rt.JWT)

	if rt.Health != nil {
		mux.Handle("GET /health", rt.Health)
	}

	limit := func(h http.HandlerFunc) http.Handler {
		if rt.Limiter == nil {
			return h
		}
		return rt.Limiter.Handler(h)
	}

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /state", rt.State.GetState)
	api.HandleFunc("GET /catalog", rt.State.GetCatalog)
	api.Handle("POST /properties/{id}/constructions", limit(rt.Actions.SubmitConstruction))
	api.Handle("DELETE /constructions/{id}", limit(rt.Actions.CancelConstruction))
	api.Handle("POST /properties/{id}/recruitments", limit(rt.Actions.SubmitRecruitment))
	api.Handle("POST /properties/{id}/trainings", limit(rt.Actions.SubmitTraining))
	api.Handle("POST /missions", limit(rt.Actions.SendMission))
	api.Handle("POST /missions/{id}/cancel", limit(rt.Actions.CancelMission))
	api.HandleFunc("GET /reports/battles", rt.Reports.ListBattles)
	api.HandleFunc("GET /reports/battles/{id}", rt.Reports.GetBattle)
	api.HandleFunc("GET /reports/espionage", rt.Reports.ListEspionage)
	api.HandleFunc("GET /messages", rt.Reports.ListMessages)
	api.Handle("POST /simulate", limit(rt.Simulate.Simulate))

	var protected http.Handler = api
	if rt.Users != nil {
		protected = registerUsers(rt.Users)(api)
	}
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(protected)))

	// Scheduler and WebSocket authenticate on their own.
	mux.Handle("POST /api/v1/cron/advance", auth.CronSecret(rt.CronSecret)(http.HandlerFunc(rt.Cron.Advance)))
	if rt.WS != nil {
		mux.HandleFunc("GET /api/v1/ws", rt.WS.ServeWS)
	}
	return mux
}
